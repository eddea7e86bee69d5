// internal/imtypes/storage_service_iface.go
package imtypes

import (
	"context"
	"io"
)

// StorageService 定义了媒体对象存储的接口。
// 对消息管道而言存储只写：上传内容并返回可公开访问的 URL。
type StorageService interface {
	// UploadFile 将读取器中的内容写入 key 指定的对象路径。
	// key 已经包含命名空间 (images/<sender>/... 或 documents/<sender>/...)。
	UploadFile(ctx context.Context, reader io.Reader, size int64, key string, mimeType string) (*FileInfo, error)
}
