package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"chat-relay/internal/config"
	"chat-relay/internal/imtypes"
)

// LocalStorageService 实现了 imtypes.StorageService 接口，将对象写入本地文件系统。
type LocalStorageService struct {
	basePath string // 本地存储的基础路径，例如 "./uploads"
	baseURL  string // 用于构建文件访问 URL 的基础 URL，例如 "http://host:5000/uploads"
}

// NewLocalStorageService 创建一个新的 LocalStorageService 实例。
// baseURL 是文件访问 URL 的前缀。
func NewLocalStorageService(cfg config.StorageConfig, baseURL string) (imtypes.StorageService, error) {
	if err := os.MkdirAll(cfg.LocalPath, 0755); err != nil {
		return nil, fmt.Errorf("创建本地存储目录失败 '%s': %w", cfg.LocalPath, err)
	}
	return &LocalStorageService{
		basePath: cfg.LocalPath,
		baseURL:  baseURL,
	}, nil
}

// UploadFile 将内容保存到 basePath/key。
func (s *LocalStorageService) UploadFile(ctx context.Context, reader io.Reader, size int64, key string, mimeType string) (*imtypes.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return nil, fmt.Errorf("非法的对象路径 '%s'", key)
	}

	dstPath := filepath.Join(s.basePath, clean)
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return nil, fmt.Errorf("创建目录失败 '%s': %w", filepath.Dir(dstPath), err)
	}

	dst, err := os.Create(dstPath)
	if err != nil {
		return nil, fmt.Errorf("创建目标文件失败 '%s': %w", dstPath, err)
	}
	defer dst.Close()

	written, err := io.Copy(dst, reader)
	if err != nil {
		os.Remove(dstPath)
		return nil, fmt.Errorf("写入文件失败: %w", err)
	}
	if written != size {
		os.Remove(dstPath)
		return nil, fmt.Errorf("文件大小不匹配: 预期 %d, 实际写入 %d", size, written)
	}

	segments := strings.Split(filepath.ToSlash(clean), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	fileURL := strings.TrimSuffix(s.baseURL, "/") + "/" + strings.Join(segments, "/")

	return &imtypes.FileInfo{
		URL:      fileURL,
		Path:     dstPath,
		Size:     written,
		MimeType: mimeType,
	}, nil
}
