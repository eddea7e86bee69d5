package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"chat-relay/internal/config"
	"chat-relay/internal/imtypes"
	"chat-relay/internal/metrics"
	"chat-relay/internal/models"
	"chat-relay/internal/storage"
)

// MediaResolver 将消息中的原始媒体内容上传到对象存储，返回持久化的 URL。
type MediaResolver interface {
	// Resolve 只接受 image 与 document 类型的消息。
	// 失败时返回的错误均包装了 ErrMediaUpload。
	Resolve(ctx context.Context, msg *models.Message) (string, error)
}

// mediaService 是 MediaResolver 的实现。
type mediaService struct {
	storage imtypes.StorageService
	http    *resty.Client
	maxSize int64
}

// NewMediaService 创建一个新的 MediaResolver 实例。
func NewMediaService(storageService imtypes.StorageService, cfg config.StorageConfig) MediaResolver {
	client := resty.New().
		SetTimeout(cfg.FetchTimeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	return &mediaService{
		storage: storageService,
		http:    client,
		maxSize: cfg.MaxFileSizeBytes(),
	}
}

// Resolve 根据消息类型选择命名空间并上传。
// 对象 key 由 发送者目录 + 接收时间戳 + uuid 组成，避免冲突。
func (s *mediaService) Resolve(ctx context.Context, msg *models.Message) (string, error) {
	start := time.Now()
	defer func() {
		metrics.MediaUploadDuration.WithLabelValues(string(msg.Type)).Observe(time.Since(start).Seconds())
	}()

	var (
		data     []byte
		mimeType string
		key      string
		err      error
	)
	stamp := msg.Timestamp.UnixMilli()

	switch msg.Type {
	case models.ImageMessageType:
		data, mimeType, err = decodeInline(msg.Image)
		if err != nil {
			return "", fmt.Errorf("%w: 无法解码图片内容: %v", ErrMediaUpload, err)
		}
		if mimeType == "" {
			mimeType = http.DetectContentType(data)
		}
		if !strings.HasPrefix(mimeType, "image/") {
			return "", fmt.Errorf("%w: 图片内容类型无效 %q", ErrMediaUpload, mimeType)
		}
		key = storage.ObjectKey(storage.ImageNamespace, msg.Sender,
			fmt.Sprintf("%d_%s%s", stamp, uuid.NewString(), extensionFor(mimeType)))

	case models.DocumentMessageType:
		if msg.Document == nil {
			return "", fmt.Errorf("%w: 文档内容为空", ErrMediaUpload)
		}
		name := msg.Document.Name
		ext := filepath.Ext(name)
		if ext == "" || ext == "." {
			return "", fmt.Errorf("%w: 文档 %q 缺少文件扩展名", ErrMediaUpload, name)
		}
		switch {
		case msg.Document.Data != "":
			data, mimeType, err = decodeInline(msg.Document.Data)
			if err != nil {
				return "", fmt.Errorf("%w: 无法解码文档内容: %v", ErrMediaUpload, err)
			}
		case msg.Document.URL != "":
			data, mimeType, err = s.fetchRemote(ctx, msg.Document.URL)
			if err != nil {
				return "", fmt.Errorf("%w: %v", ErrMediaUpload, err)
			}
		default:
			return "", fmt.Errorf("%w: 文档既没有内联内容也没有源地址", ErrMediaUpload)
		}
		if mimeType == "" || mimeType == "application/octet-stream" {
			if byExt := mime.TypeByExtension(ext); byExt != "" {
				mimeType = byExt
			} else {
				mimeType = http.DetectContentType(data)
			}
		}
		// 每次上传一个独立目录，同名文档互不覆盖且保留原文件名
		key = storage.ObjectKey(storage.DocumentNamespace, msg.Sender, fmt.Sprintf("%d_%s", stamp, uuid.NewString()), name)

	default:
		return "", fmt.Errorf("%w: 类型 %q 不需要媒体解析", ErrMediaUpload, msg.Type)
	}

	if len(data) == 0 {
		return "", fmt.Errorf("%w: 媒体内容为空", ErrMediaUpload)
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return "", fmt.Errorf("%w: 媒体大小 %d 超过上限 %d", ErrMediaUpload, len(data), s.maxSize)
	}

	info, err := s.storage.UploadFile(ctx, bytes.NewReader(data), int64(len(data)), key, mimeType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMediaUpload, err)
	}
	return info.URL, nil
}

// fetchRemote 下载已存在于远程位置的文档。
func (s *mediaService) fetchRemote(ctx context.Context, src string) ([]byte, string, error) {
	u, err := url.Parse(src)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, "", fmt.Errorf("文档源地址无效 %q", src)
	}
	resp, err := s.http.R().SetContext(ctx).Get(u.String())
	if err != nil {
		return nil, "", fmt.Errorf("获取远程文档失败: %w", err)
	}
	if resp.IsError() {
		return nil, "", fmt.Errorf("获取远程文档失败: HTTP %d", resp.StatusCode())
	}
	mimeType, _, _ := mime.ParseMediaType(resp.Header().Get("Content-Type"))
	return resp.Body(), mimeType, nil
}

// decodeInline 解析 data URL (data:<mime>;base64,<payload>) 或裸 base64 字符串。
func decodeInline(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, "", errors.New("内容为空")
	}

	var mimeType string
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return nil, "", errors.New("data URL 缺少逗号分隔符")
		}
		meta := s[len("data:"):comma]
		if !strings.HasSuffix(meta, ";base64") {
			return nil, "", errors.New("仅支持 base64 编码的 data URL")
		}
		mimeType = strings.TrimSuffix(meta, ";base64")
		s = s[comma+1:]
	}

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if data, err := enc.DecodeString(s); err == nil {
			return data, mimeType, nil
		}
	}
	return nil, "", errors.New("不是有效的 base64 编码")
}

var preferredExtensions = map[string]string{
	"image/jpeg":    ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
}

func extensionFor(mimeType string) string {
	if ext, ok := preferredExtensions[mimeType]; ok {
		return ext
	}
	if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
		return exts[0]
	}
	return ""
}
