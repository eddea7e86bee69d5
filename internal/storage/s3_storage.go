package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"chat-relay/internal/config"
	"chat-relay/internal/imtypes"
)

// S3StorageService 将媒体上传到 S3 兼容的对象存储 (AWS S3 / MinIO)。
type S3StorageService struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewS3StorageService 根据配置创建 S3 客户端并确认 bucket 存在。
func NewS3StorageService(ctx context.Context, cfg config.S3Config) (imtypes.StorageService, error) {
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("s3: 缺少 BUCKET_NAME")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "s3.amazonaws.com"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: 创建客户端失败: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("s3: 检查 bucket '%s' 失败: %w", cfg.BucketName, err)
	}
	if !exists {
		return nil, fmt.Errorf("s3: bucket '%s' 不存在", cfg.BucketName)
	}

	publicURL := cfg.PublicURL
	if publicURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s/%s", scheme, endpoint, cfg.BucketName)
	}

	return &S3StorageService{
		client:    client,
		bucket:    cfg.BucketName,
		publicURL: strings.TrimSuffix(publicURL, "/"),
	}, nil
}

// UploadFile 将内容作为对象 key 写入 bucket。
func (s *S3StorageService) UploadFile(ctx context.Context, reader io.Reader, size int64, key string, mimeType string) (*imtypes.FileInfo, error) {
	info, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: mimeType,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: 上传对象 '%s' 失败: %w", key, err)
	}
	return &imtypes.FileInfo{
		URL:      s.publicURL + "/" + key,
		Path:     info.Key,
		Size:     info.Size,
		MimeType: mimeType,
	}, nil
}
