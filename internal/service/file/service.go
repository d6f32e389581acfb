package file

import (
	"context"
	"fmt"
	"io"

	"github.com/tetherapp/tether/internal/config"
)

// maxUploadSize 附件上传大小上限
const maxUploadSize = 25 << 20 // 25 MiB

// Service 附件上传服务
// 上传成功后返回公开 URL，客户端把 URL 随聊天请求传回
type Service struct {
	storage     Storage
	storageType StorageType
}

// NewService 从配置创建附件服务
func NewService(cfg config.StorageConfig) (*Service, error) {
	var (
		storage Storage
		err     error
	)

	switch StorageType(cfg.Type) {
	case StorageTypeLocal, "":
		dir := cfg.LocalDir
		if dir == "" {
			dir = "./data/uploads"
		}
		prefix := cfg.PublicURL
		if prefix == "" {
			prefix = "/uploads"
		}
		storage, err = NewLocalStorage(dir, prefix)

	case StorageTypeMinIO:
		if cfg.MinIO.Endpoint == "" || cfg.MinIO.AccessKey == "" || cfg.MinIO.SecretKey == "" || cfg.MinIO.Bucket == "" {
			return nil, fmt.Errorf("missing required MinIO config")
		}
		prefix := cfg.PublicURL
		if prefix == "" {
			prefix = fmt.Sprintf("http://%s", cfg.MinIO.Endpoint)
		}
		storage, err = NewMinIOStorage(cfg.MinIO, prefix)

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	return &Service{storage: storage, storageType: StorageType(cfg.Type)}, nil
}

// UploadResult 上传结果
type UploadResult struct {
	FileURL  string `json:"file_url"`
	FileName string `json:"file_name"`
	Size     int64  `json:"size"`
}

// Upload 保存上传的附件并返回公开 URL
func (s *Service) Upload(ctx context.Context, userID, fileName, contentType string, size int64, reader io.Reader) (*UploadResult, error) {
	if size > maxUploadSize {
		return nil, fmt.Errorf("file exceeds %d MiB limit", maxUploadSize>>20)
	}

	path, err := s.storage.Save(ctx, &SaveRequest{
		FileName:    fileName,
		ContentType: contentType,
		Size:        size,
		Reader:      reader,
		UserID:      userID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	return &UploadResult{
		FileURL:  s.storage.URL(path),
		FileName: fileName,
		Size:     size,
	}, nil
}

// Open 打开已保存的附件，用于本地存储的回源下载
func (s *Service) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	return s.storage.Get(ctx, path)
}
