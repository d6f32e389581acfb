package file

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tetherapp/tether/internal/config"
)

func TestLocalStorage_RoundTrip(t *testing.T) {
	base := t.TempDir()
	storage, err := NewLocalStorage(base, "/uploads/")
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}

	path, err := storage.Save(context.Background(), &SaveRequest{
		FileName: "photo.jpg",
		UserID:   "u1",
		Reader:   strings.NewReader("jpeg bytes"),
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !strings.HasPrefix(path, "u1/") || !strings.HasSuffix(path, ".jpg") {
		t.Errorf("Save() path = %q, want u1/<uuid>.jpg", path)
	}

	rc, err := storage.Get(context.Background(), path)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "jpeg bytes" {
		t.Errorf("Get() content = %q", data)
	}

	if got := storage.URL(path); got != "/uploads/"+path {
		t.Errorf("URL() = %q", got)
	}

	if err := storage.Delete(context.Background(), path); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, path)); !os.IsNotExist(err) {
		t.Error("Delete() should remove the file")
	}

	// 重复删除不报错
	if err := storage.Delete(context.Background(), path); err != nil {
		t.Errorf("Delete() second call = %v", err)
	}
}

func TestService_Upload(t *testing.T) {
	svc, err := NewService(config.StorageConfig{
		Type:      "local",
		LocalDir:  t.TempDir(),
		PublicURL: "http://localhost:8080/uploads",
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	result, err := svc.Upload(context.Background(), "u1", "voice.mp3", "audio/mpeg", 10, strings.NewReader("mp3 bytes!"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if !strings.HasPrefix(result.FileURL, "http://localhost:8080/uploads/u1/") {
		t.Errorf("Upload() url = %q", result.FileURL)
	}
	if result.FileName != "voice.mp3" || result.Size != 10 {
		t.Errorf("Upload() result = %+v", result)
	}
}

func TestService_Upload_RejectsOversize(t *testing.T) {
	svc, err := NewService(config.StorageConfig{Type: "local", LocalDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	_, err = svc.Upload(context.Background(), "u1", "huge.bin", "application/octet-stream", maxUploadSize+1, strings.NewReader(""))
	if err == nil || !strings.Contains(err.Error(), "limit") {
		t.Errorf("Upload() oversize error = %v", err)
	}
}

func TestNewService_UnsupportedType(t *testing.T) {
	if _, err := NewService(config.StorageConfig{Type: "s3"}); err == nil {
		t.Error("NewService() should reject an unsupported storage type")
	}
}

func TestNewService_MinIOMissingConfig(t *testing.T) {
	if _, err := NewService(config.StorageConfig{Type: "minio"}); err == nil {
		t.Error("NewService() should reject incomplete MinIO config")
	}
}
