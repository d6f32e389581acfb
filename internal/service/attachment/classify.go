// Package attachment 提供附件媒体类型归类
package attachment

import (
	"net/url"
	"path"
	"strings"
)

// 媒体类型
const (
	MediaImage    = "image"
	MediaVideo    = "video"
	MediaAudio    = "audio"
	MediaDocument = "document"
	MediaFile     = "file"
)

// 已知扩展名到媒体类型的映射
var extMediaTypes = map[string]string{
	".jpg":  MediaImage,
	".jpeg": MediaImage,
	".png":  MediaImage,
	".gif":  MediaImage,
	".webp": MediaImage,
	".svg":  MediaImage,
	".mp4":  MediaVideo,
	".mov":  MediaVideo,
	".webm": MediaVideo,
	".avi":  MediaVideo,
	".mp3":  MediaAudio,
	".wav":  MediaAudio,
	".ogg":  MediaAudio,
	".m4a":  MediaAudio,
	".pdf":  MediaDocument,
	".doc":  MediaDocument,
	".docx": MediaDocument,
	".txt":  MediaDocument,
	".md":   MediaDocument,
}

// Classify 按文件扩展名归类媒体类型
// 纯函数；未知扩展名回落为 file
func Classify(fileURL string) string {
	name := fileURL
	if u, err := url.Parse(fileURL); err == nil && u.Path != "" {
		name = u.Path
	}
	ext := strings.ToLower(path.Ext(name))
	if mt, ok := extMediaTypes[ext]; ok {
		return mt
	}
	return MediaFile
}

// FileName 从 URL 提取展示用文件名
func FileName(fileURL string) string {
	name := fileURL
	if u, err := url.Parse(fileURL); err == nil && u.Path != "" {
		name = u.Path
	}
	base := path.Base(name)
	if base == "." || base == "/" {
		return "file"
	}
	return base
}
