package mime

import (
	"path/filepath"
	"strings"
)

func FromExtension(ext string) string {
	switch ext {
	case "mp3":
		return "audio/mpeg"
	case "flac":
		return "audio/x-flac"
	case "aac":
		return "audio/x-aac"
	case "m4a":
		return "audio/m4a"
	case "m4b":
		return "audio/m4b"
	case "ogg", "opus":
		return "audio/ogg"
	case "wma":
		return "audio/x-ms-wma"
	case "wav":
		return "audio/x-wav"
	case "wv":
		return "audio/x-wavpack"
	default:
		return ""
	}
}

func FromPath(path string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	return FromExtension(ext)
}
