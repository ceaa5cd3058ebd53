package voice

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// Input is one audio payload. Language is an optional ISO-639-1 hint.
type Input struct {
	FileName string
	MIMEType string
	Language string
	Data     []byte
}

var audioTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".mpga": "audio/mpeg",
	".mp4":  "audio/mp4",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".flac": "audio/flac",
	".webm": "audio/webm",
}

// ReadInput loads an audio file and guesses its MIME type from the extension.
func ReadInput(path string) (Input, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Input{}, err
	}
	if info.IsDir() {
		return Input{}, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > maxInputBytes {
		return Input{}, fmt.Errorf("audio file too large: %d bytes (max %d)", info.Size(), maxInputBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Input{}, err
	}
	return Input{
		FileName: filepath.Base(path),
		MIMEType: MIMEType(path),
		Data:     data,
	}, nil
}

// MIMEType returns the audio content type for path's extension.
func MIMEType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := audioTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
