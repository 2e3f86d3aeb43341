package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"audiototext/internal/common"
)

// Uploader handles storing temporary audio uploads on disk.
type Uploader struct {
	baseDir string
}

var allowedAudioMimes = map[string]string{
	common.MimeAudioWAV:  ".wav",
	common.MimeAudioXWAV: ".wav",
	common.MimeAudioMPEG: ".mp3",
	common.MimeAudioMP4:  ".m4a",
	common.MimeAudioOGG:  ".ogg",
	common.MimeAudioFLAC: ".flac",
}

// NewUploader creates an uploader that stores to baseDir/uploads.
func NewUploader(baseDir string) *Uploader {
	return &Uploader{baseDir: filepath.Join(baseDir, common.UploadsDirName)}
}

// SaveMultipartAudio validates and stores an uploaded audio file to disk.
// It returns the absolute file path and a cleanup function to delete the file.
// The caller should always invoke the cleanup function when the file is no longer needed.
func (u *Uploader) SaveMultipartAudio(fileHeader *multipart.FileHeader, maxBytes int64) (string, func() error, error) {
	if fileHeader == nil {
		return "", nil, fmt.Errorf("no file provided")
	}
	mimeType := fileHeader.Header.Get("Content-Type")
	// Some clients set application/octet-stream for uploads; treat it as unknown and fall back to extension.
	if mimeType == "" || strings.EqualFold(strings.TrimSpace(mimeType), "application/octet-stream") {
		ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
		mimeType = mime.TypeByExtension(ext)
	}
	if !isAllowedAudioMime(mimeType) {
		return "", nil, fmt.Errorf("unsupported content type: %s", mimeType)
	}

	if err := os.MkdirAll(u.baseDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("ensure uploads dir: %w", err)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return "", nil, fmt.Errorf("open uploaded file: %w", err)
	}
	defer func() { _ = src.Close() }()

	ext := pickExtension(mimeType, fileHeader.Filename)
	filename := fmt.Sprintf("%s%s%s", common.UploadPrefix, randomHex(16), ext)
	dstPath := filepath.Join(u.baseDir, filename)

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", nil, fmt.Errorf("create tmp file: %w", err)
	}
	defer func() {
		_ = dst.Close()
	}()

	limited := io.LimitReader(src, maxBytes)
	if _, err := io.Copy(dst, limited); err != nil {
		_ = os.Remove(dstPath)
		return "", nil, fmt.Errorf("copy upload: %w", err)
	}

	cleanup := func() error {
		return os.Remove(dstPath)
	}
	return dstPath, cleanup, nil
}

func isAllowedAudioMime(mimeType string) bool {
	mt := normalizeMime(mimeType)
	_, ok := allowedAudioMimes[mt]
	return ok
}

func pickExtension(mimeType, original string) string {
	mt := normalizeMime(mimeType)
	// Prefer the original extension so ffmpeg can sniff the container;
	// the mime table is only a fallback.
	ext := strings.ToLower(filepath.Ext(original))
	if ext != "" {
		return ext
	}
	if mapped, ok := allowedAudioMimes[mt]; ok {
		return mapped
	}
	return ".wav"
}

// normalizeMime strips parameters like "; codecs=opus" before lookup.
func normalizeMime(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
