package storage

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func makeMultipartFile(t *testing.T, filename string, contentType string, content []byte) *multipart.FileHeader {
	t.Helper()
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	fw, err := w.CreateFormFile("audio", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, "http://example/upload", &b)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	if err := req.ParseMultipartForm(int64(b.Len()) + 1024); err != nil {
		t.Fatalf("ParseMultipartForm: %v", err)
	}
	fhs := req.MultipartForm.File["audio"]
	if len(fhs) == 0 {
		t.Fatalf("no fileheaders parsed")
	}
	if contentType != "" {
		fhs[0].Header.Set("Content-Type", contentType)
	}
	return fhs[0]
}

func TestUploader_SaveMultipartAudio_WAV(t *testing.T) {
	tmp := t.TempDir()
	up := NewUploader(tmp)

	fh := makeMultipartFile(t, "clip.wav", "audio/wav", []byte("wavdata"))
	path, cleanup, err := up.SaveMultipartAudio(fh, 10*1024*1024)
	if err != nil {
		t.Fatalf("SaveMultipartAudio: %v", err)
	}
	defer func() {
		if cleanup != nil {
			_ = cleanup()
		}
	}()

	base := filepath.Base(path)
	if !strings.HasPrefix(base, "upload_") || !strings.HasSuffix(base, ".wav") {
		t.Fatalf("unexpected upload filename %q", base)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(data) != "wavdata" {
		t.Fatalf("stored content mismatch: %q", data)
	}
}

func TestUploader_CleanupRemovesFile(t *testing.T) {
	tmp := t.TempDir()
	up := NewUploader(tmp)

	fh := makeMultipartFile(t, "clip.mp3", "audio/mpeg", []byte("mp3data"))
	path, cleanup, err := up.SaveMultipartAudio(fh, 10*1024*1024)
	if err != nil {
		t.Fatalf("SaveMultipartAudio: %v", err)
	}
	if err := cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("file should be gone after cleanup, stat err = %v", err)
	}
}

func TestUploader_OctetStreamFallsBackToExtension(t *testing.T) {
	tmp := t.TempDir()
	up := NewUploader(tmp)

	fh := makeMultipartFile(t, "clip.wav", "application/octet-stream", []byte("wavdata"))
	path, cleanup, err := up.SaveMultipartAudio(fh, 10*1024*1024)
	if err != nil {
		t.Fatalf("SaveMultipartAudio: %v", err)
	}
	defer func() { _ = cleanup() }()
	if !strings.HasSuffix(path, ".wav") {
		t.Fatalf("expected .wav extension, got %q", path)
	}
}

func TestUploader_RejectsUnsupportedType(t *testing.T) {
	tmp := t.TempDir()
	up := NewUploader(tmp)

	fh := makeMultipartFile(t, "notes.txt", "text/plain", []byte("hello"))
	if _, _, err := up.SaveMultipartAudio(fh, 10*1024*1024); err == nil {
		t.Fatalf("expected unsupported content type error")
	}
}
