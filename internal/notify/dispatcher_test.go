package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type fakeTransport struct {
	mu    sync.Mutex
	sends int
	err   error
}

func (t *fakeTransport) Send(ctx context.Context, msg *Message) error {
	t.mu.Lock()
	t.sends++
	t.mu.Unlock()
	return t.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestDispatch_SuccessSkipsFallback(t *testing.T) {
	tr := &fakeTransport{}
	d := NewDispatcher(discardLogger(), tr)
	fallback := filepath.Join(t.TempDir(), "fb.txt")

	out := d.Dispatch(context.Background(), Message{To: "a@b.c", Body: "hi"}, fallback)
	if !out.Delivered {
		t.Fatalf("expected delivered outcome: %+v", out)
	}
	if out.ErrorDetail != "" || out.FallbackPath != "" {
		t.Fatalf("success outcome should carry no failure fields: %+v", out)
	}
	if tr.sends != 1 {
		t.Fatalf("transport sends = %d, want 1", tr.sends)
	}
	if _, err := os.Stat(fallback); !os.IsNotExist(err) {
		t.Fatalf("fallback file must not exist on success")
	}
}

func TestDispatch_FailureWritesBodyToFallback(t *testing.T) {
	tr := &fakeTransport{err: errors.New("connection refused")}
	d := NewDispatcher(discardLogger(), tr)
	fallback := filepath.Join(t.TempDir(), "transcript_fallback_abc123.txt")

	out := d.Dispatch(context.Background(), Message{To: "a@b.c", Body: "hello"}, fallback)
	if out.Delivered {
		t.Fatalf("expected delivery failure")
	}
	if !strings.Contains(out.ErrorDetail, "connection refused") {
		t.Fatalf("error detail missing: %+v", out)
	}
	if out.FallbackPath != fallback || !out.FallbackWritten {
		t.Fatalf("fallback not recorded: %+v", out)
	}
	data, err := os.ReadFile(fallback)
	if err != nil {
		t.Fatalf("read fallback: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("fallback bytes = %q, want %q", data, "hello")
	}
	if tr.sends != 1 {
		t.Fatalf("delivery must be attempted exactly once, got %d", tr.sends)
	}
}

func TestDispatch_FailureWritesFirstAttachmentPayload(t *testing.T) {
	tr := &fakeTransport{err: errors.New("timeout")}
	d := NewDispatcher(discardLogger(), tr)
	fallback := filepath.Join(t.TempDir(), "fb.txt")

	msg := Message{
		To:   "a@b.c",
		Body: "body text",
		Attachments: []Attachment{
			{Name: "transcript_1.txt", Payload: []byte("attachment payload"), MediaType: "text/plain"},
			{Name: "extra.txt", Payload: []byte("second"), MediaType: "text/plain"},
		},
	}
	out := d.Dispatch(context.Background(), msg, fallback)
	if !out.FallbackWritten {
		t.Fatalf("fallback should be written: %+v", out)
	}
	data, _ := os.ReadFile(fallback)
	if string(data) != "attachment payload" {
		t.Fatalf("fallback bytes = %q", data)
	}
}

func TestDispatch_FallbackWriteFailureIsReportedNotRaised(t *testing.T) {
	tr := &fakeTransport{err: errors.New("timeout")}
	d := NewDispatcher(discardLogger(), tr)
	// A directory as target makes the write fail.
	fallback := t.TempDir()

	out := d.Dispatch(context.Background(), Message{To: "a@b.c", Body: "hi"}, fallback)
	if out.Delivered {
		t.Fatalf("expected delivery failure")
	}
	if out.FallbackWritten || out.FallbackError == "" {
		t.Fatalf("fallback write failure should be reported: %+v", out)
	}
}

func TestFallbackPath_Deterministic(t *testing.T) {
	p := FallbackPath("abc123")
	if filepath.Base(p) != "transcript_fallback_abc123.txt" {
		t.Fatalf("fallback path = %q", p)
	}
	if p != FallbackPath("abc123") {
		t.Fatalf("fallback path must be deterministic")
	}
}
