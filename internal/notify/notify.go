package notify

import (
	"context"
	"os"
	"path/filepath"

	"audiototext/internal/common"
)

// Attachment is one file payload included in a notification.
type Attachment struct {
	Name      string
	Payload   []byte
	MediaType string
}

// Message is an outbound notification.
type Message struct {
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Outcome reports how delivery ended. ErrorDetail is set only when
// Delivered is false; FallbackPath is set only when a fallback write was
// attempted, and FallbackWritten/FallbackError tell how that write went.
type Outcome struct {
	Delivered       bool
	ErrorDetail     string
	FallbackPath    string
	FallbackWritten bool
	FallbackError   string
}

// Transport is the outbound mail collaborator. A single Send covers
// connect, handshake, authentication and transmission; any failure at any
// stage is one uniform delivery failure.
type Transport interface {
	Send(ctx context.Context, msg *Message) error
}

// FallbackPath returns the deterministic per-job path where the transcript
// is persisted when delivery fails.
func FallbackPath(jobID string) string {
	return filepath.Join(os.TempDir(), common.FallbackPrefix+jobID+".txt")
}
