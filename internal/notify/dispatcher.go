package notify

import (
	"context"
	"log/slog"
	"os"
)

// Dispatcher delivers notifications with a guaranteed fallback: delivery is
// attempted exactly once, and on failure the payload is persisted locally
// instead. There is no retry; the fallback artifact is the durability
// mechanism.
type Dispatcher struct {
	log       *slog.Logger
	transport Transport
}

// NewDispatcher creates a Dispatcher sending through transport.
func NewDispatcher(logger *slog.Logger, transport Transport) *Dispatcher {
	return &Dispatcher{log: logger, transport: transport}
}

// Dispatch attempts delivery once and never returns an error. On transport
// failure the first attachment's payload (or the body text when there is no
// attachment) is written to fallbackPath; a failed fallback write is
// reported in the Outcome but goes no further.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message, fallbackPath string) Outcome {
	err := d.transport.Send(ctx, &msg)
	if err == nil {
		d.log.Info("notification sent", "to", msg.To)
		return Outcome{Delivered: true}
	}
	d.log.Error("notification send failed", "to", msg.To, "err", err)

	out := Outcome{
		ErrorDetail:  err.Error(),
		FallbackPath: fallbackPath,
	}
	payload := []byte(msg.Body)
	if len(msg.Attachments) > 0 && len(msg.Attachments[0].Payload) > 0 {
		payload = msg.Attachments[0].Payload
	}
	if werr := os.WriteFile(fallbackPath, payload, 0o644); werr != nil {
		out.FallbackError = werr.Error()
		d.log.Error("fallback write failed", "path", fallbackPath, "err", werr)
	} else {
		out.FallbackWritten = true
		d.log.Info("fallback transcript saved", "path", fallbackPath)
	}
	return out
}
