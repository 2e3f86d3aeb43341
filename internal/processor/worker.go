package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"audiototext/internal/common"
	"audiototext/internal/config"
	"audiototext/internal/jobs"
	"audiototext/internal/journal"
	"audiototext/internal/notify"
	"audiototext/internal/transcribe"
)

// Transcriber assembles a transcript for one audio file.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (transcribe.Result, error)
}

// Dispatcher delivers a notification with fallback persistence.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg notify.Message, fallbackPath string) notify.Outcome
}

// Worker implements jobs.Processor: transcribe, deliver, journal, callback.
// Every failure is absorbed at the job boundary; one job's failure never
// stops the worker loop.
type Worker struct {
	Log         *slog.Logger
	Cfg         *config.Config
	Transcriber Transcriber
	Dispatcher  Dispatcher
	Journal     journal.Journal
}

// Ensure Worker implements jobs.Processor
var _ jobs.Processor = (*Worker)(nil)

func New(logger *slog.Logger, cfg *config.Config, t Transcriber, d Dispatcher, j journal.Journal) *Worker {
	return &Worker{
		Log:         logger,
		Cfg:         cfg,
		Transcriber: t,
		Dispatcher:  d,
		Journal:     j,
	}
}

func (w *Worker) Process(ctx context.Context, item jobs.WorkItem) error {
	job := item.Job
	log := w.Log.With("job_id", job.ID)

	var text string
	res, err := w.Transcriber.Transcribe(ctx, job.AudioPath)
	if err != nil {
		// Normalization failures are fatal to the transcription step but the
		// submitter is still informed instead of left silent.
		log.Error("transcription failed", "err", err)
		text = fmt.Sprintf("[ERROR] Transcription failed: %v", err)
	} else {
		text = res.Text()
	}

	msg := notify.Message{
		To:      job.Email,
		Subject: fmt.Sprintf("Your transcription (job %s)", job.ID),
		Body: fmt.Sprintf(
			"Hello,\n\nAttached is the transcription for job %s (file: %s).\n\n--- Transcript below ---\n\n%s\n\nRegards,\nYour Transcription Server",
			job.ID, job.OriginalFilename, text,
		),
		Attachments: []notify.Attachment{
			{
				Name:      common.AttachmentNamePrefix + job.ID + ".txt",
				Payload:   []byte(text),
				MediaType: common.ContentTypeTextPlain,
			},
		},
	}

	outcome := w.Dispatcher.Dispatch(ctx, msg, notify.FallbackPath(job.ID))

	status := terminalStatus(outcome)
	if jerr := w.Journal.Record(journal.Entry{
		JobID:        job.ID,
		Outcome:      status,
		ErrorDetail:  outcome.ErrorDetail,
		FallbackPath: outcome.FallbackPath,
		CompletedAt:  time.Now().UTC(),
	}); jerr != nil {
		log.Warn("journal record failed", "err", jerr)
	}

	if job.CallbackURL != nil && *job.CallbackURL != "" {
		cbErr := w.sendCallbackWithRetry(ctx, *job.CallbackURL, callbackPayload{
			JobID:        job.ID,
			Status:       status,
			Error:        optionalString(outcome.ErrorDetail),
			FallbackPath: optionalString(outcome.FallbackPath),
		})
		if cbErr != nil {
			log.Warn("callback failed after retries", "err", cbErr)
		}
	}

	log.Info("job finished", "outcome", status)
	return nil
}

// terminalStatus maps a delivery outcome to the journal/callback status.
func terminalStatus(out notify.Outcome) string {
	switch {
	case out.Delivered:
		return common.OutcomeDelivered
	case out.FallbackWritten:
		return common.OutcomeDeliveredFallback
	default:
		return common.OutcomeFailed
	}
}

type callbackPayload struct {
	JobID        string  `json:"job_id"`
	Status       string  `json:"status"` // delivered|delivered_via_fallback|failed
	Error        *string `json:"error,omitempty"`
	FallbackPath *string `json:"fallback_path,omitempty"`
}

func (w *Worker) sendCallbackWithRetry(ctx context.Context, url string, payload callbackPayload) error {
	retries := w.Cfg.Server.CallbackRetries
	if retries <= 0 {
		retries = 3
	}
	initial := w.Cfg.Server.CallbackBackoff
	if initial <= 0 {
		initial = 2 * time.Second
	}

	op := func() error {
		if err := w.postJSON(ctx, url, payload); err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	return backoff.Retry(op, backoff.WithMaxRetries(backoff.WithContext(b, ctx), uint64(retries)))
}

func (w *Worker) postJSON(ctx context.Context, url string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", common.ContentTypeJSON)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback status %d", resp.StatusCode)
	}
	return nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
