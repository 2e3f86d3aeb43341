package jobs

import (
	"context"
	"time"
)

// Stage represents the lifecycle stage of a transcription job.
type Stage string

const (
	StageQueued               Stage = "queued"
	StageProcessing           Stage = "processing"
	StageDelivered            Stage = "delivered"
	StageDeliveredViaFallback Stage = "delivered_via_fallback"
)

// Job describes a single transcription and delivery request. The audio file
// at AudioPath is owned exclusively by the job until the worker removes it.
type Job struct {
	ID               string    // 12 hex chars, assigned at submission
	Email            string    // destination address, contains "@" (validated at intake)
	AudioPath        string    // temporary uploaded audio file
	OriginalFilename string    // display only
	CallbackURL      *string   // optional completion callback
	Stage            Stage     // current stage
	SubmittedAt      time.Time // enqueue time
}

// WorkItem contains a copy of the job data needed for processing and a cleanup func for the uploaded audio file.
type WorkItem struct {
	Job     Job
	Cleanup func() error
}

// Processor defines how to process a WorkItem.
type Processor interface {
	Process(ctx context.Context, item WorkItem) error
}
