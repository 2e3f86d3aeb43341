package common

// Shared constants to enforce DRY and avoid magic strings/numbers.

// HTTP headers and content types
const (
	ContentTypeJSON      = "application/json"
	ContentTypeTextPlain = "text/plain"
)

// API paths
const (
	PathHealth = "/api/health"
	PathSubmit = "/api/submit"
)

// Defaults and limits
const (
	DefaultSegmentSeconds        = 20
	DefaultChunkThresholdSeconds = 40
	DefaultMaxUploadSeconds      = 600
	SQLiteBusyTimeoutMS          = 5000
)

// External executables
const (
	FFmpegExecutable  = "ffmpeg"
	FFprobeExecutable = "ffprobe"
)

// MIME types accepted for uploads
const (
	MimeAudioWAV  = "audio/wav"
	MimeAudioXWAV = "audio/x-wav"
	MimeAudioMPEG = "audio/mpeg"
	MimeAudioMP4  = "audio/mp4"
	MimeAudioOGG  = "audio/ogg"
	MimeAudioFLAC = "audio/flac"
)

// Subdirectory names
const (
	UploadsDirName = "uploads"
)

// File name patterns for temporary and fallback artifacts
const (
	UploadPrefix         = "upload_"
	WorkingWAVPrefix     = "whisper_input_"
	SegmentPrefix        = "whisper_chunk_"
	FallbackPrefix       = "transcript_fallback_"
	AttachmentNamePrefix = "transcript_"
)

// Terminal outcome strings
const (
	OutcomeDelivered         = "delivered"
	OutcomeDeliveredFallback = "delivered_via_fallback"
	OutcomeFailed            = "failed"
)
