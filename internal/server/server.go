package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"audiototext/internal/common"
	"audiototext/internal/config"
	"audiototext/internal/jobs"
	"audiototext/internal/storage"
	"audiototext/internal/util"
)

// DurationProber measures audio duration at intake; implemented by media.FFmpeg.
type DurationProber interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

type Service struct {
	Log      *slog.Logger
	Cfg      *config.Config
	Runner   *jobs.Runner
	Uploader *storage.Uploader
	Prober   DurationProber
	// BaseCtx scopes the lazily started worker; it must outlive requests.
	BaseCtx context.Context
}

// NewHTTPServer builds the http.Server with routes and middleware.
func NewHTTPServer(svc *Service) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc(http.MethodGet+" "+common.PathHealth, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc(http.MethodPost+" "+common.PathSubmit, svc.withCommon(svc.handleSubmit))

	s := &http.Server{
		Addr:         svc.Cfg.Server.Addr,
		Handler:      loggingMiddleware(recoveryMiddleware(mux), svc.Log),
		ReadTimeout:  svc.Cfg.Server.ReadTimeout,
		WriteTimeout: svc.Cfg.Server.WriteTimeout,
		IdleTimeout:  svc.Cfg.Server.IdleTimeout,
	}
	return s
}

func (svc *Service) withCommon(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Enforce max body size
		max := safeInt64(svc.Cfg.Server.MaxUploadSize)
		if max > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, max)
		}
		next.ServeHTTP(w, r)
	}
}

type submitResponse struct {
	Message string `json:"message"`
	JobID   string `json:"job_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (svc *Service) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(safeInt64(svc.Cfg.Server.MaxUploadSize)); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid form: " + err.Error()})
		return
	}

	// Destination address: the only shape check is the presence of an "@".
	email := strings.TrimSpace(r.FormValue("email"))
	if !strings.Contains(email, "@") {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid email"})
		return
	}

	callbackURLPtr, err := parseOptionalURL(r.FormValue("callback_url"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid callback_url"})
		return
	}

	fileHeaders := r.MultipartForm.File["audio"]
	if len(fileHeaders) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "audio file is required"})
		return
	}
	uploaded := fileHeaders[0]

	audioPath, cleanup, err := svc.Uploader.SaveMultipartAudio(uploaded, safeInt64(svc.Cfg.Server.MaxUploadSize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "upload failed: " + err.Error()})
		return
	}
	// Cleanup the temp file if we fail before handing it to the worker.
	defer func() {
		if cleanup != nil {
			_ = cleanup()
		}
	}()

	// Duration guard. An unmeasurable file is let through; normalization
	// will fail it properly in the worker and the submitter gets informed.
	maxSeconds := svc.Cfg.Audio.MaxUploadSeconds
	if dur, perr := svc.Prober.ProbeDuration(r.Context(), audioPath); perr != nil {
		svc.Log.Warn("duration probe failed at intake", "file", uploaded.Filename, "err", perr)
	} else if dur > float64(maxSeconds) {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: fmt.Sprintf("Uploaded audio too long (%.1fs). Max %ds.", dur, maxSeconds),
		})
		return
	}

	jobID := util.NewID()
	job := jobs.Job{
		ID:               jobID,
		Email:            email,
		AudioPath:        audioPath,
		OriginalFilename: uploaded.Filename,
		CallbackURL:      callbackURLPtr,
		Stage:            jobs.StageQueued,
		SubmittedAt:      time.Now().UTC(),
	}

	svc.Runner.Submit(svc.baseCtx(), jobs.WorkItem{
		Job:     job,
		Cleanup: cleanup,
	})
	// The worker owns the audio file now. Prevent the deferred delete.
	cleanup = nil

	svc.Log.Info("job accepted", "job_id", jobID, "file", uploaded.Filename)
	writeJSON(w, http.StatusAccepted, submitResponse{
		Message: fmt.Sprintf("Job accepted (ID: %s). Check email (or fallback file).", jobID),
		JobID:   jobID,
	})
}

func (svc *Service) baseCtx() context.Context {
	if svc.BaseCtx != nil {
		return svc.BaseCtx
	}
	return context.Background()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", common.ContentTypeJSON)
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(v)
}

func safeInt64(u config.ByteSize) int64 {
	if u > config.ByteSize(math.MaxInt64) {
		return math.MaxInt64
	}
	return int64(u) // #nosec G115 - safe cast after explicit upper-bound check
}

func parseOptionalURL(s string) (*string, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil, nil
	}
	if _, err := url.ParseRequestURI(v); err != nil {
		return nil, err
	}
	return &v, nil
}

func loggingMiddleware(next http.Handler, log *slog.Logger) http.Handler {
	// Fallback to a discard logger if none provided to avoid nil deref in tests or minimal setups.
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &writeWrap{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(ww, r)
		log.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.code,
			"duration", time.Since(start).String(),
			"remote", r.RemoteAddr)
	})
}

type writeWrap struct {
	http.ResponseWriter
	code int
}

func (w *writeWrap) WriteHeader(statusCode int) {
	w.code = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
