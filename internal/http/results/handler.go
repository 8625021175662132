// Package results serves the webhook that accepts JUnit reports from CI
// jobs and synchronizes each one to ALM.
package results

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"

	"github.com/flarebyte/almsync/internal/alm"
	"github.com/flarebyte/almsync/internal/report"
	"github.com/flarebyte/almsync/internal/syncer"
)

// MaxReportBytes bounds an uploaded report.
const MaxReportBytes = 32 << 20

// SettingsFunc returns the settings for one synchronization. It is called per
// request so configuration changes apply without a restart.
type SettingsFunc func(ctx context.Context) (syncer.Settings, error)

// SyncFunc runs one synchronization pass; syncer.Run in production.
type SyncFunc func(ctx context.Context, b syncer.Build, s syncer.Settings) (syncer.Summary, error)

// Handler serializes synchronizations: only one pass talks to ALM at a time.
type Handler struct {
	settings SettingsFunc
	run      SyncFunc
	log      *slog.Logger
	mu       sync.Mutex
}

// Response is the JSON body returned for every upload.
type Response struct {
	ID      string          `json:"id"`
	Job     string          `json:"job"`
	Build   string          `json:"build"`
	Summary *syncer.Summary `json:"summary,omitempty"`
	Error   *ErrorBody      `json:"error,omitempty"`
}

// ErrorBody describes a failed upload. Remote failures carry the ALM exception id.
type ErrorBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	RemoteID string `json:"remote_id,omitempty"`
}

// New constructs a Handler.
func New(settings SettingsFunc, run SyncFunc, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{settings: settings, run: run, log: log}
}

// Router wires GET /healthz and POST /v1/jobs/{job}/results.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/v1/jobs/{job}/results", h.postResults)
	return r
}

// postResults handles POST /v1/jobs/{job}/results?build=NAME&host=HOST with a JUnit XML body.
func (h *Handler) postResults(w http.ResponseWriter, r *http.Request) {
	resp := Response{ID: ulid.Make().String(), Job: chi.URLParam(r, "job"), Build: r.URL.Query().Get("build")}
	if resp.Build == "" {
		resp.Build = syncer.NewDisplayName()
	}
	log := h.log.With("request_id", resp.ID, "job", resp.Job, "build", resp.Build)

	rep, err := report.Parse(http.MaxBytesReader(w, r.Body, MaxReportBytes))
	if err != nil {
		h.fail(w, log, resp, http.StatusBadRequest, "invalid_report", err)
		return
	}
	settings, err := h.settings(r.Context())
	if err != nil {
		h.fail(w, log, resp, http.StatusInternalServerError, "settings_unavailable", err)
		return
	}
	b := &syncer.StaticBuild{
		Results:  rep,
		Log:      log,
		Job:      resp.Job,
		Display:  resp.Build,
		HostName: r.URL.Query().Get("host"),
	}

	// A client hanging up must not stop a pass between a run's POST and PUT.
	h.mu.Lock()
	sum, err := h.run(context.WithoutCancel(r.Context()), b, settings)
	h.mu.Unlock()
	if err != nil {
		status, code := classify(err)
		h.fail(w, log, resp, status, code, err)
		return
	}
	log.Info("report synchronized", "runs", sum.Runs, "run_steps", sum.RunSteps)
	resp.Summary = &sum
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) fail(w http.ResponseWriter, log *slog.Logger, resp Response, status int, code string, err error) {
	log.Error("upload rejected", "code", code, "error", err)
	resp.Error = &ErrorBody{Code: code, Message: err.Error()}
	var rerr *alm.RemoteServiceError
	if errors.As(err, &rerr) {
		resp.Error.RemoteID = rerr.ID
		resp.Error.Message = rerr.Title
	}
	writeJSON(w, status, resp)
}

func classify(err error) (int, string) {
	var rerr *alm.RemoteServiceError
	var terr *alm.TransportError
	switch {
	case errors.Is(err, syncer.ErrNoTestResults):
		return http.StatusUnprocessableEntity, "no_test_results"
	case errors.Is(err, alm.ErrPathNotFound):
		return http.StatusUnprocessableEntity, "folder_not_found"
	case errors.Is(err, alm.ErrAuthenticationFailed):
		return http.StatusBadGateway, "authentication_failed"
	case errors.As(err, &rerr):
		return http.StatusBadGateway, "remote_error"
	case errors.As(err, &terr):
		return http.StatusBadGateway, "transport_error"
	default:
		return http.StatusInternalServerError, "sync_failed"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
