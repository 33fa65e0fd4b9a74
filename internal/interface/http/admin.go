package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starboard-tutoring/pointsledger/config"
	"github.com/starboard-tutoring/pointsledger/internal/infrastructure/scheduler"
	"github.com/starboard-tutoring/pointsledger/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN API
// Operator controls for the worker process: pause, resume and trigger jobs,
// and flip feature flags. Changes live in memory and are lost on restart.
// ══════════════════════════════════════════════════════════════════════════════

// JobAdmin is the part of the scheduler the admin API drives.
type JobAdmin interface {
	ListJobs() []scheduler.JobInfo
	GetJobInfo(name string) (*scheduler.JobInfo, error)
	EnableJob(name string) error
	DisableJob(name string) error
	RunNow(ctx context.Context, name string) (*scheduler.JobResult, error)
	GetHistory(limit int) []scheduler.JobResult
}

// AdminDependencies wires the admin API.
type AdminDependencies struct {
	Jobs     JobAdmin
	Features *config.FeatureFlags
	Logger   *slog.Logger
}

const defaultHistoryLimit = 20

type adminAPI struct {
	jobs     JobAdmin
	features *config.FeatureFlags
	logger   *slog.Logger
}

// NewAdminHandler returns the admin routes, meant to be mounted under /admin
// on an internal listener.
func NewAdminHandler(deps AdminDependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	a := &adminAPI{
		jobs:     deps.Jobs,
		features: deps.Features,
		logger:   deps.Logger.With(logger.Component("admin")),
	}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context(), a.logger)))
		})
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", a.listJobs)
		r.Get("/history", a.jobHistory)
		r.Get("/{job}", a.getJob)
		r.Post("/{job}/enable", a.enableJob)
		r.Post("/{job}/disable", a.disableJob)
		r.Post("/{job}/run", a.runJob)
	})

	r.Route("/features", func(r chi.Router) {
		r.Get("/", a.listFeatures)
		r.Post("/{feature}/enable", a.enableFeature)
		r.Post("/{feature}/disable", a.disableFeature)
		r.Put("/{feature}/rollout", a.setRollout)
		r.Put("/{feature}/students/{studentID}", a.setStudentOverride)
	})
	r.Delete("/students/{studentID}/overrides", a.clearStudentOverrides)

	return r
}

// ─────────────────────────────────────────────────────────────────────────────
// Jobs
// ─────────────────────────────────────────────────────────────────────────────

type jobResultResponse struct {
	Job         string    `json:"job"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMS  int64     `json:"duration_ms"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	Manual      bool      `json:"manual"`
}

type jobResponse struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Enabled     bool               `json:"enabled"`
	Schedule    string             `json:"schedule"`
	LastRun     *time.Time         `json:"last_run,omitempty"`
	NextRun     *time.Time         `json:"next_run,omitempty"`
	RunCount    int64              `json:"run_count"`
	FailCount   int64              `json:"fail_count"`
	LastResult  *jobResultResponse `json:"last_result,omitempty"`
}

func toJobResult(r scheduler.JobResult) jobResultResponse {
	out := jobResultResponse{
		Job:         r.JobName,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		DurationMS:  r.Duration.Milliseconds(),
		Success:     r.Success,
		Manual:      r.Manual,
	}
	if r.Error != nil {
		out.Error = r.Error.Error()
	}
	return out
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func toJob(info scheduler.JobInfo) jobResponse {
	out := jobResponse{
		Name:        info.Name,
		Description: info.Description,
		Enabled:     info.Enabled,
		Schedule:    info.Schedule,
		LastRun:     optionalTime(info.LastRun),
		NextRun:     optionalTime(info.NextRun),
		RunCount:    info.RunCount,
		FailCount:   info.FailCount,
	}
	if info.LastResult != nil {
		res := toJobResult(*info.LastResult)
		out.LastResult = &res
	}
	return out
}

func (a *adminAPI) listJobs(w http.ResponseWriter, _ *http.Request) {
	infos := a.jobs.ListJobs()
	out := make([]jobResponse, 0, len(infos))
	for _, info := range infos {
		out = append(out, toJob(info))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *adminAPI) getJob(w http.ResponseWriter, r *http.Request) {
	info, err := a.jobs.GetJobInfo(chi.URLParam(r, "job"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJob(*info))
}

func (a *adminAPI) enableJob(w http.ResponseWriter, r *http.Request) {
	a.toggleJob(w, r, a.jobs.EnableJob)
}

func (a *adminAPI) disableJob(w http.ResponseWriter, r *http.Request) {
	a.toggleJob(w, r, a.jobs.DisableJob)
}

func (a *adminAPI) toggleJob(w http.ResponseWriter, r *http.Request, fn func(string) error) {
	name := chi.URLParam(r, "job")
	if err := fn(name); err != nil {
		a.fail(w, r, err)
		return
	}
	info, err := a.jobs.GetJobInfo(name)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJob(*info))
}

// runJob runs a job in the request. A job that fails still answers 200; the
// failure is in the result.
func (a *adminAPI) runJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "job")
	res, err := a.jobs.RunNow(r.Context(), name)
	if res == nil {
		a.fail(w, r, err)
		return
	}
	a.logger.Info("job triggered manually", "job", name, "success", res.Success)
	writeJSON(w, http.StatusOK, toJobResult(*res))
}

func (a *adminAPI) jobHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeErrorMessage(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = n
	}

	history := a.jobs.GetHistory(limit)
	out := make([]jobResultResponse, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		out = append(out, toJobResult(history[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// ─────────────────────────────────────────────────────────────────────────────
// Feature flags
// ─────────────────────────────────────────────────────────────────────────────

type featureResponse struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	Enabled        bool   `json:"enabled"`
	RolloutPercent int    `json:"rollout_percent"`
}

type rolloutRequest struct {
	Percent *int `json:"percent"`
}

type overrideRequest struct {
	Enabled *bool `json:"enabled"`
}

func (a *adminAPI) listFeatures(w http.ResponseWriter, _ *http.Request) {
	all := a.features.GetAllFeatures()
	out := make([]featureResponse, 0, len(all))
	for _, f := range all {
		out = append(out, featureResponse{
			Name:           f.Name,
			Description:    f.Description,
			Enabled:        f.Enabled,
			RolloutPercent: f.RolloutPercent,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	writeJSON(w, http.StatusOK, out)
}

func (a *adminAPI) enableFeature(w http.ResponseWriter, r *http.Request) {
	a.updateFeature(w, r, a.features.EnableFeature)
}

func (a *adminAPI) disableFeature(w http.ResponseWriter, r *http.Request) {
	a.updateFeature(w, r, a.features.DisableFeature)
}

func (a *adminAPI) setRollout(w http.ResponseWriter, r *http.Request) {
	var req rolloutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Percent == nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_request", "percent is required")
		return
	}
	a.updateFeature(w, r, func(name string) error {
		return a.features.SetRolloutPercent(name, *req.Percent)
	})
}

func (a *adminAPI) updateFeature(w http.ResponseWriter, r *http.Request, fn func(string) error) {
	name := chi.URLParam(r, "feature")
	if err := fn(name); err != nil {
		a.fail(w, r, err)
		return
	}
	f := a.features.GetAllFeatures()[name]
	a.logger.Info("feature flag changed", "feature", name, "enabled", f.Enabled, "rollout_percent", f.RolloutPercent)
	writeJSON(w, http.StatusOK, featureResponse{
		Name:           f.Name,
		Description:    f.Description,
		Enabled:        f.Enabled,
		RolloutPercent: f.RolloutPercent,
	})
}

func (a *adminAPI) setStudentOverride(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "feature")
	studentID := chi.URLParam(r, "studentID")
	if _, ok := a.features.GetAllFeatures()[name]; !ok {
		a.fail(w, r, config.ErrFeatureNotFound)
		return
	}

	var req overrideRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Enabled == nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_request", "enabled is required")
		return
	}

	a.features.SetStudentOverride(studentID, name, *req.Enabled)
	a.logger.Info("feature override set", "feature", name, logger.StudentID(studentID), "enabled", *req.Enabled)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"feature":    name,
		"student_id": studentID,
		"enabled":    a.features.IsEnabledFor(name, studentID),
	})
}

func (a *adminAPI) clearStudentOverrides(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentID")
	a.features.ClearStudentOverrides(studentID)
	a.logger.Info("feature overrides cleared", logger.StudentID(studentID))
	w.WriteHeader(http.StatusNoContent)
}

func (a *adminAPI) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound):
		writeErrorMessage(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, config.ErrFeatureNotFound):
		writeErrorMessage(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, config.ErrInvalidRolloutPercent):
		writeErrorMessage(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		writeError(w, r, err)
	}
}
