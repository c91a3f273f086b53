package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/domain"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/finalize"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/jobs"
)

type createJobResponse struct {
	OK          bool            `json:"ok"`
	JobID       string          `json:"job_id"`
	State       domain.JobState `json:"state"`
	TargetCount int             `json:"target_count"`
}

type statusResponse struct {
	OK bool `json:"ok"`
	*jobs.Status
}

type previewsResponse struct {
	OK       bool     `json:"ok"`
	JobID    string   `json:"job_id"`
	Previews []string `json:"previews"`
}

type picksResponse struct {
	OK        bool   `json:"ok"`
	JobID     string `json:"job_id"`
	Picks     []int  `json:"picks"`
	PickCount int    `json:"pick_count"`
}

type finalizeResponse struct {
	OK        bool            `json:"ok"`
	JobID     string          `json:"job_id"`
	State     domain.JobState `json:"state"`
	Picks     []int           `json:"picks,omitempty"`
	Duplicate bool            `json:"duplicate,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

type resultResponse struct {
	OK          bool      `json:"ok"`
	JobID       string    `json:"job_id"`
	URLs        []string  `json:"urls"`
	Caption     string    `json:"caption"`
	CompletedAt time.Time `json:"completed_at"`
}

func jobIDParam(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "job_id"))
}

func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if !a.decode(w, r, &req) {
		return
	}
	job, err := a.Jobs.Create(r.Context(), jobs.CreateInput{
		Subject:      req.Subject,
		Theme:        req.Theme,
		Style:        req.Style,
		TargetCount:  req.TargetCount,
		RequesterRef: req.RequesterRef,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, createJobResponse{OK: true, JobID: job.ID, State: job.State, TargetCount: job.TargetCount})
}

func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	st, err := a.Jobs.Status(r.Context(), jobIDParam(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, statusResponse{OK: true, Status: st})
}

func (a *App) JobPreviews(w http.ResponseWriter, r *http.Request) {
	jobID := jobIDParam(r)
	urls, err := a.Jobs.Previews(r.Context(), jobID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, previewsResponse{OK: true, JobID: jobID, Previews: urls})
}

func (a *App) JobPicks(w http.ResponseWriter, r *http.Request) {
	jobID := jobIDParam(r)
	picks, err := a.Jobs.Picks(r.Context(), jobID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, picksResponse{OK: true, JobID: jobID, Picks: picks, PickCount: len(picks)})
}

func (a *App) TogglePick(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if !a.decode(w, r, &req) {
		return
	}
	index, err := parseIndex(req.Index)
	if err != nil {
		a.fail(w, r, domain.Invalid("index", err.Error()))
		return
	}
	jobID := jobIDParam(r)
	count, err := a.Jobs.TogglePick(r.Context(), jobID, index)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"ok": true, "job_id": jobID, "pick_count": count})
}

func (a *App) SetPicks(w http.ResponseWriter, r *http.Request) {
	var req picksRequest
	if !a.decodePicks(w, r, &req) {
		return
	}
	jobID := jobIDParam(r)
	picks, err := a.Jobs.SetPicks(r.Context(), jobID, req.Picks)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, picksResponse{OK: true, JobID: jobID, Picks: picks, PickCount: len(picks)})
}

func (a *App) FinalizeJob(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if !a.decodePicks(w, r, &req) {
		return
	}
	out, err := a.Finalizer.Finalize(r.Context(), finalize.Request{
		JobID:       jobIDParam(r),
		Picks:       req.Picks,
		WantCaption: req.wantCaption(),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, finalizeResponse{
		OK:        true,
		JobID:     out.JobID,
		State:     out.State,
		Picks:     out.Picks,
		Duplicate: out.Duplicate,
		Reason:    out.Reason,
	})
}

func (a *App) JobResult(w http.ResponseWriter, r *http.Request) {
	jobID := jobIDParam(r)
	res, err := a.Jobs.Result(r.Context(), jobID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, resultResponse{OK: true, JobID: jobID, URLs: res.URLs, Caption: res.Caption, CompletedAt: res.CompletedAt})
}

// decodePicks reports a non-integer pick as a validation error instead of a
// generic payload error. An empty body decodes as the zero request.
func (a *App) decodePicks(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		a.fail(w, r, domain.Invalid("picks", err.Error()))
		return false
	}
	return true
}
