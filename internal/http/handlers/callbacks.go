package handlers

import (
	"net/http"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/finalize"
)

// RenderCallback receives the render collaborator's final assets.
func (a *App) RenderCallback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if !a.decode(w, r, &req) {
		return
	}
	job, err := a.Finalizer.HandleCallback(r.Context(), finalize.Callback{
		JobID:   req.JobID,
		URLs:    req.finalURLs(),
		Caption: req.Caption,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"ok": true, "job_id": job.ID, "state": job.State})
}
