package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/domain"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/finalize"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/infra"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/jobs"
)

const maxBodyBytes = 1 << 20

type App struct {
	Jobs      *jobs.Service
	Finalizer *finalize.Orchestrator
	Store     domain.KeyValueStore
	Logger    infra.Logger
}

func NewApp(jobsSvc *jobs.Service, finalizer *finalize.Orchestrator, store domain.KeyValueStore, logger infra.Logger) *App {
	return &App{
		Jobs:      jobsSvc,
		Finalizer: finalizer,
		Store:     store,
		Logger:    infra.Component(logger, "http"),
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	State   string `json:"state,omitempty"`
}

type errorEnvelope struct {
	OK    bool      `json:"ok"`
	Error errorBody `json:"error"`
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorEnvelope{Error: errorBody{Code: errCode, Message: message}})
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	return true
}
