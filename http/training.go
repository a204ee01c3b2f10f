package http

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"healthguard/db"
)

func RegisterTrainingHandlers(mux *http.ServeMux, deps Deps) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	a := &api{Deps: deps}
	mux.HandleFunc("GET /api/training/log", a.handleTrainingLog)
}

// handleTrainingLog lists the metrics recorded by the trainer, newest first.
func (a *api) handleTrainingLog(w http.ResponseWriter, r *http.Request) {
	logs, err := db.LoadTrainingLog()
	if errors.Is(err, db.ErrNotInitialized) {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("database not initialized"))
		return
	}
	if err != nil {
		a.log(r).Error("load training log", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody("Could not fetch training log"))
		return
	}
	if logs == nil {
		logs = []db.TrainingLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}
