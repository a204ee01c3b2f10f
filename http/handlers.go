package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"healthguard/db"
	"healthguard/features"
	"healthguard/inference"
	"healthguard/monitoring"
	"healthguard/pipeline"
)

// Predictor runs the three-target inference for one record.
type Predictor interface {
	Predict(ctx context.Context, record map[string]any) (*inference.Result, error)
}

// Deps 服务依赖. Nil members disable the routes that need them.
type Deps struct {
	Predictor Predictor
	Cleaner   *pipeline.DataCleaner
	Storage   *pipeline.CSVStorage
	Guardian  Chatter
	Hub       *monitoring.WebSocketHub
	Metrics   *monitoring.MetricsCollector
	Logger    *zap.Logger
}

type api struct {
	Deps
}

func RegisterHandlers(mux *http.ServeMux, deps Deps) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Cleaner == nil {
		deps.Cleaner = pipeline.NewDataCleaner(deps.Logger.Named("pipeline"))
	}
	a := &api{Deps: deps}

	mux.HandleFunc("GET /api/health", handleHealth)
	// Form and prediction routes are served at the web client's paths and
	// under /api/.
	for _, prefix := range []string{"", "/api"} {
		mux.HandleFunc("POST "+prefix+"/predict", a.handlePredict)
		mux.HandleFunc("POST "+prefix+"/predict-and-save", a.handlePredictAndSave)
		mux.HandleFunc("POST "+prefix+"/healthform/save", a.handleSaveForm)
		mux.HandleFunc("GET "+prefix+"/healthform/list/{username}", a.handleListForms)
		mux.HandleFunc("GET "+prefix+"/download/user_data.csv", a.handleDownloadCSV)
	}
	mux.HandleFunc("GET /api/predictions", a.handleListPredictions)
	mux.HandleFunc("GET /api/monitor/stats", a.handleMonitorStats)
	if deps.Metrics != nil {
		mux.HandleFunc("GET /api/metrics", a.handleMetrics)
	}
	if deps.Hub != nil {
		mux.HandleFunc("GET /api/ws/predictions", deps.Hub.HandleWebSocket)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) handlePredict(w http.ResponseWriter, r *http.Request) {
	record, ok := a.readRecord(w, r)
	if !ok {
		return
	}
	envelope, code := a.predict(r, record, "")
	if code != inference.ExitOK {
		writeJSON(w, statusFor(r), map[string]any{
			"error":  "Prediction failed",
			"detail": detailOf(envelope),
		})
		return
	}
	writeJSON(w, http.StatusOK, envelope)
}

func (a *api) handlePredictAndSave(w http.ResponseWriter, r *http.Request) {
	record, ok := a.readRecord(w, r)
	if !ok {
		return
	}
	sub, ok := a.clean(w, record)
	if !ok {
		return
	}

	id, err := db.SaveHealthForm(sub)
	if err != nil {
		a.log(r).Error("save health form", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  "Could not save and predict",
			"detail": err.Error(),
		})
		return
	}
	a.appendCSV(r, sub)

	envelope, code := a.predict(r, sub, id)
	if code != inference.ExitOK {
		writeJSON(w, statusFor(r), map[string]any{
			"error":  "Prediction failed after save",
			"detail": detailOf(envelope),
			"id":     id,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Saved and predicted",
		"id":         id,
		"prediction": envelope,
	})
}

func (a *api) handleSaveForm(w http.ResponseWriter, r *http.Request) {
	record, ok := a.readRecord(w, r)
	if !ok {
		return
	}
	sub, ok := a.clean(w, record)
	if !ok {
		return
	}

	id, err := db.SaveHealthForm(sub)
	if err != nil {
		a.log(r).Error("save health form", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody("Could not save health form"))
		return
	}
	a.appendCSV(r, sub)

	writeJSON(w, http.StatusOK, map[string]any{"message": "Health form saved", "id": id})
}

func (a *api) handleListForms(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	if username == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("username is required"))
		return
	}

	forms, err := db.ListHealthForms(username)
	if err != nil {
		a.log(r).Error("list health forms", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody("Could not fetch records"))
		return
	}
	if forms == nil {
		forms = []db.HealthForm{}
	}
	writeJSON(w, http.StatusOK, forms)
}

func (a *api) handleDownloadCSV(w http.ResponseWriter, r *http.Request) {
	if a.Storage == nil || !a.Storage.Exists() {
		writeJSON(w, http.StatusNotFound, errorBody("CSV not found yet"))
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="user_data.csv"`)
	http.ServeFile(w, r, a.Storage.Path())
}

func (a *api) handleListPredictions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = v
		}
	}
	records, err := db.ListPredictions(limit)
	if err != nil {
		a.log(r).Error("list predictions", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody("Could not fetch records"))
		return
	}
	if records == nil {
		records = []db.PredictionRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (a *api) handleMonitorStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"cleaning":  a.Cleaner.GetStats(),
		"timestamp": time.Now().UTC(),
	}
	if a.Hub != nil {
		resp["hub"] = a.Hub.GetStats()
	}
	if a.Metrics != nil {
		resp["metrics"] = a.Metrics.Summaries()
		resp["system"] = a.Metrics.GetSystemStats()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	io.WriteString(w, a.Metrics.ExportPrometheus())
}

// readRecord decodes the request body into a flat record. An empty body is
// an empty record.
func (a *api) readRecord(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("request body too large"))
			return nil, false
		}
		writeJSON(w, http.StatusBadRequest, errorBody("could not read request body"))
		return nil, false
	}

	record, err := inference.DecodeRecord(raw)
	switch {
	case errors.Is(err, inference.ErrNoInput):
		return map[string]any{}, true
	case err != nil:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json", "detail": err.Error()})
		return nil, false
	}
	return record, true
}

func (a *api) clean(w http.ResponseWriter, record map[string]any) (pipeline.Submission, bool) {
	sub, err := a.Cleaner.Clean(pipeline.Submission(record))
	if err != nil {
		var ve *pipeline.ValidationError
		if errors.As(err, &ve) {
			writeJSON(w, http.StatusBadRequest, errorBody(ve.Message))
			return nil, false
		}
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return nil, false
	}
	return sub, true
}

func (a *api) appendCSV(r *http.Request, sub pipeline.Submission) {
	if a.Storage == nil {
		return
	}
	if err := a.Storage.Append(sub); err != nil {
		a.log(r).Error("append submission to csv", zap.Error(err))
	}
}

// predict runs the predictor and reports the outcome to the hub and the
// prediction log. The envelope and exit code come from inference.Render.
func (a *api) predict(r *http.Request, record map[string]any, formID string) (any, int) {
	if a.Predictor == nil {
		return inference.ErrorEnvelope{Error: true, Detail: "predictor not configured"}, inference.ExitError
	}

	start := time.Now()
	result, err := a.Predictor.Predict(r.Context(), record)
	envelope, code := inference.Render(result, err)
	outcome := outcomeOf(err)

	logger := a.log(r)
	if err != nil {
		logger.Warn("prediction", zap.String("outcome", outcome), zap.Error(err))
	}

	event := monitoring.Prediction{
		RequestID:  GetRequestID(r.Context()),
		Outcome:    outcome,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if result != nil {
		event.Positives = map[string]bool{
			"diabetes":     result.Diabetes,
			"heartDisease": result.HeartDisease,
			"cancer":       result.Cancer,
		}
		event.Probas = map[string]float64{
			"diabetes":     result.DiabetesProba,
			"heartDisease": result.HeartDiseaseProba,
			"cancer":       result.CancerProba,
		}
	}
	if a.Metrics != nil {
		a.Metrics.RecordPrediction(event)
	}
	if a.Hub != nil {
		a.Hub.PublishPrediction(event)
	}

	if _, err := db.SavePrediction(formID, outcome, envelope); err != nil && !errors.Is(err, db.ErrNotInitialized) {
		logger.Warn("save prediction", zap.Error(err))
	}
	return envelope, code
}

func (a *api) log(r *http.Request) *zap.Logger {
	return a.Logger.With(zap.String("request_id", GetRequestID(r.Context())))
}

func outcomeOf(err error) string {
	var se *features.SchemaError
	switch {
	case err == nil:
		return monitoring.OutcomeOK
	case errors.As(err, &se):
		return monitoring.OutcomeMismatch
	default:
		return monitoring.OutcomeError
	}
}

func detailOf(envelope any) string {
	if e, ok := envelope.(inference.ErrorEnvelope); ok {
		return e.Detail
	}
	return ""
}

// statusFor is 504 once the request deadline has passed and 500 otherwise.
func statusFor(r *http.Request) int {
	if errors.Is(r.Context().Err(), context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("encode JSON response", zap.Error(err))
	}
}
