package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

var database *sql.DB

var ErrNotInitialized = errors.New("database not initialized")

// InitDB opens (creating if needed) the SQLite database at path and
// applies the schema. The server and the trainer share one file, so writes
// wait on a busy lock instead of failing.
func InitDB(path string) error {
	var err error
	database, err = sql.Open("sqlite3", "file:"+path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return err
	}
	if err = database.Ping(); err != nil {
		database.Close()
		database = nil
		return fmt.Errorf("open %s: %w", path, err)
	}

	query := `
    CREATE TABLE IF NOT EXISTS health_forms (
        id TEXT PRIMARY KEY,
        username TEXT NOT NULL DEFAULT '',
        full_name TEXT NOT NULL DEFAULT '',
        payload TEXT NOT NULL,
        consent INTEGER NOT NULL DEFAULT 0,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_health_forms_username ON health_forms(username, created_at);
    CREATE TABLE IF NOT EXISTS predictions (
        id TEXT PRIMARY KEY,
        form_id TEXT NOT NULL DEFAULT '',
        outcome TEXT NOT NULL,
        result TEXT NOT NULL,
        created_at DATETIME NOT NULL
    );
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY,
        model_name VARCHAR(50),
        accuracy REAL,
        precision REAL,
        recall REAL,
        trained_at DATETIME,
        data_points INTEGER
    );
    `

	if _, err = database.Exec(query); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func Close() error {
	if database == nil {
		return nil
	}
	err := database.Close()
	database = nil
	return err
}

// HealthForm is one saved submission. Payload holds the cleaned form fields.
type HealthForm struct {
	ID        string
	Username  string
	Payload   map[string]any
	CreatedAt time.Time
}

// MarshalJSON flattens the payload next to the record metadata.
func (f HealthForm) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(f.Payload)+3)
	for k, v := range f.Payload {
		out[k] = v
	}
	out["id"] = f.ID
	out["userNameForLink"] = f.Username
	out["createdAt"] = f.CreatedAt
	return json.Marshal(out)
}

// SaveHealthForm stores a cleaned submission and returns its id.
func SaveHealthForm(payload map[string]any) (string, error) {
	if database == nil {
		return "", ErrNotInitialized
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode form: %w", err)
	}
	username, _ := payload["userNameForLink"].(string)
	fullName, _ := payload["fullName"].(string)
	consent, _ := payload["consentToUseData"].(bool)

	id := uuid.NewString()
	_, err = database.Exec(`
        INSERT INTO health_forms (id, username, full_name, payload, consent, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		id, username, fullName, string(body), consent, time.Now().UTC())
	if err != nil {
		return "", err
	}
	return id, nil
}

// ListHealthForms returns a user's submissions, newest first.
func ListHealthForms(username string) ([]HealthForm, error) {
	if database == nil {
		return nil, ErrNotInitialized
	}
	rows, err := database.Query(`
        SELECT id, username, payload, created_at
        FROM health_forms
        WHERE username = ?
        ORDER BY created_at DESC, rowid DESC`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	forms := make([]HealthForm, 0)
	for rows.Next() {
		var f HealthForm
		var payload string
		if err := rows.Scan(&f.ID, &f.Username, &payload, &f.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &f.Payload); err != nil {
			return nil, fmt.Errorf("decode form %s: %w", f.ID, err)
		}
		forms = append(forms, f)
	}
	return forms, rows.Err()
}

// SavePrediction records the envelope returned for a call. formID is empty
// for predictions made without saving a form.
func SavePrediction(formID, outcome string, result any) (string, error) {
	if database == nil {
		return "", ErrNotInitialized
	}
	body, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encode prediction: %w", err)
	}
	id := uuid.NewString()
	_, err = database.Exec(`
        INSERT INTO predictions (id, form_id, outcome, result, created_at)
        VALUES (?, ?, ?, ?, ?)`,
		id, formID, outcome, string(body), time.Now().UTC())
	if err != nil {
		return "", err
	}
	return id, nil
}

type PredictionRecord struct {
	ID        string          `json:"id"`
	FormID    string          `json:"form_id,omitempty"`
	Outcome   string          `json:"outcome"`
	Result    json.RawMessage `json:"result"`
	CreatedAt time.Time       `json:"created_at"`
}

// ListPredictions returns the most recent predictions, newest first.
func ListPredictions(limit int) ([]PredictionRecord, error) {
	if database == nil {
		return nil, ErrNotInitialized
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := database.Query(`
        SELECT id, form_id, outcome, result, created_at
        FROM predictions
        ORDER BY created_at DESC, rowid DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0)
	for rows.Next() {
		var r PredictionRecord
		var result string
		if err := rows.Scan(&r.ID, &r.FormID, &r.Outcome, &result, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Result = json.RawMessage(result)
		records = append(records, r)
	}
	return records, rows.Err()
}

type TrainingLog struct {
	ModelName  string    `json:"model_name"`
	Accuracy   float64   `json:"accuracy"`
	Precision  float64   `json:"precision"`
	Recall     float64   `json:"recall"`
	TrainedAt  time.Time `json:"trained_at"`
	DataPoints int       `json:"data_points"`
}

func SaveTrainingLog(log TrainingLog) error {
	if database == nil {
		return ErrNotInitialized
	}
	_, err := database.Exec(`
        INSERT INTO training_log (model_name, accuracy, precision, recall, trained_at, data_points)
        VALUES (?, ?, ?, ?, ?, ?)`,
		log.ModelName, log.Accuracy, log.Precision, log.Recall, log.TrainedAt, log.DataPoints)
	return err
}

func LoadTrainingLog() ([]TrainingLog, error) {
	if database == nil {
		return nil, ErrNotInitialized
	}
	rows, err := database.Query(`
        SELECT model_name, accuracy, precision, recall, trained_at, data_points
        FROM training_log
        ORDER BY trained_at DESC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		if err := rows.Scan(&log.ModelName, &log.Accuracy, &log.Precision, &log.Recall, &log.TrainedAt, &log.DataPoints); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}
