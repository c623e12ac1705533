package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matsen/docqa/internal/sample"
	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection.
type DB struct {
	db *sql.DB
}

// Stats summarizes the samples in the cache.
type Stats struct {
	Samples       int     `json:"samples"`
	Answered      int     `json:"answered"`
	MultiAnswer   int     `json:"multi_answer"`
	MaxQuestion   int     `json:"max_question_len"`
	MaxContext    int     `json:"max_context_len"`
	MeanQuestion  float64 `json:"mean_question_len"`
	MeanContext   float64 `json:"mean_context_len"`
	MaxWordChars  int     `json:"max_word_chars"`
	SingleAnswer  bool    `json:"single_answer"` // Every answered sample has exactly one span start
	UnansweredPct float64 `json:"unanswered_pct"`
}

// BuildInfo identifies the JSONL rebuild that produced the cache.
type BuildInfo struct {
	BuildID string    `json:"build_id"`
	BuiltAt time.Time `json:"built_at"`
	Source  string    `json:"source"`
}

// OpenDB opens or creates a SQLite database at the given path.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// createSchema creates the database schema if it doesn't exist.
func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS samples (
			question_id TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			question_len INTEGER NOT NULL,
			context_len INTEGER NOT NULL,
			max_word_chars INTEGER NOT NULL,
			answer_count INTEGER NOT NULL,
			sample_json TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_samples_position ON samples(position);

		CREATE TABLE IF NOT EXISTS index_metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`

	_, err := db.Exec(schema)
	return err
}

// RebuildFromJSONL clears the database and rebuilds it from a JSONL file.
// Samples keep their file position so listings follow dataset order.
func (d *DB) RebuildFromJSONL(jsonlPath string) (int, error) {
	samples, err := ReadAll(jsonlPath)
	if err != nil {
		return 0, fmt.Errorf("reading JSONL: %w", err)
	}

	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM samples"); err != nil {
		return 0, fmt.Errorf("clearing samples table: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO samples (
			question_id, position, question_len, context_len,
			max_word_chars, answer_count, sample_json
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing samples insert: %w", err)
	}
	defer stmt.Close()

	for i, s := range samples {
		data, err := json.Marshal(s)
		if err != nil {
			return 0, fmt.Errorf("marshaling sample %s: %w", s.QuestionID, err)
		}
		_, err = stmt.Exec(
			string(s.QuestionID), i, len(s.QuestionWords), len(s.ContextWords),
			maxWordChars(s), s.AnswerCount(), string(data),
		)
		if err != nil {
			return 0, fmt.Errorf("inserting sample %s: %w", s.QuestionID, err)
		}
	}

	info := BuildInfo{BuildID: uuid.NewString(), BuiltAt: time.Now().UTC(), Source: jsonlPath}
	for key, value := range map[string]string{
		"build_id": info.BuildID,
		"built_at": info.BuiltAt.Format(time.RFC3339),
		"source":   info.Source,
	} {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO index_metadata (key, value) VALUES (?, ?)`, key, value); err != nil {
			return 0, fmt.Errorf("writing index metadata: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing rebuild: %w", err)
	}
	return len(samples), nil
}

func maxWordChars(s sample.EncodedSample) int {
	n := 0
	for _, w := range s.QuestionChars {
		n = max(n, len(w))
	}
	for _, w := range s.ContextChars {
		n = max(n, len(w))
	}
	return n
}

// GetByID retrieves a sample by question ID. Returns nil if not found.
func (d *DB) GetByID(id sample.QuestionID) (*sample.EncodedSample, error) {
	var data string
	err := d.db.QueryRow(`SELECT sample_json FROM samples WHERE question_id = ?`, string(id)).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying sample %s: %w", id, err)
	}

	var s sample.EncodedSample
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("parsing sample %s: %w", id, err)
	}
	return &s, nil
}

// ListIDs returns question IDs in dataset order, optionally limited.
func (d *DB) ListIDs(limit int) ([]sample.QuestionID, error) {
	query := `SELECT question_id FROM samples ORDER BY position`
	var args []interface{}

	if limit > 0 {
		query += " LIMIT ?"
		args = []interface{}{limit}
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing samples: %w", err)
	}
	defer rows.Close()

	var ids []sample.QuestionID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, sample.QuestionID(id))
	}
	return ids, rows.Err()
}

// Count returns the total number of samples.
func (d *DB) Count() (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM samples").Scan(&count)
	return count, err
}

// Stats computes corpus statistics over the cached samples.
func (d *DB) Stats() (*Stats, error) {
	var st Stats
	var maxQ, maxC, maxChars sql.NullInt64
	var meanQ, meanC sql.NullFloat64

	err := d.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN answer_count > 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN answer_count > 1 THEN 1 ELSE 0 END), 0),
			MAX(question_len), MAX(context_len), MAX(max_word_chars),
			AVG(question_len), AVG(context_len)
		FROM samples
	`).Scan(&st.Samples, &st.Answered, &st.MultiAnswer, &maxQ, &maxC, &maxChars, &meanQ, &meanC)
	if err != nil {
		return nil, fmt.Errorf("computing stats: %w", err)
	}

	st.MaxQuestion = int(maxQ.Int64)
	st.MaxContext = int(maxC.Int64)
	st.MaxWordChars = int(maxChars.Int64)
	st.MeanQuestion = meanQ.Float64
	st.MeanContext = meanC.Float64
	st.SingleAnswer = st.MultiAnswer == 0
	if st.Samples > 0 {
		st.UnansweredPct = 100 * float64(st.Samples-st.Answered) / float64(st.Samples)
	}
	return &st, nil
}

// BuildInfo returns metadata about the last rebuild, or nil if the cache was never built.
func (d *DB) BuildInfo() (*BuildInfo, error) {
	rows, err := d.db.Query(`SELECT key, value FROM index_metadata`)
	if err != nil {
		return nil, fmt.Errorf("reading index metadata: %w", err)
	}
	defer rows.Close()

	values := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if values["build_id"] == "" {
		return nil, nil
	}

	info := &BuildInfo{BuildID: values["build_id"], Source: values["source"]}
	if t, err := time.Parse(time.RFC3339, values["built_at"]); err == nil {
		info.BuiltAt = t
	}
	return info, nil
}
