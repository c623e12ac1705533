package storage

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/matsen/docqa/internal/sample"
)

// setupTestDB creates a test database and JSONL file with test data
func setupTestDB(t *testing.T) (*DB, string) {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "samples.db")
	jsonlPath := filepath.Join(tmpDir, "samples.jsonl")

	multi := testSample("multi", []int64{1, 2, 3, 4}, 0)
	multi.SpanStarts[2] = 1
	multi.SpanEnds[3] = 1

	samples := []sample.EncodedSample{
		testSample("first", []int64{1, 2}, 1),
		testSample("unanswered", []int64{5, 6, 7, 8, 9, 10}, -1),
		multi,
	}
	if err := WriteAll(jsonlPath, samples); err != nil {
		t.Fatalf("WriteAll() error = %v", err)
	}

	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.RebuildFromJSONL(jsonlPath); err != nil {
		t.Fatalf("RebuildFromJSONL() error = %v", err)
	}

	return db, jsonlPath
}

func TestRebuildFromJSONL(t *testing.T) {
	db, jsonlPath := setupTestDB(t)

	count, err := db.Count()
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 3 {
		t.Errorf("Count() = %d, want 3", count)
	}

	// Rebuilding replaces rather than appends
	n, err := db.RebuildFromJSONL(jsonlPath)
	if err != nil {
		t.Fatalf("second RebuildFromJSONL() error = %v", err)
	}
	if n != 3 {
		t.Errorf("RebuildFromJSONL() = %d, want 3", n)
	}
	if count, _ := db.Count(); count != 3 {
		t.Errorf("Count() after rebuild = %d, want 3", count)
	}
}

func TestGetByID(t *testing.T) {
	db, _ := setupTestDB(t)

	s, err := db.GetByID("unanswered")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if s == nil {
		t.Fatal("GetByID() returned nil")
	}
	if len(s.ContextWords) != 6 {
		t.Errorf("ContextWords = %v, want 6 tokens", s.ContextWords)
	}
	if s.HasAnswer() {
		t.Error("HasAnswer() = true, want false")
	}

	missing, err := db.GetByID("nope")
	if err != nil {
		t.Fatalf("GetByID(nope) error = %v", err)
	}
	if missing != nil {
		t.Errorf("GetByID(nope) = %v, want nil", missing)
	}
}

func TestListIDs(t *testing.T) {
	db, _ := setupTestDB(t)

	ids, err := db.ListIDs(0)
	if err != nil {
		t.Fatalf("ListIDs() error = %v", err)
	}
	want := []sample.QuestionID{"first", "unanswered", "multi"}
	if len(ids) != len(want) {
		t.Fatalf("ListIDs() = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ListIDs()[%d] = %s, want %s", i, ids[i], want[i])
		}
	}

	limited, err := db.ListIDs(1)
	if err != nil {
		t.Fatalf("ListIDs(1) error = %v", err)
	}
	if len(limited) != 1 || limited[0] != "first" {
		t.Errorf("ListIDs(1) = %v, want [first]", limited)
	}
}

func TestStats(t *testing.T) {
	db, _ := setupTestDB(t)

	st, err := db.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}

	if st.Samples != 3 {
		t.Errorf("Samples = %d, want 3", st.Samples)
	}
	if st.Answered != 2 {
		t.Errorf("Answered = %d, want 2", st.Answered)
	}
	if st.MultiAnswer != 1 {
		t.Errorf("MultiAnswer = %d, want 1", st.MultiAnswer)
	}
	if st.SingleAnswer {
		t.Error("SingleAnswer = true, want false")
	}
	if st.MaxContext != 6 {
		t.Errorf("MaxContext = %d, want 6", st.MaxContext)
	}
	if st.MaxQuestion != 2 {
		t.Errorf("MaxQuestion = %d, want 2", st.MaxQuestion)
	}
	if st.MaxWordChars != 3 {
		t.Errorf("MaxWordChars = %d, want 3", st.MaxWordChars)
	}
	if math.Abs(st.MeanContext-4) > 1e-9 {
		t.Errorf("MeanContext = %v, want 4", st.MeanContext)
	}
}

func TestStats_Empty(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "empty.db"))
	if err != nil {
		t.Fatalf("OpenDB() error = %v", err)
	}
	defer db.Close()

	st, err := db.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if st.Samples != 0 || !st.SingleAnswer || st.UnansweredPct != 0 {
		t.Errorf("Stats() = %+v, want zero values", st)
	}
}

func TestBuildInfo(t *testing.T) {
	db, jsonlPath := setupTestDB(t)

	info, err := db.BuildInfo()
	if err != nil {
		t.Fatalf("BuildInfo() error = %v", err)
	}
	if info == nil {
		t.Fatal("BuildInfo() = nil after rebuild")
	}
	if info.BuildID == "" || info.Source != jsonlPath || info.BuiltAt.IsZero() {
		t.Errorf("BuildInfo() = %+v", info)
	}

	first := info.BuildID
	if _, err := db.RebuildFromJSONL(jsonlPath); err != nil {
		t.Fatalf("RebuildFromJSONL() error = %v", err)
	}
	info, _ = db.BuildInfo()
	if info.BuildID == first {
		t.Error("BuildID did not change on rebuild")
	}
}

func TestBuildInfo_NeverBuilt(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "fresh.db"))
	if err != nil {
		t.Fatalf("OpenDB() error = %v", err)
	}
	defer db.Close()

	info, err := db.BuildInfo()
	if err != nil {
		t.Fatalf("BuildInfo() error = %v", err)
	}
	if info != nil {
		t.Errorf("BuildInfo() = %+v, want nil", info)
	}
}
