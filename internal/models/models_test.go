package models

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

// assertFieldType checks that a struct field has the expected Go type.
func assertFieldType(t *testing.T, typ reflect.Type, fieldName, expectedType string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	got := f.Type.String()
	if got != expectedType {
		t.Errorf("%s.%s type = %q, want %q", typ.Name(), fieldName, got, expectedType)
	}
}

func TestJob_Fields(t *testing.T) {
	typ := reflect.TypeOf(Job{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "SessionID", "not null")
	// One job per (session, batch) so a redelivered dispatch cannot double up.
	assertGormTag(t, typ, "SessionID", "uniqueIndex:idx_jobs_session_batch")
	assertGormTag(t, typ, "BatchIndex", "uniqueIndex:idx_jobs_session_batch")
	assertGormTag(t, typ, "Status", "default:pending")
	assertGormTag(t, typ, "Status", "index:idx_jobs_status_created")
	assertGormTag(t, typ, "CreatedAt", "index:idx_jobs_status_created")
	assertGormTag(t, typ, "LeaseExpiresAt", "index")
	assertGormTag(t, typ, "Error", "type:text")

	assertFieldType(t, typ, "Payload", "datatypes.JSON")
	assertFieldType(t, typ, "Result", "datatypes.JSON")
	assertFieldType(t, typ, "ClaimedAt", "*time.Time")
	assertFieldType(t, typ, "LeaseExpiresAt", "*time.Time")
	assertFieldType(t, typ, "CompletedAt", "*time.Time")
	assertFieldType(t, typ, "AlertedAt", "*time.Time")
}

func TestGradingSession_Fields(t *testing.T) {
	typ := reflect.TypeOf(GradingSession{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "GradingStatus", "default:processing")
	assertGormTag(t, typ, "GradingStatus", "index")
	assertGormTag(t, typ, "CompletedBatches", "default:0")

	assertFieldType(t, typ, "CompletedAt", "*time.Time")
	assertFieldType(t, typ, "DispatchedAt", "time.Time")
}

func TestBatchCompletion_Fields(t *testing.T) {
	typ := reflect.TypeOf(BatchCompletion{})

	assertGormTag(t, typ, "JobID", "primaryKey")
	assertGormTag(t, typ, "SessionID", "index")
}

func TestLineRating_CompositeKey(t *testing.T) {
	typ := reflect.TypeOf(LineRating{})

	assertGormTag(t, typ, "SessionID", "primaryKey")
	assertGormTag(t, typ, "LineIndex", "primaryKey")
	assertGormTag(t, typ, "LineIndex", "autoIncrement:false")
	assertGormTag(t, typ, "Text", "type:text")

	assertFieldType(t, typ, "Alternatives", "datatypes.JSON")
	assertFieldType(t, typ, "Cached", "bool")
}

func TestPhraseCacheEntry(t *testing.T) {
	typ := reflect.TypeOf(PhraseCacheEntry{})

	assertGormTag(t, typ, "Key", "primaryKey")
	assertGormTag(t, typ, "Key", "size:64")
	assertGormTag(t, typ, "Hits", "default:0")

	if got := (PhraseCacheEntry{}).TableName(); got != "phrase_cache" {
		t.Errorf("TableName() = %q, want phrase_cache", got)
	}
}

func TestStatusValues(t *testing.T) {
	jobStatuses := []string{JobPending, JobProcessing, JobCompleted, JobFailed}
	seen := map[string]bool{}
	for _, s := range jobStatuses {
		if seen[s] {
			t.Errorf("duplicate job status %q", s)
		}
		seen[s] = true
		// Status columns are size:16.
		if len(s) > 16 {
			t.Errorf("job status %q exceeds column size", s)
		}
	}
	if GradingProcessing == GradingCompleted {
		t.Error("grading statuses must differ")
	}
}

func TestLine_JSONShape(t *testing.T) {
	data, err := json.Marshal(Line{LineIndex: 7, Text: "hello"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if got, want := string(data), `{"line_index":7,"text":"hello"}`; got != want {
		t.Errorf("json = %s, want %s", got, want)
	}
}
