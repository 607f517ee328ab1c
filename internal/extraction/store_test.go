package extraction_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/andreabozzo/ares/internal/domain"
	"github.com/andreabozzo/ares/internal/extraction"
)

func newMockStore(t *testing.T) (*extraction.Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	db := sqlx.NewDb(mockDB, "postgres")
	return extraction.New(db), mock, func() { mockDB.Close() }
}

func TestSaveReturnsGeneratedID(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	id := uuid.New()
	mock.ExpectQuery("INSERT INTO extractions").
		WithArgs("https://example.com", "product", sqlmock.AnyArg(), "ch1", "dh1", "gpt-4").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id))

	got, err := store.Save(context.Background(), domain.NewExtraction{
		URL:            "https://example.com",
		SchemaName:     "product",
		ExtractedData:  domain.JSONBMap{"name": "widget"},
		RawContentHash: "ch1",
		DataHash:       "dh1",
		Model:          "gpt-4",
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if got != id {
		t.Errorf("expected id %s, got %s", id, got)
	}
}

func TestGetLatestNotFound(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM extractions").
		WithArgs("https://example.com", "product").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "url", "schema_name", "extracted_data", "raw_content_hash", "data_hash", "model", "created_at",
		}))

	_, err := store.GetLatest(context.Background(), "https://example.com", "product")
	if err != extraction.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetLatestReturnsMostRecentRow(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	id := uuid.New()
	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM extractions").
		WithArgs("https://example.com", "product").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "url", "schema_name", "extracted_data", "raw_content_hash", "data_hash", "model", "created_at",
		}).AddRow(id, "https://example.com", "product", []byte(`{"name":"widget"}`), "ch1", "dh1", "gpt-4", now))

	got, err := store.GetLatest(context.Background(), "https://example.com", "product")
	if err != nil {
		t.Fatalf("GetLatest() error = %v", err)
	}
	if got.DataHash != "dh1" {
		t.Errorf("expected data_hash dh1, got %s", got.DataHash)
	}
}

func TestGetHistoryDefaultsLimit(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM extractions").
		WithArgs("https://example.com", "product", 50).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "url", "schema_name", "extracted_data", "raw_content_hash", "data_hash", "model", "created_at",
		}))

	if _, err := store.GetHistory(context.Background(), "https://example.com", "product", 0); err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
