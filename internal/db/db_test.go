// Package db provides unit tests for database bootstrap.
package db

import (
	"path/filepath"
	"testing"
)

// TestOpenCreatesDataDir tests that Open creates the data directory and
// the sync bookkeeping tables.
func TestOpenCreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")

	database, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer database.Close()

	var count int
	err = database.QueryRow("SELECT COUNT(*) FROM mutation_queue").Scan(&count)
	if err != nil {
		t.Errorf("mutation_queue table missing: %v", err)
	}

	err = database.QueryRow("SELECT COUNT(*) FROM conflict_log").Scan(&count)
	if err != nil {
		t.Errorf("conflict_log table missing: %v", err)
	}
}

// TestCreateDomainTable tests domain table creation and idempotence.
func TestCreateDomainTable(t *testing.T) {
	database, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory failed: %v", err)
	}
	defer database.Close()

	if err := database.CreateDomainTable("crops"); err != nil {
		t.Fatalf("CreateDomainTable failed: %v", err)
	}

	// Second call must be a no-op
	if err := database.CreateDomainTable("crops"); err != nil {
		t.Fatalf("CreateDomainTable not idempotent: %v", err)
	}

	if _, err := database.Exec(
		`INSERT INTO crops (id, payload, sync_status, last_modified) VALUES ('a', '{}', 'pending', 1)`); err != nil {
		t.Errorf("insert into domain table failed: %v", err)
	}

	// The status CHECK constraint must reject unknown values
	if _, err := database.Exec(
		`INSERT INTO crops (id, payload, sync_status, last_modified) VALUES ('b', '{}', 'bogus', 1)`); err == nil {
		t.Error("Expected CHECK constraint violation for bogus sync_status")
	}
}
