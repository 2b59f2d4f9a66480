package testutil

import (
	"database/sql"
	"os"
	"testing"

	"github.com/pathweaver/pathweaver/internal/config"
	"github.com/pathweaver/pathweaver/internal/db"
)

func OpenTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set, skipping postgres test")
	}
	conn, err := db.Open(config.DatabaseConfig{
		Host:     host,
		Port:     5432,
		User:     "pathweaver",
		Password: "pathweaver_pass",
		DBName:   "pathweaver_test",
		SSLMode:  "disable",
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	reset(t, conn)
	return conn, func() {
		_ = conn.Close()
	}
}

func reset(t *testing.T, conn *sql.DB) {
	t.Helper()
	tables := []string{"concept_fields", "concept_edges", "concepts", "learning_paths", "chunk_prerequisites", "chunks", "embedding_cache"}
	for _, table := range tables {
		if _, err := conn.Exec("DELETE FROM " + table); err != nil {
			t.Fatalf("reset %s: %v", table, err)
		}
	}
}
