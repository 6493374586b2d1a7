package db

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/linegrade/internal/config"
	"github.com/zulandar/linegrade/internal/models"
)

func TestMySQLDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DatabaseConfig
		want []string
	}{
		{
			name: "local root",
			cfg:  config.DatabaseConfig{Host: "127.0.0.1", Port: 3306, User: "root", Name: "linegrade"},
			want: []string{"root@tcp(127.0.0.1:3306)/linegrade", "parseTime=true"},
		},
		{
			name: "password and custom port",
			cfg:  config.DatabaseConfig{Host: "db.internal", Port: 3307, User: "grader", Password: "pw", Name: "lg"},
			want: []string{"grader:pw@tcp(db.internal:3307)/lg"},
		},
		{
			name: "ipv6 host",
			cfg:  config.DatabaseConfig{Host: "::1", Port: 3306, User: "root", Name: "lg"},
			want: []string{"tcp([::1]:3306)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MySQLDSN(tt.cfg)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("MySQLDSN() = %q, want to contain %q", got, w)
				}
			}
		})
	}
}

func TestSQLiteDSN(t *testing.T) {
	dsn := SQLiteDSN("/var/lib/lg.db")
	if !strings.HasPrefix(dsn, "file:/var/lib/lg.db?") {
		t.Errorf("SQLiteDSN = %q", dsn)
	}
	for _, p := range []string{"_busy_timeout=5000", "_journal_mode=WAL", "_txlock=immediate"} {
		if !strings.Contains(dsn, p) {
			t.Errorf("SQLiteDSN missing %s: %s", p, dsn)
		}
	}
}

func TestConnect_UnsupportedDriver(t *testing.T) {
	_, err := Connect(config.DatabaseConfig{Driver: "oracle"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if !strings.Contains(err.Error(), `unsupported driver "oracle"`) {
		t.Errorf("error = %q", err)
	}
}

func TestConnect_SQLiteFileAndMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "lg.db")
	gdb, err := Connect(config.DatabaseConfig{Driver: "sqlite", Path: path})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	for _, m := range AllModels() {
		if !gdb.Migrator().HasTable(m) {
			t.Errorf("table for %T not created", m)
		}
	}
}

func TestAllModels_Count(t *testing.T) {
	if got := len(AllModels()); got != 5 {
		t.Errorf("AllModels() returned %d models, want 5", got)
	}
}

func TestOpenMemory_Migrated(t *testing.T) {
	gdb, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	if !gdb.Migrator().HasTable(&models.Job{}) {
		t.Error("jobs table missing")
	}
	if !gdb.Migrator().HasIndex(&models.Job{}, "idx_jobs_session_batch") {
		t.Error("unique (session_id, batch_index) index missing")
	}
}
