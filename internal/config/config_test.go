package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATA_DIR", "/var/lib/medrecord")
	t.Setenv("EXPORT_DIR", "/srv/exports")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %s", cfg.Port)
	}
	if cfg.StorageDriver != DriverPostgres {
		t.Errorf("expected postgres driver, got %s", cfg.StorageDriver)
	}
	if cfg.BodyLimit != "110M" {
		t.Errorf("expected body limit 110M, got %s", cfg.BodyLimit)
	}
	if cfg.ExportDir != "/srv/exports" {
		t.Errorf("explicit EXPORT_DIR should win, got %s", cfg.ExportDir)
	}
	if want := filepath.Join("/var/lib/medrecord", "charts"); cfg.ChartDir != want {
		t.Errorf("expected chart dir %s, got %s", want, cfg.ChartDir)
	}
	if want := filepath.Join("/var/lib/medrecord", "attachments"); cfg.AttachmentDir != want {
		t.Errorf("expected attachment dir %s, got %s", want, cfg.AttachmentDir)
	}
}

func TestLoad_DriverIsCaseInsensitive(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "LevelDB")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StorageDriver != DriverLevelDB {
		t.Errorf("expected leveldb, got %s", cfg.StorageDriver)
	}
}

func TestLoad_CORSOrigins(t *testing.T) {
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("expected 2 origins, got %v", cfg.CORSOrigins)
	}
}

func TestConfig_Validate(t *testing.T) {
	key := strings.Repeat("k", 32)
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"postgres ok", Config{Env: "development", StorageDriver: DriverPostgres, DatabaseURL: "postgres://x", DBMaxConns: 20, DBMinConns: 5}, ""},
		{"postgres without url", Config{Env: "development", StorageDriver: DriverPostgres}, "DATABASE_URL"},
		{"pool bounds", Config{Env: "development", StorageDriver: DriverPostgres, DatabaseURL: "postgres://x", DBMaxConns: 2, DBMinConns: 5}, "DB_MIN_CONNS"},
		{"leveldb ok", Config{Env: "development", StorageDriver: DriverLevelDB, LevelDBPath: "./db"}, ""},
		{"leveldb without path", Config{Env: "development", StorageDriver: DriverLevelDB}, "LEVELDB_PATH"},
		{"unknown driver", Config{Env: "development", StorageDriver: "sqlite"}, "STORAGE_DRIVER"},
		{"production needs key", Config{Env: "production", StorageDriver: DriverLevelDB, LevelDBPath: "./db"}, "AUTH_SIGNING_KEY is required"},
		{"short key", Config{Env: "production", StorageDriver: DriverLevelDB, LevelDBPath: "./db", AuthSigningKey: "short"}, "at least 32 bytes"},
		{"production ok", Config{Env: "production", StorageDriver: DriverLevelDB, LevelDBPath: "./db", AuthSigningKey: key}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfig_IsDev(t *testing.T) {
	if !(&Config{Env: "development"}).IsDev() {
		t.Error("development should be dev")
	}
	if (&Config{Env: "production"}).IsDev() {
		t.Error("production should not be dev")
	}
}
