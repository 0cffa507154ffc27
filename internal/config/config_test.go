package config

import (
	"os"
	"testing"
)

func TestNew_Defaults(t *testing.T) {
	for _, key := range []string{EnvPort, EnvWorkers, EnvStore, EnvLogLevel} {
		os.Unsetenv(key)
	}

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != DefaultPort {
		t.Errorf("Port() = %d, want %d", cfg.Port(), DefaultPort)
	}
	if cfg.Workers() != DefaultWorkers {
		t.Errorf("Workers() = %d, want %d", cfg.Workers(), DefaultWorkers)
	}
	if cfg.Store() != "sqlite" {
		t.Errorf("Store() = %q, want sqlite", cfg.Store())
	}
}

func TestNew_PortFromEnv(t *testing.T) {
	os.Setenv(EnvPort, "9100")
	defer os.Unsetenv(EnvPort)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 9100 {
		t.Errorf("Port() = %d, want 9100", cfg.Port())
	}
}

func TestNew_InvalidPort(t *testing.T) {
	os.Setenv(EnvPort, "70000")
	defer os.Unsetenv(EnvPort)

	if _, err := New(); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
}

func TestNew_InvalidStore(t *testing.T) {
	os.Setenv(EnvStore, "postgres")
	defer os.Unsetenv(EnvStore)

	if _, err := New(); err == nil {
		t.Fatal("expected error for unknown store backend")
	}
}

func TestNew_InvalidWorkers(t *testing.T) {
	os.Setenv(EnvWorkers, "0")
	defer os.Unsetenv(EnvWorkers)

	if _, err := New(); err == nil {
		t.Fatal("expected error for zero workers")
	}
}

func TestDBPath_UnderDataDir(t *testing.T) {
	os.Setenv(EnvDataDir, "/var/lib/exportd")
	defer os.Unsetenv(EnvDataDir)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DBPath() != "/var/lib/exportd/exportd.db" {
		t.Errorf("DBPath() = %q", cfg.DBPath())
	}
	if cfg.TempDir() != "/var/lib/exportd/tmp" {
		t.Errorf("TempDir() = %q", cfg.TempDir())
	}
}
