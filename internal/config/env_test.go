package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazz-dev/statusrelay/internal/config"
)

func TestExpandEnvStrict(t *testing.T) {
	t.Setenv("RELAY_HOST", "prod.example.com")

	got, err := config.ExpandEnvStrict("https://${RELAY_HOST}/health?cost=$$5&x=$HOME")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "https://prod.example.com/health?cost=$5&x=$HOME"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestExpandEnvStrict_Missing(t *testing.T) {
	_, err := config.ExpandEnvStrict("${RELAY_MISSING_B} ${RELAY_MISSING_A}")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "RELAY_MISSING_A, RELAY_MISSING_B") {
		t.Errorf("expected sorted missing names, got %v", err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("RELAY_ENV_FILE_VAR=from-file\nRELAY_ENV_KEEP=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RELAY_ENV_KEEP", "from-env")
	// Registered so t.Setenv restores (unsets) it after the test.
	t.Setenv("RELAY_ENV_FILE_VAR", "")
	os.Unsetenv("RELAY_ENV_FILE_VAR")

	if err := config.LoadEnvFile(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("RELAY_ENV_FILE_VAR"); got != "from-file" {
		t.Errorf("expected value from file, got %q", got)
	}
	if got := os.Getenv("RELAY_ENV_KEEP"); got != "from-env" {
		t.Errorf("existing variable should win, got %q", got)
	}
}

func TestLoadEnvFile_Missing(t *testing.T) {
	if err := config.LoadEnvFile(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Errorf("missing env file should not error: %v", err)
	}
	if err := config.LoadEnvFile(""); err != nil {
		t.Errorf("empty path should not error: %v", err)
	}
}
