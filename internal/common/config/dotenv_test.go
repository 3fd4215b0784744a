package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDotenvIfPresent(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.env")
	second := filepath.Join(dir, "second.env")
	if err := os.WriteFile(first, []byte("TEST_DOTENV_A=first\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := os.WriteFile(second, []byte("TEST_DOTENV_A=second\nTEST_DOTENV_B=second\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	t.Setenv("TEST_DOTENV_A", "")
	t.Setenv("TEST_DOTENV_B", "")
	os.Unsetenv("TEST_DOTENV_A")
	os.Unsetenv("TEST_DOTENV_B")

	t.Setenv(EnvFilesKey, filepath.Join(dir, "missing.env")+","+first+","+second)
	if err := LoadDotenvIfPresent(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("TEST_DOTENV_A"); got != "first" {
		t.Errorf("earlier file should win, got %q", got)
	}
	if got := os.Getenv("TEST_DOTENV_B"); got != "second" {
		t.Errorf("expected value from second file, got %q", got)
	}
}

func TestLoadDotenvIfPresent_NoFiles(t *testing.T) {
	if err := LoadDotenvIfPresent(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing files should be ignored: %v", err)
	}
}
