package dbutil

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func TestOpenWithRetry_SucceedsAfterFailures(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	attempts := 0

	db, err := OpenWithRetry(context.Background(), func(context.Context) (*gorm.DB, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("connection refused")
		}
		return gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	}, RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}, logger)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if db == nil || attempts != 3 {
		t.Fatalf("expected success on 3rd attempt, attempts=%d", attempts)
	}
}

func TestOpenWithRetry_GivesUp(t *testing.T) {
	wantErr := errors.New("connection refused")

	_, err := OpenWithRetry(context.Background(), func(context.Context) (*gorm.DB, error) {
		return nil, wantErr
	}, RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestRetryConfig_DelayCapped(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	if d := cfg.delay(0); d != time.Second {
		t.Errorf("attempt 0: expected 1s, got %v", d)
	}
	if d := cfg.delay(2); d != 4*time.Second {
		t.Errorf("attempt 2: expected 4s, got %v", d)
	}
	if d := cfg.delay(6); d != 5*time.Second {
		t.Errorf("attempt 6: expected cap 5s, got %v", d)
	}
}
