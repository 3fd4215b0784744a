package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	rconfig "github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/config"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/pusher"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db failed: %v", err)
	}
	// :memory: 는 연결마다 별도 DB 이므로 하나로 고정한다.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := New(db)
	if err := repo.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return repo
}

func TestRepository_RecordAndRecent(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	ok := pusher.Outcome{Targets: []pusher.ServerOutcome{{ServerID: "srvA", UIDs: []string{"u1"}}}}
	partial := pusher.Outcome{
		Targets: []pusher.ServerOutcome{
			{ServerID: "srvA", UIDs: []string{"u1", "u2"}, Failed: []string{"u1", "u2"}, Err: errors.New("timeout")},
			{ServerID: "srvB", UIDs: []string{"u3"}},
		},
		Failed: []string{"u1", "u2"},
	}

	if err := repo.Record(ctx, pusher.Request{ServerType: "connector", Route: "onChat", Channel: "lobby"}, ok); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := repo.Record(ctx, pusher.Request{ServerType: "connector", Route: "onChat", Channel: "lobby"}, partial); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := repo.Record(ctx, pusher.Request{ServerType: "connector", Route: "onChat", Channel: "room-2"}, ok); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	rows, err := repo.Recent(ctx, "lobby", 10)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 lobby rows, got %d", len(rows))
	}
	latest := rows[0]
	if latest.Delivered || latest.TargetServers != 2 || latest.TargetUIDs != 3 || latest.FailedUIDs != 2 || latest.FailedServers != "srvA" {
		t.Fatalf("unexpected latest row: %+v", latest)
	}
	if !rows[1].Delivered || rows[1].FailedServers != "" {
		t.Fatalf("unexpected older row: %+v", rows[1])
	}

	all, err := repo.Recent(ctx, "", 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("expected 3 rows overall, got %d (err=%v)", len(all), err)
	}
}

func TestRepository_NilDB(t *testing.T) {
	var repo *Repository
	if err := repo.Record(context.Background(), pusher.Request{}, pusher.Outcome{}); err == nil {
		t.Fatal("expected error for nil repository")
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("close on nil repository should be no-op: %v", err)
	}
}

func TestOpen(t *testing.T) {
	db, err := Open(context.Background(), rconfig.AuditConfig{Driver: rconfig.AuditDriverSQLite, SQLitePath: "file::memory:"})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	repo := New(db)
	t.Cleanup(func() { _ = repo.Close() })
	if err := repo.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	if _, err := Open(context.Background(), rconfig.AuditConfig{Driver: "mysql"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
