// Package audit 는 팬아웃 푸시 결과를 데이터베이스에 남기는 감사 로그이다.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	cerrors "github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/errors"
	rconfig "github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/config"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/pusher"
)

// Open: 설정된 드라이버(postgres|sqlite)로 DB 를 열고 ping 으로 확인한다.
func Open(ctx context.Context, cfg rconfig.AuditConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case rconfig.AuditDriverPostgres:
		dialector = postgres.Open(cfg.Postgres.DSN())
	case rconfig.AuditDriverSQLite:
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported audit driver: %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, cerrors.DatabaseError{Operation: "open", Err: err}
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, cerrors.DatabaseError{Operation: "sql_db", Err: err}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, cerrors.DatabaseError{Operation: "ping", Err: err}
	}
	return db, nil
}

// Repository: 감사 로그 리포지토리. pusher.Recorder 를 구현한다.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// New: 새로운 Repository 인스턴스를 생성한다.
func New(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// AutoMigrate: push_audits 테이블 스키마를 마이그레이션한다.
func (r *Repository) AutoMigrate(ctx context.Context) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("db is nil")
	}
	if err := r.db.WithContext(ctx).AutoMigrate(&PushAudit{}); err != nil {
		return cerrors.DatabaseError{Operation: "auto_migrate", Err: err}
	}
	return nil
}

// Record: 푸시 결과 한 건을 기록한다.
func (r *Repository) Record(ctx context.Context, req pusher.Request, outcome pusher.Outcome) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("db is nil")
	}

	entity := PushAudit{
		Channel:       req.Channel,
		ServerType:    req.ServerType,
		Route:         req.Route,
		TargetServers: len(outcome.Targets),
		FailedUIDs:    len(outcome.Failed),
		Delivered:     outcome.Delivered(),
		CreatedAt:     r.now(),
	}
	var failedServers []string
	for _, t := range outcome.Targets {
		entity.TargetUIDs += len(t.UIDs)
		if t.Err != nil {
			failedServers = append(failedServers, t.ServerID)
		}
	}
	entity.FailedServers = strings.Join(failedServers, ",")

	if err := r.db.WithContext(ctx).Create(&entity).Error; err != nil {
		return cerrors.DatabaseError{Operation: "record_push", Err: err}
	}
	return nil
}

// Recent: 채널의 최근 기록을 최신순으로 limit 건 반환한다. channel 이 비어 있으면 전체 대상이다.
func (r *Repository) Recent(ctx context.Context, channel string, limit int) ([]PushAudit, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	q := r.db.WithContext(ctx).Model(&PushAudit{})
	if channel = strings.TrimSpace(channel); channel != "" {
		q = q.Where("channel = ?", channel)
	}
	var rows []PushAudit
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, cerrors.DatabaseError{Operation: "recent_push", Err: err}
	}
	return rows, nil
}

// Close: 하위 DB 연결을 닫는다.
func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return cerrors.DatabaseError{Operation: "sql_db", Err: err}
	}
	return sqlDB.Close()
}
