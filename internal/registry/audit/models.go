package audit

import "time"

// PushAudit: pushMessage 한 건의 결과 기록
// 복합 인덱스: idx_push_audits_channel (channel, created_at)
type PushAudit struct {
	ID            uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Channel       string    `gorm:"column:channel;not null;index:idx_push_audits_channel,priority:1" json:"channel"`
	ServerType    string    `gorm:"column:server_type;not null" json:"serverType"`
	Route         string    `gorm:"column:route;not null;default:''" json:"route"`
	TargetServers int       `gorm:"column:target_servers;not null;default:0" json:"targetServers"`
	TargetUIDs    int       `gorm:"column:target_uids;not null;default:0" json:"targetUids"`
	FailedUIDs    int       `gorm:"column:failed_uids;not null;default:0" json:"failedUids"`
	FailedServers string    `gorm:"column:failed_servers;not null;default:''" json:"failedServers"` // 전송 실패 서버 ID, 콤마 구분
	Delivered     bool      `gorm:"column:delivered;not null;index" json:"delivered"`
	CreatedAt     time.Time `gorm:"column:created_at;not null;autoCreateTime;index:idx_push_audits_channel,priority:2" json:"createdAt"`
}

func (PushAudit) TableName() string { return "push_audits" }
