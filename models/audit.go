package models

import "time"

// AuditEvent is a secondary, best-effort record of a guarded operation. Writes
// to it are isolated in their own savepoint so an audit failure can never
// abort the primary transaction (see services/audit.go).
type AuditEvent struct {
	ID        string `json:"id" gorm:"primaryKey;type:uuid"`
	Operation string `json:"operation" gorm:"not null;index"`
	UserID    string `json:"user_id" gorm:"index"`
	RefID     string `json:"ref_id" gorm:"index"`
	Detail    string `json:"detail" gorm:"type:jsonb;default:'{}'"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
