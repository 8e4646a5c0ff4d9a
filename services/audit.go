package services

import (
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tournament-enrollment-system/models"
	"tournament-enrollment-system/txguard"
)

// writeAudit records a guarded operation in the audit table inside its own
// savepoint. Audit is best-effort: a failed write is logged and swallowed so
// it can never abort the primary transaction it rides in.
func writeAudit(tx *gorm.DB, operation, userID, refID string, detail map[string]any) {
	body := "{}"
	if detail != nil {
		if b, err := json.Marshal(detail); err == nil {
			body = string(b)
		}
	}
	err := txguard.WithSavepoint(tx, func(tx *gorm.DB) error {
		return tx.Create(&models.AuditEvent{
			ID:        uuid.NewString(),
			Operation: operation,
			UserID:    userID,
			RefID:     refID,
			Detail:    body,
		}).Error
	})
	if err != nil {
		zap.L().Warn("audit_write_failed",
			zap.String("operation", operation),
			zap.String("user_id", userID),
			zap.String("ref_id", refID),
			zap.Error(err))
	}
}
