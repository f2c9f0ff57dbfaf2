package utils

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/section1983-backend/pkg/models"
)

// LogDocumentHistory inserts an audit record into document_histories.
// actorID is uuid.Nil for system actions. Errors are ignored (best-effort).
func LogDocumentHistory(
	ctx context.Context,
	db *gorm.DB,
	documentID, actorID uuid.UUID,
	action string,
	oldS, newS models.PaymentStatus,
	reason string,
) {
	_ = db.WithContext(ctx).Create(&models.DocumentHistory{
		DocumentID: documentID,
		ActorID:    actorID,
		Action:     action,
		OldStatus:  oldS,
		NewStatus:  newS,
		Reason:     reason,
		CreatedAt:  time.Now(),
	}).Error
}

// ParsePage reads page and pageSize query values, clamping pageSize to 50.
func ParsePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 50 {
		size = 10
	}
	return page, size
}
