package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"carwash/internal/models"
	"carwash/internal/repositories"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 500
)

// SystemActor is the changed_by of automatic transitions.
const SystemActor = 0

// AuditLogger writes the append-only KYC audit trail. Writes always go
// through the caller's transaction.
type AuditLogger struct {
	Store repositories.Store
	Now   func() time.Time
}

func NewAuditLogger(store repositories.Store) *AuditLogger {
	return &AuditLogger{Store: store, Now: time.Now}
}

// Append records action for userID inside tx. changes is marshalled to JSON.
func (a *AuditLogger) Append(ctx context.Context, tx repositories.Repos, userID int, action string, actorID int, changes any, meta models.AuditMeta) error {
	if changes == nil {
		changes = map[string]any{}
	}
	raw, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("marshal audit changes: %w", err)
	}
	e := &models.KYCAuditLogEntry{
		UserID:    userID,
		Action:    action,
		ChangedBy: actorID,
		Changes:   string(raw),
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		CreatedAt: a.now(),
	}
	if err := tx.Audit().Append(ctx, e); err != nil {
		return fmt.Errorf("append audit %s: %w", action, err)
	}
	return nil
}

// GetLog returns entries newest first. limit <= 0 means the default of 100; capped at 500.
func (a *AuditLogger) GetLog(ctx context.Context, userID, limit int) ([]*models.KYCAuditLogEntry, error) {
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	entries, err := a.Store.Audit().ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	if entries == nil {
		entries = []*models.KYCAuditLogEntry{}
	}
	return entries, nil
}

func (a *AuditLogger) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}
