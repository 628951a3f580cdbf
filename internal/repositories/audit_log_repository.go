package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"carwash/internal/models"
)

// AuditLogRepository is insert-only.
type AuditLogRepository interface {
	Append(ctx context.Context, e *models.KYCAuditLogEntry) error
	ListByUser(ctx context.Context, userID, limit int) ([]*models.KYCAuditLogEntry, error)
}

type auditLogRepository struct{ db DBTX }

func (r *auditLogRepository) Append(ctx context.Context, e *models.KYCAuditLogEntry) error {
	const q = `
		INSERT INTO kyc_audit_logs (user_id, action, changed_by, changes, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := r.db.QueryRowContext(ctx, q,
		e.UserID, e.Action, actorArg(e.ChangedBy), e.Changes,
		nullString(e.IPAddress), nullString(e.UserAgent), e.CreatedAt,
	).Scan(&e.ID); err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}
	return nil
}

func (r *auditLogRepository) ListByUser(ctx context.Context, userID, limit int) ([]*models.KYCAuditLogEntry, error) {
	const q = `
		SELECT id, user_id, action, changed_by, changes, ip_address, user_agent, created_at
		FROM kyc_audit_logs
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	defer rows.Close()

	var res []*models.KYCAuditLogEntry
	for rows.Next() {
		var (
			e     models.KYCAuditLogEntry
			actor sql.NullInt64
			ip    sql.NullString
			ua    sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &actor, &e.Changes, &ip, &ua, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		e.ChangedBy = int(actor.Int64)
		e.IPAddress = ip.String
		e.UserAgent = ua.String
		res = append(res, &e)
	}
	return res, rows.Err()
}

// actorArg — 0 is the system actor and is stored as NULL.
func actorArg(id int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(id), Valid: id != 0}
}
