package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	ErrDuplicate       = errors.New("duplicate record")
	ErrVersionConflict = errors.New("version conflict")
	ErrAlreadyConsumed = errors.New("already consumed")
)

// DBTX — общее подмножество *sql.DB и *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repos gives access to every repository bound to one connection or transaction.
type Repos interface {
	Users() UserRepository
	Profiles() KYCProfileRepository
	Documents() KYCDocumentRepository
	PhoneVerifications() PhoneVerificationRepository
	EmailVerifications() EmailVerificationRepository
	Audit() AuditLogRepository
	Notifications() NotificationRepository
}

// Store — repositories outside a transaction plus a unit of work.
// fn's writes are committed together or not at all.
type Store interface {
	Repos
	WithTx(ctx context.Context, fn func(tx Repos) error) error
}

type pgRepos struct{ db DBTX }

func (r pgRepos) Users() UserRepository { return &userRepository{db: r.db} }
func (r pgRepos) Profiles() KYCProfileRepository { return &kycProfileRepository{db: r.db} }
func (r pgRepos) Documents() KYCDocumentRepository {
	return &kycDocumentRepository{db: r.db}
}
func (r pgRepos) PhoneVerifications() PhoneVerificationRepository {
	return &phoneVerificationRepository{db: r.db}
}
func (r pgRepos) EmailVerifications() EmailVerificationRepository {
	return &emailVerificationRepository{db: r.db}
}
func (r pgRepos) Audit() AuditLogRepository { return &auditLogRepository{db: r.db} }
func (r pgRepos) Notifications() NotificationRepository {
	return &notificationRepository{db: r.db}
}

type PostgresStore struct {
	pgRepos
	DB *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{pgRepos: pgRepos{db: db}, DB: db}
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Repos) error) (err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
		}
	}()

	if err = fn(pgRepos{db: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// isUniqueViolation — 23505 unique_violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
