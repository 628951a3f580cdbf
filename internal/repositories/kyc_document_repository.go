package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"carwash/internal/models"
)

type KYCDocumentRepository interface {
	Create(ctx context.Context, doc *models.KYCDocument) error
	GetByID(ctx context.Context, id int64) (*models.KYCDocument, error)
	ListByUser(ctx context.Context, userID int) ([]*models.KYCDocument, error)
	VerifiedTypes(ctx context.Context, userID int) ([]models.DocumentType, error)
	UpdateVerification(ctx context.Context, id int64, status models.VerificationStatus, notes string, verifiedAt *time.Time, at time.Time) error
	Delete(ctx context.Context, id int64) error
}

type kycDocumentRepository struct{ db DBTX }

const documentColumns = `id, user_id, document_type, document_number, front_image_url, back_image_url,
	expiry_date, verification_status, verification_notes, verified_at, created_at, updated_at`

func scanDocument(row rowScanner) (*models.KYCDocument, error) {
	var (
		d        models.KYCDocument
		docType  string
		number   sql.NullString
		back     sql.NullString
		expiry   sql.NullTime
		status   string
		notes    sql.NullString
		verified sql.NullTime
	)
	if err := row.Scan(&d.ID, &d.UserID, &docType, &number, &d.FrontImageURL, &back,
		&expiry, &status, &notes, &verified, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.DocumentType = models.DocumentType(docType)
	d.DocumentNumber = number.String
	d.BackImageURL = back.String
	if expiry.Valid {
		t := expiry.Time
		d.ExpiryDate = &t
	}
	d.VerificationStatus = models.VerificationStatus(status)
	d.VerificationNotes = notes.String
	if verified.Valid {
		t := verified.Time
		d.VerifiedAt = &t
	}
	return &d, nil
}

func (r *kycDocumentRepository) Create(ctx context.Context, doc *models.KYCDocument) error {
	const q = `
		INSERT INTO kyc_documents (user_id, document_type, document_number, front_image_url, back_image_url,
			expiry_date, verification_status, verification_notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING id`
	doc.UpdatedAt = doc.CreatedAt
	if err := r.db.QueryRowContext(ctx, q,
		doc.UserID,
		string(doc.DocumentType),
		nullString(doc.DocumentNumber),
		doc.FrontImageURL,
		nullString(doc.BackImageURL),
		doc.ExpiryDate, // nil ок
		string(doc.VerificationStatus),
		nullString(doc.VerificationNotes),
		doc.CreatedAt,
	).Scan(&doc.ID); err != nil {
		return fmt.Errorf("create kyc document: %w", err)
	}
	return nil
}

func (r *kycDocumentRepository) GetByID(ctx context.Context, id int64) (*models.KYCDocument, error) {
	d, err := scanDocument(r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM kyc_documents WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get kyc document: %w", err)
	}
	return d, nil
}

func (r *kycDocumentRepository) ListByUser(ctx context.Context, userID int) ([]*models.KYCDocument, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM kyc_documents WHERE user_id=$1 ORDER BY id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list kyc documents: %w", err)
	}
	defer rows.Close()

	var res []*models.KYCDocument
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan kyc document: %w", err)
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r *kycDocumentRepository) VerifiedTypes(ctx context.Context, userID int) ([]models.DocumentType, error) {
	const q = `
		SELECT DISTINCT document_type
		FROM kyc_documents
		WHERE user_id=$1 AND verification_status=$2
		ORDER BY document_type`
	rows, err := r.db.QueryContext(ctx, q, userID, string(models.DocVerified))
	if err != nil {
		return nil, fmt.Errorf("verified document types: %w", err)
	}
	defer rows.Close()

	var res []models.DocumentType
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		res = append(res, models.DocumentType(t))
	}
	return res, rows.Err()
}

func (r *kycDocumentRepository) UpdateVerification(ctx context.Context, id int64, status models.VerificationStatus, notes string, verifiedAt *time.Time, at time.Time) error {
	const q = `
		UPDATE kyc_documents
		SET verification_status=$1, verification_notes=$2, verified_at=$3, updated_at=$4
		WHERE id=$5`
	res, err := r.db.ExecContext(ctx, q, string(status), nullString(notes), verifiedAt, at, id)
	if err != nil {
		return fmt.Errorf("update document verification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document verification: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *kycDocumentRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM kyc_documents WHERE id=$1`, id); err != nil {
		return fmt.Errorf("delete kyc document: %w", err)
	}
	return nil
}
