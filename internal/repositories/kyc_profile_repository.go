package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"carwash/internal/models"
)

type KYCProfileRepository interface {
	Create(ctx context.Context, p *models.KYCProfile) error
	GetByUserID(ctx context.Context, userID int) (*models.KYCProfile, error)
	// GetForUpdate — same as GetByUserID but locks the row until the tx ends.
	GetForUpdate(ctx context.Context, userID int) (*models.KYCProfile, error)
	// Update writes p if p.Version is still current, then bumps p.Version.
	Update(ctx context.Context, p *models.KYCProfile) error
	ListByStatus(ctx context.Context, status models.KYCStatus, limit, offset int) ([]*models.KYCProfile, error)
}

type kycProfileRepository struct {
	db DBTX
}

const profileColumns = `
	user_id, full_name, date_of_birth, national_id, address, city, postal_code, country,
	phone_verified, email_verified,
	preferred_payment_method,
	years_of_experience, certifications, insurance_number, emergency_contact, emergency_phone,
	business_name, business_registration_number, tax_identification_number, number_of_employees,
	business_address, bank_name, bank_account_number, bank_account_name,
	kyc_status, kyc_submitted_at, kyc_reviewed_at, kyc_reviewed_by, rejection_reason,
	version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*models.KYCProfile, error) {
	var (
		p          models.KYCProfile
		dob        sql.NullTime
		nationalID sql.NullString
		address    sql.NullString
		city       sql.NullString
		postal     sql.NullString
		payMethod  sql.NullString
		years      sql.NullInt64
		certs      sql.NullString
		insurance  sql.NullString
		emContact  sql.NullString
		emPhone    sql.NullString
		bizName    sql.NullString
		bizReg     sql.NullString
		taxID      sql.NullString
		employees  sql.NullInt64
		bizAddr    sql.NullString
		bankName   sql.NullString
		bankAcc    sql.NullString
		bankAccNm  sql.NullString
		status     string
		submitted  sql.NullTime
		reviewed   sql.NullTime
		reviewedBy sql.NullInt64
		reason     sql.NullString
	)
	err := row.Scan(
		&p.UserID, &p.FullName, &dob, &nationalID, &address, &city, &postal, &p.Country,
		&p.PhoneVerified, &p.EmailVerified,
		&payMethod,
		&years, &certs, &insurance, &emContact, &emPhone,
		&bizName, &bizReg, &taxID, &employees,
		&bizAddr, &bankName, &bankAcc, &bankAccNm,
		&status, &submitted, &reviewed, &reviewedBy, &reason,
		&p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if dob.Valid {
		t := dob.Time
		p.DateOfBirth = &t
	}
	p.NationalID = nationalID.String
	p.Address = address.String
	p.City = city.String
	p.PostalCode = postal.String
	p.PreferredPaymentMethod = payMethod.String
	if years.Valid {
		v := int(years.Int64)
		p.YearsOfExperience = &v
	}
	p.Certifications = certs.String
	p.InsuranceNumber = insurance.String
	p.EmergencyContact = emContact.String
	p.EmergencyPhone = emPhone.String
	p.BusinessName = bizName.String
	p.BusinessRegistrationNumber = bizReg.String
	p.TaxIdentificationNumber = taxID.String
	if employees.Valid {
		v := int(employees.Int64)
		p.NumberOfEmployees = &v
	}
	p.BusinessAddress = bizAddr.String
	p.BankName = bankName.String
	p.BankAccountNumber = bankAcc.String
	p.BankAccountName = bankAccNm.String
	p.KYCStatus = models.KYCStatus(status)
	if submitted.Valid {
		t := submitted.Time
		p.KYCSubmittedAt = &t
	}
	if reviewed.Valid {
		t := reviewed.Time
		p.KYCReviewedAt = &t
	}
	if reviewedBy.Valid {
		v := int(reviewedBy.Int64)
		p.KYCReviewedBy = &v
	}
	p.RejectionReason = reason.String
	return &p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func (r *kycProfileRepository) Create(ctx context.Context, p *models.KYCProfile) error {
	const q = `
		INSERT INTO kyc_profiles (` + profileColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32)
	`
	if p.Version == 0 {
		p.Version = 1
	}
	_, err := r.db.ExecContext(ctx, q, profileArgs(p)...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create kyc profile: %w", err)
	}
	return nil
}

func profileArgs(p *models.KYCProfile) []any {
	return []any{
		p.UserID, p.FullName, p.DateOfBirth, nullString(p.NationalID), nullString(p.Address),
		nullString(p.City), nullString(p.PostalCode), p.Country,
		p.PhoneVerified, p.EmailVerified,
		nullString(p.PreferredPaymentMethod),
		nullInt(p.YearsOfExperience), nullString(p.Certifications), nullString(p.InsuranceNumber),
		nullString(p.EmergencyContact), nullString(p.EmergencyPhone),
		nullString(p.BusinessName), nullString(p.BusinessRegistrationNumber),
		nullString(p.TaxIdentificationNumber), nullInt(p.NumberOfEmployees),
		nullString(p.BusinessAddress), nullString(p.BankName), nullString(p.BankAccountNumber),
		nullString(p.BankAccountName),
		string(p.KYCStatus), p.KYCSubmittedAt, p.KYCReviewedAt, nullInt(p.KYCReviewedBy),
		nullString(p.RejectionReason),
		p.Version, p.CreatedAt, p.UpdatedAt,
	}
}

func (r *kycProfileRepository) GetByUserID(ctx context.Context, userID int) (*models.KYCProfile, error) {
	return r.get(ctx, `SELECT `+profileColumns+` FROM kyc_profiles WHERE user_id = $1`, userID)
}

func (r *kycProfileRepository) GetForUpdate(ctx context.Context, userID int) (*models.KYCProfile, error) {
	return r.get(ctx, `SELECT `+profileColumns+` FROM kyc_profiles WHERE user_id = $1 FOR UPDATE`, userID)
}

func (r *kycProfileRepository) get(ctx context.Context, q string, userID int) (*models.KYCProfile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx, q, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get kyc profile: %w", err)
	}
	return p, nil
}

func (r *kycProfileRepository) Update(ctx context.Context, p *models.KYCProfile) error {
	const q = `
		UPDATE kyc_profiles SET
			full_name=$2, date_of_birth=$3, national_id=$4, address=$5, city=$6, postal_code=$7, country=$8,
			phone_verified=$9, email_verified=$10,
			preferred_payment_method=$11,
			years_of_experience=$12, certifications=$13, insurance_number=$14, emergency_contact=$15, emergency_phone=$16,
			business_name=$17, business_registration_number=$18, tax_identification_number=$19, number_of_employees=$20,
			business_address=$21, bank_name=$22, bank_account_number=$23, bank_account_name=$24,
			kyc_status=$25, kyc_submitted_at=$26, kyc_reviewed_at=$27, kyc_reviewed_by=$28, rejection_reason=$29,
			version=$30 + 1, created_at=$31, updated_at=$32
		WHERE user_id=$1 AND version=$30
	`
	res, err := r.db.ExecContext(ctx, q, profileArgs(p)...)
	if err != nil {
		return fmt.Errorf("update kyc profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update kyc profile: %w", err)
	}
	if n == 0 {
		return ErrVersionConflict
	}
	p.Version++
	return nil
}

func (r *kycProfileRepository) ListByStatus(ctx context.Context, status models.KYCStatus, limit, offset int) ([]*models.KYCProfile, error) {
	q := `SELECT ` + profileColumns + `
		FROM kyc_profiles
		WHERE kyc_status = $1
		ORDER BY kyc_submitted_at ASC NULLS LAST, user_id ASC
		LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, q, string(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list kyc profiles: %w", err)
	}
	defer rows.Close()

	var res []*models.KYCProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan kyc profile: %w", err)
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
