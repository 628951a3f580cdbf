package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"carwash/internal/authz"
	"carwash/internal/models"
	"carwash/internal/repositories"
)

const defaultCountry = "Kenya"

type ProfileService struct {
	Store  repositories.Store
	Audit  *AuditLogger
	Logger *zap.Logger
	Now    func() time.Time
}

func NewProfileService(store repositories.Store, audit *AuditLogger, logger *zap.Logger) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileService{Store: store, Audit: audit, Logger: logger, Now: time.Now}
}

// fieldChange — одна строка диффа в audit.
type fieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

type profileDiff map[string]fieldChange

func (d profileDiff) str(name string, dst *string, v *string) {
	if v == nil {
		return
	}
	nv := strings.TrimSpace(*v)
	if nv == *dst {
		return
	}
	d[name] = fieldChange{Old: *dst, New: nv}
	*dst = nv
}

func (d profileDiff) num(name string, dst **int, v *int) {
	if v == nil || (*dst != nil && **dst == *v) {
		return
	}
	var old any
	if *dst != nil {
		old = **dst
	}
	nv := *v
	d[name] = fieldChange{Old: old, New: nv}
	*dst = &nv
}

func (d profileDiff) date(name string, dst **time.Time, v *time.Time) {
	if v == nil || (*dst != nil && (*dst).Equal(*v)) {
		return
	}
	var old any
	if *dst != nil {
		old = (*dst).Format(time.DateOnly)
	}
	nv := *v
	d[name] = fieldChange{Old: old, New: nv.Format(time.DateOnly)}
	*dst = &nv
}

// applyProfileInput writes common fields plus the group of role. Fields of
// other roles are ignored.
func applyProfileInput(p *models.KYCProfile, in *models.ProfileInput, role string) profileDiff {
	d := profileDiff{}
	d.str("full_name", &p.FullName, in.FullName)
	d.date("date_of_birth", &p.DateOfBirth, in.DateOfBirth)
	d.str("national_id", &p.NationalID, in.NationalID)
	d.str("address", &p.Address, in.Address)
	d.str("city", &p.City, in.City)
	d.str("postal_code", &p.PostalCode, in.PostalCode)
	if in.Country != nil && strings.TrimSpace(*in.Country) != "" {
		d.str("country", &p.Country, in.Country)
	}

	switch role {
	case authz.RoleCustomer:
		d.str("preferred_payment_method", &p.PreferredPaymentMethod, in.PreferredPaymentMethod)
	case authz.RoleDetailer:
		d.num("years_of_experience", &p.YearsOfExperience, in.YearsOfExperience)
		d.str("certifications", &p.Certifications, in.Certifications)
		d.str("insurance_number", &p.InsuranceNumber, in.InsuranceNumber)
		d.str("emergency_contact", &p.EmergencyContact, in.EmergencyContact)
		d.str("emergency_phone", &p.EmergencyPhone, in.EmergencyPhone)
	case authz.RoleOwner:
		d.str("business_name", &p.BusinessName, in.BusinessName)
		d.str("business_registration_number", &p.BusinessRegistrationNumber, in.BusinessRegistrationNumber)
		d.str("tax_identification_number", &p.TaxIdentificationNumber, in.TaxIdentificationNumber)
		d.num("number_of_employees", &p.NumberOfEmployees, in.NumberOfEmployees)
		d.str("business_address", &p.BusinessAddress, in.BusinessAddress)
		d.str("bank_name", &p.BankName, in.BankName)
		d.str("bank_account_number", &p.BankAccountNumber, in.BankAccountNumber)
		d.str("bank_account_name", &p.BankAccountName, in.BankAccountName)
	}
	return d
}

func (s *ProfileService) validate(in *models.ProfileInput, role string, now time.Time) error {
	if !authz.IsKYCRole(role) {
		return invalidInput("role %q has no kyc profile", role)
	}
	if in.FullName != nil && strings.TrimSpace(*in.FullName) == "" {
		return invalidInput("full_name must not be empty")
	}
	if in.DateOfBirth != nil && in.DateOfBirth.After(now) {
		return invalidInput("date_of_birth is in the future")
	}
	if role == authz.RoleDetailer && in.YearsOfExperience != nil && *in.YearsOfExperience < 0 {
		return invalidInput("years_of_experience must be >= 0")
	}
	if role == authz.RoleOwner && in.NumberOfEmployees != nil && *in.NumberOfEmployees < 0 {
		return invalidInput("number_of_employees must be >= 0")
	}
	return nil
}

func (s *ProfileService) CreateProfile(ctx context.Context, userID int, role string, in models.ProfileInput, meta models.AuditMeta) (*models.KYCProfile, error) {
	now := s.now()
	if in.FullName == nil || strings.TrimSpace(*in.FullName) == "" {
		return nil, invalidInput("full_name is required")
	}
	if err := s.validate(&in, role, now); err != nil {
		return nil, err
	}

	p := &models.KYCProfile{
		UserID:    userID,
		Country:   defaultCountry,
		KYCStatus: models.KYCIncomplete,
		CreatedAt: now,
		UpdatedAt: now,
	}
	diff := applyProfileInput(p, &in, role)

	err := runTx(ctx, s.Store, func(tx repositories.Repos) error {
		if err := tx.Profiles().Create(ctx, p); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				return ErrDuplicateProfile
			}
			return err
		}
		fields := make(map[string]any, len(diff))
		for k, v := range diff {
			fields[k] = v.New
		}
		return s.Audit.Append(ctx, tx, userID, models.ActionProfileCreated, userID, map[string]any{
			"role":       role,
			"kyc_status": p.KYCStatus,
			"fields":     fields,
		}, meta)
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("kyc profile created", zap.Int("user_id", userID), zap.String("role", role))
	return p, nil
}

// UpdateProfile applies the role-allowed part of in. An update that changes
// nothing writes nothing and returns the current profile.
func (s *ProfileService) UpdateProfile(ctx context.Context, userID int, role string, in models.ProfileInput, meta models.AuditMeta) (*models.KYCProfile, error) {
	now := s.now()
	if err := s.validate(&in, role, now); err != nil {
		return nil, err
	}

	var out *models.KYCProfile
	err := runTx(ctx, s.Store, func(tx repositories.Repos) error {
		p, err := tx.Profiles().GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrProfileNotFound
		}
		diff := applyProfileInput(p, &in, role)
		if len(diff) == 0 {
			out = p
			return nil
		}
		p.UpdatedAt = now
		if err := tx.Profiles().Update(ctx, p); err != nil {
			return err
		}
		if err := s.Audit.Append(ctx, tx, userID, models.ActionProfileUpdated, userID, diff, meta); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ProfileService) GetProfile(ctx context.Context, userID int) (*models.KYCProfile, error) {
	p, err := s.Store.Profiles().GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProfileNotFound
	}
	return p, nil
}

func (s *ProfileService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
