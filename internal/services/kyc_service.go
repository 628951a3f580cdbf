package services

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"carwash/internal/authz"
	"carwash/internal/metrics"
	"carwash/internal/models"
	"carwash/internal/repositories"
)

const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"

	defaultPendingLimit = 50
	maxPendingLimit     = 200
)

var requiredDocuments = map[string][]models.DocumentType{
	authz.RoleCustomer: {models.DocNationalID},
	authz.RoleDetailer: {models.DocNationalID, models.DocProofOfAddress},
	authz.RoleOwner:    {models.DocNationalID, models.DocBusinessLicense, models.DocTaxCertificate},
}

// RequiredDocuments — document types a role must have verified before review.
// Roles outside KYC get nil.
func RequiredDocuments(role string) []models.DocumentType {
	req := requiredDocuments[role]
	if req == nil {
		return nil
	}
	return append([]models.DocumentType(nil), req...)
}

// missingDocuments — required minus verified, in required order.
func missingDocuments(required, verified []models.DocumentType) []models.DocumentType {
	have := make(map[models.DocumentType]bool, len(verified))
	for _, t := range verified {
		have[t] = true
	}
	missing := []models.DocumentType{}
	for _, t := range required {
		if !have[t] {
			missing = append(missing, t)
		}
	}
	return missing
}

// AdminAlerter pings back-office staff (Telegram in production).
type AdminAlerter interface {
	NotifyAdmins(ctx context.Context, text string) error
}

// StatusMailer tells a user the outcome of a review.
type StatusMailer interface {
	SendKYCStatusEmail(to, name string, status models.KYCStatus, reason string) error
}

type KYCService struct {
	Store         repositories.Store
	Audit         *AuditLogger
	Notifications *NotificationService
	Alerter       AdminAlerter
	Mailer        StatusMailer
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
	Now           func() time.Time
}

func NewKYCService(store repositories.Store, audit *AuditLogger, notifications *NotificationService, m *metrics.Metrics, logger *zap.Logger) *KYCService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KYCService{
		Store:         store,
		Audit:         audit,
		Notifications: notifications,
		Metrics:       m,
		Logger:        logger,
		Now:           time.Now,
	}
}

// CheckAndPromote moves an incomplete profile to pending_review once every
// required document type is verified. Any other status is left alone.
func (s *KYCService) CheckAndPromote(ctx context.Context, userID int) (bool, error) {
	var (
		promoted bool
		user     *models.User
	)
	err := runTx(ctx, s.Store, func(tx repositories.Repos) error {
		u, err := tx.Users().GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}
		p, err := tx.Profiles().GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if p == nil || p.KYCStatus != models.KYCIncomplete {
			return nil
		}
		required := requiredDocuments[u.Role]
		if len(required) == 0 {
			return nil
		}
		verified, err := tx.Documents().VerifiedTypes(ctx, userID)
		if err != nil {
			return err
		}
		if len(missingDocuments(required, verified)) > 0 {
			return nil
		}

		now := s.now()
		p.KYCStatus = models.KYCPendingReview
		p.KYCSubmittedAt = &now
		p.UpdatedAt = now
		if err := tx.Profiles().Update(ctx, p); err != nil {
			return err
		}
		if err := tx.Users().UpdateStatus(ctx, userID, models.UserStatusPending, now); err != nil {
			return err
		}
		if err := s.Audit.Append(ctx, tx, userID, models.ActionSubmittedForReview, SystemActor, map[string]any{
			"from":               models.KYCIncomplete,
			"to":                 models.KYCPendingReview,
			"verified_documents": verified,
		}, models.AuditMeta{}); err != nil {
			return err
		}
		promoted, user = true, u
		return nil
	})
	if err != nil || !promoted {
		return false, err
	}

	s.Metrics.Transition(string(models.KYCPendingReview))
	s.Logger.Info("kyc submitted for review", zap.Int("user_id", userID), zap.String("role", user.Role))
	s.notify(ctx, userID, "kyc_submitted", "KYC submitted",
		"All required documents are verified. Your profile is waiting for review.")
	if s.Alerter != nil {
		text := fmt.Sprintf("🆕 <b>KYC на проверку</b>\nUser #%d (%s), role: %s",
			userID, html.EscapeString(user.Name), user.Role)
		if err := s.Alerter.NotifyAdmins(ctx, text); err != nil {
			s.Logger.Warn("admin alert failed", zap.Int("user_id", userID), zap.Error(err))
		}
	}
	return true, nil
}

// Review records the admin decision for a profile in pending_review.
func (s *KYCService) Review(ctx context.Context, adminID int, adminRole string, userID int, decision, notes string, meta models.AuditMeta) (*models.KYCProfile, error) {
	if !authz.IsAdmin(adminRole) {
		return nil, ErrForbidden
	}
	decision = strings.ToLower(strings.TrimSpace(decision))
	notes = strings.TrimSpace(notes)

	var (
		target     models.KYCStatus
		action     string
		userStatus string
	)
	switch decision {
	case DecisionApprove:
		target, action, userStatus = models.KYCVerified, models.ActionApproved, models.UserStatusActive
	case DecisionReject:
		if notes == "" {
			return nil, invalidInput("notes are required to reject")
		}
		target, action, userStatus = models.KYCRejected, models.ActionRejected, models.UserStatusRejected
	default:
		return nil, invalidInput("decision must be %q or %q", DecisionApprove, DecisionReject)
	}

	var (
		out  *models.KYCProfile
		user *models.User
	)
	err := runTx(ctx, s.Store, func(tx repositories.Repos) error {
		p, err := tx.Profiles().GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrProfileNotFound
		}
		if !canTransition(p.KYCStatus, target) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.KYCStatus, target)
		}
		u, err := tx.Users().GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}

		now := s.now()
		from := p.KYCStatus
		p.KYCStatus = target
		p.KYCReviewedAt = &now
		p.KYCReviewedBy = &adminID
		p.RejectionReason = ""
		if target == models.KYCRejected {
			p.RejectionReason = notes
		}
		p.UpdatedAt = now
		if err := tx.Profiles().Update(ctx, p); err != nil {
			return err
		}
		if err := tx.Users().UpdateStatus(ctx, userID, userStatus, now); err != nil {
			return err
		}
		if err := s.Audit.Append(ctx, tx, userID, action, adminID, map[string]any{
			"from":     from,
			"to":       target,
			"decision": decision,
			"notes":    notes,
		}, meta); err != nil {
			return err
		}
		out, user = p, u
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Metrics.Transition(string(target))
	s.Logger.Info("kyc reviewed",
		zap.Int("user_id", userID), zap.Int("admin_id", adminID), zap.String("decision", decision))

	title, msg := "KYC approved", "Your account is verified and active."
	if target == models.KYCRejected {
		title, msg = "KYC rejected", "Your KYC was rejected: "+notes
	}
	s.notify(ctx, userID, "kyc_reviewed", title, msg)
	if s.Mailer != nil && user.Email != "" {
		if err := s.Mailer.SendKYCStatusEmail(user.Email, user.Name, target, out.RejectionReason); err != nil {
			s.Logger.Warn("kyc status email failed", zap.Int("user_id", userID), zap.Error(err))
		}
	}
	return out, nil
}

// Resubmit returns a rejected profile to incomplete and re-runs promotion, so
// a user whose documents are still verified goes straight back to review.
func (s *KYCService) Resubmit(ctx context.Context, userID int, meta models.AuditMeta) (*models.KYCProfile, error) {
	err := runTx(ctx, s.Store, func(tx repositories.Repos) error {
		p, err := tx.Profiles().GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrProfileNotFound
		}
		if !canTransition(p.KYCStatus, models.KYCIncomplete) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.KYCStatus, models.KYCIncomplete)
		}
		now := s.now()
		reason := p.RejectionReason
		p.KYCStatus = models.KYCIncomplete
		p.RejectionReason = ""
		p.KYCSubmittedAt = nil
		p.UpdatedAt = now
		if err := tx.Profiles().Update(ctx, p); err != nil {
			return err
		}
		if err := tx.Users().UpdateStatus(ctx, userID, models.UserStatusPending, now); err != nil {
			return err
		}
		return s.Audit.Append(ctx, tx, userID, models.ActionResubmitted, userID, map[string]any{
			"from":            models.KYCRejected,
			"to":              models.KYCIncomplete,
			"previous_reason": reason,
		}, meta)
	})
	if err != nil {
		return nil, err
	}
	s.Metrics.Transition(string(models.KYCIncomplete))

	if _, err := s.CheckAndPromote(ctx, userID); err != nil {
		s.Logger.Error("kyc promotion after resubmit failed", zap.Int("user_id", userID), zap.Error(err))
	}
	p, err := s.Store.Profiles().GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProfileNotFound
	}
	return p, nil
}

func (s *KYCService) GetStatus(ctx context.Context, userID int, role string) (*models.KYCStatusReport, error) {
	p, err := s.Store.Profiles().GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProfileNotFound
	}
	if u, err := s.Store.Users().GetByID(ctx, userID); err == nil && u != nil {
		role = u.Role
	}
	verified, err := s.Store.Documents().VerifiedTypes(ctx, userID)
	if err != nil {
		return nil, err
	}
	if verified == nil {
		verified = []models.DocumentType{}
	}
	sort.Slice(verified, func(i, j int) bool { return verified[i] < verified[j] })
	required := RequiredDocuments(role)
	if required == nil {
		required = []models.DocumentType{}
	}
	return &models.KYCStatusReport{
		UserID:        userID,
		Role:          role,
		KYCStatus:     p.KYCStatus,
		PhoneVerified: p.PhoneVerified,
		EmailVerified: p.EmailVerified,
		Required:      required,
		Verified:      verified,
		Missing:       missingDocuments(required, verified),
		SubmittedAt:   p.KYCSubmittedAt,
		ReviewedAt:    p.KYCReviewedAt,
		Reason:        p.RejectionReason,
	}, nil
}

// ListPending — oldest submissions first.
func (s *KYCService) ListPending(ctx context.Context, limit, offset int) ([]*models.KYCProfile, error) {
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	if limit > maxPendingLimit {
		limit = maxPendingLimit
	}
	if offset < 0 {
		offset = 0
	}
	items, err := s.Store.Profiles().ListByStatus(ctx, models.KYCPendingReview, limit, offset)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*models.KYCProfile{}
	}
	return items, nil
}

func (s *KYCService) notify(ctx context.Context, userID int, typ, title, msg string) {
	if s.Notifications == nil {
		return
	}
	if err := s.Notifications.Notify(ctx, userID, typ, title, msg); err != nil {
		s.Logger.Warn("inbox notification failed", zap.Int("user_id", userID), zap.Error(err))
	}
}

func (s *KYCService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
