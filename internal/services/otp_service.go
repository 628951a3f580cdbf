package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"carwash/internal/metrics"
	"carwash/internal/models"
	"carwash/internal/repositories"
)

const (
	defaultCodeTTL     = 10 * time.Minute
	defaultMaxAttempts = 5
	defaultMaxSends    = 3
	defaultSendWindow  = 10 * time.Minute
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{9,15}$`)

// SMSSender — external SMS provider.
type SMSSender interface {
	SendSMS(ctx context.Context, to, text string) (string, error)
}

// VerificationMailer delivers email codes.
type VerificationMailer interface {
	SendVerificationCode(email, code string, ttl time.Duration) error
}

// SendLimiter — shared fixed-window counter (Redis). When nil or failing the
// service counts recent rows in the database instead.
type SendLimiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

type OTPService struct {
	Store   repositories.Store
	Audit   *AuditLogger
	SMS     SMSSender
	Mailer  VerificationMailer
	Limiter SendLimiter
	Metrics *metrics.Metrics
	Logger  *zap.Logger

	TTL         time.Duration
	MaxAttempts int
	MaxSends    int
	SendWindow  time.Duration
	HashCost    int

	Now          func() time.Time
	GenerateCode func() (string, error)
}

func NewOTPService(store repositories.Store, audit *AuditLogger, sms SMSSender, mailer VerificationMailer, m *metrics.Metrics, logger *zap.Logger) *OTPService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OTPService{
		Store:        store,
		Audit:        audit,
		SMS:          sms,
		Mailer:       mailer,
		Metrics:      m,
		Logger:       logger,
		TTL:          defaultCodeTTL,
		MaxAttempts:  defaultMaxAttempts,
		MaxSends:     defaultMaxSends,
		SendWindow:   defaultSendWindow,
		HashCost:     bcrypt.DefaultCost,
		Now:          time.Now,
		GenerateCode: GenerateCode,
	}
}

// GenerateCode — uniform 6-digit code in [100000, 999999].
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func normalizePhone(phone string) (string, error) {
	p := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(phone))
	if !phonePattern.MatchString(p) {
		return "", invalidInput("invalid phone number")
	}
	return p, nil
}

func normalizeEmail(email string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Address != strings.TrimSpace(email) {
		return "", invalidInput("invalid email address")
	}
	return strings.ToLower(addr.Address), nil
}

// ================== PHONE ==================

func (s *OTPService) SendPhoneOTP(ctx context.Context, userID int, phone string) error {
	phone, err := normalizePhone(phone)
	if err != nil {
		return err
	}
	if err := s.allowSend(ctx, "phone", userID, s.Store.PhoneVerifications().CountSince); err != nil {
		return err
	}

	code, hash, err := s.newCode()
	if err != nil {
		return err
	}
	now := s.now()
	rec := &models.PhoneVerification{
		UserID:    userID,
		Phone:     phone,
		CodeHash:  hash,
		ExpiresAt: now.Add(s.ttl()),
		CreatedAt: now,
	}
	if err := s.Store.PhoneVerifications().Create(ctx, rec); err != nil {
		return fmt.Errorf("store phone code: %w", err)
	}

	text := fmt.Sprintf("Carwash: код подтверждения %s", code)
	if _, err := s.SMS.SendSMS(ctx, phone, text); err != nil {
		s.Metrics.OTP("phone", "send_failed")
		return fmt.Errorf("sms provider: %w", err)
	}
	s.Metrics.OTP("phone", "sent")
	s.Logger.Info("phone otp sent", zap.Int("user_id", userID), zap.Int64("verification_id", rec.ID))
	return nil
}

// VerifyPhoneOTP accepts the newest unexpired, unverified code for
// (userID, phone) that matches. A miss counts against every live code; once
// one of them reaches MaxAttempts all live codes for the phone are expired.
func (s *OTPService) VerifyPhoneOTP(ctx context.Context, userID int, phone, code string, meta models.AuditMeta) error {
	phone, err := normalizePhone(phone)
	if err != nil {
		return err
	}
	code = strings.TrimSpace(code)
	now := s.now()

	var matched, locked bool
	err = runTx(ctx, s.Store, func(tx repositories.Repos) error {
		repo := tx.PhoneVerifications()
		candidates, err := repo.ListActive(ctx, userID, phone, now)
		if err != nil {
			return err
		}
		var hit *models.PhoneVerification
		for _, c := range candidates {
			if bcrypt.CompareHashAndPassword([]byte(c.CodeHash), []byte(code)) != nil {
				continue
			}
			if err := repo.MarkVerified(ctx, c.ID); err != nil {
				if errors.Is(err, repositories.ErrAlreadyConsumed) {
					continue
				}
				return err
			}
			hit = c
			break
		}

		if hit == nil {
			if len(candidates) == 0 {
				// живых кодов нет: attempts+1 на последнем неподтверждённом
				latest, err := repo.LatestUnverified(ctx, userID, phone)
				if err != nil || latest == nil {
					return err
				}
				_, err = repo.IncrementAttempts(ctx, latest.ID)
				return err
			}
			ids := make([]int64, len(candidates))
			for i, c := range candidates {
				ids[i] = c.ID
			}
			locked, err = s.registerMiss(ctx, ids, repo.IncrementAttempts, func(ctx context.Context) error {
				return repo.ExpireActive(ctx, userID, phone, now)
			})
			return err
		}

		matched = true
		p, err := tx.Profiles().GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrProfileNotFound
		}
		if !p.PhoneVerified {
			p.PhoneVerified = true
			p.UpdatedAt = now
			if err := tx.Profiles().Update(ctx, p); err != nil {
				return err
			}
		}
		return s.Audit.Append(ctx, tx, userID, models.ActionPhoneVerified, userID, map[string]any{
			"phone":           phone,
			"verification_id": hit.ID,
		}, meta)
	})
	if err != nil {
		return err
	}
	if !matched {
		s.Metrics.OTP("phone", "rejected")
		if locked {
			s.Logger.Warn("phone otp locked after failed attempts", zap.Int("user_id", userID))
			return ErrTooManyAttempts
		}
		return ErrExpiredOrInvalidCode
	}
	s.Metrics.OTP("phone", "verified")
	s.Logger.Info("phone verified", zap.Int("user_id", userID))
	return nil
}

// ================== EMAIL ==================

func (s *OTPService) SendEmailVerification(ctx context.Context, userID int, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if err := s.allowSend(ctx, "email", userID, s.Store.EmailVerifications().CountSince); err != nil {
		return err
	}

	code, hash, err := s.newCode()
	if err != nil {
		return err
	}
	now := s.now()
	rec := &models.EmailVerification{
		UserID:    userID,
		Email:     email,
		CodeHash:  hash,
		ExpiresAt: now.Add(s.ttl()),
		CreatedAt: now,
	}
	if err := s.Store.EmailVerifications().Create(ctx, rec); err != nil {
		return fmt.Errorf("store email code: %w", err)
	}
	if err := s.Mailer.SendVerificationCode(email, code, s.ttl()); err != nil {
		s.Metrics.OTP("email", "send_failed")
		return err
	}
	s.Metrics.OTP("email", "sent")
	s.Logger.Info("email code sent", zap.Int("user_id", userID), zap.Int64("verification_id", rec.ID))
	return nil
}

// VerifyEmail — same rules as the phone code. Returns the verified user id.
func (s *OTPService) VerifyEmail(ctx context.Context, userID int, email, code string, meta models.AuditMeta) (int, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return 0, err
	}
	code = strings.TrimSpace(code)
	now := s.now()

	var matched, locked bool
	err = runTx(ctx, s.Store, func(tx repositories.Repos) error {
		repo := tx.EmailVerifications()
		candidates, err := repo.ListActive(ctx, userID, email, now)
		if err != nil {
			return err
		}
		var hit *models.EmailVerification
		for _, c := range candidates {
			if bcrypt.CompareHashAndPassword([]byte(c.CodeHash), []byte(code)) != nil {
				continue
			}
			if err := repo.MarkVerified(ctx, c.ID); err != nil {
				if errors.Is(err, repositories.ErrAlreadyConsumed) {
					continue
				}
				return err
			}
			hit = c
			break
		}
		if hit == nil {
			ids := make([]int64, len(candidates))
			for i, c := range candidates {
				ids[i] = c.ID
			}
			locked, err = s.registerMiss(ctx, ids, repo.IncrementAttempts, func(ctx context.Context) error {
				return repo.ExpireActive(ctx, userID, email, now)
			})
			return err
		}

		matched = true
		p, err := tx.Profiles().GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrProfileNotFound
		}
		if !p.EmailVerified {
			p.EmailVerified = true
			p.UpdatedAt = now
			if err := tx.Profiles().Update(ctx, p); err != nil {
				return err
			}
		}
		return s.Audit.Append(ctx, tx, userID, models.ActionEmailVerified, userID, map[string]any{
			"email":           email,
			"verification_id": hit.ID,
		}, meta)
	})
	if err != nil {
		return 0, err
	}
	if !matched {
		s.Metrics.OTP("email", "rejected")
		if locked {
			s.Logger.Warn("email code locked after failed attempts", zap.Int("user_id", userID))
			return 0, ErrTooManyAttempts
		}
		return 0, ErrExpiredOrInvalidCode
	}
	s.Metrics.OTP("email", "verified")
	return userID, nil
}

// ================== ОБЩЕЕ ==================

func (s *OTPService) allowSend(ctx context.Context, channel string, userID int, countSince func(context.Context, int, time.Time) (int, error)) error {
	if s.Limiter != nil {
		ok, retry, err := s.Limiter.Allow(ctx, fmt.Sprintf("%s:%d", channel, userID))
		if err == nil {
			if !ok {
				s.Metrics.OTP(channel, "throttled")
				return fmt.Errorf("%w: retry in %s", ErrResendThrottled, retry.Round(time.Second))
			}
			return nil
		}
		s.Logger.Warn("rate limiter unavailable, counting in db", zap.String("channel", channel), zap.Error(err))
	}

	window := s.SendWindow
	if window <= 0 {
		window = defaultSendWindow
	}
	limit := s.MaxSends
	if limit <= 0 {
		limit = defaultMaxSends
	}
	n, err := countSince(ctx, userID, s.now().Add(-window))
	if err != nil {
		return err
	}
	if n >= limit {
		s.Metrics.OTP(channel, "throttled")
		return ErrResendThrottled
	}
	return nil
}

// registerMiss adds a failed attempt to every live code and expires them all
// as soon as one reaches MaxAttempts. Reports whether that happened.
func (s *OTPService) registerMiss(ctx context.Context, ids []int64,
	increment func(context.Context, int64) (int, error), expireAll func(context.Context) error) (bool, error) {
	locked := false
	for _, id := range ids {
		attempts, err := increment(ctx, id)
		if err != nil {
			return false, err
		}
		if attempts >= s.maxAttempts() {
			locked = true
		}
	}
	if !locked {
		return false, nil
	}
	return true, expireAll(ctx)
}

func (s *OTPService) newCode() (code, hash string, err error) {
	gen := s.GenerateCode
	if gen == nil {
		gen = GenerateCode
	}
	code, err = gen()
	if err != nil {
		return "", "", err
	}
	cost := s.HashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(code), cost)
	if err != nil {
		return "", "", fmt.Errorf("bcrypt generate: %w", err)
	}
	return code, string(b), nil
}

func (s *OTPService) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return defaultCodeTTL
}

func (s *OTPService) maxAttempts() int {
	if s.MaxAttempts > 0 {
		return s.MaxAttempts
	}
	return defaultMaxAttempts
}

func (s *OTPService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
