package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"carwash/internal/authz"
	"carwash/internal/metrics"
	"carwash/internal/models"
	"carwash/internal/repositories"
)

// Promoter re-evaluates a user's KYC status after a document became verified.
type Promoter interface {
	CheckAndPromote(ctx context.Context, userID int) (bool, error)
}

type DocumentService struct {
	Store      repositories.Store
	Audit      *AuditLogger
	Checker    *VerificationChecker
	Dispatcher Dispatcher
	Promoter   Promoter
	Files      FileStorage
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
	Now        func() time.Time
}

func NewDocumentService(store repositories.Store, audit *AuditLogger, checker *VerificationChecker, files FileStorage, m *metrics.Metrics, logger *zap.Logger) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{
		Store:   store,
		Audit:   audit,
		Checker: checker,
		Files:   files,
		Metrics: m,
		Logger:  logger,
		Now:     time.Now,
	}
}

func (s *DocumentService) validateUpload(in *models.UploadDocumentInput) error {
	if !in.DocumentType.Valid() {
		return invalidInput("unknown document_type %q", in.DocumentType)
	}
	in.FrontImageURL = strings.TrimSpace(in.FrontImageURL)
	in.BackImageURL = strings.TrimSpace(in.BackImageURL)
	in.DocumentNumber = strings.TrimSpace(in.DocumentNumber)
	if in.FrontImageURL == "" {
		return invalidInput("front_image_url is required")
	}
	if in.DocumentType.NeedsBackImage() && in.BackImageURL == "" {
		return invalidInput("back_image_url is required for %s", in.DocumentType)
	}
	// проверка скачивает картинки сама, поэтому принимаем только URL нашего хранилища
	for _, u := range []string{in.FrontImageURL, in.BackImageURL} {
		if u != "" && (s.Files == nil || !s.Files.Owns(u)) {
			return invalidInput("image url %q is not served by the file storage", u)
		}
	}
	return nil
}

// UploadDocument stores a pending document and queues its verification.
// The caller polls GetDocument for the verdict.
func (s *DocumentService) UploadDocument(ctx context.Context, userID int, in models.UploadDocumentInput, meta models.AuditMeta) (*models.KYCDocument, error) {
	if err := s.validateUpload(&in); err != nil {
		return nil, err
	}
	now := s.now()
	doc := &models.KYCDocument{
		UserID:             userID,
		DocumentType:       in.DocumentType,
		DocumentNumber:     in.DocumentNumber,
		FrontImageURL:      in.FrontImageURL,
		BackImageURL:       in.BackImageURL,
		ExpiryDate:         in.ExpiryDate,
		VerificationStatus: models.DocPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err := runTx(ctx, s.Store, func(tx repositories.Repos) error {
		if err := tx.Documents().Create(ctx, doc); err != nil {
			return err
		}
		return s.Audit.Append(ctx, tx, userID, models.ActionDocumentUploaded, userID, map[string]any{
			"document_id":   doc.ID,
			"document_type": doc.DocumentType,
		}, meta)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("kyc document uploaded",
		zap.Int("user_id", userID), zap.Int64("document_id", doc.ID), zap.String("document_type", string(doc.DocumentType)))

	if s.Dispatcher != nil {
		if err := s.Dispatcher.Dispatch(doc.ID); err != nil {
			// документ остаётся pending, админ может запустить reverify
			s.Logger.Warn("verification not queued", zap.Int64("document_id", doc.ID), zap.Error(err))
		}
	}
	return doc, nil
}

// UploadFile stores a raw image and returns its URL for UploadDocument.
func (s *DocumentService) UploadFile(ctx context.Context, userID int, filename string, r io.Reader) (string, error) {
	if s.Files == nil {
		return "", errors.New("file storage is not configured")
	}
	return s.Files.Save(ctx, userID, filename, r)
}

// GetDocument — foreign documents look exactly like missing ones.
func (s *DocumentService) GetDocument(ctx context.Context, id int64, requestingUserID int) (*models.KYCDocument, error) {
	doc, err := s.Store.Documents().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.UserID != requestingUserID {
		return nil, ErrNotFound
	}
	return doc, nil
}

func (s *DocumentService) ListDocuments(ctx context.Context, userID int) ([]*models.KYCDocument, error) {
	docs, err := s.Store.Documents().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []*models.KYCDocument{}
	}
	return docs, nil
}

func (s *DocumentService) DeleteDocument(ctx context.Context, id int64, requestingUserID int, meta models.AuditMeta) error {
	return runTx(ctx, s.Store, func(tx repositories.Repos) error {
		doc, err := tx.Documents().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if doc == nil || doc.UserID != requestingUserID {
			return ErrNotFoundOrForbidden
		}
		if err := tx.Documents().Delete(ctx, id); err != nil {
			return err
		}
		return s.Audit.Append(ctx, tx, doc.UserID, models.ActionDocumentDeleted, requestingUserID, map[string]any{
			"document_id":         doc.ID,
			"document_type":       doc.DocumentType,
			"verification_status": doc.VerificationStatus,
		}, meta)
	})
}

// Verify runs the checks and stores the verdict, replacing any previous one.
// A verified document triggers CheckAndPromote for its owner.
func (s *DocumentService) Verify(ctx context.Context, documentID int64) (models.Verdict, error) {
	started := time.Now()
	doc, err := s.Store.Documents().GetByID(ctx, documentID)
	if err != nil {
		return models.Verdict{}, err
	}
	if doc == nil {
		return models.Verdict{}, ErrNotFound
	}

	verdict, err := s.Checker.Run(ctx, doc)
	if err != nil {
		return models.Verdict{}, fmt.Errorf("run checks: %w", err)
	}
	notes, err := json.Marshal(verdict.Checks)
	if err != nil {
		return models.Verdict{}, fmt.Errorf("marshal verdict: %w", err)
	}

	status, action := models.DocPending, models.ActionDocumentCheckFailed
	var verifiedAt *time.Time
	if verdict.Verified {
		status, action = models.DocVerified, models.ActionDocumentVerified
		at := verdict.CheckedAt
		verifiedAt = &at
	}

	err = runTx(ctx, s.Store, func(tx repositories.Repos) error {
		cur, err := tx.Documents().GetByID(ctx, documentID)
		if err != nil {
			return err
		}
		if cur == nil {
			return ErrNotFound // удалён во время проверки
		}
		if err := tx.Documents().UpdateVerification(ctx, documentID, status, string(notes), verifiedAt, s.now()); err != nil {
			return err
		}
		return s.Audit.Append(ctx, tx, doc.UserID, action, SystemActor, map[string]any{
			"document_id":   doc.ID,
			"document_type": doc.DocumentType,
			"checks":        verdict.Checks,
		}, models.AuditMeta{})
	})
	if err != nil {
		return models.Verdict{}, err
	}

	s.Metrics.ObserveVerification(string(doc.DocumentType), verdict.Verified, time.Since(started))
	s.Logger.Info("kyc document checked",
		zap.Int64("document_id", doc.ID), zap.Int("user_id", doc.UserID), zap.Bool("verified", verdict.Verified))

	if verdict.Verified {
		s.promote(ctx, doc.UserID)
	}
	return verdict, nil
}

// Reverify queues a fresh check of any user's document.
func (s *DocumentService) Reverify(ctx context.Context, adminRole string, documentID int64) error {
	if !authz.IsAdmin(adminRole) {
		return ErrForbidden
	}
	doc, err := s.Store.Documents().GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrNotFound
	}
	if s.Dispatcher == nil {
		_, err := s.Verify(ctx, documentID)
		return err
	}
	return s.Dispatcher.Dispatch(documentID)
}

// OverrideDocument — manual path for documents the automatic checks could
// not verify.
func (s *DocumentService) OverrideDocument(ctx context.Context, adminID int, adminRole string, documentID int64, notes string, meta models.AuditMeta) (*models.KYCDocument, error) {
	if !authz.IsAdmin(adminRole) {
		return nil, ErrForbidden
	}
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, invalidInput("notes are required for a manual verification")
	}

	var out *models.KYCDocument
	err := runTx(ctx, s.Store, func(tx repositories.Repos) error {
		doc, err := tx.Documents().GetByID(ctx, documentID)
		if err != nil {
			return err
		}
		if doc == nil {
			return ErrNotFound
		}
		now := s.now()
		raw, err := json.Marshal([]models.CheckResult{{Name: "manual", Passed: true, Detail: notes}})
		if err != nil {
			return err
		}
		if err := tx.Documents().UpdateVerification(ctx, documentID, models.DocVerified, string(raw), &now, now); err != nil {
			return err
		}
		if err := s.Audit.Append(ctx, tx, doc.UserID, models.ActionDocumentManualVerified, adminID, map[string]any{
			"document_id":     doc.ID,
			"document_type":   doc.DocumentType,
			"previous_status": doc.VerificationStatus,
			"notes":           notes,
		}, meta); err != nil {
			return err
		}
		doc.VerificationStatus = models.DocVerified
		doc.VerificationNotes = string(raw)
		doc.VerifiedAt = &now
		doc.UpdatedAt = now
		out = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.promote(ctx, out.UserID)
	return out, nil
}

func (s *DocumentService) promote(ctx context.Context, userID int) {
	if s.Promoter == nil {
		return
	}
	if _, err := s.Promoter.CheckAndPromote(ctx, userID); err != nil {
		s.Logger.Error("kyc promotion failed", zap.Int("user_id", userID), zap.Error(err))
	}
}

func (s *DocumentService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
