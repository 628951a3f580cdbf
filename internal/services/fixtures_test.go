package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"carwash/internal/models"
	"carwash/internal/repositories"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// testImageHost — public URL of the storage test documents live in.
const testImageHost = "https://img.test"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// stubInspector returns canned metadata per URL; unknown URLs fail.
type stubInspector struct {
	mu     sync.Mutex
	images map[string]*ImageInfo
}

func newStubInspector() *stubInspector {
	return &stubInspector{images: map[string]*ImageInfo{}}
}

func (s *stubInspector) set(url string, info *ImageInfo) {
	s.mu.Lock()
	s.images[url] = info
	s.mu.Unlock()
}

func (s *stubInspector) Inspect(_ context.Context, url string) (*ImageInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.images[url]
	if !ok {
		return nil, fmt.Errorf("fetch %s: status 404", url)
	}
	cp := *info
	return &cp, nil
}

// cardImage has ID-1 proportions and good quality.
func cardImage(hash string) *ImageInfo {
	return &ImageInfo{Format: "jpeg", Width: 1011, Height: 638, Size: 180 << 10, SHA256: hash}
}

// paperImage is an A4 scan.
func paperImage(hash string) *ImageInfo {
	return &ImageInfo{Format: "png", Width: 1240, Height: 1754, Size: 900 << 10, SHA256: hash}
}

type testEnv struct {
	t         *testing.T
	ctx       context.Context
	store     *repositories.MemoryStore
	clock     *testClock
	audit     *AuditLogger
	inspector *stubInspector
	profiles  *ProfileService
	documents *DocumentService
	kyc       *KYCService
	notes     *NotificationService
	alerts    *recordingAlerter
	mailer    *recordingMailer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := repositories.NewMemoryStore()
	clock := &testClock{now: testNow}

	audit := NewAuditLogger(store)
	audit.Now = clock.Now
	notes := NewNotificationService(store)
	notes.Now = clock.Now

	profiles := NewProfileService(store, audit, nil)
	profiles.Now = clock.Now

	kyc := NewKYCService(store, audit, notes, nil, nil)
	kyc.Now = clock.Now
	alerts := &recordingAlerter{}
	mailer := &recordingMailer{}
	kyc.Alerter = alerts
	kyc.Mailer = mailer

	inspector := newStubInspector()
	checker := NewVerificationChecker(inspector)
	checker.Now = clock.Now
	docs := NewDocumentService(store, audit, checker, NewLocalStorage(t.TempDir(), testImageHost), nil, nil)
	docs.Now = clock.Now
	docs.Promoter = kyc

	env := &testEnv{
		t: t, ctx: context.Background(), store: store, clock: clock, audit: audit,
		inspector: inspector, profiles: profiles, documents: docs, kyc: kyc, notes: notes,
		alerts: alerts, mailer: mailer,
	}
	// verification runs inline so tests can observe the verdict right away
	docs.Dispatcher = DispatcherFunc(func(id int64) error {
		_, err := docs.Verify(env.ctx, id)
		return err
	})
	return env
}

func (e *testEnv) user(role string) *models.User {
	e.t.Helper()
	u := &models.User{
		Name:      "user-" + role,
		Email:     fmt.Sprintf("%s-%d@example.com", role, e.clock.Now().UnixNano()),
		Role:      role,
		Status:    models.UserStatusPending,
		CreatedAt: e.clock.Now(),
	}
	if err := e.store.Users().Create(e.ctx, u); err != nil {
		e.t.Fatalf("create user: %v", err)
	}
	e.clock.Advance(time.Millisecond)
	return u
}

func (e *testEnv) profile(u *models.User) *models.KYCProfile {
	e.t.Helper()
	name := "Test " + u.Role
	p, err := e.profiles.CreateProfile(e.ctx, u.ID, u.Role, models.ProfileInput{FullName: &name}, models.AuditMeta{})
	if err != nil {
		e.t.Fatalf("create profile: %v", err)
	}
	return p
}

// uploadVerified uploads a document of typ whose images pass every check.
func (e *testEnv) uploadVerified(u *models.User, typ models.DocumentType) *models.KYCDocument {
	e.t.Helper()
	in := models.UploadDocumentInput{
		DocumentType:  typ,
		FrontImageURL: fmt.Sprintf("https://img.test/%d/%s/front.jpg", u.ID, typ),
	}
	switch typ {
	case models.DocNationalID:
		in.DocumentNumber = "12345678"
	case models.DocPassport:
		in.DocumentNumber = "AK1234567"
	case models.DocDriversLicense:
		in.DocumentNumber = "DL-99881"
	}
	if typ.NeedsBackImage() {
		in.BackImageURL = fmt.Sprintf("https://img.test/%d/%s/back.jpg", u.ID, typ)
	}
	if typ == models.DocNationalID || typ == models.DocDriversLicense || typ == models.DocPassport {
		e.inspector.set(in.FrontImageURL, cardImage(in.FrontImageURL))
		if in.BackImageURL != "" {
			e.inspector.set(in.BackImageURL, cardImage(in.BackImageURL))
		}
	} else {
		e.inspector.set(in.FrontImageURL, paperImage(in.FrontImageURL))
	}

	doc, err := e.documents.UploadDocument(e.ctx, u.ID, in, models.AuditMeta{})
	if err != nil {
		e.t.Fatalf("upload %s: %v", typ, err)
	}
	got, err := e.store.Documents().GetByID(e.ctx, doc.ID)
	if err != nil || got == nil {
		e.t.Fatalf("reload document: %v", err)
	}
	if got.VerificationStatus != models.DocVerified {
		e.t.Fatalf("%s not verified: %s", typ, got.VerificationNotes)
	}
	return got
}

func (e *testEnv) auditActions(userID int) []string {
	e.t.Helper()
	entries, err := e.audit.GetLog(e.ctx, userID, maxAuditLimit)
	if err != nil {
		e.t.Fatalf("audit log: %v", err)
	}
	out := make([]string, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i].Action)
	}
	return out
}

func (e *testEnv) reloadProfile(userID int) *models.KYCProfile {
	e.t.Helper()
	p, err := e.store.Profiles().GetByUserID(e.ctx, userID)
	if err != nil || p == nil {
		e.t.Fatalf("reload profile: %v", err)
	}
	return p
}

func countAction(actions []string, action string) int {
	n := 0
	for _, a := range actions {
		if a == action {
			n++
		}
	}
	return n
}

type recordingAlerter struct {
	mu    sync.Mutex
	texts []string
}

func (r *recordingAlerter) NotifyAdmins(_ context.Context, text string) error {
	r.mu.Lock()
	r.texts = append(r.texts, text)
	r.mu.Unlock()
	return nil
}

type recordingMailer struct {
	mu       sync.Mutex
	statuses []models.KYCStatus
	codes    map[string]string
}

func (r *recordingMailer) SendKYCStatusEmail(to, name string, status models.KYCStatus, reason string) error {
	r.mu.Lock()
	r.statuses = append(r.statuses, status)
	r.mu.Unlock()
	return nil
}

func (r *recordingMailer) SendVerificationCode(email, code string, ttl time.Duration) error {
	r.mu.Lock()
	if r.codes == nil {
		r.codes = map[string]string{}
	}
	r.codes[email] = code
	r.mu.Unlock()
	return nil
}

type recordingSMS struct {
	mu    sync.Mutex
	sent  []string
	fails bool
}

func (r *recordingSMS) SendSMS(_ context.Context, to, text string) (string, error) {
	if r.fails {
		return "", errors.New("provider down")
	}
	r.mu.Lock()
	r.sent = append(r.sent, to+": "+text)
	r.mu.Unlock()
	return "msg", nil
}

// failingAuditStore commits nothing: every audit append inside a
// transaction fails.
type failingAuditStore struct {
	repositories.Store
}

func (s failingAuditStore) WithTx(ctx context.Context, fn func(tx repositories.Repos) error) error {
	return s.Store.WithTx(ctx, func(tx repositories.Repos) error {
		return fn(failingAuditTx{tx})
	})
}

type failingAuditTx struct {
	repositories.Repos
}

func (failingAuditTx) Audit() repositories.AuditLogRepository { return failingAuditRepo{} }

type failingAuditRepo struct{}

func (failingAuditRepo) Append(context.Context, *models.KYCAuditLogEntry) error {
	return errors.New("audit insert failed")
}

func (failingAuditRepo) ListByUser(context.Context, int, int) ([]*models.KYCAuditLogEntry, error) {
	return nil, nil
}

func strPtr(s string) *string { return &s }
func intPtr(v int) *int       { return &v }
