package services

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"carwash/internal/authz"
	"carwash/internal/models"
)

func TestUploadDocumentValidation(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(authz.RoleCustomer)

	tests := []struct {
		name string
		in   models.UploadDocumentInput
	}{
		{"unknown type", models.UploadDocumentInput{DocumentType: "selfie", FrontImageURL: "https://img.test/a.jpg"}},
		{"no front", models.UploadDocumentInput{DocumentType: models.DocPassport, FrontImageURL: "  "}},
		{"id without back", models.UploadDocumentInput{DocumentType: models.DocNationalID, FrontImageURL: "https://img.test/a.jpg"}},
		{"license without back", models.UploadDocumentInput{DocumentType: models.DocDriversLicense, FrontImageURL: "https://img.test/a.jpg"}},
		{"foreign front", models.UploadDocumentInput{DocumentType: models.DocPassport, FrontImageURL: "http://169.254.169.254/latest/meta-data"}},
		{"foreign back", models.UploadDocumentInput{DocumentType: models.DocNationalID,
			FrontImageURL: "https://img.test/a.jpg", BackImageURL: "http://10.0.0.7/b.jpg"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.documents.UploadDocument(env.ctx, u.ID, tt.in, models.AuditMeta{})
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
	if docs, _ := env.documents.ListDocuments(env.ctx, u.ID); len(docs) != 0 {
		t.Fatalf("invalid uploads persisted: %d", len(docs))
	}
}

func TestUploadDocumentNeverFetchesForeignURL(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(authz.RoleCustomer)
	env.profile(u)

	var hits atomic.Int32
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer internal.Close()
	env.documents.Checker = NewVerificationChecker(NewHTTPImageInspector(time.Second, "", ""))

	_, err := env.documents.UploadDocument(env.ctx, u.ID, models.UploadDocumentInput{
		DocumentType:  models.DocPassport,
		FrontImageURL: internal.URL + "/admin/secret",
	}, models.AuditMeta{})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if n := hits.Load(); n != 0 {
		t.Fatalf("internal service was requested %d times", n)
	}
	if docs, _ := env.documents.ListDocuments(env.ctx, u.ID); len(docs) != 0 {
		t.Fatalf("foreign upload persisted")
	}
}

// A second upload of the same type is a new row; the first one stays.
func TestUploadSameTypeTwiceKeepsBoth(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(authz.RoleCustomer)
	env.profile(u)
	env.documents.Dispatcher = nil

	for _, url := range []string{"https://img.test/p1.jpg", "https://img.test/p2.jpg"} {
		if _, err := env.documents.UploadDocument(env.ctx, u.ID, models.UploadDocumentInput{
			DocumentType: models.DocPassport, FrontImageURL: url,
		}, models.AuditMeta{}); err != nil {
			t.Fatalf("upload %s: %v", url, err)
		}
	}
	if docs, _ := env.documents.ListDocuments(env.ctx, u.ID); len(docs) != 2 {
		t.Fatalf("documents = %d, want 2", len(docs))
	}
}

func TestUploadDocumentStartsPendingAndDispatches(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(authz.RoleCustomer)
	env.profile(u)

	var dispatched []int64
	env.documents.Dispatcher = DispatcherFunc(func(id int64) error {
		dispatched = append(dispatched, id)
		return nil
	})

	doc, err := env.documents.UploadDocument(env.ctx, u.ID, models.UploadDocumentInput{
		DocumentType:  models.DocPassport,
		FrontImageURL: " https://img.test/passport.jpg ",
	}, models.AuditMeta{})
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	if doc.VerificationStatus != models.DocPending || doc.ID == 0 {
		t.Errorf("doc = %+v", doc)
	}
	if doc.FrontImageURL != "https://img.test/passport.jpg" {
		t.Errorf("url not trimmed: %q", doc.FrontImageURL)
	}
	if len(dispatched) != 1 || dispatched[0] != doc.ID {
		t.Errorf("dispatched = %v", dispatched)
	}
	if n := countAction(env.auditActions(u.ID), models.ActionDocumentUploaded); n != 1 {
		t.Errorf("upload entries = %d", n)
	}
}

func TestUploadDocumentQueueFullKeepsDocument(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(authz.RoleCustomer)
	env.documents.Dispatcher = DispatcherFunc(func(int64) error { return ErrQueueFull })

	doc, err := env.documents.UploadDocument(env.ctx, u.ID, models.UploadDocumentInput{
		DocumentType: models.DocPassport, FrontImageURL: "https://img.test/p.jpg",
	}, models.AuditMeta{})
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	got, err := env.documents.GetDocument(env.ctx, doc.ID, u.ID)
	if err != nil || got.VerificationStatus != models.DocPending {
		t.Fatalf("got %+v, %v", got, err)
	}
}

func TestUploadRolledBackWhenAuditFails(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(authz.RoleCustomer)
	broken := NewDocumentService(failingAuditStore{env.store}, env.audit, env.documents.Checker, env.documents.Files, nil, nil)

	_, err := broken.UploadDocument(env.ctx, u.ID, models.UploadDocumentInput{
		DocumentType: models.DocPassport, FrontImageURL: "https://img.test/p.jpg",
	}, models.AuditMeta{})
	if !errors.Is(err, ErrTransactionFailure) {
		t.Fatalf("err = %v", err)
	}
	if docs, _ := env.documents.ListDocuments(env.ctx, u.ID); len(docs) != 0 {
		t.Fatalf("document persisted without audit")
	}
}

func TestDocumentOwnershipIsolation(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(authz.RoleCustomer)
	other := env.user(authz.RoleCustomer)
	env.profile(owner)
	doc := env.uploadVerified(owner, models.DocPassport)

	if _, err := env.documents.GetDocument(env.ctx, doc.ID, other.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign get err = %v, want ErrNotFound", err)
	}
	if _, err := env.documents.GetDocument(env.ctx, doc.ID+100, owner.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing get err = %v, want ErrNotFound", err)
	}
	if docs, _ := env.documents.ListDocuments(env.ctx, other.ID); len(docs) != 0 {
		t.Fatalf("other user sees %d documents", len(docs))
	}

	err := env.documents.DeleteDocument(env.ctx, doc.ID, other.ID, models.AuditMeta{})
	if !errors.Is(err, ErrNotFoundOrForbidden) {
		t.Fatalf("foreign delete err = %v", err)
	}
	if _, err := env.documents.GetDocument(env.ctx, doc.ID, owner.ID); err != nil {
		t.Fatalf("document gone after foreign delete: %v", err)
	}
	if n := countAction(env.auditActions(owner.ID), models.ActionDocumentDeleted); n != 0 {
		t.Errorf("foreign delete audited")
	}
}

func TestDeleteDocumentAudited(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(authz.RoleCustomer)
	env.documents.Dispatcher = nil
	doc, err := env.documents.UploadDocument(env.ctx, u.ID, models.UploadDocumentInput{
		DocumentType: models.DocPassport, FrontImageURL: "https://img.test/p.jpg",
	}, models.AuditMeta{})
	if err != nil {
		t.Fatal(err)
	}

	if err := env.documents.DeleteDocument(env.ctx, doc.ID, u.ID, models.AuditMeta{}); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if _, err := env.documents.GetDocument(env.ctx, doc.ID, u.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("document still there: %v", err)
	}
	if n := countAction(env.auditActions(u.ID), models.ActionDocumentDeleted); n != 1 {
		t.Errorf("delete entries = %d", n)
	}
}

func TestVerifyOverwritesPreviousVerdict(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(authz.RoleCustomer)
	env.documents.Dispatcher = nil
	doc, err := env.documents.UploadDocument(env.ctx, u.ID, models.UploadDocumentInput{
		DocumentType: models.DocPassport, DocumentNumber: "AK123456", FrontImageURL: "https://img.test/p.jpg",
	}, models.AuditMeta{})
	if err != nil {
		t.Fatal(err)
	}

	// картинка ещё недоступна
	v, err := env.documents.Verify(env.ctx, doc.ID)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if v.Verified {
		t.Fatal("unreadable image verified")
	}
	got, _ := env.documents.GetDocument(env.ctx, doc.ID, u.ID)
	if got.VerificationStatus != models.DocPending || got.VerifiedAt != nil {
		t.Fatalf("after failed run: %+v", got)
	}

	env.inspector.set(doc.FrontImageURL, cardImage("p"))
	for i := 0; i < 2; i++ {
		v, err = env.documents.Verify(env.ctx, doc.ID)
		if err != nil || !v.Verified {
			t.Fatalf("run %d: %+v, %v", i, v, err)
		}
	}
	got, _ = env.documents.GetDocument(env.ctx, doc.ID, u.ID)
	if got.VerificationStatus != models.DocVerified || got.VerifiedAt == nil {
		t.Fatalf("after passing run: %+v", got)
	}
	var notes []models.CheckResult
	if err := json.Unmarshal([]byte(got.VerificationNotes), &notes); err != nil {
		t.Fatalf("notes: %v", err)
	}
	for _, c := range notes {
		if !c.Passed {
			t.Errorf("stale failed check kept: %+v", c)
		}
	}

	actions := env.auditActions(u.ID)
	if countAction(actions, models.ActionDocumentCheckFailed) != 1 || countAction(actions, models.ActionDocumentVerified) != 2 {
		t.Errorf("audit = %v", actions)
	}
	entries, _ := env.audit.GetLog(env.ctx, u.ID, 1)
	if entries[0].ChangedBy != SystemActor {
		t.Errorf("verification actor = %d, want system", entries[0].ChangedBy)
	}
}

func TestVerifyMissingDocument(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.documents.Verify(env.ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestReverifyAndOverrideRequireAdmin(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(authz.RoleCustomer)
	doc := env.uploadVerified(u, models.DocPassport)

	if err := env.documents.Reverify(env.ctx, authz.RoleCustomer, doc.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("reverify err = %v", err)
	}
	if _, err := env.documents.OverrideDocument(env.ctx, u.ID, authz.RoleCustomer, doc.ID, "ok", models.AuditMeta{}); !errors.Is(err, ErrForbidden) {
		t.Errorf("override err = %v", err)
	}
	if err := env.documents.Reverify(env.ctx, authz.RoleAdmin, 12345); !errors.Is(err, ErrNotFound) {
		t.Errorf("reverify missing err = %v", err)
	}
	if err := env.documents.Reverify(env.ctx, authz.RoleAdmin, doc.ID); err != nil {
		t.Errorf("reverify: %v", err)
	}
}

func TestOverrideDocumentPromotes(t *testing.T) {
	env := newTestEnv(t)
	admin := env.user(authz.RoleAdmin)
	u := env.user(authz.RoleCustomer)
	env.profile(u)

	env.documents.Dispatcher = nil
	doc, err := env.documents.UploadDocument(env.ctx, u.ID, models.UploadDocumentInput{
		DocumentType:  models.DocNationalID,
		FrontImageURL: "https://img.test/blurry-front.jpg",
		BackImageURL:  "https://img.test/blurry-back.jpg",
	}, models.AuditMeta{})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := env.documents.OverrideDocument(env.ctx, admin.ID, admin.Role, doc.ID, "  ", models.AuditMeta{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty notes err = %v", err)
	}

	got, err := env.documents.OverrideDocument(env.ctx, admin.ID, admin.Role, doc.ID, "checked in person", models.AuditMeta{})
	if err != nil {
		t.Fatalf("OverrideDocument: %v", err)
	}
	if got.VerificationStatus != models.DocVerified || !strings.Contains(got.VerificationNotes, "checked in person") {
		t.Fatalf("doc = %+v", got)
	}
	if p := env.reloadProfile(u.ID); p.KYCStatus != models.KYCPendingReview {
		t.Fatalf("status = %s, want pending_review", p.KYCStatus)
	}
	entries, _ := env.audit.GetLog(env.ctx, u.ID, 0)
	var manual *models.KYCAuditLogEntry
	for _, e := range entries {
		if e.Action == models.ActionDocumentManualVerified {
			manual = e
		}
	}
	if manual == nil || manual.ChangedBy != admin.ID {
		t.Fatalf("manual entry = %+v", manual)
	}
}
