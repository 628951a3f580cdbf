package services

import (
	"errors"
	"fmt"
	"testing"

	"carwash/internal/authz"
	"carwash/internal/models"
)

func TestRequiredDocuments(t *testing.T) {
	tests := map[string][]models.DocumentType{
		authz.RoleCustomer: {models.DocNationalID},
		authz.RoleDetailer: {models.DocNationalID, models.DocProofOfAddress},
		authz.RoleOwner:    {models.DocNationalID, models.DocBusinessLicense, models.DocTaxCertificate},
		authz.RoleAdmin:    nil,
	}
	for role, want := range tests {
		got := RequiredDocuments(role)
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Errorf("RequiredDocuments(%s) = %v, want %v", role, got, want)
		}
	}
	// копия, а не общий срез
	RequiredDocuments(authz.RoleOwner)[0] = "mutated"
	if RequiredDocuments(authz.RoleOwner)[0] != models.DocNationalID {
		t.Fatal("RequiredDocuments leaks its table")
	}
}

// Every proper subset of the required set must leave the profile incomplete;
// the full set promotes it.
func TestPromotionNeedsEveryRequiredDocument(t *testing.T) {
	for _, role := range []string{authz.RoleCustomer, authz.RoleDetailer, authz.RoleOwner} {
		required := RequiredDocuments(role)
		full := 1<<len(required) - 1
		for mask := 0; mask <= full; mask++ {
			t.Run(fmt.Sprintf("%s/%b", role, mask), func(t *testing.T) {
				env := newTestEnv(t)
				u := env.user(role)
				env.profile(u)
				// лишний документ не должен засчитываться
				env.uploadVerified(u, models.DocPassport)
				for i, typ := range required {
					if mask&(1<<i) != 0 {
						env.uploadVerified(u, typ)
					}
				}

				got := env.reloadProfile(u.ID).KYCStatus
				want := models.KYCIncomplete
				if mask == full {
					want = models.KYCPendingReview
				}
				if got != want {
					t.Fatalf("status = %s, want %s", got, want)
				}
			})
		}
	}
}

// A detailer uploads both required documents; the second verification
// promotes the profile exactly once.
func TestDetailerReachesPendingReview(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(authz.RoleDetailer)
	env.profile(u)

	env.uploadVerified(u, models.DocNationalID)
	if s := env.reloadProfile(u.ID).KYCStatus; s != models.KYCIncomplete {
		t.Fatalf("after first document: %s", s)
	}
	env.uploadVerified(u, models.DocProofOfAddress)

	p := env.reloadProfile(u.ID)
	if p.KYCStatus != models.KYCPendingReview {
		t.Fatalf("status = %s", p.KYCStatus)
	}
	if p.KYCSubmittedAt == nil || !p.KYCSubmittedAt.Equal(env.clock.Now()) {
		t.Errorf("submitted_at = %v", p.KYCSubmittedAt)
	}

	entries, _ := env.audit.GetLog(env.ctx, u.ID, 0)
	var submitted []*models.KYCAuditLogEntry
	for _, e := range entries {
		if e.Action == models.ActionSubmittedForReview {
			submitted = append(submitted, e)
		}
	}
	if len(submitted) != 1 || submitted[0].ChangedBy != SystemActor {
		t.Fatalf("submitted entries = %+v", submitted)
	}

	inbox, _ := env.notes.List(env.ctx, u.ID, false, 0, 0)
	if len(inbox) != 1 || inbox[0].Type != "kyc_submitted" {
		t.Errorf("inbox = %+v", inbox)
	}
	if len(env.alerts.texts) != 1 {
		t.Errorf("admin alerts = %d", len(env.alerts.texts))
	}

	// повторный вызов ничего не меняет
	promoted, err := env.kyc.CheckAndPromote(env.ctx, u.ID)
	if err != nil || promoted {
		t.Fatalf("second promote = %v, %v", promoted, err)
	}
	if n := countAction(env.auditActions(u.ID), models.ActionSubmittedForReview); n != 1 {
		t.Errorf("submitted entries after repeat = %d", n)
	}
}

func TestCheckAndPromoteUnknownUser(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.kyc.CheckAndPromote(env.ctx, 77); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func pendingCustomer(t *testing.T, env *testEnv) *models.User {
	t.Helper()
	u := env.user(authz.RoleCustomer)
	env.profile(u)
	env.uploadVerified(u, models.DocNationalID)
	if s := env.reloadProfile(u.ID).KYCStatus; s != models.KYCPendingReview {
		t.Fatalf("setup: status = %s", s)
	}
	return u
}

func TestReviewApprove(t *testing.T) {
	env := newTestEnv(t)
	admin := env.user(authz.RoleAdmin)
	u := pendingCustomer(t, env)
	before := len(env.auditActions(u.ID))

	p, err := env.kyc.Review(env.ctx, admin.ID, admin.Role, u.ID, "Approve", "", models.AuditMeta{})
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if p.KYCStatus != models.KYCVerified || p.KYCReviewedBy == nil || *p.KYCReviewedBy != admin.ID || p.KYCReviewedAt == nil {
		t.Fatalf("profile = %+v", p)
	}
	user, _ := env.store.Users().GetByID(env.ctx, u.ID)
	if user.Status != models.UserStatusActive {
		t.Errorf("user status = %s", user.Status)
	}

	actions := env.auditActions(u.ID)
	if len(actions) != before+1 || actions[len(actions)-1] != models.ActionApproved {
		t.Fatalf("audit = %v", actions)
	}
	if len(env.mailer.statuses) != 1 || env.mailer.statuses[0] != models.KYCVerified {
		t.Errorf("status emails = %v", env.mailer.statuses)
	}

	// verified — финальный статус
	_, err = env.kyc.Review(env.ctx, admin.ID, admin.Role, u.ID, DecisionReject, "late", models.AuditMeta{})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("re-review err = %v", err)
	}
}

func TestReviewReject(t *testing.T) {
	env := newTestEnv(t)
	admin := env.user(authz.RoleAdmin)
	u := pendingCustomer(t, env)

	if _, err := env.kyc.Review(env.ctx, admin.ID, admin.Role, u.ID, DecisionReject, " ", models.AuditMeta{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("reject without notes err = %v", err)
	}
	p, err := env.kyc.Review(env.ctx, admin.ID, admin.Role, u.ID, DecisionReject, "photo is blurred", models.AuditMeta{})
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if p.KYCStatus != models.KYCRejected || p.RejectionReason != "photo is blurred" {
		t.Fatalf("profile = %+v", p)
	}
	user, _ := env.store.Users().GetByID(env.ctx, u.ID)
	if user.Status != models.UserStatusRejected {
		t.Errorf("user status = %s", user.Status)
	}
}

func TestReviewGuards(t *testing.T) {
	env := newTestEnv(t)
	admin := env.user(authz.RoleAdmin)
	u := env.user(authz.RoleCustomer)
	env.profile(u)

	tests := []struct {
		name     string
		role     string
		userID   int
		decision string
		want     error
	}{
		{"not admin", authz.RoleCustomer, u.ID, DecisionApprove, ErrForbidden},
		{"bad decision", authz.RoleAdmin, u.ID, "maybe", ErrInvalidInput},
		{"from incomplete", authz.RoleAdmin, u.ID, DecisionApprove, ErrInvalidTransition},
		{"no profile", authz.RoleAdmin, 999, DecisionApprove, ErrProfileNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.kyc.Review(env.ctx, admin.ID, tt.role, tt.userID, tt.decision, "n", models.AuditMeta{})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if s := env.reloadProfile(u.ID).KYCStatus; s != models.KYCIncomplete {
		t.Errorf("status changed by rejected reviews: %s", s)
	}
}

func TestResubmitReturnsToReview(t *testing.T) {
	env := newTestEnv(t)
	admin := env.user(authz.RoleAdmin)
	u := pendingCustomer(t, env)

	if _, err := env.kyc.Resubmit(env.ctx, u.ID, models.AuditMeta{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("resubmit from pending_review err = %v", err)
	}
	if _, err := env.kyc.Review(env.ctx, admin.ID, admin.Role, u.ID, DecisionReject, "expired card", models.AuditMeta{}); err != nil {
		t.Fatal(err)
	}

	p, err := env.kyc.Resubmit(env.ctx, u.ID, models.AuditMeta{})
	if err != nil {
		t.Fatalf("Resubmit: %v", err)
	}
	// документы по-прежнему verified, так что профиль снова на проверке
	if p.KYCStatus != models.KYCPendingReview || p.RejectionReason != "" {
		t.Fatalf("profile = %+v", p)
	}
	actions := env.auditActions(u.ID)
	if countAction(actions, models.ActionResubmitted) != 1 || countAction(actions, models.ActionSubmittedForReview) != 2 {
		t.Errorf("audit = %v", actions)
	}
}

func TestResubmitWithoutDocumentsStaysIncomplete(t *testing.T) {
	env := newTestEnv(t)
	admin := env.user(authz.RoleAdmin)
	u := env.user(authz.RoleCustomer)
	env.profile(u)
	doc := env.uploadVerified(u, models.DocNationalID)
	if _, err := env.kyc.Review(env.ctx, admin.ID, admin.Role, u.ID, DecisionReject, "fake", models.AuditMeta{}); err != nil {
		t.Fatal(err)
	}
	if err := env.documents.DeleteDocument(env.ctx, doc.ID, u.ID, models.AuditMeta{}); err != nil {
		t.Fatal(err)
	}

	p, err := env.kyc.Resubmit(env.ctx, u.ID, models.AuditMeta{})
	if err != nil {
		t.Fatalf("Resubmit: %v", err)
	}
	if p.KYCStatus != models.KYCIncomplete || p.KYCSubmittedAt != nil {
		t.Fatalf("profile = %+v", p)
	}
}

func TestGetStatus(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(authz.RoleOwner)
	if _, err := env.kyc.GetStatus(env.ctx, u.ID, u.Role); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("err = %v", err)
	}
	env.profile(u)
	env.uploadVerified(u, models.DocTaxCertificate)

	// роль берётся из users, а не из токена
	st, err := env.kyc.GetStatus(env.ctx, u.ID, authz.RoleCustomer)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st.Role != authz.RoleOwner || st.KYCStatus != models.KYCIncomplete {
		t.Fatalf("status = %+v", st)
	}
	if fmt.Sprint(st.Verified) != "[tax_certificate]" {
		t.Errorf("verified = %v", st.Verified)
	}
	if fmt.Sprint(st.Missing) != "[national_id business_license]" {
		t.Errorf("missing = %v", st.Missing)
	}
}

func TestListPendingOrderAndLimits(t *testing.T) {
	env := newTestEnv(t)
	var ids []int
	for i := 0; i < 3; i++ {
		u := pendingCustomer(t, env)
		ids = append(ids, u.ID)
	}
	items, err := env.kyc.ListPending(env.ctx, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("items = %d", len(items))
	}
	for i, p := range items {
		if p.UserID != ids[i] {
			t.Errorf("item %d = user %d, want %d (oldest first)", i, p.UserID, ids[i])
		}
	}
	items, _ = env.kyc.ListPending(env.ctx, 1, 1)
	if len(items) != 1 || items[0].UserID != ids[1] {
		t.Errorf("page = %+v", items)
	}
	items, _ = env.kyc.ListPending(env.ctx, 10, 50)
	if items == nil || len(items) != 0 {
		t.Errorf("past the end = %#v", items)
	}
}
