package repositories

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"carwash/internal/models"
)

// MemoryStore — in-process Store for local runs (database.driver: memory) and
// tests. WithTx works on a copy of the whole state and swaps it in on success,
// so a failed fn leaves nothing behind. Transactions are serialized.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	seq           map[string]int64
	users         map[int]models.User
	profiles      map[int]models.KYCProfile
	documents     map[int64]models.KYCDocument
	phones        map[int64]models.PhoneVerification
	emails        map[int64]models.EmailVerification
	audit         []models.KYCAuditLogEntry
	notifications map[int64]models.Notification
}

func newMemState() *memState {
	return &memState{
		seq:           map[string]int64{},
		users:         map[int]models.User{},
		profiles:      map[int]models.KYCProfile{},
		documents:     map[int64]models.KYCDocument{},
		phones:        map[int64]models.PhoneVerification{},
		emails:        map[int64]models.EmailVerification{},
		notifications: map[int64]models.Notification{},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.seq {
		c.seq[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.profiles {
		c.profiles[k] = v
	}
	for k, v := range s.documents {
		c.documents[k] = v
	}
	for k, v := range s.phones {
		c.phones[k] = v
	}
	for k, v := range s.emails {
		c.emails[k] = v
	}
	c.audit = append([]models.KYCAuditLogEntry(nil), s.audit...)
	for k, v := range s.notifications {
		c.notifications[k] = v
	}
	return c
}

func (s *memState) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

// memRepos reads and writes st. When tx is false every call takes the store lock.
type memRepos struct {
	store *MemoryStore
	st    *memState
	tx    bool
}

func (r memRepos) run(fn func(st *memState) error) error {
	if r.tx {
		return fn(r.st)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return fn(r.store.state)
}

func (s *MemoryStore) live() memRepos { return memRepos{store: s} }

func (s *MemoryStore) Users() UserRepository { return memUsers{s.live()} }
func (s *MemoryStore) Profiles() KYCProfileRepository { return memProfiles{s.live()} }
func (s *MemoryStore) Documents() KYCDocumentRepository { return memDocuments{s.live()} }
func (s *MemoryStore) Audit() AuditLogRepository { return memAudit{s.live()} }
func (s *MemoryStore) Notifications() NotificationRepository { return memNotifications{s.live()} }
func (s *MemoryStore) PhoneVerifications() PhoneVerificationRepository {
	return memPhones{s.live()}
}
func (s *MemoryStore) EmailVerifications() EmailVerificationRepository {
	return memEmails{s.live()}
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Repos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(memTx{memRepos{store: s, st: work, tx: true}}); err != nil {
		return err
	}
	s.state = work
	return nil
}

type memTx struct{ r memRepos }

func (t memTx) Users() UserRepository { return memUsers{t.r} }
func (t memTx) Profiles() KYCProfileRepository { return memProfiles{t.r} }
func (t memTx) Documents() KYCDocumentRepository { return memDocuments{t.r} }
func (t memTx) PhoneVerifications() PhoneVerificationRepository { return memPhones{t.r} }
func (t memTx) EmailVerifications() EmailVerificationRepository { return memEmails{t.r} }
func (t memTx) Audit() AuditLogRepository { return memAudit{t.r} }
func (t memTx) Notifications() NotificationRepository { return memNotifications{t.r} }

// ===== users =====

type memUsers struct{ memRepos }

func (r memUsers) Create(_ context.Context, user *models.User) error {
	return r.run(func(st *memState) error {
		for _, u := range st.users {
			if strings.EqualFold(u.Email, user.Email) {
				return ErrDuplicate
			}
		}
		if user.CreatedAt.IsZero() {
			user.CreatedAt = time.Now()
		}
		user.UpdatedAt = user.CreatedAt
		user.ID = int(st.next("users"))
		st.users[user.ID] = *user
		return nil
	})
}

func (r memUsers) GetByID(_ context.Context, id int) (*models.User, error) {
	var out *models.User
	err := r.run(func(st *memState) error {
		if u, ok := st.users[id]; ok {
			out = &u
		}
		return nil
	})
	return out, err
}

func (r memUsers) UpdateStatus(_ context.Context, id int, status string, at time.Time) error {
	return r.run(func(st *memState) error {
		u, ok := st.users[id]
		if !ok {
			return sql.ErrNoRows
		}
		u.Status = status
		u.UpdatedAt = at
		st.users[id] = u
		return nil
	})
}

// ===== profiles =====

type memProfiles struct{ memRepos }

func (r memProfiles) Create(_ context.Context, p *models.KYCProfile) error {
	return r.run(func(st *memState) error {
		if _, ok := st.profiles[p.UserID]; ok {
			return ErrDuplicate
		}
		if p.Version == 0 {
			p.Version = 1
		}
		st.profiles[p.UserID] = *p
		return nil
	})
}

func (r memProfiles) GetByUserID(_ context.Context, userID int) (*models.KYCProfile, error) {
	var out *models.KYCProfile
	err := r.run(func(st *memState) error {
		if p, ok := st.profiles[userID]; ok {
			out = &p
		}
		return nil
	})
	return out, err
}

func (r memProfiles) GetForUpdate(ctx context.Context, userID int) (*models.KYCProfile, error) {
	return r.GetByUserID(ctx, userID)
}

func (r memProfiles) Update(_ context.Context, p *models.KYCProfile) error {
	return r.run(func(st *memState) error {
		cur, ok := st.profiles[p.UserID]
		if !ok || cur.Version != p.Version {
			return ErrVersionConflict
		}
		p.Version++
		st.profiles[p.UserID] = *p
		return nil
	})
}

func (r memProfiles) ListByStatus(_ context.Context, status models.KYCStatus, limit, offset int) ([]*models.KYCProfile, error) {
	var all []*models.KYCProfile
	err := r.run(func(st *memState) error {
		for _, p := range st.profiles {
			if p.KYCStatus == status {
				p := p
				all = append(all, &p)
			}
		}
		return nil
	})
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i].KYCSubmittedAt, all[j].KYCSubmittedAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return all[i].UserID < all[j].UserID
	})
	return page(all, limit, offset), err
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// ===== documents =====

type memDocuments struct{ memRepos }

func (r memDocuments) Create(_ context.Context, doc *models.KYCDocument) error {
	return r.run(func(st *memState) error {
		doc.ID = st.next("kyc_documents")
		doc.UpdatedAt = doc.CreatedAt
		st.documents[doc.ID] = *doc
		return nil
	})
}

func (r memDocuments) GetByID(_ context.Context, id int64) (*models.KYCDocument, error) {
	var out *models.KYCDocument
	err := r.run(func(st *memState) error {
		if d, ok := st.documents[id]; ok {
			out = &d
		}
		return nil
	})
	return out, err
}

func (r memDocuments) ListByUser(_ context.Context, userID int) ([]*models.KYCDocument, error) {
	var out []*models.KYCDocument
	err := r.run(func(st *memState) error {
		for _, d := range st.documents {
			if d.UserID == userID {
				d := d
				out = append(out, &d)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, err
}

func (r memDocuments) VerifiedTypes(_ context.Context, userID int) ([]models.DocumentType, error) {
	seen := map[models.DocumentType]bool{}
	var out []models.DocumentType
	err := r.run(func(st *memState) error {
		for _, d := range st.documents {
			if d.UserID == userID && d.VerificationStatus == models.DocVerified && !seen[d.DocumentType] {
				seen[d.DocumentType] = true
				out = append(out, d.DocumentType)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, err
}

func (r memDocuments) UpdateVerification(_ context.Context, id int64, status models.VerificationStatus, notes string, verifiedAt *time.Time, at time.Time) error {
	return r.run(func(st *memState) error {
		d, ok := st.documents[id]
		if !ok {
			return sql.ErrNoRows
		}
		d.VerificationStatus = status
		d.VerificationNotes = notes
		d.VerifiedAt = verifiedAt
		d.UpdatedAt = at
		st.documents[id] = d
		return nil
	})
}

func (r memDocuments) Delete(_ context.Context, id int64) error {
	return r.run(func(st *memState) error {
		delete(st.documents, id)
		return nil
	})
}

// ===== phone verifications =====

type memPhones struct{ memRepos }

func (r memPhones) Create(_ context.Context, v *models.PhoneVerification) error {
	return r.run(func(st *memState) error {
		v.ID = st.next("phone_verifications")
		st.phones[v.ID] = *v
		return nil
	})
}

func (r memPhones) collect(userID int, phone string, keep func(models.PhoneVerification) bool) []*models.PhoneVerification {
	var out []*models.PhoneVerification
	_ = r.run(func(st *memState) error {
		for _, v := range st.phones {
			if v.UserID == userID && v.Phone == phone && keep(v) {
				v := v
				out = append(out, &v)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r memPhones) ListActive(_ context.Context, userID int, phone string, now time.Time) ([]*models.PhoneVerification, error) {
	return r.collect(userID, phone, func(v models.PhoneVerification) bool {
		return !v.Verified && v.ExpiresAt.After(now)
	}), nil
}

func (r memPhones) LatestUnverified(_ context.Context, userID int, phone string) (*models.PhoneVerification, error) {
	all := r.collect(userID, phone, func(v models.PhoneVerification) bool { return !v.Verified })
	if len(all) == 0 {
		return nil, nil
	}
	return all[0], nil
}

func (r memPhones) IncrementAttempts(_ context.Context, id int64) (int, error) {
	var attempts int
	err := r.run(func(st *memState) error {
		v, ok := st.phones[id]
		if !ok {
			return sql.ErrNoRows
		}
		v.Attempts++
		attempts = v.Attempts
		st.phones[id] = v
		return nil
	})
	return attempts, err
}

func (r memPhones) MarkVerified(_ context.Context, id int64) error {
	return r.run(func(st *memState) error {
		v, ok := st.phones[id]
		if !ok || v.Verified {
			return ErrAlreadyConsumed
		}
		v.Verified = true
		st.phones[id] = v
		return nil
	})
}

func (r memPhones) ExpireActive(_ context.Context, userID int, phone string, now time.Time) error {
	return r.run(func(st *memState) error {
		for id, v := range st.phones {
			if v.UserID == userID && v.Phone == phone && !v.Verified && v.ExpiresAt.After(now) {
				v.ExpiresAt = now
				st.phones[id] = v
			}
		}
		return nil
	})
}

func (r memPhones) CountSince(_ context.Context, userID int, since time.Time) (int, error) {
	c := 0
	err := r.run(func(st *memState) error {
		for _, v := range st.phones {
			if v.UserID == userID && !v.CreatedAt.Before(since) {
				c++
			}
		}
		return nil
	})
	return c, err
}

// ===== email verifications =====

type memEmails struct{ memRepos }

func (r memEmails) Create(_ context.Context, v *models.EmailVerification) error {
	return r.run(func(st *memState) error {
		v.ID = st.next("email_verifications")
		st.emails[v.ID] = *v
		return nil
	})
}

func (r memEmails) ListActive(_ context.Context, userID int, email string, now time.Time) ([]*models.EmailVerification, error) {
	var out []*models.EmailVerification
	err := r.run(func(st *memState) error {
		for _, v := range st.emails {
			if v.UserID == userID && v.Email == email && !v.Verified && v.ExpiresAt.After(now) {
				v := v
				out = append(out, &v)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, err
}

func (r memEmails) MarkVerified(_ context.Context, id int64) error {
	return r.run(func(st *memState) error {
		v, ok := st.emails[id]
		if !ok || v.Verified {
			return ErrAlreadyConsumed
		}
		v.Verified = true
		st.emails[id] = v
		return nil
	})
}

func (r memEmails) IncrementAttempts(_ context.Context, id int64) (int, error) {
	var attempts int
	err := r.run(func(st *memState) error {
		v, ok := st.emails[id]
		if !ok {
			return sql.ErrNoRows
		}
		v.Attempts++
		attempts = v.Attempts
		st.emails[id] = v
		return nil
	})
	return attempts, err
}

func (r memEmails) ExpireActive(_ context.Context, userID int, email string, now time.Time) error {
	return r.run(func(st *memState) error {
		for id, v := range st.emails {
			if v.UserID == userID && v.Email == email && !v.Verified && v.ExpiresAt.After(now) {
				v.ExpiresAt = now
				st.emails[id] = v
			}
		}
		return nil
	})
}

func (r memEmails) CountSince(_ context.Context, userID int, since time.Time) (int, error) {
	c := 0
	err := r.run(func(st *memState) error {
		for _, v := range st.emails {
			if v.UserID == userID && !v.CreatedAt.Before(since) {
				c++
			}
		}
		return nil
	})
	return c, err
}

// ===== audit =====

type memAudit struct{ memRepos }

func (r memAudit) Append(_ context.Context, e *models.KYCAuditLogEntry) error {
	return r.run(func(st *memState) error {
		e.ID = st.next("kyc_audit_logs")
		st.audit = append(st.audit, *e)
		return nil
	})
}

func (r memAudit) ListByUser(_ context.Context, userID, limit int) ([]*models.KYCAuditLogEntry, error) {
	var out []*models.KYCAuditLogEntry
	err := r.run(func(st *memState) error {
		for i := len(st.audit) - 1; i >= 0; i-- {
			if st.audit[i].UserID != userID {
				continue
			}
			e := st.audit[i]
			out = append(out, &e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// ===== notifications =====

type memNotifications struct{ memRepos }

func (r memNotifications) Create(_ context.Context, n *models.Notification) error {
	return r.run(func(st *memState) error {
		n.ID = st.next("notifications")
		st.notifications[n.ID] = *n
		return nil
	})
}

func (r memNotifications) ListByUser(_ context.Context, userID int, unreadOnly bool, limit, offset int) ([]*models.Notification, error) {
	var out []*models.Notification
	err := r.run(func(st *memState) error {
		for _, n := range st.notifications {
			if n.UserID == userID && (!unreadOnly || !n.Read) {
				n := n
				out = append(out, &n)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, limit, offset), err
}

func (r memNotifications) MarkRead(_ context.Context, id int64, userID int) (bool, error) {
	found := false
	err := r.run(func(st *memState) error {
		n, ok := st.notifications[id]
		if !ok || n.UserID != userID {
			return nil
		}
		n.Read = true
		st.notifications[id] = n
		found = true
		return nil
	})
	return found, err
}

func (r memNotifications) CountUnread(_ context.Context, userID int) (int, error) {
	c := 0
	err := r.run(func(st *memState) error {
		for _, n := range st.notifications {
			if n.UserID == userID && !n.Read {
				c++
			}
		}
		return nil
	})
	return c, err
}
