// Package memory provides in-process repositories for DATABASE_URL=memory and
// for tests. Every method copies values in and out.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/diagnosis/pillatuvisa-backoffice/internal/domain"
)

type Users struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]domain.User
}

func NewUsers() *Users {
	return &Users{nextID: 1, rows: make(map[int64]domain.User)}
}

func (r *Users) FindByIdentifier(_ context.Context, identifier string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ident := strings.ToLower(strings.TrimSpace(identifier))
	if ident == "" {
		return nil, nil
	}
	var byEmail *domain.User
	for _, id := range r.sortedIDs() {
		u := r.rows[id]
		if strings.ToLower(u.Username) == ident {
			return &u, nil
		}
		if byEmail == nil && u.Email != "" && strings.ToLower(u.Email) == ident {
			cp := u
			byEmail = &cp
		}
	}
	return byEmail, nil
}

func (r *Users) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, id := range r.sortedIDs() {
		u := r.rows[id]
		if u.Email != "" && strings.ToLower(u.Email) == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *Users) FindByResetToken(_ context.Context, tokenHash string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.rows {
		if tokenHash != "" && u.ResetTokenHash == tokenHash {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *Users) UpgradeHash(_ context.Context, userID int64, hash string) error {
	return r.update(userID, func(u *domain.User) { u.PasswordHash = hash })
}

func (r *Users) SetResetToken(_ context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	return r.update(userID, func(u *domain.User) {
		u.ResetTokenHash = tokenHash
		exp := expiresAt
		u.ResetExpiresAt = &exp
	})
}

func (r *Users) ClearResetToken(_ context.Context, userID int64) error {
	return r.update(userID, func(u *domain.User) {
		u.ResetTokenHash = ""
		u.ResetExpiresAt = nil
	})
}

func (r *Users) CompleteReset(_ context.Context, userID int64, tokenHash, newHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.rows[userID]
	if !ok || tokenHash == "" || u.ResetTokenHash != tokenHash {
		return false, nil
	}
	u.PasswordHash = newHash
	u.ResetTokenHash = ""
	u.ResetExpiresAt = nil
	u.UpdatedAt = time.Now()
	r.rows[userID] = u
	return true, nil
}

func (r *Users) EnsureUser(_ context.Context, u domain.User) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rows {
		if strings.EqualFold(existing.Username, u.Username) {
			return false, nil
		}
		if u.Email != "" && strings.EqualFold(existing.Email, u.Email) {
			return false, nil
		}
	}
	now := time.Now()
	u.ID = r.nextID
	r.nextID++
	u.CreatedAt, u.UpdatedAt = now, now
	r.rows[u.ID] = u
	return true, nil
}

// Get is a test helper.
func (r *Users) Get(userID int64) (domain.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.rows[userID]
	return u, ok
}

func (r *Users) update(userID int64, fn func(*domain.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.rows[userID]
	if !ok {
		return domain.ErrNotFound
	}
	fn(&u)
	u.UpdatedAt = time.Now()
	r.rows[userID] = u
	return nil
}

func (r *Users) sortedIDs() []int64 {
	ids := make([]int64, 0, len(r.rows))
	for id := range r.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type Sessions struct {
	mu   sync.Mutex
	rows map[string]domain.Session
	// Err, when set, is returned by every call.
	Err error
}

func NewSessions() *Sessions {
	return &Sessions{rows: make(map[string]domain.Session)}
}

func (r *Sessions) Create(_ context.Context, s domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if _, exists := r.rows[s.Token]; exists {
		return domain.ErrConflict
	}
	r.rows[s.Token] = s
	return nil
}

func (r *Sessions) Get(_ context.Context, token string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	s, ok := r.rows[token]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *Sessions) Touch(_ context.Context, token string, expiresAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return false, r.Err
	}
	s, ok := r.rows[token]
	if !ok {
		return false, nil
	}
	s.ExpiresAt = expiresAt
	r.rows[token] = s
	return true, nil
}

func (r *Sessions) Delete(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	delete(r.rows, token)
	return nil
}

func (r *Sessions) DeleteByUser(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	for tok, s := range r.rows {
		if s.UserID == userID {
			delete(r.rows, tok)
		}
	}
	return nil
}

func (r *Sessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return 0, r.Err
	}
	var n int64
	for tok, s := range r.rows {
		if s.Expired(now) {
			delete(r.rows, tok)
			n++
		}
	}
	return n, nil
}

// Len is a test helper.
func (r *Sessions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

type Receipts struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]domain.Receipt
}

func NewReceipts() *Receipts {
	return &Receipts{nextID: 1, rows: make(map[int64]domain.Receipt)}
}

func (r *Receipts) Create(_ context.Context, in domain.ReceiptInput) (*domain.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := domain.Receipt{
		ID:          r.nextID,
		ClientName:  in.ClientName,
		ClientEmail: in.ClientEmail,
		Concept:     in.Concept,
		Amount:      in.Amount,
		Method:      in.Method,
		CreatedAt:   time.Now(),
	}
	r.nextID++
	r.rows[rec.ID] = rec
	return &rec, nil
}

func (r *Receipts) Get(_ context.Context, id int64) (*domain.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *Receipts) List(_ context.Context, limit int) ([]domain.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Receipt, 0, len(r.rows))
	for _, rec := range r.rows {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Receipts) ListClients(ctx context.Context, limit int) ([]domain.ClientSummary, error) {
	rows, err := r.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ClientSummary, 0, len(rows))
	for _, rec := range rows {
		out = append(out, domain.ClientSummary{ID: rec.ID, Name: rec.ClientName, Email: rec.ClientEmail})
	}
	return out, nil
}

func (r *Receipts) Delete(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return false, nil
	}
	delete(r.rows, id)
	return true, nil
}

type Leads struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]domain.Lead
}

func NewLeads() *Leads {
	return &Leads{nextID: 1, rows: make(map[int64]domain.Lead)}
}

func (r *Leads) Create(_ context.Context, l domain.Lead) (*domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	l.ID = r.nextID
	r.nextID++
	if l.Status == "" {
		l.Status = domain.LeadNew
	}
	l.CreatedAt, l.UpdatedAt = now, now
	r.rows[l.ID] = l
	return &l, nil
}

func (r *Leads) List(_ context.Context, limit int) ([]domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Lead, 0, len(r.rows))
	for _, l := range r.rows {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Leads) UpdateStatus(_ context.Context, id int64, status domain.LeadStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.rows[id]
	if !ok {
		return false, nil
	}
	l.Status = status
	l.UpdatedAt = time.Now()
	r.rows[id] = l
	return true, nil
}
