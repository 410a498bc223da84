package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go-admin-portal/internal/model"
)

// The Memory* repositories mirror the SQL repositories' semantics in process.
// They back unit tests and local runs without PostgreSQL.

type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]model.User
	byEmail map[string]string
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{byID: map[string]model.User{}, byEmail: map[string]string{}}
}

func (r *MemoryUserRepository) FindByID(_ context.Context, id string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return model.User{}, fmt.Errorf("%w: user %s", model.ErrNotFound, id)
	}
	return u, nil
}

func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return model.User{}, fmt.Errorf("%w: user %s", model.ErrNotFound, email)
	}
	return r.byID[id], nil
}

func (r *MemoryUserRepository) Create(_ context.Context, u model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(u.Email)
	if _, exists := r.byEmail[key]; exists {
		return fmt.Errorf("%w: %s", model.ErrUserAlreadyExists, u.Email)
	}
	u.Email = key
	r.byID[u.ID] = u
	r.byEmail[key] = u.ID
	return nil
}

func (r *MemoryUserRepository) Update(_ context.Context, u model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[u.ID]
	if !ok {
		return fmt.Errorf("%w: user %s", model.ErrNotFound, u.ID)
	}
	existing.FullName = u.FullName
	existing.PasswordHash = u.PasswordHash
	existing.Role = u.Role
	existing.Active = u.Active
	existing.UpdatedAt = u.UpdatedAt
	r.byID[u.ID] = existing
	return nil
}

func (r *MemoryUserRepository) List(_ context.Context, query model.UserQuery) ([]model.User, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(query.Search))
	matched := make([]model.User, 0, len(r.byID))
	for _, u := range r.byID {
		if search != "" && !strings.Contains(u.Email, search) && !strings.Contains(strings.ToLower(u.FullName), search) {
			continue
		}
		if query.Role != nil && u.Role != *query.Role {
			continue
		}
		if query.Active != nil && u.Active != *query.Active {
			continue
		}
		matched = append(matched, u)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Email < matched[j].Email })

	return paginate(matched, query.Page, query.Limit), len(matched), nil
}

func (r *MemoryUserRepository) ListActiveByRole(_ context.Context, role model.Role) ([]model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]model.User, 0)
	for _, u := range r.byID {
		if u.Active && u.Role == role {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

func (r *MemoryUserRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID), nil
}

type MemoryTokenRepository struct {
	mu    sync.Mutex
	creds map[string]model.RefreshCredential
}

func NewMemoryTokenRepository() *MemoryTokenRepository {
	return &MemoryTokenRepository{creds: map[string]model.RefreshCredential{}}
}

func (r *MemoryTokenRepository) Create(_ context.Context, c model.RefreshCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.Status == model.RefreshActive && r.familyHasActiveLocked(c.FamilyID) {
		return fmt.Errorf("store refresh credential: family %s already has an active credential", c.FamilyID)
	}
	r.creds[c.ID] = c
	return nil
}

func (r *MemoryTokenRepository) FindByID(_ context.Context, id string) (model.RefreshCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.creds[id]
	if !ok {
		return model.RefreshCredential{}, fmt.Errorf("%w: refresh credential", model.ErrNotFound)
	}
	return c, nil
}

func (r *MemoryTokenRepository) Rotate(_ context.Context, presentedID string, rotatedAt time.Time, successor model.RefreshCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	presented, ok := r.creds[presentedID]
	if !ok || presented.Status != model.RefreshActive {
		return model.ErrRotationConflict
	}

	presented.Status = model.RefreshRotated
	presented.RotatedAt = &rotatedAt
	r.creds[presentedID] = presented
	r.creds[successor.ID] = successor
	return nil
}

func (r *MemoryTokenRepository) RevokeFamily(_ context.Context, familyID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.revokeLocked(at, func(c model.RefreshCredential) bool { return c.FamilyID == familyID }), nil
}

func (r *MemoryTokenRepository) RevokeAllForUser(_ context.Context, userID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.revokeLocked(at, func(c model.RefreshCredential) bool { return c.UserID == userID }), nil
}

func (r *MemoryTokenRepository) FamilyActive(_ context.Context, familyID string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.creds {
		if c.FamilyID == familyID && c.Status == model.RefreshActive && !c.Expired(now) {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryTokenRepository) PurgeExpired(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var purged int64
	for id, c := range r.creds {
		if c.ExpiresAt.Before(cutoff) {
			delete(r.creds, id)
			purged++
		}
	}
	return purged, nil
}

// Family returns a snapshot of every credential in familyID.
func (r *MemoryTokenRepository) Family(familyID string) []model.RefreshCredential {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.RefreshCredential, 0)
	for _, c := range r.creds {
		if c.FamilyID == familyID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out
}

func (r *MemoryTokenRepository) familyHasActiveLocked(familyID string) bool {
	for _, c := range r.creds {
		if c.FamilyID == familyID && c.Status == model.RefreshActive {
			return true
		}
	}
	return false
}

func (r *MemoryTokenRepository) revokeLocked(at time.Time, match func(model.RefreshCredential) bool) int64 {
	var revoked int64
	for id, c := range r.creds {
		if c.Status != model.RefreshActive || !match(c) {
			continue
		}
		c.Status = model.RefreshRevoked
		c.RevokedAt = &at
		r.creds[id] = c
		revoked++
	}
	return revoked
}

type MemoryOverrideRepository struct {
	mu        sync.Mutex
	overrides map[string]model.PageOverride
}

func NewMemoryOverrideRepository() *MemoryOverrideRepository {
	return &MemoryOverrideRepository{overrides: map[string]model.PageOverride{}}
}

func overrideKey(userID string, page model.Page) string {
	return userID + "|" + page.String()
}

func (r *MemoryOverrideRepository) Get(_ context.Context, userID string, page model.Page) (bool, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.overrides[overrideKey(userID, page)]
	return o.HasAccess, ok, nil
}

func (r *MemoryOverrideRepository) ListForUser(_ context.Context, userID string) (map[model.Page]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := map[model.Page]bool{}
	for _, o := range r.overrides {
		if o.UserID == userID {
			out[o.Page] = o.HasAccess
		}
	}
	return out, nil
}

func (r *MemoryOverrideRepository) Upsert(_ context.Context, o model.PageOverride) (*bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := overrideKey(o.UserID, o.Page)
	var previous *bool
	if existing, ok := r.overrides[key]; ok {
		value := existing.HasAccess
		previous = &value
	}
	r.overrides[key] = o
	return previous, nil
}

func (r *MemoryOverrideRepository) Delete(_ context.Context, userID string, page model.Page) (*bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := overrideKey(userID, page)
	existing, ok := r.overrides[key]
	if !ok {
		return nil, nil
	}
	delete(r.overrides, key)
	value := existing.HasAccess
	return &value, nil
}

// MemoryAccessRepository serializes guarded changes over the other memory
// repositories with one mutex.
type MemoryAccessRepository struct {
	mu        sync.Mutex
	users     *MemoryUserRepository
	overrides *MemoryOverrideRepository
	audit     *MemoryAuditRepository
}

func NewMemoryAccessRepository(users *MemoryUserRepository, overrides *MemoryOverrideRepository, audit *MemoryAuditRepository) *MemoryAccessRepository {
	return &MemoryAccessRepository{users: users, overrides: overrides, audit: audit}
}

func (r *MemoryAccessRepository) ApplyOverride(ctx context.Context, w model.OverrideWrite) (model.OverrideChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, err := r.users.FindByID(ctx, w.UserID)
	if err != nil {
		return model.OverrideChange{}, err
	}
	previous := r.override(target.ID, w.Page)

	change := model.OverrideChange{
		UserID:           target.ID,
		Page:             w.Page,
		Before:           model.EffectiveAccess(target.Role, w.Page, previous),
		After:            model.EffectiveAccess(target.Role, w.Page, w.Value),
		PreviousOverride: previous,
	}

	if w.Page == model.PageUserManagement &&
		model.LosesUserManagement(target, change.Before, target, change.After) && !r.otherAdminLocked(target.ID) {
		return model.OverrideChange{}, model.ErrSelfLockout
	}

	if w.Value != nil {
		_, err = r.overrides.Upsert(ctx, model.PageOverride{
			UserID:    target.ID,
			Page:      w.Page,
			HasAccess: *w.Value,
			UpdatedBy: w.UpdatedBy,
			UpdatedAt: w.UpdatedAt,
		})
	} else {
		_, err = r.overrides.Delete(ctx, target.ID, w.Page)
	}
	if err != nil {
		return model.OverrideChange{}, err
	}

	if w.Audit != nil {
		if err := r.audit.Append(ctx, w.Audit(target, change)); err != nil {
			return model.OverrideChange{}, err
		}
	}
	return change, nil
}

func (r *MemoryAccessRepository) ApplyUserUpdate(ctx context.Context, w model.UserWrite) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	before, err := r.users.FindByID(ctx, w.User.ID)
	if err != nil {
		return model.User{}, err
	}

	override := r.override(before.ID, model.PageUserManagement)
	hadAccess := model.EffectiveAccess(before.Role, model.PageUserManagement, override)
	hasAccess := model.EffectiveAccess(w.User.Role, model.PageUserManagement, override)
	if model.LosesUserManagement(before, hadAccess, w.User, hasAccess) && !r.otherAdminLocked(before.ID) {
		return model.User{}, model.ErrSelfLockout
	}

	if err := r.users.Update(ctx, w.User); err != nil {
		return model.User{}, err
	}
	if w.Audit != nil {
		if err := r.audit.Append(ctx, w.Audit(before)); err != nil {
			return model.User{}, err
		}
	}
	return before, nil
}

func (r *MemoryAccessRepository) override(userID string, page model.Page) *bool {
	value, found, _ := r.overrides.Get(context.Background(), userID, page)
	if !found {
		return nil
	}
	return &value
}

func (r *MemoryAccessRepository) otherAdminLocked(userID string) bool {
	admins, _ := r.users.ListActiveByRole(context.Background(), model.RoleAdmin)
	for _, admin := range admins {
		if admin.ID == userID {
			continue
		}
		if model.EffectiveAccess(admin.Role, model.PageUserManagement, r.override(admin.ID, model.PageUserManagement)) {
			return true
		}
	}
	return false
}

type MemoryAuditRepository struct {
	mu      sync.Mutex
	seq     int64
	entries []model.AuditEntry
}

func NewMemoryAuditRepository() *MemoryAuditRepository {
	return &MemoryAuditRepository{}
}

func (r *MemoryAuditRepository) Append(_ context.Context, entry model.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.appendLocked(entry)
	return nil
}

func (r *MemoryAuditRepository) AppendBatch(_ context.Context, entries []model.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range entries {
		r.appendLocked(entry)
	}
	return nil
}

func (r *MemoryAuditRepository) appendLocked(entry model.AuditEntry) {
	r.seq++
	entry.Seq = r.seq
	r.entries = append(r.entries, entry)
}

func (r *MemoryAuditRepository) Query(_ context.Context, scope model.AuditScope, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	r.mu.Lock()
	matched := make([]model.AuditEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if visible(scope, e) && matchesAuditQuery(query, e) {
			matched = append(matched, e)
		}
	}
	r.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].OccurredAt.Equal(matched[j].OccurredAt) {
			return matched[i].OccurredAt.After(matched[j].OccurredAt)
		}
		return matched[i].Seq > matched[j].Seq
	})

	return paginate(matched, query.Page, query.Limit), model.NewMeta(query.Page, query.Limit, len(matched)), nil
}

func (r *MemoryAuditRepository) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.entries[:0]
	var purged int64
	for _, e := range r.entries {
		if e.OccurredAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return purged, nil
}

// Entries returns every stored entry in insertion order.
func (r *MemoryAuditRepository) Entries() []model.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.AuditEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

func visible(scope model.AuditScope, e model.AuditEntry) bool {
	switch {
	case scope.All:
		return true
	case scope.ExcludeAdmin:
		return e.ActorRole != model.RoleAdmin.String() && e.TargetRole != model.RoleAdmin.String()
	case scope.ActorID != "":
		return e.ActorID == scope.ActorID
	default:
		return false
	}
}

func matchesAuditQuery(q model.AuditQuery, e model.AuditEntry) bool {
	if q.Action != "" && string(e.Action) != q.Action {
		return false
	}
	if q.ActorID != "" && e.ActorID != q.ActorID {
		return false
	}
	if q.TargetType != "" && e.TargetType != q.TargetType {
		return false
	}
	if q.TargetID != "" && e.TargetID != q.TargetID {
		return false
	}
	if q.Severity != "" && string(e.Severity) != q.Severity {
		return false
	}
	if !q.From.IsZero() && e.OccurredAt.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && e.OccurredAt.After(q.To) {
		return false
	}
	return true
}

func paginate[T any](items []T, page int, limit int) []T {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		return items
	}

	start := (page - 1) * limit
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
