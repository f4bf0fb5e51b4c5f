package services

import (
	"context"
	"database/sql"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/charasync/internal/common"
	"github.com/dmitrijs2005/charasync/internal/dbx"
	sharedmodels "github.com/dmitrijs2005/charasync/internal/models"
	"github.com/dmitrijs2005/charasync/internal/server/models"
	"github.com/dmitrijs2005/charasync/internal/server/repositories/files"
	"github.com/dmitrijs2005/charasync/internal/server/repositories/records"
	"github.com/dmitrijs2005/charasync/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/charasync/internal/server/repositories/relations"
	"github.com/dmitrijs2005/charasync/internal/server/repositories/users"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

// --- users ---

type memUsers struct {
	mu        sync.Mutex
	byID      map[string]*models.User
	createErr error
	getErr    error
}

func (f *memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, ok := f.byID[u.ID]; ok {
		return nil, common.ErrConflict
	}
	c := *u
	c.CreatedAt = time.Now()
	f.byID[u.ID] = &c
	return &c, nil
}

func (f *memUsers) GetUserByLogin(_ context.Context, login string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byID[login]
	if !ok {
		return nil, common.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (f *memUsers) Exists(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return false, f.getErr
	}
	_, ok := f.byID[id]
	return ok, nil
}

// --- refresh tokens ---

type memTokens struct {
	mu        sync.Mutex
	byToken   map[string]*models.RefreshToken
	takeErr   error
	delErr    error
	createErr error
}

func (f *memTokens) Create(_ context.Context, userID, token string, expires time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.byToken[token] = &models.RefreshToken{UserID: userID, Token: token, Expires: expires}
	return nil
}

func (f *memTokens) Take(_ context.Context, token string) (*models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.takeErr != nil {
		return nil, f.takeErr
	}
	t, ok := f.byToken[token]
	if !ok {
		return nil, common.ErrNotFound
	}
	delete(f.byToken, token)
	c := *t
	return &c, nil
}

func (f *memTokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delErr != nil {
		return 0, f.delErr
	}
	var n int64
	for k, t := range f.byToken {
		if t.Expires.Before(now) {
			delete(f.byToken, k)
			n++
		}
	}
	return n, nil
}

// --- records ---

type memRecords struct {
	mu   sync.Mutex
	byID map[string]*sharedmodels.CharaRecord
	err  error
}

func (f *memRecords) Create(_ context.Context, rec *sharedmodels.CharaRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.byID[rec.ID]; ok {
		return common.ErrConflict
	}
	f.byID[rec.ID] = rec.Clone()
	return nil
}

func (f *memRecords) Get(_ context.Context, id string) (*sharedmodels.CharaRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	rec, ok := f.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return rec.Clone(), nil
}

func (f *memRecords) GetForUpdate(ctx context.Context, id string) (*sharedmodels.CharaRecord, error) {
	return f.Get(ctx, id)
}

func (f *memRecords) Update(_ context.Context, rec *sharedmodels.CharaRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	old, ok := f.byID[rec.ID]
	if !ok || old.OwnerID != rec.OwnerID {
		return common.ErrNotFound
	}
	f.byID[rec.ID] = rec.Clone()
	return nil
}

func (f *memRecords) Delete(_ context.Context, id, ownerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byID[id]
	if !ok || rec.OwnerID != ownerID {
		return common.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *memRecords) list(keep func(*sharedmodels.CharaRecord) bool) []*sharedmodels.CharaRecord {
	out := []*sharedmodels.CharaRecord{}
	for _, rec := range f.byID {
		if keep(rec) {
			out = append(out, rec.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *sharedmodels.CharaRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

func (f *memRecords) ListByOwner(_ context.Context, ownerID string) ([]*sharedmodels.CharaRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list(func(r *sharedmodels.CharaRecord) bool { return r.OwnerID == ownerID }), nil
}

func (f *memRecords) ListShared(_ context.Context, viewerID string, now time.Time) ([]*sharedmodels.CharaRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list(func(r *sharedmodels.CharaRecord) bool {
		return r.ShareRule == sharedmodels.ShareShared && r.OwnerID != viewerID && !r.Expired(now)
	}), nil
}

func (f *memRecords) CountByOwner(_ context.Context, ownerID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	n := 0
	for _, r := range f.byID {
		if r.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

func (f *memRecords) IncrementDownloads(_ context.Context, id string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byID[id]
	if !ok {
		return 0, common.ErrNotFound
	}
	rec.DownloadCount++
	return rec.DownloadCount, nil
}

func (f *memRecords) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, r := range f.byID {
		if r.Expired(now) {
			delete(f.byID, id)
			n++
		}
	}
	return n, nil
}

// --- files ---

type memFiles struct {
	mu     sync.Mutex
	byHash map[sharedmodels.Hash]*models.FileObject
	err    error
}

func (f *memFiles) Register(_ context.Context, hashes []sharedmodels.Hash) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for _, h := range hashes {
		if _, ok := f.byHash[h]; !ok {
			f.byHash[h] = &models.FileObject{Hash: h, CreatedAt: time.Now()}
		}
	}
	return nil
}

func (f *memFiles) Uploaded(_ context.Context, hashes []sharedmodels.Hash) ([]sharedmodels.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := []sharedmodels.Hash{}
	for _, h := range hashes {
		if o, ok := f.byHash[h]; ok && o.Uploaded && !slices.Contains(out, h) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *memFiles) MarkUploaded(_ context.Context, hash sharedmodels.Hash, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	o, ok := f.byHash[hash]
	if !ok {
		o = &models.FileObject{Hash: hash, CreatedAt: at}
		f.byHash[hash] = o
	}
	o.Uploaded = true
	o.UploadedAt = &at
	return nil
}

func (f *memFiles) Get(_ context.Context, hash sharedmodels.Hash) (*models.FileObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.byHash[hash]
	if !ok {
		return nil, common.ErrNotFound
	}
	c := *o
	return &c, nil
}

// --- relations ---

type memRelations struct {
	mu      sync.Mutex
	pairs   []sharedmodels.Pair
	members []sharedmodels.Membership
	groups  map[string]*models.Group
	err     error
}

func (f *memRelations) Group(_ context.Context, groupID string) (*models.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	g, ok := f.groups[groupID]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (f *memRelations) CreateGroup(_ context.Context, g *models.Group) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.groups == nil {
		f.groups = map[string]*models.Group{}
	}
	if _, ok := f.groups[g.ID]; ok {
		return common.ErrConflict
	}
	cp := *g
	f.groups[g.ID] = &cp
	return nil
}

func (f *memRelations) Pair(_ context.Context, userID, otherID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for _, p := range f.pairs {
		if p.UserID == userID && p.OtherID == otherID {
			return nil
		}
	}
	f.pairs = append(f.pairs, sharedmodels.Pair{UserID: userID, OtherID: otherID})
	return nil
}

func (f *memRelations) SetPaused(_ context.Context, userID, otherID string, paused bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.pairs {
		if p.UserID == userID && p.OtherID == otherID {
			f.pairs[i].Paused = paused
			return nil
		}
	}
	return common.ErrNotFound
}

func (f *memRelations) JoinGroup(_ context.Context, groupID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members {
		if m.GroupID == groupID && m.UserID == userID {
			return nil
		}
	}
	f.members = append(f.members, sharedmodels.Membership{GroupID: groupID, UserID: userID})
	return nil
}

func (f *memRelations) Relationships(_ context.Context, userID string) (sharedmodels.Relationships, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rel := sharedmodels.Relationships{Pairs: []sharedmodels.Pair{}, Memberships: []sharedmodels.Membership{}}
	if f.err != nil {
		return rel, f.err
	}
	for _, p := range f.pairs {
		if p.UserID == userID || p.OtherID == userID {
			rel.Pairs = append(rel.Pairs, p)
		}
	}
	groups := map[string]bool{}
	for _, m := range f.members {
		if m.UserID == userID {
			groups[m.GroupID] = true
		}
	}
	for _, m := range f.members {
		if groups[m.GroupID] {
			rel.Memberships = append(rel.Memberships, m)
		}
	}
	return rel, nil
}

// --- manager ---

type fakeRepoManager struct {
	users     *memUsers
	tokens    *memTokens
	records   *memRecords
	files     *memFiles
	relations *memRelations
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		users:     &memUsers{byID: map[string]*models.User{}},
		tokens:    &memTokens{byToken: map[string]*models.RefreshToken{}},
		records:   &memRecords{byID: map[string]*sharedmodels.CharaRecord{}},
		files:     &memFiles{byHash: map[sharedmodels.Hash]*models.FileObject{}},
		relations: &memRelations{},
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error     { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository                 { return m.users }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return m.tokens }
func (m *fakeRepoManager) Records(dbx.DBTX) records.Repository             { return m.records }
func (m *fakeRepoManager) Files(dbx.DBTX) files.Repository                 { return m.files }
func (m *fakeRepoManager) Relations(dbx.DBTX) relations.Repository         { return m.relations }
