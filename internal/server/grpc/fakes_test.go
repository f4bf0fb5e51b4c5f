package grpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/charasync/internal/common"
	"github.com/dmitrijs2005/charasync/internal/logging"
	"github.com/dmitrijs2005/charasync/internal/models"
	"github.com/dmitrijs2005/charasync/internal/server/auth"
	"github.com/dmitrijs2005/charasync/internal/server/lobby"
	"github.com/dmitrijs2005/charasync/internal/server/metrics"
	servermodels "github.com/dmitrijs2005/charasync/internal/server/models"
	"github.com/dmitrijs2005/charasync/internal/server/services"
)

const testSecret = "secret"

type fakeUsers struct {
	mu       sync.Mutex
	users    map[string]*servermodels.User
	refresh  map[string]string
	validity time.Duration
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[string]*servermodels.User{}, refresh: map[string]string{}, validity: time.Hour}
}

func (f *fakeUsers) Register(_ context.Context, username string, salt, verifier []byte) (*servermodels.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[username]; ok {
		return nil, common.ErrConflict
	}
	u := &servermodels.User{ID: username, Salt: salt, Verifier: verifier}
	f.users[username] = u
	return u, nil
}

func (f *fakeUsers) GetSalt(_ context.Context, username string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[username]; ok {
		return u.Salt, nil
	}
	return []byte("random"), nil
}

func (f *fakeUsers) pair(userID string) (*services.TokenPair, error) {
	access, err := auth.GenerateToken(userID, []byte(testSecret), f.validity)
	if err != nil {
		return nil, err
	}
	refresh := fmt.Sprintf("r-%s-%d", userID, len(f.refresh))
	f.refresh[refresh] = userID
	return &services.TokenPair{UserID: userID, AccessToken: access, RefreshToken: refresh}, nil
}

func (f *fakeUsers) Login(_ context.Context, username string, verifier []byte) (*services.TokenPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[username]
	if !ok || string(u.Verifier) != string(verifier) {
		return nil, common.ErrUnauthorized
	}
	return f.pair(u.ID)
}

func (f *fakeUsers) RefreshToken(_ context.Context, token string) (*services.TokenPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.refresh[token]
	if !ok {
		return nil, common.ErrUnauthorized
	}
	delete(f.refresh, token)
	f.validity = time.Hour
	return f.pair(userID)
}

type fakeRecords struct {
	mu      sync.Mutex
	records map[string]*models.CharaRecord
	next    int
}

func (f *fakeRecords) Limits() models.Limits {
	return models.Limits{MaxRecords: 5, MaxPoses: 3, CreateCooldown: time.Second}
}

func (f *fakeRecords) Create(_ context.Context, owner string) (*models.CharaRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	rec := models.NewSkeleton(fmt.Sprintf("rec-%d", f.next), owner, time.Now())
	f.records[rec.ID] = rec
	return rec.Clone(), nil
}

func (f *fakeRecords) owned(owner, id string) (*models.CharaRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	if rec.OwnerID != owner {
		return nil, common.ErrPermissionDenied
	}
	return rec, nil
}

func (f *fakeRecords) Update(_ context.Context, owner, id string, u models.RecordUpdate) (*models.CharaRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, err := f.owned(owner, id)
	if err != nil {
		return nil, err
	}
	u.ApplyTo(rec)
	return rec.Clone(), nil
}

func (f *fakeRecords) UploadAppearance(_ context.Context, owner, id string, payload []byte, files []models.FileEntry) (*models.CharaRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, err := f.owned(owner, id)
	if err != nil {
		return nil, err
	}
	rec.Appearance, rec.Files = payload, files
	return rec.Clone(), nil
}

func (f *fakeRecords) Delete(_ context.Context, owner, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.owned(owner, id); err != nil {
		return err
	}
	delete(f.records, id)
	return nil
}

func (f *fakeRecords) Owned(_ context.Context, owner string) ([]*models.CharaRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.CharaRecord{}
	for _, r := range f.records {
		if r.OwnerID == owner {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (f *fakeRecords) Shared(_ context.Context, viewer string) ([]*models.CharaRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.CharaRecord{}
	for _, r := range f.records {
		if r.OwnerID != viewer && r.ShareRule == models.ShareShared {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (f *fakeRecords) lookup(code models.Code) (*models.CharaRecord, error) {
	rec, ok := f.records[code.RecordID]
	if !ok || rec.OwnerID != code.OwnerID {
		return nil, common.ErrNotFound
	}
	return rec, nil
}

func (f *fakeRecords) FetchMeta(_ context.Context, _ string, code models.Code) (*models.RecordMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, err := f.lookup(code)
	if err != nil {
		return nil, err
	}
	return rec.Meta(len(rec.Appearance) > 0), nil
}

func (f *fakeRecords) Download(_ context.Context, _ string, code models.Code) (*models.CharaRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, err := f.lookup(code)
	if err != nil {
		return nil, err
	}
	rec.DownloadCount++
	return rec.Clone(), nil
}

type fakeFiles struct {
	mu       sync.Mutex
	uploaded map[models.Hash]bool
}

func (f *fakeFiles) Missing(_ context.Context, hashes []models.Hash) ([]models.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Hash{}
	for _, h := range hashes {
		if !f.uploaded[h] {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeFiles) UploadTasks(ctx context.Context, hashes []models.Hash) ([]models.TransferTask, error) {
	missing, _ := f.Missing(ctx, hashes)
	tasks := make([]models.TransferTask, 0, len(missing))
	for _, h := range missing {
		tasks = append(tasks, models.TransferTask{Hash: h, URL: "http://s3.test/put/" + string(h)})
	}
	return tasks, nil
}

func (f *fakeFiles) MarkUploaded(_ context.Context, hash models.Hash) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !hash.Valid() {
		return common.ErrValidationFailed
	}
	f.uploaded[hash] = true
	return nil
}

func (f *fakeFiles) DownloadURLs(ctx context.Context, hashes []models.Hash) ([]models.TransferTask, error) {
	missing, _ := f.Missing(ctx, hashes)
	if len(missing) > 0 {
		return nil, common.ErrNotFound
	}
	tasks := make([]models.TransferTask, 0, len(hashes))
	for _, h := range hashes {
		tasks = append(tasks, models.TransferTask{Hash: h, URL: "http://s3.test/get/" + string(h)})
	}
	return tasks, nil
}

type fakeRelations struct {
	mu  sync.Mutex
	rel map[string]models.Relationships
}

func (f *fakeRelations) Relationships(_ context.Context, userID string) (models.Relationships, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rel[userID], nil
}

func (f *fakeRelations) PairWith(_ context.Context, userID, other string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if userID == other {
		return common.ErrValidationFailed
	}
	r := f.rel[userID]
	r.Pairs = append(r.Pairs, models.Pair{UserID: userID, OtherID: other})
	f.rel[userID] = r
	return nil
}

func (f *fakeRelations) SetPairPaused(_ context.Context, userID, other string, paused bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.rel[userID]
	for i, p := range r.Pairs {
		if p.OtherID == other {
			r.Pairs[i].Paused = paused
			return nil
		}
	}
	return common.ErrNotFound
}

func (f *fakeRelations) JoinGroup(_ context.Context, userID, groupID, password string) error {
	if password == "" {
		return common.ErrValidationFailed
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.rel[userID]
	r.Memberships = append(r.Memberships, models.Membership{GroupID: groupID, UserID: userID})
	f.rel[userID] = r
	return nil
}

type fixture struct {
	users   *fakeUsers
	records *fakeRecords
	files   *fakeFiles
	server  *GRPCServer
}

func newFixture() *fixture {
	f := &fixture{
		users:   newFakeUsers(),
		records: &fakeRecords{records: map[string]*models.CharaRecord{}},
		files:   &fakeFiles{uploaded: map[models.Hash]bool{}},
	}
	f.server = NewGRPCServer("127.0.0.1:0", logging.NewNop(), Services{
		Users:     f.users,
		Records:   f.records,
		Files:     f.files,
		Relations: &fakeRelations{rel: map[string]models.Relationships{}},
		Lobbies:   lobby.NewService(lobby.NewMemoryBackend(), logging.NewNop()),
	}, metrics.New(), testSecret)
	return f
}
