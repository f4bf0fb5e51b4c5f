package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/charasync/internal/client/client"
	"github.com/dmitrijs2005/charasync/internal/client/migrations"
	"github.com/dmitrijs2005/charasync/internal/dbx"
	"github.com/dmitrijs2005/charasync/internal/models"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, dbx.Migrate(context.Background(), db, "sqlite3", migrations.Migrations))
	return db
}

// fakeClient implements client.Client; unset hooks fall back to zero
// values, and calls are counted by method name.
type fakeClient struct {
	client.Client

	mu    sync.Mutex
	calls map[string]int

	registerFn func(username string, salt, verifier []byte) (string, error)
	getSaltFn  func(username string) ([]byte, error)
	loginFn    func(username string, verifier []byte) (string, error)
	pingErr    error
	closeErr   error

	limits      models.Limits
	createFn    func(ctx context.Context) (*models.CharaRecord, error)
	updateFn    func(ctx context.Context, id string, u models.RecordUpdate) (*models.CharaRecord, error)
	deleteFn    func(ctx context.Context, id string) error
	ownedFn     func(ctx context.Context) ([]*models.CharaRecord, error)
	sharedFn    func(ctx context.Context) ([]*models.CharaRecord, error)
	metaFn      func(ctx context.Context, code models.Code) (*models.RecordMeta, error)
	downloadFn  func(ctx context.Context, code models.Code) (*models.CharaRecord, error)
	appearFn    func(ctx context.Context, id string, payload []byte, files []models.FileEntry) (*models.CharaRecord, error)
	checkFn     func(ctx context.Context, hashes []models.Hash) ([]models.Hash, error)
	uploadFn    func(ctx context.Context, hashes []models.Hash) ([]models.TransferTask, error)
	markFn      func(ctx context.Context, h models.Hash) error
	urlsFn      func(ctx context.Context, hashes []models.Hash) ([]models.TransferTask, error)
	relFn       func(ctx context.Context) (models.Relationships, error)
	pairFn      func(ctx context.Context, userID string) error
	pauseFn     func(ctx context.Context, userID string, paused bool) error
	joinGroupFn func(ctx context.Context, groupID, password string) error

	createLobbyFn func(ctx context.Context) (models.LobbyInfo, error)
	joinLobbyFn   func(ctx context.Context, id string) (models.LobbyInfo, error)
	leaveLobbyFn  func(ctx context.Context, id string) error
	broadcastFn   func(ctx context.Context, id string, snap models.LobbySnapshot) error
	eventsFn      func(ctx context.Context, id string) (<-chan models.LobbyEvent, error)
}

func (f *fakeClient) hit(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
}

func (f *fakeClient) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeClient) Register(_ context.Context, username string, salt, verifier []byte) (string, error) {
	f.hit("Register")
	if f.registerFn != nil {
		return f.registerFn(username, salt, verifier)
	}
	return "uid-" + username, nil
}

func (f *fakeClient) GetSalt(_ context.Context, username string) ([]byte, error) {
	f.hit("GetSalt")
	if f.getSaltFn != nil {
		return f.getSaltFn(username)
	}
	return nil, nil
}

func (f *fakeClient) Login(_ context.Context, username string, verifier []byte) (string, error) {
	f.hit("Login")
	if f.loginFn != nil {
		return f.loginFn(username, verifier)
	}
	return "uid-" + username, nil
}

func (f *fakeClient) Ping(context.Context) error { f.hit("Ping"); return f.pingErr }
func (f *fakeClient) Close() error              { f.hit("Close"); return f.closeErr }

func (f *fakeClient) GetLimits(context.Context) (models.Limits, error) {
	f.hit("GetLimits")
	return f.limits, nil
}

func (f *fakeClient) CreateRecord(ctx context.Context) (*models.CharaRecord, error) {
	f.hit("CreateRecord")
	return f.createFn(ctx)
}

func (f *fakeClient) UpdateRecord(ctx context.Context, id string, u models.RecordUpdate) (*models.CharaRecord, error) {
	f.hit("UpdateRecord")
	return f.updateFn(ctx, id, u)
}

func (f *fakeClient) DeleteRecord(ctx context.Context, id string) error {
	f.hit("DeleteRecord")
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id)
	}
	return nil
}

func (f *fakeClient) GetOwnedRecords(ctx context.Context) ([]*models.CharaRecord, error) {
	f.hit("GetOwnedRecords")
	if f.ownedFn != nil {
		return f.ownedFn(ctx)
	}
	return nil, nil
}

func (f *fakeClient) GetSharedRecords(ctx context.Context) ([]*models.CharaRecord, error) {
	f.hit("GetSharedRecords")
	if f.sharedFn != nil {
		return f.sharedFn(ctx)
	}
	return nil, nil
}

func (f *fakeClient) FetchMetaInfo(ctx context.Context, code models.Code) (*models.RecordMeta, error) {
	f.hit("FetchMetaInfo")
	return f.metaFn(ctx, code)
}

func (f *fakeClient) DownloadRecord(ctx context.Context, code models.Code) (*models.CharaRecord, error) {
	f.hit("DownloadRecord")
	return f.downloadFn(ctx, code)
}

func (f *fakeClient) UploadAppearance(ctx context.Context, id string, payload []byte, files []models.FileEntry) (*models.CharaRecord, error) {
	f.hit("UploadAppearance")
	return f.appearFn(ctx, id, payload, files)
}

func (f *fakeClient) CheckFilesExist(ctx context.Context, hashes []models.Hash) ([]models.Hash, error) {
	f.hit("CheckFilesExist")
	if f.checkFn != nil {
		return f.checkFn(ctx, hashes)
	}
	return nil, nil
}

func (f *fakeClient) UploadFiles(ctx context.Context, hashes []models.Hash) ([]models.TransferTask, error) {
	f.hit("UploadFiles")
	return f.uploadFn(ctx, hashes)
}

func (f *fakeClient) MarkUploaded(ctx context.Context, h models.Hash) error {
	f.hit("MarkUploaded")
	if f.markFn != nil {
		return f.markFn(ctx, h)
	}
	return nil
}

func (f *fakeClient) DownloadURLs(ctx context.Context, hashes []models.Hash) ([]models.TransferTask, error) {
	f.hit("DownloadURLs")
	return f.urlsFn(ctx, hashes)
}

func (f *fakeClient) GetRelationships(ctx context.Context) (models.Relationships, error) {
	f.hit("GetRelationships")
	if f.relFn != nil {
		return f.relFn(ctx)
	}
	return models.Relationships{}, nil
}

func (f *fakeClient) PairWith(ctx context.Context, userID string) error {
	f.hit("PairWith")
	if f.pairFn != nil {
		return f.pairFn(ctx, userID)
	}
	return nil
}

func (f *fakeClient) SetPairPaused(ctx context.Context, userID string, paused bool) error {
	f.hit("SetPairPaused")
	if f.pauseFn != nil {
		return f.pauseFn(ctx, userID, paused)
	}
	return nil
}

func (f *fakeClient) JoinGroup(ctx context.Context, groupID, password string) error {
	f.hit("JoinGroup")
	if f.joinGroupFn != nil {
		return f.joinGroupFn(ctx, groupID, password)
	}
	return nil
}

func (f *fakeClient) CreateLobby(ctx context.Context) (models.LobbyInfo, error) {
	f.hit("CreateLobby")
	return f.createLobbyFn(ctx)
}

func (f *fakeClient) JoinLobby(ctx context.Context, id string) (models.LobbyInfo, error) {
	f.hit("JoinLobby")
	return f.joinLobbyFn(ctx, id)
}

func (f *fakeClient) LeaveLobby(ctx context.Context, id string) error {
	f.hit("LeaveLobby")
	if f.leaveLobbyFn != nil {
		return f.leaveLobbyFn(ctx, id)
	}
	return nil
}

func (f *fakeClient) BroadcastSnapshot(ctx context.Context, id string, snap models.LobbySnapshot) error {
	f.hit("BroadcastSnapshot")
	if f.broadcastFn != nil {
		return f.broadcastFn(ctx, id, snap)
	}
	return nil
}

func (f *fakeClient) LobbyEvents(ctx context.Context, id string) (<-chan models.LobbyEvent, error) {
	f.hit("LobbyEvents")
	return f.eventsFn(ctx, id)
}
