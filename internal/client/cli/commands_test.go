package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/charasync/internal/client/client"
	"github.com/dmitrijs2005/charasync/internal/client/filecache"
	"github.com/dmitrijs2005/charasync/internal/client/nearby"
	"github.com/dmitrijs2005/charasync/internal/client/services"
	"github.com/dmitrijs2005/charasync/internal/common"
	"github.com/dmitrijs2005/charasync/internal/logging"
	"github.com/dmitrijs2005/charasync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI implements the calls the command tests reach; anything else
// panics through the nil embedded interface.
type fakeAPI struct {
	client.Client

	mu      sync.Mutex
	updates []models.RecordUpdate
	created int
	owned   []*models.CharaRecord
	shared  []*models.CharaRecord
	joined  map[string]string
}

func (f *fakeAPI) GetOwnedRecords(_ context.Context) ([]*models.CharaRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneAll(f.owned), nil
}

func (f *fakeAPI) GetSharedRecords(_ context.Context) ([]*models.CharaRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneAll(f.shared), nil
}

func (f *fakeAPI) GetRelationships(_ context.Context) (models.Relationships, error) {
	return models.Relationships{}, nil
}

func (f *fakeAPI) JoinGroup(_ context.Context, groupID, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joined == nil {
		f.joined = map[string]string{}
	}
	f.joined[groupID] = password
	return nil
}

func cloneAll(recs []*models.CharaRecord) []*models.CharaRecord {
	out := make([]*models.CharaRecord, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Clone())
	}
	return out
}

func (f *fakeAPI) CreateRecord(_ context.Context) (*models.CharaRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return models.NewSkeleton("new-1", "alice", time.Now()), nil
}

func (f *fakeAPI) UpdateRecord(_ context.Context, id string, u models.RecordUpdate) (*models.CharaRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
	rec := models.NewSkeleton(id, "alice", time.Now())
	u.ApplyTo(rec)
	return rec, nil
}

func (f *fakeAPI) CheckFilesExist(_ context.Context, _ []models.Hash) ([]models.Hash, error) {
	return nil, nil
}

type testApp struct {
	*App
	api *fakeAPI
	out *bytes.Buffer
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	api := &fakeAPI{}
	out := &bytes.Buffer{}
	nop := logging.NewNop()

	files, err := filecache.New(t.TempDir())
	require.NoError(t, err)

	a := &App{logger: nop, out: out, files: files, userID: "alice", userName: "alice", Mode: ModeOnline}
	a.records = services.NewRecordStore(api, nil, services.RecordStoreConfig{}, nop)
	a.catalog = services.NewSharedCatalog()
	a.orchestrator = services.NewOrchestrator(api, a.records, services.NewFileResolver(api, files, nil, nop),
		a.catalog, nil, services.OrchestratorConfig{OperationTimeout: time.Minute}, nop)
	t.Cleanup(a.orchestrator.Close)
	a.relations = services.NewRelationshipService(api)
	a.lobby = services.NewLobbyManager(api, 1, nop)
	a.nearby = nearby.New(a.nearbyPool, a.currentObserver, a.currentUser, time.Second, nearby.Options{}, nop)

	a.records.ReplaceOwned([]*models.CharaRecord{models.NewSkeleton("r1", "alice", time.Now())})
	return &testApp{App: a, api: api, out: out}
}

func TestDescribeAndSave(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, a.Describe(ctx, []string{"r1", "beach", "outfit"}))
	require.NoError(t, a.ShowRecord(ctx, []string{"r1"}))
	assert.Contains(t, a.out.String(), "Description: beach outfit")
	assert.Contains(t, a.out.String(), "Unsaved:     general")

	require.NoError(t, a.Save(ctx, []string{"r1"}))
	require.Len(t, a.api.updates, 1)
	require.NotNil(t, a.api.updates[0].General)
	assert.Equal(t, "beach outfit", a.api.updates[0].General.Description)
	assert.Nil(t, a.api.updates[0].Access)

	rec, ok := a.records.Get("r1")
	require.True(t, ok)
	assert.Equal(t, "beach outfit", rec.Description)
}

func TestSetAccessAndIdentities(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	err := a.SetAccess(ctx, []string{"r1", "everyone", "shared"})
	assert.ErrorIs(t, err, common.ErrValidationFailed)

	require.NoError(t, a.SetAccess(ctx, []string{"r1", "specified", "shared"}))
	require.NoError(t, a.Allow(ctx, []string{"r1", "user", "bob"}))
	require.NoError(t, a.Allow(ctx, []string{"r1", "group", "fc-moogle"}))
	assert.ErrorIs(t, a.Allow(ctx, []string{"r1", "alien", "x"}), errUsage)

	rec, err := a.working("r1")
	require.NoError(t, err)
	assert.Equal(t, models.AccessSpecified, rec.AccessRule)
	assert.Equal(t, models.ShareShared, rec.ShareRule)
	assert.Equal(t, []string{"bob"}, rec.AllowedUsers)
	assert.Equal(t, []string{"fc-moogle"}, rec.AllowedGroups)

	require.NoError(t, a.Deny(ctx, []string{"r1", "user", "bob"}))
	assert.ErrorIs(t, a.Deny(ctx, []string{"r1", "user", "bob"}), common.ErrNotFound)

	require.NoError(t, a.Undo(ctx, []string{"r1"}))
	rec, err = a.working("r1")
	require.NoError(t, err)
	assert.Equal(t, models.ShareCodeOnly, rec.ShareRule)
}

func TestPoseUsesObserverPosition(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, a.WhereAmI(ctx, []string{"1", "2", "3", "10", "0", "5"}))
	require.NoError(t, a.Pose(ctx, []string{"add", "r1", "by", "the", "fountain"}))

	rec, err := a.working("r1")
	require.NoError(t, err)
	require.Len(t, rec.Poses, 1)
	assert.Equal(t, "by the fountain", rec.Poses[0].Description)
	require.NotNil(t, rec.Poses[0].World)
	assert.Equal(t, uint32(2), rec.Poses[0].World.Location.MapID)

	require.NoError(t, a.Pose(ctx, []string{"clear", "r1", "0"}))
	rec, _ = a.working("r1")
	assert.Zero(t, rec.ActivePoses())
	assert.ErrorIs(t, a.Pose(ctx, []string{"clear", "r1", "x"}), errUsage)
}

func TestNearbyListsSharedPoses(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	shared := models.NewSkeleton("s1", "bob", time.Now())
	shared.ShareRule = models.ShareShared
	shared.Poses = []models.PoseEntry{{
		Description: "sitting",
		World: &models.WorldData{
			Location: models.Location{ServerID: 1, MapID: 2, InstanceID: 3},
			Position: models.Vec3{X: 3, Z: 4},
		},
	}}
	a.catalog.Replace([]*models.CharaRecord{shared})

	require.NoError(t, a.Nearby(ctx, nil))
	assert.Contains(t, a.out.String(), "use whereami first")

	require.NoError(t, a.WhereAmI(ctx, []string{"1", "2", "3", "0", "0", "0"}))
	a.out.Reset()
	require.NoError(t, a.Nearby(ctx, []string{"10"}))
	assert.Contains(t, a.out.String(), "5.0m")
	assert.Contains(t, a.out.String(), "bob  s1#0  sitting")

	a.out.Reset()
	require.NoError(t, a.Nearby(ctx, []string{"2"}))
	assert.Contains(t, a.out.String(), "No poses nearby")
}

func TestOfflineRefusesServerCommands(t *testing.T) {
	a := newTestApp(t)
	a.setMode(ModeOffline)
	ctx := context.Background()

	assert.ErrorIs(t, a.CreateRecord(ctx, nil), common.ErrTransportFailure)
	assert.ErrorIs(t, a.Save(ctx, []string{"r1"}), common.ErrTransportFailure)
	assert.ErrorIs(t, a.Lobby(ctx, []string{"create"}), common.ErrTransportFailure)
	assert.Zero(t, a.api.created)

	// local edits still work
	require.NoError(t, a.Describe(ctx, []string{"r1", "draft"}))
	require.NoError(t, a.Lobby(ctx, []string{"status"}))
	assert.Contains(t, a.out.String(), string(services.LobbyNoSession))
}

func TestCreateRecord(t *testing.T) {
	a := newTestApp(t)

	require.NoError(t, a.CreateRecord(context.Background(), nil))
	assert.Equal(t, 1, a.api.created)
	assert.Contains(t, a.out.String(), "share code alice:new-1")
}

func TestListRecordsMarksDirty(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, a.Describe(ctx, []string{"r1", "x"}))
	require.NoError(t, a.ListRecords(ctx, nil))
	assert.True(t, strings.HasPrefix(a.out.String(), "* alice:r1"))
}

func TestParseAccess(t *testing.T) {
	ar, sr, err := parseAccess("ALL_PAIRS", "shared")
	require.NoError(t, err)
	assert.Equal(t, models.AccessAllPairs, ar)
	assert.Equal(t, models.ShareShared, sr)

	_, _, err = parseAccess("friends", "shared")
	assert.ErrorIs(t, err, common.ErrValidationFailed)
}

func TestParseExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	at, err := parseExpiry("never", now)
	require.NoError(t, err)
	assert.Nil(t, at)

	at, err = parseExpiry("48h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(48*time.Hour), *at)

	for _, bad := range []string{"-1h", "soon", "0s"} {
		_, err = parseExpiry(bad, now)
		assert.ErrorIs(t, err, common.ErrValidationFailed, bad)
	}
}

func TestParseFileArg(t *testing.T) {
	gp, local, err := parseFileArg("chara/body.tex=/tmp/body.tex")
	require.NoError(t, err)
	assert.Equal(t, "chara/body.tex", gp)
	assert.Equal(t, "/tmp/body.tex", local)

	for _, bad := range []string{"nofile", "=x", "x="} {
		_, _, err = parseFileArg(bad)
		assert.ErrorIs(t, err, common.ErrValidationFailed, bad)
	}
}

func TestParseObserver(t *testing.T) {
	loc, pos, facing, err := parseObserver([]string{"1", "2", "3", "1.5", "2", "-3", "0.5"})
	require.NoError(t, err)
	assert.Equal(t, models.Location{ServerID: 1, MapID: 2, InstanceID: 3}, loc)
	assert.Equal(t, models.Vec3{X: 1.5, Y: 2, Z: -3}, pos)
	assert.Equal(t, 0.5, facing)

	_, _, _, err = parseObserver([]string{"1", "2"})
	assert.ErrorIs(t, err, errUsage)
	_, _, _, err = parseObserver([]string{"a", "2", "3", "0", "0", "0"})
	assert.ErrorIs(t, err, common.ErrValidationFailed)
}

func sittingPose(id, owner string) *models.CharaRecord {
	rec := models.NewSkeleton(id, owner, time.Now())
	rec.ShareRule = models.ShareShared
	rec.Poses = []models.PoseEntry{{
		Description: "sitting",
		World: &models.WorldData{
			Location: models.Location{ServerID: 1, MapID: 2, InstanceID: 3},
			Position: models.Vec3{X: 3, Z: 4},
		},
	}}
	return rec
}

func TestNearbyWatchFollowsTicks(t *testing.T) {
	a := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.nearby = nearby.New(a.nearbyPool, a.currentObserver, a.currentUser, 5*time.Millisecond, nearby.Options{}, logging.NewNop())
	go func() { _ = a.nearby.Run(ctx) }()
	require.NoError(t, a.WhereAmI(ctx, []string{"1", "2", "3", "0", "0", "0"}))

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, a.nearby.Refreshes(), "hidden view is not refreshed")

	require.NoError(t, a.Nearby(ctx, []string{"watch"}))
	assert.True(t, a.nearby.Visible())
	assert.Contains(t, a.out.String(), "Watching nearby poses")

	a.catalog.Replace([]*models.CharaRecord{sittingPose("s1", "bob")})
	require.Eventually(t, func() bool { return len(a.nearby.Poses()) == 1 }, time.Second, time.Millisecond)

	a.out.Reset()
	require.NoError(t, a.Nearby(ctx, nil))
	assert.Contains(t, a.out.String(), "bob  s1#0  sitting")

	require.NoError(t, a.Nearby(ctx, []string{"hide"}))
	assert.False(t, a.nearby.Visible())
	n := a.nearby.Refreshes()
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, a.nearby.Refreshes(), n+1)
}

func TestJoinGroupPromptsForPassword(t *testing.T) {
	a := newTestApp(t)
	stubInputs(t, "", []byte("crew-secret"))

	require.NoError(t, a.JoinGroup(context.Background(), []string{"fc-crew"}))
	assert.Equal(t, map[string]string{"fc-crew": "crew-secret"}, a.api.joined)
	assert.ErrorIs(t, a.JoinGroup(context.Background(), nil), errUsage)
}

func TestLogoutForgetsPreviousAccount(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	nop := logging.NewNop()

	db, err := client.InitDatabase(ctx, filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	a.cache = services.NewRecordCache(db)
	a.orchestrator = services.NewOrchestrator(a.api, a.records, services.NewFileResolver(a.api, a.files, nil, nop),
		a.catalog, a.cache, services.OrchestratorConfig{RefreshCooldown: time.Hour, OperationTimeout: time.Minute}, nop)
	t.Cleanup(a.orchestrator.Close)
	a.authService = &fakeAuth{}

	a.api.owned = []*models.CharaRecord{models.NewSkeleton("r1", "alice", time.Now())}
	a.api.shared = []*models.CharaRecord{sittingPose("s1", "bob")}
	require.NoError(t, a.Refresh(ctx, nil))
	require.NoError(t, a.Describe(ctx, []string{"r1", "unsaved"}))
	require.NoError(t, a.WhereAmI(ctx, []string{"1", "2", "3", "0", "0", "0"}))
	require.Positive(t, a.orchestrator.RefreshCooldownLeft(services.KindDownloadOwned))

	require.NoError(t, a.Logout(ctx, nil))

	assert.False(t, a.isLoggedIn())
	assert.Empty(t, a.records.Records())
	assert.Empty(t, a.catalog.Records())
	_, ok := a.records.Edit("r1")
	assert.False(t, ok)
	_, ok = a.currentObserver()
	assert.False(t, ok)
	assert.Zero(t, a.orchestrator.RefreshCooldownLeft(services.KindDownloadOwned))
	assert.Zero(t, a.orchestrator.RefreshCooldownLeft(services.KindDownloadShared))
	for _, scope := range []models.RecordScope{models.ScopeOwned, models.ScopeShared} {
		cached, err := a.cache.Load(ctx, scope)
		require.NoError(t, err)
		assert.Empty(t, cached, scope)
	}

	// the next account refreshes right away and sees only its own data
	a.userID, a.userName = "carol", "carol"
	a.api.owned = []*models.CharaRecord{models.NewSkeleton("c1", "carol", time.Now())}
	a.api.shared = nil
	require.NoError(t, a.Refresh(ctx, nil))
	recs := a.records.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "c1", recs[0].ID)
	assert.Empty(t, a.catalog.Records())
}
