package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/charasync/internal/client/client"
	"github.com/dmitrijs2005/charasync/internal/client/config"
	"github.com/dmitrijs2005/charasync/internal/client/filecache"
	"github.com/dmitrijs2005/charasync/internal/client/nearby"
	"github.com/dmitrijs2005/charasync/internal/client/services"
	"github.com/dmitrijs2005/charasync/internal/logging"
	"github.com/dmitrijs2005/charasync/internal/models"

	_ "modernc.org/sqlite"
)

type Mode string

const (
	ModeOffline  Mode = "offline"
	ModeOnline   Mode = "online"
	ModeDisabled Mode = "disabled"
)

// lobbyCommandBuffer bounds the actor commands waiting to be printed.
const lobbyCommandBuffer = 32

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	reader *bufio.Reader
	out    io.Writer

	authService  services.AuthService
	cache        *services.RecordCache
	records      *services.RecordStore
	catalog      *services.SharedCatalog
	orchestrator *services.Orchestrator
	favorites    *services.FavoriteService
	relations    *services.RelationshipService
	lobby        *services.LobbyManager
	nearby       *nearby.Index
	files        *filecache.Store

	mu       sync.RWMutex
	userID   string
	userName string
	Mode     Mode
	observer *nearby.Observer
}

// NewApp opens the local database and file cache and builds the services
// on top of a gRPC client for c.ServerEndpointAddr.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(os.Stderr, c.LogLevel, "text")

	db, err := client.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	files, err := filecache.New(c.CacheDir)
	if err != nil {
		db.Close()
		return nil, err
	}

	apiClient, err := client.NewCharaSyncClient(c.ServerEndpointAddr, c.OperationTimeout)
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &App{
		config: c,
		logger: logger,
		db:     db,
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
		files:  files,
	}

	a.authService = services.NewAuthService(apiClient, db)
	a.cache = services.NewRecordCache(db)
	a.records = services.NewRecordStore(apiClient, a.cache, services.RecordStoreConfig{
		CreateCooldown: c.CreateCooldown,
		SaveQueueDepth: c.SaveQueueDepth,
	}, logger)
	a.catalog = services.NewSharedCatalog()
	resolver := services.NewFileResolver(apiClient, files, nil, logger)
	a.orchestrator = services.NewOrchestrator(apiClient, a.records, resolver, a.catalog, a.cache, services.OrchestratorConfig{
		RefreshCooldown:  c.RefreshCooldown,
		OperationTimeout: c.OperationTimeout,
	}, logger)
	a.favorites = services.NewFavoriteService(db)
	a.relations = services.NewRelationshipService(apiClient)
	a.lobby = services.NewLobbyManager(apiClient, lobbyCommandBuffer, logger)
	a.nearby = nearby.New(a.nearbyPool, a.currentObserver, a.currentUser, c.NearbyTick, nearby.Options{
		Radius:        c.NearbyRadius,
		IgnoreHousing: c.NearbyIgnoreHousing,
		IncludeOwn:    c.NearbyIncludeOwn,
		Background:    c.NearbyBackground,
	}, logger)

	return a, nil
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	changed := a.Mode != mode
	a.Mode = mode
	a.mu.Unlock()
	if changed {
		a.printf("Switched to %s mode\n", mode)
	}
}

func (a *App) mode() Mode {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.Mode
}

func (a *App) isLoggedIn() bool {
	return a.currentUser() != ""
}

func (a *App) currentUser() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.userID
}

func (a *App) currentObserver() (nearby.Observer, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.observer == nil {
		return nearby.Observer{}, false
	}
	return *a.observer, true
}

// nearbyPool is every record whose poses may be discovered: the owned
// records and the shared catalog.
func (a *App) nearbyPool() []*models.CharaRecord {
	return append(a.records.Records(), a.catalog.Records()...)
}

// prompts is where interactive questions are written.
func (a *App) prompts() io.Writer {
	if a.out == nil {
		return io.Discard
	}
	return a.out
}

func (a *App) printf(format string, args ...any) {
	if a.out == nil {
		return
	}
	fmt.Fprintf(a.out, format, args...)
}

// Run starts the background workers and the REPL, and releases everything
// once the user exits.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.close(ctx)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)
	}()
	go func() {
		defer wg.Done()
		_ = a.nearby.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		a.printActorCommands(ctx)
	}()

	a.printf("Welcome to charasync (type 'help' for commands)\n")
	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.reader))

	cancel()
	wg.Wait()
}

func (a *App) close(ctx context.Context) {
	a.lobby.Close()
	a.orchestrator.Close()
	if err := a.authService.Close(ctx); err != nil {
		a.logger.Warn(ctx, "client close failed", "error", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn(ctx, "db close failed", "error", err)
	}
}

func (a *App) getStatus() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := ""
	if a.userName != "" {
		s = a.userName + " "
	}
	if a.Mode != "" {
		s = s + string(a.Mode)
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

// StartOnlineStatusWatcher pings the server every interval and flips the
// mode between online and offline accordingly.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !a.isLoggedIn() {
				continue
			}
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := a.authService.Ping(pingCtx)
			cancel()

			if err != nil {
				if a.mode() == ModeOnline {
					a.setMode(ModeOffline)
				}
			} else if a.mode() != ModeOnline {
				a.setMode(ModeOnline)
			}

		case <-ctx.Done():
			return
		}
	}
}

// printActorCommands stands in for the game-side actor collaborator: it
// reports every command the lobby manager emits.
func (a *App) printActorCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-a.lobby.Commands():
			a.printf("[lobby] %s for %s on actor %q (#%d)\n", cmd.Type, cmd.UserID, cmd.Actor.Name, cmd.Actor.ObjectIndex)
		}
	}
}
