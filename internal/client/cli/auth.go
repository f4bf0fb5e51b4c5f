package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/charasync/internal/client/client"
	"github.com/dmitrijs2005/charasync/internal/common"
	"github.com/dmitrijs2005/charasync/internal/models"
)

// Swapped in tests.
var getSimpleText = promptLine
var getPassword = promptPassword

// Register prompts for a user name and password and creates the account.
// The password byte slice is wiped before returning.
func (a *App) Register(ctx context.Context, _ []string) error {
	userName, err := getSimpleText(a.reader, "Enter user name", a.prompts())
	if err != nil {
		return err
	}
	if !models.ValidIdentity(userName) {
		return fmt.Errorf("user name %q: %w", userName, common.ErrValidationFailed)
	}

	password, err := getPassword(a.prompts())
	if err != nil {
		return err
	}
	defer common.Wipe(password)

	if _, err := a.authService.Register(ctx, userName, password); err != nil {
		return err
	}

	fmt.Println("Success!")
	return nil
}

// Login prompts for credentials and authenticates.
//
// The online login is tried first. If the server is unavailable
// (errors.Is(err, client.ErrUnavailable)) the cached credentials are
// checked instead and the cached records are loaded. The resulting Mode is
// ModeOnline, ModeOffline or, when both fail, ModeDisabled.
func (a *App) Login(ctx context.Context, _ []string) error {
	userName, err := getSimpleText(a.reader, "Enter user name", a.prompts())
	if err != nil {
		return err
	}

	password, err := getPassword(a.prompts())
	if err != nil {
		return err
	}
	defer common.Wipe(password)

	mode := ModeOnline
	userID, err := a.authService.OnlineLogin(ctx, userName, password)
	if errors.Is(err, client.ErrUnavailable) {
		a.printf("Server unavailable, trying offline login\n")
		mode = ModeOffline
		userID, err = a.authService.OfflineLogin(ctx, userName, password)
		if err != nil {
			a.setMode(ModeDisabled)
		}
	}
	if err != nil {
		return err
	}
	a.printf("Logged in as %s\n", userName)

	a.mu.Lock()
	a.userID, a.userName = userID, userName
	a.mu.Unlock()
	a.setMode(mode)
	a.afterLogin(ctx, mode)
	return nil
}

// afterLogin loads the session data: cached records when offline, fresh
// ones from the server otherwise.
func (a *App) afterLogin(ctx context.Context, mode Mode) {
	if a.lobby != nil {
		a.lobby.SetSelf(a.currentUser())
	}
	if a.cache == nil {
		return
	}

	if mode == ModeOffline {
		if owned, err := a.cache.Load(ctx, models.ScopeOwned); err == nil {
			a.records.ReplaceOwned(owned)
		}
		if shared, err := a.cache.Load(ctx, models.ScopeShared); err == nil {
			a.catalog.Replace(shared)
		}
		return
	}

	if _, err := a.records.RefreshLimits(ctx); err != nil {
		a.logger.Warn(ctx, "limits not loaded", "error", err)
	}
	if _, err := a.relations.Refresh(ctx); err != nil {
		a.logger.Warn(ctx, "relationships not loaded", "error", err)
	}
	if err := a.Refresh(ctx, nil); err != nil {
		a.logger.Warn(ctx, "records not loaded", "error", err)
	}
}

// Logout ends the lobby session and forgets the logged in user together
// with everything loaded for them: records, shared catalog, relationships,
// refresh cooldowns and the local caches.
func (a *App) Logout(ctx context.Context, _ []string) error {
	if a.lobby != nil {
		a.lobby.Close()
	}
	if err := a.authService.ClearOfflineData(ctx); err != nil {
		return err
	}
	if a.orchestrator != nil {
		a.orchestrator.Reset()
	}
	if a.records != nil {
		a.records.Reset()
	}
	if a.catalog != nil {
		a.catalog.Replace(nil)
	}
	if a.relations != nil {
		a.relations.Reset()
	}

	a.mu.Lock()
	a.userID, a.userName = "", ""
	a.observer = nil
	a.mu.Unlock()

	if a.cache != nil {
		if err := a.cache.Clear(ctx); err != nil {
			return fmt.Errorf("clear record cache: %w", err)
		}
	}
	return nil
}
