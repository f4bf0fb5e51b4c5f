package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/charasync/internal/common"
	"github.com/dmitrijs2005/charasync/internal/models"
)

func (a *App) Relations(ctx context.Context, _ []string) error {
	if err := a.requireOnline(); err != nil {
		return err
	}
	rel, err := a.relations.Refresh(ctx)
	if err != nil {
		return err
	}
	self := a.currentUser()
	for _, p := range rel.Pairs {
		if p.UserID != self {
			continue
		}
		state := "active"
		if p.Paused {
			state = "paused"
		}
		a.printf("pair   %s (%s)\n", p.OtherID, state)
	}
	for _, m := range rel.Memberships {
		if m.UserID == self {
			a.printf("group  %s\n", m.GroupID)
		}
	}
	return nil
}

func (a *App) Pair(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	if err := a.requireOnline(); err != nil {
		return err
	}
	return a.relations.PairWith(ctx, args[0])
}

func (a *App) PausePair(ctx context.Context, args []string) error {
	return a.setPaused(ctx, args, true)
}

func (a *App) ResumePair(ctx context.Context, args []string) error {
	return a.setPaused(ctx, args, false)
}

func (a *App) setPaused(ctx context.Context, args []string, paused bool) error {
	if len(args) != 1 {
		return errUsage
	}
	if err := a.requireOnline(); err != nil {
		return err
	}
	return a.relations.SetPaused(ctx, args[0], paused)
}

func (a *App) JoinGroup(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	if err := a.requireOnline(); err != nil {
		return err
	}
	password, err := getPassword(a.prompts())
	if err != nil {
		return err
	}
	defer common.Wipe(password)
	return a.relations.JoinGroup(ctx, args[0], string(password))
}

func (a *App) Lobby(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "status":
		st := a.lobby.Status()
		a.printf("%s\n", lobbyStatusLine(st))
		return nil
	case "members":
		for _, m := range a.lobby.Members() {
			a.printf("%s\n", memberLine(m))
		}
		return nil
	case "assign":
		if len(args) != 4 {
			return errUsage
		}
		idx, err := strconv.ParseUint(args[2], 10, 16)
		if err != nil {
			return errUsage
		}
		return a.lobby.AssignActor(args[1], models.ActorHandle{ObjectIndex: uint16(idx), Name: args[3]})
	case "apply", "spawn":
		if len(args) != 2 {
			return errUsage
		}
		if args[0] == "spawn" {
			return a.lobby.SpawnAndApply(ctx, args[1])
		}
		return a.lobby.ApplySnapshot(ctx, args[1])
	}

	if err := a.requireOnline(); err != nil {
		return err
	}
	switch args[0] {
	case "create":
		info, err := a.lobby.CreateLobby(ctx)
		if err != nil {
			return err
		}
		a.printf("Lobby %s created\n", info.ID)
		return nil
	case "join":
		if len(args) != 2 {
			return errUsage
		}
		info, err := a.lobby.JoinLobby(ctx, args[1])
		if err != nil {
			return err
		}
		a.printf("Joined lobby %s with %s\n", info.ID, strings.Join(info.Members, ", "))
		return nil
	case "leave":
		return a.lobby.LeaveLobby(ctx)
	case "push":
		snap := models.LobbySnapshot{Appearance: []byte(strings.Join(args[1:], " "))}
		if obs, ok := a.currentObserver(); ok {
			snap.World = &models.WorldData{Location: obs.Location, Position: obs.Position, Facing: obs.Facing}
		}
		if err := a.lobby.PushLocalSnapshot(ctx, snap); err != nil {
			return fmt.Errorf("push: %w", err)
		}
		return nil
	}
	return errUsage
}
