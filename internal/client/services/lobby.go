package services

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/charasync/internal/client/client"
	"github.com/dmitrijs2005/charasync/internal/common"
	"github.com/dmitrijs2005/charasync/internal/logging"
	"github.com/dmitrijs2005/charasync/internal/models"
)

type LobbyState string

const (
	LobbyNoSession LobbyState = "no_session"
	LobbyCreating  LobbyState = "creating"
	LobbyJoining   LobbyState = "joining"
	LobbyActive    LobbyState = "active"
	LobbyLeaving   LobbyState = "leaving"
)

type ActorCommandType string

const (
	ActorApply         ActorCommandType = "apply"
	ActorSpawnAndApply ActorCommandType = "spawn_and_apply"
)

// ActorCommand asks the actor collaborator to mirror a member's snapshot
// onto a local actor.
type ActorCommand struct {
	Type   ActorCommandType
	UserID string
	Actor  models.ActorHandle
	Member models.LobbyMember
}

// LobbyStatus is a point-in-time view of the session.
type LobbyStatus struct {
	State      LobbyState
	LobbyID    string
	LastJoined string
	LastFailed string
	Members    int
}

// LobbyManager owns the live lobby session: its state machine, the member
// map fed by inbound events, and the local actor assignments. Inbound
// updates are merged last-write-wins in arrival order.
type LobbyManager struct {
	client   client.LobbyClient
	log      logging.Logger
	now      func() time.Time
	commands chan ActorCommand

	mu         sync.RWMutex
	self       string
	state      LobbyState
	lobbyID    string
	lastJoined string
	lastFailed string
	members    map[string]*models.LobbyMember
	seq        uint64
	gen        uint64
	stopEvents context.CancelFunc
}

// NewLobbyManager builds a manager with no session. Actor commands are
// buffered up to commandBuffer.
func NewLobbyManager(c client.LobbyClient, commandBuffer int, log logging.Logger) *LobbyManager {
	return &LobbyManager{
		client:   c,
		log:      log.With("module", "lobby"),
		now:      time.Now,
		commands: make(chan ActorCommand, max(commandBuffer, 0)),
		state:    LobbyNoSession,
		members:  make(map[string]*models.LobbyMember),
	}
}

// SetSelf sets the local user id; inbound data from it is ignored.
func (m *LobbyManager) SetSelf(userID string) {
	m.mu.Lock()
	m.self = userID
	m.mu.Unlock()
}

// Commands delivers actor commands to the actor collaborator.
func (m *LobbyManager) Commands() <-chan ActorCommand {
	return m.commands
}

func (m *LobbyManager) Status() LobbyStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return LobbyStatus{
		State:      m.state,
		LobbyID:    m.lobbyID,
		LastJoined: m.lastJoined,
		LastFailed: m.lastFailed,
		Members:    len(m.members),
	}
}

// Members returns copies of the known members sorted by user id.
func (m *LobbyManager) Members() []models.LobbyMember {
	m.mu.RLock()
	out := make([]models.LobbyMember, 0, len(m.members))
	for _, mem := range m.members {
		out = append(out, mem.Clone())
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b models.LobbyMember) int { return strings.Compare(a.UserID, b.UserID) })
	return out
}

func (m *LobbyManager) Member(userID string) (models.LobbyMember, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mem, ok := m.members[userID]
	if !ok {
		return models.LobbyMember{}, false
	}
	return mem.Clone(), true
}

// CreateLobby opens a new lobby and subscribes to its events.
func (m *LobbyManager) CreateLobby(ctx context.Context) (models.LobbyInfo, error) {
	gen, err := m.enter(LobbyCreating)
	if err != nil {
		return models.LobbyInfo{}, err
	}
	info, err := m.client.CreateLobby(ctx)
	if err != nil {
		m.abort(gen, "")
		return models.LobbyInfo{}, fmt.Errorf("create lobby: %w", err)
	}
	if err := m.activate(ctx, gen, info); err != nil {
		return models.LobbyInfo{}, err
	}
	return info, nil
}

// JoinLobby joins lobbyID. A failed attempt returns to no_session and is
// remembered as the last failed id.
func (m *LobbyManager) JoinLobby(ctx context.Context, lobbyID string) (models.LobbyInfo, error) {
	lobbyID = strings.TrimSpace(lobbyID)
	if lobbyID == "" {
		return models.LobbyInfo{}, fmt.Errorf("empty lobby id: %w", common.ErrValidationFailed)
	}
	gen, err := m.enter(LobbyJoining)
	if err != nil {
		return models.LobbyInfo{}, err
	}
	info, err := m.client.JoinLobby(ctx, lobbyID)
	if err != nil {
		m.abort(gen, lobbyID)
		return models.LobbyInfo{}, fmt.Errorf("join lobby %s: %w", lobbyID, err)
	}
	if err := m.activate(ctx, gen, info); err != nil {
		m.mu.Lock()
		m.lastFailed = lobbyID
		m.mu.Unlock()
		return models.LobbyInfo{}, err
	}
	return info, nil
}

func (m *LobbyManager) enter(next LobbyState) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != LobbyNoSession {
		return 0, fmt.Errorf("lobby is %s: %w", m.state, common.ErrConflict)
	}
	m.state = next
	m.gen++
	return m.gen, nil
}

func (m *LobbyManager) abort(gen uint64, failedID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return
	}
	m.state = LobbyNoSession
	if failedID != "" {
		m.lastFailed = failedID
	}
}

func (m *LobbyManager) activate(ctx context.Context, gen uint64, info models.LobbyInfo) error {
	evCtx, stop := context.WithCancel(context.Background())
	events, err := m.client.LobbyEvents(evCtx, info.ID)
	if err != nil {
		stop()
		if leaveErr := m.client.LeaveLobby(context.WithoutCancel(ctx), info.ID); leaveErr != nil {
			m.log.Warn(ctx, "leave after failed subscribe", "lobby_id", info.ID, "error", leaveErr)
		}
		m.abort(gen, "")
		return fmt.Errorf("subscribe to lobby %s: %w", info.ID, err)
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		stop()
		return fmt.Errorf("lobby %s: %w", info.ID, common.ErrCancelled)
	}
	m.state = LobbyActive
	m.lobbyID = info.ID
	m.lastFailed = ""
	m.stopEvents = stop
	m.members = make(map[string]*models.LobbyMember, len(info.Members))
	for _, id := range info.Members {
		m.touchLocked(id)
	}
	m.mu.Unlock()

	go m.consume(gen, info.ID, events)
	m.log.Info(ctx, "lobby active", "lobby_id", info.ID, "members", len(info.Members))
	return nil
}

// LeaveLobby leaves the active lobby. The session ends even if the server
// call fails; the id is kept as the last joined lobby.
func (m *LobbyManager) LeaveLobby(ctx context.Context) error {
	m.mu.Lock()
	if m.state != LobbyActive {
		st := m.state
		m.mu.Unlock()
		return fmt.Errorf("lobby is %s: %w", st, common.ErrConflict)
	}
	m.state = LobbyLeaving
	id := m.lobbyID
	m.stopLocked()
	m.mu.Unlock()

	err := m.client.LeaveLobby(ctx, id)

	m.mu.Lock()
	m.resetLocked(id)
	m.mu.Unlock()

	if err != nil {
		return fmt.Errorf("leave lobby %s: %w", id, err)
	}
	m.log.Info(ctx, "lobby left", "lobby_id", id)
	return nil
}

// Close ends any session locally without telling the server.
func (m *LobbyManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == LobbyNoSession {
		return
	}
	m.stopLocked()
	m.resetLocked(m.lobbyID)
}

func (m *LobbyManager) stopLocked() {
	m.gen++
	if m.stopEvents != nil {
		m.stopEvents()
		m.stopEvents = nil
	}
}

func (m *LobbyManager) resetLocked(lastJoined string) {
	if lastJoined != "" {
		m.lastJoined = lastJoined
	}
	m.state = LobbyNoSession
	m.lobbyID = ""
	m.members = make(map[string]*models.LobbyMember)
}

// PushLocalSnapshot broadcasts the local appearance and position and
// records them as the local member's state.
func (m *LobbyManager) PushLocalSnapshot(ctx context.Context, snap models.LobbySnapshot) error {
	if snap.Empty() {
		return fmt.Errorf("empty snapshot: %w", common.ErrValidationFailed)
	}
	m.mu.RLock()
	state, id, self := m.state, m.lobbyID, m.self
	m.mu.RUnlock()
	if state != LobbyActive {
		return fmt.Errorf("lobby is %s: %w", state, common.ErrConflict)
	}

	if err := m.client.BroadcastSnapshot(ctx, id, snap); err != nil {
		return fmt.Errorf("broadcast snapshot: %w", err)
	}
	if self != "" {
		m.merge(id, self, snap, true)
	}
	return nil
}

// OnInboundSnapshot merges a snapshot received from userID. Snapshots from
// the local user are ignored; they are recorded by PushLocalSnapshot.
func (m *LobbyManager) OnInboundSnapshot(userID string, snap models.LobbySnapshot) {
	m.mu.RLock()
	self, id := m.self, m.lobbyID
	m.mu.RUnlock()
	if userID == "" || userID == self {
		return
	}
	m.merge(id, userID, snap, false)
}

func (m *LobbyManager) merge(lobbyID, userID string, snap models.LobbySnapshot, local bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != LobbyActive || m.lobbyID != lobbyID {
		return
	}
	now := m.now()
	mem := m.touchLocked(userID)
	mem.UpdatedAt = now
	if snap.World != nil {
		mem.World = &models.WorldSnapshot{Data: snap.World.Clone(), ReceivedAt: now}
	}
	if len(snap.Appearance) > 0 {
		if mem.Appearance == nil || !bytes.Equal(mem.Appearance.Data, snap.Appearance) {
			mem.Appearance = &models.AppearanceSnapshot{
				Data:       bytes.Clone(snap.Appearance),
				ReceivedAt: now,
				Pending:    !local,
			}
		}
	}
}

// touchLocked returns the member entry for userID, creating it if needed,
// and stamps it with the next arrival sequence number.
func (m *LobbyManager) touchLocked(userID string) *models.LobbyMember {
	mem, ok := m.members[userID]
	if !ok {
		mem = &models.LobbyMember{UserID: userID}
		m.members[userID] = mem
	}
	m.seq++
	mem.Seq = m.seq
	return mem
}

func (m *LobbyManager) consume(gen uint64, lobbyID string, events <-chan models.LobbyEvent) {
	for ev := range events {
		if !m.handle(gen, ev) {
			return
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen == gen && m.state == LobbyActive {
		m.stopLocked()
		m.resetLocked(lobbyID)
		m.log.Warn(context.Background(), "lobby event stream ended", "lobby_id", lobbyID)
	}
}

// handle applies one event and reports whether the session is still
// current.
func (m *LobbyManager) handle(gen uint64, ev models.LobbyEvent) bool {
	m.mu.RLock()
	current := m.gen == gen
	self, id := m.self, m.lobbyID
	m.mu.RUnlock()
	if !current {
		return false
	}
	if ev.LobbyID != "" && ev.LobbyID != id {
		return true
	}

	switch ev.Type {
	case models.LobbyMemberJoined:
		if ev.UserID == "" || ev.UserID == self {
			return true
		}
		m.mu.Lock()
		if m.gen == gen {
			m.touchLocked(ev.UserID)
		}
		m.mu.Unlock()
	case models.LobbyMemberLeft:
		m.mu.Lock()
		if m.gen == gen {
			delete(m.members, ev.UserID)
		}
		m.mu.Unlock()
	case models.LobbySnapshotSent:
		if ev.Snapshot != nil {
			m.OnInboundSnapshot(ev.UserID, *ev.Snapshot)
		}
	case models.LobbyClosed:
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.gen == gen {
			m.stopLocked()
			m.resetLocked(id)
		}
		return false
	}
	return true
}

// AssignActor binds userID to a local actor. The handle never leaves this
// process.
func (m *LobbyManager) AssignActor(userID string, h models.ActorHandle) error {
	if !h.Valid() {
		return fmt.Errorf("actor handle: %w", common.ErrValidationFailed)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[userID]
	if !ok {
		return fmt.Errorf("member %s: %w", userID, common.ErrNotFound)
	}
	mem.Actor = &h
	return nil
}

func (m *LobbyManager) ClearActor(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mem, ok := m.members[userID]; ok {
		mem.Actor = nil
	}
}

func (m *LobbyManager) HasValidAssignment(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mem, ok := m.members[userID]
	return ok && mem.Actor != nil && mem.Actor.Valid()
}

// ApplySnapshot asks the actor collaborator to apply userID's latest
// snapshot to its assigned actor.
func (m *LobbyManager) ApplySnapshot(ctx context.Context, userID string) error {
	return m.emit(ctx, ActorApply, userID)
}

// SpawnAndApply asks the actor collaborator to spawn a copy of the assigned
// actor and apply userID's latest snapshot to it.
func (m *LobbyManager) SpawnAndApply(ctx context.Context, userID string) error {
	return m.emit(ctx, ActorSpawnAndApply, userID)
}

func (m *LobbyManager) emit(ctx context.Context, typ ActorCommandType, userID string) error {
	m.mu.RLock()
	mem, ok := m.members[userID]
	var cmd ActorCommand
	if ok {
		cmd = ActorCommand{Type: typ, UserID: userID, Member: mem.Clone()}
	}
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("member %s: %w", userID, common.ErrNotFound)
	}
	if cmd.Member.Actor == nil || !cmd.Member.Actor.Valid() {
		return fmt.Errorf("member %s has no actor assigned: %w", userID, common.ErrValidationFailed)
	}
	if cmd.Member.World == nil && cmd.Member.Appearance == nil {
		return fmt.Errorf("member %s has not sent a snapshot: %w", userID, common.ErrNotFound)
	}
	cmd.Actor = *cmd.Member.Actor

	select {
	case m.commands <- cmd:
	case <-ctx.Done():
		return fmt.Errorf("%s for %s: %w: %w", typ, userID, common.ErrCancelled, ctx.Err())
	}

	if cmd.Member.Appearance != nil {
		m.mu.Lock()
		if cur, ok := m.members[userID]; ok && cur.Appearance != nil &&
			cur.Appearance.ReceivedAt.Equal(cmd.Member.Appearance.ReceivedAt) {
			cur.Appearance.Pending = false
		}
		m.mu.Unlock()
	}
	return nil
}
