// Package lobby implements server-side GPose lobbies: membership and the
// fan-out of member events and snapshots to every subscriber.
package lobby

import (
	"context"
	"slices"
	"sync"

	"github.com/dmitrijs2005/charasync/internal/common"
	"github.com/dmitrijs2005/charasync/internal/models"
)

// Backend stores lobby membership and carries published events to
// subscribers. Join and Leave return the members after the change. A lobby
// ceases to exist when its last member leaves.
type Backend interface {
	Create(ctx context.Context, lobbyID string) error
	Join(ctx context.Context, lobbyID, userID string) ([]string, error)
	Leave(ctx context.Context, lobbyID, userID string) ([]string, error)
	Members(ctx context.Context, lobbyID string) ([]string, error)
	Publish(ctx context.Context, ev models.LobbyEvent) error
	// Subscribe delivers events published to lobbyID until ctx is done,
	// then closes the channel.
	Subscribe(ctx context.Context, lobbyID string) (<-chan models.LobbyEvent, error)
}

const subscriberBuffer = 64

// MemoryBackend keeps lobbies in process. Subscriptions outlive the lobby
// itself so the closing event still reaches them. Slow subscribers lose
// events once their buffer is full.
type MemoryBackend struct {
	mu      sync.Mutex
	members map[string][]string
	subs    map[string]map[chan models.LobbyEvent]struct{}
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		members: make(map[string][]string),
		subs:    make(map[string]map[chan models.LobbyEvent]struct{}),
	}
}

func (b *MemoryBackend) Create(_ context.Context, lobbyID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.members[lobbyID]; ok {
		return common.ErrConflict
	}
	b.members[lobbyID] = []string{}
	return nil
}

func (b *MemoryBackend) Join(_ context.Context, lobbyID, userID string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.members[lobbyID]
	if !ok {
		return nil, common.ErrNotFound
	}
	if !slices.Contains(m, userID) {
		m = append(m, userID)
		slices.Sort(m)
		b.members[lobbyID] = m
	}
	return slices.Clone(m), nil
}

func (b *MemoryBackend) Leave(_ context.Context, lobbyID, userID string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.members[lobbyID]
	if !ok {
		return nil, common.ErrNotFound
	}
	i := slices.Index(m, userID)
	if i < 0 {
		return nil, common.ErrNotFound
	}
	m = slices.Delete(m, i, i+1)
	if len(m) == 0 {
		delete(b.members, lobbyID)
	} else {
		b.members[lobbyID] = m
	}
	return slices.Clone(m), nil
}

func (b *MemoryBackend) Members(_ context.Context, lobbyID string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.members[lobbyID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return slices.Clone(m), nil
}

func (b *MemoryBackend) Publish(_ context.Context, ev models.LobbyEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[ev.LobbyID] {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (b *MemoryBackend) Subscribe(ctx context.Context, lobbyID string) (<-chan models.LobbyEvent, error) {
	b.mu.Lock()
	if _, ok := b.members[lobbyID]; !ok {
		b.mu.Unlock()
		return nil, common.ErrNotFound
	}
	set, ok := b.subs[lobbyID]
	if !ok {
		set = make(map[chan models.LobbyEvent]struct{})
		b.subs[lobbyID] = set
	}
	ch := make(chan models.LobbyEvent, subscriberBuffer)
	set[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(set, ch)
		if len(b.subs[lobbyID]) == 0 {
			delete(b.subs, lobbyID)
		}
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}
