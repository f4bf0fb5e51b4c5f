package lobby

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/charasync/internal/common"
	"github.com/dmitrijs2005/charasync/internal/logging"
	"github.com/dmitrijs2005/charasync/internal/models"
	"github.com/google/uuid"
)

// Service applies lobby rules on top of a Backend: only members broadcast
// or listen, and nobody receives their own events.
type Service struct {
	backend Backend
	log     logging.Logger
	now     func() time.Time
	newID   func() string
}

func NewService(b Backend, log logging.Logger) *Service {
	return &Service{
		backend: b,
		log:     log.With("module", "lobby"),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Create opens a lobby with userID as its first member.
func (s *Service) Create(ctx context.Context, userID string) (models.LobbyInfo, error) {
	id := s.newID()
	if err := s.backend.Create(ctx, id); err != nil {
		return models.LobbyInfo{}, err
	}
	members, err := s.backend.Join(ctx, id, userID)
	if err != nil {
		return models.LobbyInfo{}, err
	}
	s.log.Info(ctx, "lobby created", "lobby_id", id, "user_id", userID)
	return models.LobbyInfo{ID: id, Members: members}, nil
}

func (s *Service) Join(ctx context.Context, lobbyID, userID string) (models.LobbyInfo, error) {
	if lobbyID == "" {
		return models.LobbyInfo{}, fmt.Errorf("empty lobby id: %w", common.ErrValidationFailed)
	}
	members, err := s.backend.Join(ctx, lobbyID, userID)
	if err != nil {
		return models.LobbyInfo{}, fmt.Errorf("lobby %s: %w", lobbyID, err)
	}
	s.publish(ctx, models.LobbyEvent{Type: models.LobbyMemberJoined, LobbyID: lobbyID, UserID: userID})
	s.log.Info(ctx, "lobby joined", "lobby_id", lobbyID, "user_id", userID, "members", len(members))
	return models.LobbyInfo{ID: lobbyID, Members: members}, nil
}

// Leave removes userID from the lobby. The last member leaving closes it.
func (s *Service) Leave(ctx context.Context, lobbyID, userID string) error {
	left, err := s.backend.Leave(ctx, lobbyID, userID)
	if err != nil {
		return fmt.Errorf("lobby %s: %w", lobbyID, err)
	}
	s.publish(ctx, models.LobbyEvent{Type: models.LobbyMemberLeft, LobbyID: lobbyID, UserID: userID})
	if len(left) == 0 {
		s.publish(ctx, models.LobbyEvent{Type: models.LobbyClosed, LobbyID: lobbyID})
		s.log.Info(ctx, "lobby closed", "lobby_id", lobbyID)
	}
	return nil
}

func (s *Service) requireMember(ctx context.Context, lobbyID, userID string) error {
	members, err := s.backend.Members(ctx, lobbyID)
	if err != nil {
		return fmt.Errorf("lobby %s: %w", lobbyID, err)
	}
	for _, m := range members {
		if m == userID {
			return nil
		}
	}
	return fmt.Errorf("not a member of lobby %s: %w", lobbyID, common.ErrPermissionDenied)
}

// Broadcast relays snap from userID to the other members.
func (s *Service) Broadcast(ctx context.Context, lobbyID, userID string, snap models.LobbySnapshot) error {
	if snap.Empty() {
		return fmt.Errorf("empty snapshot: %w", common.ErrValidationFailed)
	}
	if err := s.requireMember(ctx, lobbyID, userID); err != nil {
		return err
	}
	return s.backend.Publish(ctx, models.LobbyEvent{
		Type:     models.LobbySnapshotSent,
		LobbyID:  lobbyID,
		UserID:   userID,
		Snapshot: &snap,
		SentAt:   s.now(),
	})
}

// Events streams lobby events for userID until ctx is done, the user
// leaves or the lobby closes. Events caused by userID are not delivered.
func (s *Service) Events(ctx context.Context, lobbyID, userID string) (<-chan models.LobbyEvent, error) {
	if err := s.requireMember(ctx, lobbyID, userID); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	in, err := s.backend.Subscribe(ctx, lobbyID)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan models.LobbyEvent, subscriberBuffer)
	go func() {
		defer close(out)
		defer cancel()
		for ev := range in {
			if ev.UserID == userID {
				if ev.Type == models.LobbyMemberLeft {
					return
				}
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
			if ev.Type == models.LobbyClosed {
				return
			}
		}
	}()
	return out, nil
}

func (s *Service) publish(ctx context.Context, ev models.LobbyEvent) {
	ev.SentAt = s.now()
	if err := s.backend.Publish(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn(ctx, "lobby event not published", "lobby_id", ev.LobbyID, "type", ev.Type, "error", err)
	}
}
