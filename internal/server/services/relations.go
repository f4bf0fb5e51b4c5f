package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/charasync/internal/common"
	"github.com/dmitrijs2005/charasync/internal/cryptox"
	"github.com/dmitrijs2005/charasync/internal/logging"
	"github.com/dmitrijs2005/charasync/internal/models"
	servermodels "github.com/dmitrijs2005/charasync/internal/server/models"
	"github.com/dmitrijs2005/charasync/internal/server/repositories/repomanager"
)

// MinGroupPasswordLen is the shortest password a group can be created with.
const MinGroupPasswordLen = 6

// RelationService manages pairs and group memberships.
type RelationService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
}

func NewRelationService(db *sql.DB, m repomanager.RepositoryManager, log logging.Logger) *RelationService {
	return &RelationService{db: db, repomanager: m, log: log.With("module", "relations")}
}

func (s *RelationService) Relationships(ctx context.Context, userID string) (models.Relationships, error) {
	return s.repomanager.Relations(s.db).Relationships(ctx, userID)
}

// PairWith adds other to userID's side of a pair. The pair becomes direct
// once other pairs back.
func (s *RelationService) PairWith(ctx context.Context, userID, other string) error {
	if other == userID || !models.ValidIdentity(other) {
		return fmt.Errorf("cannot pair with %q: %w", other, common.ErrValidationFailed)
	}
	ok, err := s.repomanager.Users(s.db).Exists(ctx, other)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %s: %w", other, common.ErrNotFound)
	}
	if err := s.repomanager.Relations(s.db).Pair(ctx, userID, other); err != nil {
		return err
	}
	s.log.Info(ctx, "pair added", "user_id", userID, "other_id", other)
	return nil
}

func (s *RelationService) SetPairPaused(ctx context.Context, userID, other string, paused bool) error {
	if err := s.repomanager.Relations(s.db).SetPaused(ctx, userID, other, paused); err != nil {
		return err
	}
	s.log.Info(ctx, "pair paused", "user_id", userID, "other_id", other, "paused", paused)
	return nil
}

// JoinGroup adds userID to groupID. An unknown group is created with
// password and userID as its owner; joining an existing group requires the
// same password, otherwise ErrPermissionDenied.
func (s *RelationService) JoinGroup(ctx context.Context, userID, groupID, password string) error {
	if !models.ValidIdentity(groupID) {
		return fmt.Errorf("group %q: %w", groupID, common.ErrValidationFailed)
	}
	if len(password) < MinGroupPasswordLen {
		return fmt.Errorf("password too short: %w", common.ErrValidationFailed)
	}
	repo := s.repomanager.Relations(s.db)

	g, err := repo.Group(ctx, groupID)
	switch {
	case errors.Is(err, common.ErrNotFound):
		salt := common.RandomBytes(16)
		g = &servermodels.Group{
			ID:       groupID,
			OwnerID:  userID,
			Salt:     salt,
			Verifier: cryptox.MakeVerifier(cryptox.DeriveMasterKey([]byte(password), salt)),
		}
		if err := repo.CreateGroup(ctx, g); err != nil {
			return err
		}
		s.log.Info(ctx, "group created", "user_id", userID, "group_id", groupID)
	case err != nil:
		return err
	default:
		got := cryptox.MakeVerifier(cryptox.DeriveMasterKey([]byte(password), g.Salt))
		if subtle.ConstantTimeCompare(got, g.Verifier) != 1 {
			s.log.Warn(ctx, "group join refused", "user_id", userID, "group_id", groupID)
			return fmt.Errorf("group %s: %w", groupID, common.ErrPermissionDenied)
		}
	}

	if err := repo.JoinGroup(ctx, groupID, userID); err != nil {
		return err
	}
	s.log.Info(ctx, "group joined", "user_id", userID, "group_id", groupID)
	return nil
}
