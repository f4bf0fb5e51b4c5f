package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/charasync/internal/access"
	"github.com/dmitrijs2005/charasync/internal/client/client"
	"github.com/dmitrijs2005/charasync/internal/common"
	"github.com/dmitrijs2005/charasync/internal/models"
)

// RelationshipService keeps the local relationship snapshot the access
// resolver works on, and forwards pair and group changes to the server.
type RelationshipService struct {
	client   client.RelationshipClient
	resolver *access.Resolver
}

func NewRelationshipService(c client.RelationshipClient) *RelationshipService {
	return &RelationshipService{client: c, resolver: access.NewResolver(models.Relationships{})}
}

func (s *RelationshipService) Resolver() *access.Resolver {
	return s.resolver
}

// Reset drops the local snapshot.
func (s *RelationshipService) Reset() {
	s.resolver.Update(models.Relationships{})
}

// Refresh replaces the local snapshot with the server's view.
func (s *RelationshipService) Refresh(ctx context.Context) (models.Relationships, error) {
	rel, err := s.client.GetRelationships(ctx)
	if err != nil {
		return models.Relationships{}, fmt.Errorf("get relationships: %w", err)
	}
	s.resolver.Update(rel)
	return rel, nil
}

func (s *RelationshipService) PairWith(ctx context.Context, userID string) error {
	if !models.ValidIdentity(userID) {
		return fmt.Errorf("user %q: %w", userID, common.ErrValidationFailed)
	}
	if err := s.client.PairWith(ctx, userID); err != nil {
		return fmt.Errorf("pair with %s: %w", userID, err)
	}
	_, err := s.Refresh(ctx)
	return err
}

func (s *RelationshipService) SetPaused(ctx context.Context, userID string, paused bool) error {
	if err := s.client.SetPairPaused(ctx, userID, paused); err != nil {
		return fmt.Errorf("pause pair %s: %w", userID, err)
	}
	_, err := s.Refresh(ctx)
	return err
}

// JoinGroup joins groupID with its password. The first member of a group
// sets the password.
func (s *RelationshipService) JoinGroup(ctx context.Context, groupID, password string) error {
	if !models.ValidIdentity(groupID) {
		return fmt.Errorf("group %q: %w", groupID, common.ErrValidationFailed)
	}
	if password == "" {
		return fmt.Errorf("group password is required: %w", common.ErrValidationFailed)
	}
	if err := s.client.JoinGroup(ctx, groupID, password); err != nil {
		return fmt.Errorf("join group %s: %w", groupID, err)
	}
	_, err := s.Refresh(ctx)
	return err
}

// CanAccess evaluates record for viewer against the local snapshot.
func (s *RelationshipService) CanAccess(viewer string, record *models.CharaRecord) bool {
	return s.resolver.CanAccess(viewer, record)
}
