// Package relations stores pairs and group memberships on the server.
package relations

import (
	"context"

	"github.com/dmitrijs2005/charasync/internal/models"
	servermodels "github.com/dmitrijs2005/charasync/internal/server/models"
)

type Repository interface {
	// Pair adds otherID to userID's side of the pair. Adding twice is a no-op.
	Pair(ctx context.Context, userID, otherID string) error
	// SetPaused pauses or resumes userID's side; common.ErrNotFound when
	// userID never added otherID.
	SetPaused(ctx context.Context, userID, otherID string, paused bool) error
	// Group returns common.ErrNotFound for an unknown id.
	Group(ctx context.Context, groupID string) (*servermodels.Group, error)
	// CreateGroup yields common.ErrConflict when the id is taken.
	CreateGroup(ctx context.Context, g *servermodels.Group) error
	JoinGroup(ctx context.Context, groupID, userID string) error
	// Relationships returns every pair touching userID and every membership
	// of the groups userID belongs to.
	Relationships(ctx context.Context, userID string) (models.Relationships, error)
}
