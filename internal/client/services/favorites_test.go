package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/charasync/internal/common"
	"github.com/dmitrijs2005/charasync/internal/models"
)

func TestFavoriteService(t *testing.T) {
	ctx := context.Background()
	s := NewFavoriteService(setupDB(t))
	clock := time.Unix(100, 0)
	s.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	_, err := s.Add(ctx, "not-a-code")
	require.ErrorIs(t, err, common.ErrValidationFailed)

	c1, err := s.Add(ctx, " amy:r1 ")
	require.NoError(t, err)
	assert.Equal(t, models.Code{OwnerID: "amy", RecordID: "r1"}, c1)
	_, err = s.Add(ctx, "amy:r1")
	require.NoError(t, err)
	c2, err := s.Add(ctx, "bob:r2")
	require.NoError(t, err)

	require.NoError(t, s.Annotate(ctx, c2, "great pose"))
	require.ErrorIs(t, s.Annotate(ctx, models.Code{OwnerID: "x", RecordID: "y"}, "?"), common.ErrNotFound)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "amy:r1", list[0].Code)
	assert.Equal(t, "great pose", list[1].Annotation)

	require.NoError(t, s.Remove(ctx, c1))
	require.ErrorIs(t, s.Remove(ctx, c1), common.ErrNotFound)
}
