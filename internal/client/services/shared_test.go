package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/charasync/internal/models"
)

func sharedRecord(id, owner, desc string, updated time.Time) *models.CharaRecord {
	r := models.NewSkeleton(id, owner, updated)
	r.Description = desc
	r.ShareRule = models.ShareShared
	return r
}

func TestSharedCatalog_GroupsByOwner(t *testing.T) {
	base := time.Unix(1000, 0)
	past := base.Add(-time.Hour)
	expired := sharedRecord("gone", "amy", "old", base)
	expired.ExpiresAt = &past

	c := NewSharedCatalog()
	c.now = func() time.Time { return base }
	c.Replace([]*models.CharaRecord{
		sharedRecord("b1", "bob", "Summer outfit", base),
		sharedRecord("a1", "amy", "Casual", base),
		sharedRecord("a2", "amy", "Raid gear", base.Add(time.Minute)),
		expired,
	})

	groups := c.GroupedByOwner("")
	require.Len(t, groups, 2)
	assert.Equal(t, "amy", groups[0].OwnerID)
	require.Len(t, groups[0].Records, 2)
	assert.Equal(t, "a2", groups[0].Records[0].ID, "most recently updated first")
	assert.Equal(t, "bob", groups[1].OwnerID)

	filtered := c.GroupedByOwner("  OUTFIT ")
	require.Len(t, filtered, 1)
	assert.Equal(t, "b1", filtered[0].Records[0].ID)

	byOwner := c.GroupedByOwner("am")
	require.Len(t, byOwner, 1)
	assert.Len(t, byOwner[0].Records, 2)

	assert.Empty(t, c.GroupedByOwner("nothing"))
	assert.Len(t, c.Records(), 3)
}

func TestSharedCatalog_FindReturnsCopy(t *testing.T) {
	c := NewSharedCatalog()
	c.Replace([]*models.CharaRecord{sharedRecord("a1", "amy", "Casual", time.Now())})

	r, ok := c.Find(models.Code{OwnerID: "amy", RecordID: "a1"})
	require.True(t, ok)
	r.Description = "changed"

	again, _ := c.Find(models.Code{OwnerID: "amy", RecordID: "a1"})
	assert.Equal(t, "Casual", again.Description)

	_, ok = c.Find(models.Code{OwnerID: "bob", RecordID: "a1"})
	assert.False(t, ok)
}
