package services

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/charasync/internal/models"
)

// OwnerGroup is the shared records of one owner.
type OwnerGroup struct {
	OwnerID string
	Records []*models.CharaRecord
}

// SharedCatalog holds the records other users shared with this account, as
// returned by the last shared refresh.
type SharedCatalog struct {
	mu      sync.RWMutex
	records []*models.CharaRecord
	now     func() time.Time
}

func NewSharedCatalog() *SharedCatalog {
	return &SharedCatalog{now: time.Now}
}

// Replace swaps the catalog content; expired records are dropped.
func (c *SharedCatalog) Replace(recs []*models.CharaRecord) {
	now := c.now()
	next := make([]*models.CharaRecord, 0, len(recs))
	for _, r := range recs {
		if !r.Expired(now) {
			next = append(next, r.Clone())
		}
	}
	slices.SortFunc(next, compareOwnerThenUpdate)

	c.mu.Lock()
	c.records = next
	c.mu.Unlock()
}

// Records returns copies of all shared records sorted by owner.
func (c *SharedCatalog) Records() []*models.CharaRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*models.CharaRecord, len(c.records))
	for i, r := range c.records {
		out[i] = r.Clone()
	}
	return out
}

// Find returns the shared record addressed by code.
func (c *SharedCatalog) Find(code models.Code) (*models.CharaRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.records {
		if r.OwnerID == code.OwnerID && r.ID == code.RecordID {
			return r.Clone(), true
		}
	}
	return nil, false
}

// GroupedByOwner lists shared records per owner, owners in ascending order
// and each owner's records most recently updated first. A non-empty filter
// keeps records whose owner or description contains it, case-insensitively.
func (c *SharedCatalog) GroupedByOwner(filter string) []OwnerGroup {
	filter = strings.ToLower(strings.TrimSpace(filter))

	c.mu.RLock()
	defer c.mu.RUnlock()

	var groups []OwnerGroup
	for _, r := range c.records {
		if filter != "" &&
			!strings.Contains(strings.ToLower(r.OwnerID), filter) &&
			!strings.Contains(strings.ToLower(r.Description), filter) {
			continue
		}
		if n := len(groups); n == 0 || groups[n-1].OwnerID != r.OwnerID {
			groups = append(groups, OwnerGroup{OwnerID: r.OwnerID})
		}
		g := &groups[len(groups)-1]
		g.Records = append(g.Records, r.Clone())
	}
	return groups
}

func compareOwnerThenUpdate(a, b *models.CharaRecord) int {
	if c := strings.Compare(a.OwnerID, b.OwnerID); c != 0 {
		return c
	}
	if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}
