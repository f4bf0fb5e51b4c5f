// Package access decides whether a viewer may read a record, given the
// owner's access rule and the pairing relationships between the two users.
package access

import (
	"slices"
	"sync/atomic"

	"github.com/dmitrijs2005/charasync/internal/models"
)

type pairKey struct{ from, to string }

// Snapshot is an immutable view of pairs and group memberships.
type Snapshot struct {
	pairs  map[pairKey]bool // value: paused by from
	groups map[string]map[string]bool
	member map[string][]string
}

// NewSnapshot indexes rel. A direct pair exists only when both sides have
// added each other.
func NewSnapshot(rel models.Relationships) *Snapshot {
	s := &Snapshot{
		pairs:  make(map[pairKey]bool, len(rel.Pairs)),
		groups: make(map[string]map[string]bool),
		member: make(map[string][]string),
	}
	for _, p := range rel.Pairs {
		s.pairs[pairKey{p.UserID, p.OtherID}] = p.Paused
	}
	for _, m := range rel.Memberships {
		g, ok := s.groups[m.GroupID]
		if !ok {
			g = make(map[string]bool)
			s.groups[m.GroupID] = g
		}
		if _, dup := g[m.UserID]; !dup {
			s.member[m.UserID] = append(s.member[m.UserID], m.GroupID)
		}
		g[m.UserID] = m.Paused
	}
	return s
}

// DirectPair reports whether a and b are paired in both directions with
// neither side paused.
func (s *Snapshot) DirectPair(a, b string) bool {
	ab, ok1 := s.pairs[pairKey{a, b}]
	ba, ok2 := s.pairs[pairKey{b, a}]
	return ok1 && ok2 && !ab && !ba
}

// MemberOf reports whether user belongs to group, paused or not.
func (s *Snapshot) MemberOf(user, group string) bool {
	_, ok := s.groups[group][user]
	return ok
}

// SharedActiveGroup reports whether a and b share a group in which neither
// has paused their membership.
func (s *Snapshot) SharedActiveGroup(a, b string) bool {
	for _, gid := range s.member[a] {
		g := s.groups[gid]
		pa, okA := g[a]
		pb, okB := g[b]
		if okA && okB && !pa && !pb {
			return true
		}
	}
	return false
}

// CanAccess applies record's access rule for viewer. The owner always has
// access.
func (s *Snapshot) CanAccess(viewer string, record *models.CharaRecord) bool {
	if record == nil || viewer == "" {
		return false
	}
	if viewer == record.OwnerID {
		return true
	}

	listed := slices.Contains(record.AllowedUsers, viewer)

	switch record.AccessRule {
	case models.AccessEveryone:
		return true
	case models.AccessSpecified:
		if listed {
			return true
		}
		for _, g := range record.AllowedGroups {
			if s.MemberOf(viewer, g) {
				return true
			}
		}
		return false
	case models.AccessDirectPairs:
		return listed || s.DirectPair(record.OwnerID, viewer)
	case models.AccessAllPairs:
		return listed || s.DirectPair(record.OwnerID, viewer) || s.SharedActiveGroup(record.OwnerID, viewer)
	default:
		return false
	}
}

// Resolver holds the current snapshot and may be updated concurrently
// with reads.
type Resolver struct {
	snap atomic.Pointer[Snapshot]
}

func NewResolver(rel models.Relationships) *Resolver {
	r := &Resolver{}
	r.Update(rel)
	return r
}

func (r *Resolver) Update(rel models.Relationships) {
	r.snap.Store(NewSnapshot(rel))
}

func (r *Resolver) Snapshot() *Snapshot {
	return r.snap.Load()
}

func (r *Resolver) CanAccess(viewer string, record *models.CharaRecord) bool {
	s := r.snap.Load()
	if s == nil {
		s = NewSnapshot(models.Relationships{})
	}
	return s.CanAccess(viewer, record)
}
