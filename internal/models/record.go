// Package models contains the domain types shared by the charasync client
// and server: records, poses, access rules, lobby snapshots and the
// relationship data the access resolver works on.
package models

import (
	"bytes"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/dmitrijs2005/charasync/internal/common"
	"github.com/dmitrijs2005/charasync/internal/cryptox"
)

// Hash is the upper-case hex content hash of a file.
type Hash string

var hashPattern = regexp.MustCompile(`^[0-9A-F]+$`)

func (h Hash) Valid() bool {
	return len(h) == cryptox.ContentHashLen && hashPattern.MatchString(string(h))
}

// NormalizeHash upper-cases s so hashes from different producers compare equal.
func NormalizeHash(s string) Hash {
	return Hash(strings.ToUpper(strings.TrimSpace(s)))
}

// FileEntry maps a game path to the content that replaces it.
type FileEntry struct {
	GamePath string `json:"game_path"`
	Hash     Hash   `json:"hash"`
}

type Housing struct {
	Division uint32 `json:"division"`
	Ward     uint32 `json:"ward"`
	House    uint32 `json:"house"`
	Room     uint32 `json:"room"`
}

type Location struct {
	ServerID   uint32   `json:"server_id"`
	MapID      uint32   `json:"map_id"`
	InstanceID uint32   `json:"instance_id"`
	Housing    *Housing `json:"housing,omitempty"`
}

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// WorldData anchors a pose in the game world. Facing is a yaw in radians.
type WorldData struct {
	Location Location `json:"location"`
	Position Vec3     `json:"position"`
	Facing   float64  `json:"facing"`
}

// Clone returns a deep copy of w.
func (w WorldData) Clone() WorldData {
	return *w.clone()
}

func (w *WorldData) clone() *WorldData {
	if w == nil {
		return nil
	}
	c := *w
	if w.Location.Housing != nil {
		h := *w.Location.Housing
		c.Location.Housing = &h
	}
	return &c
}

// PoseEntry is a saved pose. ID is nil until the server accepts it.
type PoseEntry struct {
	ID          *string    `json:"id,omitempty"`
	Description string     `json:"description"`
	Pose        []byte     `json:"pose,omitempty"`
	World       *WorldData `json:"world,omitempty"`
}

// Cleared reports whether the pose carries nothing and is due for deletion
// on the next save.
func (p PoseEntry) Cleared() bool {
	return p.Description == "" && len(p.Pose) == 0 && p.World == nil
}

func (p PoseEntry) Clone() PoseEntry {
	c := p
	if p.ID != nil {
		id := *p.ID
		c.ID = &id
	}
	c.Pose = bytes.Clone(p.Pose)
	c.World = p.World.clone()
	return c
}

func (p PoseEntry) Equal(o PoseEntry) bool {
	if (p.ID == nil) != (o.ID == nil) || (p.ID != nil && *p.ID != *o.ID) {
		return false
	}
	if p.Description != o.Description || !bytes.Equal(p.Pose, o.Pose) {
		return false
	}
	if (p.World == nil) != (o.World == nil) {
		return false
	}
	if p.World == nil {
		return true
	}
	a, b := *p.World, *o.World
	if (a.Location.Housing == nil) != (b.Location.Housing == nil) {
		return false
	}
	if a.Location.Housing != nil && *a.Location.Housing != *b.Location.Housing {
		return false
	}
	a.Location.Housing, b.Location.Housing = nil, nil
	return a == b
}

// CharaRecord is a shareable character appearance plus its poses.
type CharaRecord struct {
	ID            string      `json:"id"`
	OwnerID       string      `json:"owner_id"`
	Description   string      `json:"description"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	ExpiresAt     *time.Time  `json:"expires_at,omitempty"`
	DownloadCount int64       `json:"download_count"`
	AccessRule    AccessRule  `json:"access_rule"`
	ShareRule     ShareRule   `json:"share_rule"`
	AllowedUsers  []string    `json:"allowed_users"`
	AllowedGroups []string    `json:"allowed_groups"`
	Appearance    []byte      `json:"appearance,omitempty"`
	Files         []FileEntry `json:"files"`
	Poses         []PoseEntry `json:"poses"`
}

// Code returns the code under which the record can be fetched.
func (r *CharaRecord) Code() Code {
	return Code{OwnerID: r.OwnerID, RecordID: r.ID}
}

// Expired reports whether the record's expiry lies at or before now.
func (r *CharaRecord) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

// UniqueHashes lists the distinct file hashes in first-seen order.
func (r *CharaRecord) UniqueHashes() []Hash {
	seen := make(map[Hash]struct{}, len(r.Files))
	out := make([]Hash, 0, len(r.Files))
	for _, f := range r.Files {
		if _, ok := seen[f.Hash]; ok {
			continue
		}
		seen[f.Hash] = struct{}{}
		out = append(out, f.Hash)
	}
	return out
}

// ActivePoses counts poses that are not cleared.
func (r *CharaRecord) ActivePoses() int {
	n := 0
	for _, p := range r.Poses {
		if !p.Cleared() {
			n++
		}
	}
	return n
}

// CompactPoses removes cleared poses and gives every remaining pose
// without an id one from newID. This is what a save does to the pose list.
func (r *CharaRecord) CompactPoses(newID func() string) {
	kept := r.Poses[:0]
	for _, p := range r.Poses {
		if p.Cleared() {
			continue
		}
		if p.ID == nil {
			id := newID()
			p.ID = &id
		}
		kept = append(kept, p)
	}
	r.Poses = kept
}

func (r *CharaRecord) Clone() *CharaRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		c.ExpiresAt = &t
	}
	c.AllowedUsers = slices.Clone(r.AllowedUsers)
	c.AllowedGroups = slices.Clone(r.AllowedGroups)
	c.Appearance = bytes.Clone(r.Appearance)
	c.Files = slices.Clone(r.Files)
	if r.Poses != nil {
		c.Poses = make([]PoseEntry, len(r.Poses))
		for i, p := range r.Poses {
			c.Poses[i] = p.Clone()
		}
	}
	return &c
}

// NewSkeleton returns an empty record as created by the server.
func NewSkeleton(id, ownerID string, now time.Time) *CharaRecord {
	return &CharaRecord{
		ID:            id,
		OwnerID:       ownerID,
		CreatedAt:     now,
		UpdatedAt:     now,
		AccessRule:    AccessDirectPairs,
		ShareRule:     ShareCodeOnly,
		AllowedUsers:  []string{},
		AllowedGroups: []string{},
		Files:         []FileEntry{},
		Poses:         []PoseEntry{},
	}
}

// RecordMeta is the summary returned by FetchMetaInfo.
type RecordMeta struct {
	ID            string     `json:"id"`
	OwnerID       string     `json:"owner_id"`
	Description   string     `json:"description"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	DownloadCount int64      `json:"download_count"`
	HasAppearance bool       `json:"has_appearance"`
	FileCount     int        `json:"file_count"`
	PoseCount     int        `json:"pose_count"`
	Downloadable  bool       `json:"downloadable"`
}

// Meta summarises r. downloadable is decided by the caller from file
// availability.
func (r *CharaRecord) Meta(downloadable bool) *RecordMeta {
	m := &RecordMeta{
		ID:            r.ID,
		OwnerID:       r.OwnerID,
		Description:   r.Description,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		DownloadCount: r.DownloadCount,
		HasAppearance: len(r.Appearance) > 0,
		FileCount:     len(r.UniqueHashes()),
		PoseCount:     r.ActivePoses(),
		Downloadable:  downloadable,
	}
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		m.ExpiresAt = &t
	}
	return m
}

// Limits are the server-advertised record limits.
type Limits struct {
	MaxRecords     int           `json:"max_records"`
	MaxPoses       int           `json:"max_poses"`
	CreateCooldown time.Duration `json:"create_cooldown"`
}

// Code identifies a record as "<ownerID>:<recordID>".
type Code struct {
	OwnerID  string
	RecordID string
}

func (c Code) String() string {
	return c.OwnerID + ":" + c.RecordID
}

// ParseCode splits s on its single ':' separator. Both halves must be
// non-empty.
func ParseCode(s string) (Code, error) {
	owner, record, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || owner == "" || record == "" || strings.Contains(record, ":") {
		return Code{}, fmt.Errorf("malformed code %q: %w", s, common.ErrValidationFailed)
	}
	return Code{OwnerID: owner, RecordID: record}, nil
}

var identityPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,32}$`)

// ValidIdentity reports whether s is a well-formed user or group identity.
func ValidIdentity(s string) bool {
	return identityPattern.MatchString(s)
}

// RecordScope separates owned and shared rows in the client cache.
type RecordScope string

const (
	ScopeOwned  RecordScope = "owned"
	ScopeShared RecordScope = "shared"
)
