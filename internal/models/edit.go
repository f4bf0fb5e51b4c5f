package models

import (
	"bytes"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/charasync/internal/common"
)

// PendingEdit is the editable working copy of one owned record. Each field
// group tracks its own dirty flag and revision so a save can be reconciled
// with edits made while it was in flight.
type PendingEdit struct {
	mu       sync.Mutex
	maxPoses int
	base     *CharaRecord
	work     *CharaRecord
	dirty    FieldGroup
	revs     [groupCount]uint64
}

// SaveToken remembers what a Diff call sent.
type SaveToken struct {
	groups FieldGroup
	revs   [groupCount]uint64
}

func (t SaveToken) Groups() FieldGroup { return t.groups }

// NewPendingEdit opens an edit over canonical. maxPoses <= 0 disables the
// pose cap.
func NewPendingEdit(canonical *CharaRecord, maxPoses int) *PendingEdit {
	return &PendingEdit{
		maxPoses: maxPoses,
		base:     canonical.Clone(),
		work:     canonical.Clone(),
	}
}

func (e *PendingEdit) RecordID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.work.ID
}

// Record returns a copy of the working state.
func (e *PendingEdit) Record() *CharaRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.work.Clone()
}

// Base returns a copy of the canonical state the edit started from.
func (e *PendingEdit) Base() *CharaRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.base.Clone()
}

func (e *PendingEdit) IsDirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty != 0
}

func (e *PendingEdit) Dirty() FieldGroup {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty
}

func (e *PendingEdit) touch(g FieldGroup) {
	e.dirty |= g
	e.revs[groupIndex(g)]++
}

func (e *PendingEdit) SetDescription(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.work.Description == s {
		return
	}
	e.work.Description = s
	e.touch(GroupGeneral)
}

// SetExpiresAt sets or, with nil, clears the expiry.
func (e *PendingEdit) SetExpiresAt(t *time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur := e.work.ExpiresAt
	if (cur == nil && t == nil) || (cur != nil && t != nil && cur.Equal(*t)) {
		return
	}
	e.work.ExpiresAt = cloneTime(t)
	e.touch(GroupGeneral)
}

func (e *PendingEdit) SetAccessRule(r AccessRule) error {
	if !r.Valid() {
		return fmt.Errorf("access rule %q: %w", r, common.ErrValidationFailed)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.work.AccessRule == r {
		return nil
	}
	e.work.AccessRule = r
	e.touch(GroupAccess)
	return nil
}

func (e *PendingEdit) SetShareRule(r ShareRule) error {
	if !r.Valid() {
		return fmt.Errorf("share rule %q: %w", r, common.ErrValidationFailed)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.work.ShareRule == r {
		return nil
	}
	e.work.ShareRule = r
	e.touch(GroupAccess)
	return nil
}

// AddAllowedUser appends id unless it is already listed.
func (e *PendingEdit) AddAllowedUser(id string) error {
	return e.addIdentity(usersOf, id)
}

func (e *PendingEdit) RemoveAllowedUser(id string) bool {
	return e.removeIdentity(usersOf, id)
}

func (e *PendingEdit) AddAllowedGroup(id string) error {
	return e.addIdentity(groupsOf, id)
}

func (e *PendingEdit) RemoveAllowedGroup(id string) bool {
	return e.removeIdentity(groupsOf, id)
}

func usersOf(r *CharaRecord) *[]string  { return &r.AllowedUsers }
func groupsOf(r *CharaRecord) *[]string { return &r.AllowedGroups }

func (e *PendingEdit) addIdentity(field func(*CharaRecord) *[]string, id string) error {
	if !ValidIdentity(id) {
		return fmt.Errorf("identity %q: %w", id, common.ErrValidationFailed)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	list := field(e.work)
	if slices.Contains(*list, id) {
		return nil
	}
	*list = append(*list, id)
	e.touch(GroupAccess)
	return nil
}

func (e *PendingEdit) removeIdentity(field func(*CharaRecord) *[]string, id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	list := field(e.work)
	i := slices.Index(*list, id)
	if i < 0 {
		return false
	}
	*list = slices.Delete(*list, i, i+1)
	e.touch(GroupAccess)
	return true
}

// SetAppearance replaces the appearance payload and its file manifest.
func (e *PendingEdit) SetAppearance(payload []byte, files []FileEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if bytes.Equal(e.work.Appearance, payload) && slices.Equal(e.work.Files, files) {
		return
	}
	e.work.Appearance = bytes.Clone(payload)
	e.work.Files = slices.Clone(files)
	e.touch(GroupAppearance)
}

// AddPose appends p as a new pose and returns its index.
func (e *PendingEdit) AddPose(p PoseEntry) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !p.Cleared() && e.maxPoses > 0 && e.work.ActivePoses() >= e.maxPoses {
		return -1, fmt.Errorf("pose limit %d reached: %w", e.maxPoses, common.ErrValidationFailed)
	}
	p = p.Clone()
	p.ID = nil
	e.work.Poses = append(e.work.Poses, p)
	e.touch(GroupPoses)
	return len(e.work.Poses) - 1, nil
}

// UpdatePose applies fn to the pose at i. A pose that ends up cleared is
// dropped by the server on the next save.
func (e *PendingEdit) UpdatePose(i int, fn func(p *PoseEntry)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i < 0 || i >= len(e.work.Poses) {
		return fmt.Errorf("pose %d: %w", i, common.ErrNotFound)
	}
	before := e.work.Poses[i].Clone()
	after := before.Clone()
	fn(&after)
	after.ID = before.ID
	if before.Cleared() && !after.Cleared() && e.maxPoses > 0 && e.work.ActivePoses() >= e.maxPoses {
		return fmt.Errorf("pose limit %d reached: %w", e.maxPoses, common.ErrValidationFailed)
	}
	if before.Equal(after) {
		return nil
	}
	e.work.Poses[i] = after
	e.touch(GroupPoses)
	return nil
}

// ClearPose empties the pose at i, scheduling it for deletion.
func (e *PendingEdit) ClearPose(i int) error {
	return e.UpdatePose(i, func(p *PoseEntry) {
		p.Description = ""
		p.Pose = nil
		p.World = nil
	})
}

// UndoAll drops every pending change.
func (e *PendingEdit) UndoAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, g := range allGroups {
		if e.dirty.Has(g) {
			e.revs[groupIndex(g)]++
		}
	}
	e.work = e.base.Clone()
	e.dirty = 0
}

// Validate checks the working state against the save rules.
func (e *PendingEdit) Validate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ValidateRecord(e.work, e.maxPoses)
}

// ValidateRecord checks r against the rules enforced on save.
func ValidateRecord(r *CharaRecord, maxPoses int) error {
	if !ValidRuleCombination(r.AccessRule, r.ShareRule) {
		return fmt.Errorf("share rule %q cannot be combined with access rule %q: %w",
			r.ShareRule, r.AccessRule, common.ErrValidationFailed)
	}
	if maxPoses > 0 && r.ActivePoses() > maxPoses {
		return fmt.Errorf("%d poses exceed limit %d: %w", r.ActivePoses(), maxPoses, common.ErrValidationFailed)
	}
	for _, id := range r.AllowedUsers {
		if !ValidIdentity(id) {
			return fmt.Errorf("allowed user %q: %w", id, common.ErrValidationFailed)
		}
	}
	for _, id := range r.AllowedGroups {
		if !ValidIdentity(id) {
			return fmt.Errorf("allowed group %q: %w", id, common.ErrValidationFailed)
		}
	}
	return nil
}

// Diff returns the dirty groups as an update, plus the token Rebase needs.
func (e *PendingEdit) Diff() (RecordUpdate, SaveToken) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Extract(e.work, e.dirty), SaveToken{groups: e.dirty, revs: e.revs}
}

// Rebase adopts canonical as the new base after a successful save. Groups
// sent with token and untouched since are replaced by the canonical values
// and marked clean; groups edited during the save stay dirty.
func (e *PendingEdit) Rebase(canonical *CharaRecord, token SaveToken) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := canonical.Clone()
	keep := FieldGroup(0)
	for i, g := range allGroups {
		if !e.dirty.Has(g) {
			continue
		}
		if token.groups.Has(g) && e.revs[i] == token.revs[i] {
			e.dirty &^= g
			continue
		}
		keep |= g
	}
	Extract(e.work, keep).ApplyTo(next)

	e.base = canonical.Clone()
	e.work = next
}
