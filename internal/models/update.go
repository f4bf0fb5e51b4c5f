package models

import (
	"bytes"
	"slices"
	"time"
)

// FieldGroup names an independently tracked part of a record.
type FieldGroup uint8

const (
	GroupGeneral FieldGroup = 1 << iota
	GroupAccess
	GroupAppearance
	GroupPoses

	groupCount = 4
)

var allGroups = [groupCount]FieldGroup{GroupGeneral, GroupAccess, GroupAppearance, GroupPoses}

func (g FieldGroup) Has(o FieldGroup) bool { return g&o != 0 }

func (g FieldGroup) String() string {
	names := make([]byte, 0, 32)
	for _, one := range allGroups {
		if !g.Has(one) {
			continue
		}
		if len(names) > 0 {
			names = append(names, ',')
		}
		switch one {
		case GroupGeneral:
			names = append(names, "general"...)
		case GroupAccess:
			names = append(names, "access"...)
		case GroupAppearance:
			names = append(names, "appearance"...)
		case GroupPoses:
			names = append(names, "poses"...)
		}
	}
	return string(names)
}

func groupIndex(g FieldGroup) int {
	for i, one := range allGroups {
		if one == g {
			return i
		}
	}
	return -1
}

type GeneralFields struct {
	Description string     `json:"description"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

type AccessFields struct {
	AccessRule    AccessRule `json:"access_rule"`
	ShareRule     ShareRule  `json:"share_rule"`
	AllowedUsers  []string   `json:"allowed_users"`
	AllowedGroups []string   `json:"allowed_groups"`
}

type AppearanceFields struct {
	Appearance []byte      `json:"appearance,omitempty"`
	Files      []FileEntry `json:"files"`
}

type PoseFields struct {
	Poses []PoseEntry `json:"poses"`
}

// RecordUpdate carries only the groups that changed. Nil groups are left
// untouched by the receiver.
type RecordUpdate struct {
	General    *GeneralFields    `json:"general,omitempty"`
	Access     *AccessFields     `json:"access,omitempty"`
	Appearance *AppearanceFields `json:"appearance,omitempty"`
	Poses      *PoseFields       `json:"poses,omitempty"`
}

func (u RecordUpdate) Empty() bool {
	return u.General == nil && u.Access == nil && u.Appearance == nil && u.Poses == nil
}

// Groups reports which groups u carries.
func (u RecordUpdate) Groups() FieldGroup {
	var g FieldGroup
	if u.General != nil {
		g |= GroupGeneral
	}
	if u.Access != nil {
		g |= GroupAccess
	}
	if u.Appearance != nil {
		g |= GroupAppearance
	}
	if u.Poses != nil {
		g |= GroupPoses
	}
	return g
}

// ApplyTo copies every carried group into r.
func (u RecordUpdate) ApplyTo(r *CharaRecord) {
	if u.General != nil {
		r.Description = u.General.Description
		r.ExpiresAt = cloneTime(u.General.ExpiresAt)
	}
	if u.Access != nil {
		r.AccessRule = u.Access.AccessRule
		r.ShareRule = u.Access.ShareRule
		r.AllowedUsers = slices.Clone(u.Access.AllowedUsers)
		r.AllowedGroups = slices.Clone(u.Access.AllowedGroups)
	}
	if u.Appearance != nil {
		r.Appearance = bytes.Clone(u.Appearance.Appearance)
		r.Files = slices.Clone(u.Appearance.Files)
	}
	if u.Poses != nil {
		r.Poses = clonePoses(u.Poses.Poses)
	}
}

// Extract builds an update holding the requested groups of r.
func Extract(r *CharaRecord, groups FieldGroup) RecordUpdate {
	var u RecordUpdate
	if groups.Has(GroupGeneral) {
		u.General = &GeneralFields{Description: r.Description, ExpiresAt: cloneTime(r.ExpiresAt)}
	}
	if groups.Has(GroupAccess) {
		u.Access = &AccessFields{
			AccessRule:    r.AccessRule,
			ShareRule:     r.ShareRule,
			AllowedUsers:  nonNil(slices.Clone(r.AllowedUsers)),
			AllowedGroups: nonNil(slices.Clone(r.AllowedGroups)),
		}
	}
	if groups.Has(GroupAppearance) {
		u.Appearance = &AppearanceFields{Appearance: bytes.Clone(r.Appearance), Files: nonNil(slices.Clone(r.Files))}
	}
	if groups.Has(GroupPoses) {
		u.Poses = &PoseFields{Poses: nonNil(clonePoses(r.Poses))}
	}
	return u
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func clonePoses(in []PoseEntry) []PoseEntry {
	if in == nil {
		return nil
	}
	out := make([]PoseEntry, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
