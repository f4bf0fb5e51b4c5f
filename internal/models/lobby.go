package models

import (
	"bytes"
	"time"
)

// LobbySnapshot is what a member broadcasts: its position and, when it has
// changed, its appearance payload.
type LobbySnapshot struct {
	World      *WorldData `json:"world,omitempty"`
	Appearance []byte     `json:"appearance,omitempty"`
}

func (s LobbySnapshot) Empty() bool {
	return s.World == nil && len(s.Appearance) == 0
}

type WorldSnapshot struct {
	Data       WorldData `json:"data"`
	ReceivedAt time.Time `json:"received_at"`
}

// AppearanceSnapshot is the latest appearance seen for a member. Pending
// is true until it has been applied to a local actor.
type AppearanceSnapshot struct {
	Data       []byte    `json:"data"`
	ReceivedAt time.Time `json:"received_at"`
	Pending    bool      `json:"pending"`
}

// ActorHandle identifies the local game actor a member is mirrored onto.
type ActorHandle struct {
	ObjectIndex uint16 `json:"object_index"`
	Name        string `json:"name"`
}

func (h ActorHandle) Valid() bool { return h.Name != "" }

type LobbyMember struct {
	UserID     string              `json:"user_id"`
	World      *WorldSnapshot      `json:"world,omitempty"`
	Appearance *AppearanceSnapshot `json:"appearance,omitempty"`
	Actor      *ActorHandle        `json:"-"`
	UpdatedAt  time.Time           `json:"updated_at"`
	// Seq orders inbound updates by arrival on this client.
	Seq uint64 `json:"seq"`
}

func (m LobbyMember) Clone() LobbyMember {
	c := m
	if m.World != nil {
		w := *m.World
		w.Data = *m.World.Data.clone()
		c.World = &w
	}
	if m.Appearance != nil {
		a := *m.Appearance
		a.Data = bytes.Clone(m.Appearance.Data)
		c.Appearance = &a
	}
	if m.Actor != nil {
		h := *m.Actor
		c.Actor = &h
	}
	return c
}

type LobbyInfo struct {
	ID      string   `json:"id"`
	Members []string `json:"members"`
}

type LobbyEventType string

const (
	LobbyMemberJoined LobbyEventType = "member_joined"
	LobbyMemberLeft   LobbyEventType = "member_left"
	LobbySnapshotSent LobbyEventType = "snapshot"
	LobbyClosed       LobbyEventType = "closed"
)

type LobbyEvent struct {
	Type     LobbyEventType `json:"type"`
	LobbyID  string         `json:"lobby_id"`
	UserID   string         `json:"user_id,omitempty"`
	Snapshot *LobbySnapshot `json:"snapshot,omitempty"`
	SentAt   time.Time      `json:"sent_at"`
}
