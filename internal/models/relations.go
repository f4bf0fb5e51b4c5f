package models

// Pair is one side of a pair relationship: UserID added OtherID. Paused
// means UserID has paused the pair on its side.
type Pair struct {
	UserID  string `json:"user_id"`
	OtherID string `json:"other_id"`
	Paused  bool   `json:"paused"`
}

// Membership records UserID's membership of GroupID.
type Membership struct {
	GroupID string `json:"group_id"`
	UserID  string `json:"user_id"`
	Paused  bool   `json:"paused"`
}

// Relationships is the pairing data needed to decide access for one viewer.
type Relationships struct {
	Pairs       []Pair       `json:"pairs"`
	Memberships []Membership `json:"memberships"`
}
