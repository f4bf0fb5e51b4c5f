package models

// AccessRule controls who may read a record.
type AccessRule string

const (
	AccessSpecified   AccessRule = "specified"
	AccessDirectPairs AccessRule = "direct_pairs"
	AccessAllPairs    AccessRule = "all_pairs"
	AccessEveryone    AccessRule = "everyone"
)

func (r AccessRule) Valid() bool {
	switch r {
	case AccessSpecified, AccessDirectPairs, AccessAllPairs, AccessEveryone:
		return true
	}
	return false
}

// ShareRule controls how a record is discovered. CodeOnly records are
// reachable by code; Shared records are also listed in the shared catalog.
type ShareRule string

const (
	ShareCodeOnly ShareRule = "code_only"
	ShareShared   ShareRule = "shared"
)

func (r ShareRule) Valid() bool {
	return r == ShareCodeOnly || r == ShareShared
}

// ValidRuleCombination reports whether access and share may be stored
// together. Shared with Everyone is refused.
func ValidRuleCombination(access AccessRule, share ShareRule) bool {
	return !(share == ShareShared && access == AccessEveryone)
}
