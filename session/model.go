package session

import "time"

// Record is the persisted session state for one principal.
//
// PrincipalID is the unique key: a store never holds two records for the same
// principal. ExpiresAt always equals the refresh token's expiry.
type Record struct {
	PrincipalID   string
	AccessTokenID string
	RefreshToken  string

	// RefreshBindingID is the access-token id the refresh token was minted
	// with. It never changes for the life of the record, while AccessTokenID
	// follows every rotation.
	RefreshBindingID string

	// Principal snapshot reissued into rotated access tokens.
	Name          string
	Role          string
	StoreName     string
	StoreCategory string

	ExpiresAt  time.Time
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// Expired reports whether the record is past its refresh deadline at now.
// A record expires at exactly ExpiresAt.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Clone returns a copy that shares no state with r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	return &out
}
