package session

// Session defines a public type used by authcore APIs.
//
// Session instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Session struct {
	SessionID string
	UserID    string

	Status      uint8
	RefreshHash [32]byte

	// MFAVerifiedAt is zero when the session was established without a
	// second factor. MFAExpiresAt bounds the remembered-device window.
	MFAVerifiedAt int64
	MFAExpiresAt  int64

	CreatedAt int64
	ExpiresAt int64
}

// MFAVerified reports whether the session completed a second-factor check.
func (s *Session) MFAVerified() bool {
	return s != nil && s.MFAVerifiedAt > 0
}

// MFACurrent reports whether the second-factor verification is still inside
// its window at the given unix time. A verified session with no recorded
// window counts as expired.
func (s *Session) MFACurrent(now int64) bool {
	return s.MFAVerified() && now < s.MFAExpiresAt
}
