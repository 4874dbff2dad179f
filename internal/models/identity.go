package models

// Identity is an already-authenticated caller. The core never mints or
// verifies credentials; it only threads this value through every call.
type Identity struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Valid reports whether the identity carries a user id.
func (i Identity) Valid() bool {
	return i.UserID != ""
}
