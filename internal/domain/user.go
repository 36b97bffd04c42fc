package domain

import "time"

// AuthStatus represents the session's authentication state.
// The only transitions are loading -> {authenticated, unauthenticated} at
// hydration, and authenticated <-> unauthenticated via explicit login/logout.
type AuthStatus string

const (
	// AuthStatusLoading is the initial state while stored credentials are read.
	AuthStatusLoading AuthStatus = "loading"
	// AuthStatusAuthenticated indicates a user is signed in on this device.
	AuthStatusAuthenticated AuthStatus = "authenticated"
	// AuthStatusUnauthenticated indicates no user is signed in.
	AuthStatusUnauthenticated AuthStatus = "unauthenticated"
)

// User represents a reader account. One user owns all reading data on the
// device; history, bookmarks and progress are scoped by its ID.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Nickname     string    `json:"nickname"`
	Avatar       string    `json:"avatar,omitempty"`
	PasswordHash string    `json:"password_hash,omitempty"` // Stored hashed, filter from API responses
	CreatedAt    time.Time `json:"created_at"`
	LastSyncTime time.Time `json:"last_sync_time"`
}

// TouchSyncTime records a successful sync.
func (u *User) TouchSyncTime() {
	u.LastSyncTime = time.Now()
}

// Sanitized returns a copy safe to hand to clients (no password hash).
func (u *User) Sanitized() *User {
	clean := *u
	clean.PasswordHash = ""
	return &clean
}
