package store

import "github.com/readwellapp/readwell-sync/internal/errors"

// Sentinel errors for store operations.
var (
	ErrUserNotFound     = errors.NotFound("user not found")
	ErrUserExists       = errors.AlreadyExists("a user with this email already exists")
	ErrNoCurrentUser    = errors.NotFound("no user is signed in on this device")
	ErrSnapshotNotFound = errors.NotFound("no snapshot stored for user")
)
