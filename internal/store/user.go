package store

import (
	"context"
	"errors"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/readwellapp/readwell-sync/internal/domain"
)

// normalizeEmail lowercases and trims an email for index lookups, so
// "Reader@Example.com" and "reader@example.com" are the same account.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser stores a new user and its email index atomically.
// Fails with ErrUserExists if the email is already registered.
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	emailKey := userEmailKey(normalizeEmail(user.Email))

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(emailKey); err == nil {
			return ErrUserExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		data, err := marshal(user)
		if err != nil {
			return err
		}
		if err := txn.Set(userKey(user.ID), data); err != nil {
			return err
		}
		return txn.Set(emailKey, []byte(user.ID))
	})
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var user domain.User
	err := s.get(userKey(id), &user)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail retrieves a user via the email index.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var user domain.User
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userEmailKey(normalizeEmail(email)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}

		var userID string
		if err := item.Value(func(val []byte) error {
			userID = string(val)
			return nil
		}); err != nil {
			return err
		}

		item, err = txn.Get(userKey(userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return unmarshal(val, &user)
		})
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser replaces a stored user. The email index is rewritten when the
// address changed.
func (s *Store) UpdateUser(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(user.ID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}

		var prev domain.User
		if err := item.Value(func(val []byte) error {
			return unmarshal(val, &prev)
		}); err != nil {
			return err
		}

		if normalizeEmail(prev.Email) != normalizeEmail(user.Email) {
			if err := txn.Delete(userEmailKey(normalizeEmail(prev.Email))); err != nil {
				return err
			}
			if err := txn.Set(userEmailKey(normalizeEmail(user.Email)), []byte(user.ID)); err != nil {
				return err
			}
		}

		data, err := marshal(user)
		if err != nil {
			return err
		}
		return txn.Set(userKey(user.ID), data)
	})
}

// SetCurrentUser records which user is signed in on this device. Session
// hydration at startup reads this back.
func (s *Store) SetCurrentUser(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.set([]byte(currentUserKey), userID)
}

// CurrentUser returns the signed-in user, or ErrNoCurrentUser.
func (s *Store) CurrentUser(ctx context.Context) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var userID string
	err := s.get([]byte(currentUserKey), &userID)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNoCurrentUser
	}
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, userID)
}

// ClearCurrentUser removes the signed-in marker. User data stays in place so
// signing back in restores it.
func (s *Store) ClearCurrentUser(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.delete([]byte(currentUserKey))
}
