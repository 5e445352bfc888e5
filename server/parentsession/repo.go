// Package parentsession resolves the parent workspace bearer token to the
// signed-in user. The token is opaque to the app lock subsystem.
package parentsession

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("parent session not found")

type Session struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type Repo interface {
	Upsert(token string, session Session) error
	Get(token string) (Session, error)
	Delete(token string) error
}
