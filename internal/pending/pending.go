// Package pending keeps the state of unfinished alert wizards. Entries expire
// after a TTL so abandoned wizards do not accumulate.
package pending

import (
	"context"
	"encoding/json"
	"time"

	"itslive-telegram-bot/internal/types"

	"github.com/pkg/errors"
	"github.com/tidwall/buntdb"
)

const keyPrefix = "pending:"

// Alert is an alert being configured in a private chat.
type Alert struct {
	Token     string          `json:"token"`
	Direction types.Direction `json:"direction"`
	Threshold float64         `json:"threshold"`
	MessageID int             `json:"message_id"`
}

// Defaults returns the wizard's starting configuration for token.
func Defaults(token string) Alert {
	return Alert{Token: token, Direction: types.DirectionUp, Threshold: 10}
}

type Store struct {
	db  *buntdb.DB
	ttl time.Duration
}

// Open opens the store at path, ":memory:" keeps it in memory only.
func Open(path string, ttl time.Duration) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open pending store")
	}
	if err := db.SetConfig(buntdb.Config{
		SyncPolicy:           buntdb.EverySecond,
		AutoShrinkPercentage: 100,
		AutoShrinkMinSize:    32 * 1024 * 1024,
	}); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "configure pending store")
	}
	return &Store{db: db, ttl: ttl}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func key(chatID string) string {
	return keyPrefix + chatID
}

// Put stores a for chatID and restarts its TTL.
func (s *Store) Put(_ context.Context, chatID string, a Alert) error {
	content, err := json.Marshal(a)
	if err != nil {
		return errors.Wrap(err, "marshal pending alert")
	}

	var opts *buntdb.SetOptions
	if s.ttl > 0 {
		opts = &buntdb.SetOptions{Expires: true, TTL: s.ttl}
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key(chatID), string(content), opts)
		return errors.Wrap(err, "store pending alert")
	})
}

// Get returns the pending alert of chatID. ok is false when there is none or it
// expired.
func (s *Store) Get(_ context.Context, chatID string) (a Alert, ok bool, err error) {
	var raw string
	err = s.db.View(func(tx *buntdb.Tx) error {
		var err error
		raw, err = tx.Get(key(chatID))
		return err
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return Alert{}, false, nil
	}
	if err != nil {
		return Alert{}, false, errors.Wrap(err, "read pending alert")
	}

	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return Alert{}, false, errors.Wrap(err, "decode pending alert")
	}
	return a, true, nil
}

// Delete forgets the pending alert of chatID. Deleting a missing entry is not an
// error.
func (s *Store) Delete(_ context.Context, chatID string) error {
	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(key(chatID))
		return err
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil
	}
	return errors.Wrap(err, "delete pending alert")
}

// Len counts the live entries.
func (s *Store) Len() (int, error) {
	n := 0
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(keyPrefix+"*", func(_, _ string) bool {
			n++
			return true
		})
	})
	return n, errors.Wrap(err, "count pending alerts")
}
