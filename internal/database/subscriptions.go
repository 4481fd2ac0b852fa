package database

import (
	"context"

	"itslive-telegram-bot/internal/types"

	"github.com/pkg/errors"
)

// InsertSubscription subscribes chatID to token. It reports false when the pair
// already existed.
func (s *Store) InsertSubscription(ctx context.Context, chatID, token string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO subscriptions (chat_id, token_address) VALUES (?, ?);`,
		chatID, token)
	if err != nil {
		return false, errors.Wrap(err, "failed to insert subscription")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read inserted subscription count")
	}
	return n > 0, nil
}

// DeleteSubscription removes the pair and reports whether anything was removed.
func (s *Store) DeleteSubscription(ctx context.Context, chatID, token string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE chat_id = ? AND token_address = ?;`,
		chatID, token)
	if err != nil {
		return false, errors.Wrap(err, "failed to delete subscription")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read deleted subscription count")
	}
	return n > 0, nil
}

// FindSubscriberChats returns the distinct chats subscribed to token.
func (s *Store) FindSubscriberChats(ctx context.Context, token string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT chat_id FROM subscriptions WHERE token_address = ?;`, token)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query subscribers of %s", token)
	}
	defer rows.Close()

	var chats []string
	for rows.Next() {
		var chatID string
		if err := rows.Scan(&chatID); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		chats = append(chats, chatID)
	}
	return chats, errors.Wrap(rows.Err(), "failed to iterate subscribers")
}

// FindTokensByChat returns the chat's subscriptions, newest first.
func (s *Store) FindTokensByChat(ctx context.Context, chatID string) ([]types.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, token_address, created_at FROM subscriptions WHERE chat_id = ? ORDER BY created_at DESC, id DESC;`,
		chatID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query subscriptions for chat %s", chatID)
	}
	defer rows.Close()

	var subs []types.Subscription
	for rows.Next() {
		var (
			sub       types.Subscription
			createdAt string
		)
		if err := rows.Scan(&sub.ChatID, &sub.TokenAddress, &createdAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		sub.CreatedAt = parseTimestamp(createdAt)
		subs = append(subs, sub)
	}
	return subs, errors.Wrap(rows.Err(), "failed to iterate subscriptions")
}
