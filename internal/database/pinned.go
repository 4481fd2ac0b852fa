package database

import (
	"context"

	"itslive-telegram-bot/internal/types"

	"github.com/pkg/errors"
)

// UpsertPinnedMessage records the pinned live announcement for (chat, token),
// replacing any previous message id.
func (s *Store) UpsertPinnedMessage(ctx context.Context, chatID, token string, messageID int) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO pinned_messages (chat_id, token_address, message_id)
	VALUES (?, ?, ?)
	ON CONFLICT(chat_id, token_address)
	DO UPDATE SET message_id = excluded.message_id;`,
		chatID, token, messageID)
	return errors.Wrap(err, "failed to upsert pinned message")
}

func (s *Store) FindPinnedMessages(ctx context.Context, token string) ([]types.PinnedMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, message_id FROM pinned_messages WHERE token_address = ?;`, token)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query pinned messages of %s", token)
	}
	defer rows.Close()

	var pinned []types.PinnedMessage
	for rows.Next() {
		p := types.PinnedMessage{TokenAddress: token}
		if err := rows.Scan(&p.ChatID, &p.MessageID); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		pinned = append(pinned, p)
	}
	return pinned, errors.Wrap(rows.Err(), "failed to iterate pinned messages")
}

func (s *Store) DeletePinnedMessage(ctx context.Context, chatID, token string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM pinned_messages WHERE chat_id = ? AND token_address = ?;`, chatID, token)
	return errors.Wrap(err, "failed to delete pinned message")
}
