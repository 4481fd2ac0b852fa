package database

import (
	"context"
	"database/sql"

	"itslive-telegram-bot/internal/types"

	"github.com/pkg/errors"
)

const alertColumns = `chat_id, token_address, message_id, type, threshold, amount, direction, created_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// InsertAlert creates the alert for (chat, token). A second alert for the same pair
// is ignored and reported as inserted == false.
func (s *Store) InsertAlert(ctx context.Context, a types.MarketCapAlert) (bool, error) {
	return insertAlert(ctx, s.db, a)
}

func insertAlert(ctx context.Context, e execer, a types.MarketCapAlert) (bool, error) {
	res, err := e.ExecContext(ctx, `
	INSERT OR IGNORE INTO marketcap_alerts (chat_id, token_address, message_id, type, threshold, amount, direction)
	VALUES (?, ?, ?, ?, ?, ?, ?);`,
		a.ChatID, a.TokenAddress, a.MessageID, string(a.Kind), a.ThresholdPercent, a.AmountUSD, string(a.Direction))
	if err != nil {
		return false, errors.Wrap(err, "failed to insert alert")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read inserted alert count")
	}
	return n > 0, nil
}

// DeleteAlert removes the chat's alert for token and reports whether one existed.
func (s *Store) DeleteAlert(ctx context.Context, chatID, token string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM marketcap_alerts WHERE chat_id = ? AND token_address = ?;`, chatID, token)
	if err != nil {
		return false, errors.Wrap(err, "failed to delete alert")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read deleted alert count")
	}
	return n > 0, nil
}

// ReplaceAlert swaps the chat's alert for token with a. Alerts are never updated
// in place: the old row is deleted and a new one inserted in one transaction.
func (s *Store) ReplaceAlert(ctx context.Context, a types.MarketCapAlert) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, "failed to begin alert replace")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM marketcap_alerts WHERE chat_id = ? AND token_address = ?;`,
		a.ChatID, a.TokenAddress); err != nil {
		return false, errors.Wrap(err, "failed to delete replaced alert")
	}

	inserted, err := insertAlert(ctx, tx, a)
	if err != nil {
		return false, err
	}
	return inserted, errors.Wrap(tx.Commit(), "failed to commit alert replace")
}

// FindAlertsForToken returns every chat's alert on token.
func (s *Store) FindAlertsForToken(ctx context.Context, token string) ([]types.MarketCapAlert, error) {
	return s.queryAlerts(ctx,
		`SELECT `+alertColumns+` FROM marketcap_alerts WHERE token_address = ? ORDER BY id;`, token)
}

func (s *Store) FindAlertsByChat(ctx context.Context, chatID string) ([]types.MarketCapAlert, error) {
	return s.queryAlerts(ctx,
		`SELECT `+alertColumns+` FROM marketcap_alerts WHERE chat_id = ? ORDER BY id;`, chatID)
}

// FindAlert returns the chat's alert on token, found is false when there is none.
func (s *Store) FindAlert(ctx context.Context, chatID, token string) (types.MarketCapAlert, bool, error) {
	alerts, err := s.queryAlerts(ctx,
		`SELECT `+alertColumns+` FROM marketcap_alerts WHERE chat_id = ? AND token_address = ?;`, chatID, token)
	if err != nil || len(alerts) == 0 {
		return types.MarketCapAlert{}, false, err
	}
	return alerts[0], true, nil
}

func (s *Store) queryAlerts(ctx context.Context, query string, args ...any) ([]types.MarketCapAlert, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query alerts")
	}
	defer rows.Close()

	var alerts []types.MarketCapAlert
	for rows.Next() {
		var (
			a                    types.MarketCapAlert
			kind, dir, createdAt string
		)
		if err := rows.Scan(&a.ChatID, &a.TokenAddress, &a.MessageID, &kind,
			&a.ThresholdPercent, &a.AmountUSD, &dir, &createdAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		a.Kind = types.AlertKind(kind)
		a.Direction = types.Direction(dir)
		a.CreatedAt = parseTimestamp(createdAt)
		alerts = append(alerts, a)
	}
	return alerts, errors.Wrap(rows.Err(), "failed to iterate alerts")
}
