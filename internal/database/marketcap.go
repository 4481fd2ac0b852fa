package database

import (
	"context"
	"database/sql"

	"itslive-telegram-bot/internal/types"

	"github.com/pkg/errors"
)

// GetMarketCap returns the last observed market cap of token. found is false when
// the token was never observed.
func (s *Store) GetMarketCap(ctx context.Context, token string) (types.TokenMarketCap, bool, error) {
	state := types.TokenMarketCap{TokenAddress: token}
	var lastUpdated string

	err := s.db.QueryRowContext(ctx,
		`SELECT market_cap_usd, last_updated FROM token_mc WHERE token_address = ?;`, token).
		Scan(&state.MarketCapUSD, &lastUpdated)
	if err == sql.ErrNoRows {
		return state, false, nil
	} else if err != nil {
		return state, false, errors.Wrapf(err, "failed to get market cap of %s", token)
	}

	state.LastUpdated = parseTimestamp(lastUpdated)
	return state, true, nil
}

// UpsertMarketCap stores value as the token's current market cap. The trailing
// UPDATE repeats the write so the call stays idempotent.
func (s *Store) UpsertMarketCap(ctx context.Context, token string, value float64) error {
	if _, err := s.db.ExecContext(ctx, `
	INSERT OR REPLACE INTO token_mc (token_address, market_cap_usd, last_updated)
	VALUES (?, ?, CURRENT_TIMESTAMP);`, token, value); err != nil {
		return errors.Wrap(err, "failed to insert market cap")
	}

	if _, err := s.db.ExecContext(ctx, `
	UPDATE token_mc SET market_cap_usd = ?, last_updated = CURRENT_TIMESTAMP
	WHERE token_address = ?;`, value, token); err != nil {
		return errors.Wrap(err, "failed to update market cap")
	}
	return nil
}
