package model

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// FXRate represents a row in the fx_rates table.
// It keeps the last rate fetched live for each currency pair.
type FXRate struct {
	Base      string          `json:"base"`
	Quote     string          `json:"quote"`
	Rate      decimal.Decimal `json:"rate"`
	Source    string          `json:"source"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// GetFXRate returns the stored rate for base->quote. The bool is false when none is stored.
func GetFXRate(ctx context.Context, db *sql.DB, base, quote string) (FXRate, bool, error) {
	query := `SELECT base_currency, quote_currency, rate, source, fetched_at FROM fx_rates WHERE base_currency = ? AND quote_currency = ?`

	var r FXRate
	err := db.QueryRowContext(ctx, query, base, quote).Scan(&r.Base, &r.Quote, &r.Rate, &r.Source, &r.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return FXRate{}, false, nil
	}
	if err != nil {
		return FXRate{}, false, err
	}
	return r, true, nil
}

// UpsertFXRate inserts a rate or replaces the stored one for the same pair.
func UpsertFXRate(ctx context.Context, db *sql.DB, r FXRate) error {
	query := `
		INSERT INTO fx_rates (base_currency, quote_currency, rate, source, fetched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(base_currency, quote_currency) DO UPDATE SET
			rate = excluded.rate,
			source = excluded.source,
			fetched_at = excluded.fetched_at`
	_, err := db.ExecContext(ctx, query, r.Base, r.Quote, r.Rate.String(), r.Source, r.FetchedAt.UTC())
	return err
}

// ListFXRates returns every stored rate ordered by pair.
func ListFXRates(ctx context.Context, db *sql.DB) ([]FXRate, error) {
	rows, err := db.QueryContext(ctx, `SELECT base_currency, quote_currency, rate, source, fetched_at FROM fx_rates ORDER BY base_currency, quote_currency`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rates []FXRate
	for rows.Next() {
		var r FXRate
		if err := rows.Scan(&r.Base, &r.Quote, &r.Rate, &r.Source, &r.FetchedAt); err != nil {
			return nil, err
		}
		rates = append(rates, r)
	}
	return rates, rows.Err()
}
