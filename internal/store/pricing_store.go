package store

import (
	"context"
	"time"
)

type PricingStore struct {
	db DB
}

type Package struct {
	ID             string    `db:"id"`
	Name           string    `db:"name"`
	CIDUnits       int64     `db:"cid_units"`
	PriceMinor     int64     `db:"price_minor"`
	CatalogVersion int64     `db:"catalog_version"`
	CreatedAt      time.Time `db:"created_at"`
}

type PackageInput struct {
	ID         string
	Name       string
	CIDUnits   int64
	PriceMinor int64
}

func NewPricingStore(db DB) *PricingStore {
	return &PricingStore{db: db}
}

// LoadCurrent returns the catalog version and its packages. Only rows
// belonging to the current version are visible, so a half-written
// replacement can never be observed.
func (s *PricingStore) LoadCurrent(ctx context.Context) (int64, []Package, error) {
	var version int64
	if err := s.db.GetContext(ctx, &version, `
		SELECT current_version FROM pricing_catalog_state WHERE id = 1
	`); err != nil {
		return 0, nil, err
	}
	var rows []Package
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, name, cid_units, price_minor, catalog_version, created_at
		FROM packages
		WHERE catalog_version = $1
		ORDER BY price_minor
	`, version)
	if err != nil {
		return 0, nil, err
	}
	return version, rows, nil
}

// ReplaceAll writes a whole new catalog version and flips the current
// pointer in the same transaction. Entries are replaced wholesale, never
// partially.
func (s *PricingStore) ReplaceAll(ctx context.Context, tx Tx, packages []PackageInput) (int64, error) {
	var version int64
	if err := tx.GetContext(ctx, &version, `
		SELECT current_version FROM pricing_catalog_state WHERE id = 1 FOR UPDATE
	`); err != nil {
		return 0, err
	}
	next := version + 1
	for _, p := range packages {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO packages (id, name, cid_units, price_minor, catalog_version)
			VALUES ($1, $2, $3, $4, $5)
		`, p.ID, p.Name, p.CIDUnits, p.PriceMinor, next); err != nil {
			return 0, err
		}
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE pricing_catalog_state SET current_version = $1, updated_at = NOW() WHERE id = 1
	`, next); err != nil {
		return 0, err
	}
	return next, nil
}
