package ingest

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pranavkh/fundsage/internal/database"
	"github.com/pranavkh/fundsage/internal/domain"
)

// NavRepository persists cleaned NAV observations in the history
// database.
type NavRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewNavRepository creates a NAV history repository.
func NewNavRepository(db *sql.DB, log zerolog.Logger) *NavRepository {
	return &NavRepository{
		db:  db,
		log: log.With().Str("component", "nav_repository").Logger(),
	}
}

// ReplaceAll replaces the entire history with the given observations
// in one transaction. The feed is a full snapshot, not a delta.
func (r *NavRepository) ReplaceAll(obs []domain.NavObservation) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM nav_history"); err != nil {
			return fmt.Errorf("failed to clear nav history: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM schemes"); err != nil {
			return fmt.Errorf("failed to clear schemes: %w", err)
		}

		schemeStmt, err := tx.Prepare(
			"INSERT OR REPLACE INTO schemes (scheme_id, scheme_name, fund_house) VALUES (?, ?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare scheme insert: %w", err)
		}
		defer schemeStmt.Close()

		navStmt, err := tx.Prepare(
			"INSERT INTO nav_history (scheme_id, date, nav) VALUES (?, ?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare nav insert: %w", err)
		}
		defer navStmt.Close()

		seen := make(map[int64]bool)
		for _, o := range obs {
			if !seen[o.SchemeID] {
				if _, err := schemeStmt.Exec(o.SchemeID, o.SchemeName, o.FundHouse); err != nil {
					return fmt.Errorf("failed to insert scheme %d: %w", o.SchemeID, err)
				}
				seen[o.SchemeID] = true
			}
			if _, err := navStmt.Exec(o.SchemeID, o.Date.Format("2006-01-02"), o.NAV); err != nil {
				return fmt.Errorf("failed to insert nav for scheme %d: %w", o.SchemeID, err)
			}
		}
		return nil
	})
}

// LoadAll returns the full history ordered by (scheme, date).
func (r *NavRepository) LoadAll() ([]domain.NavObservation, error) {
	rows, err := r.db.Query(`
		SELECT h.scheme_id, h.date, h.nav, s.scheme_name, s.fund_house
		FROM nav_history h
		JOIN schemes s ON s.scheme_id = h.scheme_id
		ORDER BY h.scheme_id, h.date`)
	if err != nil {
		return nil, fmt.Errorf("failed to query nav history: %w", err)
	}
	defer rows.Close()

	var obs []domain.NavObservation
	for rows.Next() {
		var o domain.NavObservation
		var dateStr string
		if err := rows.Scan(&o.SchemeID, &dateStr, &o.NAV, &o.SchemeName, &o.FundHouse); err != nil {
			return nil, fmt.Errorf("failed to scan nav row: %w", err)
		}
		o.Date, err = time.Parse("2006-01-02", dateStr)
		if err != nil {
			return nil, fmt.Errorf("corrupt date %q for scheme %d: %w", dateStr, o.SchemeID, err)
		}
		obs = append(obs, o)
	}
	return obs, rows.Err()
}

// CountSchemes returns the number of distinct schemes in the history.
func (r *NavRepository) CountSchemes() (int, error) {
	var n int
	err := r.db.QueryRow("SELECT COUNT(*) FROM schemes").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count schemes: %w", err)
	}
	return n, nil
}
