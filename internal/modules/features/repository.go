package features

import (
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/pranavkh/fundsage/internal/database"
	"github.com/pranavkh/fundsage/internal/domain"
)

// Store holds the feature table snapshot currently served. Swapped
// wholesale after a successful build; readers never see a
// partially-built table.
type Store struct {
	current atomic.Pointer[domain.FeatureTable]
}

// NewStore creates an empty snapshot store.
func NewStore() *Store {
	return &Store{}
}

// Current returns the active snapshot, nil before the first build.
func (s *Store) Current() *domain.FeatureTable {
	return s.current.Load()
}

// Swap publishes a new snapshot.
func (s *Store) Swap(t *domain.FeatureTable) {
	s.current.Store(t)
}

// Repository persists feature tables in the features database.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a feature repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("component", "feature_repository").Logger(),
	}
}

const insertColumns = `build_id, scheme_id, scheme_name, fund_house, date, nav,
	daily_return, monthly_return, quarterly_return, yearly_return,
	monthly_std, quarterly_std, yearly_std, cagr_1y, cagr_2y,
	sharpe_ratio, downside_std, sortino_ratio, max_drawdown,
	rolling_vol_21, rolling_vol_62, rolling_vol_252,
	daily_return_w, monthly_return_w, quarterly_return_w, yearly_return_w,
	monthly_std_w, quarterly_std_w, yearly_std_w, cagr_1y_w, cagr_2y_w,
	max_drawdown_w, rolling_vol_21_w, rolling_vol_62_w, rolling_vol_252_w,
	sharpe_log, sortino_log,
	asset_class, market_cap, balanced_asset_class, balanced_market_cap, risk_level`

// SaveTable writes a full feature table under its build id and marks
// it current, in one transaction.
func (r *Repository) SaveTable(t *domain.FeatureTable) error {
	placeholders := "?" // 42 columns
	for i := 1; i < 42; i++ {
		placeholders += ", ?"
	}
	insertSQL := fmt.Sprintf("INSERT INTO feature_table (%s) VALUES (%s)", insertColumns, placeholders)

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(insertSQL)
		if err != nil {
			return fmt.Errorf("failed to prepare feature insert: %w", err)
		}
		defer stmt.Close()

		for i := range t.Records {
			rec := &t.Records[i]
			_, err := stmt.Exec(
				t.BuildID, rec.SchemeID, rec.SchemeName, rec.FundHouse,
				rec.Date.Format("2006-01-02"), rec.NAV,
				rec.DailyReturn, rec.MonthlyReturn, rec.QuarterlyReturn, rec.YearlyReturn,
				rec.MonthlySTD, rec.QuarterlySTD, rec.YearlySTD,
				nullable(rec.CAGR1Y), nullable(rec.CAGR2Y),
				rec.SharpeRatio, rec.DownsideSTD, rec.SortinoRatio, rec.MaxDrawdown,
				rec.RollingVol21, rec.RollingVol62, rec.RollingVol252,
				rec.DailyReturnW, rec.MonthlyReturnW, rec.QuarterlyReturnW, rec.YearlyReturnW,
				rec.MonthlySTDW, rec.QuarterlySTDW, rec.YearlySTDW,
				nullable(rec.CAGR1YW), nullable(rec.CAGR2YW),
				rec.MaxDrawdownW, rec.RollingVol21W, rec.RollingVol62W, rec.RollingVol252W,
				rec.SharpeLog, rec.SortinoLog,
				rec.AssetClass, rec.MarketCap, rec.BalancedAssetClass, rec.BalancedMarketCap,
				string(rec.RiskLevel),
			)
			if err != nil {
				return fmt.Errorf("failed to insert feature row for scheme %d: %w", rec.SchemeID, err)
			}
		}

		if _, err := tx.Exec(
			"INSERT INTO current_build (id, build_id) VALUES (1, ?) ON CONFLICT(id) DO UPDATE SET build_id = excluded.build_id",
			t.BuildID,
		); err != nil {
			return fmt.Errorf("failed to mark current build: %w", err)
		}

		// Older builds are diagnostics only, keep the store lean.
		if _, err := tx.Exec("DELETE FROM feature_table WHERE build_id != ?", t.BuildID); err != nil {
			return fmt.Errorf("failed to prune old builds: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Info().Str("build_id", t.BuildID).Int("schemes", t.Len()).Msg("feature table persisted")
	return nil
}

// LoadCurrent reads the feature table of the current build, so a
// restarted process can serve without rebuilding.
func (r *Repository) LoadCurrent() (*domain.FeatureTable, error) {
	var buildID string
	err := r.db.QueryRow("SELECT build_id FROM current_build WHERE id = 1").Scan(&buildID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read current build: %w", err)
	}

	rows, err := r.db.Query(fmt.Sprintf(
		"SELECT %s FROM feature_table WHERE build_id = ? ORDER BY scheme_id", insertColumns), buildID)
	if err != nil {
		return nil, fmt.Errorf("failed to query feature table: %w", err)
	}
	defer rows.Close()

	var records []domain.SchemeFeatureRecord
	var asOf time.Time
	for rows.Next() {
		var rec domain.SchemeFeatureRecord
		var rowBuildID, dateStr, riskLevel string
		var cagr1y, cagr2y, cagr1yw, cagr2yw sql.NullFloat64
		err := rows.Scan(
			&rowBuildID, &rec.SchemeID, &rec.SchemeName, &rec.FundHouse, &dateStr, &rec.NAV,
			&rec.DailyReturn, &rec.MonthlyReturn, &rec.QuarterlyReturn, &rec.YearlyReturn,
			&rec.MonthlySTD, &rec.QuarterlySTD, &rec.YearlySTD, &cagr1y, &cagr2y,
			&rec.SharpeRatio, &rec.DownsideSTD, &rec.SortinoRatio, &rec.MaxDrawdown,
			&rec.RollingVol21, &rec.RollingVol62, &rec.RollingVol252,
			&rec.DailyReturnW, &rec.MonthlyReturnW, &rec.QuarterlyReturnW, &rec.YearlyReturnW,
			&rec.MonthlySTDW, &rec.QuarterlySTDW, &rec.YearlySTDW, &cagr1yw, &cagr2yw,
			&rec.MaxDrawdownW, &rec.RollingVol21W, &rec.RollingVol62W, &rec.RollingVol252W,
			&rec.SharpeLog, &rec.SortinoLog,
			&rec.AssetClass, &rec.MarketCap, &rec.BalancedAssetClass, &rec.BalancedMarketCap,
			&riskLevel,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feature row: %w", err)
		}
		rec.Date, err = time.Parse("2006-01-02", dateStr)
		if err != nil {
			return nil, fmt.Errorf("corrupt date %q in feature table: %w", dateStr, err)
		}
		rec.CAGR1Y = fromNullable(cagr1y)
		rec.CAGR2Y = fromNullable(cagr2y)
		rec.CAGR1YW = fromNullable(cagr1yw)
		rec.CAGR2YW = fromNullable(cagr2yw)
		rec.RiskLevel = domain.RiskLevel(riskLevel)
		if rec.Date.After(asOf) {
			asOf = rec.Date
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	return domain.NewFeatureTable(buildID, asOf, records), nil
}

// SaveReport stores a build report JSON document.
func (r *Repository) SaveReport(buildID string, reportJSON []byte) error {
	_, err := r.db.Exec(
		"INSERT OR REPLACE INTO build_reports (build_id, created_at, report) VALUES (?, ?, ?)",
		buildID, time.Now().UTC().Format(time.RFC3339), string(reportJSON))
	if err != nil {
		return fmt.Errorf("failed to save build report: %w", err)
	}
	return nil
}

// LatestReport returns the most recent build report JSON, nil when no
// build has run yet.
func (r *Repository) LatestReport() ([]byte, error) {
	var report string
	err := r.db.QueryRow(
		"SELECT report FROM build_reports ORDER BY created_at DESC LIMIT 1").Scan(&report)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read build report: %w", err)
	}
	return []byte(report), nil
}

func nullable(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func fromNullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
