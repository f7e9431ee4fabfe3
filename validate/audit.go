// Package validate runs a read-only integrity audit over the finished
// output tables. Violations are reported as human-readable findings, never
// raised as errors, and do not block the pipeline; inspecting them is the
// operator's job. The audit runs as SQL over the persisted CSV files
// through an in-memory DuckDB connection.
package validate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/quantfoundry/affiliate-fraud-pipeline/store"
)

// DefaultTolerance is the commission-amount comparison tolerance.
const DefaultTolerance = 0.01

// Auditor audits the five transformed tables.
type Auditor struct {
	TransformedDir string
	CommissionRate float64
	Tolerance      float64
}

// Run executes every integrity check and returns the list of findings; an
// empty list means the output passed. Missing tables are an error, not a
// finding: the audit requires a completed pipeline run.
func (a *Auditor) Run(ctx context.Context) ([]string, error) {
	tables := map[string]string{
		"partners":    filepath.Join(a.TransformedDir, store.PartnersFile),
		"clients":     filepath.Join(a.TransformedDir, store.ClientsFile),
		"trades":      filepath.Join(a.TransformedDir, store.TradesFile),
		"commissions": filepath.Join(a.TransformedDir, store.CommissionsFile),
		"referrals":   filepath.Join(a.TransformedDir, store.ReferralsFile),
	}
	for name, path := range tables {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("required %s table %s is missing: %w", name, path, err)
		}
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}
	defer db.Close()

	// Register each CSV as a view so the checks read like plain SQL.
	for name, path := range tables {
		viewSQL := fmt.Sprintf(
			"CREATE VIEW %s AS SELECT * FROM read_csv_auto('%s', header=true, all_varchar=false)",
			name, sqlQuote(path),
		)
		if _, err := db.ExecContext(ctx, viewSQL); err != nil {
			return nil, fmt.Errorf("failed to register %s view: %w", name, err)
		}
	}

	var findings []string

	orphans, err := a.queryStrings(ctx, db, `
		SELECT DISTINCT c.partner_id
		FROM commissions c
		LEFT JOIN partners p ON c.partner_id = p.partner_id
		WHERE p.partner_id IS NULL
		ORDER BY c.partner_id`)
	if err != nil {
		return nil, err
	}
	if len(orphans) > 0 {
		findings = append(findings, fmt.Sprintf(
			"commission partner_ids not in partners: %s", strings.Join(orphans, ", ")))
	}

	orphans, err = a.queryStrings(ctx, db, `
		SELECT DISTINCT c.trade_id
		FROM commissions c
		LEFT JOIN trades t ON c.trade_id = t.trade_id
		WHERE t.trade_id IS NULL
		ORDER BY c.trade_id`)
	if err != nil {
		return nil, err
	}
	if len(orphans) > 0 {
		findings = append(findings, fmt.Sprintf(
			"commission trade_ids not in trades: %s", strings.Join(orphans, ", ")))
	}

	orphans, err = a.queryStrings(ctx, db, `
		SELECT DISTINCT t.partner_id
		FROM trades t
		LEFT JOIN partners p ON t.partner_id = p.partner_id
		WHERE p.partner_id IS NULL
		ORDER BY t.partner_id`)
	if err != nil {
		return nil, err
	}
	if len(orphans) > 0 {
		findings = append(findings, fmt.Sprintf(
			"trade partner_ids not in partners: %s", strings.Join(orphans, ", ")))
	}

	// Injected trades reference existing client ids; empty ids carry no
	// relationship and are not orphans.
	count, err := a.queryInt(ctx, db, `
		SELECT COUNT(DISTINCT t.client_id)
		FROM trades t
		LEFT JOIN clients c ON t.client_id = c.client_id
		WHERE t.client_id IS NOT NULL
		  AND CAST(t.client_id AS VARCHAR) <> ''
		  AND c.client_id IS NULL`)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		findings = append(findings, fmt.Sprintf(
			"trade client_ids not in clients: %d orphans", count))
	}

	count, err = a.queryInt(ctx, db, `
		SELECT COUNT(*) FROM partners
		WHERE lower(CAST(is_fraudulent AS VARCHAR)) = 'true'`)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		findings = append(findings, "no fraudulent partners found")
	}

	tolerance := a.Tolerance
	if tolerance == 0 {
		tolerance = DefaultTolerance
	}
	count, err = a.queryInt(ctx, db, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM commissions c
		JOIN trades t ON c.trade_id = t.trade_id
		WHERE ABS(c.commission_amount - t.trade_volume * %g) > %g`,
		a.CommissionRate, tolerance))
	if err != nil {
		return nil, err
	}
	if count > 0 {
		findings = append(findings, fmt.Sprintf(
			"commission amount mismatch for %d rows", count))
	}

	primaryKeys := []struct{ table, column string }{
		{"partners", "partner_id"},
		{"clients", "client_id"},
		{"trades", "trade_id"},
		{"commissions", "commission_id"},
	}
	for _, pk := range primaryKeys {
		count, err = a.queryInt(ctx, db, fmt.Sprintf(`
			SELECT COUNT(*) FROM %s
			WHERE %s IS NULL OR CAST(%s AS VARCHAR) = ''`,
			pk.table, pk.column, pk.column))
		if err != nil {
			return nil, err
		}
		if count > 0 {
			findings = append(findings, fmt.Sprintf(
				"%s.%s has %d null values", pk.table, pk.column, count))
		}
	}

	return findings, nil
}

func (a *Auditor) queryStrings(ctx context.Context, db *sql.DB, query string) ([]string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("audit query failed: %w", err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("audit scan failed: %w", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func (a *Auditor) queryInt(ctx context.Context, db *sql.DB, query string) (int64, error) {
	var v int64
	if err := db.QueryRowContext(ctx, query).Scan(&v); err != nil {
		return 0, fmt.Errorf("audit query failed: %w", err)
	}
	return v, nil
}

func sqlQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
