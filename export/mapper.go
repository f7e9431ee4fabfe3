// Package export reshapes the five persisted tables into the externally
// defined 4-table graph-ingestion schema: a unified accounts node table
// plus trades, commissions and referrals under renamed columns. Pure
// rename/reshape, no new computation.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/quantfoundry/affiliate-fraud-pipeline/schema"
	"github.com/quantfoundry/affiliate-fraud-pipeline/store"
)

// Export file names under the export directory.
const (
	AccountsFile    = "accounts.csv"
	TradesFile      = "trades.csv"
	CommissionsFile = "commissions.csv"
	ReferralsFile   = "referrals.csv"
)

// Result lists the written export files.
type Result struct {
	Accounts    string
	Trades      string
	Commissions string
	Referrals   string
}

// Run reads the five transformed tables from transformedDir and writes the
// graph-schema variant into exportDir.
func Run(transformedDir, exportDir string) (Result, error) {
	var result Result

	partners, err := store.ReadPartners(transformedDir)
	if err != nil {
		return result, err
	}
	clients, err := store.ReadClients(transformedDir)
	if err != nil {
		return result, err
	}
	trades, err := store.ReadTrades(transformedDir)
	if err != nil {
		return result, err
	}
	commissions, err := store.ReadCommissions(transformedDir)
	if err != nil {
		return result, err
	}
	referrals, err := store.ReadReferrals(transformedDir)
	if err != nil {
		return result, err
	}

	if result.Accounts, err = writeAccounts(exportDir, partners, clients); err != nil {
		return result, err
	}
	if result.Trades, err = writeTrades(exportDir, trades); err != nil {
		return result, err
	}
	if result.Commissions, err = writeCommissions(exportDir, commissions); err != nil {
		return result, err
	}
	if result.Referrals, err = writeReferrals(exportDir, referrals); err != nil {
		return result, err
	}
	return result, nil
}

func writeFile(dir, name string, header []string, rows [][]string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("failed to write %s header: %w", path, err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("failed to write %s row: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return path, nil
}

// writeAccounts unions partners and clients into a single node table with a
// role tag. Client rows map is_in_fraud_ring onto the shared is_fraudulent
// column.
func writeAccounts(dir string, partners []schema.Partner, clients []schema.Client) (string, error) {
	header := []string{"account_id", "role", "account_number", "bank_name", "entity_name", "is_fraudulent"}

	rows := make([][]string, 0, len(partners)+len(clients))
	for _, p := range partners {
		rows = append(rows, []string{
			p.PartnerID, "PARTNER", p.AccountNumber, p.BankName, p.EntityName,
			strconv.FormatBool(p.IsFraudulent),
		})
	}
	for _, c := range clients {
		rows = append(rows, []string{
			c.ClientID, "CLIENT", c.AccountNumber, c.BankName, c.EntityName,
			strconv.FormatBool(c.IsInFraudRing),
		})
	}
	return writeFile(dir, AccountsFile, header, rows)
}

// writeTrades emits trades as temporal events on client nodes.
func writeTrades(dir string, trades []schema.Trade) (string, error) {
	header := []string{
		"trade_id", "timestamp", "client_account_id", "instrument",
		"direction", "trade_volume", "is_opposite_trade", "is_bonus_abuse",
	}

	rows := make([][]string, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, []string{
			t.TradeID, t.Timestamp.Format(schema.TableTimestampLayout),
			t.ClientID, t.Instrument, t.Direction,
			strconv.FormatFloat(t.TradeVolume, 'f', -1, 64),
			strconv.FormatBool(t.IsOppositeTrade), strconv.FormatBool(t.IsBonusAbuse),
		})
	}
	return writeFile(dir, TradesFile, header, rows)
}

// writeCommissions emits commissions as temporal partner<->client edges.
func writeCommissions(dir string, commissions []schema.Commission) (string, error) {
	header := []string{
		"commission_id", "timestamp", "partner_account_id",
		"client_account_id", "commission_amount", "currency",
	}

	rows := make([][]string, 0, len(commissions))
	for _, c := range commissions {
		rows = append(rows, []string{
			c.CommissionID, c.Timestamp.Format(schema.TableTimestampLayout),
			c.PartnerID, c.ClientID,
			strconv.FormatFloat(c.CommissionAmount, 'f', -1, 64), c.Currency,
		})
	}
	return writeFile(dir, CommissionsFile, header, rows)
}

// writeReferrals emits referrals as static partner<->client edges.
func writeReferrals(dir string, referrals []schema.Referral) (string, error) {
	header := []string{"partner_account_id", "client_account_id", "referral_date"}

	rows := make([][]string, 0, len(referrals))
	for _, r := range referrals {
		rows = append(rows, []string{
			r.PartnerID, r.ClientID,
			r.FirstTradeDate.Format(schema.TableTimestampLayout),
		})
	}
	return writeFile(dir, ReferralsFile, header, rows)
}
