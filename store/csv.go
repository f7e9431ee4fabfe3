// Package store persists the derived tables as flat delimited files, one
// entity per file. The files are the only storage contract between pipeline
// stages and with the downstream consumers of the dataset.
package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/quantfoundry/affiliate-fraud-pipeline/schema"
)

// Table file names under the transformed data directory.
const (
	PartnersFile    = "partners.csv"
	ClientsFile     = "clients.csv"
	TradesFile      = "trades.csv"
	CommissionsFile = "commissions.csv"
	ReferralsFile   = "referrals.csv"
	WithdrawalsFile = "withdrawals.csv"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatBool(v bool) string {
	return strconv.FormatBool(v)
}

func formatTime(t time.Time) string {
	return t.Format(schema.TableTimestampLayout)
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseBool(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(schema.TableTimestampLayout, s)
}

func writeCSV(dir, name string, header []string, rows [][]string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir %s: %w", dir, err)
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

func readCSV(dir, name string, columns int) ([][]string, error) {
	path := filepath.Join(dir, name)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("required table %s is missing: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = columns
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("table %s has no header", path)
	}
	return records[1:], nil
}

var partnersHeader = []string{
	"partner_id", "account_number", "bank_id", "bank_name", "entity_name",
	"num_referred_clients", "total_trade_volume", "total_commissions_paid",
	"avg_commission", "is_fraudulent", "fraud_ring_ids", "primary_pattern_type",
}

// WritePartners persists the partners table.
func WritePartners(dir string, partners []schema.Partner) (string, error) {
	rows := make([][]string, 0, len(partners))
	for _, p := range partners {
		rows = append(rows, []string{
			p.PartnerID, p.AccountNumber, p.BankID, p.BankName, p.EntityName,
			strconv.Itoa(p.NumReferredClients), formatFloat(p.TotalTradeVolume),
			formatFloat(p.TotalCommissionsPaid), formatFloat(p.AvgCommission),
			formatBool(p.IsFraudulent), p.FraudRingIDs, p.PrimaryPatternType,
		})
	}
	return writeCSV(dir, PartnersFile, partnersHeader, rows)
}

// ReadPartners loads the partners table.
func ReadPartners(dir string) ([]schema.Partner, error) {
	records, err := readCSV(dir, PartnersFile, len(partnersHeader))
	if err != nil {
		return nil, err
	}
	partners := make([]schema.Partner, 0, len(records))
	for _, rec := range records {
		referred, err := strconv.Atoi(rec[5])
		if err != nil {
			return nil, fmt.Errorf("bad num_referred_clients %q: %w", rec[5], err)
		}
		volume, err := parseFloat(rec[6])
		if err != nil {
			return nil, fmt.Errorf("bad total_trade_volume %q: %w", rec[6], err)
		}
		commissions, err := parseFloat(rec[7])
		if err != nil {
			return nil, fmt.Errorf("bad total_commissions_paid %q: %w", rec[7], err)
		}
		avg, err := parseFloat(rec[8])
		if err != nil {
			return nil, fmt.Errorf("bad avg_commission %q: %w", rec[8], err)
		}
		fraud, err := parseBool(rec[9])
		if err != nil {
			return nil, fmt.Errorf("bad is_fraudulent %q: %w", rec[9], err)
		}
		partners = append(partners, schema.Partner{
			PartnerID:            rec[0],
			AccountNumber:        rec[1],
			BankID:               rec[2],
			BankName:             rec[3],
			EntityName:           rec[4],
			NumReferredClients:   referred,
			TotalTradeVolume:     volume,
			TotalCommissionsPaid: commissions,
			AvgCommission:        avg,
			IsFraudulent:         fraud,
			FraudRingIDs:         rec[10],
			PrimaryPatternType:   rec[11],
		})
	}
	return partners, nil
}

var clientsHeader = []string{
	"client_id", "account_number", "partner_id", "bank_id", "bank_name",
	"entity_name", "num_trades", "total_volume", "is_in_fraud_ring",
}

// WriteClients persists the clients table.
func WriteClients(dir string, clients []schema.Client) (string, error) {
	rows := make([][]string, 0, len(clients))
	for _, c := range clients {
		rows = append(rows, []string{
			c.ClientID, c.AccountNumber, c.PartnerID, c.BankID, c.BankName,
			c.EntityName, strconv.Itoa(c.NumTrades), formatFloat(c.TotalVolume),
			formatBool(c.IsInFraudRing),
		})
	}
	return writeCSV(dir, ClientsFile, clientsHeader, rows)
}

// ReadClients loads the clients table.
func ReadClients(dir string) ([]schema.Client, error) {
	records, err := readCSV(dir, ClientsFile, len(clientsHeader))
	if err != nil {
		return nil, err
	}
	clients := make([]schema.Client, 0, len(records))
	for _, rec := range records {
		trades, err := strconv.Atoi(rec[6])
		if err != nil {
			return nil, fmt.Errorf("bad num_trades %q: %w", rec[6], err)
		}
		volume, err := parseFloat(rec[7])
		if err != nil {
			return nil, fmt.Errorf("bad total_volume %q: %w", rec[7], err)
		}
		inRing, err := parseBool(rec[8])
		if err != nil {
			return nil, fmt.Errorf("bad is_in_fraud_ring %q: %w", rec[8], err)
		}
		clients = append(clients, schema.Client{
			ClientID:      rec[0],
			AccountNumber: rec[1],
			PartnerID:     rec[2],
			BankID:        rec[3],
			BankName:      rec[4],
			EntityName:    rec[5],
			NumTrades:     trades,
			TotalVolume:   volume,
			IsInFraudRing: inRing,
		})
	}
	return clients, nil
}

var tradesHeader = []string{
	"trade_id", "timestamp", "client_id", "partner_id", "instrument",
	"direction", "trade_volume", "currency", "is_fraudulent",
	"is_opposite_trade", "is_bonus_abuse",
}

// WriteTrades persists the trades table.
func WriteTrades(dir string, trades []schema.Trade) (string, error) {
	rows := make([][]string, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, []string{
			t.TradeID, formatTime(t.Timestamp), t.ClientID, t.PartnerID,
			t.Instrument, t.Direction, formatFloat(t.TradeVolume), t.Currency,
			formatBool(t.IsFraudulent), formatBool(t.IsOppositeTrade),
			formatBool(t.IsBonusAbuse),
		})
	}
	return writeCSV(dir, TradesFile, tradesHeader, rows)
}

// ReadTrades loads the trades table.
func ReadTrades(dir string) ([]schema.Trade, error) {
	records, err := readCSV(dir, TradesFile, len(tradesHeader))
	if err != nil {
		return nil, err
	}
	trades := make([]schema.Trade, 0, len(records))
	for _, rec := range records {
		timestamp, err := parseTime(rec[1])
		if err != nil {
			return nil, fmt.Errorf("bad trade timestamp %q: %w", rec[1], err)
		}
		volume, err := parseFloat(rec[6])
		if err != nil {
			return nil, fmt.Errorf("bad trade_volume %q: %w", rec[6], err)
		}
		fraud, err := parseBool(rec[8])
		if err != nil {
			return nil, fmt.Errorf("bad is_fraudulent %q: %w", rec[8], err)
		}
		opposite, err := parseBool(rec[9])
		if err != nil {
			return nil, fmt.Errorf("bad is_opposite_trade %q: %w", rec[9], err)
		}
		bonus, err := parseBool(rec[10])
		if err != nil {
			return nil, fmt.Errorf("bad is_bonus_abuse %q: %w", rec[10], err)
		}
		trades = append(trades, schema.Trade{
			TradeID:         rec[0],
			Timestamp:       timestamp,
			ClientID:        rec[2],
			PartnerID:       rec[3],
			Instrument:      rec[4],
			Direction:       rec[5],
			TradeVolume:     volume,
			Currency:        rec[7],
			IsFraudulent:    fraud,
			IsOppositeTrade: opposite,
			IsBonusAbuse:    bonus,
		})
	}
	return trades, nil
}

var commissionsHeader = []string{
	"commission_id", "timestamp", "client_id", "partner_id", "trade_id",
	"commission_amount", "currency", "is_fraudulent",
}

// WriteCommissions persists the commissions table.
func WriteCommissions(dir string, commissions []schema.Commission) (string, error) {
	rows := make([][]string, 0, len(commissions))
	for _, c := range commissions {
		rows = append(rows, []string{
			c.CommissionID, formatTime(c.Timestamp), c.ClientID, c.PartnerID,
			c.TradeID, formatFloat(c.CommissionAmount), c.Currency,
			formatBool(c.IsFraudulent),
		})
	}
	return writeCSV(dir, CommissionsFile, commissionsHeader, rows)
}

// ReadCommissions loads the commissions table.
func ReadCommissions(dir string) ([]schema.Commission, error) {
	records, err := readCSV(dir, CommissionsFile, len(commissionsHeader))
	if err != nil {
		return nil, err
	}
	commissions := make([]schema.Commission, 0, len(records))
	for _, rec := range records {
		timestamp, err := parseTime(rec[1])
		if err != nil {
			return nil, fmt.Errorf("bad commission timestamp %q: %w", rec[1], err)
		}
		amount, err := parseFloat(rec[5])
		if err != nil {
			return nil, fmt.Errorf("bad commission_amount %q: %w", rec[5], err)
		}
		fraud, err := parseBool(rec[7])
		if err != nil {
			return nil, fmt.Errorf("bad is_fraudulent %q: %w", rec[7], err)
		}
		commissions = append(commissions, schema.Commission{
			CommissionID:     rec[0],
			Timestamp:        timestamp,
			ClientID:         rec[2],
			PartnerID:        rec[3],
			TradeID:          rec[4],
			CommissionAmount: amount,
			Currency:         rec[6],
			IsFraudulent:     fraud,
		})
	}
	return commissions, nil
}

var referralsHeader = []string{
	"partner_id", "client_id", "first_trade_date", "last_trade_date",
	"num_trades", "total_volume", "total_commissions",
}

// WriteReferrals persists the referrals table.
func WriteReferrals(dir string, referrals []schema.Referral) (string, error) {
	rows := make([][]string, 0, len(referrals))
	for _, r := range referrals {
		rows = append(rows, []string{
			r.PartnerID, r.ClientID, formatTime(r.FirstTradeDate),
			formatTime(r.LastTradeDate), strconv.Itoa(r.NumTrades),
			formatFloat(r.TotalVolume), formatFloat(r.TotalCommissions),
		})
	}
	return writeCSV(dir, ReferralsFile, referralsHeader, rows)
}

// ReadReferrals loads the referrals table.
func ReadReferrals(dir string) ([]schema.Referral, error) {
	records, err := readCSV(dir, ReferralsFile, len(referralsHeader))
	if err != nil {
		return nil, err
	}
	referrals := make([]schema.Referral, 0, len(records))
	for _, rec := range records {
		first, err := parseTime(rec[2])
		if err != nil {
			return nil, fmt.Errorf("bad first_trade_date %q: %w", rec[2], err)
		}
		last, err := parseTime(rec[3])
		if err != nil {
			return nil, fmt.Errorf("bad last_trade_date %q: %w", rec[3], err)
		}
		trades, err := strconv.Atoi(rec[4])
		if err != nil {
			return nil, fmt.Errorf("bad num_trades %q: %w", rec[4], err)
		}
		volume, err := parseFloat(rec[5])
		if err != nil {
			return nil, fmt.Errorf("bad total_volume %q: %w", rec[5], err)
		}
		commissions, err := parseFloat(rec[6])
		if err != nil {
			return nil, fmt.Errorf("bad total_commissions %q: %w", rec[6], err)
		}
		referrals = append(referrals, schema.Referral{
			PartnerID:        rec[0],
			ClientID:         rec[1],
			FirstTradeDate:   first,
			LastTradeDate:    last,
			NumTrades:        trades,
			TotalVolume:      volume,
			TotalCommissions: commissions,
		})
	}
	return referrals, nil
}

var withdrawalsHeader = []string{
	"withdrawal_id", "timestamp", "client_id", "partner_id", "amount",
	"is_bonus_abuse",
}

// WriteWithdrawals persists the withdrawals table.
func WriteWithdrawals(dir string, withdrawals []schema.Withdrawal) (string, error) {
	rows := make([][]string, 0, len(withdrawals))
	for _, w := range withdrawals {
		rows = append(rows, []string{
			w.WithdrawalID, formatTime(w.Timestamp), w.ClientID, w.PartnerID,
			formatFloat(w.Amount), formatBool(w.IsBonusAbuse),
		})
	}
	return writeCSV(dir, WithdrawalsFile, withdrawalsHeader, rows)
}
