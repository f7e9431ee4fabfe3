// Package ledger loads the raw transaction ledger and the account master
// table that the pipeline's derived relations are built from.
package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/quantfoundry/affiliate-fraud-pipeline/schema"
)

// LoadTransactions reads the raw ledger CSV at path. A row with the wrong
// column count or an unparseable field is fatal; the ledger is machine
// generated and never expected to be malformed.
func LoadTransactions(path string) ([]schema.LedgerTransaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("required transaction ledger %s is missing: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = schema.LedgerColumns

	// Header row
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("failed to read ledger header %s: %w", path, err)
	}

	var transactions []schema.LedgerTransaction
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read ledger row %s: %w", path, err)
		}

		tx, err := parseRow(record)
		if err != nil {
			return nil, fmt.Errorf("bad ledger row %s: %w", path, err)
		}
		transactions = append(transactions, tx)
	}
	return transactions, nil
}

func parseRow(record []string) (schema.LedgerTransaction, error) {
	timestamp, err := time.Parse(schema.LedgerTimestampLayout, strings.TrimSpace(record[0]))
	if err != nil {
		return schema.LedgerTransaction{}, fmt.Errorf("bad timestamp %q: %w", record[0], err)
	}
	amountReceived, err := strconv.ParseFloat(strings.TrimSpace(record[5]), 64)
	if err != nil {
		return schema.LedgerTransaction{}, fmt.Errorf("bad amount received %q: %w", record[5], err)
	}
	amountPaid, err := strconv.ParseFloat(strings.TrimSpace(record[7]), 64)
	if err != nil {
		return schema.LedgerTransaction{}, fmt.Errorf("bad amount paid %q: %w", record[7], err)
	}
	laundering, err := strconv.Atoi(strings.TrimSpace(record[10]))
	if err != nil {
		return schema.LedgerTransaction{}, fmt.Errorf("bad laundering flag %q: %w", record[10], err)
	}

	return schema.LedgerTransaction{
		Timestamp:         timestamp,
		FromBank:          strings.TrimSpace(record[1]),
		FromAccount:       strings.TrimSpace(record[2]),
		ToBank:            strings.TrimSpace(record[3]),
		ToAccount:         strings.TrimSpace(record[4]),
		AmountReceived:    amountReceived,
		ReceivingCurrency: strings.TrimSpace(record[6]),
		AmountPaid:        amountPaid,
		PaymentCurrency:   strings.TrimSpace(record[8]),
		PaymentFormat:     strings.TrimSpace(record[9]),
		IsLaundering:      laundering != 0,
	}, nil
}

// Sample subsamples the ledger down to target rows while keeping every
// laundering-flagged row; only legitimate rows are sampled away, seeded for
// reproducibility. The result is re-sorted by timestamp (original order on
// ties). A non-positive target or a ledger already within the target is
// returned unchanged.
func Sample(transactions []schema.LedgerTransaction, target int, seed int64) []schema.LedgerTransaction {
	if target <= 0 || len(transactions) <= target {
		return transactions
	}

	var fraudIdx, legitIdx []int
	for i, tx := range transactions {
		if tx.IsLaundering {
			fraudIdx = append(fraudIdx, i)
		} else {
			legitIdx = append(legitIdx, i)
		}
	}

	keep := fraudIdx
	if wantLegit := target - len(fraudIdx); wantLegit > 0 {
		if wantLegit >= len(legitIdx) {
			keep = append(keep, legitIdx...)
		} else {
			rng := rand.New(rand.NewSource(seed))
			perm := rng.Perm(len(legitIdx))
			for _, p := range perm[:wantLegit] {
				keep = append(keep, legitIdx[p])
			}
		}
	}

	sort.Slice(keep, func(i, j int) bool {
		ti, tj := transactions[keep[i]].Timestamp, transactions[keep[j]].Timestamp
		if ti.Equal(tj) {
			return keep[i] < keep[j]
		}
		return ti.Before(tj)
	})

	sampled := make([]schema.LedgerTransaction, len(keep))
	for i, idx := range keep {
		sampled[i] = transactions[idx]
	}
	return sampled
}

// LoadAccounts reads the account master CSV mapping account numbers to bank
// and entity information. Columns are located by header name.
func LoadAccounts(path string) (map[string]schema.Account, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("required account master %s is missing: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read account master header %s: %w", path, err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"Account Number", "Bank ID", "Bank Name", "Entity Name"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("account master %s is missing column %q", path, required)
		}
	}

	accounts := make(map[string]schema.Account)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read account master row %s: %w", path, err)
		}
		account := schema.Account{
			AccountNumber: strings.TrimSpace(record[col["Account Number"]]),
			BankID:        strings.TrimSpace(record[col["Bank ID"]]),
			BankName:      strings.TrimSpace(record[col["Bank Name"]]),
			EntityName:    strings.TrimSpace(record[col["Entity Name"]]),
		}
		accounts[account.AccountNumber] = account
	}
	return accounts, nil
}
