package schema

import "time"

// LedgerTimestampLayout is the timestamp format of the raw transaction
// ledger and the fraud-scheme report (zero-padded, lexically sortable).
const LedgerTimestampLayout = "2006/01/02 15:04"

// LedgerColumns is the expected column count of a raw ledger row.
const LedgerColumns = 11

// LedgerTransaction is one row of the raw transaction ledger.
type LedgerTransaction struct {
	Timestamp         time.Time
	FromBank          string
	FromAccount       string
	ToBank            string
	ToAccount         string
	AmountReceived    float64
	ReceivingCurrency string
	AmountPaid        float64
	PaymentCurrency   string
	PaymentFormat     string
	IsLaundering      bool
}

// Account is one row of the account master table.
type Account struct {
	AccountNumber string
	BankID        string
	BankName      string
	EntityName    string
}
