package schema

// RingTransaction is one transaction line recorded inside a fraud-scheme
// report block. Timestamps stay in their raw ledger text form so the
// temporal span can be computed lexically.
type RingTransaction struct {
	Timestamp         string  `json:"timestamp"`
	FromBank          string  `json:"from_bank"`
	FromAccount       string  `json:"from_account"`
	ToBank            string  `json:"to_bank"`
	ToAccount         string  `json:"to_account"`
	AmountReceived    float64 `json:"amount_received"`
	ReceivingCurrency string  `json:"recv_currency"`
	AmountPaid        float64 `json:"amount_paid"`
	PaymentCurrency   string  `json:"pay_currency"`
	PaymentFormat     string  `json:"payment_format"`
	IsLaundering      int     `json:"is_laundering"`
}

// Ring is one reported fraud scheme instance: a connected set of accounts
// and transactions with one designated hub account. Rings are produced once
// by the parser and read-only afterwards; the catalogue is the ground truth
// every later stage labels against.
type Ring struct {
	RingID          int               `json:"ring_id"`
	PatternType     string            `json:"pattern_type"`
	Description     string            `json:"description"`
	Transactions    []RingTransaction `json:"transactions"`
	Accounts        []string          `json:"accounts"`
	HubAccount      string            `json:"hub_account"`
	NumTransactions int               `json:"num_transactions"`
	TemporalSpan    []string          `json:"temporal_span"`
}
