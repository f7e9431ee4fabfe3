package schema

import "time"

// Trade directions.
const (
	DirectionBuy  = "BUY"
	DirectionSell = "SELL"
)

// TableTimestampLayout is the timestamp format used in every derived table.
// Second precision is required because injected opposite-trade pairs are
// offset from each other by seconds.
const TableTimestampLayout = "2006-01-02 15:04:05"

// Partner is one selected high-fan-in receiver account promoted to the
// central node of the derived network. is_fraudulent is a function of ring
// membership only and is never set anywhere else.
type Partner struct {
	PartnerID            string
	AccountNumber        string
	BankID               string
	BankName             string
	EntityName           string
	NumReferredClients   int
	TotalTradeVolume     float64
	TotalCommissionsPaid float64
	AvgCommission        float64
	IsFraudulent         bool
	FraudRingIDs         string
	PrimaryPatternType   string
}

// Client is one (sender account, partner) relationship. The same physical
// account appears once per partner it sent money to.
type Client struct {
	ClientID      string
	AccountNumber string
	PartnerID     string
	BankID        string
	BankName      string
	EntityName    string
	NumTrades     int
	TotalVolume   float64
	IsInFraudRing bool
}

// Trade is one retained ledger transaction recast as a trade under a
// partner. IsFraudulent may be promoted to true by injection, never demoted.
type Trade struct {
	TradeID         string
	Timestamp       time.Time
	ClientID        string
	PartnerID       string
	Instrument      string
	Direction       string
	TradeVolume     float64
	Currency        string
	IsFraudulent    bool
	IsOppositeTrade bool
	IsBonusAbuse    bool
}

// Commission is the 1:1 partner-earning event of a trade. The amount must
// equal TradeVolume x commission rate at all times, including after
// injection rewrites trade volumes.
type Commission struct {
	CommissionID     string
	Timestamp        time.Time
	ClientID         string
	PartnerID        string
	TradeID          string
	CommissionAmount float64
	Currency         string
	IsFraudulent     bool
}

// Referral is the aggregate partner->client edge. Fully derived from the
// trades table and always rebuilt whole, never patched.
type Referral struct {
	PartnerID        string
	ClientID         string
	FirstTradeDate   time.Time
	LastTradeDate    time.Time
	NumTrades        int
	TotalVolume      float64
	TotalCommissions float64
}

// Withdrawal is a synthetic bonus-abuse withdrawal event produced by
// injection. It has no commission counterpart.
type Withdrawal struct {
	WithdrawalID string
	Timestamp    time.Time
	ClientID     string
	PartnerID    string
	Amount       float64
	IsBonusAbuse bool
}
