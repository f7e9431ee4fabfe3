package transform

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/quantfoundry/affiliate-fraud-pipeline/schema"
)

var testInstruments = []string{"EURUSD", "GBPUSD", "USDJPY", "XAUUSD", "BTCUSD"}

func testBuilder() *Builder {
	return &Builder{
		CommissionRate:  0.02,
		CommissionDelay: time.Hour,
		Instruments:     testInstruments,
		Seed:            42,
	}
}

func tx(ts time.Time, from, to string, amount float64, laundering bool) schema.LedgerTransaction {
	return schema.LedgerTransaction{
		Timestamp:       ts,
		FromAccount:     from,
		ToAccount:       to,
		AmountPaid:      amount,
		AmountReceived:  amount,
		PaymentCurrency: "US Dollar",
		PaymentFormat:   "ACH",
		IsLaundering:    laundering,
	}
}

func testFixture() ([]schema.LedgerTransaction, []string, map[string]schema.Account, []schema.Ring) {
	base := time.Date(2022, 9, 1, 10, 0, 0, 0, time.UTC)
	filtered := []schema.LedgerTransaction{
		tx(base, "SENDER_1", "HUB_A", 100, true),
		tx(base.Add(time.Minute), "SENDER_2", "HUB_A", 200, false),
		tx(base.Add(2*time.Minute), "SENDER_1", "HUB_A", 300, true),
		tx(base.Add(3*time.Minute), "SENDER_1", "BANK_1", 400, false),
		tx(base.Add(4*time.Minute), "SENDER_3", "BANK_1", 500, false),
	}
	partnerAccounts := []string{"HUB_A", "BANK_1", "GHOST"}
	accounts := map[string]schema.Account{
		"HUB_A":    {AccountNumber: "HUB_A", BankID: "011", BankName: "First National", EntityName: "Hub Corp"},
		"BANK_1":   {AccountNumber: "BANK_1", BankID: "012", BankName: "Second State", EntityName: "Bank Inc"},
		"SENDER_1": {AccountNumber: "SENDER_1", BankID: "013", BankName: "Third Trust", EntityName: "Alice"},
	}
	catalogue := []schema.Ring{
		{RingID: 0, PatternType: "FAN-OUT", Accounts: []string{"HUB_A", "SENDER_1"}, HubAccount: "HUB_A"},
		{RingID: 3, PatternType: "CYCLE", Accounts: []string{"HUB_A"}, HubAccount: "HUB_A"},
	}
	return filtered, partnerAccounts, accounts, catalogue
}

func TestBuildPartners(t *testing.T) {
	filtered, partnerAccounts, accounts, catalogue := testFixture()
	b := testBuilder()
	partners := b.BuildPartners(filtered, partnerAccounts, accounts, newFraudLookups(catalogue))

	if len(partners) != 3 {
		t.Fatalf("Expected 3 partners, got %d", len(partners))
	}

	hub := partners[0]
	if hub.PartnerID != "P_0001" || hub.AccountNumber != "HUB_A" {
		t.Errorf("Unexpected first partner %+v", hub)
	}
	if hub.NumReferredClients != 2 {
		t.Errorf("Expected 2 referred clients for HUB_A, got %d", hub.NumReferredClients)
	}
	if hub.TotalTradeVolume != 600 {
		t.Errorf("Expected volume 600 for HUB_A, got %v", hub.TotalTradeVolume)
	}
	if math.Abs(hub.TotalCommissionsPaid-12) > 1e-9 {
		t.Errorf("Expected commissions 12 for HUB_A, got %v", hub.TotalCommissionsPaid)
	}
	if math.Abs(hub.AvgCommission-6) > 1e-9 {
		t.Errorf("Expected avg commission 6 for HUB_A, got %v", hub.AvgCommission)
	}
	if !hub.IsFraudulent {
		t.Error("Expected HUB_A flagged via ring membership")
	}
	if hub.FraudRingIDs != "0,3" {
		t.Errorf("Expected ring ids \"0,3\", got %q", hub.FraudRingIDs)
	}
	if hub.PrimaryPatternType != "FAN-OUT" {
		t.Errorf("Expected primary pattern from lowest ring id, got %q", hub.PrimaryPatternType)
	}
	if hub.BankName != "First National" {
		t.Errorf("Expected bank name from account master, got %q", hub.BankName)
	}

	if partners[1].IsFraudulent {
		t.Error("BANK_1 is not in any ring, must not be flagged")
	}

	ghost := partners[2]
	if ghost.PartnerID != "P_0003" {
		t.Errorf("Expected P_0003 for third partner, got %q", ghost.PartnerID)
	}
	if ghost.NumReferredClients != 0 || ghost.TotalTradeVolume != 0 || ghost.AvgCommission != 0 {
		t.Errorf("Expected zero-filled aggregates for partner with no rows, got %+v", ghost)
	}
}

func TestBuildClients(t *testing.T) {
	filtered, partnerAccounts, accounts, catalogue := testFixture()
	b := testBuilder()
	lookups := newFraudLookups(catalogue)
	partners := b.BuildPartners(filtered, partnerAccounts, accounts, lookups)
	clients := b.BuildClients(filtered, partners, accounts, lookups)

	// Distinct (sender, receiver) pairs: (S1,HUB_A) (S1,BANK_1) (S2,HUB_A) (S3,BANK_1)
	if len(clients) != 4 {
		t.Fatalf("Expected 4 clients, got %d", len(clients))
	}

	// Ordered by (sender, receiver): SENDER_1/BANK_1 first.
	first := clients[0]
	if first.ClientID != "C_000001" {
		t.Errorf("Expected C_000001, got %q", first.ClientID)
	}
	if first.AccountNumber != "SENDER_1" || first.PartnerID != "P_0002" {
		t.Errorf("Unexpected first client %+v", first)
	}
	if first.NumTrades != 1 || first.TotalVolume != 400 {
		t.Errorf("Unexpected aggregates for first client %+v", first)
	}
	if !first.IsInFraudRing {
		t.Error("SENDER_1 is a ring member, expected flag set")
	}

	second := clients[1]
	if second.AccountNumber != "SENDER_1" || second.PartnerID != "P_0001" {
		t.Errorf("Unexpected second client %+v", second)
	}
	if second.NumTrades != 2 || second.TotalVolume != 400 {
		t.Errorf("Unexpected aggregates for SENDER_1 under HUB_A: %+v", second)
	}

	for _, c := range clients[2:] {
		if c.IsInFraudRing {
			t.Errorf("Client %s is not a ring member, must not be flagged", c.AccountNumber)
		}
	}
}

func TestBuildTradesAndCommissions(t *testing.T) {
	filtered, partnerAccounts, accounts, catalogue := testFixture()
	b := testBuilder()
	tables := b.Build(filtered, partnerAccounts, accounts, catalogue)

	if len(tables.Trades) != len(filtered) {
		t.Fatalf("Expected one trade per ledger row, got %d", len(tables.Trades))
	}
	if len(tables.Commissions) != len(tables.Trades) {
		t.Fatalf("Expected one commission per trade, got %d", len(tables.Commissions))
	}

	poolMembership := make(map[string]bool, len(testInstruments))
	for _, instrument := range testInstruments {
		poolMembership[instrument] = true
	}

	for i, trade := range tables.Trades {
		if trade.ClientID == "" || trade.PartnerID == "" {
			t.Errorf("Trade %s missing linkage: %+v", trade.TradeID, trade)
		}
		if !poolMembership[trade.Instrument] {
			t.Errorf("Trade %s has instrument %q outside the configured list", trade.TradeID, trade.Instrument)
		}
		if trade.Direction != schema.DirectionBuy && trade.Direction != schema.DirectionSell {
			t.Errorf("Trade %s has direction %q", trade.TradeID, trade.Direction)
		}
		if trade.TradeVolume != filtered[i].AmountPaid {
			t.Errorf("Trade %s volume %v, want ledger amount %v", trade.TradeID, trade.TradeVolume, filtered[i].AmountPaid)
		}
		if trade.IsFraudulent != filtered[i].IsLaundering {
			t.Errorf("Trade %s fraud flag %v, want ledger flag %v", trade.TradeID, trade.IsFraudulent, filtered[i].IsLaundering)
		}

		commission := tables.Commissions[i]
		if commission.TradeID != trade.TradeID {
			t.Errorf("Commission %s references %s, want %s", commission.CommissionID, commission.TradeID, trade.TradeID)
		}
		if math.Abs(commission.CommissionAmount-trade.TradeVolume*b.CommissionRate) > 1e-9 {
			t.Errorf("Commission %s amount %v breaks volume x rate", commission.CommissionID, commission.CommissionAmount)
		}
		if !commission.Timestamp.Equal(trade.Timestamp.Add(b.CommissionDelay)) {
			t.Errorf("Commission %s not delayed by configured lag", commission.CommissionID)
		}
	}
}

func TestBuildReferrals(t *testing.T) {
	filtered, partnerAccounts, accounts, catalogue := testFixture()
	b := testBuilder()
	tables := b.Build(filtered, partnerAccounts, accounts, catalogue)

	if len(tables.Referrals) != 4 {
		t.Fatalf("Expected 4 referral edges, got %d", len(tables.Referrals))
	}

	// Sorted by (partner_id, client_id).
	for i := 1; i < len(tables.Referrals); i++ {
		prev, cur := tables.Referrals[i-1], tables.Referrals[i]
		if prev.PartnerID > cur.PartnerID ||
			(prev.PartnerID == cur.PartnerID && prev.ClientID > cur.ClientID) {
			t.Fatalf("Referrals out of order at index %d", i)
		}
	}

	totalTrades := 0
	for _, ref := range tables.Referrals {
		totalTrades += ref.NumTrades
		if math.Abs(ref.TotalCommissions-ref.TotalVolume*b.CommissionRate) > 1e-9 {
			t.Errorf("Referral %s/%s commissions break volume x rate", ref.PartnerID, ref.ClientID)
		}
		if ref.FirstTradeDate.After(ref.LastTradeDate) {
			t.Errorf("Referral %s/%s has inverted date range", ref.PartnerID, ref.ClientID)
		}
	}
	if totalTrades != len(tables.Trades) {
		t.Errorf("Referral trade counts sum to %d, want %d", totalTrades, len(tables.Trades))
	}
}

func TestBuildDeterministic(t *testing.T) {
	filtered, partnerAccounts, accounts, catalogue := testFixture()
	b := testBuilder()

	first := b.Build(filtered, partnerAccounts, accounts, catalogue)
	second := b.Build(filtered, partnerAccounts, accounts, catalogue)

	if !reflect.DeepEqual(first, second) {
		t.Fatal("Two builds with the same seed produced different tables")
	}
}

func TestAssignInstrumentPools(t *testing.T) {
	clientIDs := []string{"C_000001", "C_000002", "C_000003"}

	pools := assignInstrumentPools(clientIDs, testInstruments, 42)
	for _, clientID := range clientIDs {
		pool := pools[clientID]
		if len(pool) < 1 || len(pool) > 3 {
			t.Errorf("Pool for %s has size %d, want 1-3", clientID, len(pool))
		}
		seen := make(map[string]bool)
		for _, instrument := range pool {
			if seen[instrument] {
				t.Errorf("Pool for %s repeats %s", clientID, instrument)
			}
			seen[instrument] = true
		}
	}

	// Pool depends only on (seed, client id), not on sibling clients.
	solo := assignInstrumentPools([]string{"C_000002"}, testInstruments, 42)
	if !reflect.DeepEqual(solo["C_000002"], pools["C_000002"]) {
		t.Error("Pool changed when computed in isolation")
	}

	reseeded := assignInstrumentPools(clientIDs, testInstruments, 43)
	same := true
	for _, clientID := range clientIDs {
		if !reflect.DeepEqual(reseeded[clientID], pools[clientID]) {
			same = false
		}
	}
	if same {
		t.Error("Changing the seed left every pool unchanged")
	}
}
