package inject

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/quantfoundry/affiliate-fraud-pipeline/schema"
)

func testInjector() *Injector {
	return &Injector{
		OppositeProbability: 1.0,
		MaxOffsetSeconds:    60,
		BonusFraction:       0.3,
		BonusDeposit:        50.0,
		BonusWithdrawDelay:  24 * time.Hour,
		BonusBase:           time.Date(2022, 9, 1, 0, 0, 0, 0, time.UTC),
		CommissionRate:      0.02,
		Seed:                42,
	}
}

func makeTrade(seq int, ts time.Time, clientID, partnerID string, volume float64) schema.Trade {
	return schema.Trade{
		TradeID:     fmt.Sprintf("T_%07d", seq),
		Timestamp:   ts,
		ClientID:    clientID,
		PartnerID:   partnerID,
		Instrument:  "GBPUSD",
		Direction:   schema.DirectionBuy,
		TradeVolume: volume,
		Currency:    "US Dollar",
	}
}

func TestInjectOppositeTradingPairs(t *testing.T) {
	base := time.Date(2022, 9, 5, 10, 0, 0, 0, time.UTC)
	trades := []schema.Trade{
		makeTrade(1, base, "C_000001", "P_0001", 1000),
		makeTrade(2, base.Add(time.Hour), "C_000002", "P_0001", 2500),
		makeTrade(3, base.Add(2*time.Hour), "C_000001", "P_0001", 800),
		makeTrade(4, base.Add(3*time.Hour), "C_000003", "P_0001", 1200),
		// Clean partner, must stay untouched.
		makeTrade(5, base, "C_000004", "P_0002", 700),
		makeTrade(6, base.Add(time.Hour), "C_000005", "P_0002", 900),
	}
	trades[2].Instrument = "USDJPY"
	partners := []schema.Partner{
		{PartnerID: "P_0001", IsFraudulent: true},
		{PartnerID: "P_0002"},
	}

	inj := testInjector()
	changed := inj.InjectOppositeTrading(trades, partners)

	// At probability 1.0, both pairs of the fraud partner are rewritten.
	if len(changed) != 2 {
		t.Fatalf("Expected 2 rewritten second legs, got %d", len(changed))
	}

	checkPair := func(first, second schema.Trade) {
		t.Helper()
		if !first.IsOppositeTrade || !second.IsOppositeTrade {
			t.Errorf("Pair %s/%s not flagged as opposite", first.TradeID, second.TradeID)
		}
		if !first.IsFraudulent || !second.IsFraudulent {
			t.Errorf("Pair %s/%s not flagged fraudulent", first.TradeID, second.TradeID)
		}
		if first.Instrument != second.Instrument {
			t.Errorf("Pair %s/%s instruments differ: %s vs %s", first.TradeID, second.TradeID, first.Instrument, second.Instrument)
		}
		if first.Direction != schema.DirectionBuy || second.Direction != schema.DirectionSell {
			t.Errorf("Pair %s/%s not BUY/SELL", first.TradeID, second.TradeID)
		}
		gap := second.Timestamp.Sub(first.Timestamp)
		if gap < time.Second || gap >= time.Minute {
			t.Errorf("Pair %s/%s offset %v outside [1s, 60s)", first.TradeID, second.TradeID, gap)
		}
		ratio := second.TradeVolume / first.TradeVolume
		if ratio < 0.979 || ratio > 1.021 {
			t.Errorf("Pair %s/%s volume ratio %v outside 2%% band", first.TradeID, second.TradeID, ratio)
		}
		if !changed[second.TradeID] {
			t.Errorf("Second leg %s missing from changed set", second.TradeID)
		}
	}
	checkPair(trades[0], trades[1])
	checkPair(trades[2], trades[3])

	for _, trade := range trades[4:] {
		if trade.IsOppositeTrade || trade.IsFraudulent {
			t.Errorf("Clean partner trade %s was mutated: %+v", trade.TradeID, trade)
		}
	}
}

func TestInjectOppositeTradingSingleTradePartner(t *testing.T) {
	base := time.Date(2022, 9, 5, 10, 0, 0, 0, time.UTC)
	trades := []schema.Trade{makeTrade(1, base, "C_000001", "P_0001", 1000)}
	partners := []schema.Partner{{PartnerID: "P_0001", IsFraudulent: true}}

	inj := testInjector()
	changed := inj.InjectOppositeTrading(trades, partners)
	if len(changed) != 0 {
		t.Fatalf("Expected no rewrites for a one-trade partner, got %d", len(changed))
	}
	if trades[0].IsOppositeTrade {
		t.Error("Single trade was flagged despite having no pair")
	}
}

func TestInjectOppositeTradingMinimalOffsetWindow(t *testing.T) {
	base := time.Date(2022, 9, 5, 10, 0, 0, 0, time.UTC)
	trades := []schema.Trade{
		makeTrade(1, base, "C_000001", "P_0001", 1000),
		makeTrade(2, base.Add(time.Hour), "C_000002", "P_0001", 2000),
	}
	partners := []schema.Partner{{PartnerID: "P_0001", IsFraudulent: true}}

	inj := testInjector()
	inj.MaxOffsetSeconds = 1
	changed := inj.InjectOppositeTrading(trades, partners)

	if len(changed) != 1 {
		t.Fatalf("Expected the pair to be rewritten, got %d changes", len(changed))
	}
	gap := trades[1].Timestamp.Sub(trades[0].Timestamp)
	if gap != time.Second {
		t.Errorf("Expected a 1s offset for a one-second window, got %v", gap)
	}
}

func TestInjectOppositeTradingOddTrailingTrade(t *testing.T) {
	base := time.Date(2022, 9, 5, 10, 0, 0, 0, time.UTC)
	trades := []schema.Trade{
		makeTrade(1, base, "C_000001", "P_0001", 1000),
		makeTrade(2, base.Add(time.Hour), "C_000002", "P_0001", 2000),
		makeTrade(3, base.Add(2*time.Hour), "C_000003", "P_0001", 3000),
	}
	partners := []schema.Partner{{PartnerID: "P_0001", IsFraudulent: true}}

	inj := testInjector()
	inj.InjectOppositeTrading(trades, partners)
	if trades[2].IsOppositeTrade {
		t.Error("Unpaired trailing trade was rewritten")
	}
}

func bonusFixture() ([]schema.Trade, []schema.Partner) {
	base := time.Date(2022, 9, 5, 10, 0, 0, 0, time.UTC)
	var trades []schema.Trade
	seq := 1
	for i := 0; i < 12; i++ {
		trades = append(trades, makeTrade(seq, base.Add(time.Duration(i)*time.Hour), fmt.Sprintf("C_%06d", i+1), "P_0001", 500))
		seq++
	}
	trades = append(trades, makeTrade(seq, base, "C_000100", "P_0002", 900))
	partners := []schema.Partner{
		{PartnerID: "P_0001", IsFraudulent: true},
		{PartnerID: "P_0002"},
	}
	return trades, partners
}

func TestInjectBonusAbuse(t *testing.T) {
	trades, partners := bonusFixture()
	preMax := nextTradeSeq(trades) - 1

	inj := testInjector()
	newTrades, withdrawals := inj.InjectBonusAbuse(trades, partners)

	if len(newTrades) == 0 {
		t.Fatal("Expected bonus trades for the only fraud partner")
	}
	if len(newTrades) < 10 || len(newTrades) > 12 {
		t.Fatalf("Expected 10-12 bonus trades for a 12-client partner, got %d", len(newTrades))
	}
	if len(withdrawals) != len(newTrades) {
		t.Fatalf("Expected one withdrawal per bonus trade, got %d vs %d", len(withdrawals), len(newTrades))
	}

	clientsSeen := make(map[string]bool)
	for i, trade := range newTrades {
		if trade.PartnerID != "P_0001" {
			t.Errorf("Bonus trade %s attached to %s, want the fraud partner", trade.TradeID, trade.PartnerID)
		}
		if trade.Instrument != "EURUSD" || trade.Direction != schema.DirectionBuy {
			t.Errorf("Bonus trade %s has shape %s/%s, want EURUSD/BUY", trade.TradeID, trade.Instrument, trade.Direction)
		}
		if trade.TradeVolume != inj.BonusDeposit {
			t.Errorf("Bonus trade %s volume %v, want deposit %v", trade.TradeID, trade.TradeVolume, inj.BonusDeposit)
		}
		if !trade.IsFraudulent || !trade.IsBonusAbuse {
			t.Errorf("Bonus trade %s missing fraud flags", trade.TradeID)
		}
		if clientsSeen[trade.ClientID] {
			t.Errorf("Client %s received two bonus deposits", trade.ClientID)
		}
		clientsSeen[trade.ClientID] = true

		suffix, _ := strings.CutPrefix(trade.TradeID, "T_")
		if seq, err := strconv.Atoi(suffix); err != nil || seq <= preMax {
			t.Errorf("Bonus trade id %s does not continue the sequence past %d", trade.TradeID, preMax)
		}

		w := withdrawals[i]
		if w.ClientID != trade.ClientID || w.PartnerID != trade.PartnerID {
			t.Errorf("Withdrawal %s does not mirror trade %s", w.WithdrawalID, trade.TradeID)
		}
		if !w.Timestamp.Equal(trade.Timestamp.Add(inj.BonusWithdrawDelay)) {
			t.Errorf("Withdrawal %s not delayed by the holding period", w.WithdrawalID)
		}
		if w.Amount != inj.BonusDeposit || !w.IsBonusAbuse {
			t.Errorf("Unexpected withdrawal %+v", w)
		}
	}

	// All deposits of one partner share a tight coordinated window.
	var min, max time.Time
	for i, trade := range newTrades {
		if i == 0 || trade.Timestamp.Before(min) {
			min = trade.Timestamp
		}
		if i == 0 || trade.Timestamp.After(max) {
			max = trade.Timestamp
		}
	}
	if max.Sub(min) >= time.Hour {
		t.Errorf("Bonus deposits span %v, want under an hour", max.Sub(min))
	}
}

func TestInjectBonusAbuseSkipsThinPartners(t *testing.T) {
	base := time.Date(2022, 9, 5, 10, 0, 0, 0, time.UTC)
	trades := []schema.Trade{makeTrade(1, base, "C_000001", "P_0001", 500)}
	partners := []schema.Partner{{PartnerID: "P_0001", IsFraudulent: true}}

	inj := testInjector()
	newTrades, withdrawals := inj.InjectBonusAbuse(trades, partners)
	if len(newTrades) != 0 || len(withdrawals) != 0 {
		t.Fatalf("Expected a one-client partner to be skipped, got %d trades", len(newTrades))
	}
}

func TestInjectBonusAbuseNoFraudPartners(t *testing.T) {
	trades, _ := bonusFixture()
	partners := []schema.Partner{{PartnerID: "P_0001"}, {PartnerID: "P_0002"}}

	inj := testInjector()
	newTrades, withdrawals := inj.InjectBonusAbuse(trades, partners)
	if newTrades != nil || withdrawals != nil {
		t.Fatal("Expected no output without fraud partners")
	}
}

func TestRunResyncsCommissions(t *testing.T) {
	trades, partners := bonusFixture()
	var commissions []schema.Commission
	for i, trade := range trades {
		commissions = append(commissions, schema.Commission{
			CommissionID:     fmt.Sprintf("CM_%07d", i+1),
			TradeID:          trade.TradeID,
			ClientID:         trade.ClientID,
			PartnerID:        trade.PartnerID,
			CommissionAmount: trade.TradeVolume * 0.02,
		})
	}

	inj := testInjector()
	updated, withdrawals, stats := inj.Run(trades, partners, commissions)

	if stats.CommissionsResynced == 0 {
		t.Fatal("Expected rewritten volumes to trigger a resync")
	}
	if stats.OppositeRewritten != 2*(stats.CommissionsResynced) {
		t.Errorf("Stats inconsistent: %d opposite trades vs %d resyncs", stats.OppositeRewritten, stats.CommissionsResynced)
	}
	if stats.BonusTrades != len(updated)-len(trades) {
		t.Errorf("Stats report %d bonus trades, table grew by %d", stats.BonusTrades, len(updated)-len(trades))
	}
	if stats.Withdrawals != len(withdrawals) {
		t.Errorf("Stats report %d withdrawals, got %d", stats.Withdrawals, len(withdrawals))
	}

	volumes := make(map[string]float64, len(updated))
	for _, trade := range updated {
		volumes[trade.TradeID] = trade.TradeVolume
	}
	for _, commission := range commissions {
		want := volumes[commission.TradeID] * inj.CommissionRate
		if math.Abs(commission.CommissionAmount-want) > 1e-9 {
			t.Errorf("Commission %s amount %v, want %v after resync", commission.CommissionID, commission.CommissionAmount, want)
		}
	}

	// Bonus deposits stay commission free.
	commissionTrades := make(map[string]bool, len(commissions))
	for _, commission := range commissions {
		commissionTrades[commission.TradeID] = true
	}
	for _, trade := range updated {
		if trade.IsBonusAbuse && commissionTrades[trade.TradeID] {
			t.Errorf("Bonus trade %s gained a commission", trade.TradeID)
		}
	}
}

func TestRunDeterministic(t *testing.T) {
	run := func() ([]schema.Trade, []schema.Withdrawal, Stats) {
		trades, partners := bonusFixture()
		var commissions []schema.Commission
		for i, trade := range trades {
			commissions = append(commissions, schema.Commission{
				CommissionID: fmt.Sprintf("CM_%07d", i+1),
				TradeID:      trade.TradeID,
			})
		}
		inj := testInjector()
		return inj.Run(trades, partners, commissions)
	}

	firstTrades, firstWithdrawals, firstStats := run()
	secondTrades, secondWithdrawals, secondStats := run()

	if !reflect.DeepEqual(firstTrades, secondTrades) {
		t.Error("Trades diverged across identical runs")
	}
	if !reflect.DeepEqual(firstWithdrawals, secondWithdrawals) {
		t.Error("Withdrawals diverged across identical runs")
	}
	if firstStats != secondStats {
		t.Errorf("Stats diverged: %+v vs %+v", firstStats, secondStats)
	}
}
