// Package inject post-processes the trades table to encode two synthetic
// fraud signatures, synchronized opposite trading and coordinated
// deposit/withdrawal (bonus) abuse, and resynchronizes the commission
// aggregates the mutations would otherwise leave stale.
package inject

import (
	"strconv"
	"strings"
	"time"

	"github.com/quantfoundry/affiliate-fraud-pipeline/schema"
)

// bonusSeedOffset decorrelates the bonus-abuse stream from the
// opposite-trading stream sharing the same base seed.
const bonusSeedOffset = 1000

// Injector mutates the built tables to encode the synthetic fraud
// patterns. All randomness flows from Seed.
type Injector struct {
	OppositeProbability float64
	MaxOffsetSeconds    int
	BonusFraction       float64
	BonusDeposit        float64
	BonusWithdrawDelay  time.Duration
	BonusBase           time.Time
	CommissionRate      float64
	Seed                int64
}

// Stats reports what one injection pass did.
type Stats struct {
	OppositeRewritten   int
	BonusTrades         int
	Withdrawals         int
	CommissionsResynced int
}

// Run applies both patterns to trades in place, appends the bonus-abuse
// rows, and resynchronizes commission amounts for rewritten trades.
// It returns the updated trades, the new withdrawals table and the stats.
func (inj *Injector) Run(
	trades []schema.Trade,
	partners []schema.Partner,
	commissions []schema.Commission,
) ([]schema.Trade, []schema.Withdrawal, Stats) {
	var stats Stats

	changed := inj.InjectOppositeTrading(trades, partners)
	// every rewritten pair flags two trades, one volume change per pair
	stats.OppositeRewritten = 2 * len(changed)

	newTrades, withdrawals := inj.InjectBonusAbuse(trades, partners)
	trades = append(trades, newTrades...)
	stats.BonusTrades = len(newTrades)
	stats.Withdrawals = len(withdrawals)

	stats.CommissionsResynced = inj.ResyncCommissions(commissions, trades, changed)

	return trades, withdrawals, stats
}

// ResyncCommissions recomputes commission_amount for every commission whose
// trade volume was rewritten by injection, restoring the amount = volume x
// rate invariant. Untouched trades keep their original commission rows, and
// bonus-abuse deposits deliberately have no commission at all: they are the
// client's own money, not a partner-earning event.
func (inj *Injector) ResyncCommissions(
	commissions []schema.Commission,
	trades []schema.Trade,
	changed map[string]bool,
) int {
	if len(changed) == 0 {
		return 0
	}

	volumes := make(map[string]float64, len(changed))
	for _, trade := range trades {
		if changed[trade.TradeID] {
			volumes[trade.TradeID] = trade.TradeVolume
		}
	}

	resynced := 0
	for i := range commissions {
		volume, ok := volumes[commissions[i].TradeID]
		if !ok {
			continue
		}
		commissions[i].CommissionAmount = volume * inj.CommissionRate
		resynced++
	}
	return resynced
}

// nextTradeSeq returns the successor of the highest numeric trade id
// suffix, so appended rows never collide with existing ids.
func nextTradeSeq(trades []schema.Trade) int {
	maxSeq := 0
	for _, trade := range trades {
		suffix, ok := strings.CutPrefix(trade.TradeID, "T_")
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(suffix); err == nil && n > maxSeq {
			maxSeq = n
		}
	}
	return maxSeq + 1
}
