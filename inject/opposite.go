package inject

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/quantfoundry/affiliate-fraud-pipeline/schema"
)

// InjectOppositeTrading walks each fraudulent partner's trades in timestamp
// order as consecutive non-overlapping pairs and, with the configured
// probability per pair, rewrites the pair into a detectable wash-trade
// signature: synchronized timestamps, same instrument, strictly opposite
// directions, near-identical volume. Pairs the probability roll skips stay
// as unmodified noise so the dataset is not trivially separable.
//
// Trades are mutated in place. The returned set holds the trade ids whose
// volume was rewritten and therefore need a commission resync.
func (inj *Injector) InjectOppositeTrading(trades []schema.Trade, partners []schema.Partner) map[string]bool {
	rng := rand.New(rand.NewSource(inj.Seed))
	changed := make(map[string]bool)

	byPartner := make(map[string][]int)
	for i, trade := range trades {
		byPartner[trade.PartnerID] = append(byPartner[trade.PartnerID], i)
	}

	for _, partner := range partners {
		if !partner.IsFraudulent {
			continue
		}
		indices := byPartner[partner.PartnerID]
		if len(indices) < 2 {
			// no pairs possible, skip rather than fail
			continue
		}

		sort.Slice(indices, func(a, b int) bool {
			ti, tj := trades[indices[a]], trades[indices[b]]
			if !ti.Timestamp.Equal(tj.Timestamp) {
				return ti.Timestamp.Before(tj.Timestamp)
			}
			return ti.TradeID < tj.TradeID
		})

		for i := 0; i+1 < len(indices); i += 2 {
			first := &trades[indices[i]]
			second := &trades[indices[i+1]]

			if rng.Float64() > inj.OppositeProbability {
				continue
			}

			// Synchronize: second trade lands within seconds of the first.
			// A window of one second or less still yields a 1s offset.
			span := inj.MaxOffsetSeconds - 1
			if span < 1 {
				span = 1
			}
			offset := 1 + rng.Intn(span)
			second.Timestamp = first.Timestamp.Add(time.Duration(offset) * time.Second)

			second.Instrument = first.Instrument
			first.Direction = schema.DirectionBuy
			second.Direction = schema.DirectionSell

			// Volume within +/-2% of the first leg.
			factor := 0.98 + rng.Float64()*0.04
			second.TradeVolume = math.Round(first.TradeVolume*factor*100) / 100
			changed[second.TradeID] = true

			first.IsOppositeTrade = true
			second.IsOppositeTrade = true
			first.IsFraudulent = true
			second.IsFraudulent = true
		}
	}

	return changed
}
