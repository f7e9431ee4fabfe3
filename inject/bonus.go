package inject

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/quantfoundry/affiliate-fraud-pipeline/schema"
)

// Fixed shape of a synthetic bonus-abuse deposit. Many unrelated clients
// under one partner deposit the minimum bonus-qualifying amount inside a
// tight window and withdraw it after the minimum holding period.
const (
	bonusInstrument = "EURUSD"
	bonusCurrency   = "US Dollar"
)

// InjectBonusAbuse samples a fraction of the fraudulent partners and, for
// each, appends one synthetic deposit trade per selected client inside a
// single coordinated time window, plus a matching withdrawal after the
// configured holding delay. Partners with fewer than two distinct clients
// are skipped; partial coverage is expected, not an error.
//
// Returned trades continue the trade-id sequence past the current table
// maximum and are not mirrored into commissions.
func (inj *Injector) InjectBonusAbuse(trades []schema.Trade, partners []schema.Partner) ([]schema.Trade, []schema.Withdrawal) {
	rng := rand.New(rand.NewSource(inj.Seed + bonusSeedOffset))

	var fraudPartners []schema.Partner
	for _, partner := range partners {
		if partner.IsFraudulent {
			fraudPartners = append(fraudPartners, partner)
		}
	}
	if len(fraudPartners) == 0 {
		return nil, nil
	}

	numAbuse := int(inj.BonusFraction * float64(len(fraudPartners)))
	if numAbuse < 1 {
		numAbuse = 1
	}
	perm := rng.Perm(len(fraudPartners))
	selected := perm[:numAbuse]

	// Distinct clients per partner, first-seen order. Trades with an empty
	// client id carry no usable relationship and are ignored.
	clientsByPartner := make(map[string][]string)
	seen := make(map[string]map[string]bool)
	for _, trade := range trades {
		if trade.ClientID == "" {
			continue
		}
		set, ok := seen[trade.PartnerID]
		if !ok {
			set = make(map[string]bool)
			seen[trade.PartnerID] = set
		}
		if !set[trade.ClientID] {
			set[trade.ClientID] = true
			clientsByPartner[trade.PartnerID] = append(clientsByPartner[trade.PartnerID], trade.ClientID)
		}
	}

	tradeSeq := nextTradeSeq(trades)
	withdrawalSeq := 1

	var newTrades []schema.Trade
	var withdrawals []schema.Withdrawal

	for _, idx := range selected {
		partner := fraudPartners[idx]
		clients := clientsByPartner[partner.PartnerID]
		if len(clients) < 2 {
			continue
		}

		numClients := 10 + rng.Intn(6)
		if numClients > len(clients) {
			numClients = len(clients)
		}
		clientPerm := rng.Perm(len(clients))

		// One coordinated base window per partner.
		baseTime := inj.BonusBase.
			AddDate(0, 0, rng.Intn(30)).
			Add(time.Duration(6+rng.Intn(16)) * time.Hour)

		for _, c := range clientPerm[:numClients] {
			clientID := clients[c]
			timestamp := baseTime.Add(time.Duration(rng.Intn(60)) * time.Minute)

			newTrades = append(newTrades, schema.Trade{
				TradeID:      fmt.Sprintf("T_%07d", tradeSeq),
				Timestamp:    timestamp,
				ClientID:     clientID,
				PartnerID:    partner.PartnerID,
				Instrument:   bonusInstrument,
				Direction:    schema.DirectionBuy,
				TradeVolume:  inj.BonusDeposit,
				Currency:     bonusCurrency,
				IsFraudulent: true,
				IsBonusAbuse: true,
			})
			tradeSeq++

			withdrawals = append(withdrawals, schema.Withdrawal{
				WithdrawalID: fmt.Sprintf("W_%05d", withdrawalSeq),
				Timestamp:    timestamp.Add(inj.BonusWithdrawDelay),
				ClientID:     clientID,
				PartnerID:    partner.PartnerID,
				Amount:       inj.BonusDeposit,
				IsBonusAbuse: true,
			})
			withdrawalSeq++
		}
	}

	return newTrades, withdrawals
}
