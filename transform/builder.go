// Package transform derives the five linked relations (partners, clients,
// trades, commissions, referrals) from the partner-filtered ledger, the
// account master and the ring catalogue.
package transform

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/quantfoundry/affiliate-fraud-pipeline/schema"
)

// Builder constructs the derived tables. All randomness flows from Seed so
// identical inputs yield identical tables.
type Builder struct {
	CommissionRate  float64
	CommissionDelay time.Duration
	Instruments     []string
	Seed            int64
}

// Tables bundles one full build output.
type Tables struct {
	Partners    []schema.Partner
	Clients     []schema.Client
	Trades      []schema.Trade
	Commissions []schema.Commission
	Referrals   []schema.Referral
}

// Build derives all five tables in dependency order.
func (b *Builder) Build(
	filtered []schema.LedgerTransaction,
	partnerAccounts []string,
	accounts map[string]schema.Account,
	catalogue []schema.Ring,
) Tables {
	lookups := newFraudLookups(catalogue)

	partners := b.BuildPartners(filtered, partnerAccounts, accounts, lookups)
	clients := b.BuildClients(filtered, partners, accounts, lookups)
	trades := b.BuildTrades(filtered, clients, partners)
	commissions := b.BuildCommissions(trades)
	referrals := BuildReferrals(trades, b.CommissionRate)

	return Tables{
		Partners:    partners,
		Clients:     clients,
		Trades:      trades,
		Commissions: commissions,
		Referrals:   referrals,
	}
}

// fraudLookups indexes the ring catalogue by account.
type fraudLookups struct {
	accountRings map[string][]int
	ringTypes    map[int]string
}

func newFraudLookups(catalogue []schema.Ring) fraudLookups {
	lookups := fraudLookups{
		accountRings: make(map[string][]int),
		ringTypes:    make(map[int]string),
	}
	for _, ring := range catalogue {
		lookups.ringTypes[ring.RingID] = ring.PatternType
		for _, account := range ring.Accounts {
			lookups.accountRings[account] = append(lookups.accountRings[account], ring.RingID)
		}
	}
	return lookups
}

func (l fraudLookups) isFraud(account string) bool {
	return len(l.accountRings[account]) > 0
}

func (l fraudLookups) ringIDs(account string) string {
	ids := l.accountRings[account]
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

func (l fraudLookups) primaryPattern(account string) string {
	ids := l.accountRings[account]
	if len(ids) == 0 {
		return ""
	}
	return l.ringTypes[ids[0]]
}

// BuildPartners builds one row per selected partner account, in selection
// order so partner ids are stable. Accounts with no filtered rows keep
// zero-filled aggregates; fraud labeling is independent of how the account
// was selected.
func (b *Builder) BuildPartners(
	filtered []schema.LedgerTransaction,
	partnerAccounts []string,
	accounts map[string]schema.Account,
	lookups fraudLookups,
) []schema.Partner {
	type agg struct {
		senders map[string]bool
		volume  float64
	}
	aggs := make(map[string]*agg)
	for _, tx := range filtered {
		a, ok := aggs[tx.ToAccount]
		if !ok {
			a = &agg{senders: make(map[string]bool)}
			aggs[tx.ToAccount] = a
		}
		a.senders[tx.FromAccount] = true
		a.volume += tx.AmountPaid
	}

	partners := make([]schema.Partner, 0, len(partnerAccounts))
	for i, account := range partnerAccounts {
		partner := schema.Partner{
			PartnerID:          fmt.Sprintf("P_%04d", i+1),
			AccountNumber:      account,
			IsFraudulent:       lookups.isFraud(account),
			FraudRingIDs:       lookups.ringIDs(account),
			PrimaryPatternType: lookups.primaryPattern(account),
		}
		if a, ok := aggs[account]; ok {
			partner.NumReferredClients = len(a.senders)
			partner.TotalTradeVolume = a.volume
			partner.TotalCommissionsPaid = a.volume * b.CommissionRate
			if partner.NumReferredClients > 0 {
				partner.AvgCommission = partner.TotalCommissionsPaid / float64(partner.NumReferredClients)
			}
		}
		if master, ok := accounts[account]; ok {
			partner.BankID = master.BankID
			partner.BankName = master.BankName
			partner.EntityName = master.EntityName
		}
		partners = append(partners, partner)
	}
	return partners
}

// BuildClients builds one row per distinct (sender, partner) pair found in
// the filtered ledger, ordered by (sender account, receiver account) so
// client ids are stable.
func (b *Builder) BuildClients(
	filtered []schema.LedgerTransaction,
	partners []schema.Partner,
	accounts map[string]schema.Account,
	lookups fraudLookups,
) []schema.Client {
	partnerByAccount := make(map[string]string, len(partners))
	for _, p := range partners {
		partnerByAccount[p.AccountNumber] = p.PartnerID
	}

	type pair struct{ sender, receiver string }
	type agg struct {
		trades int
		volume float64
	}
	aggs := make(map[pair]*agg)
	for _, tx := range filtered {
		key := pair{tx.FromAccount, tx.ToAccount}
		a, ok := aggs[key]
		if !ok {
			a = &agg{}
			aggs[key] = a
		}
		a.trades++
		a.volume += tx.AmountPaid
	}

	pairs := make([]pair, 0, len(aggs))
	for key := range aggs {
		pairs = append(pairs, key)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].sender != pairs[j].sender {
			return pairs[i].sender < pairs[j].sender
		}
		return pairs[i].receiver < pairs[j].receiver
	})

	clients := make([]schema.Client, 0, len(pairs))
	for i, key := range pairs {
		a := aggs[key]
		client := schema.Client{
			ClientID:      fmt.Sprintf("C_%06d", i+1),
			AccountNumber: key.sender,
			PartnerID:     partnerByAccount[key.receiver],
			NumTrades:     a.trades,
			TotalVolume:   a.volume,
			IsInFraudRing: lookups.isFraud(key.sender),
		}
		if master, ok := accounts[key.sender]; ok {
			client.BankID = master.BankID
			client.BankName = master.BankName
			client.EntityName = master.EntityName
		}
		clients = append(clients, client)
	}
	return clients
}

// BuildTrades builds one trade per filtered ledger row. Each client draws
// its instruments from a per-client pool so an account trades a habitual
// set of instruments across reruns; volume stays the ledger amount and the
// fraud flag mirrors the ledger's laundering flag.
func (b *Builder) BuildTrades(
	filtered []schema.LedgerTransaction,
	clients []schema.Client,
	partners []schema.Partner,
) []schema.Trade {
	partnerByAccount := make(map[string]string, len(partners))
	for _, p := range partners {
		partnerByAccount[p.AccountNumber] = p.PartnerID
	}

	type pair struct{ sender, partnerID string }
	clientByPair := make(map[pair]string, len(clients))
	for _, c := range clients {
		clientByPair[pair{c.AccountNumber, c.PartnerID}] = c.ClientID
	}

	// Per-client instrument pools, keyed off first-seen client order.
	var clientOrder []string
	seen := make(map[string]bool)
	clientIDs := make([]string, len(filtered))
	for i, tx := range filtered {
		clientID := clientByPair[pair{tx.FromAccount, partnerByAccount[tx.ToAccount]}]
		clientIDs[i] = clientID
		if clientID != "" && !seen[clientID] {
			seen[clientID] = true
			clientOrder = append(clientOrder, clientID)
		}
	}
	pools := assignInstrumentPools(clientOrder, b.Instruments, b.Seed)

	rng := rand.New(rand.NewSource(b.Seed))
	trades := make([]schema.Trade, 0, len(filtered))
	for i, tx := range filtered {
		pool := pools[clientIDs[i]]
		if len(pool) == 0 {
			pool = b.Instruments
		}
		instrument := pool[rng.Intn(len(pool))]
		direction := schema.DirectionBuy
		if rng.Intn(2) == 1 {
			direction = schema.DirectionSell
		}

		trades = append(trades, schema.Trade{
			TradeID:      fmt.Sprintf("T_%07d", i+1),
			Timestamp:    tx.Timestamp,
			ClientID:     clientIDs[i],
			PartnerID:    partnerByAccount[tx.ToAccount],
			Instrument:   instrument,
			Direction:    direction,
			TradeVolume:  tx.AmountPaid,
			Currency:     tx.PaymentCurrency,
			IsFraudulent: tx.IsLaundering,
		})
	}
	return trades
}

// BuildCommissions builds exactly one commission per trade: timestamp
// delayed by the configured lag, amount = volume x rate. This is the
// baseline invariant injection must preserve after mutating trades.
func (b *Builder) BuildCommissions(trades []schema.Trade) []schema.Commission {
	commissions := make([]schema.Commission, 0, len(trades))
	for i, trade := range trades {
		commissions = append(commissions, schema.Commission{
			CommissionID:     fmt.Sprintf("CM_%07d", i+1),
			Timestamp:        trade.Timestamp.Add(b.CommissionDelay),
			ClientID:         trade.ClientID,
			PartnerID:        trade.PartnerID,
			TradeID:          trade.TradeID,
			CommissionAmount: trade.TradeVolume * b.CommissionRate,
			Currency:         trade.Currency,
			IsFraudulent:     trade.IsFraudulent,
		})
	}
	return commissions
}

// BuildReferrals rebuilds the aggregate partner->client edges from the
// current trades table. It is always a full rebuild so the table can never
// drift from trades.
func BuildReferrals(trades []schema.Trade, commissionRate float64) []schema.Referral {
	type pair struct{ partnerID, clientID string }
	aggs := make(map[pair]*schema.Referral)
	for _, trade := range trades {
		key := pair{trade.PartnerID, trade.ClientID}
		ref, ok := aggs[key]
		if !ok {
			ref = &schema.Referral{
				PartnerID:      trade.PartnerID,
				ClientID:       trade.ClientID,
				FirstTradeDate: trade.Timestamp,
				LastTradeDate:  trade.Timestamp,
			}
			aggs[key] = ref
		}
		if trade.Timestamp.Before(ref.FirstTradeDate) {
			ref.FirstTradeDate = trade.Timestamp
		}
		if trade.Timestamp.After(ref.LastTradeDate) {
			ref.LastTradeDate = trade.Timestamp
		}
		ref.NumTrades++
		ref.TotalVolume += trade.TradeVolume
	}

	pairs := make([]pair, 0, len(aggs))
	for key := range aggs {
		pairs = append(pairs, key)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].partnerID != pairs[j].partnerID {
			return pairs[i].partnerID < pairs[j].partnerID
		}
		return pairs[i].clientID < pairs[j].clientID
	})

	referrals := make([]schema.Referral, 0, len(pairs))
	for _, key := range pairs {
		ref := aggs[key]
		ref.TotalCommissions = ref.TotalVolume * commissionRate
		referrals = append(referrals, *ref)
	}
	return referrals
}
