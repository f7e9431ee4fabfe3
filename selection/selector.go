// Package selection picks the bounded set of receiver accounts promoted to
// partners. Pure top-fan-in selection would be dominated by legitimate
// high-volume hubs (banks) and starve the dataset of fraud examples, so a
// fixed fraction of the slots is reserved for known ring hub accounts.
package selection

import (
	"sort"

	"github.com/quantfoundry/affiliate-fraud-pipeline/schema"
)

// Result is the outcome of partner selection. Accounts lists every selected
// partner account, fraud-selected hubs first and then the legitimate fill,
// each in rank order, so downstream partner_id assignment is reproducible.
type Result struct {
	Accounts   []string
	FraudHubs  map[string]bool
	InDegree   map[string]int
	NumFraud   int
	NumLegit   int
	PartnerCap int
}

// SelectPartners ranks receiver accounts by in-degree (number of distinct
// counterpart senders) and fills floor(cap*fraudQuota) slots from ring hub
// accounts that actually appear as receivers, then the remainder from
// non-hub receivers. Ties rank by account id ascending. If fewer hubs exist
// than the quota, the legitimate fill absorbs the slack.
func SelectPartners(transactions []schema.LedgerTransaction, catalogue []schema.Ring, topN int, fraudQuota float64) Result {
	inDegree := computeInDegree(transactions)

	hubs := make(map[string]bool)
	for _, ring := range catalogue {
		if ring.HubAccount != "" {
			hubs[ring.HubAccount] = true
		}
	}

	var hubCandidates, legitCandidates []string
	for account := range inDegree {
		if hubs[account] {
			hubCandidates = append(hubCandidates, account)
		} else {
			legitCandidates = append(legitCandidates, account)
		}
	}
	rankByDegree(hubCandidates, inDegree)
	rankByDegree(legitCandidates, inDegree)

	fraudSlots := int(float64(topN) * fraudQuota)
	if fraudSlots > len(hubCandidates) {
		fraudSlots = len(hubCandidates)
	}
	selectedFraud := hubCandidates[:fraudSlots]

	legitSlots := topN - len(selectedFraud)
	if legitSlots > len(legitCandidates) {
		legitSlots = len(legitCandidates)
	}
	selectedLegit := legitCandidates[:legitSlots]

	accounts := make([]string, 0, len(selectedFraud)+len(selectedLegit))
	accounts = append(accounts, selectedFraud...)
	accounts = append(accounts, selectedLegit...)

	fraudHubs := make(map[string]bool, len(selectedFraud))
	for _, account := range selectedFraud {
		fraudHubs[account] = true
	}

	return Result{
		Accounts:   accounts,
		FraudHubs:  fraudHubs,
		InDegree:   inDegree,
		NumFraud:   len(selectedFraud),
		NumLegit:   len(selectedLegit),
		PartnerCap: topN,
	}
}

// computeInDegree counts distinct senders per receiver account.
func computeInDegree(transactions []schema.LedgerTransaction) map[string]int {
	senders := make(map[string]map[string]bool)
	for _, tx := range transactions {
		set, ok := senders[tx.ToAccount]
		if !ok {
			set = make(map[string]bool)
			senders[tx.ToAccount] = set
		}
		set[tx.FromAccount] = true
	}

	inDegree := make(map[string]int, len(senders))
	for receiver, set := range senders {
		inDegree[receiver] = len(set)
	}
	return inDegree
}

func rankByDegree(accounts []string, inDegree map[string]int) {
	sort.Slice(accounts, func(i, j int) bool {
		if inDegree[accounts[i]] != inDegree[accounts[j]] {
			return inDegree[accounts[i]] > inDegree[accounts[j]]
		}
		return accounts[i] < accounts[j]
	})
}

// FilterToPartners keeps only ledger rows whose receiver is a selected
// partner account, preserving order.
func FilterToPartners(transactions []schema.LedgerTransaction, accounts []string) []schema.LedgerTransaction {
	selected := make(map[string]bool, len(accounts))
	for _, account := range accounts {
		selected[account] = true
	}

	var filtered []schema.LedgerTransaction
	for _, tx := range transactions {
		if selected[tx.ToAccount] {
			filtered = append(filtered, tx)
		}
	}
	return filtered
}
