// Package rings extracts fraud ring records from the semi-structured
// laundering-scheme report that accompanies the raw transaction ledger.
package rings

import (
	"bufio"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/quantfoundry/affiliate-fraud-pipeline/schema"
)

var (
	beginRe = regexp.MustCompile(`^BEGIN LAUNDERING ATTEMPT - ([^:]+)(?::\s*(.*))?$`)
	endRe   = regexp.MustCompile(`^END LAUNDERING ATTEMPT`)
)

// accumulator holds the one ring currently being assembled. The parser is a
// two-state machine: outside-ring (accumulator nil) and inside-ring.
type accumulator struct {
	patternType  string
	description  string
	transactions []schema.RingTransaction
	accountSeen  map[string]bool
	accountOrder []string
}

func (a *accumulator) addAccount(account string) {
	if !a.accountSeen[account] {
		a.accountSeen[account] = true
		a.accountOrder = append(a.accountOrder, account)
	}
}

// Parse reads a laundering-scheme report and returns the rings in emission
// order, ring_id assigned as the 0-based position. Malformed transaction
// lines inside a block are discarded silently; a BEGIN while a ring is
// already open starts a new accumulator and drops the partial ring.
func Parse(r io.Reader) ([]schema.Ring, error) {
	var result []schema.Ring
	var current *accumulator

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if m := beginRe.FindStringSubmatch(line); m != nil {
			current = &accumulator{
				patternType: strings.TrimSpace(m[1]),
				description: strings.TrimSpace(m[2]),
				accountSeen: make(map[string]bool),
			}
			continue
		}

		if endRe.MatchString(line) {
			if current != nil {
				result = append(result, current.finish(len(result)))
			}
			current = nil
			continue
		}

		if current != nil {
			if tx, ok := parseTransactionLine(line); ok {
				current.transactions = append(current.transactions, tx)
				current.addAccount(tx.FromAccount)
				current.addAccount(tx.ToAccount)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// parseTransactionLine parses a candidate transaction record. Lines that do
// not split into exactly 11 comma-separated fields are rejected.
func parseTransactionLine(line string) (schema.RingTransaction, bool) {
	parts := strings.Split(line, ",")
	if len(parts) != schema.LedgerColumns {
		return schema.RingTransaction{}, false
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	amountReceived, err := strconv.ParseFloat(parts[5], 64)
	if err != nil {
		return schema.RingTransaction{}, false
	}
	amountPaid, err := strconv.ParseFloat(parts[7], 64)
	if err != nil {
		return schema.RingTransaction{}, false
	}
	isLaundering, err := strconv.Atoi(parts[10])
	if err != nil {
		return schema.RingTransaction{}, false
	}

	return schema.RingTransaction{
		Timestamp:         parts[0],
		FromBank:          parts[1],
		FromAccount:       parts[2],
		ToBank:            parts[3],
		ToAccount:         parts[4],
		AmountReceived:    amountReceived,
		ReceivingCurrency: parts[6],
		AmountPaid:        amountPaid,
		PaymentCurrency:   parts[8],
		PaymentFormat:     parts[9],
		IsLaundering:      isLaundering,
	}, true
}

// finish seals the accumulator into a Ring.
func (a *accumulator) finish(ringID int) schema.Ring {
	accounts := make([]string, len(a.accountOrder))
	copy(accounts, a.accountOrder)
	sort.Strings(accounts)

	ring := schema.Ring{
		RingID:          ringID,
		PatternType:     a.patternType,
		Description:     a.description,
		Transactions:    a.transactions,
		Accounts:        accounts,
		HubAccount:      findHub(a.transactions),
		NumTransactions: len(a.transactions),
		TemporalSpan:    []string{},
	}
	if ring.Transactions == nil {
		ring.Transactions = []schema.RingTransaction{}
	}

	if len(a.transactions) > 0 {
		minTS, maxTS := a.transactions[0].Timestamp, a.transactions[0].Timestamp
		for _, tx := range a.transactions[1:] {
			if tx.Timestamp < minTS {
				minTS = tx.Timestamp
			}
			if tx.Timestamp > maxTS {
				maxTS = tx.Timestamp
			}
		}
		ring.TemporalSpan = []string{minTS, maxTS}
	}
	return ring
}

// findHub returns the account with the highest combined send+receive count
// across the ring's transactions. Ties go to the account encountered first;
// a ring with no transactions has no hub.
func findHub(transactions []schema.RingTransaction) string {
	counts := make(map[string]int)
	var order []string
	bump := func(account string) {
		if _, seen := counts[account]; !seen {
			order = append(order, account)
		}
		counts[account]++
	}
	for _, tx := range transactions {
		bump(tx.FromAccount)
		bump(tx.ToAccount)
	}

	hub := ""
	best := 0
	for _, account := range order {
		if counts[account] > best {
			best = counts[account]
			hub = account
		}
	}
	return hub
}
