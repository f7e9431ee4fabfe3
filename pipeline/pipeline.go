// Package pipeline sequences the batch stages: parse the fraud-scheme
// report, derive the relational tables, inject the synthetic fraud
// patterns, export the graph-ingestion variant and audit the result. Each
// stage fully reads its inputs from durable storage and writes its own
// output before the next stage starts; a missing upstream artifact aborts
// the stage with a diagnostic naming the file.
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantfoundry/affiliate-fraud-pipeline/config"
	"github.com/quantfoundry/affiliate-fraud-pipeline/export"
	"github.com/quantfoundry/affiliate-fraud-pipeline/inject"
	"github.com/quantfoundry/affiliate-fraud-pipeline/ledger"
	"github.com/quantfoundry/affiliate-fraud-pipeline/rings"
	"github.com/quantfoundry/affiliate-fraud-pipeline/selection"
	"github.com/quantfoundry/affiliate-fraud-pipeline/store"
	"github.com/quantfoundry/affiliate-fraud-pipeline/transform"
	"github.com/quantfoundry/affiliate-fraud-pipeline/validate"
)

// Pipeline drives the sequential batch stages.
type Pipeline struct {
	cfg *config.Config
	log zerolog.Logger
}

// New creates a pipeline with a run-scoped logger.
func New(cfg *config.Config, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		cfg: cfg,
		log: logger.With().Str("run_id", uuid.NewString()).Logger(),
	}
}

// ParsePatterns parses the laundering-scheme report into the ring
// catalogue and persists it as the ground-truth fraud record.
func (p *Pipeline) ParsePatterns() error {
	catalogue, err := rings.ParseFile(p.cfg.PatternsPath())
	if err != nil {
		return err
	}

	path, err := rings.Save(p.cfg.Paths.TransformedDir, catalogue)
	if err != nil {
		return err
	}

	byType := make(map[string]int)
	for _, ring := range catalogue {
		byType[ring.PatternType]++
	}
	p.log.Info().
		Int("rings", len(catalogue)).
		Interface("pattern_types", byType).
		Str("path", path).
		Msg("parsed fraud rings")
	return nil
}

// Transform loads the raw ledger, selects partners under the fraud quota
// and builds the five linked tables.
func (p *Pipeline) Transform() error {
	catalogue, err := rings.Load(p.cfg.Paths.TransformedDir)
	if err != nil {
		return err
	}

	transactions, err := ledger.LoadTransactions(p.cfg.TransactionsPath())
	if err != nil {
		return err
	}
	transactions = ledger.Sample(transactions, p.cfg.Sampling.SampleTransactions, p.cfg.Seed)

	fraudRows := 0
	for _, tx := range transactions {
		if tx.IsLaundering {
			fraudRows++
		}
	}
	p.log.Info().
		Int("transactions", len(transactions)).
		Int("fraud_rows", fraudRows).
		Msg("loaded transactions, all fraud rows kept")

	accounts, err := ledger.LoadAccounts(p.cfg.AccountsPath())
	if err != nil {
		return err
	}

	selected := selection.SelectPartners(
		transactions, catalogue, p.cfg.Selection.PartnerCap, p.cfg.Selection.FraudQuota)
	p.log.Info().
		Int("partners", len(selected.Accounts)).
		Int("fraud_hubs", selected.NumFraud).
		Msg("selected partners")

	filtered := selection.FilterToPartners(transactions, selected.Accounts)
	p.log.Info().Int("filtered", len(filtered)).Msg("filtered to partner-related transactions")

	builder := &transform.Builder{
		CommissionRate:  p.cfg.Commission.Rate,
		CommissionDelay: p.cfg.CommissionDelay(),
		Instruments:     p.cfg.Instruments,
		Seed:            p.cfg.Seed,
	}
	tables := builder.Build(filtered, selected.Accounts, accounts, catalogue)

	fraudPartners := 0
	for _, partner := range tables.Partners {
		if partner.IsFraudulent {
			fraudPartners++
		}
	}

	dir := p.cfg.Paths.TransformedDir
	if _, err := store.WritePartners(dir, tables.Partners); err != nil {
		return err
	}
	if _, err := store.WriteClients(dir, tables.Clients); err != nil {
		return err
	}
	if _, err := store.WriteTrades(dir, tables.Trades); err != nil {
		return err
	}
	if _, err := store.WriteCommissions(dir, tables.Commissions); err != nil {
		return err
	}
	if _, err := store.WriteReferrals(dir, tables.Referrals); err != nil {
		return err
	}

	p.log.Info().
		Int("partners", len(tables.Partners)).
		Int("fraud_partners", fraudPartners).
		Int("clients", len(tables.Clients)).
		Int("trades", len(tables.Trades)).
		Int("commissions", len(tables.Commissions)).
		Int("referrals", len(tables.Referrals)).
		Msg("built tables")
	return nil
}

// Inject mutates the trades table with the two synthetic fraud signatures,
// resynchronizes commissions and rebuilds referrals from the result.
func (p *Pipeline) Inject() error {
	dir := p.cfg.Paths.TransformedDir

	trades, err := store.ReadTrades(dir)
	if err != nil {
		return err
	}
	partners, err := store.ReadPartners(dir)
	if err != nil {
		return err
	}
	commissions, err := store.ReadCommissions(dir)
	if err != nil {
		return err
	}

	injector := &inject.Injector{
		OppositeProbability: p.cfg.Injection.OppositeTradeProbability,
		MaxOffsetSeconds:    p.cfg.Injection.OppositeMaxOffsetSeconds,
		BonusFraction:       p.cfg.Injection.BonusAbuseFraction,
		BonusDeposit:        p.cfg.Injection.BonusAbuseDeposit,
		BonusWithdrawDelay:  p.cfg.BonusWithdrawDelay(),
		BonusBase:           p.cfg.BonusBase(),
		CommissionRate:      p.cfg.Commission.Rate,
		Seed:                p.cfg.Seed,
	}
	trades, withdrawals, stats := injector.Run(trades, partners, commissions)

	if _, err := store.WriteTrades(dir, trades); err != nil {
		return err
	}
	if _, err := store.WriteWithdrawals(dir, withdrawals); err != nil {
		return err
	}
	if _, err := store.WriteCommissions(dir, commissions); err != nil {
		return err
	}

	// Referrals are never patched incrementally; a full rebuild from the
	// post-injection trades keeps them from drifting.
	referrals := transform.BuildReferrals(trades, p.cfg.Commission.Rate)
	if _, err := store.WriteReferrals(dir, referrals); err != nil {
		return err
	}

	p.log.Info().
		Int("opposite_trades", stats.OppositeRewritten).
		Int("bonus_trades", stats.BonusTrades).
		Int("withdrawals", stats.Withdrawals).
		Int("commissions_resynced", stats.CommissionsResynced).
		Int("referrals", len(referrals)).
		Msg("injected fraud patterns")
	return nil
}

// Export writes the graph-ingestion variant of the tables.
func (p *Pipeline) Export() error {
	result, err := export.Run(p.cfg.Paths.TransformedDir, p.cfg.Paths.ExportDir)
	if err != nil {
		return err
	}
	p.log.Info().
		Str("accounts", result.Accounts).
		Str("trades", result.Trades).
		Str("commissions", result.Commissions).
		Str("referrals", result.Referrals).
		Msg("exported graph schema")
	return nil
}

// Validate audits the finished output and returns the findings. Findings
// are reported, never raised.
func (p *Pipeline) Validate(ctx context.Context) ([]string, error) {
	auditor := &validate.Auditor{
		TransformedDir: p.cfg.Paths.TransformedDir,
		CommissionRate: p.cfg.Commission.Rate,
	}
	findings, err := auditor.Run(ctx)
	if err != nil {
		return nil, err
	}

	if len(findings) == 0 {
		p.log.Info().Msg("all integrity checks passed")
	}
	for _, finding := range findings {
		p.log.Warn().Str("finding", finding).Msg("integrity violation")
	}
	return findings, nil
}

// RunAll executes every stage in order.
func (p *Pipeline) RunAll(ctx context.Context) error {
	stages := []struct {
		name string
		run  func() error
	}{
		{"parse", p.ParsePatterns},
		{"transform", p.Transform},
		{"inject", p.Inject},
		{"export", p.Export},
	}
	for i, stage := range stages {
		p.log.Info().Str("stage", stage.name).Msgf("stage %d/%d", i+1, len(stages)+1)
		if err := stage.run(); err != nil {
			return fmt.Errorf("%s stage failed: %w", stage.name, err)
		}
	}

	p.log.Info().Str("stage", "validate").Msgf("stage %d/%d", len(stages)+1, len(stages)+1)
	if _, err := p.Validate(ctx); err != nil {
		return fmt.Errorf("validate stage failed: %w", err)
	}
	return nil
}
