package main

import (
	"github.com/spf13/cobra"

	"github.com/quantfoundry/affiliate-fraud-pipeline/config"
	"github.com/quantfoundry/affiliate-fraud-pipeline/logging"
	"github.com/quantfoundry/affiliate-fraud-pipeline/pipeline"
)

var (
	configPath  string
	seed        int64
	sample      int
	topPartners int
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "affiliate-fraud-pipeline",
		Short:   "Transforms a raw AML transaction ledger into a synthetic affiliate-fraud dataset",
		Version: version,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	rootCmd.PersistentFlags().Int64Var(&seed, "seed", -1, "random seed override")
	rootCmd.PersistentFlags().IntVar(&sample, "sample", -1, "transaction sample size override (0 = full dataset)")
	rootCmd.PersistentFlags().IntVar(&topPartners, "top-partners", -1, "partner cap override")

	rootCmd.AddCommand(
		stageCmd("run", "Run the full pipeline: parse, transform, inject, export, validate",
			func(p *pipeline.Pipeline, cmd *cobra.Command) error {
				return p.RunAll(cmd.Context())
			}),
		stageCmd("parse", "Parse the fraud-scheme report into the ring catalogue",
			func(p *pipeline.Pipeline, _ *cobra.Command) error { return p.ParsePatterns() }),
		stageCmd("transform", "Build the partner/client/trade/commission/referral tables",
			func(p *pipeline.Pipeline, _ *cobra.Command) error { return p.Transform() }),
		stageCmd("inject", "Inject the synthetic fraud patterns and resync aggregates",
			func(p *pipeline.Pipeline, _ *cobra.Command) error { return p.Inject() }),
		stageCmd("export", "Export the graph-ingestion table variant",
			func(p *pipeline.Pipeline, _ *cobra.Command) error { return p.Export() }),
		stageCmd("validate", "Audit the finished tables for integrity violations",
			func(p *pipeline.Pipeline, cmd *cobra.Command) error {
				_, err := p.Validate(cmd.Context())
				return err
			}),
	)
	return rootCmd
}

func stageCmd(use, short string, run func(*pipeline.Pipeline, *cobra.Command) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := logging.NewComponentLogger("affiliate-fraud-pipeline", cfg.LogLevel)
			return run(pipeline.New(cfg, logger), cmd)
		},
	}
}

// loadConfig loads the configuration file and applies any per-run flag
// overrides on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if seed >= 0 {
		cfg.Seed = seed
	}
	if sample >= 0 {
		cfg.Sampling.SampleTransactions = sample
	}
	if topPartners >= 0 {
		cfg.Selection.PartnerCap = topPartners
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
