package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the pipeline.
type Config struct {
	Paths      PathsConfig      `yaml:"paths"`
	Sampling   SamplingConfig   `yaml:"sampling"`
	Selection  SelectionConfig  `yaml:"selection"`
	Commission CommissionConfig `yaml:"commission"`
	Injection  InjectionConfig  `yaml:"injection"`

	// Instruments is the fixed pool synthetic trades draw from.
	Instruments []string `yaml:"instruments"`

	// Seed drives every randomized decision in the pipeline. Two runs with
	// the same seed and input data produce byte-identical tables.
	Seed int64 `yaml:"seed"`

	LogLevel string `yaml:"log_level"`
}

// PathsConfig locates the raw inputs and the stage output directories.
type PathsConfig struct {
	RawDataDir       string `yaml:"raw_data_dir"`
	TransformedDir   string `yaml:"transformed_dir"`
	ExportDir        string `yaml:"export_dir"`
	TransactionsFile string `yaml:"transactions_file"`
	AccountsFile     string `yaml:"accounts_file"`
	PatternsFile     string `yaml:"patterns_file"`
}

// SamplingConfig controls raw ledger subsampling.
type SamplingConfig struct {
	// SampleTransactions is the target row count after subsampling.
	// Zero or negative disables sampling. All laundering-flagged rows are
	// always kept; only legitimate rows are sampled away.
	SampleTransactions int `yaml:"sample_transactions"`
}

// SelectionConfig controls partner selection.
type SelectionConfig struct {
	PartnerCap int `yaml:"partner_cap"`
	// FraudQuota is the fraction of partner slots reserved for ring hub
	// accounts.
	FraudQuota float64 `yaml:"fraud_quota"`
}

// CommissionConfig controls commission derivation.
type CommissionConfig struct {
	Rate         float64 `yaml:"rate"`
	DelayMinutes int     `yaml:"delay_minutes"`
}

// InjectionConfig controls the two synthetic fraud patterns.
type InjectionConfig struct {
	OppositeTradeProbability float64 `yaml:"opposite_trade_probability"`
	OppositeMaxOffsetSeconds int     `yaml:"opposite_max_offset_seconds"`
	BonusAbuseFraction       float64 `yaml:"bonus_abuse_fraction"`
	BonusAbuseDeposit        float64 `yaml:"bonus_abuse_deposit"`
	BonusWithdrawDelayHours  int     `yaml:"bonus_withdraw_delay_hours"`
	// BonusBaseDate anchors the coordinated deposit windows (YYYY-MM-DD).
	BonusBaseDate string `yaml:"bonus_base_date"`
}

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			RawDataDir:       "data/raw",
			TransformedDir:   "data/transformed",
			ExportDir:        "data/export",
			TransactionsFile: "HI-Small_Trans.csv",
			AccountsFile:     "HI-Small_accounts.csv",
			PatternsFile:     "HI-Small_Patterns.txt",
		},
		Sampling: SamplingConfig{
			SampleTransactions: 500000,
		},
		Selection: SelectionConfig{
			PartnerCap: 200,
			FraudQuota: 0.20,
		},
		Commission: CommissionConfig{
			Rate:         0.05,
			DelayMinutes: 60,
		},
		Injection: InjectionConfig{
			OppositeTradeProbability: 0.40,
			OppositeMaxOffsetSeconds: 60,
			BonusAbuseFraction:       0.30,
			BonusAbuseDeposit:        50.0,
			BonusWithdrawDelayHours:  24,
			BonusBaseDate:            "2022-09-01",
		},
		Instruments: []string{"EURUSD", "GBPJPY", "BTCUSD", "XAUUSD", "US100", "AUDCAD", "USDJPY"},
		Seed:        42,
		LogLevel:    "info",
	}
}

// LoadConfig loads configuration from a YAML file on top of the defaults.
// An empty path returns the defaults unchanged.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Selection.PartnerCap <= 0 {
		return fmt.Errorf("selection.partner_cap must be positive")
	}
	if c.Selection.FraudQuota < 0 || c.Selection.FraudQuota > 1 {
		return fmt.Errorf("selection.fraud_quota must be in [0, 1]")
	}
	if c.Commission.Rate <= 0 {
		return fmt.Errorf("commission.rate must be positive")
	}
	if c.Commission.DelayMinutes < 0 {
		return fmt.Errorf("commission.delay_minutes must not be negative")
	}
	if c.Injection.OppositeTradeProbability < 0 || c.Injection.OppositeTradeProbability > 1 {
		return fmt.Errorf("injection.opposite_trade_probability must be in [0, 1]")
	}
	if c.Injection.OppositeMaxOffsetSeconds <= 0 {
		return fmt.Errorf("injection.opposite_max_offset_seconds must be positive")
	}
	if c.Injection.BonusAbuseFraction < 0 || c.Injection.BonusAbuseFraction > 1 {
		return fmt.Errorf("injection.bonus_abuse_fraction must be in [0, 1]")
	}
	if c.Injection.BonusAbuseDeposit <= 0 {
		return fmt.Errorf("injection.bonus_abuse_deposit must be positive")
	}
	if _, err := time.Parse("2006-01-02", c.Injection.BonusBaseDate); err != nil {
		return fmt.Errorf("injection.bonus_base_date must be YYYY-MM-DD: %w", err)
	}
	if len(c.Instruments) == 0 {
		return fmt.Errorf("instruments must not be empty")
	}
	return nil
}

// CommissionDelay returns the trade-to-commission delay as a Duration.
func (c *Config) CommissionDelay() time.Duration {
	return time.Duration(c.Commission.DelayMinutes) * time.Minute
}

// BonusWithdrawDelay returns the deposit-to-withdrawal delay as a Duration.
func (c *Config) BonusWithdrawDelay() time.Duration {
	return time.Duration(c.Injection.BonusWithdrawDelayHours) * time.Hour
}

// BonusBase returns the parsed bonus window anchor date.
func (c *Config) BonusBase() time.Time {
	t, _ := time.Parse("2006-01-02", c.Injection.BonusBaseDate)
	return t
}

// TransactionsPath returns the full path of the raw transaction ledger.
func (c *Config) TransactionsPath() string {
	return filepath.Join(c.Paths.RawDataDir, c.Paths.TransactionsFile)
}

// AccountsPath returns the full path of the account master table.
func (c *Config) AccountsPath() string {
	return filepath.Join(c.Paths.RawDataDir, c.Paths.AccountsFile)
}

// PatternsPath returns the full path of the fraud-scheme report.
func (c *Config) PatternsPath() string {
	return filepath.Join(c.Paths.RawDataDir, c.Paths.PatternsFile)
}
