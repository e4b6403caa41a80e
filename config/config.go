/*
Package config loads the engine configuration from YAML or TOML.

PURPOSE:
  One file drives the CLI and the service: which store to open, the
  accrual cutoff day, the default lock-in, the statutory tax tables, the
  scheduler interval and the log settings. Every field has a default, so
  an empty file (or no file) yields a working configuration.

EXAMPLE (YAML):
  database:
    driver: sqlite
    dsn: investment.db
  accrual:
    cutoff_day: 12
  tax:
    vat_rate: "0.075"
    pit_brackets:
      - {up_to: "300000", rate: "0.07"}
      - {rate: "0.24"}
  scheduler:
    interval: 1h
  log:
    level: info
    format: json

SEE ALSO:
  - tax/config.go: The statutory tables this converts into
  - logger.go: slog construction from the log section
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/investment-engine/generic"
	"github.com/warp/investment-engine/tax"
)

// =============================================================================
// CONFIG TYPES
// =============================================================================

type Config struct {
	Database   DatabaseConfig   `yaml:"database" toml:"database"`
	Accrual    AccrualConfig    `yaml:"accrual" toml:"accrual"`
	Withdrawal WithdrawalConfig `yaml:"withdrawal" toml:"withdrawal"`
	Tax        TaxConfig        `yaml:"tax" toml:"tax"`
	Scheduler  SchedulerConfig  `yaml:"scheduler" toml:"scheduler"`
	Log        LogConfig        `yaml:"log" toml:"log"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"` // sqlite | postgres | memory
	DSN    string `yaml:"dsn" toml:"dsn"`
}

type AccrualConfig struct {
	CutoffDay int `yaml:"cutoff_day" toml:"cutoff_day"`
}

type WithdrawalConfig struct {
	DefaultMinMonths int `yaml:"default_min_months" toml:"default_min_months"`
}

type BracketConfig struct {
	UpTo *decimal.Decimal `yaml:"up_to,omitempty" toml:"up_to,omitempty"` // nil on the top band
	Rate decimal.Decimal  `yaml:"rate" toml:"rate"`
}

type TaxConfig struct {
	WHTRates    map[string]decimal.Decimal `yaml:"wht_rates" toml:"wht_rates"`
	PITBrackets []BracketConfig            `yaml:"pit_brackets" toml:"pit_brackets"`

	CGTRate decimal.Decimal `yaml:"cgt_rate" toml:"cgt_rate"`
	VATRate decimal.Decimal `yaml:"vat_rate" toml:"vat_rate"`

	TETRate              decimal.Decimal `yaml:"tet_rate" toml:"tet_rate"`
	TETTurnoverThreshold decimal.Decimal `yaml:"tet_turnover_threshold" toml:"tet_turnover_threshold"`

	CITSmallRate              decimal.Decimal `yaml:"cit_small_rate" toml:"cit_small_rate"`
	CITStandardRate           decimal.Decimal `yaml:"cit_standard_rate" toml:"cit_standard_rate"`
	CITSmallTurnoverThreshold decimal.Decimal `yaml:"cit_small_turnover_threshold" toml:"cit_small_turnover_threshold"`
}

type SchedulerConfig struct {
	Interval time.Duration `yaml:"interval" toml:"interval"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug | info | warn | error
	Format string `yaml:"format" toml:"format"` // json | text
}

// =============================================================================
// DEFAULTS
// =============================================================================

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	DefaultCutoffDay = 12
	DefaultInterval  = time.Hour
)

// Default returns the statutory configuration backed by a local SQLite file.
func Default() *Config {
	return &Config{
		Database:   DatabaseConfig{Driver: DriverSQLite, DSN: "investment.db"},
		Accrual:    AccrualConfig{CutoffDay: DefaultCutoffDay},
		Withdrawal: WithdrawalConfig{DefaultMinMonths: generic.DefaultMinWithdrawalMonths},
		Tax:        taxFrom(tax.DefaultConfig()),
		Scheduler:  SchedulerConfig{Interval: DefaultInterval},
		Log:        LogConfig{Level: "info", Format: "json"},
	}
}

func taxFrom(tc tax.Config) TaxConfig {
	out := TaxConfig{
		WHTRates:                  make(map[string]decimal.Decimal, len(tc.WHTRates)),
		CGTRate:                   tc.CGTRate,
		VATRate:                   tc.VATRate,
		TETRate:                   tc.TETRate,
		TETTurnoverThreshold:      tc.TETTurnoverThreshold,
		CITSmallRate:              tc.CITSmallRate,
		CITStandardRate:           tc.CITStandardRate,
		CITSmallTurnoverThreshold: tc.CITSmallTurnoverThreshold,
	}
	for cat, r := range tc.WHTRates {
		out.WHTRates[string(cat)] = r
	}
	for _, b := range tc.PITBrackets {
		bc := BracketConfig{Rate: b.Rate}
		if b.UpTo.Valid {
			up := b.UpTo.Decimal
			bc.UpTo = &up
		}
		out.PITBrackets = append(out.PITBrackets, bc)
	}
	return out
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads path over the defaults. The format follows the extension:
// .toml is TOML, anything else is YAML. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	if err := cfg.decode(filepath.Ext(path), data); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Parse decodes data of the given format ("yaml" or "toml") over the defaults.
func Parse(format string, data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode("."+format, data); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) decode(ext string, data []byte) error {
	// A bracket list in the file replaces the default table whole.
	brackets := c.Tax.PITBrackets
	c.Tax.PITBrackets = nil
	defer func() {
		if c.Tax.PITBrackets == nil {
			c.Tax.PITBrackets = brackets
		}
	}()

	switch strings.ToLower(ext) {
	case ".toml":
		if err := toml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse TOML: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %s", c.Database.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("database.driver %q is not one of sqlite, postgres, memory", c.Database.Driver)
	}
	if c.Accrual.CutoffDay < 1 || c.Accrual.CutoffDay > 28 {
		return fmt.Errorf("accrual.cutoff_day %d must be between 1 and 28", c.Accrual.CutoffDay)
	}
	if c.Withdrawal.DefaultMinMonths < 0 {
		return fmt.Errorf("withdrawal.default_min_months must not be negative")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("log.format %q must be json or text", c.Log.Format)
	}
	for cat := range c.Tax.WHTRates {
		if !tax.Category(strings.ToUpper(cat)).Valid() {
			return fmt.Errorf("tax.wht_rates: unknown category %s", cat)
		}
	}
	if err := c.TaxConfig().Validate(); err != nil {
		return fmt.Errorf("tax: %w", err)
	}
	return nil
}

// TaxConfig converts the tax section into calculator tables.
func (c *Config) TaxConfig() tax.Config {
	out := tax.Config{
		WHTRates:                  make(map[tax.Category]decimal.Decimal, len(c.Tax.WHTRates)),
		CGTRate:                   c.Tax.CGTRate,
		VATRate:                   c.Tax.VATRate,
		TETRate:                   c.Tax.TETRate,
		TETTurnoverThreshold:      c.Tax.TETTurnoverThreshold,
		CITSmallRate:              c.Tax.CITSmallRate,
		CITStandardRate:           c.Tax.CITStandardRate,
		CITSmallTurnoverThreshold: c.Tax.CITSmallTurnoverThreshold,
	}
	for cat, r := range c.Tax.WHTRates {
		out.WHTRates[tax.Category(strings.ToUpper(cat))] = r
	}
	for _, b := range c.Tax.PITBrackets {
		br := tax.Bracket{Rate: b.Rate}
		if b.UpTo != nil {
			br.UpTo = decimal.NewNullDecimal(*b.UpTo)
		}
		out.PITBrackets = append(out.PITBrackets, br)
	}
	return out
}
