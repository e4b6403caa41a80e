package config_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/investment-engine/config"
	"github.com/warp/investment-engine/generic"
	"github.com/warp/investment-engine/tax"
)

func TestDefault_IsValidAndStatutory(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 12, cfg.Accrual.CutoffDay)
	assert.Equal(t, 4, cfg.Withdrawal.DefaultMinMonths)
	assert.Equal(t, time.Hour, cfg.Scheduler.Interval)

	tc := cfg.TaxConfig()
	require.NoError(t, tc.Validate())
	assert.Equal(t, "0.1", tc.WHTRates[tax.CategoryInterest].String())
	assert.Len(t, tc.PITBrackets, 6)
	assert.False(t, tc.PITBrackets[5].UpTo.Valid)
}

func TestParse_YAMLOverridesDefaults(t *testing.T) {
	// GIVEN: YAML overriding a few fields
	// WHEN: Parsed
	// THEN: Overrides apply and everything else keeps its default

	cfg, err := config.Parse("yaml", []byte(`
database:
  driver: postgres
  dsn: postgres://localhost/invest
accrual:
  cutoff_day: 15
tax:
  vat_rate: "0.10"
  wht_rates:
    INTEREST: "0.15"
scheduler:
  interval: 30m
log:
  level: debug
  format: text
`))
	require.NoError(t, err)

	assert.Equal(t, config.DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 15, cfg.Accrual.CutoffDay)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, "0.1", cfg.Tax.VATRate.String())
	assert.Equal(t, "0.15", cfg.Tax.WHTRates["INTEREST"].String())
	assert.Equal(t, "0.05", cfg.Tax.WHTRates["COMMISSION"].String(), "untouched categories keep defaults")
	assert.Equal(t, 4, cfg.Withdrawal.DefaultMinMonths)

	calc, err := tax.NewCalculator(cfg.TaxConfig())
	require.NoError(t, err)
	wht, err := calc.WHT(generic.Naira("1000"), tax.CategoryInterest)
	require.NoError(t, err)
	assert.Equal(t, "150.00", wht.Tax.String())
}

func TestLoad_TOMLByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[database]
driver = "memory"

[accrual]
cutoff_day = 10

[tax]
cgt_rate = "0.12"

[[tax.pit_brackets]]
up_to = "500000"
rate = "0.05"

[[tax.pit_brackets]]
rate = "0.20"
`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, config.DriverMemory, cfg.Database.Driver)
	assert.Equal(t, 10, cfg.Accrual.CutoffDay)
	assert.Equal(t, "0.12", cfg.Tax.CGTRate.String())
	require.Len(t, cfg.Tax.PITBrackets, 2)

	calc, err := tax.NewCalculator(cfg.TaxConfig())
	require.NoError(t, err)
	pit, err := calc.PIT(generic.Naira("1000000"))
	require.NoError(t, err)
	assert.Equal(t, "125000.00", pit.Tax.String()) // 25,000 + 100,000
}

func TestLoad_EmptyPathIsDefault(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown driver", "database: {driver: mysql, dsn: x}"},
		{"missing dsn", "database: {driver: sqlite, dsn: \"\"}"},
		{"cutoff out of range", "accrual: {cutoff_day: 31}"},
		{"bad level", "log: {level: loud}"},
		{"bad format", "log: {format: xml}"},
		{"rate above one", "tax: {vat_rate: \"1.5\"}"},
		{"unknown wht category", "tax: {wht_rates: {SALARY: \"0.1\"}}"},
		{"closed top bracket", "tax: {pit_brackets: [{up_to: \"100\", rate: \"0.1\"}]}"},
		{"zero interval", "scheduler: {interval: 0s}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse("yaml", []byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Default()
	cfg.Log.Level = "warn"

	logger, err := cfg.NewLogger(&buf)
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept", "policy_id", "pol-1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "pol-1", line["policy_id"])

	_, err = config.NewLogger(&buf, "info", "xml")
	assert.Error(t, err)
}
