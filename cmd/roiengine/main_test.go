package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/investment-engine/generic"
	"github.com/warp/investment-engine/ledger"
)

const policyJSON = `{
  "id": "pol-1",
  "policy_number": "WARP-0001",
  "investor_id": "inv-1",
  "investor_name": "Ada Obi",
  "principal_amount": "500000",
  "start_date": "2024-01-05"
}`

// run executes the root command and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func decode(t *testing.T, out string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &m), out)
	return m
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()
	assert.Equal(t, "roiengine", root.Use)

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"accrual", "tax", "evaluate", "statement", "run-accruals", "schedule", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestVersion_SkipsConfig(t *testing.T) {
	out, err := run(t, "--config", "/does/not/exist.yaml", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "roiengine dev")
}

func TestAccrual_FromPolicyFile(t *testing.T) {
	dir := t.TempDir()
	policy := writeFile(t, dir, "policy.json", policyJSON)

	out, err := run(t, "accrual", policy, "--as-of", "2024-03-15", "--project", "2")
	require.NoError(t, err)

	m := decode(t, out)
	acc := m["accrual"].(map[string]any)
	assert.Equal(t, "16666.67", acc["roi_due"])
	assert.Equal(t, "2024-04-01", acc["next_accrual_date"])

	proj := m["projection"].(map[string]any)
	assert.Len(t, proj["history"], 2)
}

func TestTax_Calc(t *testing.T) {
	tests := []struct {
		name string
		args []string
		tax  string
	}{
		{"wht interest", []string{"tax", "calc", "WHT", "16666.67"}, "1666.67"},
		{"wht commission", []string{"tax", "calc", "wht", "1000", "--category", "commission"}, "50.00"},
		{"pit", []string{"tax", "calc", "PIT", "1000000"}, "114000.00"},
		{"tet individual", []string{"tax", "calc", "TET", "1000000"}, "0.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.tax, decode(t, out)["tax_amount"])
		})
	}

	_, err := run(t, "tax", "calc", "XYZ", "100")
	assert.ErrorIs(t, err, generic.ErrContractViolation)
}

func TestTax_ConfigOverridesRates(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "engine.yaml", "database:\n  driver: memory\ntax:\n  wht_rates:\n    INTEREST: \"0.15\"\nlog:\n  level: error\n")

	out, err := run(t, "--config", cfg, "tax", "calc", "WHT", "1000")
	require.NoError(t, err)
	assert.Equal(t, "150.00", decode(t, out)["tax_amount"])
}

func TestEvaluate_ConfiguredLockIn(t *testing.T) {
	// GIVEN: A config raising the default lock-in to six months
	// WHEN: A principal withdrawal is evaluated five months after start
	// THEN: It is locked, while the built-in four months would allow it

	dir := t.TempDir()
	cfg := writeFile(t, dir, "engine.yaml", "database:\n  driver: memory\nwithdrawal:\n  default_min_months: 6\nlog:\n  level: error\n")
	policy := writeFile(t, dir, "policy.json", policyJSON)
	req := writeFile(t, dir, "request.json", `{"policy_id":"pol-1","type":"principal_only","amount_requested":"1000"}`)

	out, err := run(t, "--config", cfg, "evaluate", policy, req, "--today", "2024-06-10")
	require.NoError(t, err)
	eval := decode(t, out)["evaluation"].(map[string]any)
	assert.Equal(t, false, eval["allowed"])
	assert.Equal(t, "locked_principal", eval["reason"])

	out, err = run(t, "evaluate", policy, req, "--today", "2024-06-10")
	require.NoError(t, err)
	assert.Equal(t, true, decode(t, out)["evaluation"].(map[string]any)["allowed"])
}

func TestEvaluate_PreviewsPayout(t *testing.T) {
	dir := t.TempDir()
	policy := writeFile(t, dir, "policy.json", `{"id":"pol-1","investor_id":"inv-1","principal_amount":"500000","roi_balance":"50000","start_date":"2024-01-05"}`)
	req := writeFile(t, dir, "request.json", `{"policy_id":"pol-1","type":"composite","amount_requested":"500000"}`)

	out, err := run(t, "evaluate", policy, req, "--today", "2024-06-10")
	require.NoError(t, err)
	m := decode(t, out)
	assert.Equal(t, true, m["evaluation"].(map[string]any)["allowed"])

	p := m["payout"].(map[string]any)
	assert.Equal(t, "50000.00", p["roi_portion"])
	assert.Equal(t, "5000.00", p["wht_amount"])
	assert.Equal(t, "495000.00", p["net_after_wht"])

	// GIVEN: The same request inside the four-month lock-in
	// WHEN: Evaluating on 2024-03-01
	// THEN: Composite is capped at the ROI balance and denied
	out, err = run(t, "evaluate", policy, req, "--today", "2024-03-01")
	require.NoError(t, err)
	m = decode(t, out)
	eval := m["evaluation"].(map[string]any)
	assert.Equal(t, false, eval["allowed"])
	assert.Equal(t, "insufficient_funds", eval["reason"])
	assert.Nil(t, m["payout"])
}

func TestStatement_FromFiles(t *testing.T) {
	dir := t.TempDir()
	policy := generic.NewPolicy("pol-1", "inv-1", generic.Naira("500000"), generic.NewTimePoint(2024, time.January, 5))
	entries, err := ledger.Build(policy, nil, []ledger.Event{
		{Type: generic.EntryAccrual, Date: generic.NewTimePoint(2024, time.February, 1), Amount: generic.Naira("16666.67")},
		{Type: generic.EntryAccrual, Date: generic.NewTimePoint(2024, time.March, 1), Amount: generic.Naira("16666.67")},
		{Type: generic.EntryWithdrawal, WithdrawalType: generic.WithdrawROIOnly, Date: generic.NewTimePoint(2024, time.March, 5), Amount: generic.Naira("20000")},
	})
	require.NoError(t, err)
	data, err := json.Marshal(entries)
	require.NoError(t, err)

	policyPath := writeFile(t, dir, "policy.json", policyJSON)
	entriesPath := writeFile(t, dir, "entries.json", string(data))

	out, err := run(t, "statement", policyPath, entriesPath, "--from", "2024-03-01", "--to", "2024-03-31")
	require.NoError(t, err)
	m := decode(t, out)
	assert.Len(t, m["entries"], 2)
	assert.Equal(t, "WARP-0001", m["policy_number"])
	assert.Equal(t, "16666.67", m["opening_balance"].(map[string]any)["roi"])
	assert.Equal(t, "13333.34", m["closing_balance"].(map[string]any)["roi"])
}

func TestStoreCommands_EndToEnd(t *testing.T) {
	// GIVEN: A SQLite-backed config and an opened policy
	// WHEN: Accruals run, then a withdrawal is submitted, approved and processed
	// THEN: The payout carries WHT and the tax summary reflects it

	dir := t.TempDir()
	cfg := writeFile(t, dir, "engine.toml", "[database]\ndriver = \"sqlite\"\ndsn = \""+filepath.Join(dir, "engine.db")+"\"\n\n[log]\nlevel = \"error\"\n")
	policy := writeFile(t, dir, "policy.json", policyJSON)

	_, err := run(t, "--config", cfg, "open", policy, "--actor", "admin-1")
	require.NoError(t, err)

	out, err := run(t, "--config", cfg, "run-accruals", "--as-of", "2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, float64(2), decode(t, out)["entries_posted"])

	req := writeFile(t, dir, "request.json", `{"policy_id":"pol-1","type":"roi_only","amount_requested":"16666.67","bank":{"account_number":"0123456789"}}`)
	out, err = run(t, "--config", cfg, "withdraw", "submit", req, "--today", "2024-03-02")
	require.NoError(t, err)
	id := decode(t, out)["id"].(string)
	require.NotEmpty(t, id)

	_, err = run(t, "--config", cfg, "withdraw", "approve", id, "--actor", "admin-1")
	require.NoError(t, err)

	out, err = run(t, "--config", cfg, "withdraw", "process", id, "--today", "2024-03-02")
	require.NoError(t, err)
	p := decode(t, out)
	assert.Equal(t, "1666.67", p["wht_amount"])
	assert.Equal(t, "15000.00", p["net_after_all_taxes"])

	out, err = run(t, "--config", cfg, "tax", "summary", "inv-1", "2024")
	require.NoError(t, err)
	assert.Equal(t, "1666.67", decode(t, out)["total_tax_deducted"])

	out, err = run(t, "--config", cfg, "withdraw", "certificate", id, "--tin", "12345678-0001")
	require.NoError(t, err)
	assert.Equal(t, "12345678-0001", decode(t, out)["investor"].(map[string]any)["tin"])

	_, err = run(t, "--config", cfg, "withdraw", "approve", id)
	assert.ErrorIs(t, err, generic.ErrInvalidTransition)
	assert.Equal(t, 2, exitCode(err))
}
