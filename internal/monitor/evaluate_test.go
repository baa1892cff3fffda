package monitor

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"vault-watcher/internal/chain"
	"vault-watcher/internal/chain/chaintest"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func nativeInfo(lamports uint64) *chain.AccountInfo {
	return &chain.AccountInfo{Owner: chain.SystemProgramID, Lamports: lamports}
}

func newNativeVault(balance float64) *MonitoredAccount {
	key := chaintest.NewKey(1)
	return &MonitoredAccount{
		ConfiguredAddress: key,
		Address:           key,
		Name:              "treasury",
		Kind:              chain.KindNativeBalance,
		Vault:             &VaultState{Balance: balance, Decimals: NativeDecimals},
	}
}

func lamports(units float64) uint64 { return uint64(units * 1e9) }

func countKind(alerts []Alert, kind AlertKind) int {
	n := 0
	for _, a := range alerts {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

func TestVaultBalanceAlwaysUpdated(t *testing.T) {
	acc := newNativeVault(10)
	ev := NewEvaluator(0)

	for _, units := range []float64{11, 9, 100, 0} {
		out, err := ev.Evaluate(acc, nativeInfo(lamports(units)))
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if acc.Vault.Balance != units || out.Value != units {
			t.Fatalf("balance should follow fresh amount %v, got cache=%v value=%v", units, acc.Vault.Balance, out.Value)
		}
		if len(out.Alerts) != 0 {
			t.Fatalf("no thresholds configured, expected no alerts: %+v", out.Alerts)
		}
	}
}

func TestSpikeAlertsEveryExceedance(t *testing.T) {
	acc := newNativeVault(100)
	acc.Vault.MaxChange = &MaxChange{ThresholdPerTick: 5, Period: time.Hour}
	ev := NewEvaluator(0)

	out, _ := ev.Evaluate(acc, nativeInfo(lamports(110)))
	if countKind(out.Alerts, AlertSpike) != 1 {
		t.Fatalf("first exceedance should alert: %+v", out.Alerts)
	}
	out, _ = ev.Evaluate(acc, nativeInfo(lamports(90)))
	if countKind(out.Alerts, AlertSpike) != 1 {
		t.Fatalf("second consecutive exceedance should alert again: %+v", out.Alerts)
	}
	out, _ = ev.Evaluate(acc, nativeInfo(lamports(94)))
	if countKind(out.Alerts, AlertSpike) != 0 {
		t.Fatalf("delta 4 below threshold 5 must not alert: %+v", out.Alerts)
	}
	out, _ = ev.Evaluate(acc, nativeInfo(lamports(99)))
	if countKind(out.Alerts, AlertSpike) != 0 {
		t.Fatalf("delta equal to threshold must not alert: %+v", out.Alerts)
	}
}

func TestSpikeMessage(t *testing.T) {
	acc := newNativeVault(100)
	acc.Vault.MaxChange = &MaxChange{ThresholdPerTick: 1}
	out, _ := NewEvaluator(0).Evaluate(acc, nativeInfo(lamports(150)))
	msg := out.Alerts[0].Message
	for _, want := range []string{"spike", "treasury", acc.Address.String(), "of 50", "previous balance 100", "current balance 150"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message %q should contain %q", msg, want)
		}
	}
}

func TestLowBalanceDebounce(t *testing.T) {
	clock := newClock()
	floor := 50.0
	acc := newNativeVault(60)
	acc.Vault.MinAmountThreshold = &floor
	ev := NewEvaluator(DefaultLowBalanceCooldown).WithClock(clock.Now)

	steps := []struct {
		units float64
		alert bool
	}{
		{40, true},  // transition into low state
		{45, false}, // still low, cooldown active
		{30, false}, // still low, cooldown active
	}
	for i, step := range steps {
		clock.Advance(5 * time.Second)
		out, err := ev.Evaluate(acc, nativeInfo(lamports(step.units)))
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		got := countKind(out.Alerts, AlertLowBalance) == 1
		if got != step.alert {
			t.Fatalf("step %d (%v): expected alert=%v, got %+v", i, step.units, step.alert, out.Alerts)
		}
		if acc.Vault.Balance != step.units {
			t.Fatalf("step %d: balance not updated", i)
		}
	}

	clock.Advance(DefaultLowBalanceCooldown + time.Second)
	out, _ := ev.Evaluate(acc, nativeInfo(lamports(30)))
	if countKind(out.Alerts, AlertLowBalance) != 1 {
		t.Fatalf("still below after cooldown should alert again: %+v", out.Alerts)
	}
	if !acc.Vault.LastAlertAt.Equal(clock.Now()) {
		t.Fatalf("LastAlertAt should move to the repeat alert time")
	}
}

func TestLowBalanceRetriggersOnNewTransition(t *testing.T) {
	clock := newClock()
	floor := 50.0
	acc := newNativeVault(60)
	acc.Vault.MinAmountThreshold = &floor
	ev := NewEvaluator(DefaultLowBalanceCooldown).WithClock(clock.Now)

	for i, tc := range []struct {
		units float64
		alert bool
	}{{40, true}, {55, false}, {45, true}} {
		clock.Advance(time.Second)
		out, _ := ev.Evaluate(acc, nativeInfo(lamports(tc.units)))
		if (countKind(out.Alerts, AlertLowBalance) == 1) != tc.alert {
			t.Fatalf("step %d: expected alert=%v, got %+v", i, tc.alert, out.Alerts)
		}
	}
}

func TestLowBalanceFirstObservationAlreadyLow(t *testing.T) {
	floor := 50.0
	acc := newNativeVault(20)
	acc.Vault.MinAmountThreshold = &floor
	out, _ := NewEvaluator(0).Evaluate(acc, nativeInfo(lamports(10)))
	if countKind(out.Alerts, AlertLowBalance) != 1 {
		t.Fatalf("unset LastAlertAt should allow the alert: %+v", out.Alerts)
	}
}

func TestSpikeAndLowBalanceTogether(t *testing.T) {
	floor := 50.0
	acc := newNativeVault(100)
	acc.Vault.MinAmountThreshold = &floor
	acc.Vault.MaxChange = &MaxChange{ThresholdPerTick: 10}
	out, _ := NewEvaluator(0).Evaluate(acc, nativeInfo(lamports(10)))
	if countKind(out.Alerts, AlertSpike) != 1 || countKind(out.Alerts, AlertLowBalance) != 1 {
		t.Fatalf("expected both alerts, got %+v", out.Alerts)
	}
}

func TestTokenVaultUsesDecimals(t *testing.T) {
	mint := chaintest.NewKey(3)
	acc := &MonitoredAccount{
		Address: chaintest.NewKey(2),
		Name:    "usdc",
		Kind:    chain.KindTokenBalance,
		Vault:   &VaultState{Balance: 1, Decimals: 6, Mint: mint},
	}
	info := &chain.AccountInfo{Owner: chain.TokenProgramID, Data: chaintest.TokenAccountData(mint, chaintest.NewKey(4), 2_500_000)}
	out, err := NewEvaluator(0).Evaluate(acc, info)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if out.Value != 2.5 || acc.Vault.Balance != 2.5 {
		t.Fatalf("expected 2.5, got %v", out.Value)
	}
}

func TestTokenVaultBadDataLeavesCache(t *testing.T) {
	acc := &MonitoredAccount{Name: "usdc", Kind: chain.KindTokenBalance, Vault: &VaultState{Balance: 7, Decimals: 6}}
	_, err := NewEvaluator(0).Evaluate(acc, &chain.AccountInfo{Data: []byte{1}})
	if !errors.Is(err, chain.ErrUnexpectedState) {
		t.Fatalf("expected ErrUnexpectedState, got %v", err)
	}
	if acc.Vault.Balance != 7 {
		t.Fatal("cache must be untouched on decode failure")
	}
}

func TestMissingFreshAccount(t *testing.T) {
	acc := newNativeVault(1)
	if _, err := NewEvaluator(0).Evaluate(acc, nil); !errors.Is(err, chain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func newProgram(slot uint64, authority *solana.PublicKey) *MonitoredAccount {
	return &MonitoredAccount{
		ConfiguredAddress: chaintest.NewKey(4),
		Address:           chaintest.NewKey(5),
		Name:              "amm",
		Kind:              chain.KindProgramDeployment,
		Program:           &ProgramState{LastDeploySlot: slot, UpgradeAuthority: authority},
	}
}

func programInfo(slot uint64, authority *solana.PublicKey) *chain.AccountInfo {
	return &chain.AccountInfo{Owner: chain.LoaderProgramID, Data: chaintest.ProgramDataData(slot, authority)}
}

func TestProgramDeploymentSequence(t *testing.T) {
	auth := chaintest.NewKey(6)
	acc := newProgram(5, &auth)
	ev := NewEvaluator(0)

	want := []struct {
		slot  uint64
		value float64
		alert bool
	}{{5, 0, false}, {5, 0, false}, {7, 1, true}}

	for i, w := range want {
		out, err := ev.Evaluate(acc, programInfo(w.slot, &auth))
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if out.Value != w.value {
			t.Fatalf("step %d: expected value %v, got %v", i, w.value, out.Value)
		}
		if (countKind(out.Alerts, AlertDeployment) == 1) != w.alert {
			t.Fatalf("step %d: unexpected alerts %+v", i, out.Alerts)
		}
	}
	if acc.Program.LastDeploySlot != 7 {
		t.Fatalf("expected slot 7, got %d", acc.Program.LastDeploySlot)
	}
}

func TestProgramLowerSlotIgnored(t *testing.T) {
	acc := newProgram(10, nil)
	out, _ := NewEvaluator(0).Evaluate(acc, programInfo(8, nil))
	if out.Changed || len(out.Alerts) != 0 || acc.Program.LastDeploySlot != 10 {
		t.Fatalf("lower slot must not alert or regress the cache: %+v %+v", out, acc.Program)
	}
}

func TestAuthorityChanges(t *testing.T) {
	x := chaintest.NewKey(7)
	y := chaintest.NewKey(8)
	acc := newProgram(1, nil)
	ev := NewEvaluator(0)

	out, _ := ev.Evaluate(acc, programInfo(1, &x))
	if countKind(out.Alerts, AlertAuthorityChange) != 1 || !out.Changed || out.Value != 1 {
		t.Fatalf("None -> Some should alert: %+v", out)
	}
	if !strings.Contains(out.Alerts[0].Message, "Old upgrade authority None") {
		t.Fatalf("message should render None: %s", out.Alerts[0].Message)
	}

	out, _ = ev.Evaluate(acc, programInfo(1, &x))
	if len(out.Alerts) != 0 || out.Changed {
		t.Fatalf("Some(X) -> Some(X) should not alert: %+v", out)
	}

	out, _ = ev.Evaluate(acc, programInfo(1, &y))
	if countKind(out.Alerts, AlertAuthorityChange) != 1 {
		t.Fatalf("Some(X) -> Some(Y) should alert: %+v", out)
	}

	out, _ = ev.Evaluate(acc, programInfo(1, nil))
	if countKind(out.Alerts, AlertAuthorityChange) != 1 || acc.Program.UpgradeAuthority != nil {
		t.Fatalf("Some -> None should alert and clear: %+v", out)
	}
}

func TestDeploymentAndAuthorityInSameTick(t *testing.T) {
	x := chaintest.NewKey(7)
	acc := newProgram(1, nil)
	out, _ := NewEvaluator(0).Evaluate(acc, programInfo(2, &x))
	if len(out.Alerts) != 2 || out.Value != 1 {
		t.Fatalf("expected two alerts and value 1, got %+v", out)
	}
}

func TestProgramDataWrongTag(t *testing.T) {
	acc := newProgram(1, nil)
	info := &chain.AccountInfo{Data: chaintest.ProgramAccountData(chaintest.NewKey(9))}
	if _, err := NewEvaluator(0).Evaluate(acc, info); !errors.Is(err, chain.ErrUnexpectedState) {
		t.Fatalf("expected ErrUnexpectedState, got %v", err)
	}
}
