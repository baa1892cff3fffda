package monitor

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vault-watcher/internal/chain"
	"vault-watcher/internal/chain/chaintest"
)

func TestInitializeBuildsCacheForEveryKind(t *testing.T) {
	reader := chaintest.NewReader()

	native := chaintest.NewKey(1)
	tokenAcc := chaintest.NewKey(2)
	mint := chaintest.NewKey(3)
	program := chaintest.NewKey(4)
	programData := chaintest.NewKey(5)
	authority := chaintest.NewKey(6)

	reader.Set(native, chain.SystemProgramID, 2_500_000_000, nil)
	reader.Set(tokenAcc, chain.TokenProgramID, 2_039_280, chaintest.TokenAccountData(mint, chaintest.NewKey(7), 1_500_000))
	reader.Set(mint, chain.TokenProgramID, 1_461_600, chaintest.MintData(6))
	reader.Set(program, chain.LoaderProgramID, 1_141_440, chaintest.ProgramAccountData(programData))
	reader.Set(programData, chain.LoaderProgramID, 1_141_440, chaintest.ProgramDataData(100, &authority))

	floor := 1.0
	inputs := []Input{
		{Type: InputVault, Address: native.String(), Name: "treasury", MaxChange: &MaxChangeInput{Value: 100, Period: time.Hour}},
		{Type: InputVault, Address: tokenAcc.String(), Name: "usdc-vault", MinAmountThreshold: &floor},
		{Type: InputProgram, Address: program.String(), Name: "amm"},
	}

	initializer := NewInitializer(reader, time.Minute, zerolog.Nop())
	cache, err := initializer.Initialize(context.Background(), inputs)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if len(cache) != len(inputs) {
		t.Fatalf("expected %d cache entries, got %d", len(inputs), len(cache))
	}
	if reader.Calls() != 3 {
		t.Fatalf("expected 3 bulk reads, got %d", reader.Calls())
	}

	n := cache[0]
	if n.Kind != chain.KindNativeBalance || n.Vault.Decimals != 9 || n.Vault.Balance != 2.5 {
		t.Fatalf("unexpected native entry: %+v %+v", n, n.Vault)
	}
	if n.Vault.MaxChange == nil || math.Abs(n.Vault.MaxChange.ThresholdPerTick-100.0/60.0) > 1e-9 {
		t.Fatalf("threshold per tick should be ~1.667, got %+v", n.Vault.MaxChange)
	}

	tk := cache[1]
	if tk.Kind != chain.KindTokenBalance || tk.Vault.Decimals != 6 || tk.Vault.Balance != 1.5 {
		t.Fatalf("unexpected token entry: %+v %+v", tk, tk.Vault)
	}
	if tk.Vault.MinAmountThreshold == nil || *tk.Vault.MinAmountThreshold != 1.0 {
		t.Fatalf("min threshold not carried: %+v", tk.Vault)
	}

	p := cache[2]
	if p.Kind != chain.KindProgramDeployment {
		t.Fatalf("expected program kind, got %s", p.Kind)
	}
	if !p.Address.Equals(programData) || !p.ConfiguredAddress.Equals(program) {
		t.Fatalf("program should poll its program-data account: polled=%s configured=%s", p.Address, p.ConfiguredAddress)
	}
	if p.Program.LastDeploySlot != 100 || p.Program.UpgradeAuthority == nil || !p.Program.UpgradeAuthority.Equals(authority) {
		t.Fatalf("unexpected program state: %+v", p.Program)
	}
}

func TestInitializeNativeOnlySingleRead(t *testing.T) {
	reader := chaintest.NewReader()
	a := chaintest.NewKey(1)
	reader.Set(a, chain.SystemProgramID, 1_000_000_000, nil)

	cache, err := NewInitializer(reader, time.Minute, zerolog.Nop()).
		Initialize(context.Background(), []Input{{Address: a.String(), Name: "a"}})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if reader.Calls() != 1 {
		t.Fatalf("expected one read, got %d", reader.Calls())
	}
	if cache[0].Vault.MaxChange != nil || cache[0].Vault.MinAmountThreshold != nil {
		t.Fatalf("unconfigured thresholds must stay nil: %+v", cache[0].Vault)
	}
}

func TestInitializeMissingAccount(t *testing.T) {
	reader := chaintest.NewReader()
	_, err := NewInitializer(reader, time.Minute, zerolog.Nop()).
		Initialize(context.Background(), []Input{{Address: chaintest.NewKey(1).String(), Name: "ghost"}})
	if !errors.Is(err, chain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestInitializeUnknownOwner(t *testing.T) {
	reader := chaintest.NewReader()
	a := chaintest.NewKey(1)
	reader.Set(a, chaintest.NewKey(99), 1, nil)
	_, err := NewInitializer(reader, time.Minute, zerolog.Nop()).
		Initialize(context.Background(), []Input{{Address: a.String(), Name: "odd"}})
	if !errors.Is(err, chain.ErrUnknownOwner) {
		t.Fatalf("expected ErrUnknownOwner, got %v", err)
	}
}

func TestInitializeReadFailure(t *testing.T) {
	reader := chaintest.NewReader()
	reader.FailNext(errors.New("node down"))
	_, err := NewInitializer(reader, time.Minute, zerolog.Nop()).
		Initialize(context.Background(), []Input{{Address: chaintest.NewKey(1).String(), Name: "a"}})
	if err == nil {
		t.Fatal("read failure at startup must be returned")
	}
}

func TestInitializeRejectsBadAddress(t *testing.T) {
	_, err := NewInitializer(chaintest.NewReader(), time.Minute, zerolog.Nop()).
		Initialize(context.Background(), []Input{{Address: "nope", Name: "bad"}})
	if err == nil {
		t.Fatal("expected address parse error")
	}
}

func TestRescaleMaxChange(t *testing.T) {
	mc := RescaleMaxChange(MaxChangeInput{Value: 100, Period: 3_600_000 * time.Millisecond}, 60_000*time.Millisecond)
	if mc == nil || math.Abs(mc.ThresholdPerTick-1.6666666666) > 1e-6 {
		t.Fatalf("expected ~1.667, got %+v", mc)
	}
	if RescaleMaxChange(MaxChangeInput{Value: 1}, time.Minute) != nil {
		t.Fatal("zero period must disable the threshold")
	}
}

func TestScaleAmount(t *testing.T) {
	if got := ScaleAmount(1_234_500_000, 9); got != 1.2345 {
		t.Fatalf("expected 1.2345, got %v", got)
	}
	if got := ScaleAmount(42, 0); got != 42 {
		t.Fatalf("expected 42, got %v", got)
	}
}
