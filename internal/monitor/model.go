package monitor

import (
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"vault-watcher/internal/chain"
)

// NativeDecimals is the lamport scale of the native currency.
const NativeDecimals int32 = 9

// InputType is the account type declared in the account list.
type InputType string

const (
	InputVault   InputType = "vault"
	InputProgram InputType = "program"
)

// MaxChangeInput is the configured spike threshold: Value units per Period.
type MaxChangeInput struct {
	Value  float64
	Period time.Duration
}

// Input is one configured account.
type Input struct {
	Type               InputType
	Address            string
	Name               string
	MaxChange          *MaxChangeInput
	MinAmountThreshold *float64
}

// MaxChange is the spike threshold rescaled to a single poll interval.
type MaxChange struct {
	ThresholdPerTick float64
	Period           time.Duration
}

// VaultState tracks native and token balance accounts.
type VaultState struct {
	Balance            float64
	Decimals           int32
	Mint               solana.PublicKey
	MaxChange          *MaxChange
	MinAmountThreshold *float64
	LastAlertAt        *time.Time
}

// ProgramState tracks upgradeable program deployments.
type ProgramState struct {
	LastDeploySlot   uint64
	UpgradeAuthority *solana.PublicKey
}

// MonitoredAccount is one cache entry.
//
// Address is the polled identity. For programs it is the program-data account
// resolved at initialization, while ConfiguredAddress keeps the program id.
type MonitoredAccount struct {
	ConfiguredAddress solana.PublicKey
	Address           solana.PublicKey
	Name              string
	Kind              chain.Kind
	Vault             *VaultState
	Program           *ProgramState
}

// Value is the number persisted for the account: balance for vaults, 0 for programs.
func (a *MonitoredAccount) Value() float64 {
	if a.Vault != nil {
		return a.Vault.Balance
	}
	return 0
}

// Addresses returns the polled identities in cache order.
func Addresses(cache []*MonitoredAccount) []solana.PublicKey {
	keys := make([]solana.PublicKey, len(cache))
	for i, acc := range cache {
		keys[i] = acc.Address
	}
	return keys
}

// ScaleAmount converts a raw on-chain amount into units using decimals.
func ScaleAmount(raw uint64, decimals int32) float64 {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(raw), -decimals).InexactFloat64()
}

// RescaleMaxChange converts a per-period threshold into the change expected over one refresh.
func RescaleMaxChange(in MaxChangeInput, refresh time.Duration) *MaxChange {
	if in.Period <= 0 {
		return nil
	}
	perTick := in.Value * float64(refresh) / float64(in.Period)
	return &MaxChange{ThresholdPerTick: perTick, Period: in.Period}
}
