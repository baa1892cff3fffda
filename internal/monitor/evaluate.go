package monitor

import (
	"fmt"
	"math"
	"time"

	"github.com/gagliardetto/solana-go"

	"vault-watcher/internal/chain"
)

// DefaultLowBalanceCooldown is the debounce window for repeated low-balance alerts.
const DefaultLowBalanceCooldown = 300 * time.Second

// Outcome is the result of evaluating one account for one tick.
type Outcome struct {
	Alerts []Alert
	// Changed reports whether a program deployment or authority change was seen.
	Changed bool
	// Value is what the persistence sink records for this tick.
	Value float64
}

// Evaluator compares fresh account state against the cache and updates it in place.
type Evaluator struct {
	cooldown time.Duration
	now      func() time.Time
}

// NewEvaluator returns an evaluator with the given low-balance cooldown.
func NewEvaluator(cooldown time.Duration) *Evaluator {
	if cooldown <= 0 {
		cooldown = DefaultLowBalanceCooldown
	}
	return &Evaluator{cooldown: cooldown, now: time.Now}
}

// WithClock overrides the time source.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

// Evaluate runs the path for acc's kind. On error the cache entry is left untouched.
func (e *Evaluator) Evaluate(acc *MonitoredAccount, fresh *chain.AccountInfo) (Outcome, error) {
	if fresh == nil {
		return Outcome{}, fmt.Errorf("account %s (%s): %w", acc.Name, acc.Address, chain.ErrAccountNotFound)
	}
	switch acc.Kind {
	case chain.KindNativeBalance:
		return e.evaluateVault(acc, fresh.Lamports), nil
	case chain.KindTokenBalance:
		tokenAcc, err := chain.DecodeTokenAccount(fresh.Data)
		if err != nil {
			return Outcome{}, fmt.Errorf("account %s (%s): %w", acc.Name, acc.Address, err)
		}
		return e.evaluateVault(acc, tokenAcc.Amount), nil
	case chain.KindProgramDeployment:
		state, err := chain.DecodeLoaderState(fresh.Data)
		if err != nil {
			return Outcome{}, fmt.Errorf("account %s (%s): %w", acc.Name, acc.Address, err)
		}
		if state.Tag != chain.LoaderStateProgramData {
			return Outcome{}, fmt.Errorf("account %s (%s): %w: loader tag %d", acc.Name, acc.Address, chain.ErrUnexpectedState, state.Tag)
		}
		return e.evaluateProgram(acc, state), nil
	default:
		return Outcome{}, fmt.Errorf("account %s (%s): unsupported kind %s", acc.Name, acc.Address, acc.Kind)
	}
}

func (e *Evaluator) evaluateVault(acc *MonitoredAccount, raw uint64) Outcome {
	v := acc.Vault
	previous := v.Balance
	current := ScaleAmount(raw, v.Decimals)
	delta := math.Abs(current - previous)

	var out Outcome
	// Spikes are never debounced.
	if v.MaxChange != nil && delta > v.MaxChange.ThresholdPerTick {
		out.Alerts = append(out.Alerts, spikeAlert(acc, delta, previous, current))
	}

	if v.MinAmountThreshold != nil && current < *v.MinAmountThreshold {
		floor := *v.MinAmountThreshold
		now := e.now()
		entered := previous >= floor
		cooledDown := v.LastAlertAt == nil || now.Sub(*v.LastAlertAt) > e.cooldown
		if entered || cooledDown {
			out.Alerts = append(out.Alerts, lowBalanceAlert(acc, delta, previous, current))
			v.LastAlertAt = &now
		}
	}

	v.Balance = current
	out.Value = current
	return out
}

func (e *Evaluator) evaluateProgram(acc *MonitoredAccount, state chain.LoaderState) Outcome {
	p := acc.Program
	var out Outcome

	if state.Slot > p.LastDeploySlot {
		out.Alerts = append(out.Alerts, deploymentAlert(acc, p.LastDeploySlot, state.Slot))
		p.LastDeploySlot = state.Slot
		out.Changed = true
	}

	if !sameAuthority(p.UpgradeAuthority, state.UpgradeAuthority) {
		out.Alerts = append(out.Alerts, authorityAlert(acc, p.UpgradeAuthority, state.UpgradeAuthority))
		p.UpgradeAuthority = state.UpgradeAuthority
		out.Changed = true
	}

	if out.Changed {
		out.Value = 1
	}
	return out
}

func sameAuthority(a, b *solana.PublicKey) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equals(*b)
}
