package monitor

import (
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
)

// AlertKind identifies the detected condition.
type AlertKind string

const (
	AlertSpike           AlertKind = "spike"
	AlertLowBalance      AlertKind = "low_balance"
	AlertDeployment      AlertKind = "deployment"
	AlertAuthorityChange AlertKind = "authority_change"
)

// Alert is an alert-worthy event produced by the evaluator.
type Alert struct {
	Kind    AlertKind
	Name    string
	Address solana.PublicKey
	Message string
}

func spikeAlert(acc *MonitoredAccount, delta, previous, current float64) Alert {
	return Alert{
		Kind:    AlertSpike,
		Name:    acc.Name,
		Address: acc.Address,
		Message: fmt.Sprintf("Vault account spike detected for %s (%s) of %s - previous balance %s - current balance %s",
			acc.Name, acc.Address, formatAmount(delta), formatAmount(previous), formatAmount(current)),
	}
}

func lowBalanceAlert(acc *MonitoredAccount, delta, previous, current float64) Alert {
	return Alert{
		Kind:    AlertLowBalance,
		Name:    acc.Name,
		Address: acc.Address,
		Message: fmt.Sprintf("Vault account low detected for %s (%s) with delta %s - previous balance %s - current balance %s",
			acc.Name, acc.Address, formatAmount(delta), formatAmount(previous), formatAmount(current)),
	}
}

func deploymentAlert(acc *MonitoredAccount, previous, current uint64) Alert {
	return Alert{
		Kind:    AlertDeployment,
		Name:    acc.Name,
		Address: acc.Address,
		Message: fmt.Sprintf("Program account deployment detected for %s (program data account: %s) | Old last_deploy slot %d, new last_deploy slot %d",
			acc.Name, acc.Address, previous, current),
	}
}

func authorityAlert(acc *MonitoredAccount, previous, current *solana.PublicKey) Alert {
	return Alert{
		Kind:    AlertAuthorityChange,
		Name:    acc.Name,
		Address: acc.Address,
		Message: fmt.Sprintf("Program account upgrade authority change detected for %s (program data account: %s) | Old upgrade authority %s - New upgrade authority %s",
			acc.Name, acc.Address, FormatAuthority(previous), FormatAuthority(current)),
	}
}

// FormatAuthority renders an optional authority, "None" when absent.
func FormatAuthority(key *solana.PublicKey) string {
	if key == nil {
		return "None"
	}
	return key.String()
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
