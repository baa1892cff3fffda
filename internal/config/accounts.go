package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"vault-watcher/internal/monitor"
)

// MaxNameLength matches the width of the stored name column.
const MaxNameLength = 50

// AccountConfig is one monitored account as written by the operator.
// The JSON tags match the account list file format.
type AccountConfig struct {
	AccountType string   `mapstructure:"account_type" json:"accountType"`
	Address     string   `mapstructure:"address" json:"address"`
	Name        string   `mapstructure:"name" json:"name"`
	MaxChange   *float64 `mapstructure:"max_change" json:"maxChange,omitempty"`

	// MaxChangePeriod is in milliseconds.
	MaxChangePeriod    *int64   `mapstructure:"max_change_period" json:"maxChangePeriod,omitempty"`
	MinAmountThreshold *float64 `mapstructure:"min_amount_threshold" json:"minAmountThreshold,omitempty"`
}

// Validate checks a single account entry.
func (a AccountConfig) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return errors.New("name is required")
	}
	if n := utf8.RuneCountInString(a.Name); n > MaxNameLength {
		return fmt.Errorf("%s: name is %d characters, at most %d allowed", a.Name, n, MaxNameLength)
	}
	if strings.TrimSpace(a.Address) == "" {
		return fmt.Errorf("%s: address is required", a.Name)
	}
	switch monitor.InputType(strings.ToLower(a.AccountType)) {
	case "", monitor.InputVault, monitor.InputProgram:
	default:
		return fmt.Errorf("%s: accountType %q must be vault or program", a.Name, a.AccountType)
	}
	if (a.MaxChange == nil) != (a.MaxChangePeriod == nil) {
		return fmt.Errorf("%s: maxChange and maxChangePeriod must be set together", a.Name)
	}
	if a.MaxChangePeriod != nil && *a.MaxChangePeriod <= 0 {
		return fmt.Errorf("%s: maxChangePeriod must be greater than zero", a.Name)
	}
	if a.MaxChange != nil && *a.MaxChange < 0 {
		return fmt.Errorf("%s: maxChange cannot be negative", a.Name)
	}
	return nil
}

// Input converts the entry to the monitor's input form.
func (a AccountConfig) Input() monitor.Input {
	in := monitor.Input{
		Type:               monitor.InputType(strings.ToLower(a.AccountType)),
		Address:            strings.TrimSpace(a.Address),
		Name:               a.Name,
		MinAmountThreshold: a.MinAmountThreshold,
	}
	if a.MaxChange != nil && a.MaxChangePeriod != nil {
		in.MaxChange = &monitor.MaxChangeInput{
			Value:  *a.MaxChange,
			Period: time.Duration(*a.MaxChangePeriod) * time.Millisecond,
		}
	}
	return in
}

// LoadAccountsFile reads a JSON account list.
func LoadAccountsFile(path string) ([]AccountConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}
	var accounts []AccountConfig
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return nil, fmt.Errorf("parse accounts file %s: %w", path, err)
	}
	for i, acc := range accounts {
		if err := acc.Validate(); err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", path, i, err)
		}
	}
	return accounts, nil
}

// ResolveAccounts returns the accounts file entries followed by inline ones.
// Names must be unique across both sources.
func (c *Config) ResolveAccounts() ([]AccountConfig, error) {
	var accounts []AccountConfig
	if c.AccountsFile != "" {
		fromFile, err := LoadAccountsFile(c.AccountsFile)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, fromFile...)
	}
	accounts = append(accounts, c.Accounts...)

	if len(accounts) == 0 {
		return nil, errors.New("no accounts configured; set accounts_file or accounts")
	}
	seen := make(map[string]struct{}, len(accounts))
	for _, acc := range accounts {
		if _, dup := seen[acc.Name]; dup {
			return nil, fmt.Errorf("duplicate account name %q", acc.Name)
		}
		seen[acc.Name] = struct{}{}
	}
	return accounts, nil
}

// Inputs resolves the account list into monitor inputs, in order.
func (c *Config) Inputs() ([]monitor.Input, error) {
	accounts, err := c.ResolveAccounts()
	if err != nil {
		return nil, err
	}
	inputs := make([]monitor.Input, len(accounts))
	for i, acc := range accounts {
		inputs[i] = acc.Input()
	}
	return inputs, nil
}
