package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"vault-watcher/internal/chain"
)

// Initializer builds the account cache from one snapshot of on-chain state.
type Initializer struct {
	reader  chain.AccountReader
	refresh time.Duration
	logger  zerolog.Logger
}

// NewInitializer constructs an Initializer for the given poll interval.
func NewInitializer(reader chain.AccountReader, refresh time.Duration, logger zerolog.Logger) *Initializer {
	return &Initializer{
		reader:  reader,
		refresh: refresh,
		logger:  logger.With().Str("component", "initializer").Logger(),
	}
}

// Initialize produces exactly one MonitoredAccount per input, in input order.
//
// Any missing account, unknown owner or undecodable state is returned as an
// error; the cache cannot be used in that case.
func (in *Initializer) Initialize(ctx context.Context, inputs []Input) ([]*MonitoredAccount, error) {
	keys := make([]solana.PublicKey, len(inputs))
	for i, input := range inputs {
		key, err := chain.ParseAddress(input.Address)
		if err != nil {
			return nil, fmt.Errorf("account %q: %w", input.Name, err)
		}
		keys[i] = key
	}

	infos, err := in.reader.GetMultipleAccounts(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("read accounts: %w", err)
	}
	if len(infos) != len(keys) {
		return nil, fmt.Errorf("read accounts: requested %d, got %d", len(keys), len(infos))
	}

	cache := make([]*MonitoredAccount, len(inputs))
	tokenAmounts := make(map[int]uint64)
	var mints []solana.PublicKey
	var programData []solana.PublicKey

	for i, input := range inputs {
		info := infos[i]
		if info == nil {
			return nil, fmt.Errorf("account %s (%s): %w", input.Name, keys[i], chain.ErrAccountNotFound)
		}
		kind, err := chain.ClassifyOwner(info.Owner)
		if err != nil {
			return nil, fmt.Errorf("account %s (%s): %w", input.Name, keys[i], err)
		}
		in.checkDeclaredType(input, kind)

		acc := &MonitoredAccount{
			ConfiguredAddress: keys[i],
			Address:           keys[i],
			Name:              input.Name,
			Kind:              kind,
		}

		switch kind {
		case chain.KindNativeBalance:
			acc.Vault = in.newVault(input, NativeDecimals)
			acc.Vault.Balance = ScaleAmount(info.Lamports, NativeDecimals)
		case chain.KindTokenBalance:
			tokenAcc, err := chain.DecodeTokenAccount(info.Data)
			if err != nil {
				return nil, fmt.Errorf("account %s (%s): %w", input.Name, keys[i], err)
			}
			acc.Vault = in.newVault(input, 0)
			acc.Vault.Mint = tokenAcc.Mint
			tokenAmounts[i] = tokenAcc.Amount
			mints = appendUnique(mints, tokenAcc.Mint)
		case chain.KindProgramDeployment:
			state, err := chain.DecodeLoaderState(info.Data)
			if err != nil {
				return nil, fmt.Errorf("account %s (%s): %w", input.Name, keys[i], err)
			}
			if state.Tag != chain.LoaderStateProgram {
				return nil, fmt.Errorf("account %s (%s): %w: loader tag %d is not a program", input.Name, keys[i], chain.ErrUnexpectedState, state.Tag)
			}
			acc.Address = state.ProgramData
			acc.Program = &ProgramState{}
			programData = appendUnique(programData, state.ProgramData)
		}
		cache[i] = acc
	}

	decimals, err := in.resolveMintDecimals(ctx, mints)
	if err != nil {
		return nil, err
	}
	deployments, err := in.resolveProgramData(ctx, programData)
	if err != nil {
		return nil, err
	}

	for i, acc := range cache {
		switch acc.Kind {
		case chain.KindTokenBalance:
			acc.Vault.Decimals = int32(decimals[acc.Vault.Mint])
			acc.Vault.Balance = ScaleAmount(tokenAmounts[i], acc.Vault.Decimals)
		case chain.KindProgramDeployment:
			state := deployments[acc.Address]
			acc.Program.LastDeploySlot = state.Slot
			acc.Program.UpgradeAuthority = state.UpgradeAuthority
		}
		in.logger.Info().
			Str("name", acc.Name).
			Str("kind", acc.Kind.String()).
			Str("address", acc.Address.String()).
			Msg("account initialized")
	}

	return cache, nil
}

func (in *Initializer) newVault(input Input, decimals int32) *VaultState {
	v := &VaultState{
		Decimals:           decimals,
		MinAmountThreshold: input.MinAmountThreshold,
	}
	if input.MaxChange != nil {
		v.MaxChange = RescaleMaxChange(*input.MaxChange, in.refresh)
	}
	return v
}

func (in *Initializer) checkDeclaredType(input Input, kind chain.Kind) {
	if input.Type == "" {
		return
	}
	isProgram := kind == chain.KindProgramDeployment
	if (input.Type == InputProgram) != isProgram {
		in.logger.Warn().
			Str("name", input.Name).
			Str("declared", string(input.Type)).
			Str("owner_kind", kind.String()).
			Msg("declared account type does not match on-chain owner; using owner")
	}
}

func (in *Initializer) resolveMintDecimals(ctx context.Context, mints []solana.PublicKey) (map[solana.PublicKey]uint8, error) {
	out := make(map[solana.PublicKey]uint8, len(mints))
	if len(mints) == 0 {
		return out, nil
	}
	infos, err := in.reader.GetMultipleAccounts(ctx, mints)
	if err != nil {
		return nil, fmt.Errorf("read mints: %w", err)
	}
	for i, mint := range mints {
		if i >= len(infos) || infos[i] == nil {
			return nil, fmt.Errorf("mint %s: %w", mint, chain.ErrAccountNotFound)
		}
		d, err := chain.DecodeMintDecimals(infos[i].Data)
		if err != nil {
			return nil, fmt.Errorf("mint %s: %w", mint, err)
		}
		out[mint] = d
	}
	return out, nil
}

func (in *Initializer) resolveProgramData(ctx context.Context, keys []solana.PublicKey) (map[solana.PublicKey]chain.LoaderState, error) {
	out := make(map[solana.PublicKey]chain.LoaderState, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	infos, err := in.reader.GetMultipleAccounts(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("read program data: %w", err)
	}
	for i, key := range keys {
		if i >= len(infos) || infos[i] == nil {
			return nil, fmt.Errorf("program data %s: %w", key, chain.ErrAccountNotFound)
		}
		state, err := chain.DecodeLoaderState(infos[i].Data)
		if err != nil {
			return nil, fmt.Errorf("program data %s: %w", key, err)
		}
		if state.Tag != chain.LoaderStateProgramData {
			return nil, fmt.Errorf("program data %s: %w: loader tag %d", key, chain.ErrUnexpectedState, state.Tag)
		}
		out[key] = state
	}
	return out, nil
}

func appendUnique(keys []solana.PublicKey, key solana.PublicKey) []solana.PublicKey {
	for _, k := range keys {
		if k.Equals(key) {
			return keys
		}
	}
	return append(keys, key)
}
