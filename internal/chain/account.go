package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	// ErrAccountNotFound indicates the RPC node returned no account for an address.
	ErrAccountNotFound = errors.New("chain: account not found")
	// ErrUnknownOwner indicates an account owned by a program we cannot monitor.
	ErrUnknownOwner = errors.New("chain: unknown account owner")
	// ErrUnexpectedState indicates account data that does not match the expected layout.
	ErrUnexpectedState = errors.New("chain: unexpected account state")
)

// Kind 表示被监控账户的类别，由账户的 owner 程序决定。
type Kind int

const (
	KindNativeBalance Kind = iota + 1
	KindTokenBalance
	KindProgramDeployment
)

func (k Kind) String() string {
	switch k {
	case KindNativeBalance:
		return "native"
	case KindTokenBalance:
		return "token"
	case KindProgramDeployment:
		return "program"
	default:
		return "unknown"
	}
}

// Owner programs recognised by the watcher.
var (
	SystemProgramID = solana.SystemProgramID
	TokenProgramID  = solana.TokenProgramID
	LoaderProgramID = solana.BPFLoaderUpgradeableProgramID
)

// ClassifyOwner maps an owning program to the account kind it implies.
func ClassifyOwner(owner solana.PublicKey) (Kind, error) {
	switch {
	case owner.Equals(SystemProgramID):
		return KindNativeBalance, nil
	case owner.Equals(TokenProgramID):
		return KindTokenBalance, nil
	case owner.Equals(LoaderProgramID):
		return KindProgramDeployment, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownOwner, owner)
	}
}

// AccountInfo is the subset of on-chain account state the watcher consumes.
type AccountInfo struct {
	Address  solana.PublicKey
	Owner    solana.PublicKey
	Lamports uint64
	Data     []byte
}

// AccountReader performs bulk reads of account state.
//
// The returned slice is aligned with keys; a nil entry means the account does not exist.
type AccountReader interface {
	GetMultipleAccounts(ctx context.Context, keys []solana.PublicKey) ([]*AccountInfo, error)
}

// ParseAddress decodes a base-58 account address.
func ParseAddress(s string) (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("parse address %q: %w", s, err)
	}
	return key, nil
}
