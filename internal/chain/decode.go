package chain

import (
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
)

// Upgradeable loader state discriminants.
const (
	LoaderStateUninitialized uint32 = 0
	LoaderStateBuffer        uint32 = 1
	LoaderStateProgram       uint32 = 2
	LoaderStateProgramData   uint32 = 3
)

// TokenAccount holds the SPL token account fields the watcher needs.
type TokenAccount struct {
	Mint   solana.PublicKey
	Amount uint64
}

// DecodeTokenAccount unpacks an SPL token account.
func DecodeTokenAccount(data []byte) (TokenAccount, error) {
	var acc token.Account
	if err := bin.NewBinDecoder(data).Decode(&acc); err != nil {
		return TokenAccount{}, fmt.Errorf("%w: token account: %v", ErrUnexpectedState, err)
	}
	return TokenAccount{Mint: acc.Mint, Amount: acc.Amount}, nil
}

// DecodeMintDecimals unpacks an SPL mint and returns its decimal count.
func DecodeMintDecimals(data []byte) (uint8, error) {
	var mint token.Mint
	if err := bin.NewBinDecoder(data).Decode(&mint); err != nil {
		return 0, fmt.Errorf("%w: mint: %v", ErrUnexpectedState, err)
	}
	return mint.Decimals, nil
}

// LoaderState is the decoded state of an account owned by the upgradeable loader.
type LoaderState struct {
	Tag uint32

	// Set when Tag == LoaderStateProgram.
	ProgramData solana.PublicKey

	// Set when Tag == LoaderStateProgramData.
	Slot             uint64
	UpgradeAuthority *solana.PublicKey
}

// DecodeLoaderState decodes the bincode layout used by the upgradeable loader.
func DecodeLoaderState(data []byte) (LoaderState, error) {
	dec := bin.NewBinDecoder(data)

	tag, err := dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return LoaderState{}, fmt.Errorf("%w: loader tag: %v", ErrUnexpectedState, err)
	}

	state := LoaderState{Tag: tag}
	switch tag {
	case LoaderStateProgram:
		raw, err := dec.ReadNBytes(solana.PublicKeyLength)
		if err != nil {
			return LoaderState{}, fmt.Errorf("%w: programdata address: %v", ErrUnexpectedState, err)
		}
		state.ProgramData = solana.PublicKeyFromBytes(raw)
	case LoaderStateProgramData:
		slot, err := dec.ReadUint64(binary.LittleEndian)
		if err != nil {
			return LoaderState{}, fmt.Errorf("%w: deploy slot: %v", ErrUnexpectedState, err)
		}
		state.Slot = slot
		authority, err := readOptionalKey(dec)
		if err != nil {
			return LoaderState{}, err
		}
		state.UpgradeAuthority = authority
	case LoaderStateUninitialized, LoaderStateBuffer:
	default:
		return LoaderState{}, fmt.Errorf("%w: loader tag %d", ErrUnexpectedState, tag)
	}
	return state, nil
}

func readOptionalKey(dec *bin.Decoder) (*solana.PublicKey, error) {
	present, err := dec.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: authority option: %v", ErrUnexpectedState, err)
	}
	if present == 0 {
		return nil, nil
	}
	raw, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return nil, fmt.Errorf("%w: authority: %v", ErrUnexpectedState, err)
	}
	key := solana.PublicKeyFromBytes(raw)
	return &key, nil
}
