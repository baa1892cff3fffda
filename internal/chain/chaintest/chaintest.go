// Package chaintest provides account layouts and an in-memory AccountReader for tests.
package chaintest

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/gagliardetto/solana-go"

	"vault-watcher/internal/chain"
)

// NewKey returns a deterministic key derived from seed.
func NewKey(seed byte) solana.PublicKey {
	var key solana.PublicKey
	for i := range key {
		key[i] = seed
	}
	key[0] = seed ^ 0x5a
	return key
}

// TokenAccountData encodes a 165-byte SPL token account.
func TokenAccountData(mint, owner solana.PublicKey, amount uint64) []byte {
	buf := make([]byte, 165)
	copy(buf[0:32], mint[:])
	copy(buf[32:64], owner[:])
	binary.LittleEndian.PutUint64(buf[64:72], amount)
	// delegate: COption none (72..108)
	buf[108] = 1 // initialized
	// is_native (109..121), delegated_amount (121..129), close_authority (129..165) stay zero
	return buf
}

// MintData encodes an 82-byte SPL mint.
func MintData(decimals uint8) []byte {
	buf := make([]byte, 82)
	binary.LittleEndian.PutUint64(buf[36:44], 1_000_000)
	buf[44] = decimals
	buf[45] = 1
	return buf
}

// ProgramAccountData encodes an upgradeable loader Program account.
func ProgramAccountData(programData solana.PublicKey) []byte {
	buf := make([]byte, 36)
	binary.LittleEndian.PutUint32(buf[0:4], chain.LoaderStateProgram)
	copy(buf[4:36], programData[:])
	return buf
}

// ProgramDataData encodes the header of an upgradeable loader ProgramData account.
func ProgramDataData(slot uint64, authority *solana.PublicKey) []byte {
	buf := make([]byte, 45)
	binary.LittleEndian.PutUint32(buf[0:4], chain.LoaderStateProgramData)
	binary.LittleEndian.PutUint64(buf[4:12], slot)
	if authority != nil {
		buf[12] = 1
		copy(buf[13:45], authority[:])
	}
	return buf
}

// Reader is an in-memory AccountReader.
type Reader struct {
	mu       sync.Mutex
	accounts map[solana.PublicKey]*chain.AccountInfo
	failures []error
	calls    int
}

// NewReader returns an empty reader.
func NewReader() *Reader {
	return &Reader{accounts: make(map[solana.PublicKey]*chain.AccountInfo)}
}

// Set stores or replaces an account.
func (r *Reader) Set(key, owner solana.PublicKey, lamports uint64, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[key] = &chain.AccountInfo{Address: key, Owner: owner, Lamports: lamports, Data: data}
}

// Delete removes an account.
func (r *Reader) Delete(key solana.PublicKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accounts, key)
}

// FailNext queues errors returned by the next calls, in order.
func (r *Reader) FailNext(errs ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, errs...)
}

// Calls reports how many times GetMultipleAccounts ran.
func (r *Reader) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// GetMultipleAccounts implements chain.AccountReader.
func (r *Reader) GetMultipleAccounts(ctx context.Context, keys []solana.PublicKey) ([]*chain.AccountInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if len(r.failures) > 0 {
		err := r.failures[0]
		r.failures = r.failures[1:]
		return nil, err
	}
	out := make([]*chain.AccountInfo, len(keys))
	for i, key := range keys {
		if acc, ok := r.accounts[key]; ok {
			cp := *acc
			cp.Data = append([]byte(nil), acc.Data...)
			out[i] = &cp
		}
	}
	return out, nil
}

var _ chain.AccountReader = (*Reader)(nil)
