package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// MaxBatchSize is the getMultipleAccounts limit enforced by RPC nodes.
const MaxBatchSize = 100

// RPCOptions parameterise the RPC reader.
type RPCOptions struct {
	Endpoint   string
	Commitment string
	Timeout    time.Duration
	RateLimit  float64
	RateBurst  int
	BatchSize  int
}

// RPCReader reads account state through the Solana JSON-RPC API.
type RPCReader struct {
	client     *rpc.Client
	commitment rpc.CommitmentType
	timeout    time.Duration
	batchSize  int
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// NewRPCReader builds a reader against the configured endpoint.
func NewRPCReader(opts RPCOptions, logger zerolog.Logger) *RPCReader {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	batch := opts.BatchSize
	if batch <= 0 || batch > MaxBatchSize {
		batch = MaxBatchSize
	}
	commitment := rpc.CommitmentType(opts.Commitment)
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &RPCReader{
		client:     rpc.New(opts.Endpoint),
		commitment: commitment,
		timeout:    timeout,
		batchSize:  batch,
		limiter:    limiter,
		logger:     logger.With().Str("component", "rpc_reader").Logger(),
	}
}

// GetMultipleAccounts fetches keys in as few getMultipleAccounts calls as the batch limit allows.
func (r *RPCReader) GetMultipleAccounts(ctx context.Context, keys []solana.PublicKey) ([]*AccountInfo, error) {
	out := make([]*AccountInfo, 0, len(keys))
	for start := 0; start < len(keys); start += r.batchSize {
		end := start + r.batchSize
		if end > len(keys) {
			end = len(keys)
		}
		batch, err := r.fetchBatch(ctx, keys[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (r *RPCReader) fetchBatch(ctx context.Context, keys []solana.PublicKey) ([]*AccountInfo, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.client.GetMultipleAccountsWithOpts(callCtx, keys, &rpc.GetMultipleAccountsOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: r.commitment,
	})
	if err != nil {
		return nil, fmt.Errorf("getMultipleAccounts: %w", err)
	}
	if res == nil {
		return nil, errors.New("getMultipleAccounts: empty response")
	}
	if len(res.Value) != len(keys) {
		return nil, fmt.Errorf("getMultipleAccounts: requested %d accounts, got %d", len(keys), len(res.Value))
	}

	infos := make([]*AccountInfo, len(keys))
	for i, acc := range res.Value {
		if acc == nil {
			continue
		}
		var data []byte
		if acc.Data != nil {
			data = acc.Data.GetBinary()
		}
		infos[i] = &AccountInfo{
			Address:  keys[i],
			Owner:    acc.Owner,
			Lamports: acc.Lamports,
			Data:     data,
		}
	}

	r.logger.Debug().Int("accounts", len(keys)).Msg("fetched account batch")
	return infos, nil
}

// Ping checks node health.
func (r *RPCReader) Ping(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if _, err := r.client.GetHealth(callCtx); err != nil {
		return fmt.Errorf("getHealth: %w", err)
	}
	return nil
}

var _ AccountReader = (*RPCReader)(nil)
