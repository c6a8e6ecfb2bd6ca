package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrChainRead is returned when blocks cannot be loaded for validation.
var ErrChainRead = errors.New("failed to read ledger blocks")

const (
	msgChainValid    = "Blockchain is valid"
	msgChainTampered = "Blockchain tampering detected!"
	msgChainEmpty    = "No blocks to validate"
)

// TipReader exposes the most recent block. LatestBlock returns (nil, nil) on an empty chain.
type TipReader interface {
	LatestBlock(ctx context.Context) (*Block, error)
}

// BlockWriter persists a new block.
type BlockWriter interface {
	InsertBlock(ctx context.Context, block Block) error
}

// BlockStore is the storage surface the ledger appends to.
type BlockStore interface {
	TipReader
	BlockWriter
}

// BlockLister returns every block ordered by index ascending.
type BlockLister interface {
	ListBlocks(ctx context.Context) ([]Block, error)
}

// BlockResult is the per-block outcome of ValidateChain.
type BlockResult struct {
	Index          int64  `json:"index"`
	HashValid      bool   `json:"hash_valid"`
	LinkValid      bool   `json:"link_valid"`
	MerkleValid    bool   `json:"merkle_valid"`
	Valid          bool   `json:"valid"`
	StoredHash     string `json:"stored_hash"`
	CalculatedHash string `json:"calculated_hash"`
}

// ValidationReport summarizes a full chain check. Tampering is reported here, not as an error.
type ValidationReport struct {
	Valid         bool          `json:"valid"`
	BlocksChecked int           `json:"blocks_checked"`
	Results       []BlockResult `json:"results"`
	Message       string        `json:"message"`
}

// Ledger creates, appends and validates blocks. It holds no chain state of its own;
// callers that append concurrently must serialize on the store (see store.LockLedger).
type Ledger struct {
	now func() time.Time
}

// New returns a Ledger using the wall clock.
func New() *Ledger {
	return &Ledger{now: time.Now}
}

// NewWithClock returns a Ledger with an injected clock.
func NewWithClock(now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{now: now}
}

// CreateBlock builds the next block on top of the current tip without persisting it.
func (l *Ledger) CreateBlock(ctx context.Context, tip TipReader, records []json.RawMessage) (Block, error) {
	latest, err := tip.LatestBlock(ctx)
	if err != nil {
		return Block{}, fmt.Errorf("read ledger tip: %w", err)
	}

	index := int64(0)
	previous := GenesisPreviousHash
	if latest != nil {
		index = latest.Index + 1
		previous = latest.Hash
	}
	return NewBlock(index, l.now(), records, previous)
}

// Append creates the next block from records and inserts it.
func (l *Ledger) Append(ctx context.Context, store BlockStore, records ...json.RawMessage) (Block, error) {
	block, err := l.CreateBlock(ctx, store, records)
	if err != nil {
		return Block{}, err
	}
	if err := store.InsertBlock(ctx, block); err != nil {
		return Block{}, fmt.Errorf("insert block %d: %w", block.Index, err)
	}
	return block, nil
}

// ValidateChain recomputes every block hash, Merkle root and link.
func (l *Ledger) ValidateChain(ctx context.Context, lister BlockLister) (ValidationReport, error) {
	blocks, err := lister.ListBlocks(ctx)
	if err != nil {
		return ValidationReport{}, fmt.Errorf("%w: %v", ErrChainRead, err)
	}
	return Validate(blocks), nil
}

// Validate checks an ordered slice of stored blocks.
func Validate(blocks []Block) ValidationReport {
	if len(blocks) == 0 {
		return ValidationReport{Valid: true, Results: []BlockResult{}, Message: msgChainEmpty}
	}

	report := ValidationReport{
		Valid:         true,
		BlocksChecked: len(blocks),
		Results:       make([]BlockResult, 0, len(blocks)),
	}
	for i, b := range blocks {
		res := BlockResult{Index: b.Index, StoredHash: b.Hash, LinkValid: true}

		// A record that no longer parses cannot reproduce any stored hash.
		if calculated, err := b.ComputeHash(); err == nil {
			res.CalculatedHash = calculated
			res.HashValid = calculated == b.Hash
		}
		if i > 0 {
			res.LinkValid = b.PreviousHash == blocks[i-1].Hash
		}
		if root, err := MerkleRoot(b.Transactions); err == nil {
			res.MerkleValid = root == b.MerkleRoot
		}

		res.Valid = res.HashValid && res.LinkValid && res.MerkleValid
		if !res.Valid {
			report.Valid = false
		}
		report.Results = append(report.Results, res)
	}

	report.Message = msgChainValid
	if !report.Valid {
		report.Message = msgChainTampered
	}
	return report
}
