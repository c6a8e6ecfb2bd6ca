/**
 * @description
 * Package ledger implements the hash-linked block chain used as the tamper-evident log of
 * settled transfers. Every block commits to its batch of transaction records through a
 * Merkle root and to its predecessor through previous_hash.
 *
 * Hashes are computed over a canonical JSON form (sorted keys, compact separators, no HTML
 * escaping, numbers kept as their literal text) so a block read back from storage hashes to
 * the same value it was written with.
 */

package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the ISO-8601 form stored on every block (UTC, microseconds).
const TimestampLayout = "2006-01-02T15:04:05.000000"

// GenesisPreviousHash is the previous_hash value of the block at index 0.
var GenesisPreviousHash = strings.Repeat("0", 64)

// Block is one append-only batch of transaction records.
type Block struct {
	Index        int64             `json:"index"`
	Timestamp    string            `json:"timestamp"`
	Transactions []json.RawMessage `json:"transactions"`
	PreviousHash string            `json:"previous_hash"`
	MerkleRoot   string            `json:"merkle_root"`
	Hash         string            `json:"hash"`
}

// NewBlock builds a block and fills in its Merkle root and hash.
func NewBlock(index int64, timestamp time.Time, records []json.RawMessage, previousHash string) (Block, error) {
	if records == nil {
		records = []json.RawMessage{}
	}
	b := Block{
		Index:        index,
		Timestamp:    FormatTimestamp(timestamp),
		Transactions: records,
		PreviousHash: previousHash,
	}

	root, err := MerkleRoot(records)
	if err != nil {
		return Block{}, err
	}
	b.MerkleRoot = root

	hash, err := b.ComputeHash()
	if err != nil {
		return Block{}, err
	}
	b.Hash = hash
	return b, nil
}

// GenesisBlock returns the index-0 block with an empty batch.
func GenesisBlock(now time.Time) (Block, error) {
	return NewBlock(0, now, nil, GenesisPreviousHash)
}

// FormatTimestamp renders t in the block timestamp layout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ComputeHash hashes the block header and batch. The stored Hash field is not an input.
func (b Block) ComputeHash() (string, error) {
	records := b.Transactions
	if records == nil {
		records = []json.RawMessage{}
	}
	payload, err := CanonicalJSON(map[string]any{
		"index":         b.Index,
		"timestamp":     b.Timestamp,
		"transactions":  records,
		"previous_hash": b.PreviousHash,
		"merkle_root":   b.MerkleRoot,
	})
	if err != nil {
		return "", fmt.Errorf("canonicalize block %d: %w", b.Index, err)
	}
	return sha256Hex(payload), nil
}

// MerkleRoot hashes each record's canonical JSON and folds the leaves pairwise.
// Odd levels duplicate their last hash; an empty batch yields SHA256("").
func MerkleRoot(records []json.RawMessage) (string, error) {
	if len(records) == 0 {
		return sha256Hex(nil), nil
	}

	level := make([]string, 0, len(records))
	for i, rec := range records {
		canon, err := CanonicalJSON(rec)
		if err != nil {
			return "", fmt.Errorf("canonicalize record %d: %w", i, err)
		}
		level = append(level, sha256Hex(canon))
	}

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := make([]string, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, sha256Hex([]byte(level[i]+level[i+1])))
		}
		level = next
	}
	return level[0], nil
}

// CanonicalJSON returns a deterministic encoding of v: object keys sorted at every depth,
// no insignificant whitespace, no HTML escaping, numbers written exactly as they appear.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
