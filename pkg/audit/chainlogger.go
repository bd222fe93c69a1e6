// Package audit writes a tamper-evident, hash-chained log of committed
// ledger transactions as JSON lines.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// GenesisHash is the previous hash of the first entry in a chain.
var GenesisHash = strings.Repeat("0", 64)

// LogEntry represents a single audit log entry.
type LogEntry struct {
	Sequence     uint64          `json:"sequence"`
	Timestamp    string          `json:"timestamp"`
	PreviousHash string          `json:"previous_hash"`
	Payload      json.RawMessage `json:"payload"`
	Hash         string          `json:"hash"`
}

// ChainLogger appends hash-chained entries to a sink. Each entry's hash
// covers the previous hash, so editing or dropping a line breaks the chain.
type ChainLogger struct {
	mu           sync.Mutex
	w            io.Writer
	sequence     uint64
	previousHash string
	now          func() time.Time
}

// NewChainLogger starts a new chain on w.
func NewChainLogger(w io.Writer) *ChainLogger {
	return &ChainLogger{
		w:            w,
		previousHash: GenesisHash,
		now:          time.Now,
	}
}

// Resume continues the chain after last, typically the final entry read
// back from an existing log file.
func Resume(w io.Writer, last *LogEntry) *ChainLogger {
	c := NewChainLogger(w)
	if last != nil {
		c.sequence = last.Sequence
		c.previousHash = last.Hash
	}
	return c
}

// Append marshals payload, links it to the chain and writes it as one line.
func (c *ChainLogger) Append(payload interface{}) (*LogEntry, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &LogEntry{
		Sequence:     c.sequence + 1,
		Timestamp:    c.now().UTC().Format(time.RFC3339Nano),
		PreviousHash: c.previousHash,
		Payload:      raw,
	}
	entry.Hash = hashEntry(entry)

	line, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshal audit entry: %w", err)
	}
	if _, err := c.w.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("write audit entry: %w", err)
	}

	c.sequence = entry.Sequence
	c.previousHash = entry.Hash
	return entry, nil
}

// ReadEntries decodes a JSON-lines audit log.
func ReadEntries(r io.Reader) ([]*LogEntry, error) {
	var entries []*LogEntry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry LogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("decode audit entry %d: %w", len(entries)+1, err)
		}
		entries = append(entries, &entry)
	}
	return entries, scanner.Err()
}

// VerifyChain checks that entries form an unbroken chain starting at
// genesis and returns an error naming the first entry that does not.
func VerifyChain(entries []*LogEntry) error {
	return VerifyFrom(nil, entries)
}

// VerifyFrom checks that entries continue the chain after prev. A nil prev
// means entries must start at genesis with sequence 1.
func VerifyFrom(prev *LogEntry, entries []*LogEntry) error {
	wantPrevious, wantSequence := GenesisHash, uint64(1)
	if prev != nil {
		wantPrevious, wantSequence = prev.Hash, prev.Sequence+1
	}
	for _, entry := range entries {
		if entry.PreviousHash != wantPrevious {
			return fmt.Errorf("entry %d: previous hash does not match entry %d", entry.Sequence, wantSequence-1)
		}
		if entry.Sequence != wantSequence {
			return fmt.Errorf("entry %d: sequence gap after %d", entry.Sequence, wantSequence-1)
		}
		if hashEntry(entry) != entry.Hash {
			return fmt.Errorf("entry %d: hash mismatch", entry.Sequence)
		}
		wantPrevious, wantSequence = entry.Hash, entry.Sequence+1
	}
	return nil
}

func hashEntry(e *LogEntry) string {
	hashInput := fmt.Sprintf("%d|%s|%s|%s", e.Sequence, e.PreviousHash, e.Timestamp, e.Payload)
	hash := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])
}
