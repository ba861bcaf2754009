package ledger

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// API represents the ledger access the verifier requires.
type API interface {
	Tip(ctx context.Context) (string, error)
	BlocksSince(ctx context.Context, lowHash string) (BlockSet, error)
}

// Result is the verdict of a single verification attempt. Upstream
// failures are reported inside the result, never as a Go error, so the
// caller's retry loop stays trivial.
type Result struct {
	Verified         bool
	ConfirmationTime time.Duration
	Fastest          time.Duration
	BlockHash        string
	BlockHeight      int64
	ScanCursor       string

	// Recorded indicates the transaction should still be considered
	// recorded even though this attempt failed upstream; the caller must
	// not discard it.
	Recorded bool
	Error    string
}

// timing is the ephemeral in-memory verification state for one
// transaction id. It is never persisted; a process restart starts the
// scan over with a fresh cursor.
type timing struct {
	start     time.Time
	cursor    string
	confirmed bool
	latency   time.Duration
}

// Verifier checks the ledger for evidence that a transaction id was
// included in a block, scanning forward from a per-transaction cursor so
// repeated polls only visit new blocks.
type Verifier struct {
	log     *zap.SugaredLogger
	api     API
	mu      sync.Mutex
	timings map[string]*timing
	fastest time.Duration
}

// NewVerifier constructs a verifier on top of the specified ledger API.
func NewVerifier(log *zap.SugaredLogger, api API) *Verifier {
	return &Verifier{
		log:     log,
		api:     api,
		timings: make(map[string]*timing),
	}
}

// Verify performs one poll of the ledger for the specified transaction
// id. It normalizes the id, establishes or advances the scan cursor, and
// searches every newly fetched block.
func (v *Verifier) Verify(ctx context.Context, rawID string) Result {
	txID := NormalizeID(rawID)

	tm := v.acquireTiming(txID)

	if tm.cursor == "" {
		tip, err := v.api.Tip(ctx)
		if err != nil {
			v.log.Infow("verifier: tip fetch failed", "tx", txID, "ERROR", err)
			return Result{Recorded: true, Error: err.Error()}
		}
		v.setCursor(txID, tip)
		tm.cursor = tip
	}

	set, err := v.api.BlocksSince(ctx, tm.cursor)
	if err != nil {
		v.log.Infow("verifier: block fetch failed", "tx", txID, "ERROR", err)
		return Result{Recorded: true, ScanCursor: tm.cursor, Error: err.Error()}
	}

	// Advance the cursor to the newest hash seen so the next poll only
	// rescans newer blocks.
	cursor := tm.cursor
	if len(set.BlockHashes) > 0 {
		cursor = set.BlockHashes[len(set.BlockHashes)-1]
		v.setCursor(txID, cursor)
	}

	for _, blk := range set.Blocks {
		if !matchID(blk.TransactionIDs, txID) {
			continue
		}

		latency := time.Since(tm.start)
		fastest := v.confirm(txID, latency)

		v.log.Infow("verifier: confirmed", "tx", txID, "block", blk.Hash, "latency", latency)

		return Result{
			Verified:         true,
			ConfirmationTime: latency,
			Fastest:          fastest,
			BlockHash:        blk.Hash,
			BlockHeight:      blk.Height,
			ScanCursor:       cursor,
		}
	}

	return Result{ScanCursor: cursor}
}

// acquireTiming returns a copy-by-pointer of the timing entry for the
// specified id, creating it on first use.
func (v *Verifier) acquireTiming(txID string) timing {
	v.mu.Lock()
	defer v.mu.Unlock()

	tm, exists := v.timings[txID]
	if !exists {
		tm = &timing{start: time.Now()}
		v.timings[txID] = tm
	}

	return *tm
}

// setCursor records the scan cursor for the specified id.
func (v *Verifier) setCursor(txID string, cursor string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if tm, exists := v.timings[txID]; exists {
		tm.cursor = cursor
	}
}

// confirm records the confirmation latency and maintains the process-wide
// fastest confirmation. It returns the current fastest value.
func (v *Verifier) confirm(txID string, latency time.Duration) time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()

	if tm, exists := v.timings[txID]; exists {
		tm.confirmed = true
		tm.latency = latency
	}

	if v.fastest == 0 || latency < v.fastest {
		v.fastest = latency
	}

	return v.fastest
}

// =============================================================================

// Metrics is an aggregate view over every transaction this process has
// attempted to verify.
type Metrics struct {
	Total     int           `json:"total_transactions"`
	Confirmed int           `json:"confirmed_transactions"`
	Fastest   time.Duration `json:"fastest_time"`
	Average   time.Duration `json:"average_time"`
}

// TransactionMetrics is the timing detail for one transaction id.
type TransactionMetrics struct {
	Started          time.Time     `json:"started"`
	Confirmed        bool          `json:"confirmed"`
	ConfirmationTime time.Duration `json:"confirmation_time"`
	ScanCursor       string        `json:"scan_cursor"`
}

// Metrics returns the aggregate verification metrics.
func (v *Verifier) Metrics() Metrics {
	v.mu.Lock()
	defer v.mu.Unlock()

	m := Metrics{
		Total:   len(v.timings),
		Fastest: v.fastest,
	}

	var sum time.Duration
	for _, tm := range v.timings {
		if tm.confirmed {
			m.Confirmed++
			sum += tm.latency
		}
	}

	if m.Confirmed > 0 {
		m.Average = sum / time.Duration(m.Confirmed)
	}

	return m
}

// TransactionMetrics returns the timing detail for the specified id.
func (v *Verifier) TransactionMetrics(rawID string) (TransactionMetrics, bool) {
	txID := NormalizeID(rawID)

	v.mu.Lock()
	defer v.mu.Unlock()

	tm, exists := v.timings[txID]
	if !exists {
		return TransactionMetrics{}, false
	}

	return TransactionMetrics{
		Started:          tm.start,
		Confirmed:        tm.confirmed,
		ConfirmationTime: tm.latency,
		ScanCursor:       tm.cursor,
	}, true
}
