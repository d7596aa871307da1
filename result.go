package binquery

import (
	"time"
)

// ResultIterator is a lazy, single-pass sequence of key/record pairs.
// Records failing the residual predicate are dropped before they are
// seen by the consumer. A store-side error during iteration surfaces
// through Err after Next returns false; results are never silently
// truncated. Close is idempotent and also runs automatically on
// exhaustion, so abandoning the iterator early only requires Close.
type ResultIterator struct {
	cur      Cursor
	residual *Qualifier

	logger  Logger
	metrics Metrics
	set     string
	stmtID  string
	mode    string

	entry   KeyRecord
	err     error
	closed  bool
	yielded int
	dropped int
	started time.Time
}

func (e *Engine) newIterator(stmt *CompiledStatement, cur Cursor, mode string) *ResultIterator {
	return &ResultIterator{
		cur:      cur,
		residual: stmt.Residual,
		logger:   e.logger,
		metrics:  e.metrics,
		set:      stmt.Set,
		stmtID:   stmt.ID,
		mode:     mode,
		started:  time.Now(),
	}
}

// Next advances to the next record passing the residual predicate.
// Returns false on exhaustion or error; check Err afterwards.
func (it *ResultIterator) Next() bool {
	if it.closed {
		return false
	}
	for it.cur.Next() {
		entry := it.cur.Entry()
		if it.residual != nil && !it.residual.Matches(entry) {
			it.dropped++
			continue
		}
		it.entry = entry
		it.yielded++
		return true
	}
	it.err = it.cur.Err()
	it.finish()
	return false
}

// Entry returns the current key/record pair. Only valid after a Next
// call that returned true.
func (it *ResultIterator) Entry() KeyRecord { return it.entry }

// Err returns the terminal store error, if any
func (it *ResultIterator) Err() error { return it.err }

// Close releases the underlying cursor. Safe to call any number of
// times and after exhaustion.
func (it *ResultIterator) Close() error {
	if it.closed {
		return nil
	}
	it.finish()
	return nil
}

// Collect drains the iterator into a slice and closes it
func (it *ResultIterator) Collect() ([]KeyRecord, error) {
	var out []KeyRecord
	for it.Next() {
		out = append(out, it.Entry())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (it *ResultIterator) finish() {
	if it.closed {
		return
	}
	it.closed = true
	if closeErr := it.cur.Close(); closeErr != nil && it.err == nil {
		it.err = closeErr
	}

	duration := time.Since(it.started)
	it.metrics.Timing(MetricExecuteDuration, duration, "set", it.set, "mode", it.mode)
	it.metrics.Histogram(MetricQueryRows, float64(it.yielded), "set", it.set)
	if it.dropped > 0 {
		it.metrics.Histogram(MetricResidualDropped, float64(it.dropped), "set", it.set)
	}
	if it.err != nil {
		it.metrics.Increment(MetricIteratorErrors, "set", it.set)
		it.logger.Error("result iteration failed",
			"statement", it.stmtID,
			"set", it.set,
			"error", it.err,
		)
		return
	}
	it.logger.Debug("statement executed",
		"statement", it.stmtID,
		"set", it.set,
		"mode", it.mode,
		"rows", it.yielded,
		"dropped", it.dropped,
		"duration_ms", duration.Milliseconds(),
	)
}
