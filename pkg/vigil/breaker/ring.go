package breaker

// errorRing is a fixed-capacity ring of ErrorRecord values. Once full,
// each add evicts the oldest record. Not safe for concurrent use; the
// engine serializes access under its own mutex.
type errorRing struct {
	records []ErrorRecord
	head    int // next write position
	size    int
}

func newErrorRing(capacity int) *errorRing {
	return &errorRing{
		records: make([]ErrorRecord, capacity),
	}
}

func (r *errorRing) add(rec ErrorRecord) {
	if len(r.records) == 0 {
		return
	}
	r.records[r.head] = rec
	r.head = (r.head + 1) % len(r.records)
	if r.size < len(r.records) {
		r.size++
	}
}

func (r *errorRing) len() int {
	return r.size
}

// recent returns up to n records, newest first.
func (r *errorRing) recent(n int) []ErrorRecord {
	if n <= 0 || n > r.size {
		n = r.size
	}
	out := make([]ErrorRecord, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.head - i + len(r.records)) % len(r.records)
		out = append(out, r.records[idx])
	}
	return out
}
