package uci

// logRing is a bounded chronological wire log. When the cap is reached the
// oldest half is dropped and a marker entry records the truncation, so a
// long-lived session cannot grow without bound.
type logRing struct {
	entries   []EngineLog
	cap       int
	truncated int
}

func newLogRing(cap int) *logRing {
	if cap <= 0 {
		cap = 4096
	}
	return &logRing{cap: cap}
}

func (r *logRing) append(entry EngineLog) {
	if len(r.entries) >= r.cap {
		half := len(r.entries) / 2
		r.truncated += half
		kept := make([]EngineLog, 0, r.cap)
		kept = append(kept, EngineLog{
			Direction: "gui",
			Text:      "[log truncated]",
		})
		kept = append(kept, r.entries[half:]...)
		r.entries = kept
	}
	r.entries = append(r.entries, entry)
}

func (r *logRing) snapshot() []EngineLog {
	out := make([]EngineLog, len(r.entries))
	copy(out, r.entries)
	return out
}
