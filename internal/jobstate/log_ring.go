package jobstate

// logRing keeps the most recent entries up to a fixed capacity.
type logRing struct {
	buffer []LogEntry
	start  int
	count  int
}

func newLogRing(capacity int) logRing {
	return logRing{buffer: make([]LogEntry, capacity)}
}

func (ring *logRing) push(entry LogEntry) {
	capacity := len(ring.buffer)
	if ring.count < capacity {
		ring.buffer[(ring.start+ring.count)%capacity] = entry
		ring.count++
		return
	}
	ring.buffer[ring.start] = entry
	ring.start = (ring.start + 1) % capacity
}

func (ring *logRing) clear() {
	for index := range ring.buffer {
		ring.buffer[index] = LogEntry{}
	}
	ring.start = 0
	ring.count = 0
}

// entries returns the retained entries oldest first in a freshly allocated slice.
func (ring *logRing) entries() []LogEntry {
	ordered := make([]LogEntry, 0, ring.count)
	capacity := len(ring.buffer)
	for offset := 0; offset < ring.count; offset++ {
		ordered = append(ordered, ring.buffer[(ring.start+offset)%capacity])
	}
	return ordered
}
