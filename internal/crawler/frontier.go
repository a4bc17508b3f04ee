package crawler

import "sync"

// Frontier partitions every URL seen in a session into three disjoint
// sets: toVisit, inFlight and processed. A URL is in exactly one of them
// and never returns to toVisit once processed.
//
// toVisit is drained in insertion order.
type Frontier struct {
	mu        sync.Mutex
	toVisit   []string
	queued    map[string]struct{}
	inFlight  map[string]struct{}
	processed map[string]struct{}
}

// FrontierStats is a snapshot of the set sizes.
type FrontierStats struct {
	Queued    int
	InFlight  int
	Processed int
}

// Seen returns the number of distinct URLs ever pushed.
func (s FrontierStats) Seen() int {
	return s.Queued + s.InFlight + s.Processed
}

// NewFrontier creates an empty frontier.
func NewFrontier() *Frontier {
	return &Frontier{
		queued:    make(map[string]struct{}),
		inFlight:  make(map[string]struct{}),
		processed: make(map[string]struct{}),
	}
}

// Push adds url to toVisit and reports whether it was new. URLs already
// queued, in flight or processed are ignored.
func (f *Frontier) Push(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.knownLocked(url) {
		return false
	}
	f.queued[url] = struct{}{}
	f.toVisit = append(f.toVisit, url)
	return true
}

// Known reports whether url is in any of the three sets.
func (f *Frontier) Known(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.knownLocked(url)
}

func (f *Frontier) knownLocked(url string) bool {
	if _, ok := f.queued[url]; ok {
		return true
	}
	if _, ok := f.inFlight[url]; ok {
		return true
	}
	_, ok := f.processed[url]
	return ok
}

// NextChunk moves up to n URLs from toVisit to inFlight, oldest first,
// and returns them.
func (f *Frontier) NextChunk(n int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	chunk := make([]string, 0, min(n, len(f.toVisit)))
	for len(f.toVisit) > 0 && len(chunk) < n {
		url := f.toVisit[0]
		f.toVisit = f.toVisit[1:]
		delete(f.queued, url)
		if _, done := f.processed[url]; done {
			continue
		}
		f.inFlight[url] = struct{}{}
		chunk = append(chunk, url)
	}
	return chunk
}

// MarkProcessed moves url from inFlight to processed and reports whether
// it was in flight.
func (f *Frontier) MarkProcessed(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.inFlight[url]; !ok {
		return false
	}
	delete(f.inFlight, url)
	f.processed[url] = struct{}{}
	return true
}

// IsProcessed reports whether url reached the processed set.
func (f *Frontier) IsProcessed(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.processed[url]
	return ok
}

// Empty reports whether nothing is queued or in flight.
func (f *Frontier) Empty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.toVisit) == 0 && len(f.inFlight) == 0
}

// Stats returns the current set sizes.
func (f *Frontier) Stats() FrontierStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return FrontierStats{
		Queued:    len(f.toVisit),
		InFlight:  len(f.inFlight),
		Processed: len(f.processed),
	}
}
