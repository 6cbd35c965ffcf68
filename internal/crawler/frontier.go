package crawler

// Frontier is the dedupe-aware work set of URLs still to visit plus the
// set of URLs already fetched. It deliberately promises no ordering: Pop
// returns an arbitrary pending URL, and callers must not assume FIFO.
// The visited set only grows, which is what guarantees termination.
type Frontier struct {
	pending map[string]struct{}
	visited map[string]struct{}
}

// NewFrontier seeds the frontier with the crawl entry URL.
func NewFrontier(seed string) *Frontier {
	f := &Frontier{
		pending: make(map[string]struct{}),
		visited: make(map[string]struct{}),
	}
	if seed != "" {
		f.pending[seed] = struct{}{}
	}
	return f
}

// Add enqueues a URL unless it is empty, already pending, or already
// visited. It reports whether the URL was newly admitted.
func (f *Frontier) Add(url string) bool {
	if url == "" {
		return false
	}
	if _, seen := f.visited[url]; seen {
		return false
	}
	if _, queued := f.pending[url]; queued {
		return false
	}
	f.pending[url] = struct{}{}
	return true
}

// Pop removes and returns an arbitrary pending URL. ok is false when the
// frontier is drained.
func (f *Frontier) Pop() (string, bool) {
	for url := range f.pending {
		delete(f.pending, url)
		return url, true
	}
	return "", false
}

// MarkVisited records a URL as fetched. It reports false when the URL had
// already been visited, so the crawl loop can skip duplicates that slipped
// into the pending set before the first copy was drained.
func (f *Frontier) MarkVisited(url string) bool {
	if _, seen := f.visited[url]; seen {
		return false
	}
	f.visited[url] = struct{}{}
	return true
}

// Len returns the number of pending URLs.
func (f *Frontier) Len() int {
	return len(f.pending)
}

// VisitedCount returns how many URLs have been fetched.
func (f *Frontier) VisitedCount() int {
	return len(f.visited)
}
