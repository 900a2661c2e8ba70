package chain

// ring is a fixed-capacity string buffer with oldest-first eviction. It backs
// the chain's recent-path window so the trail never grows unbounded.
type ring struct {
	buf   []string
	start int
	n     int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]string, capacity)}
}

// push appends v, evicting the oldest entry when full.
func (r *ring) push(v string) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = v
		r.n++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

// slice returns the contents oldest first.
func (r *ring) slice() []string {
	out := make([]string, 0, r.n)
	for i := 0; i < r.n; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}
