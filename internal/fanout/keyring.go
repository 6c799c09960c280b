package fanout

// dedupWindow is how many distinct idempotency keys a session remembers.
// Duplicates arrive close together (queue replays, multi-path fanout),
// so a small window is enough and keeps memory bounded.
const dedupWindow = 256

// keyRing is a fixed-capacity set of recently seen idempotency keys.
// When full, the oldest key is evicted.
type keyRing struct {
	seen  map[string]struct{}
	order []string
	cap   int
}

func newKeyRing(capacity int) *keyRing {
	return &keyRing{
		seen: make(map[string]struct{}, capacity),
		cap:  capacity,
	}
}

// remember records key and reports whether it was new.
func (r *keyRing) remember(key string) bool {
	if _, ok := r.seen[key]; ok {
		return false
	}
	if len(r.order) >= r.cap {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.seen, oldest)
	}
	r.seen[key] = struct{}{}
	r.order = append(r.order, key)
	return true
}
