package scheduler

import "sync"

// registry maps tokens to watchers. Released tokens are kept on a free stack
// and handed out again last-in first-out. Slot 0 is reserved.
type registry struct {
	mu    sync.Mutex
	slots []watcher
	frees []EventToken
}

func newRegistry() *registry {
	return &registry{slots: make([]watcher, 1, 64)}
}

func (r *registry) register(w watcher) EventToken {
	r.mu.Lock()
	defer r.mu.Unlock()

	var token EventToken
	if n := len(r.frees); n > 0 {
		token = r.frees[n-1]
		r.frees = r.frees[:n-1]
		r.slots[token] = w
	} else {
		token = EventToken(len(r.slots))
		r.slots = append(r.slots, w)
	}
	return token
}

// unregister releases token only if it still belongs to w, so a racing
// second uninstall of a recycled token cannot free the new owner's slot.
func (r *registry) unregister(token EventToken, w watcher) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if token == 0 || token >= EventToken(len(r.slots)) || r.slots[token] != w {
		return false
	}
	r.slots[token] = nil
	r.frees = append(r.frees, token)
	return true
}

func (r *registry) lookup(token EventToken) watcher {
	r.mu.Lock()
	defer r.mu.Unlock()

	if token >= EventToken(len(r.slots)) {
		return nil
	}
	return r.slots[token]
}

func (r *registry) counts() (live map[EventType]int, free int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	live = make(map[EventType]int)
	for _, w := range r.slots {
		if w != nil {
			live[w.kind()]++
		}
	}
	return live, len(r.frees)
}

func (r *registry) signals() []*notifyWatcher {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*notifyWatcher
	for _, w := range r.slots {
		if n, ok := w.(*notifyWatcher); ok && n.ch != nil {
			out = append(out, n)
		}
	}
	return out
}

// lookupAs returns the watcher for token when it has the requested type.
// A kind mismatch is treated like a stale token.
func lookupAs[W watcher](r *registry, token EventToken) W {
	w, _ := r.lookup(token).(W)
	return w
}
