package scheduler

import (
	"container/heap"
	"time"
)

// timerHeap orders timer and periodic watchers by their next expiry.
type timerHeap []*timerWatcher

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].when.Before(h[j].when) }

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	w := x.(*timerWatcher)
	w.index = len(*h)
	*h = append(*h, w)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*h = old[:n-1]
	return w
}

func (h *timerHeap) schedule(w *timerWatcher, when time.Time) {
	w.when = when
	if w.index >= 0 {
		heap.Fix(h, w.index)
		return
	}
	heap.Push(h, w)
}

func (h *timerHeap) remove(w *timerWatcher) {
	if w.index >= 0 {
		heap.Remove(h, w.index)
	}
}

// timeout returns how long the loop may block before the next expiry, or
// -1 when nothing is scheduled.
func (h timerHeap) timeout(now time.Time) time.Duration {
	if len(h) == 0 {
		return -1
	}
	d := h[0].when.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// expire removes every watcher due at now and returns them in expiry
// order. Periodic watchers are pushed back at their next multiple of the
// interval; missed ticks are skipped rather than replayed.
func (h *timerHeap) expire(now time.Time, fired []*timerWatcher) []*timerWatcher {
	for h.Len() > 0 {
		w := (*h)[0]
		if w.when.After(now) {
			break
		}
		fired = append(fired, w)
		if w.periodic && w.interval > 0 {
			missed := now.Sub(w.when) / w.interval
			h.schedule(w, w.when.Add((missed+1)*w.interval))
			continue
		}
		heap.Pop(h)
	}
	return fired
}
