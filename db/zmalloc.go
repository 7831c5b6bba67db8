package db

import (
	"sync/atomic"
	"unsafe"
)

var usedMemory int64 = 0

// UsedMemory returns the estimated bytes held by all keyspaces.
func UsedMemory() int64 {
	return atomic.LoadInt64(&usedMemory)
}

func updateZmallocStatAlloc(n int64) {
	atomic.AddInt64(&usedMemory, n)
}

func updateZmallocStatFree(n int64) {
	atomic.AddInt64(&usedMemory, -n)
}

// account charges the current size of key and o, releasing what was
// charged for o before.
func account(key string, o *RedisObj) {
	n := estimateMemoryUsage(key) + estimateMemoryUsage(o)
	updateZmallocStatAlloc(n - o.accounted)
	o.accounted = n
}

func release(o *RedisObj) {
	updateZmallocStatFree(o.accounted)
	o.accounted = 0
}

func estimateMemoryUsage(v any) int64 {
	switch value := v.(type) {
	case int64:
		return int64(unsafe.Sizeof(value))
	case string:
		// 16 bytes for string header on 64-bit system + actual string content
		return int64(16 + len(value))
	case *RedisObj:
		n := int64(unsafe.Sizeof(*value))
		switch inner := value.Value.(type) {
		case *List[string]:
			for node := inner.Head; node != nil; node = node.Next {
				n += int64(unsafe.Sizeof(*node)) + int64(len(node.Value))
			}
		case *Set[string]:
			inner.data.Range(func(key string, _ sentinel) bool {
				n += int64(unsafe.Sizeof(Entry[string, sentinel]{})) + int64(len(key))
				return true
			})
		default:
			n += estimateMemoryUsage(inner)
		}
		return n
	default:
		return 0
	}
}
