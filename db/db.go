package db

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	INITIAL_DB_SIZE = 16

	// ActiveExpire gives up a cycle early once fewer than this share of
	// sampled keys turned out to be expired.
	activeExpireAcceptable = 0.25
)

// RedisDb represents a Redis database. Every access goes through a Txn
// which holds the keyspace lock for the duration of one command.
type RedisDb struct {
	id int

	mu     sync.RWMutex
	dict   *HashTable[string, *RedisObj] // the keyspace for this DB
	expire *HashTable[string, int64]     // unix ms deadline of keys with a timeout set

	hits    atomic.Int64
	misses  atomic.Int64
	expired atomic.Int64

	now func() time.Time
}

type Stats struct {
	Keys    int
	Expires int
	Hits    int64
	Misses  int64
	Expired int64
}

func New(id int) *RedisDb {
	return &RedisDb{
		id:     id,
		dict:   NewHashTable[string, *RedisObj](INITIAL_DB_SIZE),
		expire: NewHashTable[string, int64](INITIAL_DB_SIZE),
		now:    time.Now,
	}
}

func (db *RedisDb) ID() int { return db.id }

// Update runs fn with exclusive access to the keyspace.
func (db *RedisDb) Update(fn func(tx *Txn) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return fn(&Txn{db: db, write: true, now: db.mstime()})
}

// View runs fn with shared access. Expired keys read as missing but are
// left for a later Update or the active expire cycle to remove.
func (db *RedisDb) View(fn func(tx *Txn) error) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return fn(&Txn{db: db, now: db.mstime()})
}

// LookupKey is a single-key View.
func (db *RedisDb) LookupKey(key string) (o *RedisObj, ok bool) {
	_ = db.View(func(tx *Txn) error {
		o, ok = tx.Lookup(key)
		return nil
	})
	return o, ok
}

// SetKey is a single-key Update; any timeout of key is removed.
func (db *RedisDb) SetKey(key string, o *RedisObj) {
	_ = db.Update(func(tx *Txn) error {
		tx.Set(key, o)
		return nil
	})
}

func (db *RedisDb) Delete(key string) (ok bool) {
	_ = db.Update(func(tx *Txn) error {
		ok = tx.Delete(key)
		return nil
	})
	return ok
}

// GetExpire returns the unix ms deadline of key, or -1 without one.
func (db *RedisDb) GetExpire(key string) (when int64) {
	_ = db.View(func(tx *Txn) error {
		when = tx.GetExpire(key)
		return nil
	})
	return when
}

func (db *RedisDb) SetExpire(key string, when int64) (ok bool) {
	_ = db.Update(func(tx *Txn) error {
		ok = tx.SetExpire(key, when)
		return nil
	})
	return ok
}

func (db *RedisDb) RmExpire(key string) (ok bool) {
	_ = db.Update(func(tx *Txn) error {
		ok = tx.RmExpire(key)
		return nil
	})
	return ok
}

func (db *RedisDb) Size() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.dict.Len()
}

// Flush removes every key and returns how many were removed.
func (db *RedisDb) Flush() (n int) {
	_ = db.Update(func(tx *Txn) error {
		n = tx.Flush()
		return nil
	})
	return n
}

// ActiveExpire samples keys with a timeout and removes the expired ones,
// repeating while a sample is mostly expired. At most limit keys are
// sampled in total. It returns the number of keys removed.
func (db *RedisDb) ActiveExpire(limit int) int {
	const sample = 20

	db.mu.Lock()
	defer db.mu.Unlock()

	now := db.mstime()
	removed := 0
	for sampled := 0; sampled < limit && !db.expire.Empty(); {
		n := sample
		if limit-sampled < n {
			n = limit - sampled
		}
		keys := db.expire.GetSomeKeys(n)
		sampled += len(keys)

		expired := 0
		for _, key := range keys {
			if when, _ := db.expire.Get(key); when <= now {
				db.remove(key)
				db.expired.Add(1)
				expired++
			}
		}
		removed += expired
		if float64(expired) < float64(len(keys))*activeExpireAcceptable {
			break
		}
	}
	return removed
}

func (db *RedisDb) Stats() Stats {
	db.mu.RLock()
	keys, expires := db.dict.Len(), db.expire.Len()
	db.mu.RUnlock()

	return Stats{
		Keys:    keys,
		Expires: expires,
		Hits:    db.hits.Load(),
		Misses:  db.misses.Load(),
		Expired: db.expired.Load(),
	}
}

func (db *RedisDb) mstime() int64 {
	return db.now().UnixMilli()
}

func (db *RedisDb) remove(key string) bool {
	o, ok := db.dict.Get(key)
	if !ok {
		return false
	}
	db.dict.Delete(key)
	db.expire.Delete(key)
	release(o)
	return true
}

// Txn is the keyspace as seen by one command. It must not be used after
// the Update or View callback returned.
type Txn struct {
	db    *RedisDb
	write bool
	now   int64
}

// Now is the command's clock in unix ms, fixed for the whole Txn.
func (tx *Txn) Now() int64 { return tx.now }

func (tx *Txn) expired(key string) bool {
	when, ok := tx.db.expire.Get(key)
	return ok && when <= tx.now
}

// Lookup returns the live object stored at key.
func (tx *Txn) Lookup(key string) (*RedisObj, bool) {
	if tx.expired(key) {
		if tx.write {
			tx.db.remove(key)
			tx.db.expired.Add(1)
		}
		tx.db.misses.Add(1)
		return nil, false
	}
	o, ok := tx.db.dict.Get(key)
	if ok {
		tx.db.hits.Add(1)
	} else {
		tx.db.misses.Add(1)
	}
	return o, ok
}

// Set stores o at key and clears its timeout. Calling it again with the
// same object after an in-place change re-accounts its memory.
func (tx *Txn) Set(key string, o *RedisObj) {
	tx.mustWrite()
	if old, ok := tx.db.dict.Get(key); ok && old != o {
		release(old)
	}
	tx.db.dict.Set(key, o)
	tx.db.expire.Delete(key)
	account(key, o)
}

// Touch re-accounts o after an in-place change, keeping its timeout.
func (tx *Txn) Touch(key string, o *RedisObj) {
	tx.mustWrite()
	account(key, o)
}

func (tx *Txn) Delete(key string) bool {
	tx.mustWrite()
	if tx.expired(key) {
		tx.db.remove(key)
		tx.db.expired.Add(1)
		return false
	}
	return tx.db.remove(key)
}

func (tx *Txn) Exists(key string) bool {
	if tx.expired(key) {
		return false
	}
	_, ok := tx.db.dict.Get(key)
	return ok
}

// GetExpire returns the unix ms deadline of key, or -1 if key has none.
func (tx *Txn) GetExpire(key string) int64 {
	when, ok := tx.db.expire.Get(key)
	if !ok {
		return -1
	}
	return when
}

// SetExpire sets the deadline of an existing key. A deadline in the past
// removes the key at once.
func (tx *Txn) SetExpire(key string, when int64) bool {
	tx.mustWrite()
	if !tx.Exists(key) {
		return false
	}
	if when <= tx.now {
		tx.db.remove(key)
		tx.db.expired.Add(1)
		return true
	}
	tx.db.expire.Set(key, when)
	return true
}

func (tx *Txn) RmExpire(key string) bool {
	tx.mustWrite()
	if !tx.Exists(key) {
		return false
	}
	return tx.db.expire.Delete(key)
}

func (tx *Txn) Size() int {
	return tx.db.dict.Len()
}

func (tx *Txn) Flush() int {
	tx.mustWrite()
	n := tx.db.dict.Len()
	tx.db.dict.Range(func(_ string, o *RedisObj) bool {
		release(o)
		return true
	})
	tx.db.dict.Clear(INITIAL_DB_SIZE)
	tx.db.expire.Clear(INITIAL_DB_SIZE)
	return n
}

func (tx *Txn) mustWrite() {
	if !tx.write {
		panic("db: write in a read-only transaction")
	}
}
