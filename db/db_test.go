package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDb(now *time.Time) *RedisDb {
	db := New(0)
	db.now = func() time.Time { return *now }
	return db
}

func TestSetLookupDelete(t *testing.T) {
	db := New(0)

	db.SetKey("a", NewStringObject("hello"))
	db.SetKey("n", NewStringObject("42"))

	o, ok := db.LookupKey("a")
	require.True(t, ok)
	assert.Equal(t, "hello", o.String())
	assert.Equal(t, EncodingRaw, o.Encoding)

	o, ok = db.LookupKey("n")
	require.True(t, ok)
	assert.Equal(t, EncodingInt, o.Encoding)
	n, ok := o.Int()
	assert.True(t, ok)
	assert.EqualValues(t, 42, n)

	assert.Equal(t, EncodingRaw, NewStringObject("007").Encoding)

	assert.True(t, db.Delete("a"))
	assert.False(t, db.Delete("a"))
	_, ok = db.LookupKey("a")
	assert.False(t, ok)
	assert.Equal(t, 1, db.Size())

	st := db.Stats()
	assert.EqualValues(t, 2, st.Hits)
	assert.EqualValues(t, 1, st.Misses)
}

func TestExpireIsLazy(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	db := newTestDb(&now)

	db.SetKey("k", NewStringObject("v"))
	assert.False(t, db.SetExpire("missing", now.UnixMilli()+100))
	assert.True(t, db.SetExpire("k", now.UnixMilli()+100))
	assert.Equal(t, now.UnixMilli()+100, db.GetExpire("k"))

	now = now.Add(50 * time.Millisecond)
	_, ok := db.LookupKey("k")
	assert.True(t, ok)

	now = now.Add(50 * time.Millisecond)
	_, ok = db.LookupKey("k")
	assert.False(t, ok)
	assert.Equal(t, 1, db.Size(), "a read must not remove the key")

	require.NoError(t, db.Update(func(tx *Txn) error {
		_, ok := tx.Lookup("k")
		assert.False(t, ok)
		return nil
	}))
	assert.Zero(t, db.Size())
	assert.EqualValues(t, 1, db.Stats().Expired)
}

func TestSetClearsExpireAndPersist(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	db := newTestDb(&now)

	db.SetKey("k", NewStringObject("v"))
	db.SetExpire("k", now.UnixMilli()+1000)
	db.SetKey("k", NewStringObject("w"))
	assert.EqualValues(t, -1, db.GetExpire("k"))

	db.SetExpire("k", now.UnixMilli()+1000)
	assert.True(t, db.RmExpire("k"))
	assert.False(t, db.RmExpire("k"))
	assert.EqualValues(t, -1, db.GetExpire("k"))

	assert.True(t, db.SetExpire("k", now.UnixMilli()-1))
	assert.Zero(t, db.Size())
}

func TestActiveExpire(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	db := newTestDb(&now)

	for i := 0; i < 100; i++ {
		key := string(rune('a'+i%26)) + string(rune('A'+i/26))
		db.SetKey(key, NewStringObject("v"))
		if i < 60 {
			db.SetExpire(key, now.UnixMilli()+10)
		}
	}
	assert.Zero(t, db.ActiveExpire(1000))

	now = now.Add(time.Second)
	removed := 0
	for i := 0; i < 10 && db.Stats().Expires > 0; i++ {
		removed += db.ActiveExpire(1000)
	}
	assert.Equal(t, 60, removed)
	assert.Equal(t, 40, db.Size())
}

func TestFlushReleasesMemory(t *testing.T) {
	db := New(0)
	before := UsedMemory()

	db.SetKey("a", NewStringObject("some value"))
	require.NoError(t, db.Update(func(tx *Txn) error {
		o := NewListObject()
		o.List().AddNodeTail("x")
		tx.Set("l", o)
		o.List().AddNodeTail("yy")
		tx.Touch("l", o)
		return nil
	}))
	assert.Greater(t, UsedMemory(), before)

	assert.Equal(t, 2, db.Flush())
	assert.Zero(t, db.Size())
	assert.Equal(t, before, UsedMemory())
}

func TestViewIsReadOnly(t *testing.T) {
	db := New(0)
	assert.Panics(t, func() {
		_ = db.View(func(tx *Txn) error {
			tx.Set("k", NewStringObject("v"))
			return nil
		})
	})
}

func TestSetObject(t *testing.T) {
	o := NewSetObject()
	s := o.Set()
	require.NotNil(t, s)
	assert.True(t, s.Add("a"))
	assert.False(t, s.Add("a"))
	assert.True(t, s.Add("b"))
	assert.True(t, s.Contains("b"))
	assert.ElementsMatch(t, []string{"a", "b"}, s.Members())
	assert.True(t, s.Remove("a"))
	assert.Equal(t, 1, s.Len())
	assert.Nil(t, o.List())
	assert.Equal(t, "set", o.Type.String())
}
