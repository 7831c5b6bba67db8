package db

import (
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestNewList(t *testing.T) {
	list := NewList[int]()
	assert.Nil(t, list.Head)
	assert.Nil(t, list.Tail)
	assert.Equal(t, 0, list.Len())
}

func TestAddNodeHead(t *testing.T) {
	list := NewList[int]()
	list.AddNodeHead(5)
	assert.Equal(t, 5, list.Head.Value)
	assert.Equal(t, 5, list.Tail.Value)
	assert.Equal(t, 1, list.Len())
}

func TestAddNodeTail(t *testing.T) {
	list := NewList[int]()
	list.AddNodeTail(5)
	assert.Equal(t, 5, list.Head.Value)
	assert.Equal(t, 5, list.Tail.Value)
	assert.Equal(t, 1, list.Len())

	list.AddNodeTail(10)
	assert.Equal(t, 5, list.Head.Value)
	assert.Equal(t, 10, list.Tail.Value)
	assert.Equal(t, 2, list.Len())
}

func TestEmpty(t *testing.T) {
	list := NewList[int]()
	list.AddNodeTail(5)
	list.AddNodeTail(10)
	list.Empty()
	assert.Nil(t, list.Head)
	assert.Nil(t, list.Tail)
	assert.Equal(t, 0, list.Len())
}

func TestRelease(t *testing.T) {
	list := NewList[int]()
	list.AddNodeTail(5)
	list.AddNodeTail(10)
	list.Release()
	assert.Nil(t, list.Head)
	assert.Nil(t, list.Tail)
	assert.Equal(t, 0, list.Len())
}

func TestInsertNode(t *testing.T) {
	list := NewList[int]()
	list.AddNodeTail(5)
	list.AddNodeTail(10)
	err := list.InsertNode(list.Head, 7, true)
	assert.Nil(t, err)
	assert.Equal(t, 3, list.Len())
	assert.Equal(t, 5, list.Head.Value)
	assert.Equal(t, 10, list.Tail.Value)
	assert.Equal(t, 7, list.Head.Next.Value)
}

func TestRemoveNode(t *testing.T) {
	list := NewList[int]()
	list.AddNodeTail(5)
	list.AddNodeTail(10)
	err := list.RemoveNode(list.Head)
	assert.Nil(t, err)
	assert.Equal(t, 1, list.Len())
	assert.Equal(t, 10, list.Head.Value)
	assert.Equal(t, 10, list.Tail.Value)
}

func TestInsertNodeBefore(t *testing.T) {
	list := NewList[int]()
	list.AddNodeTail(5)
	list.AddNodeTail(10)
	assert.NoError(t, list.InsertNode(list.Tail, 7, false))
	assert.NoError(t, list.InsertNode(list.Head, 1, false))
	assert.Error(t, list.InsertNode(nil, 0, true))

	var got []int
	it := list.Iter(DIRECTION_HEAD)
	for n := it.Next(); n != nil; n = it.Next() {
		got = append(got, n.Value)
	}
	assert.Equal(t, []int{1, 5, 7, 10}, got)
	assert.Equal(t, 4, list.Len())
}

func TestIndexAndReverseIter(t *testing.T) {
	list := NewList[string]()
	for _, v := range []string{"a", "b", "c"} {
		list.AddNodeTail(v)
	}
	assert.Equal(t, "a", list.Index(0).Value)
	assert.Equal(t, "c", list.Index(-1).Value)
	assert.Equal(t, "a", list.Index(-3).Value)
	assert.Nil(t, list.Index(3))
	assert.Nil(t, list.Index(-4))

	it := list.Iter(DIRECTION_TAIL)
	var got []string
	for n := it.Next(); n != nil; n = it.Next() {
		got = append(got, n.Value)
		assert.NoError(t, list.RemoveNode(n))
	}
	assert.Equal(t, []string{"c", "b", "a"}, got)
	assert.Zero(t, list.Len())
	assert.Nil(t, list.Head)
}
