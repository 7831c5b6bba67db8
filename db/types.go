package db

import (
	"fmt"
	"strconv"
)

type ObjectType uint8

const (
	StringType ObjectType = iota
	ListType
	SetType
)

func (t ObjectType) String() string {
	switch t {
	case StringType:
		return "string"
	case ListType:
		return "list"
	case SetType:
		return "set"
	}
	return fmt.Sprintf("ObjectType(%d)", uint8(t))
}

type EncodingType int

const (
	EncodingRaw        EncodingType = iota // Raw encoding
	EncodingInt                            // Encoded as integer
	EncodingHT                             // Encoded as hash table
	EncodingLinkedList                     // Encoded as regular linked list
)

func (e EncodingType) String() string {
	switch e {
	case EncodingRaw:
		return "raw"
	case EncodingInt:
		return "int"
	case EncodingHT:
		return "hashtable"
	case EncodingLinkedList:
		return "linkedlist"
	}
	return fmt.Sprintf("EncodingType(%d)", int(e))
}

// RedisObj is one value of the keyspace. Value holds a string or int64 for
// strings, a *List[string] for lists and a *Set[string] for sets.
type RedisObj struct {
	Type     ObjectType
	Encoding EncodingType
	Value    any

	// bytes charged to the memory counter for this object
	accounted int64
}

// NewStringObject stores s as an integer when it round-trips exactly.
func NewStringObject(s string) *RedisObj {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && strconv.FormatInt(n, 10) == s {
		return NewIntObject(n)
	}
	return &RedisObj{Type: StringType, Encoding: EncodingRaw, Value: s}
}

func NewIntObject(n int64) *RedisObj {
	return &RedisObj{Type: StringType, Encoding: EncodingInt, Value: n}
}

func NewListObject() *RedisObj {
	return &RedisObj{Type: ListType, Encoding: EncodingLinkedList, Value: NewList[string]()}
}

func NewSetObject() *RedisObj {
	return &RedisObj{Type: SetType, Encoding: EncodingHT, Value: NewSet[string](4)}
}

func (ro *RedisObj) GetObjType() ObjectType {
	return ro.Type
}

// String returns the value of a string object; other types yield "".
func (ro *RedisObj) String() string {
	switch v := ro.Value.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	}
	return ""
}

// Int returns the value of a string object holding an integer.
func (ro *RedisObj) Int() (int64, bool) {
	switch v := ro.Value.(type) {
	case int64:
		return v, true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

func (ro *RedisObj) List() *List[string] {
	l, _ := ro.Value.(*List[string])
	return l
}

func (ro *RedisObj) Set() *Set[string] {
	s, _ := ro.Value.(*Set[string])
	return s
}
