package resp

import "errors"

const CRLF string = "\r\n"

// Types equivalent to RESP version 2
const (
	TypeArray   byte = '*'
	TypeBlob    byte = '$'
	TypeSimple  byte = '+'
	TypeError   byte = '-'
	TypeInteger byte = ':'
)

var (
	// ErrIncomplete means the buffer ends inside a value; read more and retry.
	ErrIncomplete = errors.New("resp: incomplete data")
	ErrProtocol   = errors.New("Protocol error")
)

type Node interface {
}

type BlobString struct {
	Value string
}

type SimpleString struct {
	Value string
}

type Error struct {
	Message string
}

type Integer struct {
	Value int64
}

type Null struct {
}
