package resp

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// RESP3 is a RESP3 protocol parser and serializer.
// https://github.com/redis/redis-specifications/blob/master/protocol/RESP3.md

// Types introduced by RESP3
const (
	TypeNull      byte = '_'
	TypeDouble    byte = ','
	TypeBoolean   byte = '#'
	TypeBlobError byte = '!'
	TypeVerbatim  byte = '='
	TypeMap       byte = '%'
	TypeSet       byte = '~'
	TypeAttribute byte = '|'
	TypePush      byte = '>'
	TypeBignum    byte = '('
)

type Double struct {
	Value float64
}

type Boolean struct {
	Value bool
}

type BlobError struct {
	Message string
}

type VerbatimString struct {
	Format string
	Value  string
}

type BigNum struct {
	Value string
}

// Array represents an array in RESP
type Array struct {
	Elements []Node
}

// Map keeps pairs in wire order; keys may be aggregates.
type Map struct {
	Keys   []Node
	Values []Node
}

type Set struct {
	Elements []Node
}

type Push struct {
	Elements []Node
}

// Parse decodes the first value in data and returns it with the unread
// rest. RESP2 null bulk strings and arrays decode to Null. Attributes are
// skipped and the value they annotate is returned.
func Parse(data []byte) (Node, []byte, error) {
	if len(data) == 0 {
		return nil, data, ErrIncomplete
	}

	typ := data[0]
	line, rest, err := readLine(data[1:])
	if err != nil {
		return nil, data, err
	}

	switch typ {
	case TypeSimple:
		return SimpleString{Value: string(line)}, rest, nil

	case TypeError:
		return Error{Message: string(line)}, rest, nil

	case TypeInteger:
		n, err := strconv.ParseInt(string(line), 10, 64)
		if err != nil {
			return nil, data, protocolError("invalid integer %q", line)
		}
		return Integer{Value: n}, rest, nil

	case TypeBignum:
		return BigNum{Value: string(line)}, rest, nil

	case TypeNull:
		return Null{}, rest, nil

	case TypeBoolean:
		switch string(line) {
		case "t":
			return Boolean{Value: true}, rest, nil
		case "f":
			return Boolean{Value: false}, rest, nil
		}
		return nil, data, protocolError("invalid boolean %q", line)

	case TypeDouble:
		value, err := strconv.ParseFloat(string(line), 64)
		if err != nil {
			return nil, data, protocolError("invalid double %q", line)
		}
		return Double{Value: value}, rest, nil

	case TypeBlob, TypeBlobError, TypeVerbatim:
		length, err := strconv.Atoi(string(line))
		if err != nil || length < -1 {
			return nil, data, protocolError("invalid bulk length %q", line)
		}
		if length == -1 {
			return Null{}, rest, nil
		}
		if len(rest) < length+2 {
			return nil, data, ErrIncomplete
		}
		if rest[length] != '\r' || rest[length+1] != '\n' {
			return nil, data, protocolError("bulk string not terminated")
		}
		body := string(rest[:length])
		rest = rest[length+2:]

		switch typ {
		case TypeBlobError:
			return BlobError{Message: body}, rest, nil
		case TypeVerbatim:
			if len(body) < 4 || body[3] != ':' {
				return nil, data, protocolError("invalid verbatim string")
			}
			return VerbatimString{Format: body[:3], Value: body[4:]}, rest, nil
		}
		return BlobString{Value: body}, rest, nil

	case TypeArray, TypeSet, TypePush, TypeMap, TypeAttribute:
		count, err := strconv.Atoi(string(line))
		if err != nil || count < -1 {
			return nil, data, protocolError("invalid aggregate length %q", line)
		}
		if count == -1 {
			return Null{}, rest, nil
		}
		if typ == TypeMap || typ == TypeAttribute {
			count *= 2
		}

		elements := make([]Node, count)
		for i := range elements {
			elements[i], rest, err = Parse(rest)
			if err != nil {
				return nil, data, err
			}
		}

		switch typ {
		case TypeSet:
			return Set{Elements: elements}, rest, nil
		case TypePush:
			return Push{Elements: elements}, rest, nil
		case TypeMap:
			m := Map{Keys: make([]Node, 0, count/2), Values: make([]Node, 0, count/2)}
			for i := 0; i < count; i += 2 {
				m.Keys = append(m.Keys, elements[i])
				m.Values = append(m.Values, elements[i+1])
			}
			return m, rest, nil
		case TypeAttribute:
			payload, rest, err := Parse(rest)
			if err != nil {
				return nil, data, err
			}
			return payload, rest, nil
		}
		return Array{Elements: elements}, rest, nil
	}

	return nil, data, protocolError("unexpected type byte %q", typ)
}

func readLine(data []byte) (line, rest []byte, err error) {
	i := bytes.Index(data, []byte(CRLF))
	if i < 0 {
		return nil, data, ErrIncomplete
	}
	return data[:i], data[i+2:], nil
}

func protocolError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}

// ConvertToRESP encodes a command as a RESP array of bulk strings.
func ConvertToRESP(command string, arguments ...string) []byte {
	totalArgs := len(arguments) + 1 // +1 for the command itself

	var builder strings.Builder

	// Array with totalArgs elements
	builder.WriteString(fmt.Sprintf("*%d%s", totalArgs, CRLF))

	// Add the command
	builder.WriteString(fmt.Sprintf("$%d%s%s%s", len(command), CRLF, command, CRLF))

	// Add the arguments
	for _, arg := range arguments {
		builder.WriteString(fmt.Sprintf("$%d%s%s%s", len(arg), CRLF, arg, CRLF))
	}

	return []byte(builder.String())
}
