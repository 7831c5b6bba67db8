package resp

import (
	"bytes"
	"strconv"
	"strings"
)

const (
	MaxInlineSize    = 64 * 1024
	MaxBulkLen       = 512 * 1024 * 1024
	MaxMultibulkLen  = 1024 * 1024
	inlineSeparators = " \t"
)

// ReadCommand parses one client request from the head of buf: a multibulk
// array of bulk strings, or an inline command line. It returns the
// arguments and the number of bytes consumed. Empty inline lines are
// consumed and yield no arguments. ErrIncomplete asks for more data;
// errors wrapping ErrProtocol are fatal for the connection.
func ReadCommand(buf []byte) (args []string, n int, err error) {
	if len(buf) == 0 {
		return nil, 0, ErrIncomplete
	}
	if buf[0] == TypeArray {
		return readMultibulk(buf)
	}
	return readInline(buf)
}

func readInline(buf []byte) ([]string, int, error) {
	i := bytes.IndexByte(buf, '\n')
	if i < 0 {
		if len(buf) > MaxInlineSize {
			return nil, 0, protocolError("too big inline request")
		}
		return nil, 0, ErrIncomplete
	}

	line := string(bytes.TrimSuffix(buf[:i], []byte{'\r'}))
	args, err := splitInline(line)
	if err != nil {
		return nil, 0, err
	}
	return args, i + 1, nil
}

// splitInline splits on blanks and honours double and single quotes.
func splitInline(line string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		quote   byte
		inArg   bool
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
				if i+1 < len(line) && !strings.ContainsRune(inlineSeparators, rune(line[i+1])) {
					return nil, protocolError("unbalanced quotes in request")
				}
				continue
			}
			if c == '\\' && quote == '"' && i+1 < len(line) {
				i++
				switch line[i] {
				case 'n':
					c = '\n'
				case 'r':
					c = '\r'
				case 't':
					c = '\t'
				default:
					c = line[i]
				}
			}
			current.WriteByte(c)
		case c == '"' || c == '\'':
			quote = c
			inArg = true
		case strings.IndexByte(inlineSeparators, c) >= 0:
			if inArg {
				args = append(args, current.String())
				current.Reset()
				inArg = false
			}
		default:
			current.WriteByte(c)
			inArg = true
		}
	}
	if quote != 0 {
		return nil, protocolError("unbalanced quotes in request")
	}
	if inArg {
		args = append(args, current.String())
	}
	return args, nil
}

func readMultibulk(buf []byte) ([]string, int, error) {
	line, rest, err := readLine(buf[1:])
	if err != nil {
		if len(buf) > MaxInlineSize {
			return nil, 0, protocolError("too big mbulk count string")
		}
		return nil, 0, err
	}
	count, err := strconv.Atoi(string(line))
	if err != nil || count > MaxMultibulkLen {
		return nil, 0, protocolError("invalid multibulk length")
	}
	if count <= 0 {
		return nil, len(buf) - len(rest), nil
	}

	args := make([]string, 0, count)
	for len(args) < count {
		if len(rest) == 0 {
			return nil, 0, ErrIncomplete
		}
		if rest[0] != TypeBlob {
			return nil, 0, protocolError("expected '$', got '%c'", rest[0])
		}
		line, after, err := readLine(rest[1:])
		if err != nil {
			return nil, 0, err
		}
		size, err := strconv.Atoi(string(line))
		if err != nil || size < 0 || size > MaxBulkLen {
			return nil, 0, protocolError("invalid bulk length")
		}
		if len(after) < size+2 {
			return nil, 0, ErrIncomplete
		}
		if after[size] != '\r' || after[size+1] != '\n' {
			return nil, 0, protocolError("bulk string not terminated")
		}
		args = append(args, string(after[:size]))
		rest = after[size+2:]
	}
	return args, len(buf) - len(rest), nil
}
