// Package hredis is a small blocking RESP client used by the command line
// interface and the server tests.
package hredis

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/fzft/go-avocado/resp"
)

type RedisConnectionType uint8

const (
	RedisConnTCP RedisConnectionType = iota
	RedisConnUnix
)

type RedisErrFlag uint8

const (
	RedisErrNoErr RedisErrFlag = iota
	RedisErrIo
	RedisErrOther
	RedisErrEOF
	RedisErrProtocol
	RedisErrTimeout
)

func (f RedisErrFlag) String() string {
	switch f {
	case RedisErrNoErr:
		return "none"
	case RedisErrIo:
		return "io"
	case RedisErrEOF:
		return "eof"
	case RedisErrProtocol:
		return "protocol"
	case RedisErrTimeout:
		return "timeout"
	}
	return "other"
}

var ErrClosed = errors.New("hredis: connection closed")

type RedisOpts struct {
	Type    RedisConnectionType
	Ip      string
	Port    int
	Path    string
	Timeout time.Duration
}

// RedisContext is one connection. It is not safe for concurrent use.
type RedisContext struct {
	Err    RedisErrFlag
	ErrStr string

	opts   RedisOpts
	conn   net.Conn
	oBuf   []byte // output buffer
	reader *bufio.Reader
	rBuf   []byte
}

func RedisConnect(ip string, port int) (*RedisContext, error) {
	return NewRedisContextWithOpts(RedisOpts{Type: RedisConnTCP, Ip: ip, Port: port})
}

func RedisConnectWithTimeout(ip string, port int, timeout time.Duration) (*RedisContext, error) {
	return NewRedisContextWithOpts(RedisOpts{Type: RedisConnTCP, Ip: ip, Port: port, Timeout: timeout})
}

func RedisConnectUnix(path string) (*RedisContext, error) {
	return NewRedisContextWithOpts(RedisOpts{Type: RedisConnUnix, Path: path})
}

func NewRedisContextWithOpts(opts RedisOpts) (*RedisContext, error) {
	c := &RedisContext{opts: opts}
	if err := c.Reconnect(); err != nil {
		return nil, err
	}
	return c, nil
}

// Addr is the endpoint the context connects to.
func (c *RedisContext) Addr() string {
	if c.opts.Type == RedisConnUnix {
		return c.opts.Path
	}
	return net.JoinHostPort(c.opts.Ip, strconv.Itoa(c.opts.Port))
}

// Reconnect drops the current connection, if any, and dials again.
func (c *RedisContext) Reconnect() error {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.Err, c.ErrStr = RedisErrNoErr, ""
	c.oBuf = c.oBuf[:0]

	network := "tcp"
	if c.opts.Type == RedisConnUnix {
		network = "unix"
	}
	d := net.Dialer{Timeout: c.opts.Timeout}
	conn, err := d.Dial(network, c.Addr())
	if err != nil {
		return c.setError(RedisErrIo, err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.rBuf = c.rBuf[:0]
	return nil
}

func (c *RedisContext) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// SetTimeout bounds every following read and write; zero disables it.
func (c *RedisContext) SetTimeout(d time.Duration) {
	c.opts.Timeout = d
}

// RedisCommand formats a command like redisFormatCommand does, sends it
// and waits for its reply.
func (c *RedisContext) RedisCommand(format string, args ...interface{}) (*RedisReply, error) {
	argv, err := redisFormatCommand(format, args...)
	if err != nil {
		return nil, c.setError(RedisErrOther, err)
	}
	return c.RedisCommandArgv(argv)
}

func (c *RedisContext) RedisCommandArgv(argv []string) (*RedisReply, error) {
	c.RedisAppendCommandArgv(argv)
	return c.RedisGetReply()
}

// RedisAppendCommandArgv buffers a command without sending it. Use it for
// pipelining together with RedisGetReply.
func (c *RedisContext) RedisAppendCommandArgv(argv []string) {
	if len(argv) == 0 {
		return
	}
	c.oBuf = append(c.oBuf, resp.ConvertToRESP(argv[0], argv[1:]...)...)
}

// RedisGetReply flushes the output buffer and reads the next reply.
func (c *RedisContext) RedisGetReply() (*RedisReply, error) {
	if c.conn == nil {
		return nil, c.setError(RedisErrEOF, ErrClosed)
	}
	if c.opts.Timeout > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(c.opts.Timeout))
	}
	if len(c.oBuf) > 0 {
		if _, err := c.conn.Write(c.oBuf); err != nil {
			return nil, c.setError(ioErrFlag(err), err)
		}
		c.oBuf = c.oBuf[:0]
	}

	for {
		if len(c.rBuf) > 0 {
			node, rest, err := resp.Parse(c.rBuf)
			switch {
			case err == nil:
				c.rBuf = append(c.rBuf[:0], rest...)
				return newReply(node), nil
			case !errors.Is(err, resp.ErrIncomplete):
				return nil, c.setError(RedisErrProtocol, err)
			}
		}

		chunk := make([]byte, 16*1024)
		n, err := c.reader.Read(chunk)
		c.rBuf = append(c.rBuf, chunk[:n]...)
		if err != nil && n == 0 {
			return nil, c.setError(ioErrFlag(err), err)
		}
	}
}

func (c *RedisContext) setError(tp RedisErrFlag, err error) error {
	c.Err = tp
	c.ErrStr = err.Error()
	return fmt.Errorf("hredis: %s error: %w", tp, err)
}

func ioErrFlag(err error) RedisErrFlag {
	var ne net.Error
	switch {
	case errors.Is(err, io.EOF):
		return RedisErrEOF
	case errors.As(err, &ne) && ne.Timeout():
		return RedisErrTimeout
	}
	return RedisErrIo
}

// redisFormatCommand splits format on spaces into arguments. %s consumes a
// string argument and %d an int; a substituted value never splits.
func redisFormatCommand(format string, args ...interface{}) ([]string, error) {

	var curArg string
	var argv []string

	argIndex := 0 // To track the current argument in args
	touched := false

	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			if c == ' ' {
				if touched {
					argv = append(argv, curArg)
					curArg = ""
					touched = false
				}
			} else {
				curArg += string(c)
				touched = true
			}
		} else {
			i++
			if i >= len(format) {
				return nil, fmt.Errorf("Format string ended unexpectedly")
			}

			switch format[i] {
			case 's':
				if argIndex >= len(args) {
					return nil, fmt.Errorf("Not enough arguments")
				}
				str, ok := args[argIndex].(string)
				if !ok {
					return nil, fmt.Errorf("Expected a string argument")
				}
				curArg += str
				argIndex++

			case 'd':
				if argIndex >= len(args) {
					return nil, fmt.Errorf("Not enough arguments")
				}
				num, ok := args[argIndex].(int)
				if !ok {
					return nil, fmt.Errorf("Expected an integer argument")
				}
				curArg += strconv.Itoa(num)
				argIndex++

			case '%':
				curArg += "%"

			default:
				return nil, fmt.Errorf("Unsupported format specifier: %c", format[i])
			}

			touched = true
		}
	}

	if touched {
		argv = append(argv, curArg)
	}

	return argv, nil
}
