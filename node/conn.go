package node

import (
	"bytes"
	"errors"
	"io"

	"golang.org/x/sys/unix"
)

const (
	ProtoIOLen = 1024 * 16
	// ProtoMaxQueryBuf closes clients whose unparsed input grows beyond it.
	ProtoMaxQueryBuf = 1024 * 1024 * 64
)

// connection is a non-blocking socket with an output buffer for the part of
// a reply the kernel did not take yet. It is used from one loop thread only.
type connection struct {
	fd        int
	ip        string
	outBuffer bytes.Buffer
	readBuf   [ProtoIOLen]byte
}

func newConnection(fd int, ip string) *connection {
	return &connection{fd: fd, ip: ip}
}

// Read drains the socket into dst until it would block. io.EOF is returned
// by the first call that reads nothing but the end of stream, so data that
// arrived right before it is always handed out first.
func (c *connection) Read(dst []byte) ([]byte, error) {
	start := len(dst)
	for {
		n, err := unix.Read(c.fd, c.readBuf[:])
		if n > 0 {
			dst = append(dst, c.readBuf[:n]...)
		}
		switch {
		case err == nil && n == 0:
			if len(dst) > start {
				return dst, nil
			}
			return dst, io.EOF
		case err == nil:
			if n < len(c.readBuf) {
				return dst, nil
			}
		case errors.Is(err, unix.EINTR):
		case IsTemporaryError(err):
			return dst, nil
		default:
			return dst, err
		}
	}
}

// Write queues data behind any pending output and tries to send it.
func (c *connection) Write(data []byte) error {
	c.outBuffer.Write(data)
	return c.Flush()
}

// Flush sends as much pending output as the socket accepts.
func (c *connection) Flush() error {
	for c.outBuffer.Len() > 0 {
		n, err := unix.Write(c.fd, c.outBuffer.Bytes())
		if n > 0 {
			c.outBuffer.Next(n)
		}
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if IsTemporaryError(err) {
				return nil
			}
			return err
		}
	}
	return nil
}

// Pending reports whether output is waiting for the socket to become writable.
func (c *connection) Pending() bool {
	return c.outBuffer.Len() > 0
}

func (c *connection) Close() error {
	return CloseFd(c.fd)
}

func (c *connection) Fd() int { return c.fd }

func (c *connection) Ip() string { return c.ip }
