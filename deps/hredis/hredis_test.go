package hredis

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fzft/go-avocado/resp"
)

func TestRedisFormatCommand(t *testing.T) {
	// Test case 1: With string and integer
	argv1, err1 := redisFormatCommand("Hello %s %d", "world", 2023)
	assert.Nil(t, err1, "Expected no error")
	assert.Equal(t, []string{"Hello", "world", "2023"}, argv1, "Array mismatch")

	// Test case 2: Without any format specifier
	argv2, err2 := redisFormatCommand("Hello world", "extra", 42)
	assert.Nil(t, err2, "Expected no error")
	assert.Equal(t, []string{"Hello", "world"}, argv2, "Array mismatch")

	// Test case 3: With unsupported format specifier
	_, err3 := redisFormatCommand("Hello %c world", 'A')
	assert.Equal(t, "Unsupported format specifier: c", err3.Error(), "Expected an error indicating unsupported format specifier")

	// Test case 4: With not enough arguments
	_, err4 := redisFormatCommand("Hello %s %d", "world")
	assert.Equal(t, "Not enough arguments", err4.Error(), "Expected an error indicating not enough arguments")

	argv5, err5 := redisFormatCommand("SET %s %s", "a key", "100%")
	assert.Nil(t, err5)
	assert.Equal(t, []string{"SET", "a key", "100%"}, argv5, "substituted values are never split")
}

// fakeServer answers every command it reads with the next canned reply.
func fakeServer(t *testing.T, replies ...[]byte) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		var buf []byte
		for _, reply := range replies {
			for {
				if _, n, err := resp.ReadCommand(buf); err == nil {
					buf = buf[n:]
					break
				}
				chunk := make([]byte, 512)
				n, err := r.Read(chunk)
				if err != nil {
					return
				}
				buf = append(buf, chunk[:n]...)
			}
			if _, err := conn.Write(reply); err != nil {
				return
			}
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestRedisCommand(t *testing.T) {
	port := fakeServer(t,
		[]byte("+PONG\r\n"),
		[]byte("*2\r\n$1\r\na\r\n:7\r\n"),
		[]byte("-ERR boom\r\n"),
	)
	c, err := RedisConnectWithTimeout("127.0.0.1", port, time.Second)
	require.NoError(t, err)
	defer c.Close()

	reply, err := c.RedisCommand("PING")
	require.NoError(t, err)
	assert.Equal(t, RedisReplyStatus, reply.Tp)
	assert.Equal(t, "PONG\n", reply.Format())

	reply, err = c.RedisCommand("MGET %s %d", "a", 7)
	require.NoError(t, err)
	require.Equal(t, RedisReplyArray, reply.Tp)
	require.Len(t, reply.Element, 2)
	assert.Equal(t, "1) \"a\"\n2) (integer) 7\n", reply.Format())

	reply, err = c.RedisCommandArgv([]string{"FAIL"})
	require.NoError(t, err)
	assert.True(t, reply.IsError())
	assert.Equal(t, "(error) ERR boom\n", reply.Format())

	_, err = c.RedisCommand("PING")
	assert.Error(t, err)
	assert.NotEqual(t, RedisErrNoErr, c.Err)
}

func TestPipeline(t *testing.T) {
	port := fakeServer(t, []byte(":1\r\n"), []byte(":2\r\n"), []byte(":3\r\n"))
	c, err := RedisConnect("127.0.0.1", port)
	require.NoError(t, err)
	defer c.Close()

	for i := 0; i < 3; i++ {
		c.RedisAppendCommandArgv([]string{"INCR", "n"})
	}
	for i := 1; i <= 3; i++ {
		reply, err := c.RedisGetReply()
		require.NoError(t, err)
		assert.Equal(t, int64(i), reply.Integer)
	}
}

func TestFormatNested(t *testing.T) {
	r := newReply(resp.Array{Elements: []resp.Node{
		resp.BlobString{Value: "x"},
		resp.Array{Elements: []resp.Node{resp.Integer{Value: 1}, resp.Null{}}},
	}})
	assert.Equal(t, "1) \"x\"\n2) 1) (integer) 1\n   2) (nil)\n", r.Format())
	assert.Equal(t, "(empty array)\n", newReply(resp.Array{}).Format())
}
