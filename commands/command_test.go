package commands

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fzft/go-avocado/db"
)

type fakeServer struct{}

func (fakeServer) Info(section string) string {
	if section == "server" || section == "default" {
		return "# Server\r\nrun_id:test\r\n"
	}
	return ""
}

type fakeThread struct {
	blocks, unblocks int
}

func (f *fakeThread) Block()   { f.blocks++ }
func (f *fakeThread) Unblock() { f.unblocks++ }

func run(t *testing.T, rdb *db.RedisDb, args ...string) string {
	t.Helper()
	cmd := Lookup(args[0])
	require.NotNil(t, cmd, "command %q", args[0])
	r := &Request{Argv: args, DB: rdb, Server: fakeServer{}}
	if !cmd.CheckArity(len(args)) {
		return "-ERR " + ArityError(args[0]) + "\r\n"
	}
	cmd.Call(r)
	return string(r.Reply())
}

func TestLookupIgnoresCase(t *testing.T) {
	assert.NotNil(t, Lookup("GeT"))
	assert.Nil(t, Lookup("nosuch"))
	assert.True(t, Lookup("set").Has(CmdWrite))
	assert.True(t, Lookup("get").Has(CmdReadOnly))
	assert.True(t, Lookup("flushdb").Has(CmdAdmin))
	assert.True(t, Lookup("ping").Has(CmdNoJob))
}

func TestCheckArity(t *testing.T) {
	assert.True(t, Lookup("get").CheckArity(2))
	assert.False(t, Lookup("get").CheckArity(3))
	assert.True(t, Lookup("del").CheckArity(4))
	assert.False(t, Lookup("del").CheckArity(1))
}

func TestUnknownCommandError(t *testing.T) {
	assert.Equal(t, "unknown command 'foo', with args beginning with: 'a' 'b' ",
		UnknownCommandError([]string{"foo", "a", "b"}))
}

func TestGetSet(t *testing.T) {
	rdb := db.New(0)
	assert.Equal(t, "$-1\r\n", run(t, rdb, "GET", "k"))
	assert.Equal(t, "+OK\r\n", run(t, rdb, "SET", "k", "v"))
	assert.Equal(t, "$1\r\nv\r\n", run(t, rdb, "GET", "k"))
	assert.Equal(t, "-ERR syntax error\r\n", run(t, rdb, "SET", "k", "v", "NX", "XX"))
	assert.Equal(t, "-ERR syntax error\r\n", run(t, rdb, "SET", "k", "v", "EX"))
}

func TestSetNXXXGet(t *testing.T) {
	rdb := db.New(0)
	assert.Equal(t, "$-1\r\n", run(t, rdb, "SET", "k", "v", "XX"))
	assert.Equal(t, "+OK\r\n", run(t, rdb, "SET", "k", "v", "NX"))
	assert.Equal(t, "$-1\r\n", run(t, rdb, "SET", "k", "w", "NX"))
	assert.Equal(t, "$1\r\nv\r\n", run(t, rdb, "SET", "k", "w", "GET"))
	assert.Equal(t, "$1\r\nw\r\n", run(t, rdb, "GET", "k"))

	assert.Equal(t, ":1\r\n", run(t, rdb, "SETNX", "n", "1"))
	assert.Equal(t, ":0\r\n", run(t, rdb, "SETNX", "n", "2"))
	assert.Equal(t, "$1\r\n1\r\n", run(t, rdb, "GETSET", "n", "3"))
}

func TestSetExpireOptions(t *testing.T) {
	rdb := db.New(0)
	assert.Equal(t, "+OK\r\n", run(t, rdb, "SET", "k", "v", "EX", "100"))
	assert.Equal(t, ":100\r\n", run(t, rdb, "TTL", "k"))

	assert.Equal(t, "+OK\r\n", run(t, rdb, "SET", "k", "w", "KEEPTTL"))
	assert.Equal(t, ":100\r\n", run(t, rdb, "TTL", "k"))

	assert.Equal(t, "+OK\r\n", run(t, rdb, "SET", "k", "x"))
	assert.Equal(t, ":-1\r\n", run(t, rdb, "TTL", "k"))

	assert.Equal(t, "+OK\r\n", run(t, rdb, "SET", "p", "v", "PX", "5000"))
	pttl := run(t, rdb, "PTTL", "p")
	assert.True(t, strings.HasPrefix(pttl, ":49") || pttl == ":5000\r\n", pttl)

	assert.Equal(t, "-ERR invalid expire time in 'set' command\r\n", run(t, rdb, "SET", "k", "v", "EX", "0"))
	assert.Equal(t, "-ERR value is not an integer or out of range\r\n", run(t, rdb, "SET", "k", "v", "EX", "soon"))
	assert.Equal(t, "+OK\r\n", run(t, rdb, "SETEX", "s", "10", "v"))
	assert.Equal(t, ":10\r\n", run(t, rdb, "TTL", "s"))
}

func TestSetPXATInThePastDeletes(t *testing.T) {
	rdb := db.New(0)
	assert.Equal(t, "+OK\r\n", run(t, rdb, "SET", "k", "v", "PXAT", "1"))
	assert.Equal(t, ":0\r\n", run(t, rdb, "EXISTS", "k"))
}

func TestIncrDecr(t *testing.T) {
	rdb := db.New(0)
	assert.Equal(t, ":1\r\n", run(t, rdb, "INCR", "n"))
	assert.Equal(t, ":11\r\n", run(t, rdb, "INCRBY", "n", "10"))
	assert.Equal(t, ":10\r\n", run(t, rdb, "DECR", "n"))
	assert.Equal(t, ":5\r\n", run(t, rdb, "DECRBY", "n", "5"))

	run(t, rdb, "SET", "s", "abc")
	assert.Equal(t, "-ERR value is not an integer or out of range\r\n", run(t, rdb, "INCR", "s"))

	run(t, rdb, "SET", "max", "9223372036854775807")
	assert.Equal(t, "-ERR increment or decrement would overflow\r\n", run(t, rdb, "INCR", "max"))

	run(t, rdb, "RPUSH", "l", "a")
	assert.Equal(t, string(SharedWrongTypeErr), run(t, rdb, "INCR", "l"))
}

func TestIncrKeepsTTL(t *testing.T) {
	rdb := db.New(0)
	run(t, rdb, "SET", "n", "1", "EX", "100")
	run(t, rdb, "INCR", "n")
	assert.Equal(t, ":100\r\n", run(t, rdb, "TTL", "n"))
}

func TestStringHelpers(t *testing.T) {
	rdb := db.New(0)
	assert.Equal(t, ":5\r\n", run(t, rdb, "APPEND", "k", "hello"))
	assert.Equal(t, ":11\r\n", run(t, rdb, "APPEND", "k", " world"))
	assert.Equal(t, ":11\r\n", run(t, rdb, "STRLEN", "k"))
	assert.Equal(t, "*2\r\n$11\r\nhello world\r\n$-1\r\n", run(t, rdb, "MGET", "k", "missing"))
}

func TestKeyCommands(t *testing.T) {
	rdb := db.New(0)
	run(t, rdb, "SET", "a", "1")
	run(t, rdb, "SET", "b", "2")

	assert.Equal(t, ":3\r\n", run(t, rdb, "EXISTS", "a", "b", "a"))
	assert.Equal(t, "+string\r\n", run(t, rdb, "TYPE", "a"))
	assert.Equal(t, "+none\r\n", run(t, rdb, "TYPE", "zz"))
	assert.Equal(t, ":2\r\n", run(t, rdb, "DBSIZE"))
	assert.Equal(t, ":1\r\n", run(t, rdb, "DEL", "a", "zz"))
	assert.Equal(t, ":1\r\n", run(t, rdb, "DBSIZE"))
	assert.Equal(t, "+OK\r\n", run(t, rdb, "FLUSHDB"))
	assert.Equal(t, ":0\r\n", run(t, rdb, "DBSIZE"))
	assert.Equal(t, "-ERR syntax error\r\n", run(t, rdb, "FLUSHDB", "LATER"))
}

func TestExpireTTLPersist(t *testing.T) {
	rdb := db.New(0)
	assert.Equal(t, ":-2\r\n", run(t, rdb, "TTL", "k"))
	assert.Equal(t, ":0\r\n", run(t, rdb, "EXPIRE", "k", "10"))

	run(t, rdb, "SET", "k", "v")
	assert.Equal(t, ":-1\r\n", run(t, rdb, "TTL", "k"))
	assert.Equal(t, ":1\r\n", run(t, rdb, "EXPIRE", "k", "10"))
	assert.Equal(t, ":10\r\n", run(t, rdb, "TTL", "k"))
	assert.Equal(t, ":1\r\n", run(t, rdb, "PERSIST", "k"))
	assert.Equal(t, ":0\r\n", run(t, rdb, "PERSIST", "k"))
	assert.Equal(t, ":-1\r\n", run(t, rdb, "PTTL", "k"))

	assert.Equal(t, ":1\r\n", run(t, rdb, "PEXPIRE", "k", "-1"))
	assert.Equal(t, ":0\r\n", run(t, rdb, "EXISTS", "k"))

	run(t, rdb, "SET", "k", "v")
	assert.Equal(t, ":1\r\n", run(t, rdb, "PEXPIREAT", "k", "1"))
	assert.Equal(t, "$-1\r\n", run(t, rdb, "GET", "k"))
	assert.Equal(t, "-ERR value is not an integer or out of range\r\n", run(t, rdb, "EXPIRE", "k", "x"))
}

func TestListCommands(t *testing.T) {
	rdb := db.New(0)
	assert.Equal(t, ":2\r\n", run(t, rdb, "RPUSH", "l", "b", "c"))
	assert.Equal(t, ":3\r\n", run(t, rdb, "LPUSH", "l", "a"))
	assert.Equal(t, ":3\r\n", run(t, rdb, "LLEN", "l"))
	assert.Equal(t, "*3\r\n$1\r\na\r\n$1\r\nb\r\n$1\r\nc\r\n", run(t, rdb, "LRANGE", "l", "0", "-1"))
	assert.Equal(t, "*1\r\n$1\r\nc\r\n", run(t, rdb, "LRANGE", "l", "-1", "100"))
	assert.Equal(t, "*0\r\n", run(t, rdb, "LRANGE", "l", "5", "10"))
	assert.Equal(t, "$1\r\nb\r\n", run(t, rdb, "LINDEX", "l", "-2"))
	assert.Equal(t, "$-1\r\n", run(t, rdb, "LINDEX", "l", "9"))

	assert.Equal(t, "$1\r\na\r\n", run(t, rdb, "LPOP", "l"))
	assert.Equal(t, "*2\r\n$1\r\nc\r\n$1\r\nb\r\n", run(t, rdb, "RPOP", "l", "5"))
	assert.Equal(t, ":0\r\n", run(t, rdb, "EXISTS", "l"))
	assert.Equal(t, "$-1\r\n", run(t, rdb, "LPOP", "l"))
	assert.Equal(t, "*-1\r\n", run(t, rdb, "LPOP", "l", "2"))

	run(t, rdb, "SET", "s", "v")
	assert.Equal(t, string(SharedWrongTypeErr), run(t, rdb, "LPUSH", "s", "x"))
	assert.Equal(t, string(SharedWrongTypeErr), run(t, rdb, "LLEN", "s"))
}

func TestSetCommands(t *testing.T) {
	rdb := db.New(0)
	assert.Equal(t, ":2\r\n", run(t, rdb, "SADD", "s", "b", "a", "a"))
	assert.Equal(t, ":1\r\n", run(t, rdb, "SADD", "s", "c"))
	assert.Equal(t, ":3\r\n", run(t, rdb, "SCARD", "s"))
	assert.Equal(t, ":1\r\n", run(t, rdb, "SISMEMBER", "s", "a"))
	assert.Equal(t, ":0\r\n", run(t, rdb, "SISMEMBER", "s", "z"))
	assert.Equal(t, "*3\r\n$1\r\na\r\n$1\r\nb\r\n$1\r\nc\r\n", run(t, rdb, "SMEMBERS", "s"))
	assert.Equal(t, "+set\r\n", run(t, rdb, "TYPE", "s"))

	assert.Equal(t, ":3\r\n", run(t, rdb, "SREM", "s", "a", "b", "c", "d"))
	assert.Equal(t, ":0\r\n", run(t, rdb, "EXISTS", "s"))
	assert.Equal(t, "*0\r\n", run(t, rdb, "SMEMBERS", "s"))
}

func TestServerCommands(t *testing.T) {
	rdb := db.New(0)
	assert.Equal(t, "+PONG\r\n", run(t, rdb, "PING"))
	assert.Equal(t, "$2\r\nhi\r\n", run(t, rdb, "PING", "hi"))
	assert.Equal(t, "$3\r\nabc\r\n", run(t, rdb, "ECHO", "abc"))
	assert.Equal(t, ":"+strconv.Itoa(Count())+"\r\n", run(t, rdb, "COMMAND", "COUNT"))
	assert.Contains(t, run(t, rdb, "COMMAND"), "$6\r\nlrange\r\n")

	r := &Request{Argv: []string{"QUIT"}, DB: rdb}
	Lookup("quit").Call(r)
	assert.Equal(t, "+OK\r\n", string(r.Reply()))
	assert.True(t, r.CloseAfterReply())
}

func TestInfo(t *testing.T) {
	rdb := db.New(3)
	run(t, rdb, "SET", "k", "v", "EX", "100")

	info := run(t, rdb, "INFO")
	assert.Contains(t, info, "run_id:test")
	assert.Contains(t, info, "db3:keys=1,expires=1")

	stats := run(t, rdb, "INFO", "commandstats")
	assert.Contains(t, stats, "cmdstat_set:calls=")
	assert.NotContains(t, stats, "run_id")

	assert.Equal(t, "-ERR syntax error\r\n", run(t, rdb, "INFO", "a", "b"))
}

func TestCallCountsFailures(t *testing.T) {
	rdb := db.New(0)
	cmd := Lookup("incrby")
	before := cmd.Stats()
	run(t, rdb, "INCRBY", "n", "x")
	after := cmd.Stats()
	assert.Equal(t, before.Calls+1, after.Calls)
	assert.Equal(t, before.FailedCalls+1, after.FailedCalls)
}

func TestDebugSleepBlocksWorker(t *testing.T) {
	th := &fakeThread{}
	r := &Request{Argv: []string{"DEBUG", "SLEEP", "0.01"}, DB: db.New(0), Thread: th}
	start := time.Now()
	Lookup("debug").Call(r)
	assert.Equal(t, "+OK\r\n", string(r.Reply()))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	assert.Equal(t, 1, th.blocks)
	assert.Equal(t, 1, th.unblocks)

	r = &Request{Argv: []string{"DEBUG", "NAP"}, DB: db.New(0)}
	Lookup("debug").Call(r)
	assert.Contains(t, string(r.Reply()), "unknown subcommand")
}

func TestDebugSleepDuration(t *testing.T) {
	for _, tc := range []struct {
		arg  string
		want time.Duration
		ok   bool
	}{
		{"0", 0, true},
		{"0.25", 250 * time.Millisecond, true},
		{"60", MaxDebugSleep, true},
		{"1e300", MaxDebugSleep, true},
		{"inf", MaxDebugSleep, true},
		{"nan", 0, false},
		{"-1", 0, false},
		{"soon", 0, false},
	} {
		d, ok := debugSleepDuration(tc.arg)
		assert.Equal(t, tc.ok, ok, tc.arg)
		assert.Equal(t, tc.want, d, tc.arg)
	}

	r := &Request{Argv: []string{"DEBUG", "SLEEP", "nan"}, DB: db.New(0)}
	Lookup("debug").Call(r)
	assert.Contains(t, string(r.Reply()), "value is not a valid float")
}
