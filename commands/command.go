// Package commands holds the command table of the server and the
// implementation of every command. Commands run on dispatcher workers
// against a db.RedisDb and append their RESP reply to the Request.
package commands

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fzft/go-avocado/db"
	"github.com/fzft/go-avocado/resp"
)

type CommandFlags uint64

const (
	CmdWrite CommandFlags = 1 << iota
	CmdReadOnly
	CmdAdmin
	CmdFast
	// CmdBlocking commands may wait for a long time on the worker.
	CmdBlocking
	// CmdNoJob commands are answered on the loop thread without a job.
	CmdNoJob
)

type RedisCommandGroup uint8

const (
	RedisCommandGroupGeneric RedisCommandGroup = iota
	RedisCommandGroupString
	RedisCommandGroupList
	RedisCommandGroupSet
	RedisCommandGroupConnection
	RedisCommandGroupServer
)

func (g RedisCommandGroup) String() string {
	switch g {
	case RedisCommandGroupGeneric:
		return "generic"
	case RedisCommandGroupString:
		return "string"
	case RedisCommandGroupList:
		return "list"
	case RedisCommandGroupSet:
		return "set"
	case RedisCommandGroupConnection:
		return "connection"
	case RedisCommandGroupServer:
		return "server"
	}
	return "unknown"
}

type RedisCommandProc func(r *Request)

// ServerInfo renders the INFO sections the keyspace cannot answer itself.
type ServerInfo interface {
	Info(section string) string
}

// Blocker is the worker a command runs on. A command about to wait calls
// Block so the worker pool can grow meanwhile.
type Blocker interface {
	Block()
	Unblock()
}

// Request is one command invocation and the reply it produces.
type Request struct {
	Argv   []string
	DB     *db.RedisDb
	Server ServerInfo
	Thread Blocker

	reply           []byte
	closeAfterReply bool
}

func (r *Request) Reply() []byte { return r.reply }

// CloseAfterReply is set by QUIT.
func (r *Request) CloseAfterReply() bool { return r.closeAfterReply }

func (r *Request) AddReply(b []byte) { r.reply = append(r.reply, b...) }

// DiscardReply drops whatever was replied so far.
func (r *Request) DiscardReply() { r.reply = r.reply[:0] }

func (r *Request) AddReplyError(msg string) { r.reply = resp.AppendError(r.reply, msg) }

func (r *Request) AddReplyErrorf(format string, args ...any) {
	r.AddReplyError(fmt.Sprintf(format, args...))
}

func (r *Request) AddReplyStatus(s string) { r.reply = resp.AppendSimple(r.reply, s) }

func (r *Request) AddReplyBulk(s string) { r.reply = resp.AppendBulk(r.reply, s) }

func (r *Request) AddReplyInteger(n int64) { r.reply = resp.AppendInteger(r.reply, n) }

func (r *Request) AddReplyNull() { r.reply = resp.AppendNull(r.reply) }

func (r *Request) AddReplyArrayLen(n int) { r.reply = resp.AppendArray(r.reply, n) }

func (r *Request) AddReplyBulks(items []string) { r.reply = resp.AppendBulks(r.reply, items) }

type RedisCommand struct {
	Name  string
	Proc  RedisCommandProc
	Group RedisCommandGroup
	// Arity is the exact argument count including the command name, or
	// its negated minimum.
	Arity int
	Flags CommandFlags

	calls         atomic.Int64
	failedCalls   atomic.Int64
	rejectedCalls atomic.Int64
	microseconds  atomic.Int64
}

func (c *RedisCommand) Has(f CommandFlags) bool { return c.Flags&f != 0 }

func (c *RedisCommand) CheckArity(argc int) bool {
	if c.Arity >= 0 {
		return argc == c.Arity
	}
	return argc >= -c.Arity
}

// Call runs the command and records its statistics. The arity must have
// been checked.
func (c *RedisCommand) Call(r *Request) {
	start := time.Now()
	before := len(r.reply)
	c.Proc(r)
	c.calls.Add(1)
	c.microseconds.Add(time.Since(start).Microseconds())
	if len(r.reply) > before && r.reply[before] == resp.TypeError {
		c.failedCalls.Add(1)
	}
}

// Reject records a call that was refused before it could run.
func (c *RedisCommand) Reject() {
	c.rejectedCalls.Add(1)
}

type CommandStats struct {
	Calls         int64
	FailedCalls   int64
	RejectedCalls int64
	Microseconds  int64
}

func (c *RedisCommand) Stats() CommandStats {
	return CommandStats{
		Calls:         c.calls.Load(),
		FailedCalls:   c.failedCalls.Load(),
		RejectedCalls: c.rejectedCalls.Load(),
		Microseconds:  c.microseconds.Load(),
	}
}

var commandTable = map[string]*RedisCommand{}

func register(cmds ...*RedisCommand) {
	for _, c := range cmds {
		commandTable[strings.ToLower(c.Name)] = c
	}
}

// Lookup finds a command by name, ignoring case.
func Lookup(name string) *RedisCommand {
	return commandTable[strings.ToLower(name)]
}

func Count() int { return len(commandTable) }

// Commands returns every registered command in no particular order.
func Commands() []*RedisCommand {
	out := make([]*RedisCommand, 0, len(commandTable))
	for _, c := range commandTable {
		out = append(out, c)
	}
	return out
}

// UnknownCommandError is the reply text for a command missing from the table.
func UnknownCommandError(argv []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "unknown command '%s', with args beginning with: ", argv[0])
	for _, arg := range argv[1:] {
		if b.Len() > 128 {
			break
		}
		fmt.Fprintf(&b, "'%s' ", arg)
	}
	return b.String()
}

func ArityError(name string) string {
	return fmt.Sprintf("wrong number of arguments for '%s' command", strings.ToLower(name))
}

func parseInt(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}
