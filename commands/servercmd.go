package commands

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/exp/slices"
)

// MaxDebugSleep bounds DEBUG SLEEP so a client cannot park a worker forever.
const MaxDebugSleep = time.Minute

func init() {
	register(
		&RedisCommand{Name: "ping", Proc: pingCommand, Group: RedisCommandGroupConnection, Arity: -1, Flags: CmdFast | CmdNoJob},
		&RedisCommand{Name: "echo", Proc: echoCommand, Group: RedisCommandGroupConnection, Arity: 2, Flags: CmdFast | CmdNoJob},
		&RedisCommand{Name: "quit", Proc: quitCommand, Group: RedisCommandGroupConnection, Arity: -1, Flags: CmdFast | CmdNoJob},
		&RedisCommand{Name: "time", Proc: timeCommand, Group: RedisCommandGroupServer, Arity: 1, Flags: CmdFast | CmdNoJob},
		&RedisCommand{Name: "command", Proc: commandCommand, Group: RedisCommandGroupServer, Arity: -1, Flags: CmdNoJob},
		&RedisCommand{Name: "info", Proc: infoCommand, Group: RedisCommandGroupServer, Arity: -1, Flags: CmdReadOnly},
		&RedisCommand{Name: "debug", Proc: debugCommand, Group: RedisCommandGroupServer, Arity: -2, Flags: CmdAdmin | CmdBlocking},
	)
}

func pingCommand(r *Request) {
	switch len(r.Argv) {
	case 1:
		r.AddReply(SharedPong)
	case 2:
		r.AddReplyBulk(r.Argv[1])
	default:
		r.AddReplyError(ArityError(r.Argv[0]))
	}
}

func echoCommand(r *Request) {
	r.AddReplyBulk(r.Argv[1])
}

func quitCommand(r *Request) {
	r.AddReply(SharedOk)
	r.closeAfterReply = true
}

func timeCommand(r *Request) {
	now := time.Now()
	r.AddReplyBulks([]string{
		strconv.FormatInt(now.Unix(), 10),
		strconv.Itoa(now.Nanosecond() / 1000),
	})
}

// COMMAND [COUNT | LIST]; without a subcommand it lists the names.
func commandCommand(r *Request) {
	sub := "LIST"
	if len(r.Argv) > 1 {
		sub = strings.ToUpper(r.Argv[1])
	}
	switch {
	case sub == "COUNT" && len(r.Argv) == 2:
		r.AddReplyInteger(int64(Count()))
	case sub == "LIST" && len(r.Argv) <= 2:
		r.AddReplyBulks(commandNames())
	default:
		r.AddReplyErrorf("unknown subcommand '%s'. Try COMMAND HELP.", r.Argv[1])
	}
}

func commandNames() []string {
	names := make([]string, 0, len(commandTable))
	for name := range commandTable {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// INFO [section]. The server renders its own sections, the keyspace and
// command statistics are rendered here.
func infoCommand(r *Request) {
	if len(r.Argv) > 2 {
		r.AddReply(SharedSyntaxErr)
		return
	}
	section := "default"
	if len(r.Argv) == 2 {
		section = strings.ToLower(r.Argv[1])
	}

	var b strings.Builder
	if r.Server != nil {
		b.WriteString(r.Server.Info(section))
	}
	all := section == "all" || section == "everything"
	if all || section == "default" || section == "keyspace" {
		writeKeyspaceInfo(&b, r)
	}
	if all || section == "commandstats" {
		writeCommandStats(&b)
	}
	r.AddReplyBulk(b.String())
}

func writeKeyspaceInfo(b *strings.Builder, r *Request) {
	if b.Len() > 0 {
		b.WriteString("\r\n")
	}
	b.WriteString("# Keyspace\r\n")
	st := r.DB.Stats()
	if st.Keys > 0 {
		fmt.Fprintf(b, "db%d:keys=%d,expires=%d\r\n", r.DB.ID(), st.Keys, st.Expires)
	}
}

func writeCommandStats(b *strings.Builder) {
	if b.Len() > 0 {
		b.WriteString("\r\n")
	}
	b.WriteString("# Commandstats\r\n")
	for _, name := range commandNames() {
		st := commandTable[name].Stats()
		if st.Calls == 0 && st.RejectedCalls == 0 {
			continue
		}
		var perCall float64
		if st.Calls > 0 {
			perCall = float64(st.Microseconds) / float64(st.Calls)
		}
		fmt.Fprintf(b, "cmdstat_%s:calls=%d,usec=%d,usec_per_call=%.2f,rejected_calls=%d,failed_calls=%d\r\n",
			name, st.Calls, st.Microseconds, perCall, st.RejectedCalls, st.FailedCalls)
	}
}

// DEBUG SLEEP <seconds>. The worker is marked blocked for the duration so
// its queue keeps serving other clients.
func debugCommand(r *Request) {
	switch strings.ToUpper(r.Argv[1]) {
	case "SLEEP":
		if len(r.Argv) != 3 {
			r.AddReplyError(ArityError("debug|sleep"))
			return
		}
		d, ok := debugSleepDuration(r.Argv[2])
		if !ok {
			r.AddReplyError("value is not a valid float")
			return
		}
		if r.Thread != nil {
			r.Thread.Block()
			defer r.Thread.Unblock()
		}
		time.Sleep(d)
		r.AddReply(SharedOk)
	default:
		r.AddReplyErrorf("unknown subcommand '%s'. Try DEBUG HELP.", r.Argv[1])
	}
}

// debugSleepDuration parses seconds, capped at MaxDebugSleep before the
// conversion so huge or infinite values cannot overflow.
func debugSleepDuration(arg string) (time.Duration, bool) {
	secs, err := strconv.ParseFloat(arg, 64)
	if err != nil || math.IsNaN(secs) || secs < 0 {
		return 0, false
	}
	if secs >= MaxDebugSleep.Seconds() {
		return MaxDebugSleep, true
	}
	return time.Duration(secs * float64(time.Second)), true
}
