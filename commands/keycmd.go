package commands

import (
	"math"
	"strings"

	"github.com/fzft/go-avocado/db"
)

func init() {
	register(
		&RedisCommand{Name: "del", Proc: delCommand, Group: RedisCommandGroupGeneric, Arity: -2, Flags: CmdWrite},
		&RedisCommand{Name: "exists", Proc: existsCommand, Group: RedisCommandGroupGeneric, Arity: -2, Flags: CmdReadOnly | CmdFast},
		&RedisCommand{Name: "type", Proc: typeCommand, Group: RedisCommandGroupGeneric, Arity: 2, Flags: CmdReadOnly | CmdFast},
		&RedisCommand{Name: "expire", Proc: expireCommand, Group: RedisCommandGroupGeneric, Arity: 3, Flags: CmdWrite | CmdFast},
		&RedisCommand{Name: "pexpire", Proc: pexpireCommand, Group: RedisCommandGroupGeneric, Arity: 3, Flags: CmdWrite | CmdFast},
		&RedisCommand{Name: "expireat", Proc: expireatCommand, Group: RedisCommandGroupGeneric, Arity: 3, Flags: CmdWrite | CmdFast},
		&RedisCommand{Name: "pexpireat", Proc: pexpireatCommand, Group: RedisCommandGroupGeneric, Arity: 3, Flags: CmdWrite | CmdFast},
		&RedisCommand{Name: "ttl", Proc: ttlCommand, Group: RedisCommandGroupGeneric, Arity: 2, Flags: CmdReadOnly | CmdFast},
		&RedisCommand{Name: "pttl", Proc: pttlCommand, Group: RedisCommandGroupGeneric, Arity: 2, Flags: CmdReadOnly | CmdFast},
		&RedisCommand{Name: "persist", Proc: persistCommand, Group: RedisCommandGroupGeneric, Arity: 2, Flags: CmdWrite | CmdFast},
		&RedisCommand{Name: "dbsize", Proc: dbsizeCommand, Group: RedisCommandGroupServer, Arity: 1, Flags: CmdReadOnly | CmdFast},
		&RedisCommand{Name: "flushdb", Proc: flushdbCommand, Group: RedisCommandGroupServer, Arity: -1, Flags: CmdWrite | CmdAdmin},
	)
}

func delCommand(r *Request) {
	_ = r.DB.Update(func(tx *db.Txn) error {
		var deleted int64
		for _, key := range r.Argv[1:] {
			if tx.Delete(key) {
				deleted++
			}
		}
		r.AddReplyInteger(deleted)
		return nil
	})
}

// EXISTS counts a key once per time it is named.
func existsCommand(r *Request) {
	_ = r.DB.View(func(tx *db.Txn) error {
		var count int64
		for _, key := range r.Argv[1:] {
			if tx.Exists(key) {
				count++
			}
		}
		r.AddReplyInteger(count)
		return nil
	})
}

func typeCommand(r *Request) {
	_ = r.DB.View(func(tx *db.Txn) error {
		o, ok := tx.Lookup(r.Argv[1])
		if !ok {
			r.AddReplyStatus("none")
			return nil
		}
		r.AddReplyStatus(o.Type.String())
		return nil
	})
}

// expireGenericCommand implements EXPIRE, PEXPIRE, EXPIREAT and PEXPIREAT.
// A relative argument is added to the command clock.
func expireGenericCommand(r *Request, relative bool, unit int) {
	when, ok := parseInt(r.Argv[2])
	if !ok {
		r.AddReply(SharedNotIntegerErr)
		return
	}
	if unit == unitSeconds {
		if when > math.MaxInt64/1000 || when < math.MinInt64/1000 {
			r.AddReplyErrorf("invalid expire time in '%s' command", strings.ToLower(r.Argv[0]))
			return
		}
		when *= 1000
	}

	_ = r.DB.Update(func(tx *db.Txn) error {
		if relative {
			if when > 0 && when > math.MaxInt64-tx.Now() {
				r.AddReplyErrorf("invalid expire time in '%s' command", strings.ToLower(r.Argv[0]))
				return nil
			}
			when += tx.Now()
		}
		if tx.SetExpire(r.Argv[1], when) {
			r.AddReply(SharedCOne)
		} else {
			r.AddReply(SharedCZero)
		}
		return nil
	})
}

func expireCommand(r *Request) { expireGenericCommand(r, true, unitSeconds) }

func pexpireCommand(r *Request) { expireGenericCommand(r, true, unitMilliseconds) }

func expireatCommand(r *Request) { expireGenericCommand(r, false, unitSeconds) }

func pexpireatCommand(r *Request) { expireGenericCommand(r, false, unitMilliseconds) }

// ttlGenericCommand replies -2 for a missing key and -1 for a key without
// a timeout.
func ttlGenericCommand(r *Request, unit int) {
	_ = r.DB.View(func(tx *db.Txn) error {
		key := r.Argv[1]
		if !tx.Exists(key) {
			r.AddReplyInteger(-2)
			return nil
		}
		when := tx.GetExpire(key)
		if when < 0 {
			r.AddReplyInteger(-1)
			return nil
		}
		ttl := when - tx.Now()
		if ttl < 0 {
			ttl = 0
		}
		if unit == unitSeconds {
			ttl = (ttl + 500) / 1000
		}
		r.AddReplyInteger(ttl)
		return nil
	})
}

func ttlCommand(r *Request) { ttlGenericCommand(r, unitSeconds) }

func pttlCommand(r *Request) { ttlGenericCommand(r, unitMilliseconds) }

func persistCommand(r *Request) {
	_ = r.DB.Update(func(tx *db.Txn) error {
		if tx.RmExpire(r.Argv[1]) {
			r.AddReply(SharedCOne)
		} else {
			r.AddReply(SharedCZero)
		}
		return nil
	})
}

func dbsizeCommand(r *Request) {
	r.AddReplyInteger(int64(r.DB.Size()))
}

// FLUSHDB [ASYNC | SYNC]; both modes flush synchronously.
func flushdbCommand(r *Request) {
	if len(r.Argv) > 2 {
		r.AddReply(SharedSyntaxErr)
		return
	}
	if len(r.Argv) == 2 {
		switch strings.ToUpper(r.Argv[1]) {
		case "ASYNC", "SYNC":
		default:
			r.AddReply(SharedSyntaxErr)
			return
		}
	}
	r.DB.Flush()
	r.AddReply(SharedOk)
}
