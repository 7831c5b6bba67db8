package commands

import (
	"math"
	"strconv"
	"strings"

	"github.com/fzft/go-avocado/db"
)

type StrSetType int

const (
	ObjNoFlags    StrSetType = 0
	ObjSetNX      StrSetType = 1 << 0 // Set if key not exists.
	ObjSetXX      StrSetType = 1 << 1 // Set if key exists.
	ObjSetEX      StrSetType = 1 << 2 // Set if time in seconds is give.
	ObjSetPX      StrSetType = 1 << 3 // Set if time in milliseconds is given.
	ObjSetKeepTTL StrSetType = 1 << 4 // Keep the TTL if the key exists.
	ObjSetGet     StrSetType = 1 << 5 // Set if want to get key before set.
	ObjEXAT       StrSetType = 1 << 6 // Set if time in seconds is given as timestamp.
	ObjPXAT       StrSetType = 1 << 7 // Set if time in milliseconds is given as timestamp.
)

const (
	unitSeconds = iota
	unitMilliseconds
)

const objExpireFlags = ObjSetEX | ObjSetPX | ObjEXAT | ObjPXAT | ObjSetKeepTTL

func init() {
	register(
		&RedisCommand{Name: "get", Proc: getCommand, Group: RedisCommandGroupString, Arity: 2, Flags: CmdReadOnly | CmdFast},
		&RedisCommand{Name: "set", Proc: setCommand, Group: RedisCommandGroupString, Arity: -3, Flags: CmdWrite},
		&RedisCommand{Name: "setnx", Proc: setnxCommand, Group: RedisCommandGroupString, Arity: 3, Flags: CmdWrite | CmdFast},
		&RedisCommand{Name: "setex", Proc: setexCommand, Group: RedisCommandGroupString, Arity: 4, Flags: CmdWrite},
		&RedisCommand{Name: "psetex", Proc: psetexCommand, Group: RedisCommandGroupString, Arity: 4, Flags: CmdWrite},
		&RedisCommand{Name: "getset", Proc: getsetCommand, Group: RedisCommandGroupString, Arity: 3, Flags: CmdWrite | CmdFast},
		&RedisCommand{Name: "mget", Proc: mgetCommand, Group: RedisCommandGroupString, Arity: -2, Flags: CmdReadOnly | CmdFast},
		&RedisCommand{Name: "strlen", Proc: strlenCommand, Group: RedisCommandGroupString, Arity: 2, Flags: CmdReadOnly | CmdFast},
		&RedisCommand{Name: "append", Proc: appendCommand, Group: RedisCommandGroupString, Arity: 3, Flags: CmdWrite},
		&RedisCommand{Name: "incr", Proc: incrCommand, Group: RedisCommandGroupString, Arity: 2, Flags: CmdWrite | CmdFast},
		&RedisCommand{Name: "decr", Proc: decrCommand, Group: RedisCommandGroupString, Arity: 2, Flags: CmdWrite | CmdFast},
		&RedisCommand{Name: "incrby", Proc: incrbyCommand, Group: RedisCommandGroupString, Arity: 3, Flags: CmdWrite | CmdFast},
		&RedisCommand{Name: "decrby", Proc: decrbyCommand, Group: RedisCommandGroupString, Arity: 3, Flags: CmdWrite | CmdFast},
	)
}

// parseExtendedStringArgumentsOrReply parses the options of SET starting
// at argv[3]. On a syntax error it replies and returns ok false.
func parseExtendedStringArgumentsOrReply(r *Request) (flags StrSetType, expire string, unit int, ok bool) {
	argv := r.Argv
	for j := 3; j < len(argv); j++ {
		opt := strings.ToUpper(argv[j])
		var next string
		if j+1 < len(argv) {
			next = argv[j+1]
		}

		switch {
		case opt == "NX" && flags&(ObjSetXX) == 0:
			flags |= ObjSetNX
		case opt == "XX" && flags&(ObjSetNX) == 0:
			flags |= ObjSetXX
		case opt == "GET":
			flags |= ObjSetGet
		case opt == "KEEPTTL" && flags&objExpireFlags == 0:
			flags |= ObjSetKeepTTL
		case opt == "EX" && flags&objExpireFlags == 0 && next != "":
			flags |= ObjSetEX
			expire, unit = next, unitSeconds
			j++
		case opt == "PX" && flags&objExpireFlags == 0 && next != "":
			flags |= ObjSetPX
			expire, unit = next, unitMilliseconds
			j++
		case opt == "EXAT" && flags&objExpireFlags == 0 && next != "":
			flags |= ObjEXAT
			expire, unit = next, unitSeconds
			j++
		case opt == "PXAT" && flags&objExpireFlags == 0 && next != "":
			flags |= ObjPXAT
			expire, unit = next, unitMilliseconds
			j++
		default:
			r.AddReply(SharedSyntaxErr)
			return 0, "", 0, false
		}
	}
	return flags, expire, unit, true
}

// getExpireMillisecondsOrReply turns the expire argument into an absolute
// unix ms deadline.
func getExpireMillisecondsOrReply(r *Request, tx *db.Txn, expire string, flags StrSetType, unit int) (int64, bool) {
	n, ok := parseInt(expire)
	if !ok {
		r.AddReply(SharedNotIntegerErr)
		return 0, false
	}
	if n <= 0 || (unit == unitSeconds && n > math.MaxInt64/1000) {
		r.AddReplyErrorf("invalid expire time in '%s' command", strings.ToLower(r.Argv[0]))
		return 0, false
	}
	if unit == unitSeconds {
		n *= 1000
	}
	if flags&(ObjPXAT|ObjEXAT) == 0 {
		if n > math.MaxInt64-tx.Now() {
			r.AddReplyErrorf("invalid expire time in '%s' command", strings.ToLower(r.Argv[0]))
			return 0, false
		}
		n += tx.Now()
	}
	return n, true
}

/* setGenericCommand implements SET and its variants SETNX, SETEX, PSETEX
 * and GETSET.
 *
 * 'flags' changes the behavior of the command (NX, XX or GET).
 *
 * 'expire' is the expire as passed by the user, interpreted according to
 * 'unit'. It is empty when no expire was given.
 *
 * okReply and abortReply are sent when the operation is performed or
 * skipped because of NX or XX. A nil okReply means "+OK" and a nil
 * abortReply means a null bulk. */
func setGenericCommand(r *Request, flags StrSetType, key, val, expire string, unit int, okReply, abortReply []byte) {
	_ = r.DB.Update(func(tx *db.Txn) error {
		var when int64
		if expire != "" {
			var ok bool
			if when, ok = getExpireMillisecondsOrReply(r, tx, expire, flags, unit); !ok {
				return nil
			}
		}

		old, exist := tx.Lookup(key)
		if flags&ObjSetGet != 0 {
			if exist && old.Type != db.StringType {
				r.AddReply(SharedWrongTypeErr)
				return nil
			}
		}

		if (flags&ObjSetXX != 0 && !exist) || (flags&ObjSetNX != 0 && exist) {
			if flags&ObjSetGet != 0 {
				getReply(r, old, exist)
				return nil
			}
			if abortReply == nil {
				abortReply = SharedNullBulk
			}
			r.AddReply(abortReply)
			return nil
		}

		deadline := int64(-1)
		if flags&ObjSetKeepTTL != 0 {
			deadline = tx.GetExpire(key)
		}
		tx.Set(key, db.NewStringObject(val))
		if expire != "" {
			tx.SetExpire(key, when)
		} else if deadline >= 0 {
			tx.SetExpire(key, deadline)
		}

		switch {
		case flags&ObjSetGet != 0:
			getReply(r, old, exist)
		case okReply != nil:
			r.AddReply(okReply)
		default:
			r.AddReply(SharedOk)
		}
		return nil
	})
}

func getReply(r *Request, o *db.RedisObj, exist bool) {
	if !exist {
		r.AddReply(SharedNullBulk)
		return
	}
	r.AddReplyBulk(o.String())
}

// SET key value [NX | XX] [GET] [EX seconds | PX milliseconds |
// EXAT unix-time-seconds | PXAT unix-time-milliseconds | KEEPTTL]
func setCommand(r *Request) {
	flags, expire, unit, ok := parseExtendedStringArgumentsOrReply(r)
	if !ok {
		return
	}
	setGenericCommand(r, flags, r.Argv[1], r.Argv[2], expire, unit, nil, nil)
}

func setnxCommand(r *Request) {
	setGenericCommand(r, ObjSetNX, r.Argv[1], r.Argv[2], "", 0, SharedCOne, SharedCZero)
}

func setexCommand(r *Request) {
	setGenericCommand(r, ObjSetEX, r.Argv[1], r.Argv[3], r.Argv[2], unitSeconds, nil, nil)
}

func psetexCommand(r *Request) {
	setGenericCommand(r, ObjSetPX, r.Argv[1], r.Argv[3], r.Argv[2], unitMilliseconds, nil, nil)
}

func getsetCommand(r *Request) {
	setGenericCommand(r, ObjSetGet, r.Argv[1], r.Argv[2], "", 0, nil, nil)
}

// getGenericCommand replies with the string at key and reports whether
// the key held a string or was missing.
func getGenericCommand(r *Request, tx *db.Txn, key string) bool {
	o, ok := tx.Lookup(key)
	if !ok {
		r.AddReply(SharedNullBulk)
		return true
	}
	if o.Type != db.StringType {
		r.AddReply(SharedWrongTypeErr)
		return false
	}
	r.AddReplyBulk(o.String())
	return true
}

func getCommand(r *Request) {
	_ = r.DB.View(func(tx *db.Txn) error {
		getGenericCommand(r, tx, r.Argv[1])
		return nil
	})
}

func mgetCommand(r *Request) {
	_ = r.DB.View(func(tx *db.Txn) error {
		keys := r.Argv[1:]
		r.AddReplyArrayLen(len(keys))
		for _, key := range keys {
			o, ok := tx.Lookup(key)
			if !ok || o.Type != db.StringType {
				r.AddReply(SharedNullBulk)
				continue
			}
			r.AddReplyBulk(o.String())
		}
		return nil
	})
}

func strlenCommand(r *Request) {
	_ = r.DB.View(func(tx *db.Txn) error {
		o, ok := tx.Lookup(r.Argv[1])
		switch {
		case !ok:
			r.AddReply(SharedCZero)
		case o.Type != db.StringType:
			r.AddReply(SharedWrongTypeErr)
		default:
			r.AddReplyInteger(int64(len(o.String())))
		}
		return nil
	})
}

func appendCommand(r *Request) {
	_ = r.DB.Update(func(tx *db.Txn) error {
		key := r.Argv[1]
		o, ok := tx.Lookup(key)
		if ok && o.Type != db.StringType {
			r.AddReply(SharedWrongTypeErr)
			return nil
		}

		val := r.Argv[2]
		if ok {
			val = o.String() + val
			deadline := tx.GetExpire(key)
			tx.Set(key, db.NewStringObject(val))
			if deadline >= 0 {
				tx.SetExpire(key, deadline)
			}
		} else {
			tx.Set(key, db.NewStringObject(val))
		}
		r.AddReplyInteger(int64(len(val)))
		return nil
	})
}

func incrDecrCommand(r *Request, incr int64) {
	_ = r.DB.Update(func(tx *db.Txn) error {
		key := r.Argv[1]
		o, ok := tx.Lookup(key)

		var value int64
		if ok {
			if o.Type != db.StringType {
				r.AddReply(SharedWrongTypeErr)
				return nil
			}
			var isInt bool
			if value, isInt = o.Int(); !isInt {
				r.AddReply(SharedNotIntegerErr)
				return nil
			}
		}

		if (incr < 0 && value < 0 && incr < math.MinInt64-value) ||
			(incr > 0 && value > 0 && incr > math.MaxInt64-value) {
			r.AddReply(SharedOverflowErr)
			return nil
		}
		value += incr

		if ok {
			// in place keeps the timeout
			o.Encoding, o.Value = db.EncodingInt, value
			tx.Touch(key, o)
		} else {
			tx.Set(key, db.NewIntObject(value))
		}
		r.AddReplyInteger(value)
		return nil
	})
}

func incrCommand(r *Request) { incrDecrCommand(r, 1) }

func decrCommand(r *Request) { incrDecrCommand(r, -1) }

func incrbyCommand(r *Request) {
	incr, err := strconv.ParseInt(r.Argv[2], 10, 64)
	if err != nil {
		r.AddReply(SharedNotIntegerErr)
		return
	}
	incrDecrCommand(r, incr)
}

func decrbyCommand(r *Request) {
	incr, err := strconv.ParseInt(r.Argv[2], 10, 64)
	if err != nil || incr == math.MinInt64 {
		r.AddReply(SharedNotIntegerErr)
		return
	}
	incrDecrCommand(r, -incr)
}
