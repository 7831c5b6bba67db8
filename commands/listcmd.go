package commands

import (
	"github.com/fzft/go-avocado/db"
)

func init() {
	register(
		&RedisCommand{Name: "lpush", Proc: lpushCommand, Group: RedisCommandGroupList, Arity: -3, Flags: CmdWrite | CmdFast},
		&RedisCommand{Name: "rpush", Proc: rpushCommand, Group: RedisCommandGroupList, Arity: -3, Flags: CmdWrite | CmdFast},
		&RedisCommand{Name: "lpop", Proc: lpopCommand, Group: RedisCommandGroupList, Arity: -2, Flags: CmdWrite | CmdFast},
		&RedisCommand{Name: "rpop", Proc: rpopCommand, Group: RedisCommandGroupList, Arity: -2, Flags: CmdWrite | CmdFast},
		&RedisCommand{Name: "llen", Proc: llenCommand, Group: RedisCommandGroupList, Arity: 2, Flags: CmdReadOnly | CmdFast},
		&RedisCommand{Name: "lindex", Proc: lindexCommand, Group: RedisCommandGroupList, Arity: 3, Flags: CmdReadOnly},
		&RedisCommand{Name: "lrange", Proc: lrangeCommand, Group: RedisCommandGroupList, Arity: 4, Flags: CmdReadOnly},
	)
}

// lookupList returns the list at key; a key of another type replies
// WRONGTYPE and returns ok false.
func lookupList(r *Request, tx *db.Txn, key string) (l *db.List[string], exist, ok bool) {
	o, exist := tx.Lookup(key)
	if !exist {
		return nil, false, true
	}
	if o.Type != db.ListType {
		r.AddReply(SharedWrongTypeErr)
		return nil, true, false
	}
	return o.List(), true, true
}

func pushGenericCommand(r *Request, where int) {
	_ = r.DB.Update(func(tx *db.Txn) error {
		key := r.Argv[1]
		o, exist := tx.Lookup(key)
		if exist && o.Type != db.ListType {
			r.AddReply(SharedWrongTypeErr)
			return nil
		}
		if !exist {
			o = db.NewListObject()
		}

		l := o.List()
		for _, v := range r.Argv[2:] {
			if where == db.DIRECTION_HEAD {
				l.AddNodeHead(v)
			} else {
				l.AddNodeTail(v)
			}
		}
		if exist {
			tx.Touch(key, o)
		} else {
			tx.Set(key, o)
		}
		r.AddReplyInteger(int64(l.Len()))
		return nil
	})
}

func lpushCommand(r *Request) { pushGenericCommand(r, db.DIRECTION_HEAD) }

func rpushCommand(r *Request) { pushGenericCommand(r, db.DIRECTION_TAIL) }

// popGenericCommand implements LPOP and RPOP with the optional count. An
// emptied list is deleted.
func popGenericCommand(r *Request, where int) {
	count, withCount := int64(1), len(r.Argv) == 3
	if len(r.Argv) > 3 {
		r.AddReplyError(ArityError(r.Argv[0]))
		return
	}
	if withCount {
		var ok bool
		if count, ok = parseInt(r.Argv[2]); !ok || count < 0 {
			r.AddReplyError("value is out of range, must be positive")
			return
		}
	}

	_ = r.DB.Update(func(tx *db.Txn) error {
		key := r.Argv[1]
		l, exist, ok := lookupList(r, tx, key)
		if !ok {
			return nil
		}
		if !exist {
			if withCount {
				r.AddReply(SharedNullArray)
			} else {
				r.AddReply(SharedNullBulk)
			}
			return nil
		}

		n := int(count)
		if n > l.Len() {
			n = l.Len()
		}
		popped := make([]string, 0, n)
		for i := 0; i < n; i++ {
			node := l.Head
			if where == db.DIRECTION_TAIL {
				node = l.Tail
			}
			popped = append(popped, node.Value)
			_ = l.RemoveNode(node)
		}

		if l.Len() == 0 {
			tx.Delete(key)
		} else {
			o, _ := tx.Lookup(key)
			tx.Touch(key, o)
		}

		if withCount {
			r.AddReplyBulks(popped)
		} else {
			r.AddReplyBulk(popped[0])
		}
		return nil
	})
}

func lpopCommand(r *Request) { popGenericCommand(r, db.DIRECTION_HEAD) }

func rpopCommand(r *Request) { popGenericCommand(r, db.DIRECTION_TAIL) }

func llenCommand(r *Request) {
	_ = r.DB.View(func(tx *db.Txn) error {
		l, exist, ok := lookupList(r, tx, r.Argv[1])
		if !ok {
			return nil
		}
		if !exist {
			r.AddReply(SharedCZero)
			return nil
		}
		r.AddReplyInteger(int64(l.Len()))
		return nil
	})
}

func lindexCommand(r *Request) {
	index, ok := parseInt(r.Argv[2])
	if !ok {
		r.AddReply(SharedNotIntegerErr)
		return
	}
	_ = r.DB.View(func(tx *db.Txn) error {
		l, exist, ok := lookupList(r, tx, r.Argv[1])
		if !ok {
			return nil
		}
		if !exist {
			r.AddReply(SharedNullBulk)
			return nil
		}
		if node := l.Index(int(index)); node != nil {
			r.AddReplyBulk(node.Value)
		} else {
			r.AddReply(SharedNullBulk)
		}
		return nil
	})
}

func lrangeCommand(r *Request) {
	start, ok1 := parseInt(r.Argv[2])
	end, ok2 := parseInt(r.Argv[3])
	if !ok1 || !ok2 {
		r.AddReply(SharedNotIntegerErr)
		return
	}

	_ = r.DB.View(func(tx *db.Txn) error {
		l, exist, ok := lookupList(r, tx, r.Argv[1])
		if !ok {
			return nil
		}
		if !exist {
			r.AddReply(SharedEmptyArray)
			return nil
		}

		llen := int64(l.Len())
		if start < 0 {
			start += llen
		}
		if end < 0 {
			end += llen
		}
		if start < 0 {
			start = 0
		}
		if start > end || start >= llen {
			r.AddReply(SharedEmptyArray)
			return nil
		}
		if end >= llen {
			end = llen - 1
		}

		items := make([]string, 0, end-start+1)
		node := l.Index(int(start))
		for i := start; i <= end && node != nil; i++ {
			items = append(items, node.Value)
			node = node.Next
		}
		r.AddReplyBulks(items)
		return nil
	})
}
