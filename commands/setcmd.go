package commands

import (
	"golang.org/x/exp/slices"

	"github.com/fzft/go-avocado/db"
)

func init() {
	register(
		&RedisCommand{Name: "sadd", Proc: saddCommand, Group: RedisCommandGroupSet, Arity: -3, Flags: CmdWrite | CmdFast},
		&RedisCommand{Name: "srem", Proc: sremCommand, Group: RedisCommandGroupSet, Arity: -3, Flags: CmdWrite | CmdFast},
		&RedisCommand{Name: "sismember", Proc: sismemberCommand, Group: RedisCommandGroupSet, Arity: 3, Flags: CmdReadOnly | CmdFast},
		&RedisCommand{Name: "scard", Proc: scardCommand, Group: RedisCommandGroupSet, Arity: 2, Flags: CmdReadOnly | CmdFast},
		&RedisCommand{Name: "smembers", Proc: smembersCommand, Group: RedisCommandGroupSet, Arity: 2, Flags: CmdReadOnly},
	)
}

func lookupSet(r *Request, tx *db.Txn, key string) (o *db.RedisObj, exist, ok bool) {
	o, exist = tx.Lookup(key)
	if exist && o.Type != db.SetType {
		r.AddReply(SharedWrongTypeErr)
		return nil, true, false
	}
	return o, exist, true
}

func saddCommand(r *Request) {
	_ = r.DB.Update(func(tx *db.Txn) error {
		key := r.Argv[1]
		o, exist, ok := lookupSet(r, tx, key)
		if !ok {
			return nil
		}
		if !exist {
			o = db.NewSetObject()
		}

		var added int64
		set := o.Set()
		for _, member := range r.Argv[2:] {
			if set.Add(member) {
				added++
			}
		}
		if exist {
			tx.Touch(key, o)
		} else {
			tx.Set(key, o)
		}
		r.AddReplyInteger(added)
		return nil
	})
}

func sremCommand(r *Request) {
	_ = r.DB.Update(func(tx *db.Txn) error {
		key := r.Argv[1]
		o, exist, ok := lookupSet(r, tx, key)
		if !ok {
			return nil
		}
		if !exist {
			r.AddReply(SharedCZero)
			return nil
		}

		var removed int64
		set := o.Set()
		for _, member := range r.Argv[2:] {
			if set.Remove(member) {
				removed++
			}
		}
		if set.Len() == 0 {
			tx.Delete(key)
		} else if removed > 0 {
			tx.Touch(key, o)
		}
		r.AddReplyInteger(removed)
		return nil
	})
}

func sismemberCommand(r *Request) {
	_ = r.DB.View(func(tx *db.Txn) error {
		o, exist, ok := lookupSet(r, tx, r.Argv[1])
		if !ok {
			return nil
		}
		if exist && o.Set().Contains(r.Argv[2]) {
			r.AddReply(SharedCOne)
		} else {
			r.AddReply(SharedCZero)
		}
		return nil
	})
}

func scardCommand(r *Request) {
	_ = r.DB.View(func(tx *db.Txn) error {
		o, exist, ok := lookupSet(r, tx, r.Argv[1])
		if !ok {
			return nil
		}
		if !exist {
			r.AddReply(SharedCZero)
			return nil
		}
		r.AddReplyInteger(int64(o.Set().Len()))
		return nil
	})
}

// SMEMBERS replies in sorted order so the output is stable.
func smembersCommand(r *Request) {
	_ = r.DB.View(func(tx *db.Txn) error {
		o, exist, ok := lookupSet(r, tx, r.Argv[1])
		if !ok {
			return nil
		}
		if !exist {
			r.AddReply(SharedEmptyArray)
			return nil
		}
		members := o.Set().Members()
		slices.Sort(members)
		r.AddReplyBulks(members)
		return nil
	})
}
