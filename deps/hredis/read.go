package hredis

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fzft/go-avocado/resp"
)

type RedisReplyType int8

const (
	RedisReplyUnknown RedisReplyType = iota - 1
	_
	RedisReplyString
	RedisReplyArray
	RedisReplyInteger
	RedisReplyNil
	RedisReplyStatus
	RedisReplyError
	RedisReplyDouble
	RedisReplyBool
	RedisReplyMap
	RedisReplySet
	RedisReplyPush
	RedisReplyBignumber
	RedisReplyVerbatim
)

// RedisReply is a decoded reply. Map replies keep keys and values
// interleaved in Element.
type RedisReply struct {
	Tp      RedisReplyType
	Integer int64   // The integer when type is RedisReplyInteger or RedisReplyBool
	Dval    float64 // The double when type is RedisReplyDouble
	Str     string  // The string when type is RedisReplyString,RedisReplyError,RedisReplyStatus
	Vtype   string  // The format of a verbatim string
	Element []*RedisReply
}

func (r *RedisReply) IsError() bool { return r.Tp == RedisReplyError }

func newReply(n resp.Node) *RedisReply {
	switch v := n.(type) {
	case resp.SimpleString:
		return &RedisReply{Tp: RedisReplyStatus, Str: v.Value}
	case resp.Error:
		return &RedisReply{Tp: RedisReplyError, Str: v.Message}
	case resp.BlobError:
		return &RedisReply{Tp: RedisReplyError, Str: v.Message}
	case resp.Integer:
		return &RedisReply{Tp: RedisReplyInteger, Integer: v.Value}
	case resp.BlobString:
		return &RedisReply{Tp: RedisReplyString, Str: v.Value}
	case resp.VerbatimString:
		return &RedisReply{Tp: RedisReplyVerbatim, Str: v.Value, Vtype: v.Format}
	case resp.Double:
		return &RedisReply{Tp: RedisReplyDouble, Dval: v.Value, Str: strconv.FormatFloat(v.Value, 'g', -1, 64)}
	case resp.Boolean:
		r := &RedisReply{Tp: RedisReplyBool}
		if v.Value {
			r.Integer = 1
		}
		return r
	case resp.BigNum:
		return &RedisReply{Tp: RedisReplyBignumber, Str: v.Value}
	case resp.Null:
		return &RedisReply{Tp: RedisReplyNil}
	case resp.Array:
		return &RedisReply{Tp: RedisReplyArray, Element: newReplies(v.Elements)}
	case resp.Set:
		return &RedisReply{Tp: RedisReplySet, Element: newReplies(v.Elements)}
	case resp.Push:
		return &RedisReply{Tp: RedisReplyPush, Element: newReplies(v.Elements)}
	case resp.Map:
		r := &RedisReply{Tp: RedisReplyMap, Element: make([]*RedisReply, 0, 2*len(v.Keys))}
		for i := range v.Keys {
			r.Element = append(r.Element, newReply(v.Keys[i]), newReply(v.Values[i]))
		}
		return r
	}
	return &RedisReply{Tp: RedisReplyUnknown}
}

func newReplies(nodes []resp.Node) []*RedisReply {
	out := make([]*RedisReply, len(nodes))
	for i, n := range nodes {
		out[i] = newReply(n)
	}
	return out
}

// Format renders r the way redis-cli does on a terminal.
func (r *RedisReply) Format() string {
	var b strings.Builder
	r.format(&b, "")
	return b.String()
}

func (r *RedisReply) format(b *strings.Builder, prefix string) {
	switch r.Tp {
	case RedisReplyError:
		fmt.Fprintf(b, "(error) %s\n", r.Str)
	case RedisReplyStatus:
		fmt.Fprintf(b, "%s\n", r.Str)
	case RedisReplyInteger:
		fmt.Fprintf(b, "(integer) %d\n", r.Integer)
	case RedisReplyDouble:
		fmt.Fprintf(b, "(double) %s\n", r.Str)
	case RedisReplyBignumber:
		fmt.Fprintf(b, "(big number) %s\n", r.Str)
	case RedisReplyBool:
		fmt.Fprintf(b, "(boolean) %t\n", r.Integer != 0)
	case RedisReplyString:
		fmt.Fprintf(b, "%q\n", r.Str)
	case RedisReplyVerbatim:
		fmt.Fprintf(b, "%s\n", r.Str)
	case RedisReplyNil:
		b.WriteString("(nil)\n")
	case RedisReplyArray, RedisReplySet, RedisReplyPush, RedisReplyMap:
		if len(r.Element) == 0 {
			b.WriteString("(empty array)\n")
			return
		}
		width := len(strconv.Itoa(len(r.Element)))
		for i, e := range r.Element {
			head := fmt.Sprintf("%*d) ", width, i+1)
			if i > 0 {
				b.WriteString(prefix)
			}
			b.WriteString(head)
			e.format(b, prefix+strings.Repeat(" ", len(head)))
		}
	default:
		b.WriteString("(unknown reply)\n")
	}
}
