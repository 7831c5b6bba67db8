package commands

import (
	"fmt"

	"github.com/fzft/go-avocado/resp"
)

func sharedReply(format string, args ...any) []byte {
	return []byte(fmt.Sprintf(format, args...))
}

var (
	// Shared command responses

	SharedOk         = sharedReply("%cOK%s", resp.TypeSimple, resp.CRLF)
	SharedPong       = sharedReply("%cPONG%s", resp.TypeSimple, resp.CRLF)
	SharedNullBulk   = sharedReply("%c-1%s", resp.TypeBlob, resp.CRLF)
	SharedEmptyBulk  = sharedReply("%c0%s%s", resp.TypeBlob, resp.CRLF, resp.CRLF)
	SharedCZero      = sharedReply("%c0%s", resp.TypeInteger, resp.CRLF)
	SharedCOne       = sharedReply("%c1%s", resp.TypeInteger, resp.CRLF)
	SharedEmptyArray = sharedReply("%c0%s", resp.TypeArray, resp.CRLF)
	SharedNullArray  = sharedReply("%c-1%s", resp.TypeArray, resp.CRLF)

	// Shared command error responses

	SharedWrongTypeErr  = sharedReply("%cWRONGTYPE Operation against a key holding the wrong kind of value%s", resp.TypeError, resp.CRLF)
	SharedSyntaxErr     = sharedReply("%cERR syntax error%s", resp.TypeError, resp.CRLF)
	SharedNotIntegerErr = sharedReply("%cERR value is not an integer or out of range%s", resp.TypeError, resp.CRLF)
	SharedOverflowErr   = sharedReply("%cERR increment or decrement would overflow%s", resp.TypeError, resp.CRLF)
	SharedBusyErr       = sharedReply("%cBUSY server is overloaded, try again later%s", resp.TypeError, resp.CRLF)
	SharedShutdownErr   = sharedReply("%cERR server is shutting down%s", resp.TypeError, resp.CRLF)
)
