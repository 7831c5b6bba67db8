package resp

import "strconv"

// Reply encoders append one RESP2 value to b and return the extended slice.

func AppendSimple(b []byte, s string) []byte {
	b = append(b, TypeSimple)
	b = append(b, s...)
	return append(b, CRLF...)
}

func AppendOK(b []byte) []byte {
	return AppendSimple(b, "OK")
}

// AppendError writes msg as an error reply. A message without an upper
// case error code gets the generic ERR prefix.
func AppendError(b []byte, msg string) []byte {
	b = append(b, TypeError)
	if !hasErrorCode(msg) {
		b = append(b, "ERR "...)
	}
	for i := 0; i < len(msg); i++ {
		if c := msg[i]; c == '\r' || c == '\n' {
			b = append(b, ' ')
		} else {
			b = append(b, c)
		}
	}
	return append(b, CRLF...)
}

func hasErrorCode(msg string) bool {
	i := 0
	for i < len(msg) && msg[i] >= 'A' && msg[i] <= 'Z' {
		i++
	}
	return i > 0 && (i == len(msg) || msg[i] == ' ')
}

func AppendInteger(b []byte, n int64) []byte {
	b = append(b, TypeInteger)
	b = strconv.AppendInt(b, n, 10)
	return append(b, CRLF...)
}

func AppendBulk(b []byte, s string) []byte {
	b = append(b, TypeBlob)
	b = strconv.AppendInt(b, int64(len(s)), 10)
	b = append(b, CRLF...)
	b = append(b, s...)
	return append(b, CRLF...)
}

// AppendNull writes the RESP2 null bulk string.
func AppendNull(b []byte) []byte {
	return append(b, "$-1\r\n"...)
}

func AppendNullArray(b []byte) []byte {
	return append(b, "*-1\r\n"...)
}

// AppendArray writes an array header; the caller appends n elements.
func AppendArray(b []byte, n int) []byte {
	b = append(b, TypeArray)
	b = strconv.AppendInt(b, int64(n), 10)
	return append(b, CRLF...)
}

func AppendBulks(b []byte, items []string) []byte {
	b = AppendArray(b, len(items))
	for _, s := range items {
		b = AppendBulk(b, s)
	}
	return b
}
