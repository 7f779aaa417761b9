package signature

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// CanonicalPayload renders the exact byte sequence a client signs:
//
//	{"data":<body>,"method":"POST","path":"/api/...","timestamp":"...","user_id":"..."}
//
// Keys are sorted, there is no insignificant whitespace, every non-ASCII rune
// is escaped as \uXXXX (surrogate pairs above the BMP) and numbers keep the
// rendering a Python json.dumps(sort_keys=True, separators=(",", ":")) client
// would produce. An absent or unparseable body contributes {}.
func CanonicalPayload(method, path string, body []byte, timestamp, userID string) []byte {
	var buf bytes.Buffer
	buf.WriteString(`{"data":`)
	writeValue(&buf, parseBody(body))
	buf.WriteString(`,"method":`)
	writeString(&buf, method)
	buf.WriteString(`,"path":`)
	writeString(&buf, path)
	buf.WriteString(`,"timestamp":`)
	writeString(&buf, timestamp)
	buf.WriteString(`,"user_id":`)
	writeString(&buf, userID)
	buf.WriteByte('}')
	return buf.Bytes()
}

// CanonicalJSON renders an arbitrary JSON document in canonical form.
func CanonicalJSON(doc []byte) ([]byte, error) {
	v, err := decodeStrict(doc)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	writeValue(&buf, v)
	return buf.Bytes(), nil
}

func parseBody(body []byte) any {
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]any{}
	}
	v, err := decodeStrict(body)
	if err != nil {
		return map[string]any{}
	}
	return v
}

func decodeStrict(doc []byte) (any, error) {
	if !utf8.Valid(doc) {
		return nil, errors.New("body is not valid UTF-8")
	}
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON document")
	}
	return v, nil
}

func writeValue(buf *bytes.Buffer, v any) {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		writeString(buf, t)
	case json.Number:
		buf.WriteString(formatNumber(t.String()))
	case []any:
		buf.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeValue(buf, item)
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		// byte order of UTF-8 equals code point order
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, k)
			buf.WriteByte(':')
			writeValue(buf, t[k])
		}
		buf.WriteByte('}')
	default:
		// unreachable for decoder output
		writeString(buf, fmt.Sprint(t))
	}
}

const hexDigits = "0123456789abcdef"

func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			switch {
			case r >= 0x20 && r <= 0x7e:
				buf.WriteRune(r)
			case r > 0xffff:
				r -= 0x10000
				writeUnicodeEscape(buf, 0xd800+(r>>10))
				writeUnicodeEscape(buf, 0xdc00+(r&0x3ff))
			default:
				writeUnicodeEscape(buf, r)
			}
		}
	}
	buf.WriteByte('"')
}

func writeUnicodeEscape(buf *bytes.Buffer, r rune) {
	buf.WriteString(`\u`)
	buf.WriteByte(hexDigits[(r>>12)&0xf])
	buf.WriteByte(hexDigits[(r>>8)&0xf])
	buf.WriteByte(hexDigits[(r>>4)&0xf])
	buf.WriteByte(hexDigits[r&0xf])
}

// formatNumber keeps integers exact and renders floats as the shortest
// round-tripping repr: fixed notation while the decimal exponent is in
// (-4, 16], scientific otherwise, always with a fractional part or exponent.
func formatNumber(lit string) string {
	if !strings.ContainsAny(lit, ".eE") {
		n, ok := new(big.Int).SetString(lit, 10)
		if ok {
			return n.String()
		}
		return lit
	}

	f, err := strconv.ParseFloat(lit, 64)
	if err != nil && !math.IsInf(f, 0) {
		return lit
	}
	return formatFloat(f)
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case math.IsNaN(f):
		return "NaN"
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	expAt := strings.IndexByte(sci, 'e')
	exp, _ := strconv.Atoi(sci[expAt+1:])
	decpt := exp + 1
	if f != 0 && (decpt > 16 || decpt <= -4) {
		return sci
	}

	fixed := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(fixed, '.') {
		fixed += ".0"
	}
	return fixed
}
