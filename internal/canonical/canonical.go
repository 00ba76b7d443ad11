// Package canonical implements the vault's deterministic JSON encoding:
// UTF-8, object keys sorted by codepoint at every depth, no insignificant
// whitespace, shortest round-trip numeric form, non-finite floats rejected,
// array order preserved. Two semantically equal values always produce
// byte-identical output (an RFC 8785-like JCS encoding).
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Bytes canonicalizes an arbitrary JSON-compatible value (struct, map,
// slice, json.RawMessage, or anything encoding/json can marshal) into its
// deterministic byte form.
func Bytes(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}
	return BytesFromJSON(raw)
}

// BytesFromJSON re-encodes already-serialized JSON into canonical form.
func BytesFromJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("canonical: decode: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("canonical: trailing data after JSON value")
	}

	var buf bytes.Buffer
	if err := encodeValue(&buf, value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Hash returns the lower-hex SHA-256 digest of v's canonical encoding.
func Hash(v any) (string, error) {
	b, err := Bytes(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// HashBytes returns the lower-hex SHA-256 digest of raw bytes.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func encodeValue(buf *bytes.Buffer, v any) error {
	switch vv := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if vv {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case json.Number:
		return encodeNumber(buf, vv)
	case string:
		return encodeString(buf, vv)
	case []any:
		return encodeArray(buf, vv)
	case map[string]any:
		return encodeObject(buf, vv)
	default:
		return fmt.Errorf("canonical: unsupported value type %T", v)
	}
}

func encodeNumber(buf *bytes.Buffer, n json.Number) error {
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("canonical: invalid number %q: %w", n, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("canonical: non-finite number %q is not representable", n)
	}

	s := n.String()
	if isIntegerLiteral(s) {
		// Already minimal-form: json.Number preserves the source digits
		// verbatim and encoding/json never emits leading zeros or '+'.
		buf.WriteString(s)
		return nil
	}

	// Shortest round-trip decimal form for floats.
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

func isIntegerLiteral(s string) bool {
	for _, c := range s {
		if c == '.' || c == 'e' || c == 'E' {
			return false
		}
	}
	return true
}

func encodeString(buf *bytes.Buffer, s string) error {
	// json.Marshal HTML-escapes '<', '>', '&', U+2028 and U+2029 by
	// default, which would make our encoding of those bytes diverge
	// from any canonicalizer that only applies the JSON-mandated
	// escape set. Use an Encoder with HTML escaping disabled instead,
	// trimming the trailing newline it always appends. The Encoder still
	// escapes U+2028 and U+2029 even with HTML escaping disabled, so
	// those two escape sequences are turned back into the raw characters
	// below.
	var sb bytes.Buffer
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("canonical: encode string: %w", err)
	}
	out := bytes.TrimSuffix(sb.Bytes(), []byte("\n"))
	for i := 0; i < len(out); i++ {
		if out[i] == '\\' {
			if i+5 < len(out) && out[i+1] == 'u' && (string(out[i+2:i+6]) == "2028" || string(out[i+2:i+6]) == "2029") {
				buf.WriteRune(rune(0x2028 + int(out[i+5]-'8')))
				i += 5
				continue
			}
			// Copy any other escape pair unchanged.
			buf.WriteByte(out[i])
			i++
		}
		buf.WriteByte(out[i])
	}
	return nil
}

func encodeArray(buf *bytes.Buffer, arr []any) error {
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeValue(buf, elem); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func encodeObject(buf *bytes.Buffer, obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeString(buf, k); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := encodeValue(buf, obj[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}
