// Package canonicalize produces a deterministic byte sequence for a
// payload value: structurally equal payloads map to byte-equal canonical
// forms. Map keys are sorted lexicographically, no insignificant
// whitespace is emitted, strings are NFC-normalized UTF-8, integers are
// plain decimal, and booleans/null have single fixed forms.
package canonicalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/text/unicode/norm"

	"github.com/ledgerseal/auditcore/pkg/payload"
)

// JCS returns the canonical byte encoding of v.
func JCS(v payload.Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return buf.Bytes(), nil
}

// JCSFromAny converts an arbitrary Go value to a payload.Value and
// canonicalizes it in one step.
func JCSFromAny(v any) ([]byte, error) {
	pv, err := payload.From(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return JCS(pv)
}

func encode(buf *bytes.Buffer, v payload.Value) error {
	switch v.Kind() {
	case payload.KindNull:
		buf.WriteString("null")
		return nil
	case payload.KindBool:
		if v.Bool() {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case payload.KindInt:
		buf.WriteString(strconv.FormatInt(v.Int(), 10))
		return nil
	case payload.KindString:
		return encodeString(buf, v.String())
	case payload.KindList:
		buf.WriteByte('[')
		for i, elem := range v.List() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case payload.KindMap:
		m := v.Map()
		keys := make([]string, 0, len(m))
		for k := range m {
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
			if err := encode(buf, m[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		return fmt.Errorf("value has no canonical form")
	}
}

// encodeString NFC-normalizes s then emits it using encoding/json with
// HTML escaping disabled, trimming the trailing newline json.Encoder
// always appends.
func encodeString(buf *bytes.Buffer, s string) error {
	normalized := norm.NFC.String(s)

	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return fmt.Errorf("encode string: %w", err)
	}
	b := bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'})
	buf.Write(b)
	return nil
}
