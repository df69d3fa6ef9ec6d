package cachekey

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Set marks a collection of arguments as order-independent. Two Sets
// containing the same elements in any order produce the same key token.
type Set []any

// Key builds a deterministic cache key from a logical entity name and its
// identifying arguments, in the form "entity:token:token...". Scalar
// arguments are rendered inline with the ":" delimiter escaped, so argument
// boundaries survive arbitrary input strings; composite values (maps,
// structs, slices) are canonicalized and hashed so equal values always
// yield equal tokens regardless of map iteration order.
func Key(entity string, args ...any) string {
	if len(args) == 0 {
		return entity
	}
	var sb strings.Builder
	sb.WriteString(entity)
	for _, arg := range args {
		sb.WriteByte(':')
		sb.WriteString(token(arg))
	}
	return sb.String()
}

// Hash returns the xxhash64 hex digest of the canonical serialization of
// args. Useful for filter/query arguments too large to embed in a key.
func Hash(args ...any) string {
	d := xxhash.New()
	for _, arg := range args {
		d.WriteString(token(arg))
		d.Write([]byte{0})
	}
	return strconv.FormatUint(d.Sum64(), 16)
}

// tokenEscaper keeps ":" unambiguous as the token delimiter. "%" escapes
// too, so an escaped string can never start with a literal "%" — tokens
// with that prefix (nil, hashes) are unspellable by string arguments.
var tokenEscaper = strings.NewReplacer("%", "%25", ":", "%3a")

func token(arg any) string {
	switch v := arg.(type) {
	case nil:
		return "%nil"
	case string:
		return tokenEscaper.Replace(v)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int8, int16, int32, int64:
		return fmt.Sprintf("%d", v)
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case fmt.Stringer:
		return tokenEscaper.Replace(v.String())
	case Set:
		return setToken(v)
	default:
		return hashToken(v)
	}
}

func setToken(s Set) string {
	tokens := make([]string, len(s))
	for i, v := range s {
		tokens[i] = token(v)
	}
	sort.Strings(tokens)
	d := xxhash.New()
	for _, t := range tokens {
		d.WriteString(t)
		d.Write([]byte{0})
	}
	return "%s" + strconv.FormatUint(d.Sum64(), 16)
}

// hashToken canonicalizes a composite value with msgpack (map keys sorted
// so encoding is deterministic) and hashes the bytes. Values msgpack cannot
// encode (funcs, channels) fall back to their Go-syntax representation,
// which is still deterministic within a process.
func hashToken(v any) string {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return "%h" + strconv.FormatUint(xxhash.Sum64String(fmt.Sprintf("%#v", v)), 16)
	}
	return "%h" + strconv.FormatUint(xxhash.Sum64(buf.Bytes()), 16)
}
