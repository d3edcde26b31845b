package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Reserved payload keys. Keys starting with ReservedPrefix are owned by the
// engine and never persisted as attributes.
const (
	ReservedPrefix = "__"
	IdentifierKey  = "__identifier"
	VersionKey     = "__version"
	CreatedKey     = "__createdTimestamp"
	UpdatedKey     = "__updatedTimestamp"
	EntityTypeKey  = "__entityType"
)

// IsReservedKey reports whether key is engine-owned.
func IsReservedKey(key string) bool {
	return strings.HasPrefix(key, ReservedPrefix)
}

// Payload is an insertion-ordered field -> value mapping.
// The zero value is not usable; use NewPayload.
type Payload struct {
	keys   []string
	values map[string]Value
}

func (*Payload) value() {}

// NewPayload returns an empty payload.
func NewPayload() *Payload {
	return &Payload{values: make(map[string]Value)}
}

// PayloadOf builds a payload from alternating key/value arguments.
// Used mostly by tests.
func PayloadOf(kv ...any) *Payload {
	if len(kv)%2 != 0 {
		panic("ir: PayloadOf needs key/value pairs")
	}
	p := NewPayload()
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("ir: PayloadOf key %d is %T", i, kv[i]))
		}
		v, err := FromAny(kv[i+1])
		if err != nil {
			panic(fmt.Sprintf("ir: PayloadOf %s: %v", key, err))
		}
		p.Set(key, v)
	}
	return p
}

// Set stores v under key, keeping the original position of existing keys.
func (p *Payload) Set(key string, v Value) {
	if v == nil {
		v = Null{}
	}
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = v
}

// Get returns the value under key. Absent keys return (Null{}, false).
func (p *Payload) Get(key string) (Value, bool) {
	if p == nil {
		return Null{}, false
	}
	v, ok := p.values[key]
	if !ok {
		return Null{}, false
	}
	return v, true
}

// Has reports whether key is present, even if its value is null.
func (p *Payload) Has(key string) bool {
	if p == nil {
		return false
	}
	_, ok := p.values[key]
	return ok
}

// Delete removes key.
func (p *Payload) Delete(key string) {
	if _, ok := p.values[key]; !ok {
		return
	}
	delete(p.values, key)
	p.keys = slices.DeleteFunc(p.keys, func(k string) bool { return k == key })
}

// Keys returns the keys in insertion order.
func (p *Payload) Keys() []string {
	if p == nil {
		return nil
	}
	return slices.Clone(p.keys)
}

// Len returns the number of keys.
func (p *Payload) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Identifier returns the __identifier value when it is a non-empty string.
func (p *Payload) Identifier() (string, bool) {
	v, ok := p.Get(IdentifierKey)
	if !ok {
		return "", false
	}
	s, ok := v.(String)
	if !ok || s == "" {
		return "", false
	}
	return string(s), true
}

// Clone copies the payload. Nested payloads and collections are copied too.
func (p *Payload) Clone() *Payload {
	if p == nil {
		return nil
	}
	out := &Payload{keys: slices.Clone(p.keys), values: make(map[string]Value, len(p.values))}
	for k, v := range p.values {
		out.values[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v Value) Value {
	switch x := v.(type) {
	case *Payload:
		return x.Clone()
	case Collection:
		c := make(Collection, len(x))
		for i, e := range x {
			c[i] = cloneValue(e)
		}
		return c
	}
	return v
}

// WithoutReserved returns a copy with all engine-owned keys removed.
func (p *Payload) WithoutReserved() *Payload {
	out := NewPayload()
	for _, k := range p.Keys() {
		if IsReservedKey(k) {
			continue
		}
		v, _ := p.Get(k)
		out.Set(k, v)
	}
	return out
}

// Equal compares key sets and values, ignoring order.
func (p *Payload) Equal(o *Payload) bool {
	if p.Len() != o.Len() {
		return false
	}
	for _, k := range p.keys {
		ov, ok := o.Get(k)
		if !ok {
			return false
		}
		if !Equal(p.values[k], ov) {
			return false
		}
	}
	return true
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings uses UTF-8 which produces a different order.
func (p *Payload) SortedKeys() []string {
	keys := p.Keys()
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	return len(a16) - len(b16)
}

// MarshalJSON renders the payload in insertion order.
func (p *Payload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(ToJSON(p.values[k]))
		if err != nil {
			return nil, fmt.Errorf("marshal %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object preserving key order. Numbers become
// Integer when integral, Decimal otherwise; nested objects become payloads.
func (p *Payload) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeOrdered(dec)
	if err != nil {
		return err
	}
	out, ok := v.(*Payload)
	if !ok {
		return fmt.Errorf("payload must be a JSON object, got %s", KindName(v))
	}
	*p = *out
	return nil
}

// ParsePayload decodes a JSON object into a payload.
func ParsePayload(data []byte) (*Payload, error) {
	p := NewPayload()
	if err := p.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return p, nil
}

func decodeOrdered(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			p := NewPayload()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("object key is %T", kt)
				}
				v, err := decodeOrdered(dec)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", key, err)
				}
				p.Set(key, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return p, nil
		case '[':
			var c Collection
			for dec.More() {
				v, err := decodeOrdered(dec)
				if err != nil {
					return nil, fmt.Errorf("[%d]: %w", len(c), err)
				}
				c = append(c, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			if c == nil {
				c = Collection{}
			}
			return c, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	case nil:
		return Null{}, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return numberValue(string(t))
	}
	return nil, fmt.Errorf("unexpected token %T", tok)
}

func numberValue(s string) (Value, error) {
	if !strings.ContainsAny(s, ".eE") {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Integer(n), nil
		}
	}
	d, _, err := parseDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	return d, nil
}
