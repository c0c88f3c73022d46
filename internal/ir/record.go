package ir

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
)

// Key identifies one record within a request context.
type Key struct {
	Type string
	ID   uuid.UUID
}

// String returns "Type/id".
func (k Key) String() string {
	return k.Type + "/" + k.ID.String()
}

// Record is a materialized record.
//
// A Record starts as a shell carrying only its key and is sealed exactly once
// with its property values. Shells can be referenced before they are sealed,
// which is how reference cycles resolve without unbounded recursion.
//
// Thread-safety: Seal must be called once; all accessors are safe for
// concurrent use after Seal returns.
type Record struct {
	key    Key
	props  map[string]Value
	sealed atomic.Bool
}

// NewShell creates an unsealed record for the given key.
func NewShell(key Key) *Record {
	return &Record{key: key}
}

// Key returns the record key.
func (r *Record) Key() Key { return r.key }

// Type returns the record type name.
func (r *Record) Type() string { return r.key.Type }

// ID returns the record identity.
func (r *Record) ID() uuid.UUID { return r.key.ID }

// Sealed reports whether the record has been constructed.
func (r *Record) Sealed() bool { return r.sealed.Load() }

// Seal stores the property values. The map is copied.
// Returns error if the record was already sealed.
func (r *Record) Seal(props map[string]Value) error {
	if r.sealed.Load() {
		return fmt.Errorf("record %s already sealed", r.key)
	}
	copied := make(map[string]Value, len(props))
	for k, v := range props {
		copied[k] = v
	}
	r.props = copied
	r.sealed.Store(true)
	return nil
}

// Get returns one property value.
func (r *Record) Get(name string) (Value, bool) {
	v, ok := r.props[name]
	return v, ok
}

// Properties returns property names in sorted order.
func (r *Record) Properties() []string {
	names := make([]string, 0, len(r.props))
	for name := range r.props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToMap renders a record tree into plain Go values suitable for encoding/json.
//
// References are rendered inline. A reference to a record that is already
// being rendered higher up in the tree is rendered as {"$ref": "Type/id"}, so
// cyclic graphs produce finite output.
func ToMap(r *Record) map[string]any {
	return toMap(r, map[Key]bool{})
}

func toMap(r *Record, path map[Key]bool) map[string]any {
	path[r.key] = true
	defer delete(path, r.key)

	out := map[string]any{
		"$type": r.key.Type,
		"$id":   r.key.ID.String(),
	}
	for name, v := range r.props {
		out[name] = renderValue(v, path)
	}
	return out
}

func renderValue(v Value, path map[Key]bool) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case Bool:
		return bool(val)
	case UUID:
		return val.String()
	case Ref:
		return renderRecord(val.Record, path)
	case Collection:
		items := make([]any, len(val))
		for i, rec := range val {
			items[i] = renderRecord(rec, path)
		}
		return items
	default:
		return fmt.Sprintf("%v", v)
	}
}

func renderRecord(r *Record, path map[Key]bool) any {
	if r == nil {
		return nil
	}
	if path[r.key] {
		return map[string]any{"$ref": r.key.String()}
	}
	return toMap(r, path)
}
