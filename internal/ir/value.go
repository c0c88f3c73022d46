package ir

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind is the storage type of a column.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindUUID   Kind = "uuid"
)

// ValidKinds defines allowed column kinds.
var ValidKinds = map[Kind]bool{
	KindString: true,
	KindInt:    true,
	KindFloat:  true,
	KindBool:   true,
	KindUUID:   true,
}

// ParseKind converts a kind name to a Kind.
// Returns error if the name is not one of the valid kinds.
func ParseKind(name string) (Kind, error) {
	k := Kind(name)
	if !ValidKinds[k] {
		return "", fmt.Errorf("unknown column kind %q: must be string, int, float, bool, or uuid", name)
	}
	return k, nil
}

// Value is a sealed interface representing a property or column value.
// Only Null, String, Int, Float, Bool, UUID, Ref and Collection implement this.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null represents an absent value (SQL NULL, or a nullable reference with no target).
type Null struct{}

func (Null) value() {}

// String represents a text value.
type String string

func (String) value() {}

// Int represents an integer value. Always int64.
type Int int64

func (Int) value() {}

// Float represents a floating point value.
type Float float64

func (Float) value() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) value() {}

// UUID represents an identity or foreign key value.
type UUID uuid.UUID

func (UUID) value() {}

// String returns the hyphenated form of the UUID.
func (u UUID) String() string {
	return uuid.UUID(u).String()
}

// Ref is a single reference to another record.
// The record may still be a shell while its owner is being materialized
// (reference cycles); it is sealed by the time the request completes.
type Ref struct {
	Record *Record
}

func (Ref) value() {}

// Collection is an ordered set of referenced records.
// A resolved collection is never nil, only empty.
type Collection []*Record

func (Collection) value() {}

// IsNull reports whether v is absent. A nil interface counts as absent.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// KindOf returns the column kind of a scalar value.
// Returns false for Null, Ref and Collection.
func KindOf(v Value) (Kind, bool) {
	switch v.(type) {
	case String:
		return KindString, true
	case Int:
		return KindInt, true
	case Float:
		return KindFloat, true
	case Bool:
		return KindBool, true
	case UUID:
		return KindUUID, true
	default:
		return "", false
	}
}

// Coerce converts a native Go value to a Value of the given kind.
// nil becomes Null for every kind. Used to decode driver values, YAML
// fixtures and CLI arguments.
func Coerce(kind Kind, v any) (Value, error) {
	if v == nil {
		return Null{}, nil
	}
	if val, ok := v.(Value); ok {
		return val, nil
	}

	switch kind {
	case KindString:
		switch s := v.(type) {
		case string:
			return String(s), nil
		case []byte:
			return String(s), nil
		}
	case KindInt:
		switch n := v.(type) {
		case int:
			return Int(n), nil
		case int32:
			return Int(n), nil
		case int64:
			return Int(n), nil
		}
	case KindFloat:
		switch n := v.(type) {
		case float64:
			return Float(n), nil
		case float32:
			return Float(n), nil
		case int:
			return Float(n), nil
		case int64:
			return Float(n), nil
		}
	case KindBool:
		switch b := v.(type) {
		case bool:
			return Bool(b), nil
		case int64:
			// SQLite stores booleans as 0/1
			return Bool(b != 0), nil
		case int:
			return Bool(b != 0), nil
		}
	case KindUUID:
		switch s := v.(type) {
		case string:
			id, err := uuid.Parse(s)
			if err != nil {
				return nil, fmt.Errorf("invalid uuid %q: %w", s, err)
			}
			return UUID(id), nil
		case []byte:
			id, err := uuid.ParseBytes(s)
			if err != nil {
				return nil, fmt.Errorf("invalid uuid %q: %w", string(s), err)
			}
			return UUID(id), nil
		case uuid.UUID:
			return UUID(s), nil
		}
	default:
		return nil, fmt.Errorf("unknown column kind %q", kind)
	}

	return nil, fmt.Errorf("cannot convert %T to %s", v, kind)
}

// Native converts a scalar Value to the Go type used as a SQL parameter.
// UUIDs become their hyphenated string form.
func Native(v Value) (any, error) {
	switch val := v.(type) {
	case nil, Null:
		return nil, nil
	case String:
		return string(val), nil
	case Int:
		return int64(val), nil
	case Float:
		return float64(val), nil
	case Bool:
		return bool(val), nil
	case UUID:
		return val.String(), nil
	case Ref:
		return nil, fmt.Errorf("Ref cannot be used as SQL parameter directly")
	case Collection:
		return nil, fmt.Errorf("Collection cannot be used as SQL parameter directly")
	default:
		return nil, fmt.Errorf("unsupported Value type for SQL parameter: %T", v)
	}
}
