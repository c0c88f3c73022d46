package schema

import (
	"fmt"

	"github.com/roach88/strata/internal/ir"
)

// Constructor is the default entity construction routine.
//
// It validates a property payload against the record type's bindings and
// seals the record. Thread-safety: Constructor is stateless and safe for
// concurrent use.
type Constructor struct{}

// Construct validates payload and seals into with it.
//
// Fails with *ConstructionError if a bound property is missing, an unbound
// property is present, a non-nullable property is Null, or a value's shape
// disagrees with its binding.
func (Constructor) Construct(rt *RecordType, into *ir.Record, payload map[string]ir.Value) error {
	if into.Type() != rt.Name {
		return &ConstructionError{Type: rt.Name, Message: fmt.Sprintf("record shell has type %q", into.Type())}
	}

	for _, b := range rt.Bindings {
		v, ok := payload[b.Property()]
		if !ok {
			return &ConstructionError{Type: rt.Name, Property: b.Property(), Message: "missing property"}
		}
		if err := checkShape(rt, b, v); err != nil {
			return &ConstructionError{Type: rt.Name, Property: b.Property(), Message: err.Error()}
		}
	}

	if len(payload) != len(rt.Bindings) {
		for name := range payload {
			if _, ok := rt.Binding(name); !ok {
				return &ConstructionError{Type: rt.Name, Property: name, Message: "unknown property"}
			}
		}
	}

	return into.Seal(payload)
}

// checkShape validates one value against its binding.
func checkShape(rt *RecordType, b Binding, v ir.Value) error {
	switch bind := b.(type) {
	case ColumnBinding:
		if ir.IsNull(v) {
			if !bind.Nullable {
				return fmt.Errorf("property is not nullable")
			}
			return nil
		}
		col, _ := rt.Table.Column(bind.Column)
		kind, ok := ir.KindOf(v)
		if !ok || kind != col.Kind {
			return fmt.Errorf("expected %s value, got %T", col.Kind, v)
		}
		return nil

	case SingleRefBinding:
		return checkRef(v, bind.Target, false)

	case NullableRefBinding:
		return checkRef(v, bind.Target, true)

	case CollectionBinding:
		items, ok := v.(ir.Collection)
		if !ok {
			return fmt.Errorf("expected collection, got %T", v)
		}
		if items == nil {
			return fmt.Errorf("collection must not be nil")
		}
		for i, rec := range items {
			if rec == nil || rec.Type() != bind.Target {
				return fmt.Errorf("collection[%d] is not a %s", i, bind.Target)
			}
		}
		return nil

	case AggregateBinding:
		if ir.IsNull(v) {
			if !bind.Nullable {
				return fmt.Errorf("aggregate is not nullable")
			}
			return nil
		}
		if _, ok := v.(ir.Float); !ok {
			return fmt.Errorf("expected float aggregate, got %T", v)
		}
		return nil

	default:
		return fmt.Errorf("unsupported binding type %T", b)
	}
}

func checkRef(v ir.Value, target string, nullable bool) error {
	if ir.IsNull(v) {
		if !nullable {
			return fmt.Errorf("reference is not nullable")
		}
		return nil
	}
	ref, ok := v.(ir.Ref)
	if !ok {
		return fmt.Errorf("expected reference, got %T", v)
	}
	if ref.Record == nil || ref.Record.Type() != target {
		return fmt.Errorf("expected reference to %s", target)
	}
	return nil
}
