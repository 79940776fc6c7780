package interaction

import "fmt"

// ChangeKind classifies a projection mutation.
type ChangeKind int

const (
	HostAdded ChangeKind = iota + 1
	HostRemoved
	MemberAdded
	MemberRemoved
	FieldChanged
)

func (k ChangeKind) String() string {
	switch k {
	case HostAdded:
		return "host_added"
	case HostRemoved:
		return "host_removed"
	case MemberAdded:
		return "member_added"
	case MemberRemoved:
		return "member_removed"
	case FieldChanged:
		return "field_changed"
	default:
		return fmt.Sprintf("change(%d)", int(k))
	}
}

// Change is one observable mutation of the projection. Member is zero for
// changes that concern the host record itself. Prev and Next are only set
// for FieldChanged and hold the typed field values (bool for derived flags).
type Change struct {
	Kind   ChangeKind
	Host   ID
	Member ID
	Field  Field
	Prev   any
	Next   any
}

// Target returns the id of the record the change is about.
func (c Change) Target() ID {
	if c.Member != 0 {
		return c.Member
	}
	return c.Host
}

func (c Change) String() string {
	if c.Kind == FieldChanged {
		return fmt.Sprintf("%s %d/%d %s: %v -> %v", c.Kind, c.Host, c.Member, c.Field, c.Prev, c.Next)
	}
	return fmt.Sprintf("%s %d/%d", c.Kind, c.Host, c.Member)
}

// Observer receives projection changes synchronously, on the goroutine that
// performed the mutation.
type Observer interface {
	Observe(Change)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Change)

// Observe implements Observer.
func (f ObserverFunc) Observe(c Change) { f(c) }
