package resolve

import (
	"errors"
	"fmt"

	"github.com/cadseer/naming/ident"
	"github.com/cadseer/naming/pick"
)

// ErrUnresolvable matches every *Unresolvable with errors.Is.
var ErrUnresolvable = errors.New("resolve: reference unresolvable")

// Reason says why a reference could not be resolved.
type Reason int

const (
	// FeatureGone: the origin or target feature was removed.
	FeatureGone Reason = iota + 1

	// NotEvaluated: the target feature has no result yet.
	NotEvaluated

	// NothingResolved: every selected identifier was dropped.
	NothingResolved

	// Rejected: the resolution policy judged the result fatal.
	Rejected
)

func (r Reason) String() string {
	switch r {
	case FeatureGone:
		return "feature gone"
	case NotEvaluated:
		return "feature not evaluated"
	case NothingResolved:
		return "nothing resolved"
	case Rejected:
		return "rejected by policy"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Unresolvable is returned when a reference cannot be mapped onto the
// current model.
type Unresolvable struct {
	Reason    Reason
	Feature   ident.FeatureID
	Reference *pick.Reference
}

func (e *Unresolvable) Error() string {
	return fmt.Sprintf("resolve: reference %s: %s (%s)", e.Reference, e.Reason, e.Feature.Short())
}

// Is reports whether target is ErrUnresolvable or an *Unresolvable with the
// same reason.
func (e *Unresolvable) Is(target error) bool {
	if target == ErrUnresolvable {
		return true
	}
	var other *Unresolvable
	if errors.As(target, &other) {
		return other.Reason == e.Reason
	}
	return false
}

// ReasonOf returns the reason of an *Unresolvable in err's chain, or zero.
func ReasonOf(err error) Reason {
	var u *Unresolvable
	if errors.As(err, &u) {
		return u.Reason
	}
	return 0
}
