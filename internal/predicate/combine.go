package predicate

import "github.com/dmitriyb/stagegate/internal/gate"

// Primary allows only runs on the trunk branch.
func Primary() gate.BranchPredicate {
	return func(ec gate.ExecutionContext) bool {
		return ec.Primary
	}
}

// All requires every non-nil predicate. It returns nil when there are none,
// which leaves the stage unrestricted.
func All(preds ...gate.BranchPredicate) gate.BranchPredicate {
	preds = compact(preds)
	switch len(preds) {
	case 0:
		return nil
	case 1:
		return preds[0]
	}
	return func(ec gate.ExecutionContext) bool {
		for _, p := range preds {
			if !p(ec) {
				return false
			}
		}
		return true
	}
}

// Any requires at least one non-nil predicate. It returns nil when there are
// none.
func Any(preds ...gate.BranchPredicate) gate.BranchPredicate {
	preds = compact(preds)
	switch len(preds) {
	case 0:
		return nil
	case 1:
		return preds[0]
	}
	return func(ec gate.ExecutionContext) bool {
		for _, p := range preds {
			if p(ec) {
				return true
			}
		}
		return false
	}
}

// Not inverts p. Not(nil) denies every context.
func Not(p gate.BranchPredicate) gate.BranchPredicate {
	return func(ec gate.ExecutionContext) bool {
		return p != nil && !p(ec)
	}
}

func compact(preds []gate.BranchPredicate) []gate.BranchPredicate {
	out := make([]gate.BranchPredicate, 0, len(preds))
	for _, p := range preds {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}
