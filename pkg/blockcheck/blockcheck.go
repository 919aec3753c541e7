// Package blockcheck answers which of a set of users are blocked, combining
// several block stores (local wiki, global) behind one capability interface.
//
// The engine itself wires only IndefiniteComposite (case auto-close keys off
// blocks with no expiry); the general Composite is the capability handed to
// signal evaluators, which consult it before proposing case associations for
// users who are already blocked.
package blockcheck

import "context"

// Check reports which of the given users are blocked according to one
// backing store. The result is always a subset of the input.
type Check interface {
	BlockedUserIDs(ctx context.Context, userIDs []int64) ([]int64, error)
}

// IndefiniteCheck reports which of the given users carry a block with no
// expiry. Indefinite blocks are the trigger for case auto-close, so this is
// a distinct capability from the general Check.
type IndefiniteCheck interface {
	IndefinitelyBlockedUserIDs(ctx context.Context, userIDs []int64) ([]int64, error)
}

// Composite combines several checks. A user counts as blocked if any single
// check reports them blocked; each subsequent check is only queried with the
// ids not yet confirmed blocked. With zero checks nobody is blocked.
type Composite struct {
	checks []Check
}

// NewComposite creates a Composite over the given checks, queried in order.
func NewComposite(checks ...Check) *Composite {
	return &Composite{checks: checks}
}

// UnblockedUserIDs returns the subset of userIDs that no check reports as
// blocked, preserving input order.
func (c *Composite) UnblockedUserIDs(ctx context.Context, userIDs []int64) ([]int64, error) {
	remaining := append([]int64(nil), userIDs...)
	for _, check := range c.checks {
		if len(remaining) == 0 {
			break
		}
		blocked, err := check.BlockedUserIDs(ctx, remaining)
		if err != nil {
			return nil, err
		}
		remaining = subtract(remaining, blocked)
	}
	return remaining, nil
}

// BlockedUserIDs returns the subset of userIDs blocked by at least one check.
func (c *Composite) BlockedUserIDs(ctx context.Context, userIDs []int64) ([]int64, error) {
	unblocked, err := c.UnblockedUserIDs(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	return subtract(userIDs, unblocked), nil
}

// IndefiniteComposite is the Composite pattern over indefinite-block checks.
type IndefiniteComposite struct {
	checks []IndefiniteCheck
}

// NewIndefiniteComposite creates an IndefiniteComposite over the given
// checks, queried in order.
func NewIndefiniteComposite(checks ...IndefiniteCheck) *IndefiniteComposite {
	return &IndefiniteComposite{checks: checks}
}

// UnblockedUserIDs returns the subset of userIDs not indefinitely blocked by
// any check, preserving input order.
func (c *IndefiniteComposite) UnblockedUserIDs(ctx context.Context, userIDs []int64) ([]int64, error) {
	remaining := append([]int64(nil), userIDs...)
	for _, check := range c.checks {
		if len(remaining) == 0 {
			break
		}
		blocked, err := check.IndefinitelyBlockedUserIDs(ctx, remaining)
		if err != nil {
			return nil, err
		}
		remaining = subtract(remaining, blocked)
	}
	return remaining, nil
}

// IndefinitelyBlockedUserIDs returns the subset of userIDs indefinitely
// blocked by at least one check.
func (c *IndefiniteComposite) IndefinitelyBlockedUserIDs(ctx context.Context, userIDs []int64) ([]int64, error) {
	unblocked, err := c.UnblockedUserIDs(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	return subtract(userIDs, unblocked), nil
}

// subtract returns ids minus removed, preserving the order of ids.
func subtract(ids, removed []int64) []int64 {
	if len(removed) == 0 {
		return ids
	}
	drop := make(map[int64]struct{}, len(removed))
	for _, id := range removed {
		drop[id] = struct{}{}
	}
	kept := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := drop[id]; !ok {
			kept = append(kept, id)
		}
	}
	return kept
}
