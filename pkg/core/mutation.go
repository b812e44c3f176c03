package core

import (
	"context"
	"errors"
	"fmt"
)

// Kind identifies the write a Mutation performs.
type Kind string

const (
	KindRecolor Kind = "recolor"
	KindToggle  Kind = "toggle"
	KindDelete  Kind = "delete"
	KindInsert  Kind = "insert"
)

// Target selects the record a Mutation applies to, either by offset in the
// current ordering or by identity.
type Target struct {
	Offset int
	ID     ID
	byID   bool
}

// AtOffset targets whatever record sits at offset i when the mutation runs.
func AtOffset(i int) Target {
	return Target{Offset: i}
}

// ByID targets the record with the given identity.
func ByID(id ID) Target {
	return Target{ID: id, byID: true}
}

// IsOffset reports whether the target is resolved by offset.
func (t Target) IsOffset() bool {
	return !t.byID
}

func (t Target) String() string {
	if t.byID {
		return fmt.Sprintf("id=%d", t.ID)
	}
	return fmt.Sprintf("offset=%d", t.Offset)
}

// Mutation is a deferred write. Every random choice (target, color, new
// record) is made when the mutation is built; it is executed later inside a
// flush transaction, against a store that may have moved on since.
type Mutation struct {
	Kind   Kind
	Target Target
	// Color is the tag applied by KindRecolor.
	Color int
	// Record is the row stored by KindInsert.
	Record Record
	// Source names the producer that built the mutation. Empty for direct callers.
	Source string
}

// Recolor builds a mutation that sets the color tag of the target record.
func Recolor(t Target, color int) Mutation {
	return Mutation{Kind: KindRecolor, Target: t, Color: color}
}

// Toggle builds a mutation that inverts the read flag of the target record.
func Toggle(t Target) Mutation {
	return Mutation{Kind: KindToggle, Target: t}
}

// Delete builds a mutation that removes the target record.
func Delete(t Target) Mutation {
	return Mutation{Kind: KindDelete, Target: t}
}

// Insert builds a mutation that stores a new record.
func Insert(r Record) Mutation {
	return Mutation{Kind: KindInsert, Record: r}
}

// Outcome reports what executing a mutation did.
type Outcome string

const (
	// OutcomeApplied means the write reached the transaction.
	OutcomeApplied Outcome = "applied"
	// OutcomeMiss means the target no longer resolved and nothing happened.
	OutcomeMiss Outcome = "miss"
)

// Apply executes the mutation inside tx.
// A target that does not resolve is a silent miss, not an error. Any other
// error is returned and should abort the transaction.
func (m Mutation) Apply(ctx context.Context, tx Tx) (Outcome, error) {
	if m.Kind == KindInsert {
		if err := tx.InsertMany(ctx, m.Record); err != nil {
			return "", fmt.Errorf("insert: %w", err)
		}
		return OutcomeApplied, nil
	}

	current, err := m.resolve(ctx, tx)
	if errors.Is(err, ErrNotFound) {
		return OutcomeMiss, nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", m.Target, err)
	}

	switch m.Kind {
	case KindRecolor:
		err = tx.Update(ctx, current.WithColor(m.Color))
	case KindToggle:
		err = tx.Update(ctx, current.Toggled())
	case KindDelete:
		err = tx.Delete(ctx, current.ID)
	default:
		return "", fmt.Errorf("unknown mutation kind %q", m.Kind)
	}

	if errors.Is(err, ErrNotFound) {
		return OutcomeMiss, nil
	}
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", m.Kind, m.Target, err)
	}
	return OutcomeApplied, nil
}

func (m Mutation) resolve(ctx context.Context, tx Tx) (Record, error) {
	if m.Target.IsOffset() {
		if m.Target.Offset < 0 {
			return Record{}, ErrNotFound
		}
		return tx.GetByOffset(ctx, m.Target.Offset)
	}
	return tx.Get(ctx, m.Target.ID)
}
