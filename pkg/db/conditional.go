package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// ConditionedIncrement describes an increment of a single counter column
// that only commits while its guard still holds at write time. The row lock
// taken by the UPDATE serializes concurrent callers on the same key, so a
// check-then-act race cannot overshoot the guard.
//
// Coupon redemption and quota admission both run through this: redemption
// guards current_uses against max_uses, quota admission guards the window
// counter against the resolved limit.
type ConditionedIncrement struct {
	Table  string
	Column string
	Delta  int64

	// Where selects exactly one counter row.
	Where     string
	WhereArgs []any

	// Guard is the predicate re-checked at write time, e.g.
	// "current_uses + ? <= max_uses".
	Guard     string
	GuardArgs []any
}

// Apply runs the conditioned increment on tx. It reports false when the row
// was missing or the guard no longer held.
func (c ConditionedIncrement) Apply(ctx context.Context, tx *gorm.DB) (bool, error) {
	stmt := fmt.Sprintf(
		`UPDATE %s SET %s = %s + ? WHERE %s AND (%s)`,
		c.Table, c.Column, c.Column, c.Where, c.Guard,
	)

	args := make([]any, 0, 1+len(c.WhereArgs)+len(c.GuardArgs))
	args = append(args, c.Delta)
	args = append(args, c.WhereArgs...)
	args = append(args, c.GuardArgs...)

	result := tx.WithContext(ctx).Exec(stmt, args...)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
