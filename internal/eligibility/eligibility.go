// Package eligibility decides whether a creator may launch a content token.
package eligibility

import (
	"fmt"

	"github.com/oxx-labs/oxx-backend/pkg/chain"
)

const DefaultMinFollowers int64 = 10000

// Policy holds the follower threshold required to create a token.
type Policy struct {
	MinFollowers int64
}

func NewPolicy(minFollowers int64) Policy {
	if minFollowers < 0 {
		minFollowers = 0
	}
	return Policy{MinFollowers: minFollowers}
}

// Check returns a chain.ErrValidation error when followers is below the threshold.
func (p Policy) Check(followers int64) error {
	if followers < p.MinFollowers {
		return chain.NewValidationError("followers",
			fmt.Sprintf("at least %d followers are required to create a token, you have %d", p.MinFollowers, followers))
	}
	return nil
}
