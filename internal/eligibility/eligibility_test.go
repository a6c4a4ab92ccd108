package eligibility

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oxx-labs/oxx-backend/pkg/chain"
)

func TestPolicy_Check(t *testing.T) {
	tests := []struct {
		name      string
		min       int64
		followers int64
		wantErr   bool
	}{
		{name: "default threshold met", min: DefaultMinFollowers, followers: 10000},
		{name: "default threshold missed", min: DefaultMinFollowers, followers: 9999, wantErr: true},
		{name: "permissive threshold", min: 1, followers: 1},
		{name: "zero followers with threshold one", min: 1, followers: 0, wantErr: true},
		{name: "negative threshold clamps to zero", min: -5, followers: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewPolicy(tt.min).Check(tt.followers)
			if tt.wantErr {
				assert.ErrorIs(t, err, chain.ErrValidation)
				assert.Contains(t, err.Error(), "followers are required")
				return
			}
			assert.NoError(t, err)
		})
	}
}
