package price

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTarget(t *testing.T) {
	tests := []struct {
		name    string
		current float64
		target  float64
		wantErr bool
		warned  bool
	}{
		{name: "reasonable above", current: 1.00, target: 1.10},
		{name: "reasonable below", current: 1.00, target: 0.80},
		{name: "too close above", current: 1.00, target: 1.005, wantErr: true},
		{name: "too close below", current: 1.00, target: 0.995, wantErr: true},
		{name: "equal to current", current: 1.00, target: 1.00, wantErr: true},
		{name: "far but allowed", current: 1.00, target: 9.00, warned: true},
		{name: "zero target", current: 1.00, target: 0, wantErr: true},
		{name: "negative target", current: 1.00, target: -5, wantErr: true},
		{name: "no current price", current: 0, target: 1.00, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warning, err := ValidateTarget(tt.current, tt.target, 1.0, 500.0)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.warned {
				assert.NotEmpty(t, warning)
			} else {
				assert.Empty(t, warning)
			}
		})
	}
}

func TestCrossedUp(t *testing.T) {
	assert.True(t, CrossedUp(1.00, 1.03, 1.05))
	assert.True(t, CrossedUp(1.00, 1.03, 1.03), "landing exactly on target counts")
	assert.False(t, CrossedUp(1.04, 1.03, 1.05), "already past target, no crossing")
	assert.False(t, CrossedUp(1.00, 1.03, 1.02), "never reached")
	assert.False(t, CrossedUp(1.05, 1.03, 1.00), "wrong direction")
}

func TestCrossedDown(t *testing.T) {
	assert.True(t, CrossedDown(1.00, 0.95, 0.90))
	assert.True(t, CrossedDown(1.00, 0.95, 0.95), "landing exactly on target counts")
	assert.False(t, CrossedDown(0.94, 0.95, 0.90), "already past target, no crossing")
	assert.False(t, CrossedDown(1.00, 0.95, 0.97), "never reached")
	assert.False(t, CrossedDown(0.90, 0.95, 1.00), "wrong direction")
}
