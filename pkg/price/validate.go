package price

import (
	"fmt"
	"math"
)

// ValidateTarget checks a requested alert target against the current price.
// Targets within tooClosePct of current are rejected (they would fire on
// noise). Targets beyond tooFarPct produce a non-fatal advisory string; the
// alert is still accepted.
func ValidateTarget(current, target, tooClosePct, tooFarPct float64) (warning string, err error) {
	if target <= 0 {
		return "", fmt.Errorf("target price must be positive, got %g", target)
	}
	if current <= 0 {
		return "", fmt.Errorf("no current price available to validate against")
	}

	distPct := math.Abs(target-current) / current * 100
	if distPct < tooClosePct {
		return "", fmt.Errorf("target $%g is within %.1f%% of the current price $%g, pick a wider margin", target, tooClosePct, current)
	}
	if tooFarPct > 0 && distPct > tooFarPct {
		warning = fmt.Sprintf("target is %.0f%% away from the current price, it may never trigger", distPct)
	}
	return warning, nil
}

// CrossedUp reports an upward crossing: previous strictly below target,
// current at or above it.
func CrossedUp(previous, target, current float64) bool {
	return previous < target && target <= current
}

// CrossedDown reports a downward crossing: previous strictly above target,
// current at or below it.
func CrossedDown(previous, target, current float64) bool {
	return previous > target && target >= current
}
