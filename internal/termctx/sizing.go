package termctx

import "fmt"

// SizingMode selects how the context token budget is computed.
type SizingMode string

const (
	// ModeAuto sizes context from a per-model default.
	ModeAuto SizingMode = "auto"
	// ModeFixed uses a configured token count.
	ModeFixed SizingMode = "fixed"
	// ModePercentage uses a fraction of the model's context window.
	ModePercentage SizingMode = "percentage"
)

// SizingModeFromString parses a mode name; unknown names map to ModeAuto.
func SizingModeFromString(s string) SizingMode {
	switch SizingMode(s) {
	case ModeFixed:
		return ModeFixed
	case ModePercentage:
		return ModePercentage
	default:
		return ModeAuto
	}
}

// Policy decides the target context size for the active model. The zero
// value is a valid Auto policy with no bounds.
type Policy struct {
	Mode       SizingMode
	FixedSize  int     // tokens, Fixed mode
	Percentage float64 // [0,1], Percentage mode
	MinLines   int     // informational lower line bound (validated only)
	MaxLines   int     // hard upper line bound applied during truncation
	MinTokens  int     // lower clamp for Fixed/Percentage, active when > 0
	MaxTokens  int     // upper clamp for Fixed/Percentage, active when > 0
}

// Validate rejects inconsistent policies. A policy is accepted or rejected
// as a whole; callers must not apply partially valid updates.
func (p Policy) Validate() error {
	switch p.Mode {
	case ModeAuto, ModeFixed, ModePercentage, "":
	default:
		return fmt.Errorf("unknown sizing mode %q", p.Mode)
	}
	if p.Mode == ModeFixed && p.FixedSize <= 0 {
		return fmt.Errorf("fixed size must be > 0 in fixed mode, got %d", p.FixedSize)
	}
	if p.Percentage < 0 || p.Percentage > 1 {
		return fmt.Errorf("percentage must be within [0,1], got %g", p.Percentage)
	}
	if p.MinLines < 0 {
		return fmt.Errorf("min lines must be >= 0, got %d", p.MinLines)
	}
	if p.MaxLines > 0 && p.MaxLines < p.MinLines {
		return fmt.Errorf("max lines %d is below min lines %d", p.MaxLines, p.MinLines)
	}
	if p.MinTokens < 0 {
		return fmt.Errorf("min tokens must be >= 0, got %d", p.MinTokens)
	}
	if p.MaxTokens > 0 && p.MaxTokens < p.MinTokens {
		return fmt.Errorf("max tokens %d is below min tokens %d", p.MaxTokens, p.MinTokens)
	}
	return nil
}

// TargetSize computes the token budget for the given model. The result
// never exceeds the model's maximum context.
func (p Policy) TargetSize(model string, modelMax int) int {
	if modelMax <= 0 {
		modelMax = ContextWindowFor(model)
	}

	var target int
	switch p.Mode {
	case ModeFixed:
		target = p.clampTokens(p.FixedSize)
	case ModePercentage:
		pct := p.Percentage
		if pct < 0 {
			pct = 0
		}
		if pct > 1 {
			pct = 1
		}
		target = p.clampTokens(int(pct * float64(modelMax)))
	default:
		target = autoTargetFor(model, modelMax)
	}

	if target > modelMax {
		target = modelMax
	}
	if target < 0 {
		target = 0
	}
	return target
}

// clampTokens applies the MinTokens/MaxTokens bounds when they are set.
func (p Policy) clampTokens(v int) int {
	if p.MinTokens > 0 && v < p.MinTokens {
		v = p.MinTokens
	}
	if p.MaxTokens > 0 && v > p.MaxTokens {
		v = p.MaxTokens
	}
	return v
}

// boundByUserMax reports whether the user's MaxTokens bound produced the
// given target. Used to attribute truncation reasons.
func (p Policy) boundByUserMax(target int) bool {
	return p.MaxTokens > 0 && target == p.MaxTokens
}
