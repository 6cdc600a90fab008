package birds

import "fmt"

// FinishStrategy selects how a postcard sighting is collected.
type FinishStrategy string

const (
	// StrategyRecognized collects only sightings the cloud already
	// recognized with high confidence.
	StrategyRecognized FinishStrategy = "recognized"
	// StrategyBestGuess collects the highest-confidence suggestion when it
	// meets the caller's confidence threshold.
	StrategyBestGuess FinishStrategy = "best_guess"
	// StrategyMystery files the sighting as a mystery visitor.
	StrategyMystery FinishStrategy = "mystery"
	// StrategyAuto picks recognized, then best-guess, then mystery,
	// whichever applies first.
	StrategyAuto FinishStrategy = "auto"
)

// ParseFinishStrategy validates a strategy string from a service call.
// An empty string defaults to StrategyRecognized.
func ParseFinishStrategy(s string) (FinishStrategy, error) {
	switch FinishStrategy(s) {
	case "":
		return StrategyRecognized, nil
	case StrategyRecognized, StrategyBestGuess, StrategyMystery, StrategyAuto:
		return FinishStrategy(s), nil
	default:
		return "", fmt.Errorf("unknown finish strategy %q", s)
	}
}
