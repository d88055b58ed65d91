package budget

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/erg0nix/kontekst-governor/internal/core"
)

var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrInvalidInput         = errors.New("invalid input")
)

// Thresholds holds the lower bound ratio of each non-green level.
// A ratio equal to a bound belongs to the higher level.
type Thresholds struct {
	Yellow   float64 `toml:"yellow"`
	Orange   float64 `toml:"orange"`
	Red      float64 `toml:"red"`
	Critical float64 `toml:"critical"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Yellow:   0.60,
		Orange:   0.75,
		Red:      0.85,
		Critical: 0.95,
	}
}

// Validate requires strictly increasing ratios within (0, 1].
func (t Thresholds) Validate() error {
	bounds := []struct {
		name  string
		value float64
	}{
		{"yellow", t.Yellow},
		{"orange", t.Orange},
		{"red", t.Red},
		{"critical", t.Critical},
	}

	previous := 0.0
	for _, b := range bounds {
		if b.value <= 0 || b.value > 1 {
			return fmt.Errorf("%w: %s threshold %v outside (0, 1]", ErrInvalidConfiguration, b.name, b.value)
		}
		if b.value <= previous {
			return fmt.Errorf("%w: %s threshold %v must exceed %v", ErrInvalidConfiguration, b.name, b.value, previous)
		}
		previous = b.value
	}

	return nil
}

// LevelFor classifies used/total. It is pure and assumes total > 0.
func (t Thresholds) LevelFor(used, total int64) core.Level {
	switch {
	case reaches(used, total, t.Critical):
		return core.LevelCritical
	case reaches(used, total, t.Red):
		return core.LevelRed
	case reaches(used, total, t.Orange):
		return core.LevelOrange
	case reaches(used, total, t.Yellow):
		return core.LevelYellow
	default:
		return core.LevelGreen
	}
}

// reaches reports used/total >= bound in exact integer arithmetic. The bound is read as
// the shortest decimal that round-trips, so 0.6 means 3/5.
func reaches(used, total int64, bound float64) bool {
	r, ok := new(big.Rat).SetString(strconv.FormatFloat(bound, 'g', -1, 64))
	if !ok {
		return float64(used)/float64(total) >= bound
	}

	lhs := new(big.Int).Mul(big.NewInt(used), r.Denom())
	rhs := new(big.Int).Mul(r.Num(), big.NewInt(total))
	return lhs.Cmp(rhs) >= 0
}

// Floor returns the lowest ratio that maps to level.
func (t Thresholds) Floor(level core.Level) float64 {
	switch level {
	case core.LevelYellow:
		return t.Yellow
	case core.LevelOrange:
		return t.Orange
	case core.LevelRed:
		return t.Red
	case core.LevelCritical:
		return t.Critical
	default:
		return 0
	}
}
