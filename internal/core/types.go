package core

import (
	"fmt"
	"strings"
)

// Level classifies how much of the session budget has been consumed.
type Level int

const (
	LevelGreen Level = iota
	LevelYellow
	LevelOrange
	LevelRed
	LevelCritical
)

var levelNames = [...]string{"green", "yellow", "orange", "red", "critical"}

// Levels lists every level in escalation order.
var Levels = []Level{LevelGreen, LevelYellow, LevelOrange, LevelRed, LevelCritical}

func (l Level) String() string {
	if l < LevelGreen || l > LevelCritical {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range levelNames {
		if n == name {
			return Level(i), nil
		}
	}
	return LevelGreen, fmt.Errorf("unknown level %q", s)
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
