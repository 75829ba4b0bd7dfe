package game

import (
	"fmt"
	"strings"
)

// Move is a cleartext rock-paper-scissors value.
type Move uint8

const (
	Rock Move = iota
	Paper
	Scissors
)

// Valid reports whether m is inside {Rock, Paper, Scissors}.
func (m Move) Valid() bool { return m <= Scissors }

func (m Move) String() string {
	switch m {
	case Rock:
		return "rock"
	case Paper:
		return "paper"
	case Scissors:
		return "scissors"
	default:
		return fmt.Sprintf("move(%d)", uint8(m))
	}
}

// ParseMove accepts a name ("rock") or a digit ("0").
func ParseMove(s string) (Move, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rock", "0":
		return Rock, nil
	case "paper", "1":
		return Paper, nil
	case "scissors", "2":
		return Scissors, nil
	}
	return 0, fmt.Errorf("invalid move %q", s)
}

// Mode decides whether slot 1 is a human or the computer.
type Mode uint8

const (
	MultiPlayer Mode = iota
	SinglePlayer
)

func (m Mode) String() string {
	if m == SinglePlayer {
		return "single_player"
	}
	return "multi_player"
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// DecryptionState tracks the oracle round trip.
type DecryptionState uint8

const (
	NotRequested DecryptionState = iota
	Requested
	Completed
)

func (s DecryptionState) String() string {
	switch s {
	case Requested:
		return "requested"
	case Completed:
		return "completed"
	default:
		return "not_requested"
	}
}

func (s DecryptionState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Result is the outcome of a round.
type Result uint8

const (
	ResultUndetermined Result = iota
	ResultDraw
	ResultPlayer1Wins
	ResultPlayer2Wins
	// ResultUndecidable is stored when a clear move falls outside the
	// valid domain.
	ResultUndecidable
)

func (r Result) String() string {
	switch r {
	case ResultDraw:
		return "draw"
	case ResultPlayer1Wins:
		return "player1_wins"
	case ResultPlayer2Wins:
		return "player2_wins"
	case ResultUndecidable:
		return "undecidable"
	default:
		return "undetermined"
	}
}

func (r Result) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// RandomPolicy selects how the computer move is drawn.
type RandomPolicy string

const (
	// PolicyLegacy keeps the raw 2-bit draw, so 3 can come out.
	PolicyLegacy RandomPolicy = "legacy"
	// PolicyResample redraws until the value is a valid move.
	PolicyResample RandomPolicy = "resample"
)

func ParseRandomPolicy(s string) (RandomPolicy, error) {
	switch RandomPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyResample:
		return PolicyResample, nil
	case PolicyLegacy:
		return PolicyLegacy, nil
	}
	return "", fmt.Errorf("unknown random policy %q", s)
}
