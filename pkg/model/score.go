package model

import (
	"errors"
	"strconv"
	"strings"
)

// MaxGameScore is the highest score the platform accepts for a minigame.
const MaxGameScore = 990000

var ErrScoreNotNumber = errors.New("score must be a number")
var ErrScoreTooHigh = errors.New("score exceeds the maximum")
var ErrScoreTooLow = errors.New("score is below the unit")
var ErrScoreUnit = errors.New("score is not a multiple of the unit")

// ParseGameScore parses a free-text score and checks it against unit and MaxGameScore.
func ParseGameScore(raw string, unit int) (int, error) {
	score, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, ErrScoreNotNumber
	}
	switch {
	case score > MaxGameScore:
		return 0, ErrScoreTooHigh
	case score < unit:
		return 0, ErrScoreTooLow
	case score%unit != 0:
		return 0, ErrScoreUnit
	}
	return score, nil
}
