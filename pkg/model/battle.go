package model

const (
	// PointsPerWeight is awarded per unit of question weight on a correct mark.
	PointsPerWeight = 100

	// CrasherScore is the score the crasher variant records on start.
	CrasherScore = 1000000000

	// DefaultRoundSize is the number of questions between rank refreshes.
	DefaultRoundSize = 5
)

// Question is one quiz battle question. Only its weight matters to the relay.
type Question struct {
	ID     int `json:"id"`
	Weight int `json:"weight"`
}

// QuizBattleSession is the live state of one relay. It is owned by the relay
// for its lifetime and never persisted.
type QuizBattleSession struct {
	Code        int
	DisplayName string
	Crasher     bool

	Correct  int
	Wrong    int
	Score    int64
	ClassAvg int64

	RoundSize int
	Remaining int // questions left until the next rank refresh

	Questions []Question
	index     int
}

// NewQuizBattleSession creates a session for battle code with the given display name.
func NewQuizBattleSession(code int, name string, crasher bool) *QuizBattleSession {
	return &QuizBattleSession{
		Code:        code,
		DisplayName: name,
		Crasher:     crasher,
		RoundSize:   DefaultRoundSize,
		Remaining:   DefaultRoundSize,
	}
}

// Start loads the question list and round size announced by the server.
func (b *QuizBattleSession) Start(questions []Question, roundSize int, classAvg int64) {
	b.Questions = questions
	b.index = 0
	if roundSize > 0 {
		b.RoundSize = roundSize
	}
	b.Remaining = b.RoundSize
	b.ClassAvg = classAvg
}

// Current returns the question being answered. ok is false when no questions are loaded.
func (b *QuizBattleSession) Current() (q Question, ok bool) {
	if len(b.Questions) == 0 {
		return Question{}, false
	}
	return b.Questions[b.index], true
}

// Total returns the number of marked questions.
func (b *QuizBattleSession) Total() int {
	return b.Correct + b.Wrong
}

// Mark applies a correct or wrong mark to the current question and advances.
// The question list wraps around. roundDone is true when this mark completed a round.
func (b *QuizBattleSession) Mark(correct bool) (next Question, roundDone bool) {
	q, _ := b.Current()
	if correct {
		b.Correct++
		if q.Weight > 0 {
			b.Score += int64(PointsPerWeight * q.Weight)
		}
	} else {
		b.Wrong++
	}
	if len(b.Questions) > 0 {
		b.index = (b.index + 1) % len(b.Questions)
	}
	b.Remaining--
	if b.Remaining <= 0 {
		b.Remaining = b.RoundSize
		roundDone = true
	}
	next, _ = b.Current()
	return next, roundDone
}
