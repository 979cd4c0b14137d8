package model

// SetType is the content type of a study set on the external platform.
type SetType int

const (
	SetTypeUnknown SetType = iota
	SetTypeWord
	SetTypeTerm
	SetTypeSentence
	SetTypeListening
	SetTypeDrill
)

func (t SetType) String() string {
	switch t {
	case SetTypeWord:
		return "word"
	case SetTypeTerm:
		return "term"
	case SetTypeSentence:
		return "sentence"
	case SetTypeListening:
		return "listening"
	case SetTypeDrill:
		return "drill"
	default:
		return "unknown"
	}
}

// ParseSetType converts the platform's type name to a SetType.
func ParseSetType(s string) SetType {
	switch s {
	case "word":
		return SetTypeWord
	case "term":
		return SetTypeTerm
	case "sentence":
		return SetTypeSentence
	case "listening":
		return SetTypeListening
	case "drill":
		return SetTypeDrill
	default:
		return SetTypeUnknown
	}
}

// Studiable reports whether study actions and the matching minigame support this type.
func (t SetType) Studiable() bool {
	return t == SetTypeWord || t == SetTypeSentence
}

// LearningKind selects one of the three study modes.
type LearningKind int

const (
	LearnMemorize LearningKind = iota + 1
	LearnRecall
	LearnSpell
)

func (k LearningKind) String() string {
	switch k {
	case LearnMemorize:
		return "memorize"
	case LearnRecall:
		return "recall"
	case LearnSpell:
		return "spell"
	default:
		return "unknown"
	}
}

// Activity is a scored minigame.
type Activity int

const (
	ActivityMatch Activity = iota + 1
	ActivityCrash
)

func (a Activity) String() string {
	switch a {
	case ActivityMatch:
		return "match"
	case ActivityCrash:
		return "crash"
	default:
		return "unknown"
	}
}

// ScoreUnit returns the granularity scores for this activity must respect.
func (a Activity) ScoreUnit() int {
	if a == ActivityCrash {
		return 10
	}
	return 100
}

// Named is an id/name pair returned by listing calls.
type Named struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Account is the authenticated external account.
type Account struct {
	Name string `json:"name"`
}

// Class is the linked class on the external platform.
type Class struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Set is the linked study set.
type Set struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Type      SetType `json:"type"`
	CardCount int     `json:"card_count"`
}

// Totals is the account's progress on the linked set.
type Totals struct {
	Memorize int   `json:"memorize"`
	Recall   int   `json:"recall"`
	Spell    int   `json:"spell"`
	Test     []int `json:"test"`
}

// AccountState is the in-memory view of a user's external account.
// It is re-derived on startup and never persisted.
type AccountState struct {
	LoggedIn bool
	Account  Account
	Class    Class
	Set      Set
	Totals   *Totals // nil when progress could not be fetched
}

// HasClass reports whether a class is linked.
func (a AccountState) HasClass() bool { return a.Class.ID > 0 }

// HasSet reports whether a set is linked.
func (a AccountState) HasSet() bool { return a.Set.ID > 0 }
