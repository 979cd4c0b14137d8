package model

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseGameScore(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		unit    int
		want    int
		wantErr error
	}{
		{"valid hundreds", "500", 100, 500, nil},
		{"valid with spaces", " 900 ", 100, 900, nil},
		{"valid tens", "30", 10, 30, nil},
		{"ceiling", "990000", 100, 990000, nil},
		{"unit mismatch", "555", 100, 0, ErrScoreUnit},
		{"unit mismatch tens", "35", 10, 0, ErrScoreUnit},
		{"over ceiling", "1000000", 100, 0, ErrScoreTooHigh},
		{"over ceiling beats unit", "990005", 100, 0, ErrScoreTooHigh},
		{"below unit", "50", 100, 0, ErrScoreTooLow},
		{"zero", "0", 10, 0, ErrScoreTooLow},
		{"negative", "-100", 100, 0, ErrScoreTooLow},
		{"letters", "abc", 100, 0, ErrScoreNotNumber},
		{"empty", "", 100, 0, ErrScoreNotNumber},
		{"trailing text", "500pts", 100, 0, ErrScoreNotNumber},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseGameScore(tt.input, tt.unit)
			if err != tt.wantErr {
				t.Fatalf("ParseGameScore(%q, %d) err = %v, want %v", tt.input, tt.unit, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseGameScore(%q, %d) = %d, want %d", tt.input, tt.unit, got, tt.want)
			}
		})
	}
}

func TestUserSessionValidate(t *testing.T) {
	tests := map[string]struct {
		session UserSession
		wantErr error
	}{
		"zero":         {UserSession{}, nil},
		"full ticket":  {UserSession{ChannelID: "1", MessageID: "2"}, nil},
		"channel only": {UserSession{ChannelID: "1"}, ErrTicketInconsistent},
		"message only": {UserSession{MessageID: "2"}, ErrTicketInconsistent},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if err := tc.session.Validate(); err != tc.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestUserSessionClearCredentials(t *testing.T) {
	s := UserSession{
		ExternalIDCipher:       "a",
		ExternalPasswordCipher: "b",
		ClassID:                3,
		SetID:                  4,
		ChannelID:              "c",
		MessageID:              "m",
	}
	s.ClearCredentials()

	want := UserSession{ChannelID: "c", MessageID: "m"}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("ClearCredentials mismatch (-want +got):\n%s", diff)
	}
	if s.HasCredentials() {
		t.Error("HasCredentials() = true after clear")
	}
}

func TestSetTypeStudiable(t *testing.T) {
	tests := []struct {
		typ  SetType
		want bool
	}{
		{SetTypeWord, true},
		{SetTypeSentence, true},
		{SetTypeTerm, false},
		{SetTypeListening, false},
		{SetTypeDrill, false},
		{SetTypeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			if got := tt.typ.Studiable(); got != tt.want {
				t.Errorf("SetType(%d).Studiable() = %v, want %v", tt.typ, got, tt.want)
			}
		})
	}
}

func TestQuizBattleMark(t *testing.T) {
	b := NewQuizBattleSession(1234, "alice", false)
	b.Start([]Question{{ID: 1, Weight: 1}, {ID: 2, Weight: 3}, {ID: 3, Weight: 2}}, 2, 450)

	type step struct {
		correct       bool
		wantScore     int64
		wantNext      int
		wantRemaining int
		wantRoundDone bool
	}
	steps := []step{
		{correct: true, wantScore: 100, wantNext: 2, wantRemaining: 1},
		{correct: false, wantScore: 100, wantNext: 3, wantRemaining: 2, wantRoundDone: true},
		{correct: true, wantScore: 300, wantNext: 1, wantRemaining: 1},
		{correct: true, wantScore: 400, wantNext: 2, wantRemaining: 2, wantRoundDone: true},
	}

	prev := b.Score
	for i, s := range steps {
		next, done := b.Mark(s.correct)
		if b.Score < prev {
			t.Fatalf("step %d: score decreased from %d to %d", i, prev, b.Score)
		}
		prev = b.Score
		if b.Score != s.wantScore {
			t.Errorf("step %d: score = %d, want %d", i, b.Score, s.wantScore)
		}
		if next.ID != s.wantNext {
			t.Errorf("step %d: next question = %d, want %d", i, next.ID, s.wantNext)
		}
		if b.Remaining != s.wantRemaining {
			t.Errorf("step %d: remaining = %d, want %d", i, b.Remaining, s.wantRemaining)
		}
		if done != s.wantRoundDone {
			t.Errorf("step %d: roundDone = %v, want %v", i, done, s.wantRoundDone)
		}
	}
	if b.Correct != 3 || b.Wrong != 1 || b.Total() != 4 {
		t.Errorf("counters = %d/%d/%d, want 3/1/4", b.Correct, b.Wrong, b.Total())
	}
}

func TestQuizBattleMarkWithoutQuestions(t *testing.T) {
	b := NewQuizBattleSession(1, "bob", false)
	next, _ := b.Mark(true)
	if b.Score != 0 {
		t.Errorf("score = %d, want 0 without questions", b.Score)
	}
	if diff := cmp.Diff(Question{}, next); diff != "" {
		t.Errorf("next question mismatch (-want +got):\n%s", diff)
	}
}

func TestRoleValid(t *testing.T) {
	tests := []struct {
		name string
		role Role
		want bool
	}{
		{"RoleMember", RoleMember, true},
		{"RoleTicketOwner", RoleTicketOwner, true},
		{"RoleOwner", RoleOwner, true},
		{"negative", Role(-1), false},
		{"three", Role(3), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.role.Valid(); got != tt.want {
				t.Errorf("Role(%d).Valid() = %v, want %v", tt.role, got, tt.want)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		input string
		want  Role
	}{
		{"owner", RoleOwner},
		{"ticket_owner", RoleTicketOwner},
		{"member", RoleMember},
		{"", RoleMember},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseRole(tt.input); got != tt.want {
				t.Errorf("ParseRole(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}
