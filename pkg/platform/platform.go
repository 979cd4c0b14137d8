// Package platform talks to the external learning platform.
//
// Each chat user gets their own Client: the platform authenticates with a
// cookie session, so a client is bound to one logged-in account.
package platform

import (
	"context"

	"github.com/NicolasHaas/ticketbot/pkg/model"
)

// Progress is a study completion change in percent.
type Progress struct {
	Before int `json:"before"`
	After  int `json:"after"`
}

// Rank holds the optional rank positions returned after a game score.
type Rank struct {
	All   *int `json:"all,omitempty"`
	Class *int `json:"class,omitempty"`
}

// GameResult is the outcome of submitting a minigame score.
type GameResult struct {
	Message string
	Rank    Rank
}

// Client is one authenticated platform session.
//
// Failed calls return *errs.Error values: KindAuth for rejected logins and
// KindExternalAPI for everything else.
type Client interface {
	Login(ctx context.Context, id, password string) (model.Account, error)
	Classes(ctx context.Context) ([]model.Named, error)
	Folders(ctx context.Context) ([]model.Named, error)
	SetsFromClass(ctx context.Context, classID int) ([]model.Named, error)
	SetsFromFolder(ctx context.Context, folder string) ([]model.Named, error)
	SetClass(ctx context.Context, classID int) (model.Class, error)
	SetSet(ctx context.Context, setID int) (model.Set, error)
	LearnAll(ctx context.Context, kind model.LearningKind) (Progress, error)
	AddGameScore(ctx context.Context, activity model.Activity, score int, autoSubmit bool) (GameResult, error)
	PostTest(ctx context.Context) (string, error)
	Total(ctx context.Context) (model.Totals, error)
}

// Factory creates a fresh, unauthenticated client.
type Factory func() Client
