// Package version holds build-time version info injected via ldflags.
//
//	go build -ldflags "-X github.com/NicolasHaas/ticketbot/pkg/version.tag=v1.0.0
//	  -X github.com/NicolasHaas/ticketbot/pkg/version.commit=abc1234
//	  -X github.com/NicolasHaas/ticketbot/pkg/version.date=2026-01-01"
package version

var (
	tag    = ""
	commit = "unknown"
	date   = "unknown"
)

// String returns the tag, else the commit, else "dev".
func String() string {
	switch {
	case tag != "":
		return tag
	case commit != "unknown":
		return commit
	default:
		return "dev"
	}
}

// Full returns "tag (commit) built date" or the closest fallback.
func Full() string {
	switch {
	case tag != "":
		return tag + " (" + commit + ") built " + date
	case commit != "unknown":
		return commit + " built " + date
	default:
		return "dev"
	}
}

// UserAgent is sent on every request to the learning platform and the
// battle server.
func UserAgent() string {
	return "ticketbot/" + String()
}
