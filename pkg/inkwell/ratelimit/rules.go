package ratelimit

import "time"

// Default rule sets per traffic class. Public unlock is much stricter than
// the rest: it brute-force-guards content passwords.
var (
	AdminRead = Rule{
		Scope:       "admin-read",
		MaxRequests: 240,
		Window:      time.Minute,
	}

	AdminWrite = Rule{
		Scope:       "admin-write",
		MaxRequests: 60,
		Window:      time.Minute,
	}

	PublicRead = Rule{
		Scope:       "public-read",
		MaxRequests: 600,
		Window:      time.Minute,
	}

	PublicWrite = Rule{
		Scope:       "public-write",
		MaxRequests: 30,
		Window:      time.Minute,
	}

	PublicUnlock = Rule{
		Scope:       "public-unlock",
		MaxRequests: 10,
		Window:      5 * time.Minute,
	}
)
