// Package profile manages saved hub connections. A profile pairs a named
// hub base URL with the API token used to authenticate against it, and at
// most one profile is active at a time. The active profile supplies the
// default connection for every command that talks to the hub.
package profile

import (
	"time"

	"github.com/bastionhq/bastionctl/internal/ulid"
)

// Profile is a saved hub connection.
type Profile struct {
	ID        ulid.ULID
	Name      string
	HubURL    string
	APIToken  string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a profile with a fresh ID. Timestamps are assigned by the
// repository when the profile is first persisted.
func New(name, hubURL, apiToken string) *Profile {
	return &Profile{
		ID:       ulid.New(ulid.PrefixProfile),
		Name:     name,
		HubURL:   hubURL,
		APIToken: apiToken,
	}
}
