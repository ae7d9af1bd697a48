package structs

import (
	"time"
)

// Deployment is a versioned, content-addressed worker image.
// Exactly one deployment at a time has SupersededAt unset; new nodes are only
// ever created against that one.
type Deployment struct {
	ID int64 `json:"id"`

	// Image is a content-addressed reference, eg. "registry/name@sha256:...".
	Image string `json:"image"`

	CreatedAt time.Time `json:"created_at"`

	// SupersededAt is set the moment a newer deployment is created.
	SupersededAt *time.Time `json:"superseded_at,omitempty"`
}

// Active returns true while this deployment is the one new nodes bind to.
func (d *Deployment) Active() bool {
	return d.SupersededAt == nil
}
