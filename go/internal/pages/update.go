// Package pages pushes fragment updates to the presentation layer, keyed by
// the location on screen they replace.
package pages

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Location identifies a region of the judge's screen.
type Location string

const (
	HeaderTrend      Location = "header-trend"
	TotalScore       Location = "total-score"
	ScoresheetMarks  Location = "scoresheet-marks"
	Penalties        Location = "penalties"
	StartList        Location = "start-list"
	Alerts           Location = "alerts"
	ConnectionStatus Location = "connection-status"
	Lock             Location = "lock"
)

// Update replaces the content shown at Location.
type Update struct {
	ID        uuid.UUID `json:"id"`
	Location  Location  `json:"location"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Broadcaster publishes page updates. Publishing never blocks.
type Broadcaster interface {
	Publish(location Location, content string)
}

// Mirror receives a copy of every update, for consumers outside this process.
type Mirror interface {
	Mirror(ctx context.Context, update Update) error
}

// Discard is a Broadcaster that drops everything.
type Discard struct{}

func (Discard) Publish(Location, string) {}
