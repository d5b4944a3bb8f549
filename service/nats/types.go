package nats

import (
	"time"
)

// EntryEvent is published to the subject "entries.{owner}" when the remote
// accepts a new entry.
type EntryEvent struct {
	Owner       string    `json:"owner"`
	Record      string    `json:"record,omitempty"` // on-chain account address
	Link        string    `json:"link"`
	PublishedAt time.Time `json:"published_at"`
}

// NewEntryEvent builds an event stamped with the current time.
func NewEntryEvent(owner, record, link string) *EntryEvent {
	return &EntryEvent{
		Owner:       owner,
		Record:      record,
		Link:        link,
		PublishedAt: time.Now().UTC(),
	}
}

// Subject returns the subject an entry event for owner is published on.
func Subject(owner string) string {
	return SubjectPrefix + owner
}
