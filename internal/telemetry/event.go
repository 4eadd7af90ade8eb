package telemetry

import "time"

type EventType string

const (
	EventManualKill EventType = "manual_kill"
	EventAutoKills  EventType = "auto_kills"
	EventNudge      EventType = "nudge"
	EventCatchUp    EventType = "catch_up"
	EventReset      EventType = "reset"
	EventRestore    EventType = "restore"
	EventSaveFailed EventType = "save_failed"
)

type Event struct {
	ID        int       `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  string    `json:"metadata"`
}

type EventMetadata map[string]interface{}
