package telemetry

import (
	"encoding/json"
	"math/big"
	"time"
)

type Stats struct {
	Since          time.Time         `json:"since"`
	EventCounts    map[EventType]int `json:"event_counts"`
	ManualKills    map[string]int    `json:"manual_kills"`
	AutoKills      map[string]string `json:"auto_kills"`
	Nudges         int               `json:"nudges"`
	Resets         int               `json:"resets"`
	SaveFailures   int               `json:"save_failures"`
	CatchUpSeconds float64           `json:"catch_up_seconds"`
}

// CalculateStats summarises kill activity from events. Auto kill counts are
// summed exactly since a single catch-up can exceed float precision.
func CalculateStats(events []Event, since time.Time) (Stats, error) {
	stats := Stats{
		Since:       since,
		EventCounts: make(map[EventType]int),
		ManualKills: make(map[string]int),
		AutoKills:   make(map[string]string),
	}
	auto := make(map[string]*big.Int)

	for _, event := range events {
		stats.EventCounts[event.Type]++

		var metadata EventMetadata
		if err := json.Unmarshal([]byte(event.Metadata), &metadata); err != nil {
			continue
		}
		entity, _ := metadata["entity"].(string)

		switch event.Type {
		case EventManualKill:
			stats.ManualKills[entity]++
		case EventAutoKills:
			s, _ := metadata["kills"].(string)
			n, ok := new(big.Int).SetString(s, 10)
			if !ok {
				continue
			}
			if auto[entity] == nil {
				auto[entity] = new(big.Int)
			}
			auto[entity].Add(auto[entity], n)
		case EventNudge:
			stats.Nudges++
		case EventReset:
			stats.Resets++
		case EventSaveFailed:
			stats.SaveFailures++
		case EventCatchUp:
			if secs, ok := metadata["seconds"].(float64); ok {
				stats.CatchUpSeconds += secs
			}
		}
	}

	for entity, n := range auto {
		stats.AutoKills[entity] = n.String()
	}
	return stats, nil
}
