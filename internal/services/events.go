package services

import (
	"github.com/mescon/Archivarr/internal/domain"
	"github.com/mescon/Archivarr/internal/eventbus"
	"github.com/mescon/Archivarr/internal/logger"
)

// RunEvents publishes events stamped with one run id.
type RunEvents struct {
	bus   eventbus.Publisher
	runID string
}

// NewRunEvents binds a publisher to a run id. A nil bus drops every event.
func NewRunEvents(bus eventbus.Publisher, runID string) RunEvents {
	return RunEvents{bus: bus, runID: runID}
}

// RunID returns the run id events are stamped with.
func (e RunEvents) RunID() string {
	return e.runID
}

func (e RunEvents) publish(eventType domain.EventType, aggregateType, aggregateID string, data map[string]interface{}) {
	if e.bus == nil {
		return
	}
	err := e.bus.Publish(domain.Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		EventData:     data,
		RunID:         e.runID,
	})
	if err != nil {
		logger.Debugf("Dropped %s event for %s: %v", eventType, aggregateID, err)
	}
}

func (e RunEvents) step(eventType domain.EventType, assetID, step string, outcome domain.StepOutcome, bytes int64, err error) {
	data := map[string]interface{}{
		"step":    step,
		"outcome": string(outcome),
	}
	if bytes > 0 {
		data["bytes"] = bytes
	}
	if err != nil {
		data["error"] = err.Error()
	}
	e.publish(eventType, domain.AggregateAsset, assetID, data)
}
