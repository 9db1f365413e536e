// Package progress defines the event channel between the batch pipelines and
// whatever transport presents them (websocket hub, CLI log output).
package progress

import (
	applog "github.com/kotaro/photoinsight/internal/logger"
)

// EventName identifies a progress event type.
type EventName string

const (
	EventIndexingStatus         EventName = "indexing_status"
	EventNewImageFound          EventName = "new_image_found"
	EventIndexingComplete       EventName = "indexing_complete"
	EventClassificationStatus   EventName = "classification_status"
	EventClassificationComplete EventName = "classification_complete"
	EventError                  EventName = "error"
)

// Event is a small progress payload. Message carries human-readable status
// text; Path and Status are set on per-photo events.
type Event struct {
	Name    EventName `json:"event"`
	Message string    `json:"message,omitempty"`
	Path    string    `json:"path,omitempty"`
	Status  string    `json:"status,omitempty"`
}

// Observer receives pipeline progress events. Implementations must not
// block for long: pipelines emit between items.
type Observer interface {
	Notify(event Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// Notify calls the wrapped function.
func (f ObserverFunc) Notify(event Event) {
	f(event)
}

// Status builds a status event.
func Status(name EventName, message string) Event {
	return Event{Name: name, Message: message}
}

// Found builds a new_image_found event for a freshly indexed photo.
func Found(path string) Event {
	return Event{Name: EventNewImageFound, Path: path, Status: "Indexed"}
}

// Failure builds an error event.
func Failure(message string) Event {
	return Event{Name: EventError, Message: message}
}

// Nop is an Observer that discards all events.
var Nop Observer = ObserverFunc(func(Event) {})

// LogObserver writes events to the structured logger. Used by the CLI
// runner where no socket client is attached.
type LogObserver struct {
	logger *applog.Logger
}

// NewLogObserver creates a LogObserver; nil uses the default logger.
func NewLogObserver(log *applog.Logger) *LogObserver {
	if log == nil {
		log = applog.GetDefault()
	}
	return &LogObserver{logger: log}
}

// Notify logs the event with its name as a structured field.
func (o *LogObserver) Notify(event Event) {
	log := o.logger.WithField("event", string(event.Name))
	if event.Path != "" {
		log = log.WithField(applog.FieldPhoto, event.Path)
	}
	switch event.Name {
	case EventError:
		log.Error(event.Message)
	default:
		if event.Message != "" {
			log.Info(event.Message)
		} else {
			log.Info(event.Status)
		}
	}
}
