package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/buildbeaver/docflow/internal/logger"
	"github.com/buildbeaver/docflow/internal/pipeline"
)

// wireEvent is the flat JSON shape published on the event stream:
// {event, job_id?, step_name?, status?, error?, path?, watch_name?,
// event_type?}.
type wireEvent struct {
	Event     string `json:"event"`
	JobID     string `json:"job_id,omitempty"`
	StepName  string `json:"step_name,omitempty"`
	Status    string `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`
	Path      string `json:"path,omitempty"`
	WatchName string `json:"watch_name,omitempty"`
	EventType string `json:"event_type,omitempty"`
}

func toWireEvent(e pipeline.Event) wireEvent {
	w := wireEvent{
		Event:     string(e.Name),
		JobID:     string(e.JobID),
		StepName:  e.StepName,
		Status:    e.Status,
		Error:     e.Error,
		Path:      e.Path,
		WatchName: e.WatchName,
		EventType: e.EventType,
	}
	if w.Status == "" && e.Job != nil {
		w.Status = string(e.Job.Status)
	}
	return w
}

// EventSubscriber is the subset of internal/pipeline.Pipeline the events
// stream needs: the ability to register a subscriber.
type EventSubscriber interface {
	Subscribe(sub pipeline.Subscriber)
}

// EventsAPI streams every pipeline event to connected clients as
// Server-Sent Events: a strictly simpler one-way transport than a
// websocket for a stream that only ever flows server-to-client.
type EventsAPI struct {
	base
	pipeline EventSubscriber
}

// NewEventsAPI constructs an EventsAPI over pipeline.
func NewEventsAPI(pipeline EventSubscriber, logFactory logger.LogFactory) *EventsAPI {
	return &EventsAPI{base: base{Log: logFactory("EventsAPI")}, pipeline: pipeline}
}

// Stream handles GET /events, an SSE stream of every fan-out event.
func (a *EventsAPI) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := make(chan pipeline.Event, 64)
	a.pipeline.Subscribe(func(e pipeline.Event) {
		select {
		case events <- e:
		default:
			a.Warnf("dropping event %q: subscriber channel is full", e.Name)
		}
	})

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			buf, err := json.Marshal(toWireEvent(e))
			if err != nil {
				a.Errorf("error marshalling event %q: %s", e.Name, err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", buf); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
