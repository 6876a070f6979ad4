package orchestrator

import "fmt"

// progressBacklog is how many undelivered events the reporter holds before
// newer ones start getting discarded.
const progressBacklog = 64

// Reporter fans run events out to whoever is listening. Emission never
// blocks the solver; a slow or absent consumer loses events, not progress.
type Reporter struct {
	events chan ProgressEvent
}

func NewReporter() *Reporter {
	return &Reporter{events: make(chan ProgressEvent, progressBacklog)}
}

// Emit queues an event, discarding it when the backlog is full.
func (r *Reporter) Emit(event ProgressEvent) {
	select {
	case r.events <- event:
	default:
	}
}

// Subscribe exposes the event stream. The stream ends when Close is called.
func (r *Reporter) Subscribe() <-chan ProgressEvent {
	return r.events
}

// Close ends the stream. No Emit may follow.
func (r *Reporter) Close() {
	close(r.events)
}

// FormatProgress renders one event as a status line for the terminal.
func FormatProgress(event ProgressEvent) string {
	subject := event.Path
	if subject == "" {
		subject = string(event.State)
	}
	switch event.Status {
	case ProgressWorking:
		return fmt.Sprintf("  ● %s...", subject)
	case ProgressComplete:
		return fmt.Sprintf("  ✓ %s complete", subject)
	case ProgressFailed:
		return fmt.Sprintf("  ✗ %s failed: %s", subject, event.Message)
	default:
		return fmt.Sprintf("  ? %s (unknown status)", subject)
	}
}
