package events

import "github.com/kelindar/event"

// SubscribeToChannel delivers events of type T to ch for select-based
// consumers such as SSE handlers. Events that do not fit are dropped and
// counted in Dropped, so a stalled client never blocks the publisher.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
			bus.dropped.Add(1)
		}
	})
}

// ProcessName returns the process an event is about, or "" for
// supervisor-wide events.
func ProcessName(ev any) string {
	switch e := ev.(type) {
	case ProcessStateChangedEvent:
		return e.Name
	case ProcessCrashedEvent:
		return e.Name
	case ProcessMetricsEvent:
		return e.Name
	}
	return ""
}
