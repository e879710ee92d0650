// Package progress carries queue lifecycle notifications from the processor
// to whoever is watching: the console, a JSONL file, control API streams.
// Delivery is strictly fire and forget; a sink must never block or fail the
// queue loop.
package progress

import (
	"github.com/hexhaunt/promptq-cli/api/schemas"
)

// Sink receives progress events. Implementations swallow their own failures.
type Sink interface {
	Post(ev schemas.ProgressEvent)
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(schemas.ProgressEvent)

// Post implements Sink.
func (f SinkFunc) Post(ev schemas.ProgressEvent) { f(ev) }

// Discard ignores every event.
var Discard Sink = SinkFunc(func(schemas.ProgressEvent) {})

// Multi fans Post out to every non-nil sink, in order.
func Multi(sinks ...Sink) Sink {
	active := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	switch len(active) {
	case 0:
		return Discard
	case 1:
		return active[0]
	}
	return multiSink(active)
}

type multiSink []Sink

func (m multiSink) Post(ev schemas.ProgressEvent) {
	for _, s := range m {
		s.Post(ev)
	}
}
