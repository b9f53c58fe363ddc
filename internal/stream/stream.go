// Package stream models lazily generated, time-ordered event sequences.
//
// Every stream yields events in non-decreasing From order and a null
// event once it is exhausted. Streams carry a validity range; events
// outside of it are never produced.
package stream

import "echse/internal/instant"

// Event is one occurrence. A null From marks the end of a stream.
type Event struct {
	From    instant.Instant
	Till    instant.Instant
	Payload any
}

func (e Event) IsNull() bool { return e.From.IsNull() }

func (e Event) Range() instant.Range { return instant.Range{From: e.From, Till: e.Till} }

// Stream is a resumable event generator.
type Stream interface {
	// Next returns the next event or a null event when exhausted.
	Next() Event
	// Clone returns an independent copy positioned where the receiver is.
	Clone() Stream
	// Serialize writes the stream definition, clamped to its validity
	// range, as calendar properties.
	Serialize(Sink)
	Valid() instant.Range
	SetValid(instant.Range)
}

// Sink receives calendar properties during serialization.
type Sink interface {
	WriteProp(name, value string)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(name, value string)

func (f SinkFunc) WriteProp(name, value string) { f(name, value) }

// Exceptions wraps a sink so that inclusions are written as exclusions.
// Filters use it to serialize their exception streams.
func Exceptions(s Sink) Sink {
	return SinkFunc(func(name, value string) {
		switch name {
		case "RDATE":
			name = "EXDATE"
		case "RRULE":
			name = "EXRULE"
		}
		s.WriteProp(name, value)
	})
}

// Bounds implements the validity part of Stream for embedding.
type Bounds struct {
	valid instant.Range
}

func (b *Bounds) Valid() instant.Range { return b.valid }

func (b *Bounds) SetValid(r instant.Range) { b.valid = r }

// Admit classifies a candidate start against the validity range: skip
// reports it lies before From, stop that it is at or after Till.
func (b *Bounds) Admit(from instant.Instant) (skip, stop bool) {
	if !b.valid.From.IsNull() && from.Less(b.valid.From) {
		return true, false
	}
	if !b.valid.Till.IsNull() && !from.Less(b.valid.Till) {
		return false, true
	}
	return false, false
}

// Collect drains s into a slice, stopping after limit events when limit > 0.
func Collect(s Stream, limit int) []Event {
	var out []Event
	for limit <= 0 || len(out) < limit {
		e := s.Next()
		if e.IsNull() {
			break
		}
		out = append(out, e)
	}
	return out
}
