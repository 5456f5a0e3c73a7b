// Package events fans session lifecycle events out to sinks.
//
// A Dispatcher implements auth.EventEmitter. Emit never blocks the
// request path: events go into a bounded buffer that Run drains on one
// long-lived goroutine, delivering each event to every sink in order.
// When the buffer is full the event is dropped and counted.
//
// Sinks:
//   - AuditSink writes an audit.Entry per event
//   - MQTTSink publishes JSON to identity/events/<action>
//   - InfluxSink counts events in the session_events measurement
//
// A failing sink is logged and skipped; it never affects other sinks or
// the operation that produced the event.
package events
