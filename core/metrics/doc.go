// Package metrics defines the sinks scheduling runs are reported to. Sinks
// like PromSink and InfluxSink record dispatch and planner runs and can be
// combined with NewMultiSink. Optional recorder interfaces are detected with
// type assertions, so a sink only implements what it can store. The factory
// helpers return a MultiSink automatically when several sinks are configured.
package metrics
