package telemetry

// MultiSink fans a snapshot out to several sinks. Publish calls happen in
// order on the caller's goroutine, so every sink must itself be nonblocking.
type MultiSink []Sink

// Publish forwards the snapshot to every sink.
func (m MultiSink) Publish(snap Snapshot) {
	for _, s := range m {
		s.Publish(snap)
	}
}
