package services

// ProgressEvent is one tick of pipeline progress. Stage is the stage name
// ("url_parser", "fetch", ..., "completed", or "error"), Percent is the
// stage-local 0..100, and Detail optionally carries the weighted overall
// percent for consumers that want a single number.
type ProgressEvent struct {
	Stage   string  `json:"stage_name"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
	Detail  string  `json:"detail,omitempty"`
}

// ProgressSink consumes progress events. Sinks are invoked synchronously
// from pipeline stages and MUST NOT block.
type ProgressSink func(ProgressEvent)

// NewChannelSink returns a sink backed by a buffered channel together with
// its receive side. When the consumer falls behind, events are dropped
// instead of stalling the worker.
func NewChannelSink(buffer int) (ProgressSink, <-chan ProgressEvent) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan ProgressEvent, buffer)
	sink := func(ev ProgressEvent) {
		select {
		case ch <- ev:
		default:
		}
	}
	return sink, ch
}
