package driven

import (
	"github.com/alorle/pvr-manager/internal/group"
	"github.com/alorle/pvr-manager/logging"
)

// LoggingEventSink publishes group change events to the log. It stands in
// for a real notification bus: consumers such as an EPG or a UI would hang
// off the same port.
type LoggingEventSink struct {
	log *logging.Logger
}

// NewLoggingEventSink creates an event sink writing to logger.
func NewLoggingEventSink(logger *logging.Logger) *LoggingEventSink {
	if logger == nil {
		logger = logging.New(logging.INFO)
	}
	return &LoggingEventSink{log: logger.WithComponent("events")}
}

// Publish implements group.EventSink.
func (s *LoggingEventSink) Publish(e group.Event) {
	s.log.Debug("Group changed", logging.Fields{
		"event_id": e.ID.String(),
		"kind":     e.Kind.String(),
		"group_id": e.GroupID,
		"group":    e.Path.String(),
	})
}
