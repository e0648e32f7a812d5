package models

// All lists every persisted model, in migration order.
var All = []interface{}{
	&Batch{},
	&JobResult{},
	&JobTestResult{},
	&LogEntry{},
}
