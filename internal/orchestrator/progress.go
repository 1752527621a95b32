package orchestrator

import "code.cloudfoundry.org/lager/v3"

// ProgressStatus is the state of a host within a run.
type ProgressStatus string

const (
	ProgressPending  ProgressStatus = "pending"
	ProgressWorking  ProgressStatus = "working"
	ProgressComplete ProgressStatus = "complete"
	ProgressFailed   ProgressStatus = "failed"
)

// ProgressEvent reports a host changing state during a run.
type ProgressEvent struct {
	Host    string
	Status  ProgressStatus
	Message string
}

// LogProgress returns a progress callback writing each event to logger at
// debug level.
func LogProgress(logger lager.Logger) func(ProgressEvent) {
	logger = logger.Session("progress")
	return func(ev ProgressEvent) {
		data := lager.Data{"host": ev.Host, "status": string(ev.Status)}
		if ev.Message != "" {
			data["message"] = ev.Message
		}
		logger.Debug("host", data)
	}
}
