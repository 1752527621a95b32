// Package report holds the data produced by a summary run and handed to the
// renderers.
package report

import "time"

// RunReport is the aggregate of one summary invocation.
type RunReport struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Servers   []SummaryRecord `json:"servers"`
	Meta      map[string]any  `json:"meta"`
}

// SummaryRecord describes the current state of one host. A record is never
// modified once it has been added to a RunReport.
type SummaryRecord struct {
	Name   string         `json:"name"`
	Driver string         `json:"driver"`
	Meta   map[string]any `json:"meta,omitempty"`
	Checks []CheckSummary `json:"checks"`
	Errors []string       `json:"errors"`
}

// CheckSummary is the outcome of a single check on a host.
type CheckSummary struct {
	Name    string       `json:"name"`
	Type    string       `json:"type"`
	Metrics []Metric     `json:"metrics"`
	Alarms  []AlarmState `json:"alarms,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// Metric is a single named value reported by a check.
type Metric struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// AlarmState records whether an alarm fired during the run.
type AlarmState struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
	Fired      bool   `json:"fired"`
}

// HasErrors reports whether the host reported any error.
func (r SummaryRecord) HasErrors() bool {
	return len(r.Errors) > 0
}

// Fired returns the number of alarms that fired on the host.
func (r SummaryRecord) Fired() int {
	n := 0
	for _, c := range r.Checks {
		for _, a := range c.Alarms {
			if a.Fired {
				n++
			}
		}
	}
	return n
}

// HostsWithErrors counts records that reported errors.
func (r RunReport) HostsWithErrors() int {
	n := 0
	for _, s := range r.Servers {
		if s.HasErrors() {
			n++
		}
	}
	return n
}
