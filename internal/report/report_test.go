package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummaryRecord_Fired(t *testing.T) {
	rec := SummaryRecord{Checks: []CheckSummary{
		{Alarms: []AlarmState{{Name: "a", Fired: true}, {Name: "b"}}},
		{},
		{Alarms: []AlarmState{{Name: "c", Fired: true}}},
	}}
	assert.Equal(t, 2, rec.Fired())
	assert.False(t, rec.HasErrors())
}

func TestRunReport_HostsWithErrors(t *testing.T) {
	r := RunReport{Servers: []SummaryRecord{
		{Name: "h1", Errors: []string{}},
		{Name: "h2", Errors: []string{"disk: df failed"}},
		{Name: "h3", Errors: []string{"memory: denied", "uptime: denied"}},
	}}
	assert.Equal(t, 2, r.HostsWithErrors())
	assert.True(t, r.Servers[1].HasErrors())
}
