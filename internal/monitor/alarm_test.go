package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	metrics := map[string]any{
		"percent_used": 82.5,
		"free_bytes":   uint64(1024),
		"exit_code":    0,
		"stdout":       "active",
		"load1":        "1.5",
	}

	tests := []struct {
		expr string
		want bool
	}{
		{"percent_used > 80", true},
		{"percent_used >= 82.5", true},
		{"percent_used < 80", false},
		{"percent_used <= 82.5", true},
		{"free_bytes == 1024", true},
		{"free_bytes != 1024", false},
		{"exit_code != 0", false},
		{"stdout == active", true},
		{`stdout == "active"`, true},
		{"stdout != 'active'", false},
		{"load1 > 1", true},
		{"percent_used > 90 || exit_code == 0", true},
		{"percent_used > 80 && exit_code != 0", false},
		{"percent_used > 90 || percent_used > 80 && stdout == active", true},
		{"percent_used > 90 && stdout == active || exit_code == 1", false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := evaluate(tt.expr, metrics)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_Errors(t *testing.T) {
	metrics := map[string]any{"stdout": "active", "load1": 0.5}

	_, err := evaluate("missing > 1", metrics)
	assert.ErrorIs(t, err, ErrUnknownMetric)

	_, err = evaluate("stdout > 1", metrics)
	assert.Error(t, err, "ordering operators need numbers")

	_, err = evaluate("load1 ~= 2", metrics)
	assert.Error(t, err)

	_, err = evaluate("  ", metrics)
	assert.Error(t, err)
}

func TestEvaluate_ShortCircuits(t *testing.T) {
	// The unknown metric in the second disjunct is never reached.
	got, err := evaluate("load1 < 1 || missing > 1", map[string]any{"load1": 0.5})
	require.NoError(t, err)
	assert.True(t, got)
}
