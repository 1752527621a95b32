package monitor

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dusk-indust/sshmon/internal/report"
)

// ErrUnknownMetric is returned when an alarm references a metric the check
// did not report.
var ErrUnknownMetric = errors.New("monitor: unknown metric")

var comparison = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_.]*)\s*(<=|>=|==|!=|<|>)\s*(.+?)\s*$`)

// evaluate reports whether expr holds for metrics. Expressions are
// comparisons of a metric with a literal joined by && and ||, where &&
// binds tighter.
func evaluate(expr string, metrics map[string]any) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return false, errors.New("empty alarm expression")
	}
	for _, disjunct := range strings.Split(expr, "||") {
		all := true
		for _, term := range strings.Split(disjunct, "&&") {
			ok, err := compare(term, metrics)
			if err != nil {
				return false, err
			}
			if !ok {
				all = false
				break
			}
		}
		if all {
			return true, nil
		}
	}
	return false, nil
}

func compare(term string, metrics map[string]any) (bool, error) {
	m := comparison.FindStringSubmatch(term)
	if m == nil {
		return false, fmt.Errorf("invalid alarm term %q", strings.TrimSpace(term))
	}
	name, op, literal := m[1], m[2], unquote(m[3])

	value, ok := metrics[name]
	if !ok {
		return false, fmt.Errorf("%w %q", ErrUnknownMetric, name)
	}

	lhs, lok := toFloat(value)
	rhs, rok := toFloat(literal)
	if lok && rok {
		switch op {
		case "<":
			return lhs < rhs, nil
		case "<=":
			return lhs <= rhs, nil
		case ">":
			return lhs > rhs, nil
		case ">=":
			return lhs >= rhs, nil
		case "==":
			return lhs == rhs, nil
		default:
			return lhs != rhs, nil
		}
	}

	s := fmt.Sprint(value)
	switch op {
	case "==":
		return s == literal, nil
	case "!=":
		return s != literal, nil
	default:
		return false, fmt.Errorf("operator %s needs numeric operands in %q", op, strings.TrimSpace(term))
	}
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// metricMap indexes metrics by name for alarm evaluation.
func metricMap(metrics []report.Metric) map[string]any {
	out := make(map[string]any, len(metrics))
	for _, m := range metrics {
		out[m.Name] = m.Value
	}
	return out
}
