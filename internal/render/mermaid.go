package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/dusk-indust/sshmon/internal/report"
)

// mermaid produces a Mermaid graph TD diagram of the fleet. Each server is
// a subgraph holding its checks; fired alarms hang off their check and are
// drawn in the "fired" class, failing checks in the "failed" class.
func mermaid(w io.Writer, r report.RunReport) error {
	// Mermaid IDs must be alphanumeric, so labels get generated IDs.
	nextID := 0
	newID := func(prefix string) string {
		id := fmt.Sprintf("%s%d", prefix, nextID)
		nextID++
		return id
	}

	var sb strings.Builder
	sb.WriteString("graph TD\n")
	sb.WriteString("  classDef fired fill:#f8d7da,stroke:#c00\n")
	sb.WriteString("  classDef failed fill:#fff3cd,stroke:#b80\n")

	var fired, failed []string
	for _, s := range r.Servers {
		fmt.Fprintf(&sb, "  subgraph %s[\"%s\"]\n", newID("S"), label(s.Name))
		for _, c := range s.Checks {
			checkID := newID("C")
			fmt.Fprintf(&sb, "    %s[\"%s (%s)\"]\n", checkID, label(c.Name), label(c.Type))
			if c.Error != "" {
				failed = append(failed, checkID)
			}
			for _, a := range c.Alarms {
				if !a.Fired {
					continue
				}
				alarmID := newID("A")
				fmt.Fprintf(&sb, "    %s --> %s{{\"%s\"}}\n", checkID, alarmID, label(a.Name))
				fired = append(fired, alarmID)
			}
		}
		if len(s.Checks) == 0 && s.HasErrors() {
			id := newID("E")
			fmt.Fprintf(&sb, "    %s[\"%d error(s)\"]\n", id, len(s.Errors))
			failed = append(failed, id)
		}
		sb.WriteString("  end\n")
	}

	if len(fired) > 0 {
		fmt.Fprintf(&sb, "  class %s fired\n", strings.Join(fired, ","))
	}
	if len(failed) > 0 {
		fmt.Fprintf(&sb, "  class %s failed\n", strings.Join(failed, ","))
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// label makes s safe inside a quoted Mermaid label, capped at 40 runes.
func label(s string) string {
	s = strings.ReplaceAll(s, `"`, "#quot;")
	if r := []rune(s); len(r) > 40 {
		s = string(r[:39]) + "…"
	}
	return s
}
