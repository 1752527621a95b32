package config

import (
	"regexp"

	"gopkg.in/yaml.v3"
)

// envRef matches ${NAME}, and $${NAME} which escapes to a literal ${NAME}.
var envRef = regexp.MustCompile(`\$?\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${NAME} in every scalar value (not keys) of the
// document. Bare $NAME and $$ are left alone so shell variables in remote
// commands and passwords reach the host unchanged. Unset variables expand
// to the empty string and single-quoted scalars are never expanded.
// Expanded plain scalars drop their tag so the new value is resolved
// again: port: ${SSH_PORT} decodes as an int.
func expandEnv(n *yaml.Node, lookup func(string) (string, bool)) {
	if n == nil {
		return
	}

	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			expandEnv(n.Content[i+1], lookup)
		}
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, c := range n.Content {
			expandEnv(c, lookup)
		}
	case yaml.ScalarNode:
		if n.Style&yaml.SingleQuotedStyle != 0 {
			return
		}
		expanded := expandRefs(n.Value, lookup)
		if expanded != n.Value {
			n.Value = expanded
			if n.Style == 0 {
				n.Tag = ""
			}
		}
	}
}

func expandRefs(s string, lookup func(string) (string, bool)) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		if ref[1] == '$' {
			return ref[1:]
		}
		v, _ := lookup(ref[2 : len(ref)-1])
		return v
	})
}
