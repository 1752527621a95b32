package config

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// MergeConflictError reports a key that holds a mapping in one document and
// a scalar or sequence in the other. Neither side is picked silently.
type MergeConflictError struct {
	Path         string
	BaseKind     string
	IncomingKind string
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("config: merge conflict at %q: cannot merge %s with %s", e.Path, e.BaseKind, e.IncomingKind)
}

// ErrNoDocuments is returned by MergeAll when given nothing to merge.
var ErrNoDocuments = errors.New("config: no documents to merge")

// Merge combines two documents into a new one. Mappings present on both
// sides are merged key by key. For any other shared key, incoming wins when
// overwrite is set and base wins otherwise. Keys found on one side only are
// carried through. Neither input is modified.
func Merge(base, incoming *yaml.Node, overwrite bool) (*yaml.Node, error) {
	b, err := rootMapping(base)
	if err != nil {
		return nil, fmt.Errorf("config: merge base: %w", err)
	}
	in, err := rootMapping(incoming)
	if err != nil {
		return nil, fmt.Errorf("config: merge incoming: %w", err)
	}

	merged, err := mergeNodes(b, in, overwrite, nil)
	if err != nil {
		return nil, err
	}
	return &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{merged}}, nil
}

// MergeAll folds docs left to right through Merge.
func MergeAll(docs []*yaml.Node, overwrite bool) (*yaml.Node, error) {
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	acc, err := rootMapping(docs[0])
	if err != nil {
		return nil, err
	}
	out := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{clone(acc)}}
	for _, doc := range docs[1:] {
		if out, err = Merge(out, doc, overwrite); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func mergeNodes(base, incoming *yaml.Node, overwrite bool, path []string) (*yaml.Node, error) {
	base, incoming = resolve(base), resolve(incoming)

	switch {
	case base.Kind == yaml.MappingNode && incoming.Kind == yaml.MappingNode:
		return mergeMappings(base, incoming, overwrite, path)
	case base.Kind == yaml.MappingNode && isNull(incoming):
		return clone(base), nil
	case incoming.Kind == yaml.MappingNode && isNull(base):
		return clone(incoming), nil
	case base.Kind == yaml.MappingNode || incoming.Kind == yaml.MappingNode:
		return nil, &MergeConflictError{
			Path:         strings.Join(path, "."),
			BaseKind:     kindName(base),
			IncomingKind: kindName(incoming),
		}
	case overwrite:
		return clone(incoming), nil
	default:
		return clone(base), nil
	}
}

func mergeMappings(base, incoming *yaml.Node, overwrite bool, path []string) (*yaml.Node, error) {
	out := &yaml.Node{
		Kind:  yaml.MappingNode,
		Tag:   base.Tag,
		Style: base.Style,
		Line:  base.Line,
	}

	index := make(map[string]int, len(base.Content)/2)
	for i := 0; i+1 < len(base.Content); i += 2 {
		key := resolve(base.Content[i])
		index[key.Value] = len(out.Content)
		out.Content = append(out.Content, clone(key), clone(base.Content[i+1]))
	}

	for i := 0; i+1 < len(incoming.Content); i += 2 {
		key := resolve(incoming.Content[i])
		pos, shared := index[key.Value]
		if !shared {
			index[key.Value] = len(out.Content)
			out.Content = append(out.Content, clone(key), clone(incoming.Content[i+1]))
			continue
		}
		v, err := mergeNodes(out.Content[pos+1], incoming.Content[i+1], overwrite, append(path, key.Value))
		if err != nil {
			return nil, err
		}
		out.Content[pos+1] = v
	}
	return out, nil
}

// clone deep-copies n, expanding aliases so the copy shares nothing with
// its source.
func clone(n *yaml.Node) *yaml.Node {
	if n == nil {
		return nil
	}
	n = resolve(n)
	c := *n
	c.Anchor = ""
	c.Alias = nil
	if len(n.Content) > 0 {
		c.Content = make([]*yaml.Node, len(n.Content))
		for i, child := range n.Content {
			c.Content[i] = clone(child)
		}
	}
	return &c
}

// resolve follows alias nodes to their anchors.
func resolve(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

// rootMapping unwraps a document node and checks its root is a mapping.
func rootMapping(doc *yaml.Node) (*yaml.Node, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidDocument)
	}
	n := doc
	if n.Kind == yaml.DocumentNode {
		if len(n.Content) == 0 {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidDocument)
		}
		n = n.Content[0]
	}
	n = resolve(n)
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top level must be a mapping, got %s", ErrInvalidDocument, kindName(n))
	}
	return n, nil
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}

func kindName(n *yaml.Node) string {
	switch n.Kind {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		if isNull(n) {
			return "null"
		}
		return "scalar"
	case yaml.DocumentNode:
		return "document"
	default:
		return "alias"
	}
}
