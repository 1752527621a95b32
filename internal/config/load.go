package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidDocument is wrapped by every error caused by a document that
// cannot be read, parsed or decoded.
var ErrInvalidDocument = errors.New("config: invalid document")

// consulScheme prefixes config sources stored in the Consul KV store.
const consulScheme = "consul://"

// Loader reads configuration documents from files or Consul.
type Loader struct {
	consul KVGetter
	lookup func(string) (string, bool)
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithKV sets the KV client used for consul:// sources. Without it a client
// is created from the source address on first use.
func WithKV(kv KVGetter) LoaderOption {
	return func(l *Loader) {
		l.consul = kv
	}
}

// WithLookupEnv replaces os.LookupEnv for ${VAR} expansion.
func WithLookupEnv(fn func(string) (string, bool)) LoaderOption {
	return func(l *Loader) {
		l.lookup = fn
	}
}

// NewLoader creates a Loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads and parses one document. source is either a file path or a
// consul://[addr]/key URL.
func (l *Loader) Load(ctx context.Context, source string) (*yaml.Node, error) {
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(source, consulScheme) {
		data, err = l.loadConsul(ctx, source)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDocument, source, err)
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	expandEnv(doc, l.lookup)
	return doc, nil
}

// LoadAll loads every source in order and stops at the first failure.
func (l *Loader) LoadAll(ctx context.Context, sources []string) ([]*yaml.Node, error) {
	docs := make([]*yaml.Node, 0, len(sources))
	for _, src := range sources {
		doc, err := l.Load(ctx, src)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Parse decodes YAML bytes into a document node whose root is a mapping.
func Parse(data []byte) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if _, err := rootMapping(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
