package config

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	consulapi "github.com/hashicorp/consul/api"
)

// KVGetter is the subset of the Consul KV API used to fetch documents.
// *consulapi.KV satisfies it.
type KVGetter interface {
	Get(key string, q *consulapi.QueryOptions) (*consulapi.KVPair, *consulapi.QueryMeta, error)
}

// consulSource is a parsed consul://[addr]/key?dc=..&token=.. source.
type consulSource struct {
	addr       string
	key        string
	datacenter string
	token      string
}

func parseConsulSource(source string) (consulSource, error) {
	u, err := url.Parse(source)
	if err != nil {
		return consulSource{}, fmt.Errorf("parse consul source: %w", err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return consulSource{}, fmt.Errorf("consul source %q has no key", source)
	}
	q := u.Query()
	return consulSource{
		addr:       u.Host,
		key:        key,
		datacenter: q.Get("dc"),
		token:      q.Get("token"),
	}, nil
}

func (l *Loader) loadConsul(ctx context.Context, source string) ([]byte, error) {
	src, err := parseConsulSource(source)
	if err != nil {
		return nil, err
	}

	kv := l.consul
	if kv == nil {
		cfg := consulapi.DefaultConfig()
		if src.addr != "" {
			cfg.Address = src.addr
		}
		if src.token != "" {
			cfg.Token = src.token
		}
		cli, err := consulapi.NewClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("consul client: %w", err)
		}
		kv = cli.KV()
	}

	opts := (&consulapi.QueryOptions{Datacenter: src.datacenter}).WithContext(ctx)
	pair, _, err := kv.Get(src.key, opts)
	if err != nil {
		return nil, fmt.Errorf("consul get %s: %w", src.key, err)
	}
	if pair == nil {
		return nil, fmt.Errorf("consul key %s not found", src.key)
	}
	return pair.Value, nil
}
