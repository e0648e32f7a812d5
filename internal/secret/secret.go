// Package secret resolves secret:// references used in job environments.
//
// A reference names a provider as its host and a provider specific path:
//
//	secret://env/WAREHOUSE_PASSWORD
//	secret://vault/kv/data/warehouse?field=password
//	secret://k8s/etl/warehouse-creds/password
package secret

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

const scheme = "secret"

// Reference is a parsed secret:// URI.
type Reference struct {
	Raw      string
	Provider string
	Path     string
	Segments []string
	Query    url.Values
}

// IsReference reports whether value should be resolved rather than used
// verbatim.
func IsReference(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), scheme+"://")
}

// ParseReference converts a secret:// URI into a Reference.
func ParseReference(raw string) (*Reference, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, errors.Wrapf(err, "parse secret reference %q", raw)
	}
	if u.Scheme != scheme {
		return nil, errors.Errorf("invalid secret scheme %q", u.Scheme)
	}

	provider := strings.ToLower(strings.TrimSpace(u.Host))
	if provider == "" {
		return nil, errors.Errorf("secret reference %q missing provider", raw)
	}

	ref := &Reference{
		Raw:      raw,
		Provider: provider,
		Path:     strings.TrimPrefix(u.Path, "/"),
		Query:    u.Query(),
	}
	if ref.Path != "" {
		ref.Segments = strings.Split(ref.Path, "/")
	}
	return ref, nil
}

// Provider looks up the value behind a reference addressed to it.
type Provider interface {
	Lookup(ctx context.Context, ref *Reference) (string, error)
}

// Resolver dispatches references to the provider named by their host.
// A nil Resolver rejects every reference.
type Resolver struct {
	providers map[string]Provider
}

func NewResolver() *Resolver {
	return &Resolver{providers: make(map[string]Provider)}
}

// Register associates one or more provider names with p, replacing any
// provider previously registered under those names.
func (r *Resolver) Register(p Provider, names ...string) {
	for _, name := range names {
		r.providers[strings.ToLower(strings.TrimSpace(name))] = p
	}
}

// Providers returns the registered provider names, sorted.
func (r *Resolver) Providers() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the value behind raw.
func (r *Resolver) Resolve(ctx context.Context, raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", errors.New("secret reference is empty")
	}
	if r == nil {
		return "", errors.New("secret resolver is not configured")
	}

	ref, err := ParseReference(raw)
	if err != nil {
		return "", err
	}

	p, ok := r.providers[ref.Provider]
	if !ok || p == nil {
		return "", errors.Errorf("secret provider %q not configured", ref.Provider)
	}
	return p.Lookup(ctx, ref)
}

// Environ turns a job environment into KEY=VALUE pairs sorted by key,
// resolving every value that is a secret reference.
func (r *Resolver) Environ(ctx context.Context, env map[string]string) ([]string, error) {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		value := env[k]
		if IsReference(value) {
			resolved, err := r.Resolve(ctx, value)
			if err != nil {
				return nil, errors.Wrapf(err, "resolve %s", k)
			}
			value = resolved
		}
		out = append(out, k+"="+value)
	}
	return out, nil
}
