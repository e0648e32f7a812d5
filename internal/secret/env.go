package secret

import (
	"context"
	"os"
	"strings"

	"github.com/pkg/errors"
)

const ProviderEnv = "env"

// EnvProvider reads secrets from the batch process environment. The
// variable is named by ?name= or by the path segments joined with "_".
type EnvProvider struct {
	lookup func(string) (string, bool)
}

func NewEnvProvider() *EnvProvider {
	return &EnvProvider{lookup: os.LookupEnv}
}

func (p *EnvProvider) Lookup(_ context.Context, ref *Reference) (string, error) {
	name := strings.TrimSpace(ref.Query.Get("name"))
	if name == "" {
		name = strings.TrimSpace(strings.Join(ref.Segments, "_"))
	}
	if name == "" {
		return "", errors.Errorf("env secret %q requires a name", ref.Raw)
	}

	value, ok := p.lookup(name)
	if !ok {
		return "", errors.Errorf("environment variable %s not set", name)
	}
	return value, nil
}
