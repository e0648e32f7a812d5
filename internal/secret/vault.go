package secret

import (
	"context"
	"fmt"
	"strings"

	vault "github.com/hashicorp/vault/api"
	"github.com/pkg/errors"
)

const ProviderVault = "vault"

type vaultReader interface {
	ReadWithContext(ctx context.Context, path string) (*vault.Secret, error)
}

// VaultConfig describes how to reach a Vault cluster.
type VaultConfig struct {
	Address       string
	Token         string
	Namespace     string
	CACertPath    string
	TLSSkipVerify bool
}

// VaultProvider reads fields of Vault logical secrets. KV v2 payloads
// nested under "data" are unwrapped.
type VaultProvider struct {
	reader vaultReader
}

func NewVaultProvider(cfg VaultConfig) (*VaultProvider, error) {
	address := strings.TrimSpace(cfg.Address)
	if address == "" {
		return nil, errors.New("vault address is required")
	}

	clientConfig := vault.DefaultConfig()
	clientConfig.Address = address
	if cfg.CACertPath != "" || cfg.TLSSkipVerify {
		tls := &vault.TLSConfig{CACert: cfg.CACertPath, Insecure: cfg.TLSSkipVerify}
		if err := clientConfig.ConfigureTLS(tls); err != nil {
			return nil, errors.Wrap(err, "configure vault tls")
		}
	}

	client, err := vault.NewClient(clientConfig)
	if err != nil {
		return nil, errors.Wrap(err, "create vault client")
	}
	if token := strings.TrimSpace(cfg.Token); token != "" {
		client.SetToken(token)
	}
	if ns := strings.TrimSpace(cfg.Namespace); ns != "" {
		client.SetNamespace(ns)
	}

	return &VaultProvider{reader: client.Logical()}, nil
}

// Lookup reads secret://vault/<path>?field=<field>. Without ?field= the
// last path segment names the field.
func (p *VaultProvider) Lookup(ctx context.Context, ref *Reference) (string, error) {
	field := strings.TrimSpace(ref.Query.Get("field"))
	segments := ref.Segments
	if field == "" && len(segments) >= 2 {
		field = strings.TrimSpace(segments[len(segments)-1])
		segments = segments[:len(segments)-1]
	}

	path := strings.Join(segments, "/")
	if path == "" {
		return "", errors.Errorf("vault secret %q missing path", ref.Raw)
	}
	if field == "" {
		return "", errors.Errorf("vault secret %q missing field", ref.Raw)
	}

	secret, err := p.reader.ReadWithContext(ctx, path)
	if err != nil {
		return "", errors.Wrapf(err, "read vault secret %s", path)
	}
	if secret == nil || secret.Data == nil {
		return "", errors.Errorf("vault secret %s not found", path)
	}

	data := secret.Data
	if nested, ok := data["data"].(map[string]interface{}); ok {
		data = nested
	}
	value, ok := data[field]
	if !ok {
		return "", errors.Errorf("vault secret %s missing field %s", path, field)
	}
	return fmt.Sprint(value), nil
}
