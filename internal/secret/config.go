package secret

import (
	"strings"

	"github.com/caesium-cloud/batch/pkg/env"
)

// Config selects the providers a Resolver is built with.
type Config struct {
	Env        bool
	Vault      *VaultConfig
	Kubernetes *KubernetesConfig
}

// ConfigFromEnvironment enables Vault when an address is set and Kubernetes
// when requested or when a kubeconfig is given.
func ConfigFromEnvironment(vars env.Environment) Config {
	cfg := Config{Env: vars.SecretsEnv}

	if strings.TrimSpace(vars.VaultAddress) != "" {
		cfg.Vault = &VaultConfig{
			Address:       vars.VaultAddress,
			Token:         vars.VaultToken,
			Namespace:     vars.VaultNamespace,
			CACertPath:    vars.VaultCACert,
			TLSSkipVerify: vars.VaultSkipVerify,
		}
	}

	if vars.SecretsKubernetes || strings.TrimSpace(vars.KubeConfig) != "" {
		cfg.Kubernetes = &KubernetesConfig{
			KubeConfigPath: vars.KubeConfig,
			Namespace:      vars.KubeNamespace,
		}
	}

	return cfg
}

// New builds a Resolver with the configured providers.
func New(cfg Config) (*Resolver, error) {
	r := NewResolver()

	if cfg.Env {
		r.Register(NewEnvProvider(), ProviderEnv)
	}
	if cfg.Vault != nil {
		p, err := NewVaultProvider(*cfg.Vault)
		if err != nil {
			return nil, err
		}
		r.Register(p, ProviderVault)
	}
	if cfg.Kubernetes != nil {
		r.Register(NewKubernetesProvider(*cfg.Kubernetes), ProviderKubernetes, "kubernetes")
	}

	return r, nil
}
