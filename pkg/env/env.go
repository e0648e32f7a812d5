package env

import (
	"time"

	"github.com/caesium-cloud/batch/pkg/log"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

var variables = new(Environment)

// Process the environment variables set for batch.
func Process() error {
	if err := envconfig.Process("batch", variables); err != nil {
		return errors.Wrap(err, "failed to process environment variables")
	}

	// set the log level
	if err := log.SetLevel(variables.LogLevel); err != nil {
		return errors.Wrap(err, "failed to set log level")
	}

	return nil
}

// Variables returns the processed environment variables.
func Variables() Environment {
	return *variables
}

// Environment defines the environment variables used
// by batch.
type Environment struct {
	LogLevel         string        `default:"info" split_words:"true"`
	Port             int           `default:"8080"`
	DatabaseType     string        `default:"sqlite" split_words:"true"`
	DatabaseDSN      string        `default:"file:batch.db?_foreign_keys=on" split_words:"true"`
	RetryBackoff     time.Duration `default:"0s" split_words:"true"`
	RetryBackoffMax  time.Duration `default:"1m" split_words:"true"`
	HistoryRetention time.Duration `default:"720h" split_words:"true"`

	SecretsEnv        bool   `default:"true" split_words:"true"`
	SecretsKubernetes bool   `default:"false" split_words:"true"`
	KubeConfig        string `split_words:"true"`
	KubeNamespace     string `default:"default" split_words:"true"`
	VaultAddress      string `split_words:"true"`
	VaultToken        string `split_words:"true"`
	VaultNamespace    string `split_words:"true"`
	VaultCACert       string `envconfig:"VAULT_CA_CERT"`
	VaultSkipVerify   bool   `default:"false" split_words:"true"`
}
