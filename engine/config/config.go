// Package config loads the deployer's secrets and settings from an optional YAML file and the
// environment, and the deployment parameters from TOML.
package config

import (
	"errors"
	"io/fs"
	"os"
	"slices"

	"github.com/spf13/viper"
)

// KMSConfig is the configuration for signing with an AWS KMS key.
//
// WARNING: This data type contains sensitive fields and should not be logged.
type KMSConfig struct {
	KeyID      string `mapstructure:"key_id" yaml:"key_id"`           // Secret: AWS KMS Key ID
	KeyRegion  string `mapstructure:"key_region" yaml:"key_region"`   // Secret: AWS KMS Key Region (e.g. us-west-1)
	AWSProfile string `mapstructure:"aws_profile" yaml:"aws_profile"` // AWS shared config profile, optional
}

// EVMConfig is the configuration of the deployer account.
//
// WARNING: This data type contains sensitive fields and should not be logged.
type EVMConfig struct {
	DeployerKey string `mapstructure:"deployer_key" yaml:"deployer_key"` // Secret: hex private key of the deployer. Prefer KMS keys.
}

// OnchainConfig wraps the onchain signing configuration.
type OnchainConfig struct {
	KMS KMSConfig `mapstructure:"kms" yaml:"kms"`
	EVM EVMConfig `mapstructure:"evm" yaml:"evm"`
}

// DatastoreConfig configures where deployed addresses are recorded.
type DatastoreConfig struct {
	URL string `mapstructure:"url" yaml:"url"` // Secret: Postgres connection URL. Empty uses the JSON address book.
}

// Config wraps the entire configuration of the deployer.
type Config struct {
	Onchain   OnchainConfig   `mapstructure:"onchain" yaml:"onchain"`
	Datastore DatastoreConfig `mapstructure:"datastore" yaml:"datastore"`
}

// UseKMS reports whether a KMS key is configured for signing.
func (c *Config) UseKMS() bool {
	return c.Onchain.KMS.KeyID != "" && c.Onchain.KMS.KeyRegion != ""
}

// Load loads the config from the file path, falling back to env vars if the path is empty or the
// file does not exist. Env vars that are set override values from the file.
func Load(filePath string) (*Config, error) {
	v := viper.New()

	if err := bindEnvs(v); err != nil {
		return nil, err
	}

	if filePath != "" {
		if _, err := os.Stat(filePath); !errors.Is(err, fs.ErrNotExist) {
			v.SetConfigFile(filePath)
			if err = v.ReadInConfig(); err != nil {
				return nil, err
			}
		}
	}

	cfg := &Config{}
	err := v.Unmarshal(cfg)

	return cfg, err
}

// envBindings maps config keys to the env vars that can set them. The first name is preferred,
// the rest are legacy names checked in order.
var envBindings = map[string][]string{
	"onchain.kms.key_id":       {"ONCHAIN_KMS_KEY_ID", "KMS_DEPLOYER_KEY_ID"},
	"onchain.kms.key_region":   {"ONCHAIN_KMS_KEY_REGION", "KMS_DEPLOYER_KEY_REGION"},
	"onchain.kms.aws_profile":  {"ONCHAIN_KMS_AWS_PROFILE", "AWS_PROFILE"},
	"onchain.evm.deployer_key": {"ONCHAIN_EVM_DEPLOYER_KEY", "PRIVATE_KEY"},
	"datastore.url":            {"DATASTORE_URL"},
}

func bindEnvs(v *viper.Viper) error {
	for key, envs := range envBindings {
		inputs := slices.Insert(slices.Clone(envs), 0, key)

		if err := v.BindEnv(inputs...); err != nil {
			return err
		}
	}

	return nil
}
