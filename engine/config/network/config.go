// Package network loads the YAML manifest describing the networks the deployer can reach.
package network

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/timelock-labs/withdrawal-deployer/chain/evm"
)

// Manifest is the YAML representation of network configuration.
type Manifest struct {
	Networks []Network `yaml:"networks"`
}

// Config is a collection of networks keyed by chain selector.
type Config struct {
	networks map[uint64]Network
}

// NewConfig creates a config from networks. A later network replaces an earlier one with the same
// chain selector.
func NewConfig(networks []Network) *Config {
	nmap := make(map[uint64]Network, len(networks))
	for _, network := range networks {
		nmap[network.ChainSelector] = network
	}

	return &Config{networks: nmap}
}

// Validate ensures that all networks are valid.
func (c *Config) Validate() error {
	for _, network := range c.Networks() {
		if err := network.Validate(); err != nil {
			return fmt.Errorf("network %d: %w", network.ChainSelector, err)
		}
	}

	return nil
}

// Networks returns all networks sorted by chain selector.
func (c *Config) Networks() []Network {
	networks := slices.Collect(maps.Values(c.networks))
	slices.SortFunc(networks, func(a, b Network) int {
		switch {
		case a.ChainSelector < b.ChainSelector:
			return -1
		case a.ChainSelector > b.ChainSelector:
			return 1
		default:
			return 0
		}
	})

	return networks
}

// NetworkBySelector returns the network with the chain selector.
func (c *Config) NetworkBySelector(selector uint64) (Network, error) {
	network, ok := c.networks[selector]
	if !ok {
		return Network{}, fmt.Errorf("network with selector %d not found in configuration", selector)
	}

	return network, nil
}

// Lookup finds a network by chain-selectors name (e.g. ethereum-testnet-sepolia) or by selector.
func (c *Config) Lookup(nameOrSelector string) (Network, error) {
	if selector, err := strconv.ParseUint(nameOrSelector, 10, 64); err == nil {
		return c.NetworkBySelector(selector)
	}

	selector, err := evm.SelectorFromName(nameOrSelector)
	if err != nil {
		return Network{}, err
	}

	return c.NetworkBySelector(selector)
}

// Merge copies the networks of other into c, replacing networks with the same chain selector.
func (c *Config) Merge(other *Config) {
	maps.Copy(c.networks, other.networks)
}

// MarshalYAML implements yaml.Marshaler.
func (c *Config) MarshalYAML() (any, error) {
	return Manifest{Networks: c.Networks()}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	node := Manifest{}
	if err := value.Decode(&node); err != nil {
		return err
	}

	*c = *NewConfig(node.Networks)

	return nil
}

// URLTransformer rewrites an RPC URL after loading.
type URLTransformer func(string) string

// LoadOption modifies how manifests are loaded.
type LoadOption func(*loadConfig)

type loadConfig struct {
	urlTransformer URLTransformer
}

// WithURLTransformer rewrites the HTTP and WS URLs of every RPC, e.g. with os.ExpandEnv to fill
// in API keys.
func WithURLTransformer(t URLTransformer) LoadOption {
	return func(c *loadConfig) {
		c.urlTransformer = t
	}
}

// Load reads and merges the manifests at filePaths and validates the result.
func Load(filePaths []string, opts ...LoadOption) (*Config, error) {
	loadCfg := &loadConfig{}
	for _, opt := range opts {
		opt(loadCfg)
	}

	cfg := NewConfig(nil)
	for _, fp := range filePaths {
		data, err := os.ReadFile(fp)
		if err != nil {
			return nil, fmt.Errorf("failed to read networks file: %w", err)
		}

		var fileCfg Config
		if err = yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal networks YAML: %w", err)
		}

		cfg.Merge(&fileCfg)
	}

	if loadCfg.urlTransformer != nil {
		for k, n := range cfg.networks {
			for i, rpc := range n.RPCs {
				rpc.HTTPURL = loadCfg.urlTransformer(rpc.HTTPURL)
				rpc.WSURL = loadCfg.urlTransformer(rpc.WSURL)
				n.RPCs[i] = rpc
			}
			cfg.networks[k] = n
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate networks configuration: %w", err)
	}

	return cfg, nil
}
