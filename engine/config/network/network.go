package network

import (
	"errors"
	"fmt"

	chainsel "github.com/smartcontractkit/chain-selectors"

	"github.com/timelock-labs/withdrawal-deployer/chain/evm/provider/rpcclient"
)

// NetworkType is either mainnet or testnet.
type NetworkType string

const (
	NetworkTypeMainnet NetworkType = "mainnet"
	NetworkTypeTestnet NetworkType = "testnet"
)

// Network is one chain the deployer can deploy to.
type Network struct {
	Type          NetworkType `yaml:"type"`
	ChainSelector uint64      `yaml:"chain_selector"`
	RPCs          []RPC       `yaml:"rpcs"`
}

// ChainFamily returns the family of the network based on its chain selector.
func (n *Network) ChainFamily() (string, error) {
	return chainsel.GetSelectorFamily(n.ChainSelector)
}

// ChainName returns the chain-selectors name of the network.
func (n *Network) ChainName() (string, error) {
	details, ok := chainsel.ChainBySelector(n.ChainSelector)
	if !ok {
		return "", fmt.Errorf("unknown chain selector %d", n.ChainSelector)
	}

	return details.Name, nil
}

// Validate ensures that all required fields are set and the chain is an EVM chain.
func (n *Network) Validate() error {
	if n.Type != NetworkTypeMainnet && n.Type != NetworkTypeTestnet {
		return fmt.Errorf("type must be %q or %q, got %q", NetworkTypeMainnet, NetworkTypeTestnet, n.Type)
	}

	if n.ChainSelector == 0 {
		return errors.New("chain selector is required")
	}

	family, err := n.ChainFamily()
	if err != nil {
		return err
	}
	if family != chainsel.FamilyEVM {
		return fmt.Errorf("unsupported chain family %q", family)
	}

	if len(n.RPCs) == 0 {
		return errors.New("at least one RPC is required")
	}

	for i, rpc := range n.RPCs {
		if _, err := rpc.ToRPC(); err != nil {
			return fmt.Errorf("rpc %d: %w", i, err)
		}
	}

	return nil
}

// RPCConfig converts the network to the multi-client configuration.
func (n *Network) RPCConfig() (rpcclient.RPCConfig, error) {
	rpcs := make([]rpcclient.RPC, 0, len(n.RPCs))
	for _, r := range n.RPCs {
		rpc, err := r.ToRPC()
		if err != nil {
			return rpcclient.RPCConfig{}, err
		}
		rpcs = append(rpcs, rpc)
	}

	return rpcclient.RPCConfig{ChainSelector: n.ChainSelector, RPCs: rpcs}, nil
}

// RPC is an endpoint of a network.
type RPC struct {
	RPCName            string `yaml:"rpc_name"`
	PreferredURLScheme string `yaml:"preferred_url_scheme"`
	HTTPURL            string `yaml:"http_url"`
	WSURL              string `yaml:"ws_url"`
}

// ToRPC converts the manifest entry to an rpcclient.RPC.
func (r RPC) ToRPC() (rpcclient.RPC, error) {
	scheme, err := rpcclient.URLSchemePreferenceFromString(r.PreferredURLScheme)
	if err != nil {
		return rpcclient.RPC{}, err
	}

	rpc := rpcclient.RPC{
		Name:               r.RPCName,
		WSURL:              r.WSURL,
		HTTPURL:            r.HTTPURL,
		PreferredURLScheme: scheme,
	}
	if _, err = rpc.ToEndpoint(); err != nil {
		return rpcclient.RPC{}, err
	}

	return rpc, nil
}
