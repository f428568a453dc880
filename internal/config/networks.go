package config

import (
	"fmt"
	"sort"
	"strings"
)

// NetworkConfig defines where a NEAR network's blocks come from and where its
// events go.
type NetworkConfig struct {
	Name string `yaml:"name" json:"name"`
	// StreamSuffix is appended to every output stream and the checkpoint key.
	StreamSuffix string `yaml:"stream_suffix" json:"stream_suffix"`
	NatsStream   string `yaml:"nats_stream" json:"nats_stream"`
	NatsSubject  string `yaml:"nats_subject" json:"nats_subject"`
}

// NetworkRegistry manages the supported networks.
type NetworkRegistry struct {
	Networks map[string]NetworkConfig `yaml:"networks" json:"networks"`
}

const (
	Mainnet = "mainnet"
	Testnet = "testnet"
)

// GetDefaultNetworkRegistry returns mainnet and testnet.
func GetDefaultNetworkRegistry() *NetworkRegistry {
	return &NetworkRegistry{
		Networks: map[string]NetworkConfig{
			Mainnet: {
				Name:        Mainnet,
				NatsStream:  "NEAR_MAINNET_BLOCKS",
				NatsSubject: "near.mainnet.blocks",
			},
			Testnet: {
				Name:         Testnet,
				StreamSuffix: "testnet",
				NatsStream:   "NEAR_TESTNET_BLOCKS",
				NatsSubject:  "near.testnet.blocks",
			},
		},
	}
}

// GetNetwork looks up a network by name, ignoring case.
func (nr *NetworkRegistry) GetNetwork(name string) (*NetworkConfig, error) {
	network, ok := nr.Networks[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown network %q, expected one of %s", name, strings.Join(nr.Names(), ", "))
	}
	return &network, nil
}

// Names returns the registered network names in sorted order.
func (nr *NetworkRegistry) Names() []string {
	names := make([]string, 0, len(nr.Networks))
	for name := range nr.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
