package config

import (
	"fmt"

	"github.com/mlnlabs/mln/identity"
)

// Features is the genesis-declared capability surface of the chain. It is
// resolved into Capabilities exactly once at startup, so the behavior set of
// a running node is a single inspectable value.
type Features struct {
	TokenCommands bool     `yaml:"token_commands"`
	Multisig      bool     `yaml:"multisig"`
	KVStore       bool     `yaml:"kvstore"`
	AllowAddrs    []string `yaml:"allow_addrs"`
}

// Capabilities is the resolved form of Features.
type Capabilities struct {
	TokenCommands bool
	Multisig      bool
	KVStore       bool
	allowed       map[identity.Address]bool
}

// Resolve parses the allowlist and fixes the capability set.
func (f Features) Resolve() (*Capabilities, error) {
	caps := &Capabilities{
		TokenCommands: f.TokenCommands,
		Multisig:      f.Multisig,
		KVStore:       f.KVStore,
	}
	if len(f.AllowAddrs) > 0 {
		caps.allowed = make(map[identity.Address]bool, len(f.AllowAddrs))
		for _, text := range f.AllowAddrs {
			addr, err := identity.FromText(text)
			if err != nil {
				return nil, fmt.Errorf("allow_addrs entry %q: %w", text, err)
			}
			caps.allowed[addr] = true
		}
	}
	return caps, nil
}

// DefaultCapabilities enables every command family with no allowlist, the
// configuration used by tests and single-operator chains.
func DefaultCapabilities() *Capabilities {
	return &Capabilities{TokenCommands: true, Multisig: true, KVStore: true}
}

// CallerAllowed reports whether addr may submit commands. An empty allowlist
// admits everyone.
func (c *Capabilities) CallerAllowed(addr identity.Address) bool {
	if c.allowed == nil {
		return true
	}
	return c.allowed[addr]
}
