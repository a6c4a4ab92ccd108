package registry

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Contract names used as keys in a deployment.
const (
	ContentFactory   = "ContentFactory"
	ContentToken     = "ContentToken"
	LiquidityManager = "LiquidityManager"
	ReferralSystem   = "ReferralSystem"
	SwapHandler      = "SwapHandler"
	UniswapV3Pool    = "UniswapV3Pool"
)

var (
	ErrUnknownContract = errors.New("contract not registered")
	ErrUnknownNetwork  = errors.New("network not registered")
	ErrInvalidRegistry = errors.New("invalid registry")
)

//go:embed registry.yaml abi/*.json
var embedded embed.FS

// Network identifies an EVM chain the backend can talk to.
type Network struct {
	ChainID     uint64 `yaml:"chainId"`
	Name        string `yaml:"name"`
	RPCURL      string `yaml:"rpcUrl"`
	ExplorerURL string `yaml:"explorerUrl"`
}

// Contract is a deployed (or ABI-only) contract. Address is zero for ABI-only entries.
type Contract struct {
	Name    string
	Address common.Address
	ABI     abi.ABI
}

func (c Contract) HasAddress() bool {
	return c.Address != (common.Address{})
}

// Deployment is the set of contracts registered on one chain.
type Deployment struct {
	ChainID   uint64
	contracts map[string]Contract
}

func (d *Deployment) Contract(name string) (Contract, error) {
	c, ok := d.contracts[name]
	if !ok {
		return Contract{}, fmt.Errorf("%w: %s on chain %d", ErrUnknownContract, name, d.ChainID)
	}
	return c, nil
}

// MustContract panics when name is missing. Only for contracts Validate guarantees.
func (d *Deployment) MustContract(name string) Contract {
	c, err := d.Contract(name)
	if err != nil {
		panic(err)
	}
	return c
}

func (d *Deployment) Has(name string) bool {
	_, ok := d.contracts[name]
	return ok
}

// Names returns the registered contract names in sorted order.
func (d *Deployment) Names() []string {
	names := make([]string, 0, len(d.contracts))
	for name := range d.contracts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registry is the immutable chain ID -> network/deployment table.
// Lookups for an unknown chain resolve to the fallback chain.
type Registry struct {
	fallbackChainID uint64
	networks        map[uint64]Network
	deployments     map[uint64]*Deployment
}

func (r *Registry) FallbackChainID() uint64 {
	return r.fallbackChainID
}

// Network returns the network for chainID, or the fallback network.
func (r *Registry) Network(chainID uint64) Network {
	if n, ok := r.networks[chainID]; ok {
		return n
	}
	return r.networks[r.fallbackChainID]
}

// LookupNetwork returns the network for chainID without falling back.
func (r *Registry) LookupNetwork(chainID uint64) (Network, error) {
	n, ok := r.networks[chainID]
	if !ok {
		return Network{}, fmt.Errorf("%w: chain %d", ErrUnknownNetwork, chainID)
	}
	return n, nil
}

// Deployment returns the contracts for chainID, or the fallback chain's contracts.
func (r *Registry) Deployment(chainID uint64) *Deployment {
	if d, ok := r.deployments[chainID]; ok {
		return d
	}
	return r.deployments[r.fallbackChainID]
}

type fileContract struct {
	Address string `yaml:"address"`
	ABI     string `yaml:"abi"`
}

type fileFormat struct {
	FallbackChainID uint64                             `yaml:"fallbackChainId"`
	Networks        []Network                          `yaml:"networks"`
	Deployments     map[uint64]map[string]fileContract `yaml:"deployments"`
}

// Load parses the embedded registry.
func Load() (*Registry, error) {
	data, err := embedded.ReadFile("registry.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded registry: %w", err)
	}
	return Parse(data)
}

// LoadFile parses a registry YAML file from disk. ABI names still resolve against the embedded ABIs.
func LoadFile(filename string) (*Registry, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file %s: %w", filename, err)
	}
	return Parse(data)
}

// Parse builds and validates a registry from YAML.
func Parse(data []byte) (*Registry, error) {
	var f fileFormat
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegistry, err)
	}

	r := &Registry{
		fallbackChainID: f.FallbackChainID,
		networks:        make(map[uint64]Network, len(f.Networks)),
		deployments:     make(map[uint64]*Deployment, len(f.Deployments)),
	}

	for _, n := range f.Networks {
		if _, dup := r.networks[n.ChainID]; dup {
			return nil, fmt.Errorf("%w: duplicate network %d", ErrInvalidRegistry, n.ChainID)
		}
		r.networks[n.ChainID] = n
	}

	abiCache := make(map[string]abi.ABI)
	for chainID, contracts := range f.Deployments {
		d := &Deployment{ChainID: chainID, contracts: make(map[string]Contract, len(contracts))}
		for name, fc := range contracts {
			parsed, ok := abiCache[fc.ABI]
			if !ok {
				var err error
				parsed, err = loadABI(fc.ABI)
				if err != nil {
					return nil, fmt.Errorf("%w: %s on chain %d: %v", ErrInvalidRegistry, name, chainID, err)
				}
				abiCache[fc.ABI] = parsed
			}

			c := Contract{Name: name, ABI: parsed}
			if fc.Address != "" {
				if !common.IsHexAddress(fc.Address) {
					return nil, fmt.Errorf("%w: %s on chain %d has invalid address %q", ErrInvalidRegistry, name, chainID, fc.Address)
				}
				c.Address = common.HexToAddress(fc.Address)
			}
			d.contracts[name] = c
		}
		r.deployments[chainID] = d
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the fallback chain is complete enough to serve every gateway.
func (r *Registry) Validate() error {
	if _, ok := r.networks[r.fallbackChainID]; !ok {
		return fmt.Errorf("%w: fallback chain %d has no network", ErrInvalidRegistry, r.fallbackChainID)
	}
	if _, ok := r.deployments[r.fallbackChainID]; !ok {
		return fmt.Errorf("%w: fallback chain %d has no deployment", ErrInvalidRegistry, r.fallbackChainID)
	}

	for chainID, d := range r.deployments {
		if _, ok := r.networks[chainID]; !ok {
			return fmt.Errorf("%w: deployment for unknown network %d", ErrInvalidRegistry, chainID)
		}
		for _, name := range []string{ContentFactory, LiquidityManager} {
			c, err := d.Contract(name)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidRegistry, err)
			}
			if !c.HasAddress() {
				return fmt.Errorf("%w: %s on chain %d has no address", ErrInvalidRegistry, name, chainID)
			}
		}
		for _, name := range []string{ContentToken, UniswapV3Pool} {
			if !d.Has(name) {
				return fmt.Errorf("%w: %s ABI missing on chain %d", ErrInvalidRegistry, name, chainID)
			}
		}
	}

	return nil
}

func loadABI(name string) (abi.ABI, error) {
	if name == "" {
		return abi.ABI{}, errors.New("abi name is empty")
	}
	raw, err := embedded.ReadFile(path.Join("abi", name+".json"))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("unknown abi %q: %w", name, err)
	}
	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse abi %q: %w", name, err)
	}
	return parsed, nil
}

// NewForTest builds a registry directly from contracts, for tests in other packages.
func NewForTest(network Network, contracts ...Contract) *Registry {
	d := &Deployment{ChainID: network.ChainID, contracts: make(map[string]Contract, len(contracts))}
	for _, c := range contracts {
		d.contracts[c.Name] = c
	}
	return &Registry{
		fallbackChainID: network.ChainID,
		networks:        map[uint64]Network{network.ChainID: network},
		deployments:     map[uint64]*Deployment{network.ChainID: d},
	}
}

// ABI returns one of the embedded ABIs by name.
func ABI(name string) (abi.ABI, error) {
	return loadABI(name)
}
