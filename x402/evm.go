package x402

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// evmNetwork describes the USDC deployment used on one EVM network.
type evmNetwork struct {
	asset      string
	decimals   int
	eip712Name string
	version    string
}

// evmNetworks maps supported network identifiers to their USDC contract.
var evmNetworks = map[string]evmNetwork{
	"base": {
		asset:      "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		decimals:   6,
		eip712Name: "USD Coin",
		version:    "2",
	},
	"base-sepolia": {
		asset:      "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		decimals:   6,
		eip712Name: "USDC",
		version:    "2",
	},
	"bsc": {
		asset:      "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d",
		decimals:   18,
		eip712Name: "USDC",
		version:    "2",
	},
	"bsc-testnet": {
		asset:      "0x64544969ed7EBf5f083679233325356EbE738930",
		decimals:   18,
		eip712Name: "USDC",
		version:    "2",
	},
}

// EVMRail charges USDC on an EVM network through the exact scheme.
type EVMRail struct {
	network     string
	payTo       string
	asset       evmNetwork
	facilitator FacilitatorClient
}

// NewEVMRail builds the EVM rail. The receiving wallet must be a valid hex
// address; it is normalized to its EIP-55 checksum form so the accepts
// entries and the facilitator always see the same spelling.
func NewEVMRail(network, payTo string, facilitator FacilitatorClient) (*EVMRail, error) {
	asset, ok := evmNetworks[network]
	if !ok {
		return nil, NewPaymentError(ErrCodeConfiguration,
			fmt.Sprintf("unsupported EVM network %q", network), nil)
	}
	payTo = strings.TrimSpace(payTo)
	if !common.IsHexAddress(payTo) {
		return nil, NewPaymentError(ErrCodeConfiguration,
			fmt.Sprintf("invalid EVM pay-to address %q", payTo), nil)
	}
	if facilitator == nil {
		return nil, NewPaymentError(ErrCodeConfiguration,
			"EVM rail requires a facilitator client", nil)
	}
	return &EVMRail{
		network:     network,
		payTo:       common.HexToAddress(payTo).Hex(),
		asset:       asset,
		facilitator: facilitator,
	}, nil
}

func (r *EVMRail) Scheme() string { return SchemeExact }

func (r *EVMRail) Network() string { return r.network }

func (r *EVMRail) Currency() string { return "USDC" }

// AtomicAmount converts a USD price to the token's smallest unit, rounding
// half up. $0.10 on a 6-decimal token is "100000".
func (r *EVMRail) AtomicAmount(usd float64) string {
	exp := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(r.asset.decimals)), nil)
	scaled := new(big.Float).SetPrec(256).SetFloat64(usd)
	scaled.Mul(scaled, new(big.Float).SetPrec(256).SetInt(exp))
	scaled.Add(scaled, big.NewFloat(0.5))
	atomic, _ := scaled.Int(nil)
	if atomic.Sign() < 0 {
		return "0"
	}
	return atomic.String()
}

// Requirement builds the exact-scheme accepts entry for one priced call.
func (r *EVMRail) Requirement(toolName, resource string, usd float64) PaymentRequirements {
	return PaymentRequirements{
		Scheme:            SchemeExact,
		Network:           r.network,
		MaxAmountRequired: r.AtomicAmount(usd),
		Resource:          resource,
		Description:       fmt.Sprintf("MCP Tool: %s", toolName),
		MimeType:          "application/json",
		PayTo:             r.payTo,
		MaxTimeoutSeconds: 60,
		Asset:             r.asset.asset,
		Extra: map[string]interface{}{
			"name":    r.asset.eip712Name,
			"version": r.asset.version,
		},
	}
}

func (r *EVMRail) Facilitator() FacilitatorClient { return r.facilitator }

// SupportedEVMNetworks lists the network identifiers the rail accepts.
func SupportedEVMNetworks() []string {
	names := make([]string, 0, len(evmNetworks))
	for name := range evmNetworks {
		names = append(names, name)
	}
	return names
}
