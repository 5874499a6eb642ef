package filestore

import (
	"encoding/json"
	"fmt"

	"github.com/zjrosen/linkctl/internal/registry/domain"
)

// legacyRecord is one entry of the deployments.json files produced by the
// earlier hardhat tooling.
type legacyRecord struct {
	Handler        string        `json:"handler"`
	Linker         string        `json:"linker"`
	FeeToken       string        `json:"feeToken"`
	FeeTokenForNFT string        `json:"feeTokenForNFT"`
	FeeForNFT      domain.Scalar `json:"feeForNFT"`
	CrossChainGas  domain.Scalar `json:"crossChainGas"`
	ContractAdd    string        `json:"ContractAdd"`
	RouterChainID  domain.Scalar `json:"routerChainId"`
}

// DecodeLegacy converts a legacy deployments.json document into records.
// The legacy format has no routing id unless a routerChainId key was added by
// hand; such records need routingId filled in before mapping.
func DecodeLegacy(data []byte) (map[domain.NetworkID]domain.Record, error) {
	var raw map[string]legacyRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing legacy deployments: %w", err)
	}

	out := make(map[domain.NetworkID]domain.Record, len(raw))
	for key, lr := range raw {
		id, err := domain.ParseNetworkID(key)
		if err != nil {
			return nil, fmt.Errorf("legacy deployments: %w", err)
		}
		out[id] = domain.Record{
			RoutingID:          lr.RouterChainID,
			HandlerAddress:     lr.Handler,
			LinkerAddress:      lr.Linker,
			FeeTokenAddress:    lr.FeeToken,
			NFTFeeTokenAddress: lr.FeeTokenForNFT,
			NFTFeeAmount:       lr.FeeForNFT,
			CrossChainGasLimit: lr.CrossChainGas,
			EntityAddress:      lr.ContractAdd,
		}
	}
	return out, nil
}
