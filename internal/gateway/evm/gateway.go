// Package evm implements gateway.Gateway for EVM networks with go-ethereum.
//
// Each Gateway is bound to one network: it verifies the RPC endpoint's chain
// id on open, signs with one key, and waits for every transaction to be mined.
// A transaction that was sent but whose receipt could not be observed is
// reported as gateway.ErrConfirmationUnknown with its hash.
package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/zjrosen/linkctl/internal/gateway"
	"github.com/zjrosen/linkctl/internal/log"
	"github.com/zjrosen/linkctl/internal/registry/domain"
)

// ErrReverted is returned when a mined transaction has a failed status.
var ErrReverted = errors.New("transaction reverted")

// ErrChainMismatch is returned when the endpoint serves a different chain.
var ErrChainMismatch = errors.New("rpc endpoint chain id mismatch")

// Backend is the client surface the gateway needs. *ethclient.Client and the
// simulated backend's client satisfy it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

// Config describes one network connection.
type Config struct {
	Network domain.NetworkID
	RPCURL  string
	// PrivateKey is a hex-encoded secp256k1 key, with or without 0x.
	PrivateKey string
	// GasPrice forces a legacy gas price in wei. Nil lets the node suggest fees.
	GasPrice *big.Int
	// GasLimit is used when a request does not carry one. Zero means estimate.
	GasLimit uint64
}

// Gateway submits transactions to one EVM network.
type Gateway struct {
	network   domain.NetworkID
	backend   Backend
	key       *ecdsa.PrivateKey
	chainID   *big.Int
	gasPrice  *big.Int
	gasLimit  uint64
	artifacts *ArtifactStore
}

// Ensure Gateway implements gateway.Gateway.
var _ gateway.Gateway = (*Gateway)(nil)

// Dial connects to cfg.RPCURL and returns a gateway for cfg.Network.
func Dial(ctx context.Context, cfg Config, artifacts *ArtifactStore) (*Gateway, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("network %s: no rpc url configured", cfg.Network)
	}
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("network %s: dialing rpc: %w", cfg.Network, err)
	}
	gw, err := New(ctx, client, cfg, artifacts)
	if err != nil {
		client.Close()
		return nil, err
	}
	return gw, nil
}

// New wraps an existing backend. The backend's chain id must equal cfg.Network.
func New(ctx context.Context, backend Backend, cfg Config, artifacts *ArtifactStore) (*Gateway, error) {
	key, err := ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("network %s: %w", cfg.Network, err)
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("network %s: reading chain id: %w", cfg.Network, err)
	}
	if !chainID.IsUint64() || chainID.Uint64() != uint64(cfg.Network) {
		return nil, fmt.Errorf("%w: configured %s, endpoint reports %s", ErrChainMismatch, cfg.Network, chainID)
	}
	log.Debug(log.CatGateway, "gateway opened",
		"network", cfg.Network,
		"from", crypto.PubkeyToAddress(key.PublicKey).Hex())
	return &Gateway{
		network:   cfg.Network,
		backend:   backend,
		key:       key,
		chainID:   chainID,
		gasPrice:  cfg.GasPrice,
		gasLimit:  cfg.GasLimit,
		artifacts: artifacts,
	}, nil
}

// ParsePrivateKey decodes a hex private key.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, errors.New("no signing key configured")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid signing key: %w", err)
	}
	return key, nil
}

// From returns the signing address.
func (g *Gateway) From() common.Address {
	return crypto.PubkeyToAddress(g.key.PublicKey)
}

// Deploy creates req.EntityType with req.Args as constructor arguments.
func (g *Gateway) Deploy(ctx context.Context, req gateway.DeployRequest) (gateway.Deployment, error) {
	if err := g.checkNetwork(req.Network); err != nil {
		return gateway.Deployment{}, err
	}
	art, err := g.artifacts.Load(ctx, req.EntityType)
	if err != nil {
		return gateway.Deployment{}, err
	}
	if len(art.Bytecode) == 0 {
		return gateway.Deployment{}, fmt.Errorf("artifact %s has no bytecode", req.EntityType)
	}
	args, err := CoerceArgs(art.ABI.Constructor.Inputs, req.Args)
	if err != nil {
		return gateway.Deployment{}, fmt.Errorf("constructor of %s: %w", req.EntityType, err)
	}
	opts, err := g.transactOpts(ctx, req.GasLimit)
	if err != nil {
		return gateway.Deployment{}, err
	}

	addr, tx, _, err := bind.DeployContract(opts, art.ABI, art.Bytecode, g.backend, args...)
	if err != nil {
		return gateway.Deployment{}, fmt.Errorf("submitting deploy of %s: %w", req.EntityType, err)
	}
	if _, err := g.wait(ctx, tx); err != nil {
		var unknown *gateway.ConfirmationUnknownError
		if errors.As(err, &unknown) {
			unknown.Address = addr.Hex()
		}
		return gateway.Deployment{}, err
	}
	return gateway.Deployment{Address: addr.Hex(), TxHash: tx.Hash().Hex()}, nil
}

// Call sends req.Method on req.Address using the ABI of req.Contract.
func (g *Gateway) Call(ctx context.Context, req gateway.CallRequest) (gateway.Receipt, error) {
	if err := g.checkNetwork(req.Network); err != nil {
		return gateway.Receipt{}, err
	}
	if !common.IsHexAddress(req.Address) {
		return gateway.Receipt{}, fmt.Errorf("call %s: %q is not an address", req.Method, req.Address)
	}
	art, err := g.artifacts.Load(ctx, req.Contract)
	if err != nil {
		return gateway.Receipt{}, err
	}
	method, ok := art.ABI.Methods[req.Method]
	if !ok {
		return gateway.Receipt{}, fmt.Errorf("contract %s has no method %s", req.Contract, req.Method)
	}
	args, err := CoerceArgs(method.Inputs, req.Args)
	if err != nil {
		return gateway.Receipt{}, fmt.Errorf("call %s: %w", req.Method, err)
	}
	opts, err := g.transactOpts(ctx, req.GasLimit)
	if err != nil {
		return gateway.Receipt{}, err
	}

	contract := bind.NewBoundContract(common.HexToAddress(req.Address), art.ABI, g.backend, g.backend, g.backend)
	tx, err := contract.Transact(opts, req.Method, args...)
	if err != nil {
		return gateway.Receipt{}, fmt.Errorf("submitting %s: %w", req.Method, err)
	}
	if _, err := g.wait(ctx, tx); err != nil {
		return gateway.Receipt{}, err
	}
	return gateway.Receipt{TxHash: tx.Hash().Hex()}, nil
}

func (g *Gateway) checkNetwork(id domain.NetworkID) error {
	if id != 0 && id != g.network {
		return fmt.Errorf("gateway for network %s cannot serve network %s", g.network, id)
	}
	return nil
}

func (g *Gateway) transactOpts(ctx context.Context, gasLimit uint64) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(g.key, g.chainID)
	if err != nil {
		return nil, fmt.Errorf("creating transactor: %w", err)
	}
	opts.Context = ctx
	opts.GasLimit = gasLimit
	if opts.GasLimit == 0 {
		opts.GasLimit = g.gasLimit
	}
	if g.gasPrice != nil {
		opts.GasPrice = new(big.Int).Set(g.gasPrice)
	}
	return opts, nil
}

// wait blocks until tx is mined. Once a transaction is sent, any failure to
// observe its receipt is reported as unknown confirmation, never as failure.
func (g *Gateway) wait(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	log.Debug(log.CatGateway, "waiting for transaction", "network", g.network, "tx", tx.Hash().Hex())
	receipt, err := bind.WaitMined(ctx, g.backend, tx)
	if err != nil {
		return nil, &gateway.ConfirmationUnknownError{TxHash: tx.Hash().Hex(), Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: tx %s in block %s", ErrReverted, tx.Hash().Hex(), receipt.BlockNumber)
	}
	return receipt, nil
}
