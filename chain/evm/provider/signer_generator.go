package provider

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignerGenerator produces the *bind.TransactOpts used to sign transactions for a chain ID, and
// signs arbitrary hashes with the same key.
type SignerGenerator interface {
	Generate(chainID *big.Int) (*bind.TransactOpts, error)
	SignHash(hash []byte) ([]byte, error)
}

var (
	_ SignerGenerator = (*keyedSigner)(nil)
	_ SignerGenerator = (*kmsSignerGenerator)(nil)
)

// GeneratorOptions configures the transactors produced by a SignerGenerator.
type GeneratorOptions struct {
	gasLimit uint64
}

// GeneratorOption modifies GeneratorOptions.
type GeneratorOption func(*GeneratorOptions)

// WithGasLimit pins the gas limit of every transaction instead of estimating it.
func WithGasLimit(gasLimit uint64) GeneratorOption {
	return func(opts *GeneratorOptions) {
		opts.gasLimit = gasLimit
	}
}

// TransactorFromRaw returns a generator which signs with a hex encoded private key. A leading 0x
// is accepted.
func TransactorFromRaw(privKey string, opts ...GeneratorOption) SignerGenerator {
	o := GeneratorOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	return &keyedSigner{
		opts: o,
		loadKey: func() (*ecdsa.PrivateKey, error) {
			key, err := crypto.HexToECDSA(strings.TrimPrefix(privKey, "0x"))
			if err != nil {
				return nil, fmt.Errorf("failed to convert private key to ECDSA: %w", err)
			}

			return key, nil
		},
	}
}

// TransactorRandom returns a generator backed by a freshly generated key. The key is created on
// first use and reused afterwards.
func TransactorRandom(opts ...GeneratorOption) SignerGenerator {
	o := GeneratorOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	return &keyedSigner{
		opts: o,
		loadKey: func() (*ecdsa.PrivateKey, error) {
			key, err := crypto.GenerateKey()
			if err != nil {
				return nil, fmt.Errorf("failed to generate random private key: %w", err)
			}

			return key, nil
		},
	}
}

// keyedSigner signs with a local ECDSA key that is loaded once.
type keyedSigner struct {
	opts    GeneratorOptions
	loadKey func() (*ecdsa.PrivateKey, error)

	once sync.Once
	key  *ecdsa.PrivateKey
	err  error
}

func (g *keyedSigner) privateKey() (*ecdsa.PrivateKey, error) {
	g.once.Do(func() {
		g.key, g.err = g.loadKey()
	})

	return g.key, g.err
}

// Generate implements SignerGenerator.
func (g *keyedSigner) Generate(chainID *big.Int) (*bind.TransactOpts, error) {
	key, err := g.privateKey()
	if err != nil {
		return nil, err
	}

	transactor, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, err
	}
	if g.opts.gasLimit > 0 {
		transactor.GasLimit = g.opts.gasLimit
	}

	return transactor, nil
}

// SignHash implements SignerGenerator.
func (g *keyedSigner) SignHash(hash []byte) ([]byte, error) {
	key, err := g.privateKey()
	if err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign hash: %w", err)
	}

	return sig, nil
}

// TransactorFromKMS returns a generator which signs with an AWS KMS key. An empty awsProfileName
// falls back to the AWS environment variables.
func TransactorFromKMS(keyID, keyRegion, awsProfileName string, opts ...GeneratorOption) (SignerGenerator, error) {
	signer, err := NewKMSSigner(keyID, keyRegion, awsProfileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create KMS signer: %w", err)
	}

	return TransactorFromKMSSigner(signer, opts...), nil
}

// TransactorFromKMSSigner wraps an existing KMSSigner.
func TransactorFromKMSSigner(signer *KMSSigner, opts ...GeneratorOption) SignerGenerator {
	o := GeneratorOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	return &kmsSignerGenerator{signer: signer, opts: o}
}

type kmsSignerGenerator struct {
	signer *KMSSigner
	opts   GeneratorOptions
}

// Generate implements SignerGenerator.
func (g *kmsSignerGenerator) Generate(chainID *big.Int) (*bind.TransactOpts, error) {
	transactor, err := g.signer.GetTransactOpts(context.Background(), chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transact opts from KMS signer: %w", err)
	}
	if g.opts.gasLimit > 0 {
		transactor.GasLimit = g.opts.gasLimit
	}

	return transactor, nil
}

// SignHash implements SignerGenerator.
func (g *kmsSignerGenerator) SignHash(hash []byte) ([]byte, error) {
	return g.signer.SignHash(hash)
}
