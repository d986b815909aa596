package provider

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	kmslib "github.com/aws/aws-sdk-go/service/kms"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/timelock-labs/withdrawal-deployer/chain/internal/kms"
)

var (
	secp256k1N     = crypto.S256().Params().N
	secp256k1HalfN = new(big.Int).Div(secp256k1N, big.NewInt(2))
)

// KMSSigner signs EVM transactions and hashes with an AWS KMS secp256k1 key.
type KMSSigner struct {
	client   kms.Client
	kmsKeyID string

	mu     sync.Mutex
	pubKey *ecdsa.PublicKey
}

// NewKMSSigner creates a KMSSigner for the key. An empty awsProfile uses the default AWS
// credential chain.
func NewKMSSigner(keyID, keyRegion, awsProfile string) (*KMSSigner, error) {
	client, err := kms.NewClient(kms.ClientConfig{
		KeyID:      keyID,
		KeyRegion:  keyRegion,
		AWSProfile: awsProfile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize KMS Client: %w", err)
	}

	return &KMSSigner{
		client:   client,
		kmsKeyID: keyID,
	}, nil
}

// GetECDSAPublicKey fetches the public key from KMS once and caches it.
func (s *KMSSigner) GetECDSAPublicKey() (*ecdsa.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pubKey != nil {
		return s.pubKey, nil
	}

	out, err := s.client.GetPublicKey(&kmslib.GetPublicKeyInput{
		KeyId: aws.String(s.kmsKeyID),
	})
	if err != nil {
		return nil, fmt.Errorf("cannot get public key from KMS for KeyId=%s: %w", s.kmsKeyID, err)
	}

	var spki kms.SPKI
	if _, err = asn1.Unmarshal(out.PublicKey, &spki); err != nil {
		return nil, fmt.Errorf("cannot parse asn1 public key for KeyId=%s: %w", s.kmsKeyID, err)
	}

	pubKey, err := crypto.UnmarshalPubkey(spki.SubjectPublicKey.Bytes)
	if err != nil {
		return nil, fmt.Errorf("cannot unmarshal public key bytes: %w", err)
	}
	s.pubKey = pubKey

	return pubKey, nil
}

// GetAddress returns the EVM address of the KMS key.
func (s *KMSSigner) GetAddress() (common.Address, error) {
	pubKey, err := s.GetECDSAPublicKey()
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to get public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pubKey), nil
}

// GetTransactOpts returns transact options whose signer delegates to KMS.
func (s *KMSSigner) GetTransactOpts(ctx context.Context, chainID *big.Int) (*bind.TransactOpts, error) {
	if chainID == nil {
		return nil, errors.New("chainID is required")
	}

	pubKey, err := s.GetECDSAPublicKey()
	if err != nil {
		return nil, err
	}

	from := crypto.PubkeyToAddress(*pubKey)
	signer := types.LatestSignerForChainID(chainID)

	return &bind.TransactOpts{
		From:    from,
		Context: ctx,
		Signer: func(address common.Address, tx *types.Transaction) (*types.Transaction, error) {
			if address != from {
				return nil, bind.ErrNotAuthorized
			}

			sig, serr := s.sign(pubKey, signer.Hash(tx).Bytes())
			if serr != nil {
				return nil, serr
			}

			return tx.WithSignature(signer, sig)
		},
	}, nil
}

// SignHash signs a 32 byte digest and returns a 65 byte [R || S || V] signature.
func (s *KMSSigner) SignHash(hash []byte) ([]byte, error) {
	pubKey, err := s.GetECDSAPublicKey()
	if err != nil {
		return nil, err
	}

	return s.sign(pubKey, hash)
}

func (s *KMSSigner) sign(pubKey *ecdsa.PublicKey, digest []byte) ([]byte, error) {
	out, err := s.client.Sign(&kmslib.SignInput{
		KeyId:            aws.String(s.kmsKeyID),
		SigningAlgorithm: aws.String(kmslib.SigningAlgorithmSpecEcdsaSha256),
		MessageType:      aws.String(kmslib.MessageTypeDigest),
		Message:          digest,
	})
	if err != nil {
		return nil, fmt.Errorf("call to kms.Sign() failed: %w", err)
	}

	sig, err := kmsToEVMSig(out.Signature, crypto.FromECDSAPub(pubKey), digest)
	if err != nil {
		return nil, fmt.Errorf("failed to convert KMS signature to Ethereum signature: %w", err)
	}

	return sig, nil
}

// kmsToEVMSig converts a DER signature from KMS into the EVM [R || S || V] form. S is normalised
// to the lower half of the curve order (EIP-2) and V is found by public key recovery.
//
// [AWS Guides]: https://aws.amazon.com/blogs/database/part2-use-aws-kms-to-securely-manage-ethereum-accounts/
func kmsToEVMSig(kmsSig, pubKeyBytes, digest []byte) ([]byte, error) {
	var ecdsaSig kms.ECDSASig
	if _, err := asn1.Unmarshal(kmsSig, &ecdsaSig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal KMS signature: %w", err)
	}

	sBytes := ecdsaSig.S.Bytes
	if sInt := new(big.Int).SetBytes(sBytes); sInt.Cmp(secp256k1HalfN) > 0 {
		sBytes = new(big.Int).Sub(secp256k1N, sInt).Bytes()
	}

	rs := append(padTo32Bytes(ecdsaSig.R.Bytes), padTo32Bytes(sBytes)...)

	for _, v := range []byte{0, 1} {
		sig := append(bytes.Clone(rs), v)

		recovered, err := crypto.Ecrecover(digest, sig)
		if err != nil {
			return nil, fmt.Errorf("failed to recover signature with v=%d: %w", v, err)
		}
		if bytes.Equal(recovered, pubKeyBytes) {
			return sig, nil
		}
	}

	return nil, errors.New("cannot reconstruct public key from sig")
}

// padTo32Bytes left pads a big-endian integer to 32 bytes.
func padTo32Bytes(buf []byte) []byte {
	buf = bytes.TrimLeft(buf, "\x00")
	if len(buf) >= 32 {
		return buf
	}

	return append(make([]byte, 32-len(buf)), buf...)
}
