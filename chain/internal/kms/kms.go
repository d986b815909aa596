// Package kms wraps the AWS KMS client used to sign EVM transactions with keys that never leave
// KMS.
package kms

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/kms"
)

// Client is the subset of the AWS KMS API used for signing.
type Client interface {
	GetPublicKey(input *kms.GetPublicKeyInput) (*kms.GetPublicKeyOutput, error)
	Sign(input *kms.SignInput) (*kms.SignOutput, error)
}

var _ Client = (*kms.KMS)(nil)

// ClientConfig identifies the KMS key and how to authenticate against AWS.
type ClientConfig struct {
	KeyID     string
	KeyRegion string
	// AWSProfile selects a profile from the shared credentials file. Empty uses the default
	// credential chain (environment variables, shared config, instance role).
	AWSProfile string
}

func (c ClientConfig) validate() error {
	if c.KeyID == "" {
		return errors.New("KMS key ID is required")
	}
	if c.KeyRegion == "" {
		return errors.New("KMS key region is required")
	}

	return nil
}

// NewClient builds a KMS client for the configured region. Credentials are resolved lazily, so a
// missing profile surfaces on the first KMS call.
func NewClient(config ClientConfig) (Client, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid KMS config: %w", err)
	}

	awsCfg := aws.NewConfig().WithRegion(config.KeyRegion)
	if config.AWSProfile != "" {
		awsCfg = awsCfg.WithCredentials(credentials.NewSharedCredentials("", config.AWSProfile))
	}

	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            *awsCfg,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return kms.New(sess), nil
}

// SPKI is the DER SubjectPublicKeyInfo returned by KMS GetPublicKey.
type SPKI struct {
	AlgorithmIdentifier pkix.AlgorithmIdentifier
	SubjectPublicKey    asn1.BitString
}

// ECDSASig is the DER encoded signature returned by KMS Sign.
type ECDSASig struct {
	R asn1.RawValue
	S asn1.RawValue
}
