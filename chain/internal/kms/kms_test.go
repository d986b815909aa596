package kms

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_NewClient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		give    ClientConfig
		wantErr string
	}{
		{
			name: "default credential chain",
			give: ClientConfig{KeyID: "test-key-id", KeyRegion: "us-west-2"},
		},
		{
			name: "named profile",
			give: ClientConfig{KeyID: "test-key-id", KeyRegion: "us-west-2", AWSProfile: "deployer"},
		},
		{
			name:    "missing key ID",
			give:    ClientConfig{KeyRegion: "us-west-2"},
			wantErr: "invalid KMS config: KMS key ID is required",
		},
		{
			name:    "missing region",
			give:    ClientConfig{KeyID: "test-key-id"},
			wantErr: "invalid KMS config: KMS key region is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := NewClient(tt.give)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.NotNil(t, got)
		})
	}
}

func Test_SPKI_RoundTrip(t *testing.T) {
	t.Parallel()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	pub := crypto.FromECDSAPub(&key.PublicKey)
	der, err := asn1.Marshal(SPKI{
		AlgorithmIdentifier: pkix.AlgorithmIdentifier{
			Algorithm: asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1},
		},
		SubjectPublicKey: asn1.BitString{Bytes: pub, BitLength: len(pub) * 8},
	})
	require.NoError(t, err)

	var got SPKI
	_, err = asn1.Unmarshal(der, &got)
	require.NoError(t, err)

	gotPub, err := crypto.UnmarshalPubkey(got.SubjectPublicKey.Bytes)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), crypto.PubkeyToAddress(*gotPub))
}
