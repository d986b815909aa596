package operations

import (
	"math/big"
	"sync"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timelock-labs/withdrawal-deployer/pkg/logger"
)

func Test_IsSerializable(t *testing.T) {
	t.Parallel()

	type exported struct {
		Address string   `json:"address"`
		Amount  *big.Int `json:"amount"`
	}
	type withUnexported struct {
		A int
		b int
	}

	tests := []struct {
		name string
		give any
		want bool
	}{
		{name: "nil", give: nil, want: true},
		{name: "int", give: 1, want: true},
		{name: "struct with big int", give: exported{Address: "0x01", Amount: big.NewInt(3600)}, want: true},
		{name: "empty input", give: EmptyInput{}, want: true},
		{name: "channel", give: make(chan int), want: false},
		{name: "function", give: func() {}, want: false},
		{name: "unexported field set", give: withUnexported{A: 1, b: 2}, want: false},
		{name: "unexported field zero", give: withUnexported{A: 1}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, IsSerializable(logger.Nop(), tt.give))
		})
	}
}

func Test_executionHash(t *testing.T) {
	t.Parallel()

	type input struct {
		Selector   uint64 `json:"selector"`
		UnlockTime int64  `json:"unlock_time"`
	}

	v1 := semver.MustParse("1.0.0")
	def := Definition{ID: "deploy", Version: v1}

	typed, err := executionHash(def, input{Selector: 16015286601757825753, UnlockTime: 1700003600})
	require.NoError(t, err)

	// Key order and the generic representation do not change the hash.
	generic, err := executionHash(def, map[string]any{"unlock_time": 1700003600, "selector": uint64(16015286601757825753)})
	require.NoError(t, err)
	assert.Equal(t, typed, generic)

	otherInput, err := executionHash(def, input{Selector: 16015286601757825753, UnlockTime: 1700003601})
	require.NoError(t, err)
	assert.NotEqual(t, typed, otherInput)

	otherVersion, err := executionHash(Definition{ID: "deploy", Version: semver.MustParse("1.0.1")}, input{Selector: 16015286601757825753, UnlockTime: 1700003600})
	require.NoError(t, err)
	assert.NotEqual(t, typed, otherVersion)

	// Description is not part of the identity.
	described, err := executionHash(Definition{ID: "deploy", Version: v1, Description: "x"}, input{Selector: 16015286601757825753, UnlockTime: 1700003600})
	require.NoError(t, err)
	assert.Equal(t, typed, described)

	_, err = executionHash(def, make(chan int))
	require.ErrorContains(t, err, "failed to marshal input")
}

func Test_reportHash_Cache(t *testing.T) {
	t.Parallel()

	cache := &sync.Map{}
	report := NewReport(Definition{ID: "op", Version: semver.MustParse("1.0.0")}, 1, 2, nil).ToGenericReport()

	want, err := executionHash(report.Def, report.Input)
	require.NoError(t, err)

	got, err := reportHash(cache, report)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	cached, ok := cache.Load(report.ID)
	require.True(t, ok)
	assert.Equal(t, want, cached)

	// A nil cache still hashes.
	got, err = reportHash(nil, report)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
