package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func Test_ParseConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		giveLevel string
		wantLevel zapcore.Level
		wantErr   string
	}{
		{name: "debug", giveLevel: "debug", wantLevel: zapcore.DebugLevel},
		{name: "warn", giveLevel: "warn", wantLevel: zapcore.WarnLevel},
		{name: "unknown level", giveLevel: "loud", wantErr: `invalid log level "loud"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseConfig(tt.giveLevel, false)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantLevel, got.Level)
		})
	}
}

func Test_Config_New(t *testing.T) {
	t.Parallel()

	lggr, err := Config{Level: zapcore.WarnLevel}.New()
	require.NoError(t, err)

	named := lggr.Named("deployer")
	assert.Equal(t, "deployer", named.Name())
}

func Test_TestObserved(t *testing.T) {
	t.Parallel()

	lggr, logs := TestObserved(t, zapcore.InfoLevel)
	lggr.Debugw("hidden")
	lggr.Infow("deployment sent", "address", "0x01")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "deployment sent", entries[0].Message)
	assert.Equal(t, "0x01", entries[0].ContextMap()["address"])
}
