package log_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tendermint/neosync/libs/log"
)

func TestNewDefaultLogger(t *testing.T) {
	testCases := map[string]struct {
		format    string
		level     string
		expectErr bool
	}{
		"invalid format": {
			format:    "foo",
			level:     log.LogLevelInfo,
			expectErr: true,
		},
		"invalid level": {
			format:    log.LogFormatJSON,
			level:     "foo",
			expectErr: true,
		},
		"valid format and level": {
			format:    log.LogFormatJSON,
			level:     log.LogLevelInfo,
			expectErr: false,
		},
		"plain format": {
			format:    log.LogFormatPlain,
			level:     log.LogLevelDebug,
			expectErr: false,
		},
	}

	for name, tc := range testCases {
		tc := tc

		t.Run(name, func(t *testing.T) {
			_, err := log.NewDefaultLogger(tc.format, tc.level)
			if tc.expectErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestDefaultLoggerJSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := log.NewDefaultLoggerWithOutput(&buf, log.LogFormatJSON, log.LogLevelInfo)
	require.NoError(t, err)

	logger.With("module", "p2p").Info("peer connected", "peer", "127.0.0.1:20333", "height", 42)
	logger.Debug("filtered out")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "peer connected", entry["message"])
	require.Equal(t, "p2p", entry["module"])
	require.Equal(t, "127.0.0.1:20333", entry["peer"])
	require.EqualValues(t, 42, entry["height"])
}

func TestOverrideWithNewLogger(t *testing.T) {
	logger := log.NewNopLogger()
	child := logger.With("module", "p2p")

	require.NoError(t, log.OverrideWithNewLogger(logger, log.LogFormatJSON, log.LogLevelDebug))
	require.Error(t, log.OverrideWithNewLogger(logger, "xml", log.LogLevelDebug))
	require.Error(t, log.OverrideWithNewLogger(child, log.LogFormatJSON, "loud"))
}
