package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerValidatesConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{
			name:    "nil config uses defaults",
			cfg:     nil,
			wantErr: false,
		},
		{
			name:    "valid console format",
			cfg:     &Config{Level: zapcore.DebugLevel, Format: "console"},
			wantErr: false,
		},
		{
			name:    "invalid format rejected",
			cfg:     &Config{Format: "xml"},
			wantErr: true,
		},
		{
			name:    "empty field value rejected",
			cfg:     &Config{Format: "json", Fields: map[string]string{"service": ""}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
		})
	}
}

func TestContextFieldsCarryCorrelation(t *testing.T) {
	tl := NewTestLogger()

	ctx := WithRequestID(context.Background(), "req-123")
	ctx = WithSourceID(ctx, "guide.txt")
	tl.Info(ctx, "hello")

	entries := tl.FilterMessage("hello").All()
	require.Len(t, entries, 1)

	fields := map[string]string{}
	for _, f := range entries[0].Context {
		if f.Type == zapcore.StringType {
			fields[f.Key] = f.String
		}
	}
	assert.Equal(t, "req-123", fields["request.id"])
	assert.Equal(t, "guide.txt", fields["source.id"])
}

func TestNamedAndWithProduceChildLoggers(t *testing.T) {
	tl := NewTestLogger()

	child := tl.Named("chat").With(zap.String("mode", "hybrid"))
	child.Info(context.Background(), "retrieval done")

	entries := tl.FilterMessage("retrieval done").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "chat", entries[0].LoggerName)
}
