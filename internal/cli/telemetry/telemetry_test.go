package telemetry_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackvity/stack-linguist/internal/cli/telemetry"
)

func TestSetup(t *testing.T) {
	testCases := []struct {
		name     string
		enabled  bool
		expected []string
	}{
		{name: "Enabled writes spans", enabled: true, expected: []string{`"Name": "test.span"`, `"Value": "stack-linguist"`, `"Value": "1.0.0"`}},
		{name: "Disabled records nothing", enabled: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			tracer, shutdown, err := telemetry.Setup(tc.enabled, &buf, "1.0.0")
			require.NoError(t, err)

			_, span := tracer.Start(context.Background(), "test.span")
			span.End()
			require.NoError(t, shutdown(context.Background()))

			if len(tc.expected) == 0 {
				assert.Empty(t, buf.String())
				assert.False(t, span.SpanContext().IsValid())
				return
			}
			for _, want := range tc.expected {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}
