package trace

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")

	id, ok := IDFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "req-123", id)
}

func TestIDFromContextMissing(t *testing.T) {
	_, ok := IDFromContext(context.Background())
	assert.False(t, ok)

	_, ok = IDFromContext(WithRequestID(context.Background(), ""))
	assert.False(t, ok, "empty request ID is treated as absent")
}

func TestEnsureRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "existing")
	assert.Equal(t, "existing", EnsureRequestID(ctx))

	generated := EnsureRequestID(context.Background())
	_, err := uuid.Parse(generated)
	assert.NoError(t, err, "generated IDs are UUIDs")
}
