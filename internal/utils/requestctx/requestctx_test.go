package requestctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	t.Run("round trips", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-1")
		assert.Equal(t, "req-1", RequestID(ctx))
	})

	t.Run("missing", func(t *testing.T) {
		assert.Empty(t, RequestID(context.Background()))
	})
}
