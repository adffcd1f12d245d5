package groutine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGo_NamesContextAndSignalsDone(t *testing.T) {
	names := make(chan string, 1)

	done := Go(context.Background(), "poll-ticker", func(ctx context.Context) {
		names <- GetName(ctx)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("done channel MUST be closed when fn returns")
	}
	require.Len(t, names, 1)
	assert.Equal(t, "poll-ticker", <-names)
}

func TestGetName_Unnamed(t *testing.T) {
	assert.Empty(t, GetName(context.Background()))
	//nolint:staticcheck // nil context is part of the contract
	assert.Empty(t, GetName(nil))
}
