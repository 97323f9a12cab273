package qwen_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jyntrix/memctx-go/pkg/embedder/qwen"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := qwen.NewClient(qwen.Config{})
	assert.ErrorContains(t, err, "api key")
}

func TestNewClientDefaults(t *testing.T) {
	client, err := qwen.NewClient(qwen.Config{APIKey: "sk-test"})
	require.NoError(t, err)
	defer client.Close()

	// text-embedding-v3 dimension.
	assert.Equal(t, 1024, client.Dimensions())
}
