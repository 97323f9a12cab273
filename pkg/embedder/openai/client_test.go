package openai_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jyntrix/memctx-go/pkg/embedder/openai"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := openai.NewClient(openai.Config{})
	assert.ErrorContains(t, err, "api key")
}

func TestNewClientDefaults(t *testing.T) {
	client, err := openai.NewClient(openai.Config{APIKey: "sk-test"})
	require.NoError(t, err)
	defer client.Close()

	// text-embedding-3-small dimension.
	assert.Equal(t, 1536, client.Dimensions())
}

func TestNewClientCustomDimensions(t *testing.T) {
	client, err := openai.NewClient(openai.Config{APIKey: "sk-test", Dimensions: 256})
	require.NoError(t, err)
	defer client.Close()
	assert.Equal(t, 256, client.Dimensions())
}
