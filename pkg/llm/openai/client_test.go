package openai_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jyntrix/memctx-go/pkg/llm/openai"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := openai.NewClient(openai.Config{})
	assert.ErrorContains(t, err, "api key")
}

func TestNewClientAcceptsKey(t *testing.T) {
	client, err := openai.NewClient(openai.Config{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.NoError(t, client.Close())
}
