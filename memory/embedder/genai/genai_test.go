package genai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(context.Background(), "", "", 0)
	require.Error(t, err)
}
