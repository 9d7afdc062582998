package obs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DisabledProviderIsInert(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	p, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, p)

	_, done := p.TrackCommand(context.Background(), "AddItems")
	done(errors.New("boom"))

	assert.NoError(t, p.Shutdown(context.Background()))
}
