package openai

import (
	"context"
	"net/http"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/visearch/embedding"
)

func TestNew(t *testing.T) {
	t.Run("RequiresAPIKey", func(t *testing.T) {
		_, err := New("")
		assert.Error(t, err)
	})

	t.Run("InvalidDimension", func(t *testing.T) {
		_, err := New("key", func(o *Options) {
			o.Dimension = -1
		})
		assert.Error(t, err)
	})

	t.Run("Defaults", func(t *testing.T) {
		e, err := New("key")
		require.NoError(t, err)
		assert.Equal(t, 1024, e.Dimension())
	})
}

func TestEmbedEmptyPayload(t *testing.T) {
	e, err := New("key")
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), nil)
	assert.ErrorIs(t, err, embedding.ErrUnsupportedContent)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "BadRequest", status: http.StatusBadRequest, want: embedding.ErrUnsupportedContent},
		{name: "PayloadTooLarge", status: http.StatusRequestEntityTooLarge, want: embedding.ErrUnsupportedContent},
		{name: "UnsupportedMedia", status: http.StatusUnsupportedMediaType, want: embedding.ErrUnsupportedContent},
		{name: "Throttled", status: http.StatusTooManyRequests, want: embedding.ErrUnavailable},
		{name: "ServerError", status: http.StatusInternalServerError, want: embedding.ErrUnavailable},
		{name: "BadGateway", status: http.StatusBadGateway, want: embedding.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(&openai.APIError{HTTPStatusCode: tt.status})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("ContextCancellationPassesThrough", func(t *testing.T) {
		err := classify(context.Canceled)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, embedding.ErrUnavailable)
	})

	t.Run("UnknownTransportErrorIsTransient", func(t *testing.T) {
		err := classify(assert.AnError)
		assert.ErrorIs(t, err, embedding.ErrUnavailable)
	})
}
