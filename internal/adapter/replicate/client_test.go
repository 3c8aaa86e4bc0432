package replicate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGenerateWaitsAndFetchesOutput(t *testing.T) {
	polls := 0
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/models/black-forest-labs/flux-schnell/predictions", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer token123", r.Header.Get("Authorization"))
		assert.Equal(t, "wait", r.Header.Get("Prefer"))

		var payload struct {
			Input map[string]string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "castle at dusk", payload.Input["prompt"])

		fmt.Fprintf(w, `{"id":"p1","status":"processing","urls":{"get":"%s/predictions/p1"}}`, srv.URL)
	})
	mux.HandleFunc("/predictions/p1", func(w http.ResponseWriter, r *http.Request) {
		polls++
		if polls < 2 {
			fmt.Fprintf(w, `{"id":"p1","status":"processing","urls":{"get":"%s/predictions/p1"}}`, srv.URL)
			return
		}
		fmt.Fprintf(w, `{"id":"p1","status":"succeeded","output":["%s/out.png"]}`, srv.URL)
	})
	mux.HandleFunc("/out.png", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("png bytes"))
	})

	client := NewWithBaseURL(srv.URL, "token123", zap.NewNop().Sugar())
	data, err := client.Generate(context.Background(), "black-forest-labs/flux-schnell", "castle at dusk")
	require.NoError(t, err)
	assert.Equal(t, []byte("png bytes"), data)
	assert.Equal(t, 2, polls)
}

func TestGenerateSingleStringOutput(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/models/o/m/predictions", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"id":"p2","status":"succeeded","output":"%s/single.png"}`, srv.URL)
	})
	mux.HandleFunc("/single.png", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("one"))
	})

	data, err := NewWithBaseURL(srv.URL, "tok", zap.NewNop().Sugar()).Generate(context.Background(), "o/m", "p")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), data)
}

func TestGeneratePredictionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"p3","status":"failed","error":"NSFW content detected"}`))
	}))
	defer srv.Close()

	_, err := NewWithBaseURL(srv.URL, "tok", zap.NewNop().Sugar()).Generate(context.Background(), "o/m", "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NSFW content detected")
}

func TestGenerateHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"detail":"invalid token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewWithBaseURL(srv.URL, "tok", zap.NewNop().Sugar()).Generate(context.Background(), "o/m", "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=401")
}

func TestGeneratePreconditions(t *testing.T) {
	client := New("", zap.NewNop().Sugar())
	_, err := client.Generate(context.Background(), "o/m", "p")
	assert.ErrorContains(t, err, "empty API token")

	client = New("tok", zap.NewNop().Sugar())
	_, err = client.Generate(context.Background(), "not-owner-name", "p")
	assert.ErrorContains(t, err, "owner/name")
}
