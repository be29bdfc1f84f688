package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cicerone/pkg/request"
	"cicerone/pkg/store"
	"cicerone/pkg/tracker"
)

func newHTTPClient() *request.Client {
	return request.New(store.NewMemoryStore(), tracker.New(), request.ClientConfig{
		Retries:   1,
		Timeout:   5 * time.Second,
		BaseDelay: time.Millisecond,
	})
}

func TestNextRecord(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_, _ = w.Write([]byte(`{"record":{"id":"r1","type":"narration","message":"Hello world","point":{"lat":"10","lng":"20"}}}`))
	}))
	defer svr.Close()

	c := NewClient(newHTTPClient(), svr.URL, "secret")
	rec, err := c.NextRecord(context.Background(), "t1", NextRecordParams{
		Lat:          10.5,
		Lng:          20.25,
		DurationHint: "100",
		UserText:     "tell me more",
		Pace:         "1",
		LLMVariant:   "SIMPLE",
		VoiceVariant: "MOCK",
	})
	require.NoError(t, err)

	assert.Equal(t, "/tours/t1/next", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "Hello world", rec.Message)
	assert.Equal(t, "r1", rec.ID)

	assert.Equal(t, "100", gotBody["duration"])
	assert.Equal(t, "tell me more", gotBody["user_text"])
	assert.Equal(t, "1", gotBody["pace"])
	assert.Equal(t, "SIMPLE", gotBody["type_llm"])
	assert.Equal(t, "MOCK", gotBody["type_voice"])
	point := gotBody["point"].(map[string]any)
	assert.Equal(t, "10.5", point["lat"])
	assert.Equal(t, "20.25", point["lng"])
}

func TestNextRecordStatusError(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer svr.Close()

	c := NewClient(newHTTPClient(), svr.URL, "")
	_, err := c.NextRecord(context.Background(), "t1", NextRecordParams{})

	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, KindStatus, gwErr.Kind)
	assert.Equal(t, http.StatusForbidden, gwErr.HTTPStatus)
}

func TestNextRecordEmptyResponse(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer svr.Close()

	c := NewClient(newHTTPClient(), svr.URL, "")
	_, err := c.NextRecord(context.Background(), "t1", NextRecordParams{})

	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, KindEmpty, gwErr.Kind)
}

func TestNextRecordDecodeError(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer svr.Close()

	c := NewClient(newHTTPClient(), svr.URL, "")
	_, err := c.NextRecord(context.Background(), "t1", NextRecordParams{})

	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, KindDecode, gwErr.Kind)
}

func TestGetTour(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tours/t1", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"t1","name":"Old Town Walk","status":"READY"}`))
	}))
	defer svr.Close()

	c := NewClient(newHTTPClient(), svr.URL, "")
	tour, err := c.GetTour(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "Old Town Walk", tour.Name)
}
