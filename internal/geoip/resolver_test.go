package geoip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPResolverResolve(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/203.0.113.7", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","countryCode":"NL","regionName":"North Holland","city":"Amsterdam"}`))
	}))
	defer server.Close()

	resolver := NewHTTPResolver(server.URL)
	location, err := resolver.Resolve(context.Background(), "203.0.113.7")
	require.NoError(t, err)

	assert.Equal(t, "NL", location.Country)
	assert.Equal(t, "North Holland", location.Region)
	assert.Equal(t, "Amsterdam", location.City)
}

func TestHTTPResolverFailureStatuses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"fail"}`))
	}))
	defer server.Close()

	resolver := NewHTTPResolver(server.URL)
	_, err := resolver.Resolve(context.Background(), "10.0.0.1")
	assert.Error(t, err)
}

func TestHTTPResolverHonorsContextDeadline(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	resolver := NewHTTPResolver(server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := resolver.Resolve(ctx, "203.0.113.7")
	assert.Error(t, err)
	<-started
}

func TestNoopResolver(t *testing.T) {
	location, err := NoopResolver{}.Resolve(context.Background(), "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, location.Unknown())
}
