package corpus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodingFor(t *testing.T) {
	tests := []struct {
		path   string
		header string
		want   string
	}{
		{"/kjv.json", "", ""},
		{"/kjv.json.gz", "", "gzip"},
		{"/kjv.json", "gzip", "gzip"},
		{"/kjv.json", "x-gzip", "gzip"},
		{"/kjv.json.zst", "", "zstd"},
		{"/kjv.json.zstd", "", "zstd"},
		{"/kjv.json", " ZSTD ", "zstd"},
		{"/kjv.json", "identity", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, encodingFor(tt.path, tt.header), "%s %q", tt.path, tt.header)
	}
}

func TestHTTPSource_PlainBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "2")
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL + "/kjv.json")
	require.NoError(t, err)

	p, err := NewHTTPSource(nil).Open(context.Background(), u)
	require.NoError(t, err)
	defer p.Body.Close()
	assert.Equal(t, "", p.Encoding)
	assert.EqualValues(t, 2, p.Size)
}

func TestHTTPSource_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL + "/kjv.json")
	require.NoError(t, err)

	_, err = NewHTTPSource(nil).Open(context.Background(), u)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.Code)
	assert.Contains(t, err.Error(), "403 Forbidden")
}

func TestS3Source_InvalidURL(t *testing.T) {
	u, err := url.Parse("s3://bucket-only")
	require.NoError(t, err)

	_, err = NewS3Source(nil).Open(context.Background(), u)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want s3://bucket/key")
}
