package corpus

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
)

// Payload is an open corpus body returned by a Source. Encoding names a
// transfer compression ("gzip", "zstd") or is empty for plain JSON.
type Payload struct {
	Body     io.ReadCloser
	Encoding string
	Size     int64
}

// Source opens the remote corpus identified by u.
type Source interface {
	Open(ctx context.Context, u *url.URL) (*Payload, error)
}

// StatusError is returned when a remote source answers with a non-success status
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// HTTPSource fetches the corpus over http(s)
type HTTPSource struct {
	Client *http.Client
}

// NewHTTPSource creates an HTTP source. A nil client uses a fresh http.Client;
// deadlines come from the request context.
func NewHTTPSource(client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPSource{Client: client}
}

// Open issues a GET for u
func (s *HTTPSource) Open(ctx context.Context, u *url.URL) (*Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.Redacted(), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{URL: u.Redacted(), Code: resp.StatusCode}
	}

	encoding := encodingFor(u.Path, resp.Header.Get("Content-Encoding"))
	if resp.Uncompressed {
		// the transport already removed its own gzip layer
		encoding = ""
	}
	return &Payload{
		Body:     resp.Body,
		Encoding: encoding,
		Size:     resp.ContentLength,
	}, nil
}

// FileSource reads the corpus from a local file:// URL
type FileSource struct{}

// Open opens the file named by u's path
func (FileSource) Open(_ context.Context, u *url.URL) (*Payload, error) {
	path := u.Path
	if u.Opaque != "" {
		path = u.Opaque
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	var size int64 = -1
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}
	return &Payload{Body: f, Encoding: encodingFor(path, ""), Size: size}, nil
}

// S3Source reads the corpus from an s3://bucket/key URL through any
// S3-compatible object store.
type S3Source struct {
	Client *minio.Client
}

// NewS3Source wraps a MinIO client
func NewS3Source(client *minio.Client) *S3Source {
	return &S3Source{Client: client}
}

// Open fetches the object's size first so a missing key fails here rather
// than on the first read.
func (s *S3Source) Open(ctx context.Context, u *url.URL) (*Payload, error) {
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("invalid s3 url %q: want s3://bucket/key", u.String())
	}

	obj, err := s.Client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s/%s: %w", bucket, key, err)
	}
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		resp := minio.ToErrorResponse(err)
		if resp.StatusCode != 0 {
			return nil, &StatusError{URL: u.String(), Code: resp.StatusCode}
		}
		return nil, fmt.Errorf("stat object %s/%s: %w", bucket, key, err)
	}

	return &Payload{
		Body:     obj,
		Encoding: encodingFor(key, info.Metadata.Get("Content-Encoding")),
		Size:     info.Size,
	}, nil
}

func encodingFor(path, header string) string {
	switch strings.ToLower(strings.TrimSpace(header)) {
	case "gzip", "x-gzip":
		return "gzip"
	case "zstd":
		return "zstd"
	}
	switch {
	case strings.HasSuffix(path, ".gz"):
		return "gzip"
	case strings.HasSuffix(path, ".zst"), strings.HasSuffix(path, ".zstd"):
		return "zstd"
	}
	return ""
}
