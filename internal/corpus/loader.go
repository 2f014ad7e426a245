package corpus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

// State is a step of the loader's cache state machine
type State string

const (
	StateNoCache      State = "no-cache"
	StateCacheCorrupt State = "cache-corrupt"
	StateFetching     State = "fetching"
	StateCached       State = "cached"
)

var errNoCache = errors.New("no cache file")

// LoaderConfig holds where the corpus comes from and where it is cached
type LoaderConfig struct {
	CachePath string        // local JSON cache, written atomically
	SourceURL string        // http(s)://, s3://bucket/key or file:// URL
	Timeout   time.Duration // bounds the whole remote fetch, 0 means no bound
}

// Recorder receives loader measurements. metrics.Metrics implements it.
type Recorder interface {
	RecordFetch(bytes int64, d time.Duration, err error)
	RecordLoad(state State, records int, err error)
}

type noopRecorder struct{}

func (noopRecorder) RecordFetch(int64, time.Duration, error) {}
func (noopRecorder) RecordLoad(State, int, error)            {}

// LoaderOption customizes a Loader
type LoaderOption func(*Loader)

// WithSource registers src for URLs with the given scheme
func WithSource(scheme string, src Source) LoaderOption {
	return func(l *Loader) {
		l.sources[scheme] = src
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) LoaderOption {
	return func(l *Loader) {
		if r != nil {
			l.recorder = r
		}
	}
}

// Loader resolves a corpus from the local cache, falling back to the remote
// source and publishing what it fetched as the new cache.
type Loader struct {
	cfg      LoaderConfig
	logger   *zap.Logger
	sources  map[string]Source
	recorder Recorder
	state    State
}

// NewLoader creates a loader. http, https and file sources are registered by
// default; s3 needs WithSource because it requires credentials.
func NewLoader(cfg LoaderConfig, logger *zap.Logger, opts ...LoaderOption) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	httpSrc := NewHTTPSource(nil)
	l := &Loader{
		cfg:    cfg,
		logger: logger,
		sources: map[string]Source{
			"http":  httpSrc,
			"https": httpSrc,
			"file":  FileSource{},
		},
		recorder: noopRecorder{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// State returns the last state the loader reached
func (l *Loader) State() State {
	return l.state
}

// Load returns the cached corpus when the cache is present and parses, and
// otherwise fetches, caches and parses the remote corpus. A fetch failure
// with no usable cache is a KindUnavailable *LoadError.
func (l *Loader) Load(ctx context.Context) (*Corpus, error) {
	c, err := l.load(ctx, false)
	l.recorder.RecordLoad(l.state, c.Len(), err)
	return c, err
}

// Refresh ignores any existing cache, fetches the remote corpus and replaces
// the cache with it.
func (l *Loader) Refresh(ctx context.Context) (*Corpus, error) {
	c, err := l.load(ctx, true)
	l.recorder.RecordLoad(l.state, c.Len(), err)
	return c, err
}

func (l *Loader) load(ctx context.Context, skipCache bool) (*Corpus, error) {
	if l.cfg.CachePath == "" {
		return nil, errors.New("corpus cache path is required")
	}

	var corrupt error
	if !skipCache {
		c, err := l.readCache()
		switch {
		case err == nil:
			l.transition(StateCached, zap.Int("records", c.Len()), zap.Int("dim", c.Dim()))
			return c, nil
		case errors.Is(err, errNoCache):
			l.transition(StateNoCache)
		default:
			corrupt = &LoadError{Kind: KindCacheCorrupt, Record: -1, Err: err}
			l.transition(StateCacheCorrupt, zap.Error(err))
		}
	}

	l.transition(StateFetching, zap.String("source", redact(l.cfg.SourceURL)))
	if err := l.fetch(ctx); err != nil {
		return nil, &LoadError{Kind: KindUnavailable, Record: -1, Err: errors.Join(err, corrupt)}
	}

	c, err := l.readCache()
	if err != nil {
		// the payload itself is bad; drop it so the next start fetches again
		if rmErr := os.Remove(l.cfg.CachePath); rmErr != nil && !os.IsNotExist(rmErr) {
			l.logger.Warn("Failed to remove invalid corpus cache", zap.String("cache_path", l.cfg.CachePath), zap.Error(rmErr))
		}
		return nil, err
	}
	l.transition(StateCached, zap.Int("records", c.Len()), zap.Int("dim", c.Dim()))
	return c, nil
}

func (l *Loader) transition(s State, fields ...zap.Field) {
	l.state = s
	fields = append([]zap.Field{zap.String("state", string(s)), zap.String("cache_path", l.cfg.CachePath)}, fields...)
	if s == StateCacheCorrupt {
		l.logger.Warn("Corpus cache unusable, falling back to remote source", fields...)
		return
	}
	l.logger.Info("Corpus loader state", fields...)
}

func (l *Loader) readCache() (*Corpus, error) {
	st, err := os.Stat(l.cfg.CachePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errNoCache
		}
		return nil, fmt.Errorf("stat cache: %w", err)
	}
	if st.IsDir() {
		return nil, fmt.Errorf("cache path %s is a directory", l.cfg.CachePath)
	}
	if st.Size() == 0 {
		return nil, errNoCache
	}

	f, err := os.Open(l.cfg.CachePath)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

func (l *Loader) fetch(ctx context.Context) (err error) {
	if l.cfg.SourceURL == "" {
		return errors.New("no corpus source url configured")
	}
	u, err := url.Parse(l.cfg.SourceURL)
	if err != nil {
		return fmt.Errorf("parse source url: %w", err)
	}
	src, ok := l.sources[u.Scheme]
	if !ok {
		return fmt.Errorf("unsupported corpus source scheme %q", u.Scheme)
	}

	if l.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	counter := &countingReader{}
	defer func() {
		l.recorder.RecordFetch(counter.n, time.Since(start), err)
		if err == nil {
			l.logger.Info("Fetched corpus",
				zap.String("source", u.Redacted()),
				zap.Int64("bytes", counter.n),
				zap.Duration("duration", time.Since(start)),
			)
		}
	}()

	p, err := src.Open(ctx, u)
	if err != nil {
		return err
	}
	defer p.Body.Close()

	counter.r = &ctxReader{ctx: ctx, r: p.Body}
	body, err := decompress(counter, p.Encoding)
	if err != nil {
		return err
	}
	defer body.Close()

	expected := int64(-1)
	if p.Encoding == "" && p.Size > 0 {
		expected = p.Size
	}
	_, err = writeAtomic(l.cfg.CachePath, body, expected)
	return err
}

func decompress(r io.Reader, encoding string) (io.ReadCloser, error) {
	switch encoding {
	case "":
		return io.NopCloser(r), nil
	case "gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		return zr, nil
	case "zstd":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open zstd stream: %w", err)
		}
		return zr.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("unsupported corpus encoding %q", encoding)
	}
}

// writeAtomic streams r into a temp file next to path and renames it over
// path once the whole stream has been written and synced. A non-negative
// expected length that differs from the bytes written discards the temp file.
func writeAtomic(path string, r io.Reader, expected int64) (n int64, err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.partial")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if n, err = io.Copy(tmp, r); err != nil {
		return n, fmt.Errorf("write corpus body: %w", err)
	}
	if expected >= 0 && n != expected {
		return n, fmt.Errorf("short corpus body: got %d of %d bytes", n, expected)
	}
	if err = tmp.Sync(); err != nil {
		return n, fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return n, fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return n, fmt.Errorf("publish cache file: %w", err)
	}
	return n, nil
}

// WriteFile atomically writes a corpus file produced by fn, for tools that
// build a corpus rather than download one.
func WriteFile(path string, fn func(w io.Writer) error) error {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(fn(pw))
	}()
	_, err := writeAtomic(path, pr, -1)
	pr.Close()
	return err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}
