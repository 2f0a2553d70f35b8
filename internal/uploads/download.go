package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Broken is an attachment that could not be downloaded.
type Broken struct {
	URL string `json:"url"`
	Err string `json:"error"`
}

// Downloader fetches attachments into a directory in the background, at
// most limit at a time. Each URL is fetched once. Failures never stop the
// run; they are collected for the report.
type Downloader struct {
	ctx    context.Context
	dir    string
	base   string
	client *http.Client
	log    *zap.Logger
	g      *errgroup.Group

	mu         sync.Mutex
	seen       map[string]bool
	broken     []Broken
	downloaded int
}

// NewDownloader returns a Downloader saving files under dir, mirroring their
// path below baseURL.
func NewDownloader(ctx context.Context, dir, baseURL string, limit int, log *zap.Logger) *Downloader {
	if limit < 1 {
		limit = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	g := &errgroup.Group{}
	g.SetLimit(limit)
	return &Downloader{
		ctx:    ctx,
		dir:    dir,
		base:   normalize(baseURL),
		client: &http.Client{Timeout: 5 * time.Minute},
		log:    log.Named("uploads"),
		g:      g,
		seen:   make(map[string]bool),
	}
}

// Schedule queues url for download unless it was scheduled before. It
// blocks while limit downloads are already running.
func (d *Downloader) Schedule(url string) {
	d.mu.Lock()
	if d.seen[url] {
		d.mu.Unlock()
		return
	}
	d.seen[url] = true
	d.mu.Unlock()

	d.g.Go(func() error {
		if err := d.fetch(url); err != nil {
			d.log.Warn("download failed", zap.String("url", url), zap.Error(err))
			d.mu.Lock()
			d.broken = append(d.broken, Broken{URL: url, Err: err.Error()})
			d.mu.Unlock()
			return nil
		}
		d.mu.Lock()
		d.downloaded++
		d.mu.Unlock()
		return nil
	})
}

// Wait blocks until every scheduled download has finished and returns the
// number of files saved and the failures.
func (d *Downloader) Wait() (int, []Broken) {
	_ = d.g.Wait()
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Broken, len(d.broken))
	copy(out, d.broken)
	return d.downloaded, out
}

// target returns the local path for url, refusing paths that escape dir.
func (d *Downloader) target(url string) (string, error) {
	rel := strings.TrimPrefix(url, d.base)
	if rel == url {
		return "", fmt.Errorf("not under %s", d.base)
	}
	if i := strings.IndexAny(rel, "?#"); i >= 0 {
		rel = rel[:i]
	}
	dest := filepath.Join(d.dir, filepath.FromSlash(rel))
	within, err := filepath.Rel(d.dir, dest)
	if err != nil || within == "." || strings.HasPrefix(within, "..") {
		return "", fmt.Errorf("path %q escapes download directory", rel)
	}
	return dest, nil
}

func (d *Downloader) fetch(url string) error {
	dest, err := d.target(url)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dest); err == nil {
		d.log.Debug("already downloaded", zap.String("url", url))
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	return backoff.Retry(func() error {
		err := d.download(url, dest)
		var perm *permanentStatus
		if errors.As(err, &perm) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, d.ctx))
}

type permanentStatus struct{ code int }

func (e *permanentStatus) Error() string { return fmt.Sprintf("HTTP %d", e.code) }

func (d *Downloader) download(url, dest string) error {
	req, err := http.NewRequestWithContext(d.ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	res, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		if res.StatusCode >= 500 || res.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("HTTP %d", res.StatusCode)
		}
		return &permanentStatus{code: res.StatusCode}
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, res.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	return os.Rename(tmp.Name(), dest)
}
