package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// HTTPConfig configures an HTTPSource.
type HTTPConfig struct {
	CatalogURL string         // Catalog listing archives
	Client     *http.Client   // default: 30s response header timeout, no overall timeout
	Logger     zerolog.Logger // Logger
}

// HTTPSource reads a catalog over HTTP and downloads the archives it names.
//
// The catalog is either a JSON array of {"url","filename"} objects or plain
// text with one archive URL per line (blank lines and '#' comments ignored).
// Relative URLs resolve against the catalog URL.
type HTTPSource struct {
	cfg    HTTPConfig
	client *http.Client
	log    zerolog.Logger
}

// NewHTTPSource creates an HTTP source.
func NewHTTPSource(cfg HTTPConfig) (*HTTPSource, error) {
	if _, err := url.Parse(cfg.CatalogURL); err != nil || cfg.CatalogURL == "" {
		return nil, fmt.Errorf("invalid catalog url %q", cfg.CatalogURL)
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: 30 * time.Second,
				IdleConnTimeout:       90 * time.Second,
			},
		}
	}
	return &HTTPSource{cfg: cfg, client: client, log: cfg.Logger}, nil
}

// List fetches and parses the catalog.
func (s *HTTPSource) List(ctx context.Context) ([]Archive, error) {
	body, err := s.get(ctx, s.cfg.CatalogURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	archives, err := parseCatalog(s.cfg.CatalogURL, raw)
	if err != nil {
		return nil, err
	}
	s.log.Debug().Int("archives", len(archives)).Str("catalog", s.cfg.CatalogURL).Msg("catalog listed")
	return archives, nil
}

func parseCatalog(base string, raw []byte) ([]Archive, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, err
	}

	var archives []Archive
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &archives); err != nil {
			return nil, fmt.Errorf("parse catalog: %w", err)
		}
	} else {
		sc := bufio.NewScanner(bytes.NewReader(raw))
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			archives = append(archives, Archive{URL: line})
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("parse catalog: %w", err)
		}
	}

	out := archives[:0]
	for _, a := range archives {
		u, err := baseURL.Parse(a.URL)
		if err != nil {
			return nil, fmt.Errorf("catalog entry %q: %w", a.URL, err)
		}
		a.URL = u.String()
		if a.Filename == "" {
			a.Filename = path.Base(u.Path)
		}
		a.Filename = path.Base(a.Filename)
		if !IsPGNFile(a.Filename) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// Fetch streams the archive into dst and verifies the received length
// against the declared Content-Length when the server sends one.
func (s *HTTPSource) Fetch(ctx context.Context, a Archive, dst io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", a.Filename, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("fetch %s: status %d", a.Filename, resp.StatusCode)
	}

	declared := resp.ContentLength
	n, err := io.Copy(dst, resp.Body)
	if err != nil && !(errors.Is(err, io.ErrUnexpectedEOF) && declared >= 0) {
		return n, fmt.Errorf("fetch %s after %d bytes: %w", a.Filename, n, err)
	}
	if declared >= 0 && n != declared {
		return n, fmt.Errorf("fetch %s: got %d bytes, declared %d: %w", a.Filename, n, declared, ErrLengthMismatch)
	}
	return n, nil
}

func (s *HTTPSource) get(ctx context.Context, u string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", u, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("get %s: status %d", u, resp.StatusCode)
	}
	return resp.Body, nil
}
