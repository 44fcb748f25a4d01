package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestIsPGNFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"games.pgn", true},
		{"lichess_db_standard_rated_2013-01.pgn.zst", true},
		{"games.zst", false},
		{"games.txt", false},
		{"pgn", false},
	}
	for _, tt := range tests {
		if got := IsPGNFile(tt.name); got != tt.want {
			t.Errorf("IsPGNFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestReadFile_PlainAndZstd(t *testing.T) {
	dir := t.TempDir()
	data := []byte("[Event \"x\"]\n\n1. e4 *\n")

	plain := filepath.Join(dir, "a.pgn")
	if err := os.WriteFile(plain, data, 0644); err != nil {
		t.Fatal(err)
	}
	zst := filepath.Join(dir, "a.pgn.zst")
	if err := WriteZstd(zst, data); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{plain, zst} {
		got, n, err := ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile(%s): %v", path, err)
		}
		if !bytes.Equal(got, data) {
			t.Errorf("ReadFile(%s) = %q", path, got)
		}
		info, _ := os.Stat(path)
		if n != info.Size() {
			t.Errorf("bytes read = %d, want %d", n, info.Size())
		}
	}

	if _, _, err := ReadFile(filepath.Join(dir, "missing.pgn")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestHTTPSource_ListText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "# archives\nfiles/2013-01.pgn.zst\n\nhttps://example.org/2013-02.pgn\nREADME.txt\n")
	}))
	defer srv.Close()

	src, err := NewHTTPSource(HTTPConfig{CatalogURL: srv.URL + "/list.txt"})
	if err != nil {
		t.Fatal(err)
	}
	archives, err := src.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []Archive{
		{URL: srv.URL + "/files/2013-01.pgn.zst", Filename: "2013-01.pgn.zst"},
		{URL: "https://example.org/2013-02.pgn", Filename: "2013-02.pgn"},
	}
	if len(archives) != len(want) {
		t.Fatalf("got %d archives, want %d: %+v", len(archives), len(want), archives)
	}
	for i := range want {
		if archives[i] != want[i] {
			t.Errorf("archive %d = %+v, want %+v", i, archives[i], want[i])
		}
	}
}

func TestHTTPSource_ListJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"url":"/d/1","filename":"one.pgn"},{"url":"/d/2","filename":"../two.pgn.zst"}]`)
	}))
	defer srv.Close()

	src, _ := NewHTTPSource(HTTPConfig{CatalogURL: srv.URL})
	archives, err := src.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(archives) != 2 || archives[1].Filename != "two.pgn.zst" || archives[0].URL != srv.URL+"/d/1" {
		t.Errorf("archives = %+v", archives)
	}
}

func TestHTTPSource_Fetch(t *testing.T) {
	body := strings.Repeat("1. e4 e5 ", 1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.pgn":
			w.Header().Set("Content-Length", strconv.Itoa(len(body)))
			io.WriteString(w, body)
		case "/short.pgn":
			w.Header().Set("Content-Length", strconv.Itoa(len(body)+100))
			io.WriteString(w, body)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src, _ := NewHTTPSource(HTTPConfig{CatalogURL: srv.URL})
	ctx := context.Background()

	var buf bytes.Buffer
	n, err := src.Fetch(ctx, Archive{URL: srv.URL + "/ok.pgn", Filename: "ok.pgn"}, &buf)
	if err != nil || n != int64(len(body)) || buf.String() != body {
		t.Errorf("Fetch ok: n=%d err=%v", n, err)
	}

	buf.Reset()
	_, err = src.Fetch(ctx, Archive{URL: srv.URL + "/short.pgn", Filename: "short.pgn"}, &buf)
	if !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("Fetch short: err = %v, want ErrLengthMismatch", err)
	}

	_, err = src.Fetch(ctx, Archive{URL: srv.URL + "/missing.pgn", Filename: "missing.pgn"}, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("Fetch missing: err = %v", err)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestHTTPSource_FetchDeclaredLongerThanBody(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode:    http.StatusOK,
			ContentLength: 100,
			Body:          io.NopCloser(strings.NewReader(strings.Repeat("x", 50))),
			Request:       r,
		}, nil
	})}
	src, _ := NewHTTPSource(HTTPConfig{CatalogURL: "http://catalog.invalid/", Client: client})
	n, err := src.Fetch(context.Background(), Archive{URL: "http://catalog.invalid/a.pgn", Filename: "a.pgn"}, io.Discard)
	if n != 50 || !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("n=%d err=%v", n, err)
	}
}
