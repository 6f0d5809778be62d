package bindle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/wippyai/wagi/errors"
)

// Source yields an invoice and the content of its parcels. Parcel
// content is verified against the invoice label's SHA-256.
type Source interface {
	Invoice(ctx context.Context) (*Invoice, error)
	Parcel(ctx context.Context, sha string) ([]byte, error)
}

// Client talks to a remote bindle server.
type Client struct {
	base *url.URL
	http *http.Client
	id   string // invoice id, "name/version"
}

// NewClient builds a Source for one invoice on a bindle server. The
// server URL includes the API root, e.g. "http://localhost:8080/v1".
func NewClient(server, invoiceID string) (*Client, error) {
	base, err := url.Parse(server)
	if err != nil || base.Scheme == "" {
		return nil, errors.InvalidInput(errors.PhaseConfig, "invalid bindle server URL %q", server)
	}
	return &Client{base: base, http: http.DefaultClient, id: invoiceID}, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.IO(errors.PhaseResolve, "build bindle request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.IO(errors.PhaseResolve, "fetch "+path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.IO(errors.PhaseResolve, fmt.Sprintf("fetch %s: status %d", path, resp.StatusCode), nil)
	}
	return io.ReadAll(resp.Body)
}

// Invoice fetches and parses the invoice document.
func (c *Client) Invoice(ctx context.Context) (*Invoice, error) {
	data, err := c.get(ctx, "/_i/"+c.id)
	if err != nil {
		return nil, err
	}
	var inv Invoice
	if err := toml.Unmarshal(data, &inv); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse invoice "+c.id)
	}
	return &inv, nil
}

// Parcel fetches one parcel's content and verifies its hash.
func (c *Client) Parcel(ctx context.Context, sha string) ([]byte, error) {
	data, err := c.get(ctx, "/_i/"+c.id+"@"+sha)
	if err != nil {
		return nil, err
	}
	return verify(c.id+"@"+sha, sha, data)
}

// Standalone reads an exported bindle from disk: <dir>/invoice.toml and
// <dir>/parcels/<sha256>.dat.
type Standalone struct {
	dir string
}

// OpenStandalone builds a Source over a standalone bindle directory.
func OpenStandalone(dir string) (*Standalone, error) {
	if st, err := os.Stat(filepath.Join(dir, "invoice.toml")); err != nil || st.IsDir() {
		return nil, errors.NotFound(errors.PhaseConfig, "standalone bindle invoice", filepath.Join(dir, "invoice.toml"))
	}
	return &Standalone{dir: dir}, nil
}

func (s *Standalone) Invoice(_ context.Context) (*Invoice, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, "invoice.toml"))
	if err != nil {
		return nil, errors.IO(errors.PhaseConfig, "read standalone invoice", err)
	}
	var inv Invoice
	if err := toml.Unmarshal(data, &inv); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse standalone invoice")
	}
	return &inv, nil
}

func (s *Standalone) Parcel(_ context.Context, sha string) ([]byte, error) {
	path := filepath.Join(s.dir, "parcels", sha+".dat")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.IO(errors.PhaseResolve, "read parcel "+path, err)
	}
	return verify(path, sha, data)
}

// verify checks data against the expected label hash.
func verify(ref, want string, data []byte) ([]byte, error) {
	sum := sha256.Sum256(data)
	got := hex.EncodeToString(sum[:])
	if !strings.EqualFold(got, want) {
		return nil, errors.HashMismatch(ref, want, got)
	}
	return data, nil
}
