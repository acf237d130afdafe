// Package ipfs publishes and resolves piece content through a kubo node.
package ipfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	files "github.com/ipfs/boxo/files"
	"github.com/ipfs/boxo/path"
	"github.com/ipfs/go-cid"
	ipfsApi "github.com/ipfs/kubo/client/rpc"
	"github.com/ipfs/kubo/core/coreiface/options"
)

const refScheme = "ipfs://"

// ErrNotCID is returned by Fetch for refs that do not carry a CID
var ErrNotCID = errors.New("content ref is not an IPFS CID")

// Client wraps the kubo RPC client
type Client struct {
	api *ipfsApi.HttpApi
}

// NewClient connects to the kubo RPC API at apiURL.
// Accepts http(s) URLs, host:port and /ip4|/dns multiaddrs.
func NewClient(apiURL string) (*Client, error) {
	if apiURL == "" {
		apiURL = "127.0.0.1:5001"
	}

	if strings.HasPrefix(apiURL, "/ip4/") || strings.HasPrefix(apiURL, "/dns/") {
		// /ip4/172.29.0.2/tcp/5001 -> http://172.29.0.2:5001
		parts := strings.Split(apiURL, "/")
		if len(parts) >= 5 {
			apiURL = fmt.Sprintf("http://%s:%s", parts[2], parts[4])
		}
	} else if !strings.HasPrefix(apiURL, "http://") && !strings.HasPrefix(apiURL, "https://") {
		apiURL = "http://" + apiURL
	}

	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:       10,
			IdleConnTimeout:    90 * time.Second,
			DisableCompression: true,
		},
	}

	api, err := ipfsApi.NewURLApiWithClient(apiURL, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create IPFS client: %w", err)
	}
	return &Client{api: api}, nil
}

// Publish adds data as a CIDv1 file and returns its ipfs:// ref
func (c *Client) Publish(ctx context.Context, data []byte) (string, error) {
	p, err := c.api.Unixfs().Add(ctx, files.NewBytesFile(data), options.Unixfs.CidVersion(1))
	if err != nil {
		return "", fmt.Errorf("failed to add to IPFS: %w", err)
	}

	ref := refScheme + p.RootCid().String()
	slog.Info("Published content to IPFS", "ref", ref, "size", len(data))
	return ref, nil
}

// Fetch reads the file behind ref
func (c *Client) Fetch(ctx context.Context, ref string) ([]byte, error) {
	id, ok := ParseRef(ref)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotCID, ref)
	}

	node, err := c.api.Unixfs().Get(ctx, path.FromCid(id))
	if err != nil {
		return nil, fmt.Errorf("failed to get %s from IPFS: %w", id, err)
	}
	file := files.ToFile(node)
	if file == nil {
		return nil, fmt.Errorf("%s is a directory, expected a file", id)
	}
	defer file.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(file); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", id, err)
	}
	return buf.Bytes(), nil
}

// IsAvailable checks the node answers
func (c *Client) IsAvailable(ctx context.Context) bool {
	_, err := c.api.Key().Self(ctx)
	return err == nil
}

// ParseRef extracts a CID from "ipfs://<cid>", "/ipfs/<cid>" or a bare CID.
// Anything else is an opaque ref and reports false.
func ParseRef(ref string) (cid.Cid, bool) {
	ref = strings.TrimSpace(ref)
	switch {
	case strings.HasPrefix(ref, refScheme):
		ref = strings.TrimPrefix(ref, refScheme)
	case strings.HasPrefix(ref, "/ipfs/"):
		ref = strings.TrimPrefix(ref, "/ipfs/")
	}
	if i := strings.IndexByte(ref, '/'); i >= 0 {
		ref = ref[:i]
	}

	id, err := cid.Decode(ref)
	if err != nil {
		return cid.Undef, false
	}
	return id, true
}

// IsRef reports whether s looks like a content ref rather than inline text
func IsRef(s string) bool {
	if _, ok := ParseRef(s); ok {
		return true
	}
	return strings.HasPrefix(s, refScheme)
}
