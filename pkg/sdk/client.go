package sdk

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/celerix-dev/celerix-vaults/pkg/schema"
)

// VaultContents is a stored vault as reported by the admin API.
type VaultContents struct {
	Owner  string              `json:"owner"`
	Number int                 `json:"number"`
	Size   int                 `json:"size"`
	Slots  []*schema.SlotEntry `json:"slots"`
}

// ErrNotFound is returned by the client when a vault has no stored contents.
var ErrNotFound = errors.New("vault not found")

// Client is a remote client for a running vault daemon's admin API.
type Client struct {
	base string
	hc   *http.Client
}

// Connect creates a client for the daemon listening at addr, given as
// host:port or a full http(s) URL. It checks the daemon is reachable.
func Connect(addr string) (*Client, error) {
	base := strings.TrimSuffix(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	c := &Client{
		base: base + "/api",
		hc:   &http.Client{Timeout: 30 * time.Second},
	}
	if _, err := c.IsLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

// Internal helper for HTTP communication. Transport failures are retried
// with backoff; responses from the daemon, errors included, are not.
func (c *Client) do(method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	var err error
	for i := 0; i < 3; i++ {
		var req *http.Request
		req, err = http.NewRequest(method, c.base+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		var resp *http.Response
		resp, err = c.hc.Do(req)
		if err == nil {
			defer resp.Body.Close()
			return decodeResponse(resp, out)
		}

		fmt.Fprintf(os.Stderr, "[Vaults SDK] Attempt %d failed: %v. Retrying...\n", i+1, err)
		// Wait before retrying (exponential backoff)
		time.Sleep(time.Duration((i+1)*200) * time.Millisecond)
	}

	return fmt.Errorf("failed after 3 attempts. last error: %w", err)
}

func decodeResponse(resp *http.Response, out any) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &e)
		switch resp.StatusCode {
		case http.StatusServiceUnavailable:
			return ErrLocked
		case http.StatusNotFound:
			return ErrNotFound
		}
		switch e.Error {
		case ErrInvalidNumber.Error():
			return ErrInvalidNumber
		case ErrInvalidOwner.Error():
			return ErrInvalidOwner
		}
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, e.Error)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func vaultPath(owner string, number int) string {
	return "/owners/" + url.PathEscape(owner) + "/vaults/" + strconv.Itoa(number)
}

func (c *Client) ListOwners() ([]string, error) {
	var owners []string
	err := c.do(http.MethodGet, "/owners", nil, &owners)
	return owners, err
}

func (c *Client) ListVaultNumbers(owner string) ([]int, error) {
	var numbers []int
	err := c.do(http.MethodGet, "/owners/"+url.PathEscape(owner)+"/vaults", nil, &numbers)
	return numbers, err
}

// Show returns the stored contents of one vault.
func (c *Client) Show(owner string, number int) (VaultContents, error) {
	var v VaultContents
	err := c.do(http.MethodGet, vaultPath(owner, number), nil, &v)
	return v, err
}

func (c *Client) Exists(owner string, number int) (bool, error) {
	_, err := c.Show(owner, number)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (c *Client) Overflow(owner string, number int) ([]*schema.SlotEntry, error) {
	var out struct {
		Entries []*schema.SlotEntry `json:"entries"`
	}
	err := c.do(http.MethodGet, vaultPath(owner, number)+"/overflow", nil, &out)
	return out.Entries, err
}

func (c *Client) Delete(owner string, number int) error {
	return c.do(http.MethodDelete, vaultPath(owner, number), nil, nil)
}

func (c *Client) DeleteAll(owner string) error {
	return c.do(http.MethodDelete, "/owners/"+url.PathEscape(owner)+"/vaults", nil, nil)
}

func (c *Client) IsLocked() (bool, error) {
	var out struct {
		Locked bool `json:"locked"`
	}
	err := c.do(http.MethodGet, "/lock", nil, &out)
	return out.Locked, err
}

func (c *Client) SetLocked(locked bool) error {
	return c.do(http.MethodPut, "/lock", map[string]bool{"locked": locked}, nil)
}

func (c *Client) Views() (ViewState, error) {
	var v ViewState
	err := c.do(http.MethodGet, "/views", nil, &v)
	return v, err
}

func (c *Client) Diagnostics() ([]Diagnostic, error) {
	var d []Diagnostic
	err := c.do(http.MethodGet, "/diagnostics", nil, &d)
	return d, err
}
