package portalclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/muurk/wifiportal/internal/version"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 10 * time.Second

	// DefaultMaxRetries is the default number of retry attempts for failed requests
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the default delay between retry attempts
	DefaultRetryDelay = 1 * time.Second

	// DefaultMaxRetryDelay is the maximum delay for exponential backoff
	DefaultMaxRetryDelay = 30 * time.Second

	// maxBodySize bounds how much of a page is read.
	maxBodySize = 1 << 20
)

// Client is an HTTP client for a wifiportal configuration portal.
type Client struct {
	// BaseURL is the portal base URL (e.g., "http://192.168.4.1:80")
	BaseURL string

	// HTTPClient is the underlying HTTP client. Redirects are not followed
	// so a captive redirect surfaces as an error.
	HTTPClient *http.Client

	// MaxRetries is the maximum number of retry attempts for failed requests
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts
	RetryDelay time.Duration

	// MaxRetryDelay caps the exponential backoff
	MaxRetryDelay time.Duration

	// UserAgent is sent with every request
	UserAgent string
}

// NewClient creates a client for the portal at ip:port.
func NewClient(ip string, port int) *Client {
	return NewClientWithURL("http://" + net.JoinHostPort(ip, strconv.Itoa(port)))
}

// NewClientWithURL creates a client with a full base URL.
func NewClientWithURL(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		MaxRetries:    DefaultMaxRetries,
		RetryDelay:    DefaultRetryDelay,
		MaxRetryDelay: DefaultMaxRetryDelay,
		UserAgent:     version.UserAgent(),
	}
}

// SetTimeout sets the HTTP request timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.HTTPClient.Timeout = timeout
}

// SetRetry configures retry behavior
func (c *Client) SetRetry(maxRetries int, retryDelay time.Duration) {
	c.MaxRetries = maxRetries
	c.RetryDelay = retryDelay
}

// Ping checks that the landing page answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.get(ctx, "/")
	return err
}

// Provision submits credentials, static addressing and custom field values
// to /wifisave. The portal answers before the connection attempt finishes;
// use Info to follow progress.
func (c *Client) Provision(ctx context.Context, req *ProvisionRequest) error {
	if errs := req.Validate(); len(errs) > 0 {
		return errs[0]
	}
	body, err := c.get(ctx, "/wifisave?"+req.FormData().Encode())
	if err != nil {
		return err
	}
	if !strings.Contains(body, "Credentials saved") {
		return NewParseError("unexpected /wifisave response", nil)
	}
	return nil
}

// Networks returns the networks the portal currently lists on /wifi.
func (c *Client) Networks(ctx context.Context) ([]Network, error) {
	body, err := c.get(ctx, "/wifi")
	if err != nil {
		return nil, err
	}
	return ParseNetworks(body)
}

// RequestScan asks the portal to rescan. The new list is available a few
// seconds later from Networks.
func (c *Client) RequestScan(ctx context.Context) error {
	_, err := c.get(ctx, "/wifi?scan=1")
	return err
}

// Info returns the diagnostics shown on /i.
func (c *Client) Info(ctx context.Context) (*DeviceInfo, error) {
	body, err := c.get(ctx, "/i")
	if err != nil {
		return nil, err
	}
	info, err := ParseInfo(body)
	if err != nil {
		return nil, err
	}
	if len(info.Fields) == 0 {
		return nil, NewParseError("no diagnostics found on /i", nil)
	}
	return info, nil
}

// Reset asks the device to restart.
func (c *Client) Reset(ctx context.Context) error {
	return c.retry(ctx, func() error {
		_, err := c.do(ctx, http.MethodPost, "/r", nil)
		return err
	})
}

func (c *Client) get(ctx context.Context, path string) (string, error) {
	var body string
	err := c.retry(ctx, func() error {
		b, err := c.do(ctx, http.MethodGet, path, nil)
		body = b
		return err
	})
	return body, err
}

// retry runs fn until it succeeds, returns a non-retryable error, or the
// attempts run out. Delays double up to MaxRetryDelay.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := c.RetryDelay

	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return NewNetworkError("request cancelled", ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
			if c.MaxRetryDelay > 0 && delay > c.MaxRetryDelay {
				delay = c.MaxRetryDelay
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return err
		}
	}
	return lastErr
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (string, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return "", NewNetworkError(fmt.Sprintf("failed to create %s request", method), err)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		e := NewNetworkError(fmt.Sprintf("%s %s failed", method, path), err)
		e.DeviceURL = c.BaseURL
		return "", e
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", NewNetworkError("failed to read response body", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return string(data), nil
	case resp.StatusCode == http.StatusFound:
		return "", NewRedirectError(resp.Header.Get("Location"))
	case resp.StatusCode == http.StatusServiceUnavailable:
		return "", NewBusyError(resp.Header.Get("Retry-After"))
	default:
		return "", NewHTTPError(resp.StatusCode, fmt.Sprintf("%s %s returned status %d", method, path, resp.StatusCode))
	}
}

// ProvisionRequest is what /wifisave accepts.
type ProvisionRequest struct {
	SSID       string
	Passphrase string

	// Static addressing; all empty means DHCP.
	IP      string
	Gateway string
	Subnet  string
	DNS1    string
	DNS2    string

	// Fields holds custom parameter values keyed by field ID.
	Fields map[string]string
}

// FormData encodes the request the way the portal form submits it.
func (r *ProvisionRequest) FormData() url.Values {
	form := url.Values{}
	form.Set("s", r.SSID)
	form.Set("p", r.Passphrase)
	for _, kv := range [][2]string{
		{"ip", r.IP}, {"gw", r.Gateway}, {"sn", r.Subnet}, {"dns1", r.DNS1}, {"dns2", r.DNS2},
	} {
		if kv[1] != "" {
			form.Set(kv[0], kv[1])
		}
	}
	for k, v := range r.Fields {
		form.Set(k, v)
	}
	return form
}
