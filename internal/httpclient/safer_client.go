// Package httpclient builds the HTTP client used for model endpoints.
// Remote providers get a client that refuses private and loopback
// addresses; the local provider opts out.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teranos/featsmith/errors"
)

// DefaultMaxRedirects caps the redirect chain of a model request
const DefaultMaxRedirects = 5

// Options configures a SaferClient
type Options struct {
	Timeout      time.Duration
	AllowPrivate bool // permit loopback and RFC 1918 targets (local inference)
	MaxRedirects int  // 0 = DefaultMaxRedirects
}

// SaferClient wraps http.Client with URL validation and a dialer that
// rejects private addresses after DNS resolution.
type SaferClient struct {
	*http.Client
	allowPrivate bool
	maxRedirects int
}

// New creates a SaferClient
func New(opts Options) *SaferClient {
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = DefaultMaxRedirects
	}
	c := &SaferClient{
		Client:       &http.Client{Timeout: opts.Timeout},
		allowPrivate: opts.AllowPrivate,
		maxRedirects: opts.MaxRedirects,
	}

	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= c.maxRedirects {
			return errors.Newf("stopped after %d redirects", c.maxRedirects)
		}
		if err := c.validate(req.URL); err != nil {
			return errors.Wrap(err, "redirect blocked")
		}
		return nil
	}

	if !c.allowPrivate {
		dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
		c.Transport = &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				host, _, err := net.SplitHostPort(addr)
				if err != nil {
					return nil, errors.Wrap(err, "invalid address")
				}
				ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
				if err != nil {
					return nil, errors.Wrapf(err, "resolve %q", host)
				}
				for _, ip := range ips {
					if isPrivateIP(ip) {
						return nil, errors.Newf("private IP address blocked: %s", ip)
					}
				}
				return dialer.DialContext(ctx, network, addr)
			},
			MaxIdleConns:          20,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
	}
	return c
}

// Wrap adapts an existing http.Client (e.g. one from httptest) without
// address restrictions.
func Wrap(client *http.Client) *SaferClient {
	return &SaferClient{Client: client, allowPrivate: true, maxRedirects: DefaultMaxRedirects}
}

// ValidateURL parses and checks a URL before any request is made
func (c *SaferClient) ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(err, "invalid URL")
	}
	if err := c.validate(u); err != nil {
		return nil, err
	}
	return u, nil
}

// Do validates the request URL and sends the request
func (c *SaferClient) Do(req *http.Request) (*http.Response, error) {
	if err := c.validate(req.URL); err != nil {
		return nil, errors.Wrap(err, "request blocked")
	}
	return c.Client.Do(req)
}

func (c *SaferClient) validate(u *url.URL) error {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return errors.Newf("scheme %q not allowed", scheme)
	}
	if u.User != nil {
		return errors.New("URL must not carry credentials")
	}
	host := u.Hostname()
	if host == "" {
		return errors.New("URL missing hostname")
	}
	if c.allowPrivate {
		return nil
	}
	if isLocalhost(host) {
		return errors.New("localhost access blocked")
	}
	if ip := net.ParseIP(host); ip != nil && isPrivateIP(ip) {
		return errors.Newf("private IP address blocked: %s", host)
	}
	return nil
}

var privateBlocks = func() []*net.IPNet {
	cidrs := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16",
		"0.0.0.0/8",
		"224.0.0.0/4",
		"240.0.0.0/4",
		"fc00::/7",
		"fec0::/10",
	}
	blocks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, block, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(err)
		}
		blocks = append(blocks, block)
	}
	return blocks
}()

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsMulticast() || ip.IsUnspecified() {
		return true
	}
	for _, block := range privateBlocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

func isLocalhost(host string) bool {
	host = strings.ToLower(host)
	return host == "localhost" || host == "localhost.localdomain" || strings.HasSuffix(host, ".localhost")
}
