package netclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// checkProxyTimeout bounds the SOCKS5 handshake performed by CheckProxy.
const checkProxyTimeout = 2 * time.Second

// maxRedirects is the redirect limit of every client.
const maxRedirects = 10

// Options configures a Client.
type Options struct {
	// Timeout bounds a whole request including the body read.
	Timeout time.Duration

	// ProxyAddress is an optional SOCKS5 proxy in "host:port" form.
	ProxyAddress string

	// ProxyUser and ProxyPassword authenticate against the proxy.
	ProxyUser     string
	ProxyPassword string

	// UserAgent is sent on every request.
	UserAgent string

	// Cookie is a raw Cookie header value such as "session=abc".
	Cookie string

	// Headers are set on every request.
	Headers map[string]string

	// MaxBodySize caps decoded response bodies. 0 means unlimited.
	MaxBodySize int64

	// InsecureSkipVerify disables TLS verification. Onion services
	// usually present self-signed certificates.
	InsecureSkipVerify bool
}

// Client issues HTTP requests directly or through a SOCKS5 proxy.
type Client struct {
	opts   Options
	dialer proxy.Dialer
	http   *http.Client
}

// Response is a fully read HTTP response.
type Response struct {
	// URL is the final URL after redirects.
	URL string

	// StatusCode is the HTTP status code.
	StatusCode int

	// ContentType is the Content-Type header.
	ContentType string

	// Body is the decoded response body.
	Body []byte
}

// OK reports whether the status code is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// New creates a client. A proxy address is validated but not contacted;
// call CheckProxy to verify it.
func New(opts Options) (*Client, error) {
	c := &Client{opts: opts}

	if opts.ProxyAddress != "" {
		if !isValidProxyAddress(opts.ProxyAddress) {
			return nil, ErrInvalidProxyAddress
		}
		var auth *proxy.Auth
		if opts.ProxyUser != "" {
			auth = &proxy.Auth{User: opts.ProxyUser, Password: opts.ProxyPassword}
		}
		dialer, err := proxy.SOCKS5("tcp", opts.ProxyAddress, auth, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		c.dialer = dialer
	}

	c.http = c.newHTTPClient()
	return c, nil
}

// isValidProxyAddress checks the "host:port" form with a port in 1-65535.
func isValidProxyAddress(address string) bool {
	host, port, ok := strings.Cut(address, ":")
	if !ok || host == "" || strings.Contains(port, ":") {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil || strings.HasPrefix(port, "+") || strings.HasPrefix(port, "-") {
		return false
	}
	return n >= 1 && n <= 65535
}

func (c *Client) newHTTPClient() *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,
		// Encodings are negotiated and decoded by Get.
		DisableCompression: true,
	}
	if c.dialer != nil {
		transport.DialContext = c.dialContext
	} else {
		transport.DialContext = (&net.Dialer{Timeout: 30 * time.Second}).DialContext
	}
	if c.opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // onion services use self-signed certs
		}
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	return &http.Client{
		Transport: &headerInjectingTransport{
			base:      transport,
			userAgent: c.opts.UserAgent,
			cookie:    c.opts.Cookie,
			headers:   c.opts.Headers,
		},
		Timeout: c.opts.Timeout,
		Jar:     jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// dialContext dials through the SOCKS5 proxy honoring ctx.
func (c *Client) dialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if cd, ok := c.dialer.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, address)
	}

	type dialResult struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan dialResult, 1)
	go func() {
		conn, err := c.dialer.Dial(network, address)
		resultCh <- dialResult{conn, err}
	}()

	select {
	case result := <-resultCh:
		return result.conn, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// HTTPClient returns the underlying HTTP client.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// ProxyAddress returns the configured proxy address, if any.
func (c *Client) ProxyAddress() string {
	return c.opts.ProxyAddress
}

// Get fetches rawURL and returns the decoded body. Non-2xx responses are
// returned without error; check Response.OK.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	reader, err := DecodeBody(resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		return nil, err
	}
	if closer, ok := reader.(io.Closer); ok && reader != resp.Body {
		defer closer.Close()
	}

	body, err := c.readBody(reader)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rawURL, err)
	}

	return &Response{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (c *Client) readBody(r io.Reader) ([]byte, error) {
	if c.opts.MaxBodySize <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, c.opts.MaxBodySize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.opts.MaxBodySize {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}

// SOCKS5 protocol constants.
const (
	socks5Version       = 0x05
	socks5AuthNone      = 0x00
	socks5AuthUserPass  = 0x02
	socks5AuthNoAccept  = 0xFF
	socks5CmdConnect    = 0x01
	socks5AddrTypeDomID = 0x03

	// socks5ProbeHost is a reserved name used for the CONNECT probe. Any
	// reply, success or failure, proves the endpoint is proxying.
	socks5ProbeHost = "sitesnap-probe.invalid"
)

// CheckProxy performs a SOCKS5 handshake with the configured proxy.
// Without a proxy it returns ProxyStatusOK.
func (c *Client) CheckProxy(ctx context.Context) ProxyStatus {
	if c.opts.ProxyAddress == "" {
		return ProxyStatusOK
	}

	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.opts.ProxyAddress)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ProxyStatusCannotConnect
	}

	method := byte(socks5AuthNone)
	if c.opts.ProxyUser != "" {
		method = socks5AuthUserPass
	}
	if _, err := conn.Write([]byte{socks5Version, 0x01, method}); err != nil {
		return ProxyStatusCannotConnect
	}

	authResp := make([]byte, 2)
	if _, err := io.ReadFull(conn, authResp); err != nil {
		return readFailure(err)
	}
	if authResp[0] != socks5Version || authResp[1] == socks5AuthNoAccept || authResp[1] != method {
		return ProxyStatusWrongType
	}
	if method == socks5AuthUserPass {
		// The credentials exchange is left to the real dialer.
		return ProxyStatusOK
	}

	connectReq := []byte{
		socks5Version,
		socks5CmdConnect,
		0x00,
		socks5AddrTypeDomID,
		byte(len(socks5ProbeHost)),
	}
	connectReq = append(connectReq, socks5ProbeHost...)
	connectReq = append(connectReq, 0x00, 80)
	if _, err := conn.Write(connectReq); err != nil {
		return ProxyStatusCannotConnect
	}

	connectResp := make([]byte, 4)
	if _, err := io.ReadFull(conn, connectResp); err != nil {
		return readFailure(err)
	}
	if connectResp[0] != socks5Version {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}

func readFailure(err error) ProxyStatus {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ProxyStatusTimeout
	}
	return ProxyStatusWrongType
}

// headerInjectingTransport sets the User-Agent, cookie, Accept-Encoding
// and extra headers on every request, including redirects.
type headerInjectingTransport struct {
	base      http.RoundTripper
	userAgent string
	cookie    string
	headers   map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if t.userAgent != "" && clone.Header.Get("User-Agent") == "" {
		clone.Header.Set("User-Agent", t.userAgent)
	}
	if clone.Header.Get("Accept-Encoding") == "" {
		clone.Header.Set("Accept-Encoding", AcceptEncoding)
	}
	if t.cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.cookie)
		} else {
			clone.Header.Set("Cookie", t.cookie)
		}
	}
	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}
