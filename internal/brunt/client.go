package brunt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/lucsky/cuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"
)

const (
	DefaultLoginURL           = "https://sky.brunt.co/session"
	DefaultThingListURL       = "https://sky.brunt.co/thing"
	DefaultThingManagementURL = "https://thing.brunt.co:8080/thing"

	// The vendor API refuses requests that do not look like the mobile app.
	headerAccept         = "application/vnd.brunt.v1+json"
	headerAcceptLanguage = "en-gb"
	headerUserAgent      = "Mozilla/5.0 (iPhone; CPU iPhone OS 11_3 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E216"

	MinPosition = 0
	MaxPosition = 100
)

type Credentials struct {
	Username string
	Password string
}

func (c Credentials) Validate() error {
	if c.Username == "" || c.Password == "" {
		return ErrMissingCredentials
	}
	return nil
}

// Client talks to the Brunt cloud API on behalf of one account.
// The session cookie lives in the http.Client's jar.
type Client struct {
	httpClient *http.Client
	creds      Credentials
	metrics    *Metrics

	loginURL           string
	thingListURL       string
	thingManagementURL string
}

type Option func(*Client)

func WithLoginURL(u string) Option {
	return func(c *Client) { c.loginURL = u }
}

func WithThingListURL(u string) Option {
	return func(c *Client) { c.thingListURL = u }
}

func WithThingManagementURL(u string) Option {
	return func(c *Client) { c.thingManagementURL = u }
}

func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewHTTPClient returns a client with a cookie jar suitable for a Brunt session.
func NewHTTPClient(timeout time.Duration) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, errors.Wrap(err, "brunt: cookie jar")
	}
	return &http.Client{Jar: jar, Timeout: timeout}, nil
}

func NewClient(httpClient *http.Client, creds Credentials, opts ...Option) *Client {
	c := &Client{
		httpClient:         httpClient,
		creds:              creds,
		loginURL:           DefaultLoginURL,
		thingListURL:       DefaultThingListURL,
		thingManagementURL: DefaultThingManagementURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticate logs in against the session endpoint. It returns nil only for
// HTTP 200, an error matching ErrAuthenticationRejected for any other status,
// and a *TransportError when no response was received.
func (c *Client) Authenticate(ctx context.Context) error {
	if err := c.creds.Validate(); err != nil {
		return err
	}

	log := logrus.WithField("op", cuid.Slug())
	started := time.Now()

	payload, err := loginBody(c.creds)
	if err != nil {
		return errors.Wrap(err, "brunt: encode login")
	}

	resp, err := c.do(ctx, "login", http.MethodPost, c.loginURL, "application/x-www-form-urlencoded", payload)
	if err != nil {
		log.Errorf("%s: %s", c.creds.Username, reason(err))
		c.metrics.observe("login", "transport", started)
		return err
	}
	drain(resp)

	if resp.StatusCode != http.StatusOK {
		log.Warnf("%s: login rejected with status %d", c.creds.Username, resp.StatusCode)
		c.metrics.observe("login", "rejected", started)
		return rejectedError{status: resp.StatusCode}
	}

	log.Debugf("%s: logged in", c.creds.Username)
	c.metrics.observe("login", "ok", started)
	return nil
}

// ListDevices returns the account's blind engines in the order the API lists them.
func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	if err := c.Authenticate(ctx); err != nil {
		return nil, errors.Wrap(err, "brunt: list devices")
	}

	started := time.Now()
	resp, err := c.do(ctx, "connection", http.MethodGet, c.thingListURL, "", nil)
	if err != nil {
		c.metrics.observe("list", "transport", started)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		drain(resp)
		c.metrics.observe("list", "status", started)
		return nil, &HTTPStatusError{Op: "list devices", Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.observe("list", "transport", started)
		return nil, newTransportError("connection", err)
	}

	devices, err := parseDevices(body)
	if err != nil {
		c.metrics.observe("list", "parse", started)
		return nil, err
	}

	logrus.Debugf("%s: %d devices listed", c.creds.Username, len(devices))
	c.metrics.observe("list", "ok", started)
	return devices, nil
}

// CheckAccess reports whether the device answers with 200. Transport failures
// are returned to the caller.
func (c *Client) CheckAccess(ctx context.Context, deviceURI string) (bool, error) {
	if err := c.Authenticate(ctx); err != nil {
		return false, errors.Wrapf(err, "brunt: check access %s", deviceURI)
	}

	started := time.Now()
	resp, err := c.do(ctx, "connection", http.MethodGet, c.thingManagementURL+deviceURI, "", nil)
	if err != nil {
		c.metrics.observe("access", "transport", started)
		return false, err
	}
	drain(resp)

	ok := resp.StatusCode == http.StatusOK
	c.metrics.observe("access", outcome(ok), started)
	return ok, nil
}

// SetPosition requests a new position for the device. Values outside
// [MinPosition, MaxPosition] are refused without touching the network.
func (c *Client) SetPosition(ctx context.Context, deviceURI string, position int) bool {
	if position < MinPosition || position > MaxPosition {
		logrus.Warnf("%s: position %d out of range", deviceURI, position)
		return false
	}

	if err := c.Authenticate(ctx); err != nil {
		logrus.Errorf("%s: set position %d skipped: %s", deviceURI, position, err)
		return false
	}

	started := time.Now()
	body := []byte(fmt.Sprintf(`{"requestPosition": "%d"}`, position))
	resp, err := c.do(ctx, "connection", http.MethodPut, c.thingManagementURL+deviceURI, "application/json", body)
	if err != nil {
		logrus.Errorf("%s: %s", deviceURI, reason(err))
		c.metrics.observe("position", "transport", started)
		return false
	}
	drain(resp)

	ok := resp.StatusCode == http.StatusOK
	if !ok {
		logrus.Warnf("%s: set position %d answered %d", deviceURI, position, resp.StatusCode)
	}
	c.metrics.observe("position", outcome(ok), started)
	return ok
}

// do sends one request with the vendor header profile. Errors are always
// *TransportError.
func (c *Client) do(ctx context.Context, op, method, url, contentType string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, newTransportError(op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", headerAccept)
	req.Header.Set("Accept-Language", headerAcceptLanguage)
	req.Header.Set("User-Agent", headerUserAgent)

	logrus.Tracef("brunt: %s %s", method, url)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newTransportError(op, err)
	}
	return resp, nil
}

// loginBody lays the credentials out as {"ID": "..", "PASS": ".."}, the exact
// shape the session endpoint expects. Values are JSON escaped but not HTML escaped.
func loginBody(creds Credentials) ([]byte, error) {
	id, err := jsonString(creds.Username)
	if err != nil {
		return nil, err
	}
	pass, err := jsonString(creds.Password)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf(`{"ID": %s, "PASS": %s}`, id, pass)), nil
}

func jsonString(v string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func reason(err error) string {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Reason()
	}
	return err.Error()
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "status"
}
