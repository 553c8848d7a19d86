// Package portal is the protocol adapter for the club's scheduling portal.
// The portal is a session-based web application with no structured API:
// authentication is an RC4 key exchange, the tee sheet is scraped out of
// HTML, and booking outcomes are read from literal response markers. Every
// quirk in here exists because the peer requires it.
package portal

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

const (
	fetchAttempts = 10
	fetchDelay    = 2 * time.Second

	userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

type Credentials struct {
	Username string
	Password string
}

// Client talks to one portal instance. It owns the session (token + cookie
// jar) exclusively; the fetcher and submitter read it through here.
type Client struct {
	base  string
	creds Credentials
	hc    *http.Client
	jar   *cookiejar.Jar
	store SessionStore
	log   *zap.Logger

	token string

	// retryDelay is fetchDelay in production; tests shrink it.
	retryDelay time.Duration
}

func New(base string, creds Credentials, store SessionStore, log *zap.Logger) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		base:  strings.TrimRight(base, "/"),
		creds: creds,
		hc: &http.Client{
			Timeout: 20 * time.Second,
			Jar:     jar,
		},
		jar:        jar,
		store:      store,
		log:        log,
		retryDelay: fetchDelay,
	}, nil
}

// SetRetryDelay overrides the fixed inter-attempt delay. Test hook.
func (c *Client) SetRetryDelay(d time.Duration) { c.retryDelay = d }

// nonce returns a cache-defeating value for the "_" query parameter.
func nonce() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return strconv.FormatUint(binary.BigEndian.Uint64(b[:]), 10)
}

// get issues a GET against path with query values and returns the body.
func (c *Client) get(ctx context.Context, path string, q url.Values) (string, error) {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Cache-Control", "no-cache")
	return c.do(req)
}

// postForm issues a form POST against path and returns the body.
func (c *Client) postForm(ctx context.Context, path string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (string, error) {
	res, err := c.hc.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}
	if res.StatusCode >= 500 {
		return "", fmt.Errorf("portal: http %d on %s", res.StatusCode, req.URL.Path)
	}
	return string(b), nil
}

// classifyNetErr maps a transport error to the retry taxonomy.
func classifyNetErr(err error) NetClass {
	if err == nil {
		return NetOther
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NetTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return NetTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return NetRefused
	}
	return NetOther
}

// sleep waits for the fixed inter-attempt delay or until ctx is done.
func (c *Client) sleep(ctx context.Context) error {
	t := time.NewTimer(c.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
