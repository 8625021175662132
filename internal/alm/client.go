package alm

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	mediaXML   = "application/xml"
	mediaText  = "text/plain"
	mediaOctet = "application/octet-stream"
)

// Options tunes the underlying HTTP client.
type Options struct {
	InsecureSkipVerify bool
	// Timeout of zero leaves requests unbounded.
	Timeout time.Duration
	// HTTPClient replaces the client built from the fields above.
	HTTPClient *http.Client
}

// Client addresses one ALM server, e.g. https://alm.example.com/qcbin.
type Client struct {
	httpClient *http.Client
	root       target
}

// NewClient validates baseURL and builds a client for it.
func NewClient(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("server url %q: missing host", baseURL)
	}
	hc := opts.HTTPClient
	if hc == nil {
		tr := &http.Transport{Proxy: http.ProxyFromEnvironment}
		if u.Scheme == "https" && opts.InsecureSkipVerify {
			tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // dev-only
		}
		hc = &http.Client{Transport: tr, Timeout: opts.Timeout}
	}
	u.RawQuery = ""
	u.Fragment = ""
	return &Client{
		httpClient: hc,
		root:       target{base: strings.TrimRight(u.String(), "/")},
	}, nil
}

// Login performs the basic-auth challenge and returns a session carrying
// whatever cookies the server handed out.
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	s := c.NewSession()
	t := c.root.path("authentication-point", "authenticate")
	req, err := http.NewRequest(http.MethodGet, t.String(), nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(username, password)
	req.Header.Set("Accept", mediaText)
	status, body, err := s.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}
	if status == http.StatusOK {
		return s, nil
	}
	if rerr := remoteError(status, body); rerr != nil {
		return nil, rerr
	}
	return nil, fmt.Errorf("%w: user %q (status=%d)", ErrAuthenticationFailed, username, status)
}

// NewSession returns an unauthenticated session. Most servers reject every
// call on it; Login is the usual way to get one.
func (c *Client) NewSession() *Session {
	return &Session{client: c, cookies: map[string]*http.Cookie{}}
}

// Session replays the cookies captured from every response it has seen.
// Cookies accumulate for the lifetime of the session and never expire.
// A session is not safe for concurrent use.
type Session struct {
	client  *Client
	cookies map[string]*http.Cookie
}

// Cookies returns the captured cookies ordered by name.
func (s *Session) Cookies() []*http.Cookie {
	names := make([]string, 0, len(s.cookies))
	for n := range s.cookies {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*http.Cookie, 0, len(names))
	for _, n := range names {
		out = append(out, &http.Cookie{Name: n, Value: s.cookies[n].Value})
	}
	return out
}

// IsAuthenticated probes rest/is-authenticated.
func (s *Session) IsAuthenticated(ctx context.Context) (bool, error) {
	req, err := http.NewRequest(http.MethodGet, s.client.root.path("rest", "is-authenticated").String(), nil)
	if err != nil {
		return false, err
	}
	status, body, err := s.roundTrip(ctx, req)
	if err != nil {
		return false, err
	}
	if rerr := remoteError(status, body); rerr != nil {
		return false, rerr
	}
	return status == http.StatusOK, nil
}

// Logout ends the server session. Failures are ignored.
func (s *Session) Logout(ctx context.Context) {
	req, err := http.NewRequest(http.MethodGet, s.client.root.path("authentication-point", "logout").String(), nil)
	if err != nil {
		return
	}
	_, _, _ = s.roundTrip(ctx, req)
	s.cookies = map[string]*http.Cookie{}
}

// Domains lists the domain names visible to the session.
func (s *Session) Domains(ctx context.Context) ([]string, error) {
	body, err := s.get(ctx, s.client.root.path("rest", "domains"), nil)
	if err != nil {
		return nil, err
	}
	var x domainsXML
	if err := xml.Unmarshal(body, &x); err != nil {
		return nil, fmt.Errorf("decode domains: %w", err)
	}
	out := make([]string, 0, len(x.Domains))
	for _, d := range x.Domains {
		out = append(out, d.Name)
	}
	return out, nil
}

// Projects lists the project names of one domain.
func (s *Session) Projects(ctx context.Context, domain string) ([]string, error) {
	body, err := s.get(ctx, s.client.root.path("rest", "domains").path(domain).path("projects"), nil)
	if err != nil {
		return nil, err
	}
	var x projectsXML
	if err := xml.Unmarshal(body, &x); err != nil {
		return nil, fmt.Errorf("decode projects: %w", err)
	}
	out := make([]string, 0, len(x.Projects))
	for _, p := range x.Projects {
		out = append(out, p.Name)
	}
	return out, nil
}

// Create returns a detached entity bound to the collection endpoint of resource,
// e.g. "tests" or "runs/42/run-steps". Populate it and call Post.
func (s *Session) Create(domain, project, resource string) *Entity {
	return &Entity{session: s, collection: s.projectRoot(domain, project).path(resource)}
}

// Query returns a query builder scoped to one project.
func (s *Session) Query(domain, project string) *Query {
	return &Query{session: s, root: s.projectRoot(domain, project)}
}

func (s *Session) projectRoot(domain, project string) target {
	return s.client.root.path("rest", "domains").path(domain).path("projects").path(project)
}

func (s *Session) get(ctx context.Context, t target, query url.Values) ([]byte, error) {
	u := t.String()
	if len(query) > 0 {
		u += "?" + encodeQuery(query)
	}
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", mediaXML)
	return s.send(ctx, req)
}

func (s *Session) sendXML(ctx context.Context, method string, t target, r Record) ([]byte, error) {
	payload, err := MarshalRecord(r)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(method, t.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mediaXML)
	req.Header.Set("Accept", mediaXML)
	return s.send(ctx, req)
}

// send performs the round trip and translates any non-2xx status into an error.
func (s *Session) send(ctx context.Context, req *http.Request) ([]byte, error) {
	status, body, err := s.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}
	if status >= 200 && status < 300 {
		return body, nil
	}
	if rerr := remoteError(status, body); rerr != nil {
		return nil, rerr
	}
	return nil, &TransportError{Method: req.Method, URL: req.URL.String(), StatusCode: status, Body: string(body)}
}

func (s *Session) roundTrip(ctx context.Context, req *http.Request) (int, []byte, error) {
	req = req.WithContext(ctx)
	for _, c := range s.Cookies() {
		req.AddCookie(c)
	}
	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Method: req.Method, URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()
	for _, c := range resp.Cookies() {
		s.cookies[c.Name] = c
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &TransportError{Method: req.Method, URL: req.URL.String(), StatusCode: resp.StatusCode, Err: err}
	}
	return resp.StatusCode, body, nil
}

// remoteError recognises the structured exception body sent with HTTP 500.
func remoteError(status int, body []byte) error {
	if status != http.StatusInternalServerError || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if rerr, ok := unmarshalRemoteError(body); ok {
		return rerr
	}
	return nil
}

// target is an absolute URL built one escaped path segment at a time.
type target struct {
	base string
}

// path appends segments; a segment containing "/" contributes each of its parts.
func (t target) path(segments ...string) target {
	var b strings.Builder
	b.WriteString(t.base)
	for _, seg := range segments {
		for _, part := range strings.Split(seg, "/") {
			if part == "" {
				continue
			}
			b.WriteByte('/')
			b.WriteString(url.PathEscape(part))
		}
	}
	return target{base: b.String()}
}

func (t target) String() string { return t.base }

// encodeQuery percent-encodes values with spaces as %20, in key order.
func encodeQuery(v url.Values) string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		for _, val := range v[k] {
			parts = append(parts, escapeQueryParam(k)+"="+escapeQueryParam(val))
		}
	}
	return strings.Join(parts, "&")
}

func escapeQueryParam(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
