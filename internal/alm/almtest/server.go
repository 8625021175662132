// Package almtest provides an in-memory ALM REST server for tests.
//
// It speaks the same dialect as the real server closely enough for the client
// and the synchronization engine: basic-auth login handing out session
// cookies, entity collections with {field[value];...} filters and
// page-size/start-index paging, create/update by id, attachments and
// structured QCRestException failures.
package almtest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/flarebyte/almsync/internal/alm"
)

const (
	// SessionCookie is the cookie handed out on login and required afterwards.
	SessionCookie = "LWSSO_COOKIE_KEY"
	// ExtraCookie is a second cookie to check that all cookies are replayed.
	ExtraCookie = "QCSession"
)

// Request is one call received by the server.
type Request struct {
	Method string
	// Resource is the path below the project root, e.g. "tests" or "runs/7/run-steps".
	Resource string
	Query    url.Values
	Record   *alm.Record
	Cookies  map[string]string
	Header   http.Header
}

// Attachment is an uploaded file.
type Attachment struct {
	Resource string
	ID       string
	Filename string
	Data     []byte
}

type fault struct {
	method   string
	resource string
	err      *alm.RemoteServiceError
	status   int
}

// Server is the fake. Domain and project names are created on first use.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	users       map[string]string
	sessions    map[string]bool
	nextID      int
	tokens      int
	store       map[string][]alm.Record // key: domain/project/collection
	domains     map[string][]string
	requests    []Request
	attachments []Attachment
	faults      []fault
}

// New starts a server that accepts username/password and stops it when the test ends.
func New(tb testing.TB, username, password string) *Server {
	s := &Server{
		users:    map[string]string{username: password},
		sessions: map[string]bool{},
		nextID:   1000,
		store:    map[string][]alm.Record{},
		domains:  map[string][]string{},
	}
	s.Server = httptest.NewServer(s.router())
	tb.Cleanup(s.Close)
	return s
}

// BaseURL is the server root as configured for the client.
func (s *Server) BaseURL() string { return s.Server.URL + "/qcbin" }

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Route("/qcbin", func(r chi.Router) {
		r.Get("/authentication-point/authenticate", s.authenticate)
		r.Get("/authentication-point/logout", s.logout)
		r.Get("/rest/is-authenticated", s.isAuthenticated)
		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			r.Get("/rest/domains", s.listDomains)
			r.Get("/rest/domains/{domain}/projects", s.listProjects)
			r.Get("/rest/domains/{domain}/projects/{project}/*", s.getResource)
			r.Post("/rest/domains/{domain}/projects/{project}/*", s.postResource)
			r.Put("/rest/domains/{domain}/projects/{project}/*", s.putResource)
		})
	})
	return r
}

// AddProject registers a domain/project pair for the listing endpoints.
func (s *Server) AddProject(domain, project string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.domains[domain] = append(s.domains[domain], project)
}

// Seed stores a record directly and returns its id.
func (s *Server) Seed(domain, project, resource, typ string, fields ...alm.Field) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(key(domain, project, resource), alm.Record{Type: typ, Fields: fields})
}

// SeedFolder creates a folder chain under the root of resource and returns the leaf id.
func (s *Server) SeedFolder(domain, project, resource, path string) string {
	parent := "0"
	for _, seg := range alm.SplitPath(path) {
		if id, ok := s.find(domain, project, resource, parent, seg); ok {
			parent = id
			continue
		}
		parent = s.Seed(domain, project, resource, strings.TrimSuffix(resource, "s"),
			alm.Field{Name: "parent-id", Value: parent}, alm.Field{Name: "name", Value: seg})
	}
	return parent
}

func (s *Server) find(domain, project, resource, parent, name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.store[key(domain, project, resource)] {
		if value(r, "parent-id") == parent && value(r, "name") == name {
			return value(r, "id"), true
		}
	}
	return "", false
}

// Records returns a copy of the records stored in a collection.
func (s *Server) Records(domain, project, resource string) []alm.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.store[key(domain, project, resource)]
	out := make([]alm.Record, len(src))
	for i, r := range src {
		out[i] = alm.Record{Type: r.Type, Fields: append([]alm.Field(nil), r.Fields...)}
	}
	return out
}

// Requests returns every project-scoped request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Count returns how many requests hit method on resource.
func (s *Server) Count(method, resource string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Resource == resource {
			n++
		}
	}
	return n
}

// Attachments returns the uploaded files.
func (s *Server) Attachments() []Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Attachment(nil), s.attachments...)
}

// FailWith makes every later request with method on a resource starting with
// prefix answer HTTP 500 with a structured exception body.
func (s *Server) FailWith(method, prefix string, err *alm.RemoteServiceError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, fault{method: method, resource: prefix, err: err, status: http.StatusInternalServerError})
}

// FailStatus makes matching requests answer status with a plain text body.
func (s *Server) FailStatus(method, prefix string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, fault{method: method, resource: prefix, status: status})
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	s.mu.Lock()
	expected, known := s.users[user]
	s.mu.Unlock()
	if !ok || !known || expected != pass {
		w.Header().Set("WWW-Authenticate", `Basic realm="ALM"`)
		http.Error(w, "Authentication failed", http.StatusUnauthorized)
		return
	}
	s.mu.Lock()
	s.tokens++
	token := "token-" + strconv.Itoa(s.tokens)
	s.sessions[token] = true
	s.mu.Unlock()
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: token, Path: "/"})
	http.SetCookie(w, &http.Cookie{Name: ExtraCookie, Value: "qc-" + token, Path: "/"})
	w.WriteHeader(http.StatusOK)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookie); err == nil {
		s.mu.Lock()
		delete(s.sessions, c.Value)
		s.mu.Unlock()
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) authenticated(r *http.Request) bool {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return false
	}
	if extra, err := r.Cookie(ExtraCookie); err != nil || extra.Value != "qc-"+c.Value {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[c.Value]
}

func (s *Server) isAuthenticated(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticated(r) {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) listDomains(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	var b strings.Builder
	b.WriteString("<Domains>")
	for _, d := range sortedKeys(s.domains) {
		fmt.Fprintf(&b, `<Domain Name="%s"/>`, d)
	}
	b.WriteString("</Domains>")
	s.mu.Unlock()
	writeXML(w, http.StatusOK, []byte(b.String()))
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	domain := param(r, "domain")
	s.mu.Lock()
	projects, ok := s.domains[domain]
	s.mu.Unlock()
	if !ok {
		s.writeRemote(w, &alm.RemoteServiceError{ID: "qccore.domain-not-found", Title: "Domain " + domain + " not found"})
		return
	}
	var b strings.Builder
	b.WriteString("<Projects>")
	for _, p := range projects {
		fmt.Fprintf(&b, `<Project Name="%s"/>`, p)
	}
	b.WriteString("</Projects>")
	writeXML(w, http.StatusOK, []byte(b.String()))
}

func (s *Server) getResource(w http.ResponseWriter, r *http.Request) {
	domain, project, resource := s.scope(r)
	s.record(r, resource, nil)
	if s.fail(w, r.Method, resource) {
		return
	}
	collection, id := splitItem(resource)
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" {
		for _, rec := range s.store[key(domain, project, collection)] {
			if value(rec, "id") == id {
				b, _ := alm.MarshalRecord(rec)
				writeXML(w, http.StatusOK, b)
				return
			}
		}
		http.NotFound(w, r)
		return
	}
	preds, err := parseFilter(r.URL.Query().Get("query"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var matched []alm.Record
	for _, rec := range s.store[key(domain, project, resource)] {
		if matches(rec, preds) {
			matched = append(matched, rec)
		}
	}
	size := atoiDefault(r.URL.Query().Get("page-size"), 100)
	start := atoiDefault(r.URL.Query().Get("start-index"), 1) - 1
	var page []alm.Record
	if start >= 0 && start < len(matched) {
		end := start + size
		if end > len(matched) {
			end = len(matched)
		}
		page = matched[start:end]
	}
	b, _ := alm.MarshalRecords(page, len(matched))
	writeXML(w, http.StatusOK, b)
}

func (s *Server) postResource(w http.ResponseWriter, r *http.Request) {
	domain, project, resource := s.scope(r)
	if strings.HasSuffix(resource, "/attachments") {
		s.record(r, resource, nil)
		if s.fail(w, r.Method, resource) {
			return
		}
		collection, id := splitItem(strings.TrimSuffix(resource, "/attachments"))
		data, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.attachments = append(s.attachments, Attachment{Resource: collection, ID: id, Filename: r.Header.Get("Slug"), Data: data})
		s.mu.Unlock()
		writeXML(w, http.StatusCreated, []byte(`<Entity Type="attachment"><Fields/></Entity>`))
		return
	}
	rec, ok := readRecord(w, r)
	if !ok {
		return
	}
	s.record(r, resource, &rec)
	if s.fail(w, r.Method, resource) {
		return
	}
	s.mu.Lock()
	k := key(domain, project, resource)
	s.insert(k, rec)
	stored := s.store[k][len(s.store[k])-1]
	s.mu.Unlock()
	b, _ := alm.MarshalRecord(stored)
	writeXML(w, http.StatusCreated, b)
}

func (s *Server) putResource(w http.ResponseWriter, r *http.Request) {
	domain, project, resource := s.scope(r)
	rec, ok := readRecord(w, r)
	if !ok {
		return
	}
	s.record(r, resource, &rec)
	if s.fail(w, r.Method, resource) {
		return
	}
	collection, id := splitItem(resource)
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(domain, project, collection)
	for i, stored := range s.store[k] {
		if value(stored, "id") != id {
			continue
		}
		for _, f := range rec.Fields {
			if f.Name == "id" {
				continue
			}
			setValue(&stored, f.Name, f.Value)
		}
		s.store[k][i] = stored
		b, _ := alm.MarshalRecord(stored)
		writeXML(w, http.StatusOK, b)
		return
	}
	http.NotFound(w, r)
}

// insert must be called with mu held.
func (s *Server) insert(k string, rec alm.Record) string {
	s.nextID++
	id := strconv.Itoa(s.nextID)
	stored := alm.Record{Type: rec.Type, Fields: []alm.Field{{Name: "id", Value: id}}}
	for _, f := range rec.Fields {
		if f.Name != "id" {
			stored.Fields = append(stored.Fields, f)
		}
	}
	stored.Fields = append(stored.Fields, alm.Field{Name: "ver-stamp", Value: "1"})
	s.store[k] = append(s.store[k], stored)
	return id
}

func (s *Server) scope(r *http.Request) (string, string, string) {
	return param(r, "domain"), param(r, "project"), strings.Trim(param(r, "*"), "/")
}

func (s *Server) record(r *http.Request, resource string, rec *alm.Record) {
	cookies := map[string]string{}
	for _, c := range r.Cookies() {
		cookies[c.Name] = c.Value
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, Request{
		Method:   r.Method,
		Resource: resource,
		Query:    r.URL.Query(),
		Record:   rec,
		Cookies:  cookies,
		Header:   r.Header.Clone(),
	})
}

func (s *Server) fail(w http.ResponseWriter, method, resource string) bool {
	s.mu.Lock()
	var hit *fault
	for i := range s.faults {
		f := s.faults[i]
		if f.method == method && strings.HasPrefix(resource, f.resource) {
			hit = &f
			break
		}
	}
	s.mu.Unlock()
	if hit == nil {
		return false
	}
	if hit.err != nil {
		s.writeRemote(w, hit.err)
		return true
	}
	http.Error(w, http.StatusText(hit.status), hit.status)
	return true
}

func (s *Server) writeRemote(w http.ResponseWriter, err *alm.RemoteServiceError) {
	b, _ := alm.MarshalRemoteError(err)
	writeXML(w, http.StatusInternalServerError, b)
}

func readRecord(w http.ResponseWriter, r *http.Request) (alm.Record, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return alm.Record{}, false
	}
	rec, err := alm.UnmarshalRecord(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return alm.Record{}, false
	}
	return rec, true
}

func writeXML(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func param(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

// splitItem splits "runs/12" into ("runs", "12"); collections return an empty id.
func splitItem(resource string) (string, string) {
	i := strings.LastIndexByte(resource, '/')
	if i < 0 {
		return resource, ""
	}
	if _, err := strconv.Atoi(resource[i+1:]); err != nil {
		return resource, ""
	}
	return resource[:i], resource[i+1:]
}

func key(domain, project, resource string) string {
	return domain + "/" + project + "/" + resource
}

func value(r alm.Record, name string) string {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

func setValue(r *alm.Record, name, v string) {
	for i := range r.Fields {
		if r.Fields[i].Name == name {
			r.Fields[i].Value = v
			return
		}
	}
	r.Fields = append(r.Fields, alm.Field{Name: name, Value: v})
}

func atoiDefault(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func sortedKeys(m map[string][]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
