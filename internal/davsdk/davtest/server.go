// Package davtest provides an in-memory WebDAV server for tests. It
// implements just enough of RFC 4918 for the client: PROPFIND depth 0/1,
// GET, PUT, DELETE and MKCOL, with etags bumped on every write.
package davtest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"time"
)

type File struct {
	Body     []byte
	ETag     string
	Modified time.Time
}

type Server struct {
	mu       sync.Mutex
	files    map[string]*File
	cols     map[string]bool
	failures map[string]int
	requests map[string]int
	etagSeq  int
	srv      *httptest.Server
}

func NewServer() *Server {
	s := &Server{
		files:    make(map[string]*File),
		cols:     map[string]bool{"/": true},
		failures: make(map[string]int),
		requests: make(map[string]int),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *Server) URL() string {
	return s.srv.URL
}

func (s *Server) Close() {
	s.srv.Close()
}

// MkCol pre-creates a collection.
func (s *Server) MkCol(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cols[normalize(p)] = true
}

// Put stores a file directly, creating parent collections.
func (s *Server) Put(p string, body []byte) *File {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(normalize(p), body)
}

// Get returns the stored file, or nil.
func (s *Server) Get(p string) *File {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files[normalize(p)]
}

// Exists reports whether a file is stored at p.
func (s *Server) Exists(p string) bool {
	return s.Get(p) != nil
}

// FailNext makes the next n non-PROPFIND requests for p return 500.
func (s *Server) FailNext(p string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[normalize(p)] = n
}

// Requests returns how many times method was called on p.
func (s *Server) Requests(method, p string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[method+" "+normalize(p)]
}

func (s *Server) putLocked(p string, body []byte) *File {
	s.etagSeq++
	f := &File{
		Body:     append([]byte(nil), body...),
		ETag:     fmt.Sprintf("etag-%d", s.etagSeq),
		Modified: time.Now().UTC().Truncate(time.Second),
	}
	s.files[p] = f

	dir := path.Dir(p)
	for dir != "/" && dir != "." {
		s.cols[dir] = true
		dir = path.Dir(dir)
	}
	return f
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := normalize(r.URL.Path)
	s.requests[r.Method+" "+p]++

	if r.Method != "PROPFIND" && s.failures[p] > 0 {
		s.failures[p]--
		http.Error(w, "injected failure", http.StatusInternalServerError)
		return
	}

	switch r.Method {
	case "PROPFIND":
		s.handlePropfind(w, r, p)
	case http.MethodGet:
		f, ok := s.files[p]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Etag", `"`+f.ETag+`"`)
		w.WriteHeader(http.StatusOK)
		w.Write(f.Body)
	case http.MethodPut:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f := s.putLocked(p, body)
		w.Header().Set("Etag", `"`+f.ETag+`"`)
		w.WriteHeader(http.StatusCreated)
	case http.MethodDelete:
		if _, ok := s.files[p]; ok {
			delete(s.files, p)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if s.cols[p] {
			delete(s.cols, p)
			for fp := range s.files {
				if strings.HasPrefix(fp, p+"/") {
					delete(s.files, fp)
				}
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.NotFound(w, r)
	case "MKCOL":
		if s.cols[p] {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.cols[p] = true
		w.WriteHeader(http.StatusCreated)
	default:
		http.Error(w, "not implemented", http.StatusNotImplemented)
	}
}

func (s *Server) handlePropfind(w http.ResponseWriter, r *http.Request, p string) {
	depth := r.Header.Get("Depth")

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	b.WriteString(`<D:multistatus xmlns:D="DAV:">` + "\n")

	if s.cols[p] {
		writeColResponse(&b, p)
		if depth == "1" {
			for fp, f := range s.files {
				if path.Dir(fp) == p {
					writeFileResponse(&b, fp, f)
				}
			}
			for cp := range s.cols {
				if cp != p && path.Dir(cp) == p {
					writeColResponse(&b, cp)
				}
			}
		}
	} else if f, ok := s.files[p]; ok {
		writeFileResponse(&b, p, f)
	} else {
		http.NotFound(w, r)
		return
	}

	b.WriteString("</D:multistatus>\n")
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	w.Write([]byte(b.String()))
}

func writeColResponse(b *strings.Builder, p string) {
	href := p
	if href != "/" {
		href += "/"
	}
	fmt.Fprintf(b, `<D:response>
<D:href>%s</D:href>
<D:propstat>
<D:prop>
<D:resourcetype><D:collection/></D:resourcetype>
</D:prop>
<D:status>HTTP/1.1 200 OK</D:status>
</D:propstat>
</D:response>
`, href)
}

func writeFileResponse(b *strings.Builder, p string, f *File) {
	fmt.Fprintf(b, `<D:response>
<D:href>%s</D:href>
<D:propstat>
<D:prop>
<D:resourcetype/>
<D:getetag>"%s"</D:getetag>
<D:getlastmodified>%s</D:getlastmodified>
<D:getcontentlength>%d</D:getcontentlength>
</D:prop>
<D:status>HTTP/1.1 200 OK</D:status>
</D:propstat>
</D:response>
`, p, f.ETag, f.Modified.Format(http.TimeFormat), len(f.Body))
}

func normalize(p string) string {
	p = "/" + strings.Trim(p, "/")
	return p
}
