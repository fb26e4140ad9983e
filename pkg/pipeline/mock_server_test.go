package pipeline

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"igarchiver/pkg/instagram"
)

// mockInstagramServer serves the profile, timeline, post and CDN endpoints
// the archiver uses
type mockInstagramServer struct {
	server       *httptest.Server
	requestCount int32

	mu             sync.RWMutex
	users          map[string]*instagram.User
	pages          map[string]instagram.EdgeOwnerToTimelineMedia
	posts          map[string]*instagram.Node
	errorResponses map[string]int // cursor or path prefix -> status code
}

func newMockInstagramServer() *mockInstagramServer {
	m := &mockInstagramServer{
		users:          make(map[string]*instagram.User),
		pages:          make(map[string]instagram.EdgeOwnerToTimelineMedia),
		posts:          make(map[string]*instagram.Node),
		errorResponses: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(instagram.ProfileEndpoint, m.handleProfile)
	mux.HandleFunc(instagram.GraphQLEndpoint, m.handleGraphQL)
	mux.HandleFunc("/cdn/", m.handleMedia)

	m.server = httptest.NewServer(mux)
	return m
}

func (m *mockInstagramServer) URL() string { return m.server.URL }

func (m *mockInstagramServer) Close() { m.server.Close() }

// MediaURL returns a CDN URL served by the mock
func (m *mockInstagramServer) MediaURL(name string) string {
	return m.server.URL + "/cdn/" + name
}

func (m *mockInstagramServer) SetError(key string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorResponses[key] = status
}

func (m *mockInstagramServer) errorFor(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.errorResponses[key]
}

func (m *mockInstagramServer) handleProfile(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&m.requestCount, 1)

	username := r.URL.Query().Get("username")
	if code := m.errorFor("profile"); code != 0 {
		w.WriteHeader(code)
		return
	}

	m.mu.RLock()
	user, ok := m.users[username]
	m.mu.RUnlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, instagram.InstagramResponse{Status: "ok", Data: instagram.Data{User: user}})
}

func (m *mockInstagramServer) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&m.requestCount, 1)

	var vars struct {
		ID        string `json:"id"`
		After     string `json:"after"`
		Shortcode string `json:"shortcode"`
	}
	if err := json.Unmarshal([]byte(r.URL.Query().Get("variables")), &vars); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	switch r.URL.Query().Get("query_hash") {
	case instagram.TimelineQueryHash:
		if code := m.errorFor(vars.After); code != 0 {
			w.WriteHeader(code)
			return
		}
		m.mu.RLock()
		page, ok := m.pages[vars.After]
		m.mu.RUnlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, instagram.InstagramResponse{
			Status: "ok",
			Data:   instagram.Data{User: &instagram.User{ID: vars.ID, EdgeOwnerToTimelineMedia: page}},
		})

	case instagram.PostQueryHash:
		m.mu.RLock()
		node := m.posts[vars.Shortcode]
		m.mu.RUnlock()
		var resp instagram.PostResponse
		resp.Status = "ok"
		resp.Data.ShortcodeMedia = node
		writeJSON(w, resp)

	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (m *mockInstagramServer) handleMedia(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/cdn/")
	if code := m.errorFor("cdn/" + name); code != 0 {
		w.WriteHeader(code)
		return
	}
	// Simulate a CDN that takes a moment
	time.Sleep(time.Millisecond)
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write([]byte("media:" + name))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
