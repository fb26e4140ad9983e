package instagram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"igarchiver/pkg/errors"
	"igarchiver/pkg/logger"
	"igarchiver/pkg/retry"
)

func newTestClient(t *testing.T, handler http.Handler, opts Options) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts.BaseURL = server.URL
	if opts.Retry == nil {
		opts.Retry = &retry.Policy{
			MaxAttempts: 2,
			Backoff:     &retry.ConstantBackoff{Delay: time.Millisecond},
		}
	}
	return NewClientWithOptions(opts, logger.NewTestLogger())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func profileFixture() InstagramResponse {
	return InstagramResponse{
		Status: "ok",
		Data: Data{User: &User{
			ID:              "42",
			Username:        "natgeo",
			ProfilePicURLHD: "https://cdn.example/pic.jpg",
			EdgeOwnerToTimelineMedia: EdgeOwnerToTimelineMedia{
				Count:    1,
				PageInfo: PageInfo{HasNextPage: false},
				Edges: []Edge{{Node: Node{
					ID:               "1",
					Shortcode:        "ABC",
					DisplayURL:       "https://cdn.example/abc.jpg",
					TakenAtTimestamp: 1704110400,
				}}},
			},
		}},
	}
}

func TestNewClientSetsHeaders(t *testing.T) {
	var got http.Header
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		writeJSON(w, profileFixture())
	}), Options{SessionID: "sess", CSRFToken: "csrf", UserAgent: "test-agent"})

	_, err := client.FetchProfile(context.Background(), "natgeo")
	require.NoError(t, err)

	assert.Equal(t, "test-agent", got.Get("User-Agent"))
	assert.Equal(t, WebAppID, got.Get("X-IG-App-ID"))
	assert.Equal(t, "sessionid=sess; csrftoken=csrf", got.Get("Cookie"))
	assert.Equal(t, "csrf", got.Get("X-CSRFToken"))
	assert.True(t, client.HasSession())
}

func TestSetSessionClears(t *testing.T) {
	client := NewClient(time.Second, logger.NewNopLogger())
	client.SetSession("a", "b")
	require.True(t, client.HasSession())

	client.SetSession("", "")
	assert.False(t, client.HasSession())
	assert.NotContains(t, client.headers, "X-CSRFToken")
}

func TestFetchProfile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(ProfileEndpoint, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "natgeo", r.URL.Query().Get("username"))
		writeJSON(w, profileFixture())
	})
	client := newTestClient(t, mux, Options{})

	user, err := client.FetchProfile(context.Background(), "natgeo")
	require.NoError(t, err)
	assert.Equal(t, "42", user.ID)
	assert.Equal(t, "https://cdn.example/pic.jpg", user.ProfilePic())
	require.Len(t, user.EdgeOwnerToTimelineMedia.Edges, 1)
	assert.Equal(t, "ABC", user.EdgeOwnerToTimelineMedia.Edges[0].Node.Shortcode)
}

func TestFetchProfileErrors(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		wantType errors.ErrorType
		soft     bool
	}{
		{
			name:     "not found status",
			handler:  func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) },
			wantType: errors.ErrorTypeNotFound,
		},
		{
			name:     "null user",
			handler:  func(w http.ResponseWriter, r *http.Request) { writeJSON(w, InstagramResponse{Status: "ok"}) },
			wantType: errors.ErrorTypeNotFound,
		},
		{
			name: "login required",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, InstagramResponse{RequiresToLogin: true})
			},
			wantType: errors.ErrorTypeAuth,
		},
		{
			name:     "forbidden",
			handler:  func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusForbidden) },
			wantType: errors.ErrorTypeForbidden,
			soft:     true,
		},
		{
			name:     "rate limited",
			handler:  func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTooManyRequests) },
			wantType: errors.ErrorTypeRateLimit,
			soft:     true,
		},
		{
			name: "rate limited via fail body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, map[string]string{"status": "fail", "message": "Please wait a few minutes before you try again."})
			},
			wantType: errors.ErrorTypeRateLimit,
			soft:     true,
		},
		{
			name:     "server error",
			handler:  func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
			wantType: errors.ErrorTypeServerError,
			soft:     true,
		},
		{
			name:     "malformed json",
			handler:  func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("<html>")) },
			wantType: errors.ErrorTypeParsing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler, Options{})

			_, err := client.FetchProfile(context.Background(), "natgeo")
			require.Error(t, err)
			assert.Equal(t, tt.wantType, errors.TypeOf(err))
			assert.Equal(t, tt.soft, errors.IsSoft(err))
		})
	}
}

func TestRetriesServerErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, profileFixture())
	}), Options{})

	_, err := client.FetchProfile(context.Background(), "natgeo")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCircuitBreakerOpens(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}), Options{
		BreakerThreshold: 2,
		Retry:            &retry.Policy{MaxAttempts: 1},
	})

	for i := 0; i < 2; i++ {
		_, err := client.FetchProfile(context.Background(), "natgeo")
		require.Equal(t, errors.ErrorTypeRateLimit, errors.TypeOf(err))
	}

	_, err := client.FetchProfile(context.Background(), "natgeo")
	assert.Equal(t, errors.ErrorTypeCircuitOpen, errors.TypeOf(err))
	assert.True(t, errors.IsSoft(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "open circuit must not hit the server")
}

func TestNotFoundDoesNotTripBreaker(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}), Options{BreakerThreshold: 1, Retry: &retry.Policy{MaxAttempts: 1}})

	for i := 0; i < 3; i++ {
		_, err := client.FetchProfile(context.Background(), "ghost")
		assert.Equal(t, errors.ErrorTypeNotFound, errors.TypeOf(err))
	}
}

func TestFetchTimelinePassesCursor(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(GraphQLEndpoint, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, TimelineQueryHash, r.URL.Query().Get("query_hash"))
		var vars map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("variables")), &vars))
		assert.Equal(t, "42", vars["id"])
		assert.Equal(t, "cursor-1", vars["after"])
		assert.Equal(t, float64(12), vars["first"])
		writeJSON(w, profileFixture())
	})
	client := newTestClient(t, mux, Options{})

	page, err := client.FetchTimeline(context.Background(), "42", "cursor-1", 12)
	require.NoError(t, err)
	assert.Len(t, page.Edges, 1)
}

func TestFetchPost(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(GraphQLEndpoint, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PostQueryHash, r.URL.Query().Get("query_hash"))
		var resp PostResponse
		resp.Data.ShortcodeMedia = &Node{Shortcode: "VID", IsVideo: true, VideoURL: "https://cdn.example/v.mp4"}
		writeJSON(w, resp)
	})
	client := newTestClient(t, mux, Options{})

	node, err := client.FetchPost(context.Background(), "VID")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/v.mp4", node.VideoURL)
}

func TestDownload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer server.Close()

	client := NewClient(time.Second, logger.NewNopLogger())
	data, err := client.Download(context.Background(), server.URL+"/abc.jpg")
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))
}

func TestContextCancellationIsSoft(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, profileFixture())
	}), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchProfile(ctx, "natgeo")
	require.Error(t, err)
	assert.True(t, errors.IsSoft(err))
}
