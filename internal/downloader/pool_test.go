package downloader

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"igarchiver/pkg/logger"
	"igarchiver/pkg/ratelimit"
)

// MockClient is a mock media downloader
type MockClient struct {
	downloadDelay   time.Duration
	downloadError   error
	downloadCounter int32
}

func (m *MockClient) Download(ctx context.Context, url string) ([]byte, error) {
	atomic.AddInt32(&m.downloadCounter, 1)
	if m.downloadDelay > 0 {
		select {
		case <-time.After(m.downloadDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.downloadError != nil {
		return nil, m.downloadError
	}
	return []byte("mock media data"), nil
}

func (m *MockClient) GetDownloadCount() int {
	return int(atomic.LoadInt32(&m.downloadCounter))
}

// MockStorageManager is an in-memory MediaStorage
type MockStorageManager struct {
	saved     map[string]bool
	saveError error
	mu        sync.Mutex
}

func NewMockStorageManager() *MockStorageManager {
	return &MockStorageManager{saved: make(map[string]bool)}
}

func (m *MockStorageManager) Has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[name]
}

func (m *MockStorageManager) SaveMedia(r io.Reader, name string) (int64, error) {
	if m.saveError != nil {
		return 0, m.saveError
	}
	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[name] = true
	return n, nil
}

func (m *MockStorageManager) GetSavedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

func job(i int) DownloadJob {
	return DownloadJob{
		URL:       fmt.Sprintf("https://cdn.example/%d.jpg", i),
		Filename:  fmt.Sprintf("2024-01-01_12-00-%02d_UTC.jpg", i),
		Shortcode: fmt.Sprintf("shortcode%d", i),
		Username:  "testuser",
	}
}

// runPool submits jobs, stops the pool and returns every result
func runPool(t *testing.T, pool *WorkerPool, jobs []DownloadJob) []DownloadResult {
	t.Helper()
	pool.Start()

	var results []DownloadResult
	done := make(chan struct{})
	go func() {
		defer close(done)
		for result := range pool.Results() {
			results = append(results, result)
		}
	}()

	for _, j := range jobs {
		require.NoError(t, pool.Submit(j))
	}
	pool.Stop()
	<-done
	return results
}

func TestWorkerPoolBasicFunctionality(t *testing.T) {
	client := &MockClient{downloadDelay: 5 * time.Millisecond}
	store := NewMockStorageManager()
	pool := NewWorkerPool(context.Background(), 3, client, store, ratelimit.New(6000, 10), logger.NewTestLogger())

	var jobs []DownloadJob
	for i := 0; i < 10; i++ {
		jobs = append(jobs, job(i))
	}
	results := runPool(t, pool, jobs)

	require.Len(t, results, 10)
	for _, r := range results {
		assert.True(t, r.Success)
		assert.False(t, r.Skipped)
		assert.Equal(t, int64(len("mock media data")), r.Size)
	}
	assert.Equal(t, 10, client.GetDownloadCount())
	assert.Equal(t, 10, store.GetSavedCount())
}

func TestWorkerPoolWithErrors(t *testing.T) {
	client := &MockClient{downloadError: fmt.Errorf("download error")}
	log := logger.NewTestLogger()
	pool := NewWorkerPool(context.Background(), 2, client, NewMockStorageManager(), nil, log)

	results := runPool(t, pool, []DownloadJob{job(0), job(1), job(2)})

	require.Len(t, results, 3)
	for _, r := range results {
		assert.False(t, r.Success)
		assert.ErrorContains(t, r.Error, "download error")
	}
	assert.True(t, log.HasMessage("Download failed"))
}

func TestWorkerPoolSaveError(t *testing.T) {
	store := NewMockStorageManager()
	store.saveError = fmt.Errorf("disk full")
	pool := NewWorkerPool(context.Background(), 1, &MockClient{}, store, nil, logger.NewNopLogger())

	results := runPool(t, pool, []DownloadJob{job(0)})

	require.Len(t, results, 1)
	assert.ErrorContains(t, results[0].Error, "save failed")
}

func TestWorkerPoolConcurrency(t *testing.T) {
	client := &MockClient{downloadDelay: 50 * time.Millisecond}
	pool := NewWorkerPool(context.Background(), 5, client, NewMockStorageManager(), nil, logger.NewNopLogger())

	var jobs []DownloadJob
	for i := 0; i < 10; i++ {
		jobs = append(jobs, job(i))
	}

	start := time.Now()
	results := runPool(t, pool, jobs)
	elapsed := time.Since(start)

	assert.Len(t, results, 10)
	assert.Less(t, elapsed, 400*time.Millisecond, "five workers should overlap downloads")
}

func TestWorkerPoolDuplicateDetection(t *testing.T) {
	client := &MockClient{}
	store := NewMockStorageManager()
	store.saved[job(1).Filename] = true
	store.saved[job(3).Filename] = true

	pool := NewWorkerPool(context.Background(), 2, client, store, nil, logger.NewNopLogger())
	results := runPool(t, pool, []DownloadJob{job(0), job(1), job(2), job(3)})

	require.Len(t, results, 4)
	skipped := 0
	for _, r := range results {
		assert.True(t, r.Success)
		if r.Skipped {
			skipped++
		}
	}
	assert.Equal(t, 2, skipped)
	assert.Equal(t, 2, client.GetDownloadCount())
	assert.Equal(t, 4, store.GetSavedCount())
}

func TestWorkerPoolCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &MockClient{downloadDelay: time.Second}
	pool := NewWorkerPool(ctx, 1, client, NewMockStorageManager(), nil, logger.NewNopLogger())
	pool.Start()

	require.NoError(t, pool.Submit(job(0)))
	time.Sleep(10 * time.Millisecond)
	cancel()

	assert.Error(t, pool.Submit(job(1)))

	done := make(chan struct{})
	go func() {
		for range pool.Results() {
		}
		close(done)
	}()
	pool.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool did not stop after cancellation")
	}
}
