package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeObjectStore serves a minimal path-style S3 API from memory.
type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeObjectStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := r.URL.Path
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		w.WriteHeader(http.StatusOK)
	case http.MethodGet, http.MethodHead:
		data, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			if r.Method == http.MethodGet {
				_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			}
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(data)
		}
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestS3(t *testing.T) (*S3, *fakeObjectStore) {
	t.Helper()
	fake := &fakeObjectStore{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := NewS3(S3Config{
		Endpoint:        srv.URL,
		Bucket:          "speech-kit-wav",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	})
	require.NoError(t, err)
	return s, fake
}

func TestS3SaveReadExists(t *testing.T) {
	ctx := context.Background()
	s, fake := newTestS3(t)

	require.NoError(t, s.Save(ctx, []byte("wav bytes"), "1_abc/converted.wav"))
	assert.Contains(t, fake.objects, "/speech-kit-wav/1_abc/converted.wav")

	data, err := s.Read(ctx, "1_abc/converted.wav")
	require.NoError(t, err)
	assert.Equal(t, "wav bytes", string(data))

	ok, err := s.Exists(ctx, "1_abc/converted.wav")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "1_abc/missing.wav")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Read(ctx, "1_abc/missing.wav")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3PresignGet(t *testing.T) {
	s, _ := newTestS3(t)

	url, err := s.PresignGet(context.Background(), "audio_1700000000000")
	require.NoError(t, err)
	assert.Contains(t, url, "/speech-kit-wav/audio_1700000000000")
	assert.Contains(t, url, "X-Amz-Expires=3600")
	assert.Contains(t, url, "X-Amz-Signature=")
}

func TestNewS3RequiresBucket(t *testing.T) {
	_, err := NewS3(S3Config{})
	assert.Error(t, err)
}
