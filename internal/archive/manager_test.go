package archive_test

import (
	"context"
	"encoding/json"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"listkeeper/internal/archive"
	"listkeeper/internal/domain"
	"listkeeper/internal/storage"
)

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	meta    map[string]map[string]string
}

func newMemStorage() *memStorage {
	return &memStorage{
		objects: map[string][]byte{},
		types:   map[string]string{},
		meta:    map[string]map[string]string{},
	}
}

func (s *memStorage) PutObject(_ context.Context, body []byte, opts storage.PutOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[opts.Key] = append([]byte(nil), body...)
	s.types[opts.Key] = opts.ContentType
	s.meta[opts.Key] = opts.Metadata
	return "mem://" + opts.Bucket + "/" + opts.Key, nil
}

func (s *memStorage) ListObjects(_ context.Context, _, prefix string) ([]storage.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.ObjectInfo
	for key, body := range s.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, storage.ObjectInfo{Key: key, Size: int64(len(body))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *memStorage) DeletePrefix(_ context.Context, _, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			delete(s.objects, key)
		}
	}
	return nil
}

func (s *memStorage) GetObjectURL(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	return "https://example.invalid/" + bucket + "/" + key, nil
}

func (s *memStorage) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func groceries() domain.List {
	return domain.List{
		ID:      3,
		OwnerID: 1,
		Name:    "Groceries",
		Tasks:   []domain.Task{{Description: "Milk", Priority: "1"}, {Description: "Eggs", Priority: "2"}},
	}
}

func TestNewManagerValidation(t *testing.T) {
	t.Parallel()

	_, err := archive.NewManager(archive.Config{}, newMemStorage())
	assert.Error(t, err)

	_, err = archive.NewManager(archive.Config{Bucket: "b", Format: "xml"}, newMemStorage())
	assert.Error(t, err)
}

func TestEnqueueWritesJSONSnapshot(t *testing.T) {
	t.Parallel()

	store := newMemStorage()
	m, err := archive.NewManager(archive.Config{Bucket: "b", KeyPrefix: "/snaps/", Logger: quietLogger()}, store)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))

	m.Enqueue(groceries())
	require.NoError(t, m.Drain(context.Background()))
	m.Shutdown()

	keys := store.keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], "snaps/lists/3/"))
	assert.True(t, strings.HasSuffix(keys[0], ".json"))
	assert.Equal(t, "application/json", store.types[keys[0]])
	assert.Equal(t, map[string]string{"list-id": "3", "owner-id": "1"}, store.meta[keys[0]])

	var doc struct {
		ListID int64         `json:"list_id"`
		Name   string        `json:"name"`
		Tasks  []domain.Task `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(store.objects[keys[0]], &doc))
	assert.Equal(t, int64(3), doc.ListID)
	assert.Equal(t, "Groceries", doc.Name)
	assert.Equal(t, groceries().Tasks, doc.Tasks)
}

func TestEnqueueWritesYAMLSnapshot(t *testing.T) {
	t.Parallel()

	store := newMemStorage()
	m, err := archive.NewManager(archive.Config{Bucket: "b", Format: archive.FormatYAML, Logger: quietLogger()}, store)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))

	m.Enqueue(groceries())
	require.NoError(t, m.Drain(context.Background()))
	m.Shutdown()

	keys := store.keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], "lists/3/"))

	var doc struct {
		Name  string        `yaml:"name"`
		Tasks []domain.Task `yaml:"tasks"`
	}
	require.NoError(t, yaml.Unmarshal(store.objects[keys[0]], &doc))
	assert.Equal(t, "Groceries", doc.Name)
	assert.Equal(t, groceries().Tasks, doc.Tasks)
}

func TestSnapshotsAndDiscard(t *testing.T) {
	t.Parallel()

	store := newMemStorage()
	m, err := archive.NewManager(archive.Config{Bucket: "b", Logger: quietLogger()}, store)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))

	list := groceries()
	m.Enqueue(list)
	m.Enqueue(list)

	other := groceries()
	other.ID = 4
	m.Enqueue(other)

	require.Eventually(t, func() bool { return len(store.keys()) == 3 }, time.Second, 10*time.Millisecond)

	snaps, err := m.Snapshots(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Contains(t, snaps[0].URL, snaps[0].Key)
	assert.Greater(t, snaps[0].Key, snaps[1].Key)

	m.Discard(3)
	require.NoError(t, m.Drain(context.Background()))
	m.Shutdown()

	keys := store.keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], "lists/4/"))
}

func TestEnqueueBeforeStartIsDropped(t *testing.T) {
	t.Parallel()

	store := newMemStorage()
	m, err := archive.NewManager(archive.Config{Bucket: "b", Logger: quietLogger()}, store)
	require.NoError(t, err)

	m.Enqueue(groceries())
	m.Shutdown()
	assert.Empty(t, store.keys())
}

// gatedStorage blocks every upload until release is closed.
type gatedStorage struct {
	*memStorage
	started chan struct{}
	release chan struct{}
	once    sync.Once
	err     error
}

func (s *gatedStorage) PutObject(ctx context.Context, body []byte, opts storage.PutOptions) (string, error) {
	s.once.Do(func() { close(s.started) })
	select {
	case <-s.release:
	case <-ctx.Done():
		s.err = ctx.Err()
		return "", ctx.Err()
	}
	return s.memStorage.PutObject(ctx, body, opts)
}

func TestShutdownFinishesRunningUploadAfterStartContextEnds(t *testing.T) {
	t.Parallel()

	store := &gatedStorage{
		memStorage: newMemStorage(),
		started:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	m, err := archive.NewManager(archive.Config{Bucket: "b", Logger: quietLogger()}, store)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Start(ctx))

	m.Enqueue(groceries())
	select {
	case <-store.started:
	case <-time.After(time.Second):
		t.Fatal("upload never started")
	}

	// the process context ends first, as on SIGTERM
	cancel()

	done := make(chan struct{})
	go func() {
		m.Shutdown()
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	close(store.release)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("shutdown did not return")
	}
	assert.NoError(t, store.err)
	assert.Len(t, store.keys(), 1)
}

func TestSnapshotsNewestFirstWithinOneSecond(t *testing.T) {
	t.Parallel()

	store := newMemStorage()
	m, err := archive.NewManager(archive.Config{Bucket: "b", Logger: quietLogger()}, store)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	defer m.Shutdown()

	list := groceries()
	for _, name := range []string{"first", "second", "third"} {
		list.Name = name
		m.Enqueue(list)
	}
	require.Eventually(t, func() bool { return len(store.keys()) == 3 }, time.Second, 10*time.Millisecond)

	snaps, err := m.Snapshots(context.Background(), list.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 3)

	var names []string
	for _, snap := range snaps {
		var doc struct {
			Name string `json:"name"`
		}
		store.mu.Lock()
		body := store.objects[snap.Key]
		store.mu.Unlock()
		require.NoError(t, json.Unmarshal(body, &doc))
		names = append(names, doc.Name)
	}
	assert.Equal(t, []string{"third", "second", "first"}, names)
}

func TestDrainRunsEveryQueuedDiscard(t *testing.T) {
	t.Parallel()

	store := newMemStorage()
	m, err := archive.NewManager(archive.Config{Bucket: "b", MaxConcurrent: 1, Logger: quietLogger()}, store)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))

	list := groceries()
	for id := int64(1); id <= 5; id++ {
		list.ID = id
		m.Enqueue(list)
	}
	require.NoError(t, m.Drain(context.Background()))
	require.Len(t, store.keys(), 5)

	for id := int64(1); id <= 5; id++ {
		m.Discard(id)
	}
	require.NoError(t, m.Drain(context.Background()))
	m.Shutdown()
	assert.Empty(t, store.keys())
}

func TestDrainStopsWaitingWhenContextEnds(t *testing.T) {
	t.Parallel()

	store := &gatedStorage{
		memStorage: newMemStorage(),
		started:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	m, err := archive.NewManager(archive.Config{Bucket: "b", Logger: quietLogger()}, store)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))

	m.Enqueue(groceries())
	<-store.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Drain(ctx), context.DeadlineExceeded)

	close(store.release)
	require.NoError(t, m.Drain(context.Background()))
	m.Shutdown()
	assert.Len(t, store.keys(), 1)
}
