package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"listkeeper/internal/domain"
	"listkeeper/internal/storage"
)

// Format selects the snapshot encoding.
type Format string

// fixed width, so keys sort in save order
const keyTimeLayout = "20060102T150405.000000000Z"

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Manager writes versioned snapshots of saved lists to object storage in the background.
type Manager interface {
	Start(ctx context.Context) error
	Shutdown()
	// Drain waits until every job queued so far has run, or ctx ends.
	Drain(ctx context.Context) error
	Enqueue(list domain.List)
	Discard(listID int64)
	Snapshots(ctx context.Context, listID int64) ([]Snapshot, error)
}

type Config struct {
	Bucket        string
	KeyPrefix     string
	Format        Format
	MaxConcurrent int
	URLExpiry     time.Duration
	Logger        *logrus.Logger
}

// Snapshot describes one archived version of a list.
type Snapshot struct {
	Key     string
	Size    int64
	SavedAt *time.Time
	URL     string
}

type document struct {
	ListID  int64         `json:"list_id" yaml:"list_id"`
	OwnerID int64         `json:"owner_id" yaml:"owner_id"`
	Name    string        `json:"name" yaml:"name"`
	Tasks   []domain.Task `json:"tasks" yaml:"tasks"`
	SavedAt time.Time     `json:"saved_at" yaml:"saved_at"`
}

type manager struct {
	cfg     Config
	storage storage.Service

	sem    chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	// last job per list; jobs for one list run in submission order
	active map[int64]*jobHandle
}

type jobHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(cfg Config, store storage.Service) (Manager, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("snapshot bucket is required")
	}
	switch cfg.Format {
	case "":
		cfg.Format = FormatJSON
	case FormatJSON, FormatYAML:
	default:
		return nil, fmt.Errorf("unsupported snapshot format %q", cfg.Format)
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = 15 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	cfg.KeyPrefix = strings.Trim(cfg.KeyPrefix, "/")

	return &manager{
		cfg:     cfg,
		storage: store,
		sem:     make(chan struct{}, cfg.MaxConcurrent),
		active:  make(map[int64]*jobHandle),
	}, nil
}

func (m *manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx != nil {
		return fmt.Errorf("snapshot manager already started")
	}
	// only Shutdown stops jobs, so uploads already running can finish
	m.ctx, m.cancel = context.WithCancel(context.WithoutCancel(ctx))
	m.cfg.Logger.Infof("snapshot manager started, bucket: %s", m.cfg.Bucket)
	return nil
}

// Shutdown stops accepting jobs and waits for running ones. Jobs still queued once the
// running ones drain are dropped.
func (m *manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	cancel := m.cancel
	m.mu.Unlock()

	// let jobs already holding a slot finish before cancelling the rest
	for i := 0; i < cap(m.sem); i++ {
		m.sem <- struct{}{}
	}
	if cancel != nil {
		cancel()
	}
	for i := 0; i < cap(m.sem); i++ {
		<-m.sem
	}
	m.wg.Wait()
	m.cfg.Logger.Info("snapshot manager stopped")
}

func (m *manager) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *manager) Enqueue(list domain.List) {
	tasks := make([]domain.Task, len(list.Tasks))
	copy(tasks, list.Tasks)
	doc := document{
		ListID:  list.ID,
		OwnerID: list.OwnerID,
		Name:    list.Name,
		Tasks:   tasks,
		SavedAt: time.Now().UTC(),
	}

	m.spawn(list.ID, "upload", false, func(ctx context.Context) error {
		return m.upload(ctx, doc)
	})
}

// Discard removes every snapshot of a deleted list, cancelling a pending upload first.
func (m *manager) Discard(listID int64) {
	m.spawn(listID, "discard", true, func(ctx context.Context) error {
		return m.storage.DeletePrefix(ctx, m.cfg.Bucket, m.listPrefix(listID))
	})
}

// Snapshots lists the archived versions of a list, newest first.
func (m *manager) Snapshots(ctx context.Context, listID int64) ([]Snapshot, error) {
	objects, err := m.storage.ListObjects(ctx, m.cfg.Bucket, m.listPrefix(listID))
	if err != nil {
		return nil, err
	}
	// keys start with the save time
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key > objects[j].Key })

	snapshots := make([]Snapshot, 0, len(objects))
	for _, obj := range objects {
		url, err := m.storage.GetObjectURL(ctx, m.cfg.Bucket, obj.Key, m.cfg.URLExpiry)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, Snapshot{
			Key:     obj.Key,
			Size:    obj.Size,
			SavedAt: obj.LastModified,
			URL:     url,
		})
	}
	return snapshots, nil
}

func (m *manager) spawn(listID int64, kind string, cancelPrevious bool, run func(ctx context.Context) error) {
	logger := m.cfg.Logger.WithFields(logrus.Fields{"list_id": listID, "job": kind})

	m.mu.Lock()
	if m.ctx == nil || m.closed {
		m.mu.Unlock()
		logger.Warn("snapshot manager not running, dropping job")
		return
	}
	prev := m.active[listID]
	if prev != nil && cancelPrevious {
		prev.cancel()
	}
	jobCtx, cancel := context.WithCancel(m.ctx)
	handle := &jobHandle{cancel: cancel, done: make(chan struct{})}
	m.active[listID] = handle
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			if m.active[listID] == handle {
				delete(m.active, listID)
			}
			m.mu.Unlock()
			cancel()
			close(handle.done)
		}()

		if prev != nil {
			select {
			case <-prev.done:
			case <-jobCtx.Done():
				return
			}
		}

		select {
		case <-jobCtx.Done():
			logger.Debug("job cancelled before start")
			return
		case m.sem <- struct{}{}:
			defer func() { <-m.sem }()
		}
		if jobCtx.Err() != nil {
			return
		}

		if err := run(jobCtx); err != nil {
			logger.Errorf("snapshot job failed: %v", err)
			return
		}
		logger.Debug("snapshot job done")
	}()
}

func (m *manager) upload(ctx context.Context, doc document) error {
	body, contentType, err := encode(m.cfg.Format, doc)
	if err != nil {
		return err
	}
	key := path.Join(m.listPrefix(doc.ListID), fmt.Sprintf("%s-%s.%s",
		doc.SavedAt.Format(keyTimeLayout), uuid.NewString(), m.cfg.Format))

	location, err := m.storage.PutObject(ctx, body, storage.PutOptions{
		Bucket:      m.cfg.Bucket,
		Key:         key,
		ContentType: contentType,
		Metadata: map[string]string{
			"list-id":  strconv.FormatInt(doc.ListID, 10),
			"owner-id": strconv.FormatInt(doc.OwnerID, 10),
		},
	})
	if err != nil {
		return err
	}
	m.cfg.Logger.WithField("list_id", doc.ListID).Infof("snapshot stored at %s", location)
	return nil
}

func (m *manager) listPrefix(listID int64) string {
	p := fmt.Sprintf("lists/%d/", listID)
	if m.cfg.KeyPrefix != "" {
		p = m.cfg.KeyPrefix + "/" + p
	}
	return p
}

func encode(format Format, doc document) ([]byte, string, error) {
	switch format {
	case FormatYAML:
		body, err := yaml.Marshal(doc)
		if err != nil {
			return nil, "", fmt.Errorf("encode yaml snapshot: %w", err)
		}
		return body, "application/yaml", nil
	default:
		body, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("encode json snapshot: %w", err)
		}
		return body, "application/json", nil
	}
}
