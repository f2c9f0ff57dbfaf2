package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aldoetobex/section1983-backend/pkg/config"
)

var ErrObjectNotFound = errors.New("object not found")

// Store is the object storage used for evidence files and generated PDFs.
type Store interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string, size int64) error
	SignedURL(ctx context.Context, key string, expiresInSeconds int) (string, error)
	Delete(ctx context.Context, key string) error
	BulkDelete(ctx context.Context, keys []string) error
}

// New returns Supabase when configured, else an in-process Memory store.
func New(cfg config.SupabaseConfig) Store {
	if cfg.Enabled() {
		return NewSupabase(cfg)
	}
	return NewMemory()
}

// Memory keeps objects in a map. Used in development and tests.
type Memory struct {
	mu      sync.Mutex
	objects map[string]memObject
}

type memObject struct {
	data        []byte
	contentType string
}

func NewMemory() *Memory {
	return &Memory{objects: map[string]memObject{}}
}

func (m *Memory) Upload(ctx context.Context, key string, r io.Reader, contentType string, size int64) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memObject{data: b, contentType: contentType}
	return nil
}

func (m *Memory) SignedURL(ctx context.Context, key string, expiresInSeconds int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return "", ErrObjectNotFound
	}
	return fmt.Sprintf("memory://%s?expires_in=%d", key, expiresInSeconds), nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *Memory) BulkDelete(ctx context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.objects, k)
	}
	return nil
}

// Open returns a stored object. Not part of Store; tests use it.
func (m *Memory) Open(key string) (io.Reader, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	if !ok {
		return nil, "", ErrObjectNotFound
	}
	return bytes.NewReader(o.data), o.contentType, nil
}
