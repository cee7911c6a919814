package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockStore is an in-memory MultipartStore for tests. Failures can be
// injected per operation and key with FailOn.
type MockStore struct {
	mu       sync.RWMutex
	objects  map[string]mockObject
	failures map[string]error
	uploads  map[string]*mockUpload
	seq      int
	closed   bool
}

type mockObject struct {
	data []byte
	meta ObjectMeta
	opts PutOptions
}

// NewMockStore creates an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		objects:  make(map[string]mockObject),
		failures: make(map[string]error),
		uploads:  make(map[string]*mockUpload),
	}
}

// FailOn makes op ("Put", "Get", "Delete", "List", "UploadPart", ...) on key
// return err. An empty key matches every key.
func (s *MockStore) FailOn(op, key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op+"\x00"+key] = err
}

func (s *MockStore) injected(op, key string) error {
	if s.closed {
		return &ObjectError{Op: op, Key: key, Err: ErrClosed}
	}
	if err, ok := s.failures[op+"\x00"+key]; ok {
		return &ObjectError{Op: op, Key: key, Err: err}
	}
	if err, ok := s.failures[op+"\x00"]; ok {
		return &ObjectError{Op: op, Key: key, Err: err}
	}
	return nil
}

func (s *MockStore) Put(_ context.Context, key string, r io.Reader, size int64, _ string, opts PutOptions) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return &ObjectError{Op: "Put", Key: key, Err: err}
	}
	if int64(len(data)) != size {
		return &ObjectError{Op: "Put", Key: key, Err: fmt.Errorf("size mismatch: declared %d, read %d", size, len(data))}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("Put", key); err != nil {
		return err
	}
	s.store(key, data, opts)
	return nil
}

func (s *MockStore) store(key string, data []byte, opts PutOptions) {
	s.objects[key] = mockObject{
		data: data,
		opts: opts,
		meta: ObjectMeta{
			Key:          key,
			Size:         int64(len(data)),
			ETag:         fmt.Sprintf("mock-%d", len(data)),
			LastModified: time.Now().UnixMilli(),
		},
	}
}

func (s *MockStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("Get", key); err != nil {
		return nil, err
	}
	obj, ok := s.objects[key]
	if !ok {
		return nil, &ObjectError{Op: "Get", Key: key, Err: ErrNotFound}
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *MockStore) Head(_ context.Context, key string) (ObjectMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("Head", key); err != nil {
		return ObjectMeta{}, err
	}
	obj, ok := s.objects[key]
	if !ok {
		return ObjectMeta{}, &ObjectError{Op: "Head", Key: key, Err: ErrNotFound}
	}
	return obj.meta, nil
}

func (s *MockStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("Delete", key); err != nil {
		return err
	}
	delete(s.objects, key)
	return nil
}

func (s *MockStore) List(_ context.Context, prefix string) ([]ObjectMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("List", prefix); err != nil {
		return nil, err
	}

	var out []ObjectMeta
	for key, obj := range s.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, obj.meta)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MockStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Keys returns every stored key in lexicographic order.
func (s *MockStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Options returns the PutOptions an object was stored with.
func (s *MockStore) Options(key string) (PutOptions, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	return obj.opts, ok
}

// PendingUploads counts multipart uploads neither completed nor aborted.
func (s *MockStore) PendingUploads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.uploads)
}

func (s *MockStore) CreateMultipartUpload(_ context.Context, key, _ string, opts PutOptions) (MultipartUpload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("CreateMultipartUpload", key); err != nil {
		return nil, err
	}
	s.seq++
	u := &mockUpload{
		store: s,
		key:   key,
		id:    fmt.Sprintf("upload-%d", s.seq),
		opts:  opts,
		parts: make(map[int][]byte),
	}
	s.uploads[u.id] = u
	return u, nil
}

type mockUpload struct {
	store *MockStore
	key   string
	id    string
	opts  PutOptions
	parts map[int][]byte
}

func (u *mockUpload) UploadID() string { return u.id }

func (u *mockUpload) UploadPart(_ context.Context, partNum int, r io.Reader, size int64) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", &ObjectError{Op: "UploadPart", Key: u.key, Err: err}
	}
	if int64(len(data)) != size {
		return "", &ObjectError{Op: "UploadPart", Key: u.key, Err: fmt.Errorf("size mismatch: declared %d, read %d", size, len(data))}
	}

	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	if err := u.store.injected("UploadPart", u.key); err != nil {
		return "", err
	}
	u.parts[partNum] = data
	return fmt.Sprintf("etag-%d", partNum), nil
}

func (u *mockUpload) Complete(_ context.Context, etags []string) error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	if err := u.store.injected("CompleteMultipartUpload", u.key); err != nil {
		return err
	}

	var buf bytes.Buffer
	for i, etag := range etags {
		part, ok := u.parts[i+1]
		if !ok || etag != fmt.Sprintf("etag-%d", i+1) {
			return &ObjectError{Op: "CompleteMultipartUpload", Key: u.key, Err: fmt.Errorf("part %d missing", i+1)}
		}
		buf.Write(part)
	}
	u.store.store(u.key, buf.Bytes(), u.opts)
	delete(u.store.uploads, u.id)
	return nil
}

func (u *mockUpload) Abort(context.Context) error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	delete(u.store.uploads, u.id)
	return nil
}

var (
	_ MultipartStore  = (*MockStore)(nil)
	_ MultipartUpload = (*mockUpload)(nil)
)
