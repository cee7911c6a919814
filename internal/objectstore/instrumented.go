package objectstore

import (
	"context"
	"io"
	"time"
)

// MetricsRecorder receives one observation per store operation. It keeps
// this package independent of the metrics package.
type MetricsRecorder interface {
	RecordPut(durationSeconds float64, success bool, bytes int64)
	RecordGet(durationSeconds float64, success bool, bytes int64)
	RecordHead(durationSeconds float64, success bool)
	RecordDelete(durationSeconds float64, success bool)
	RecordList(durationSeconds float64, success bool)
	RecordUploadPart(durationSeconds float64, success bool, bytes int64)
}

// InstrumentedStore wraps a MultipartStore and records metrics for each
// operation. A nil recorder passes operations straight through.
type InstrumentedStore struct {
	store   MultipartStore
	metrics MetricsRecorder
}

func NewInstrumentedStore(store MultipartStore, metrics MetricsRecorder) *InstrumentedStore {
	return &InstrumentedStore{store: store, metrics: metrics}
}

func (s *InstrumentedStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, opts PutOptions) error {
	start := time.Now()
	err := s.store.Put(ctx, key, r, size, contentType, opts)
	if s.metrics != nil {
		s.metrics.RecordPut(time.Since(start).Seconds(), err == nil, size)
	}
	return err
}

func (s *InstrumentedStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := s.store.Get(ctx, key)
	if s.metrics == nil {
		return rc, err
	}
	if err != nil {
		s.metrics.RecordGet(time.Since(start).Seconds(), false, 0)
		return nil, err
	}
	return &instrumentedReadCloser{ReadCloser: rc, start: start, metrics: s.metrics}, nil
}

func (s *InstrumentedStore) Head(ctx context.Context, key string) (ObjectMeta, error) {
	start := time.Now()
	meta, err := s.store.Head(ctx, key)
	if s.metrics != nil {
		s.metrics.RecordHead(time.Since(start).Seconds(), err == nil)
	}
	return meta, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.store.Delete(ctx, key)
	if s.metrics != nil {
		s.metrics.RecordDelete(time.Since(start).Seconds(), err == nil)
	}
	return err
}

func (s *InstrumentedStore) List(ctx context.Context, prefix string) ([]ObjectMeta, error) {
	start := time.Now()
	out, err := s.store.List(ctx, prefix)
	if s.metrics != nil {
		s.metrics.RecordList(time.Since(start).Seconds(), err == nil)
	}
	return out, err
}

func (s *InstrumentedStore) Close() error {
	return s.store.Close()
}

func (s *InstrumentedStore) CreateMultipartUpload(ctx context.Context, key, contentType string, opts PutOptions) (MultipartUpload, error) {
	u, err := s.store.CreateMultipartUpload(ctx, key, contentType, opts)
	if err != nil || s.metrics == nil {
		return u, err
	}
	return &instrumentedUpload{MultipartUpload: u, metrics: s.metrics}, nil
}

type instrumentedUpload struct {
	MultipartUpload
	metrics MetricsRecorder
}

func (u *instrumentedUpload) UploadPart(ctx context.Context, partNum int, r io.Reader, size int64) (string, error) {
	start := time.Now()
	etag, err := u.MultipartUpload.UploadPart(ctx, partNum, r, size)
	u.metrics.RecordUploadPart(time.Since(start).Seconds(), err == nil, size)
	return etag, err
}

// instrumentedReadCloser records a Get once the body is closed, with the
// number of bytes actually read.
type instrumentedReadCloser struct {
	io.ReadCloser
	start     time.Time
	metrics   MetricsRecorder
	bytesRead int64
	readErr   bool
	closed    bool
}

func (r *instrumentedReadCloser) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.bytesRead += int64(n)
	if err != nil && err != io.EOF {
		r.readErr = true
	}
	return n, err
}

func (r *instrumentedReadCloser) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	err := r.ReadCloser.Close()
	r.metrics.RecordGet(time.Since(r.start).Seconds(), err == nil && !r.readErr, r.bytesRead)
	return err
}

var _ MultipartStore = (*InstrumentedStore)(nil)
