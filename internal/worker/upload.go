package worker

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/raoulx24/dir-archiver/internal/logging"
	"github.com/raoulx24/dir-archiver/internal/objectstore"
	"github.com/raoulx24/dir-archiver/internal/snapshot"
)

const archiveContentType = "application/gzip"

// upload sends one staged archive to key. Archives larger than one part go
// through a multipart upload.
func (w *Worker) upload(ctx context.Context, s Settings, a snapshot.Artifact, key string, log logging.Logger) error {
	f, err := os.Open(a.Path)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}
	size := info.Size()

	opts := objectstore.PutOptions{
		ServerSideEncryption: s.ServerSideEncryption,
		Metadata:             map[string]string{"source-dir": a.Dir},
	}

	ctx, cancel := withTimeout(ctx, s)
	defer cancel()

	if s.PartSize <= 0 || size <= s.PartSize {
		log.Info("upload: put", "key", key, "bytes", size)
		return w.store.Put(ctx, key, f, size, archiveContentType, opts)
	}
	return w.uploadMultipart(ctx, s, f, size, key, opts, log)
}

func (w *Worker) uploadMultipart(ctx context.Context, s Settings, f io.ReaderAt, size int64, key string, opts objectstore.PutOptions, log logging.Logger) error {
	up, err := w.store.CreateMultipartUpload(ctx, key, archiveContentType, opts)
	if err != nil {
		return err
	}

	parts := int((size + s.PartSize - 1) / s.PartSize)
	log.Info("upload: multipart", "key", key, "bytes", size, "parts", parts, "upload_id", up.UploadID())

	etags := make([]string, 0, parts)
	for n := 1; n <= parts; n++ {
		off := int64(n-1) * s.PartSize
		length := min(s.PartSize, size-off)

		etag, err := up.UploadPart(ctx, n, io.NewSectionReader(f, off, length), length)
		if err != nil {
			w.abort(ctx, up, log)
			return fmt.Errorf("uploading part %d/%d of %s: %w", n, parts, key, err)
		}
		etags = append(etags, etag)
		log.Debug("upload: part done", "key", key, "part", n)
	}

	if err := up.Complete(ctx, etags); err != nil {
		w.abort(ctx, up, log)
		return err
	}
	return nil
}

func (w *Worker) abort(ctx context.Context, up objectstore.MultipartUpload, log logging.Logger) {
	if err := up.Abort(context.WithoutCancel(ctx)); err != nil {
		log.Warn("upload: abort failed", "upload_id", up.UploadID(), "error", err)
	}
}
