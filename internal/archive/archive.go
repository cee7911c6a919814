// Package archive builds and unpacks the gzip-compressed tarballs holding one
// backed-up directory each. Entries are stored relative to the directory's
// parent, so "/srv/app/conf/x" is archived as "app/conf/x" and extracting into
// "/srv" recreates "/srv/app".
package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/klauspost/compress/gzip"

	"github.com/raoulx24/dir-archiver/internal/logging"
)

// Options controls archive creation.
type Options struct {
	// Excludes are matched against the absolute path of every entry; a match
	// at the start of the path skips the entry, and its subtree for directories.
	Excludes []*regexp.Regexp
	// Level is the gzip level; 0 selects gzip.DefaultCompression.
	Level int
}

// CompileExcludes compiles exclude patterns anchored at the start of the path.
func CompileExcludes(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("^(?:" + p + ")")
		if err != nil {
			return nil, fmt.Errorf("exclude pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func excluded(path string, excludes []*regexp.Regexp) bool {
	for _, re := range excludes {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// Create writes a tar.gz of dir to dest and returns the archive size.
// A partially written archive is removed on failure.
func Create(ctx context.Context, dir, dest string, opts Options, log logging.Logger) (size int64, err error) {
	dir, err = filepath.Abs(dir)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return 0, fmt.Errorf("archive: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("archive: %s is not a directory", dir)
	}

	level := opts.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, fmt.Errorf("archive: create %s: %w", dest, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(dest)
		}
	}()

	gz, err := gzip.NewWriterLevel(out, level)
	if err != nil {
		_ = out.Close()
		return 0, fmt.Errorf("archive: gzip writer: %w", err)
	}
	tw := tar.NewWriter(gz)

	base := filepath.Dir(dir)
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != dir && excluded(path, opts.Excludes) {
			log.Debug("archive: skipping excluded path", "path", path)
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		return addEntry(tw, base, path, d, log)
	})

	// Close in reverse order, keeping the first error.
	for _, c := range []io.Closer{tw, gz, out} {
		if cerr := c.Close(); cerr != nil && walkErr == nil {
			walkErr = cerr
		}
	}
	if walkErr != nil {
		return 0, fmt.Errorf("archive: %s: %w", dir, walkErr)
	}

	st, err := os.Stat(dest)
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

func addEntry(tw *tar.Writer, base, path string, d fs.DirEntry, log logging.Logger) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	var link string
	switch mode := info.Mode(); {
	case mode.IsRegular(), mode.IsDir():
	case mode&fs.ModeSymlink != 0:
		if link, err = os.Readlink(path); err != nil {
			return err
		}
	default:
		log.Debug("archive: skipping special file", "path", path, "mode", mode.String())
		return nil
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return err
	}
	hdr.Name = filepath.ToSlash(rel)
	if info.IsDir() {
		hdr.Name += "/"
	}

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.CopyN(tw, f, hdr.Size); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// ExtractionError reports a failure while unpacking an archive. Extraction
// is never retried.
type ExtractionError struct {
	Archive string
	Entry   string
	Err     error
}

func (e *ExtractionError) Error() string {
	if e.Entry == "" {
		return fmt.Sprintf("extract %s: %v", e.Archive, e.Err)
	}
	return fmt.Sprintf("extract %s: entry %q: %v", e.Archive, e.Entry, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ErrUnsafePath is returned for entries that would land outside the target.
var ErrUnsafePath = errors.New("entry escapes extraction directory")

// Extract unpacks the tar.gz at src into destDir.
func Extract(ctx context.Context, src, destDir string, log logging.Logger) error {
	fail := func(entry string, err error) error {
		return &ExtractionError{Archive: src, Entry: entry, Err: err}
	}

	f, err := os.Open(src)
	if err != nil {
		return fail("", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fail("", err)
	}
	defer gz.Close()

	root, err := filepath.Abs(destDir)
	if err != nil {
		return fail("", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fail("", err)
	}

	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return fail("", err)
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fail("", err)
		}

		target, err := safeJoin(root, hdr.Name)
		if err != nil {
			return fail(hdr.Name, err)
		}
		if err := extractEntry(tr, hdr, root, target); err != nil {
			return fail(hdr.Name, err)
		}
		log.Debug("archive: extracted", "entry", hdr.Name)
	}
}

func safeJoin(root, name string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(name))
	if target != root && !isWithin(root, target) {
		return "", ErrUnsafePath
	}
	return target, nil
}

func isWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !filepath.IsAbs(rel) && !startsWithParent(rel)
}

func startsWithParent(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}

func extractEntry(tr *tar.Reader, hdr *tar.Header, root, target string) error {
	mode := hdr.FileInfo().Mode()

	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, mode.Perm()|0o700)

	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
		if err != nil {
			return err
		}
		_, err = io.Copy(out, io.LimitReader(tr, hdr.Size))
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(target)
		}
		return err

	case tar.TypeSymlink:
		dest := hdr.Linkname
		if !filepath.IsAbs(dest) {
			dest = filepath.Join(filepath.Dir(target), dest)
		}
		if !isWithin(root, filepath.Clean(dest)) {
			return ErrUnsafePath
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		_ = os.Remove(target)
		return os.Symlink(hdr.Linkname, target)

	default:
		return nil
	}
}
