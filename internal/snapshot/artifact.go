package snapshot

import (
	"os"
	"path/filepath"
	"strings"
)

// ArchiveExt is the extension of every directory archive.
const ArchiveExt = ".tar.gz"

// Artifact describes the archive of one backed-up directory within a snapshot.
type Artifact struct {
	// Dir is the directory the archive was built from.
	Dir string
	// Name is the object name inside the snapshot, derived from Dir.
	Name string
	// Path is the local archive file in the dump directory.
	Path string
	Size int64
}

// ArchiveName maps a directory to its archive name by flattening separators,
// e.g. "/var/lib/app" becomes "_var_lib_app.tar.gz".
func ArchiveName(dir string) string {
	clean := filepath.Clean(dir)
	return strings.ReplaceAll(clean, string(os.PathSeparator), "_") + ArchiveExt
}

// NewArtifact describes the archive of dir placed under dumpDir.
func NewArtifact(dir, dumpDir string) Artifact {
	name := ArchiveName(dir)
	return Artifact{
		Dir:  dir,
		Name: name,
		Path: filepath.Join(dumpDir, name),
	}
}

// Key returns the storage key of the artifact within snapshot id.
func (a Artifact) Key(id string) string {
	return id + "/" + a.Name
}
