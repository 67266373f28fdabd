// Package bundle materializes ARCHIVE-classified directory groups into
// single tar files in a local staging root. Bundle names are derived purely
// from (window label, relative group path), so re-running the builder on an
// identical group yields the same name, and runs covering different windows
// never collide in a shared staging root.
package bundle

import (
	"archive/tar"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/rwilfong/globus-transfer/internal/scan"
)

// rootGroupName stands in for the scan root itself, whose relative path "."
// would make a useless filename.
const rootGroupName = "root_files"

// tmpSuffix marks in-progress bundle writes; anything carrying it is safe to
// delete.
const tmpSuffix = ".gt-tmp"

// Bundle is one staged archive, produced 1:1 from an ARCHIVE group.
type Bundle struct {
	Path   string // local path in the staging root
	Name   string // on-disk file name
	Group  string // relative group directory ("." for the scan root)
	Files  int
	Bytes  int64  // total payload bytes written
	Digest string // blake3 hex of the finished bundle, when enabled
}

// StagingError is a per-group staging failure. The group is dropped from the
// manifest; the rest of the run continues.
type StagingError struct {
	Group string
	Err   error
}

func (e *StagingError) Error() string {
	return fmt.Sprintf("stage group %s: %v", e.Group, e.Err)
}

func (e *StagingError) Unwrap() error { return e.Err }

// Name returns the deterministic on-disk bundle name for a group: the window
// label, the relative directory with every path separator replaced by an
// underscore, and the container extension.
func Name(label, relDir string) string {
	base := GroupKey(relDir)
	return label + "_" + strings.ReplaceAll(base, "/", "_") + ".tar"
}

// GroupKey returns the forward-slash form of a group directory used in
// remote destination paths, with the scan root folded to rootGroupName.
func GroupKey(relDir string) string {
	if relDir == "." || relDir == "" {
		return rootGroupName
	}
	return filepath.ToSlash(relDir)
}

// Config controls a Builder.
type Config struct {
	StagingRoot string
	Label       string // window label, part of every bundle name
	Digest      bool   // record a blake3 digest of each bundle's tar stream
}

// Builder writes bundles into the staging root and tracks what it has
// written so an aborted run can clean up after itself. Building different
// groups concurrently is safe; each bundle's tar stream is written by a
// single goroutine.
type Builder struct {
	cfg Config

	mu     sync.Mutex
	tmps   map[string]struct{}
	staged []string
}

// NewBuilder creates a builder. The staging root is created on first use.
func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg, tmps: make(map[string]struct{})}
}

// Build archives every record of g into one tar in the staging root. Entry
// names inside the container are base filenames only; that cannot collide
// because grouping is per-directory and a directory cannot hold two entries
// with the same base name. Any failure returns a *StagingError and leaves no
// partial file behind.
func (b *Builder) Build(ctx context.Context, g scan.DirectoryGroup) (Bundle, error) {
	name := Name(b.cfg.Label, g.Dir)
	finalPath := filepath.Join(b.cfg.StagingRoot, name)

	if err := os.MkdirAll(b.cfg.StagingRoot, 0o755); err != nil {
		return Bundle{}, &StagingError{Group: g.Dir, Err: fmt.Errorf("create staging root: %w", err)}
	}

	if avail, ok := freeSpace(b.cfg.StagingRoot); ok && g.TotalBytes() > avail {
		return Bundle{}, &StagingError{Group: g.Dir, Err: fmt.Errorf(
			"staging root has %d bytes free, group needs %d", avail, g.TotalBytes())}
	}

	tmpName := fmt.Sprintf(".%s.%s%s", name, uuid.New().String()[:8], tmpSuffix)
	tmpPath := filepath.Join(b.cfg.StagingRoot, tmpName)
	b.registerTmp(tmpPath)
	defer func() {
		b.deregisterTmp(tmpPath)
		_ = os.Remove(tmpPath) // no-op if rename succeeded
	}()

	written, digest, err := b.writeTar(ctx, tmpPath, g)
	if err != nil {
		return Bundle{}, &StagingError{Group: g.Dir, Err: err}
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return Bundle{}, &StagingError{Group: g.Dir, Err: fmt.Errorf("rename bundle: %w", err)}
	}
	b.registerStaged(finalPath)

	return Bundle{
		Path:   finalPath,
		Name:   name,
		Group:  g.Dir,
		Files:  g.Len(),
		Bytes:  written,
		Digest: digest,
	}, nil
}

// writeTar streams the group into tmpPath. When digests are enabled the tar
// bytes pass through a blake3 hasher on the way to disk, so the digest costs
// no second read of the finished bundle.
func (b *Builder) writeTar(ctx context.Context, tmpPath string, g scan.DirectoryGroup) (int64, string, error) {
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, "", fmt.Errorf("create tmp bundle: %w", err)
	}
	defer f.Close()

	var (
		dst  io.Writer = f
		hash *blake3.Hasher
	)
	if b.cfg.Digest {
		hash = blake3.New()
		dst = io.MultiWriter(f, hash)
	}

	tw := tar.NewWriter(dst)
	var written int64

	for _, rec := range g.Records {
		select {
		case <-ctx.Done():
			return written, "", ctx.Err()
		default:
		}

		n, err := addEntry(tw, rec)
		written += n
		if err != nil {
			return written, "", err
		}
	}

	if err := tw.Close(); err != nil {
		return written, "", fmt.Errorf("finalize tar: %w", err)
	}
	if err := f.Close(); err != nil {
		return written, "", fmt.Errorf("close bundle: %w", err)
	}

	var digest string
	if hash != nil {
		digest = hex.EncodeToString(hash.Sum(nil))
	}
	return written, digest, nil
}

func addEntry(tw *tar.Writer, rec scan.FileRecord) (int64, error) {
	src, err := os.Open(rec.Path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", rec.Path, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", rec.Path, err)
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return 0, fmt.Errorf("tar header %s: %w", rec.Path, err)
	}
	hdr.Name = rec.Base()

	if err := tw.WriteHeader(hdr); err != nil {
		return 0, fmt.Errorf("write header %s: %w", rec.Path, err)
	}

	n, err := io.Copy(tw, src)
	if err != nil {
		return n, fmt.Errorf("archive %s: %w", rec.Path, err)
	}
	return n, nil
}

// Staged returns the paths of all bundles written so far.
func (b *Builder) Staged() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.staged))
	copy(out, b.staged)
	return out
}

// Cleanup removes every staged bundle and any leftover temp file. Called
// when a run aborts before submission; bundles belonging to a submitted
// manifest must outlive the run and are cleaned up externally.
func (b *Builder) Cleanup() {
	b.mu.Lock()
	paths := make([]string, 0, len(b.staged)+len(b.tmps))
	paths = append(paths, b.staged...)
	for p := range b.tmps {
		paths = append(paths, p)
	}
	b.staged = nil
	b.tmps = make(map[string]struct{})
	b.mu.Unlock()

	for _, p := range paths {
		_ = os.Remove(p)
	}
}

func (b *Builder) registerTmp(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tmps[path] = struct{}{}
}

func (b *Builder) deregisterTmp(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tmps, path)
}

func (b *Builder) registerStaged(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.staged = append(b.staged, path)
}
