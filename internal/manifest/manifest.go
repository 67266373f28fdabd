// Package manifest converts classified directory groups into the ordered
// list of transfer items handed to the remote transfer service.
//
// Two path universes meet here and must never be conflated: local staging
// paths use host-native separators (filepath), while every source and
// destination locator in the manifest is a POSIX-style remote path (path).
package manifest

import (
	"fmt"
	"io"
	gopath "path"
	"path/filepath"
	"strings"

	yaml "gopkg.in/yaml.v2"

	"github.com/rwilfong/globus-transfer/internal/bundle"
	"github.com/rwilfong/globus-transfer/internal/scan"
)

// Kind distinguishes the two item flavors.
type Kind int

const (
	ArchivedBundle Kind = iota
	RawFile
)

var kindNames = [...]string{
	ArchivedBundle: "archived-bundle",
	RawFile:        "raw-file",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// Item is one (source, destination, kind) transfer triple. Both locators are
// POSIX-style remote paths.
type Item struct {
	Source string
	Dest   string
	Kind   Kind
	Digest string // bundle digest when checksum verification is on
}

// SyncPolicy mirrors the knobs the transfer service accepts per submission.
type SyncPolicy struct {
	VerifyChecksum bool
	PreserveMtime  bool
}

// Manifest is the finished item list for one run. Built once, submitted
// atomically as one unit, then discarded.
type Manifest struct {
	Label  string
	Policy SyncPolicy
	Items  []Item
}

// Empty reports whether the manifest has no items, which makes the run a
// no-op rather than an error.
func (m *Manifest) Empty() bool { return len(m.Items) == 0 }

// Len is the number of transfer items.
func (m *Manifest) Len() int { return len(m.Items) }

// Config controls a Builder.
type Config struct {
	Label             string
	RemoteSourceRoot  string // remote prefix mapping to the scan root
	RemoteDestRoot    string
	RemoteStagingRoot string // remote prefix mapping to the local staging root
	TimestampRename   bool   // rename raw files with their mtime to avoid overwrites
	Policy            SyncPolicy
}

// Builder accumulates transfer items group by group.
type Builder struct {
	cfg   Config
	items []Item
}

// NewBuilder creates a builder for one run.
func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg}
}

// AddBundle appends the single item for an archived group: the staged bundle
// under the remote staging root, destined for <dest_root>/<group>.tar.
func (b *Builder) AddBundle(bdl bundle.Bundle) {
	b.items = append(b.items, Item{
		Source: gopath.Join(b.cfg.RemoteStagingRoot, bdl.Name),
		Dest:   gopath.Join(b.cfg.RemoteDestRoot, bundle.GroupKey(bdl.Group)+".tar"),
		Kind:   ArchivedBundle,
		Digest: bdl.Digest,
	})
}

// AddRawGroup appends one item per record. With timestamp renaming on, the
// destination filename carries the file's mtime between stem and extension
// (name_YYYYMMDD_HHMMSS.ext) so overlapping re-runs never overwrite a prior
// run's output. With it off, destinations mirror sources exactly, giving
// true mtime-based incremental sync semantics.
func (b *Builder) AddRawGroup(g scan.DirectoryGroup) {
	for _, rec := range g.Records {
		rel := filepath.ToSlash(rec.RelPath)
		name := gopath.Base(rel)
		if b.cfg.TimestampRename {
			name = timestampName(name, rec)
		}
		b.items = append(b.items, Item{
			Source: gopath.Join(b.cfg.RemoteSourceRoot, rel),
			Dest:   gopath.Join(b.cfg.RemoteDestRoot, gopath.Dir(rel), name),
			Kind:   RawFile,
		})
	}
}

// timestampName inserts the record's mtime between stem and extension,
// second precision, sortable.
func timestampName(name string, rec scan.FileRecord) string {
	ext := gopath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s_%s%s", stem, rec.ModTime.Format("20060102_150405"), ext)
}

// Build returns the finished manifest.
func (b *Builder) Build() *Manifest {
	return &Manifest{
		Label:  b.cfg.Label,
		Policy: b.cfg.Policy,
		Items:  b.items,
	}
}

// yamlDoc is the preview document written for dry runs and --manifest-out.
type yamlDoc struct {
	Label          string     `yaml:"label"`
	VerifyChecksum bool       `yaml:"verify_checksum"`
	PreserveMtime  bool       `yaml:"preserve_mtime"`
	Items          []yamlItem `yaml:"items"`
}

type yamlItem struct {
	Source string `yaml:"source"`
	Dest   string `yaml:"destination"`
	Kind   string `yaml:"kind"`
	Digest string `yaml:"digest,omitempty"`
}

// EncodeYAML writes a human-readable rendition of the manifest.
func (m *Manifest) EncodeYAML(w io.Writer) error {
	doc := yamlDoc{
		Label:          m.Label,
		VerifyChecksum: m.Policy.VerifyChecksum,
		PreserveMtime:  m.Policy.PreserveMtime,
		Items:          make([]yamlItem, 0, len(m.Items)),
	}
	for _, it := range m.Items {
		doc.Items = append(doc.Items, yamlItem{
			Source: it.Source,
			Dest:   it.Dest,
			Kind:   it.Kind.String(),
			Digest: it.Digest,
		})
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
