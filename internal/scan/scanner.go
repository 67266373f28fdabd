// Package scan walks a directory tree and groups the regular files whose
// modification time falls inside a window by their immediate parent
// directory. Successes and per-file skips travel on separate channels so the
// caller can build a run summary without treating skips as control flow.
package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/rwilfong/globus-transfer/internal/window"
)

// Config controls a scan.
type Config struct {
	Root    string // scan root, absolute or relative local path
	Window  window.Window
	Workers int // directory workers; <=0 means min(NumCPU, 8)
}

// Scanner traverses a tree in parallel and emits one DirectoryGroup per
// directory that contains at least one in-window regular file.
type Scanner struct {
	cfg    Config
	groups chan DirectoryGroup
	skips  chan Skip
}

// NewScanner creates a scanner with the given config.
func NewScanner(cfg Config) *Scanner {
	if cfg.Workers <= 0 {
		cfg.Workers = min(runtime.NumCPU(), 8)
	}
	return &Scanner{
		cfg:    cfg,
		groups: make(chan DirectoryGroup, cfg.Workers*2),
		skips:  make(chan Skip, cfg.Workers*4),
	}
}

// Scan starts the walk and returns the group and skip channels. The caller
// must consume from both until they close. Group membership is deterministic
// for an unchanged tree: directory entries are visited in the sorted order
// os.ReadDir returns them.
func (s *Scanner) Scan(ctx context.Context) (<-chan DirectoryGroup, <-chan Skip) {
	go func() {
		defer close(s.groups)
		defer close(s.skips)
		s.scanTree(ctx)
	}()

	return s.groups, s.skips
}

func (s *Scanner) scanTree(ctx context.Context) {
	// The queue is a bounded hand-off, not a buffer for the whole tree:
	// workers that find it full recurse inline rather than block on it.
	workQueue := make(chan string, s.cfg.Workers*2)
	var outstanding sync.WaitGroup // directories queued but not yet processed

	var workerWg sync.WaitGroup
	for range s.cfg.Workers {
		workerWg.Add(1)
		go func() {
			defer workerWg.Done()
			for dirPath := range workQueue {
				s.scanDir(ctx, dirPath, workQueue, &outstanding)
				outstanding.Done()
			}
		}()
	}

	outstanding.Add(1)
	workQueue <- s.cfg.Root

	// Wait for all directory work to finish, then close the work queue so
	// workers exit their range loop.
	outstanding.Wait()
	close(workQueue)
	workerWg.Wait()
}

func (s *Scanner) scanDir(ctx context.Context, dirPath string, workQueue chan<- string, outstanding *sync.WaitGroup) {
	relDir, err := filepath.Rel(s.cfg.Root, dirPath)
	if err != nil {
		s.sendSkip(Skip{Path: dirPath, Reason: fmt.Errorf("rel path: %w", err)})
		return
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		s.sendSkip(Skip{Path: dirPath, Reason: fmt.Errorf("readdir: %w", err)})
		return
	}

	var records []FileRecord
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return
		default:
		}

		entryPath := filepath.Join(dirPath, entry.Name())
		rec, descend, err := s.processEntry(entryPath)
		if err != nil {
			s.sendSkip(Skip{Path: entryPath, Reason: err})
			continue
		}
		if descend {
			outstanding.Add(1)
			select {
			case workQueue <- entryPath:
			default:
				// A full queue means every worker may already be blocked
				// inside scanDir, with nobody left to receive. Never wait
				// on it; scan the subdirectory inline instead.
				s.scanDir(ctx, entryPath, workQueue, outstanding)
				outstanding.Done()
			}
			continue
		}
		if rec != nil {
			records = append(records, *rec)
		}
	}

	if len(records) > 0 {
		select {
		case s.groups <- DirectoryGroup{Dir: relDir, Records: records}:
		case <-ctx.Done():
		}
	}
}

// processEntry stats one directory entry. It returns a record for in-window
// regular files, descend=true for real subdirectories, and (nil, false, nil)
// for everything that is legitimately ignored. Symlinked directories are
// never descended into, which is what guards the walk against symlink
// cycles; symlinks to regular files are resolved and judged by their
// target's mtime.
func (s *Scanner) processEntry(entryPath string) (*FileRecord, bool, error) {
	info, err := os.Lstat(entryPath)
	if err != nil {
		return nil, false, fmt.Errorf("lstat: %w", err)
	}

	mode := info.Mode()
	switch {
	case mode.IsDir():
		return nil, true, nil

	case mode&os.ModeSymlink != 0:
		target, err := os.Stat(entryPath)
		if err != nil {
			return nil, false, fmt.Errorf("stat symlink target: %w", err)
		}
		if !target.Mode().IsRegular() {
			return nil, false, nil
		}
		info = target

	case !mode.IsRegular():
		// Sockets, FIFOs, devices.
		return nil, false, nil
	}

	if !s.cfg.Window.Contains(info.ModTime()) {
		return nil, false, nil
	}

	rel, err := filepath.Rel(s.cfg.Root, entryPath)
	if err != nil {
		return nil, false, fmt.Errorf("rel path: %w", err)
	}

	return &FileRecord{
		Path:    entryPath,
		RelPath: rel,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, false, nil
}

func (s *Scanner) sendSkip(sk Skip) {
	s.skips <- sk
}
