// Package logsink provides per-run log destinations for units.
//
// Each run of a unit gets its own file under <dir>/<unit>/. Files beyond the
// configured retention count are removed oldest first when a new run opens.
package logsink

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

const (
	DefaultMaxSizeMB = 50
	dateLayout       = "2006-01-02"
	timeLayout       = "15-04-05"
	fileExt          = ".log"
)

// Options configure a Provider.
type Options struct {
	Dir           string // base directory, one subdirectory per unit
	DateOrganized bool   // <unit>/<date>/<time>.log instead of <unit>/<date>_<time>.log
	MaxFiles      int    // files kept per unit, <= 0 keeps everything
	MaxSizeMB     int    // size at which a run's file is rotated
}

// Provider opens log sinks. Each unit owns one rotating writer that is
// pointed at the file of its current run; lumberjack starts a background
// goroutine per writer that lives as long as the process.
type Provider struct {
	opts Options

	mu    sync.Mutex
	units map[string]*unitLog
}

// unitLog is the writer shared by the successive runs of one unit.
type unitLog struct {
	mu  sync.Mutex
	w   *lj.Logger
	cur *Sink
}

func NewProvider(opts Options) *Provider {
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = DefaultMaxSizeMB
	}
	return &Provider{opts: opts, units: make(map[string]*unitLog)}
}

func (p *Provider) unitLog(unit string) *unitLog {
	p.mu.Lock()
	defer p.mu.Unlock()
	ul := p.units[unit]
	if ul == nil {
		ul = &unitLog{w: &lj.Logger{MaxSize: p.opts.MaxSizeMB}}
		p.units[unit] = ul
	}
	return ul
}

// UnitDir returns the directory holding every log file of unit.
func (p *Provider) UnitDir(unit string) string {
	return filepath.Join(p.opts.Dir, unit)
}

// Open creates the destination for one run of unit started at `at` and then
// prunes the unit's older files. A sink of the unit's previous run that is
// still open is closed first.
func (p *Provider) Open(unit string, at time.Time) (*Sink, error) {
	if unit == "" || strings.ContainsAny(unit, `/\`) || unit == "." || unit == ".." {
		return nil, fmt.Errorf("invalid unit name %q", unit)
	}
	path, err := p.reserve(unit, at)
	if err != nil {
		return nil, err
	}
	ul := p.unitLog(unit)
	s := &Sink{path: path, owner: ul}
	ul.mu.Lock()
	if ul.cur != nil && !ul.cur.closed {
		ul.cur.closed = true
		_ = ul.w.Close()
	}
	ul.w.Filename = path
	ul.cur = s
	ul.mu.Unlock()

	if _, err := p.Prune(unit, path); err != nil {
		// retention failures never block a run
		return s, fmt.Errorf("prune %s logs: %w", unit, err)
	}
	return s, nil
}

// reserve creates an empty file with a name unique within the unit dir.
func (p *Provider) reserve(unit string, at time.Time) (string, error) {
	var dir, base string
	if p.opts.DateOrganized {
		dir = filepath.Join(p.UnitDir(unit), at.Format(dateLayout))
		base = at.Format(timeLayout)
	} else {
		dir = p.UnitDir(unit)
		base = at.Format(dateLayout) + "_" + at.Format(timeLayout)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create log dir: %w", err)
	}
	for i := 0; i < 1000; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s-%d", base, i)
		}
		path := filepath.Join(dir, name+fileExt)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create log file: %w", err)
		}
		_ = f.Close()
		return path, nil
	}
	return "", fmt.Errorf("no free log file name for %s in %s", unit, dir)
}

type logFile struct {
	path    string
	modTime time.Time
}

// Prune deletes the oldest log files of unit so that at most MaxFiles remain.
// keep, if non-empty, is treated as the newest file regardless of its mtime.
// It returns the removed paths.
func (p *Provider) Prune(unit, keep string) ([]string, error) {
	if p.opts.MaxFiles <= 0 {
		return nil, nil
	}
	root := p.UnitDir(unit)
	var files []logFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), fileExt) || path == keep {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, logFile{path: path, modTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	limit := p.opts.MaxFiles
	if keep != "" {
		limit--
	}
	if len(files) <= limit {
		return nil, nil
	}
	sort.Slice(files, func(i, j int) bool {
		if !files[i].modTime.Equal(files[j].modTime) {
			return files[i].modTime.After(files[j].modTime)
		}
		return files[i].path > files[j].path
	})

	var removed []string
	var errs []error
	for _, f := range files[limit:] {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, f.path)
		p.removeEmptyParents(filepath.Dir(f.path), root)
	}
	return removed, errors.Join(errs...)
}

func (p *Provider) removeEmptyParents(dir, root string) {
	for dir != root && strings.HasPrefix(dir, root) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// Sink is the append-only destination of one run. Writes are serialised.
type Sink struct {
	path   string
	owner  *unitLog
	closed bool // guarded by owner.mu
}

// Path returns the file the run was opened with.
func (s *Sink) Path() string { return s.path }

func (s *Sink) Write(b []byte) (int, error) {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	if s.closed {
		return 0, os.ErrClosed
	}
	return s.owner.w.Write(b)
}

// WriteString writes a marker or message line.
func (s *Sink) WriteString(str string) (int, error) {
	return s.Write([]byte(str))
}

// Close flushes and closes the file. It is safe to call more than once.
func (s *Sink) Close() error {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.owner.w.Close()
}
