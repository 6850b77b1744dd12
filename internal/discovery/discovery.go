// Package discovery finds runnable units under a root directory.
//
// A unit is a subdirectory holding a manifest that names an entry point or a
// start script. Discovery only touches the filesystem.
package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Reason is why a directory entry was not accepted as a unit.
type Reason string

const (
	NotADirectory        Reason = "not-a-directory"
	ManifestMissing      Reason = "manifest-missing"
	ManifestUnparseable  Reason = "manifest-unparseable"
	ManifestMissingEntry Reason = "manifest-missing-entry-point"
	EntryUnreadable      Reason = "entry-unreadable"
)

// DefaultManifestFileName is used when no candidates are configured.
const DefaultManifestFileName = "package.json"

// Unit is a discovered runnable entity. Units are immutable for the lifetime
// of a supervisor.
type Unit struct {
	ID       string `json:"id"`
	Root     string `json:"root"`
	Manifest string `json:"manifest"`
	// Main is the declared entry point, StartScript the named start action.
	// At least one is non-empty.
	Main        string `json:"main,omitempty"`
	StartScript string `json:"start_script,omitempty"`
}

// Rejection reports a directory entry that is not a valid unit.
type Rejection struct {
	Name   string `json:"name"`
	Reason Reason `json:"reason"`
	Err    error  `json:"-"`
}

func (r Rejection) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", r.Name, r.Reason, r.Err)
	}
	return fmt.Sprintf("%s: %s", r.Name, r.Reason)
}

// Result is the outcome of a scan. Units keep directory listing order.
type Result struct {
	Units    []Unit      `json:"units"`
	Rejected []Rejection `json:"rejected"`
}

// IDs returns the identifiers of the discovered units in order.
func (r Result) IDs() []string {
	out := make([]string, 0, len(r.Units))
	for _, u := range r.Units {
		out = append(out, u.ID)
	}
	return out
}

// Lookup returns the unit with the given id.
func (r Result) Lookup(id string) (Unit, bool) {
	for _, u := range r.Units {
		if u.ID == id {
			return u, true
		}
	}
	return Unit{}, false
}

// Discoverer scans a root directory for units.
type Discoverer struct {
	root      string
	manifests []string
}

// New returns a Discoverer for root. manifests lists candidate manifest file
// names in priority order; the first one present in a directory decides.
func New(root string, manifests ...string) *Discoverer {
	if len(manifests) == 0 {
		manifests = []string{DefaultManifestFileName}
	}
	return &Discoverer{root: root, manifests: append([]string(nil), manifests...)}
}

// Root returns the scanned directory.
func (d *Discoverer) Root() string { return d.root }

// Scan lists the root directory. A missing root is created and yields an
// empty result.
func (d *Discoverer) Scan() (Result, error) {
	var res Result
	entries, err := os.ReadDir(d.root)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(d.root, 0o755); err != nil {
			return res, fmt.Errorf("create units dir %s: %w", d.root, err)
		}
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("read units dir %s: %w", d.root, err)
	}

	for _, e := range entries {
		u, rej := d.inspect(e)
		if rej != nil {
			res.Rejected = append(res.Rejected, *rej)
			continue
		}
		res.Units = append(res.Units, u)
	}
	return res, nil
}

func (d *Discoverer) inspect(e fs.DirEntry) (Unit, *Rejection) {
	name := e.Name()
	dir := filepath.Join(d.root, name)

	isDir := e.IsDir()
	if e.Type()&fs.ModeSymlink != 0 {
		st, err := os.Stat(dir)
		if err != nil {
			return Unit{}, &Rejection{Name: name, Reason: EntryUnreadable, Err: err}
		}
		isDir = st.IsDir()
	}
	if !isDir {
		return Unit{}, &Rejection{Name: name, Reason: NotADirectory}
	}

	manifest, data, err := d.readManifest(dir)
	if err != nil {
		return Unit{}, &Rejection{Name: name, Reason: EntryUnreadable, Err: err}
	}
	if manifest == "" {
		return Unit{}, &Rejection{Name: name, Reason: ManifestMissing}
	}

	m, err := parseManifest(manifest, data)
	if err != nil {
		return Unit{}, &Rejection{Name: name, Reason: ManifestUnparseable, Err: err}
	}
	if m.Main == "" && m.Start == "" {
		return Unit{}, &Rejection{Name: name, Reason: ManifestMissingEntry}
	}

	return Unit{
		ID:          name,
		Root:        dir,
		Manifest:    filepath.Join(dir, manifest),
		Main:        m.Main,
		StartScript: m.Start,
	}, nil
}

// readManifest returns the first candidate manifest present in dir and its
// contents. An empty name means none was found.
func (d *Discoverer) readManifest(dir string) (string, []byte, error) {
	for _, name := range d.manifests {
		p := filepath.Join(dir, name)
		st, err := os.Stat(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", nil, err
		}
		if st.IsDir() {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return "", nil, err
		}
		return name, data, nil
	}
	return "", nil, nil
}
