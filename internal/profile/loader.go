// SPDX-License-Identifier: MPL-2.0

package profile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// extensions lists the supported formats in lookup order for bare names.
var extensions = []string{".json", ".cue", ".toml", ".yaml", ".yml"}

// Loader reads profiles from a directory.
type Loader struct {
	dir string
}

// NewLoader creates a Loader rooted at dir. An empty dir means DefaultDir.
func NewLoader(dir string) (*Loader, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	return &Loader{dir: dir}, nil
}

// Dir returns the directory bare profile names are resolved in.
func (l *Loader) Dir() string { return l.dir }

// Resolve maps a profile name to a file path. Absolute paths and names
// containing a path separator are used as-is. Bare names are looked up in
// the profiles directory; a bare name without an extension resolves to the
// first existing file among the supported extensions.
func (l *Loader) Resolve(name string) string {
	if name == "" {
		name = DefaultName
	}
	if filepath.IsAbs(name) || strings.ContainsRune(name, filepath.Separator) || strings.ContainsRune(name, '/') {
		return name
	}
	path := filepath.Join(l.dir, name)
	if filepath.Ext(name) != "" {
		return path
	}
	for _, ext := range extensions {
		if _, err := os.Stat(path + ext); err == nil {
			return path + ext
		}
	}
	return path + ".json"
}

// Load resolves and loads the named profile. Errors are *LoadError wrapping
// one of ErrNotFound, ErrUnsupportedFormat, ErrTooLarge or ErrInvalid.
func (l *Loader) Load(ctx context.Context, name string) (*Profile, error) {
	path := l.Resolve(name)
	p, err := loadFile(ctx, path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return p, nil
}

func loadFile(ctx context.Context, path string) (*Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("load profile canceled: %w", err)
	}

	format, ok := formatFor(path)
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedFormat, filepath.Ext(path), strings.Join(extensions, ", "))
	}

	data, err := readLimited(path)
	if err != nil {
		return nil, err
	}

	tree, err := decode(format, data, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	v := newViper()
	if err := v.MergeConfigMap(tree); err != nil {
		return nil, fmt.Errorf("merge profile: %w", err)
	}

	var p Profile
	if err := v.Unmarshal(&p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	p.Path = path
	p.Tree = tree
	p.Effective = v.AllSettings()
	return &p, nil
}

// newViper returns a viper instance with profile defaults and BBGUM_*
// environment overrides.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("server.hostname", "")
	v.SetDefault("server.isolation", "")
	v.SetDefault("server.kill_grace", DefaultKillGrace.String())
	v.SetDefault("server.status_address", "")
	v.SetDefault("log.file", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func readLimited(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("open profile: %w", err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	if len(data) > MaxSize {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, MaxSize)
	}
	return data, nil
}
