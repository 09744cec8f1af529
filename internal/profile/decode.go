// SPDX-License-Identifier: MPL-2.0

package profile

import (
	_ "embed"
	"fmt"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

//go:embed profile_schema.cue
var profileSchema string

type format int

const (
	formatCUE format = iota
	formatTOML
	formatYAML
)

func formatFor(path string) (format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".cue":
		// JSON is a subset of CUE.
		return formatCUE, true
	case ".toml":
		return formatTOML, true
	case ".yaml", ".yml":
		return formatYAML, true
	default:
		return 0, false
	}
}

// decode parses data, validates it against #Profile and returns the
// resulting tree.
func decode(f format, data []byte, path string) (map[string]any, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(profileSchema, cue.Filename("profile_schema.cue"))
	if schema.Err() != nil {
		return nil, fmt.Errorf("internal error: compile profile schema: %w", schema.Err())
	}

	var user cue.Value
	switch f {
	case formatCUE:
		user = ctx.CompileBytes(data, cue.Filename(path))
	case formatTOML:
		var m map[string]any
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		user = ctx.Encode(m)
	case formatYAML:
		var m map[string]any
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if m == nil {
			m = map[string]any{}
		}
		user = ctx.Encode(m)
	}
	if user.Err() != nil {
		return nil, formatCUEError(user.Err(), path)
	}

	unified := schema.LookupPath(cue.ParsePath("#Profile")).Unify(user)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err, path)
	}

	var tree map[string]any
	if err := unified.Decode(&tree); err != nil {
		return nil, formatCUEError(err, path)
	}
	if tree == nil {
		tree = map[string]any{}
	}
	return tree, nil
}

// formatCUEError flattens a CUE error list into "path: field.sub: message"
// lines.
func formatCUEError(err error, path string) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return fmt.Errorf("%s: %w", path, err)
	}

	lines := make([]string, 0, len(errs))
	for _, e := range errs {
		field := strings.Join(cueerrors.Path(e), ".")
		msgFormat, args := e.Msg()
		msg := fmt.Sprintf(msgFormat, args...)
		if field != "" {
			msg = field + ": " + msg
		}
		lines = append(lines, msg)
	}
	if len(lines) == 1 {
		return fmt.Errorf("%s: %s", path, lines[0])
	}
	return fmt.Errorf("%s: validation failed:\n  %s", path, strings.Join(lines, "\n  "))
}
