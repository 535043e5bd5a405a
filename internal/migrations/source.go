package migrations

import (
	"cmp"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var (
	scriptNamePattern  = regexp.MustCompile(`^([0-9]+)_([a-z0-9_]+)\.(up|down)\.sql$`)
	createTablePattern = regexp.MustCompile(`(?im)^\s*CREATE TABLE (?:IF NOT EXISTS )?([a-z_][a-z0-9_]*)`)
	dropTablePattern   = regexp.MustCompile(`(?im)^\s*DROP TABLE (?:IF EXISTS )?([a-z_][a-z0-9_]*)`)
)

// script is one versioned schema change and the tables its up half creates.
type script struct {
	Version int64
	Name    string
	Up      string
	Down    string
	Tables  []string
}

// loadScripts pairs sql/<version>_<name>.{up,down}.sql files. Every table an
// up script creates must be dropped by its down script.
func loadScripts(fsys fs.FS) ([]script, error) {
	files, err := fs.Glob(fsys, "sql/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migration scripts: %w", err)
	}

	byVersion := map[int64]*script{}
	for _, file := range files {
		parts := scriptNamePattern.FindStringSubmatch(path.Base(file))
		if parts == nil {
			continue
		}
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("migration %q: bad version: %w", file, err)
		}
		body, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", file, err)
		}

		s, ok := byVersion[version]
		if !ok {
			s = &script{Version: version, Name: parts[2]}
			byVersion[version] = s
		}
		if s.Name != parts[2] {
			return nil, fmt.Errorf("migration %d is named both %q and %q", version, s.Name, parts[2])
		}
		if parts[3] == "up" {
			s.Up = string(body)
		} else {
			s.Down = string(body)
		}
	}

	scripts := make([]script, 0, len(byVersion))
	for _, s := range byVersion {
		if err := s.check(); err != nil {
			return nil, err
		}
		scripts = append(scripts, *s)
	}
	slices.SortFunc(scripts, func(a, b script) int { return cmp.Compare(a.Version, b.Version) })
	return scripts, nil
}

func (s *script) check() error {
	if strings.TrimSpace(s.Up) == "" {
		return fmt.Errorf("migration %d (%s) missing up SQL", s.Version, s.Name)
	}
	if strings.TrimSpace(s.Down) == "" {
		return fmt.Errorf("migration %d (%s) missing down SQL", s.Version, s.Name)
	}
	s.Tables = tableNames(createTablePattern, s.Up)
	dropped := tableNames(dropTablePattern, s.Down)
	for _, table := range s.Tables {
		if !slices.Contains(dropped, table) {
			return fmt.Errorf("migration %d (%s) creates %s but its down SQL does not drop it", s.Version, s.Name, table)
		}
	}
	return nil
}

func tableNames(pattern *regexp.Regexp, body string) []string {
	var names []string
	for _, match := range pattern.FindAllStringSubmatch(body, -1) {
		names = append(names, match[1])
	}
	return names
}
