package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const maxIncludeDepth = 5

// mergeIncludes overlays the files listed in cfg.Includes onto cfg, in order.
// Include paths are resolved against the including file's directory, may be
// globs, and must stay inside that directory.
func mergeIncludes(cfg *Config, path string) error {
	return includeFrom(cfg, path, map[string]bool{path: true}, 0)
}

func includeFrom(cfg *Config, path string, seen map[string]bool, depth int) error {
	if depth >= maxIncludeDepth {
		return fmt.Errorf("config includes: nesting deeper than %d", maxIncludeDepth)
	}
	dir := filepath.Dir(path)
	patterns := cfg.Includes
	cfg.Includes = nil

	for _, pattern := range patterns {
		files, err := expandInclude(dir, pattern)
		if err != nil {
			return err
		}
		for _, f := range files {
			if seen[f] {
				return fmt.Errorf("config includes: %s included twice", f)
			}
			seen[f] = true

			if err := validatePermissions(f); err != nil {
				return fmt.Errorf("config includes: %w", err)
			}
			data, err := os.ReadFile(f)
			if err != nil {
				return fmt.Errorf("config includes: read %s: %w", f, err)
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return fmt.Errorf("config includes: parse %s: %w", f, err)
			}
			if len(cfg.Includes) > 0 {
				if err := includeFrom(cfg, f, seen, depth+1); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func expandInclude(dir, pattern string) ([]string, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(dir, pattern)
	}
	pattern = filepath.Clean(pattern)

	if rel, err := filepath.Rel(dir, pattern); err != nil || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("config includes: %s is outside %s", pattern, dir)
	}

	if !strings.ContainsAny(pattern, "*?[") {
		return []string{pattern}, nil
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("config includes: glob %s: %w", pattern, err)
	}
	return matches, nil
}
