// Package filter decides which notification repositories are in scope.
package filter

import (
	"path"
	"strings"

	"github.com/nhle/gunsub/internal/model"
)

// Rules holds repository include and exclude glob patterns.
//
// A pattern containing "/" is matched against the owner-qualified
// repository name ("owner/repo"), any other pattern against the short
// name. Matching is case-sensitive shell globbing.
type Rules struct {
	Include []string
	Exclude []string
}

// NewRules builds Rules, dropping blank patterns.
func NewRules(include, exclude []string) Rules {
	return Rules{
		Include: model.SplitPatterns(include),
		Exclude: model.SplitPatterns(exclude),
	}
}

// Includes reports whether n's repository passes the rules.
func (r Rules) Includes(n model.Notification) bool {
	return IsIncluded(n, r.Include, r.Exclude)
}

// IsIncluded reports whether n passes the include and exclude lists.
// An empty include list admits every repository; any exclude match wins.
func IsIncluded(n model.Notification, include, exclude []string) bool {
	if len(include) > 0 && !matchAny(n.Repository, include) {
		return false
	}
	return !matchAny(n.Repository, exclude)
}

func matchAny(repo model.Repository, patterns []string) bool {
	for _, pattern := range patterns {
		if Match(pattern, repo) {
			return true
		}
	}
	return false
}

// Match reports whether pattern matches repo. Malformed patterns never
// match.
func Match(pattern string, repo model.Repository) bool {
	if pattern == "" {
		return false
	}
	name := repo.Name
	if strings.Contains(pattern, "/") {
		name = repo.FullName
	}
	return globMatch(pattern, name)
}

// globMatch applies fnmatch-style globbing where "*" also crosses "/".
//
// path.Match stops "*" at separators and spells negated classes "[^...]",
// so the pattern is matched against a separator-free copy of both sides
// and "[!" is rewritten.
func globMatch(pattern, name string) bool {
	pattern = strings.ReplaceAll(pattern, "[!", "[^")
	pattern = strings.ReplaceAll(pattern, "/", sepPlaceholder)
	name = strings.ReplaceAll(name, "/", sepPlaceholder)

	ok, err := path.Match(pattern, name)
	return err == nil && ok
}

// sepPlaceholder stands in for "/" during matching. It is a private-use
// rune, so it cannot clash with GitHub repository names.
const sepPlaceholder = "\uE000"
