package watch

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	gitignore "github.com/sabhiram/go-gitignore"
)

// ignoreFiles are read from every directory the walk enters.
var ignoreFiles = []string{".gitignore", ".ignore"}

// ignoreRules holds the compiled ignore files of one tree, keyed by the
// directory they were found in. Patterns apply relative to that directory.
type ignoreRules struct {
	root  string
	byDir map[string][]*gitignore.GitIgnore
}

func newIgnoreRules(root string) *ignoreRules {
	return &ignoreRules{root: root, byDir: map[string][]*gitignore.GitIgnore{}}
}

func (r *ignoreRules) load(dir string) error {
	for _, name := range ignoreFiles {
		path := filepath.Join(dir, name)
		gi, err := gitignore.CompileIgnoreFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("reading %s: %w", path, err)
		}
		r.byDir[dir] = append(r.byDir[dir], gi)
	}
	return nil
}

// excluded reports whether an ignore file in any ancestor of path, up to the
// root, matches it.
func (r *ignoreRules) excluded(path string, isDir bool) bool {
	for dir := filepath.Dir(path); ; dir = filepath.Dir(dir) {
		if rules, ok := r.byDir[dir]; ok {
			rel, err := filepath.Rel(dir, path)
			if err == nil {
				rel = filepath.ToSlash(rel)
				if isDir {
					// Directory-only patterns ("build/") need the slash.
					rel += "/"
				}
				for _, gi := range rules {
					if gi.MatchesPath(rel) {
						return true
					}
				}
			}
		}
		if dir == r.root || dir == filepath.Dir(dir) {
			return false
		}
	}
}
