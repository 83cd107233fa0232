// Package changeset turns a VCS diff into directory-scoped change buckets
// for the impact analysis.
package changeset

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// DirFilters scopes changed paths to the three configured directory roles.
type DirFilters struct {
	CookbookDirs []string
	RoleDir      string
	DatabagDir   string
}

// Changeset is the immutable result of one diff computation. Paths outside
// the configured directories never appear in it.
type Changeset struct {
	StartRef string
	EndRef   string

	Cookbooks []string // cookbook names with changes under a cookbook dir
	Roles     []string // role names with changed role files
	Databags  []string // databag names with changed items
	Paths     []string // the scoped raw paths, for reporting
}

// Empty reports whether nothing in scope changed.
func (cs *Changeset) Empty() bool {
	return len(cs.Cookbooks) == 0 && len(cs.Roles) == 0 && len(cs.Databags) == 0
}

// ImpactedRoles is the built-in impact resolver: the union of changed
// cookbook and role names. An external resolver hook can replace it.
func (cs *Changeset) ImpactedRoles() []string {
	set := make(map[string]struct{})
	for _, c := range cs.Cookbooks {
		set[c] = struct{}{}
	}
	for _, r := range cs.Roles {
		set[r] = struct{}{}
	}
	return sortedKeys(set)
}

// Compute diffs the repo between start and end and classifies the result.
// repoRoot is only needed when trackSymlinks is set: changed paths that are
// symlinks are then classified by their resolved target instead.
func Compute(repo Repo, start, end string, filters DirFilters, repoRoot string, trackSymlinks bool) (*Changeset, error) {
	changed, err := repo.ChangedPaths(start, end)
	if err != nil {
		return nil, err
	}

	cs := &Changeset{StartRef: start, EndRef: end}
	cookbooks := make(map[string]struct{})
	roles := make(map[string]struct{})
	databags := make(map[string]struct{})
	var scoped []string

	for _, p := range changed {
		p = filepath.ToSlash(p)
		if trackSymlinks && repoRoot != "" {
			p = resolveSymlink(repoRoot, p)
		}

		matched := false
		for _, dir := range filters.CookbookDirs {
			if name, ok := childOf(p, dir); ok {
				cookbooks[name] = struct{}{}
				matched = true
				break
			}
		}
		if !matched && filters.RoleDir != "" {
			if name, ok := childOf(p, filters.RoleDir); ok {
				roles[stripExt(name)] = struct{}{}
				matched = true
			}
		}
		if !matched && filters.DatabagDir != "" {
			if name, ok := childOf(p, filters.DatabagDir); ok {
				databags[name] = struct{}{}
				matched = true
			}
		}
		if matched {
			scoped = append(scoped, p)
		}
	}

	cs.Cookbooks = sortedKeys(cookbooks)
	cs.Roles = sortedKeys(roles)
	cs.Databags = sortedKeys(databags)
	sort.Strings(scoped)
	cs.Paths = scoped
	return cs, nil
}

// childOf returns the first path element below dir, e.g.
// childOf("cookbooks/nginx/recipes/default.rb", "cookbooks") == "nginx".
func childOf(p, dir string) (string, bool) {
	dir = strings.TrimSuffix(filepath.ToSlash(dir), "/")
	if !strings.HasPrefix(p, dir+"/") {
		return "", false
	}
	rest := strings.TrimPrefix(p, dir+"/")
	name := rest
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		name = rest[:i]
	}
	if name == "" {
		return "", false
	}
	return name, true
}

func stripExt(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}

// resolveSymlink maps a symlinked path to its target relative to the repo
// root; non-symlinks (and targets outside the repo) pass through unchanged.
func resolveSymlink(root, p string) string {
	full := filepath.Join(root, filepath.FromSlash(p))
	fi, err := os.Lstat(full)
	if err != nil || fi.Mode()&os.ModeSymlink == 0 {
		return p
	}
	target, err := filepath.EvalSymlinks(full)
	if err != nil {
		return p
	}
	rel, err := filepath.Rel(root, target)
	if err != nil || strings.HasPrefix(rel, "..") {
		return p
	}
	return filepath.ToSlash(rel)
}
