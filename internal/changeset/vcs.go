package changeset

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/melih-ucgun/saucier/internal/config"
)

// ErrRepoUnavailable is returned when the configured repository cannot be
// opened or does not exist. Always fatal, never retried.
var ErrRepoUnavailable = errors.New("repository unavailable")

// Repo is the uniform view over one VCS checkout. One implementation per
// VCS kind; the kinds differ only in how they resolve the start reference.
type Repo interface {
	// LatestRevision returns the committed revision the checkout is at.
	LatestRevision() (string, error)

	// DefaultStartRef resolves the reference changes are computed against
	// when none is given explicitly. Branch-based kinds return their
	// configured per-kind reference; revision-based kinds return the
	// checkout's committed revision.
	DefaultStartRef() (string, error)

	// ChangedPaths lists paths changed between start and end. An empty end
	// means the working tree.
	ChangedPaths(start, end string) ([]string, error)
}

// Open dispatches on the configured VCS kind.
func Open(cfg *config.Config) (Repo, error) {
	switch cfg.RepoType {
	case "git":
		return openGit(cfg.Repo, cfg.VCS.StartRefGit)
	case "hg":
		return openHg(cfg.Repo, cfg.VCS.StartRefHg)
	case "svn":
		return openSvn(cfg.Repo)
	default:
		return nil, fmt.Errorf("bilinmeyen repo_type %q (git, hg, svn)", cfg.RepoType)
	}
}

// --- git (go-git) ---

type gitRepo struct {
	repo     *git.Repository
	path     string
	startRef string
}

func openGit(path, startRef string) (Repo, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRepoUnavailable, path, err)
	}
	if startRef == "" {
		startRef = "origin/master"
	}
	return &gitRepo{repo: repo, path: path, startRef: startRef}, nil
}

func (r *gitRepo) LatestRevision() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", err
	}
	return head.Hash().String(), nil
}

func (r *gitRepo) DefaultStartRef() (string, error) {
	return r.startRef, nil
}

func (r *gitRepo) ChangedPaths(start, end string) ([]string, error) {
	startTree, err := r.treeAt(start)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{})

	endRev := end
	if endRev == "" {
		endRev = "HEAD"
	}
	endTree, err := r.treeAt(endRev)
	if err != nil {
		return nil, err
	}
	changes, err := object.DiffTree(startTree, endTree)
	if err != nil {
		return nil, err
	}
	for _, ch := range changes {
		if ch.From.Name != "" {
			set[ch.From.Name] = struct{}{}
		}
		if ch.To.Name != "" {
			set[ch.To.Name] = struct{}{}
		}
	}

	// Working-tree end state also includes uncommitted changes.
	if end == "" {
		w, err := r.repo.Worktree()
		if err != nil {
			return nil, err
		}
		status, err := w.Status()
		if err != nil {
			return nil, err
		}
		for p, st := range status {
			if st.Worktree != git.Unmodified || st.Staging != git.Unmodified {
				set[p] = struct{}{}
			}
		}
	}

	return sortedKeys(set), nil
}

func (r *gitRepo) treeAt(rev string) (*object.Tree, error) {
	h, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("ref %q çözümlenemedi: %w", rev, err)
	}
	commit, err := r.repo.CommitObject(*h)
	if err != nil {
		return nil, err
	}
	return commit.Tree()
}

// --- hg (exec driver) ---

type hgRepo struct {
	path     string
	startRef string
}

func openHg(path, startRef string) (Repo, error) {
	if _, err := os.Stat(filepath.Join(path, ".hg")); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRepoUnavailable, path, err)
	}
	if startRef == "" {
		startRef = "default"
	}
	return &hgRepo{path: path, startRef: startRef}, nil
}

func (r *hgRepo) LatestRevision() (string, error) {
	return r.run("log", "-l", "1", "--template", "{node}")
}

func (r *hgRepo) DefaultStartRef() (string, error) {
	return r.startRef, nil
}

func (r *hgRepo) ChangedPaths(start, end string) ([]string, error) {
	args := []string{"status", "-n", "--rev", start}
	if end != "" {
		args = append(args, "--rev", end)
	}
	out, err := r.run(args...)
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

func (r *hgRepo) run(args ...string) (string, error) {
	cmd := exec.Command("hg", args...)
	cmd.Dir = r.path
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("hg %s: %w: %s", strings.Join(args, " "), err, string(out))
	}
	return strings.TrimSpace(string(out)), nil
}

// --- svn (exec driver) ---

type svnRepo struct {
	path string
}

func openSvn(path string) (Repo, error) {
	if _, err := os.Stat(filepath.Join(path, ".svn")); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRepoUnavailable, path, err)
	}
	return &svnRepo{path: path}, nil
}

func (r *svnRepo) LatestRevision() (string, error) {
	return r.run("info", "--show-item", "revision")
}

// DefaultStartRef for svn is the checkout's committed revision; subversion
// has no branch reference to diff against.
func (r *svnRepo) DefaultStartRef() (string, error) {
	return r.LatestRevision()
}

func (r *svnRepo) ChangedPaths(start, end string) ([]string, error) {
	rev := start
	if end != "" {
		rev = start + ":" + end
	}
	out, err := r.run("diff", "--summarize", "-r", rev)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, line := range splitLines(out) {
		// Lines look like "M       cookbooks/foo/recipes/default.rb".
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		paths = append(paths, fields[len(fields)-1])
	}
	return paths, nil
}

func (r *svnRepo) run(args ...string) (string, error) {
	cmd := exec.Command("svn", args...)
	cmd.Dir = r.path
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("svn %s: %w: %s", strings.Join(args, " "), err, string(out))
	}
	return strings.TrimSpace(string(out)), nil
}

// --- helpers ---

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
