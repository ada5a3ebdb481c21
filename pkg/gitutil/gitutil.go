// Package gitutil discovers modified files in a version-controlled
// configuration tree.
package gitutil

import (
	"path/filepath"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/tfgraph-io/tfgraph/pkg/errors"
)

// ModifiedFiles returns the absolute paths of files changed in the work tree
// containing path: staged, unstaged, and untracked changes. When the work
// tree is clean, the files changed by the HEAD commit relative to its first
// parent are returned instead, so CI runs on a fresh checkout still see the
// change under test.
func ModifiedFiles(path string) ([]string, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, errors.ConfigError(path+" is not inside a git work tree", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, err
	}
	root := wt.Filesystem.Root()

	status, err := wt.Status()
	if err != nil {
		return nil, err
	}

	set := make(map[string]bool)
	for file, st := range status {
		if st.Worktree == git.Unmodified && st.Staging == git.Unmodified {
			continue
		}
		set[filepath.Join(root, file)] = true
	}

	if len(set) == 0 {
		if err := headChanges(repo, root, set); err != nil {
			return nil, err
		}
	}

	files := make([]string, 0, len(set))
	for f := range set {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, nil
}

// headChanges collects the files the HEAD commit touched relative to its
// first parent. A root commit contributes every file it introduced.
func headChanges(repo *git.Repository, root string, set map[string]bool) error {
	head, err := repo.Head()
	if err != nil {
		return err
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return err
	}
	tree, err := commit.Tree()
	if err != nil {
		return err
	}

	var parentTree *object.Tree
	if commit.NumParents() > 0 {
		parent, err := commit.Parent(0)
		if err != nil {
			return err
		}
		parentTree, err = parent.Tree()
		if err != nil {
			return err
		}
	}

	changes, err := object.DiffTree(parentTree, tree)
	if err != nil {
		return err
	}
	for _, change := range changes {
		name := change.To.Name
		if name == "" {
			name = change.From.Name
		}
		set[filepath.Join(root, name)] = true
	}
	return nil
}
