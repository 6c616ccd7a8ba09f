// internal/toolchain/history.go
package toolchain

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"
)

const (
	historyAuthorName  = "leoforge"
	historyAuthorEmail = "leoforge@localhost"
)

// Snapshot is one recorded version of a workspace.
type Snapshot struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	When    time.Time `json:"when"`
}

// History records every saved version of a workspace as a commit in a local
// git repository inside the workspace.
type History struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewHistory creates a snapshot recorder.
func NewHistory(logger *zap.Logger) *History {
	return &History{logger: logger.Named("history"), now: time.Now}
}

// Init makes dir a git repository. An existing repository is reused.
func (h *History) Init(dir string) error {
	_, err := git.PlainInit(dir, false)
	if err != nil && !errors.Is(err, git.ErrRepositoryAlreadyExists) {
		return fmt.Errorf("failed to initialize history in %s: %w", dir, err)
	}
	return nil
}

// Snapshot commits file (relative to dir). It returns an empty hash when the
// file is unchanged since the last snapshot.
func (h *History) Snapshot(dir, file, message string) (string, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return "", fmt.Errorf("failed to open history in %s: %w", dir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to open worktree: %w", err)
	}
	if _, err := wt.Add(file); err != nil {
		return "", fmt.Errorf("failed to stage %s: %w", file, err)
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: historyAuthorName, Email: historyAuthorEmail, When: h.now()},
	})
	if errors.Is(err, git.ErrEmptyCommit) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to commit snapshot: %w", err)
	}
	h.logger.Debug("Recorded workspace snapshot.", zap.String("dir", dir), zap.String("hash", hash.String()))
	return hash.String(), nil
}

// Log returns the recorded snapshots, newest first.
func (h *History) Log(dir string) ([]Snapshot, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open history in %s: %w", dir, err)
	}
	iter, err := repo.Log(&git.LogOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	defer iter.Close()

	var snapshots []Snapshot
	err = iter.ForEach(func(c *object.Commit) error {
		snapshots = append(snapshots, Snapshot{Hash: c.Hash.String(), Message: c.Message, When: c.Author.When})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk history: %w", err)
	}
	return snapshots, nil
}
