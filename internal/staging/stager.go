package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/moby/go-archive"

	"github.com/sudankdk/runbox/internal/model"
)

// Fixed names inside the environment's work dir. Every language image reads
// its inputs from these, whatever the language.
const (
	SourceFile = "code.txt"
	InputFile  = "input.txt"
)

// Copier moves a tar stream into a container.
type Copier interface {
	CopyTo(ctx context.Context, containerID, dst string, tar io.Reader) error
}

type Stager struct {
	root    string
	workDir string
	copier  Copier
}

// New returns a stager keeping its arenas under root (a runbox dir in the
// system temp dir when empty) and copying them into workDir.
func New(root, workDir string, copier Copier) (*Stager, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "runbox")
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("create staging root: %w", err)
	}
	return &Stager{root: root, workDir: workDir, copier: copier}, nil
}

// Stage writes code and stdin into an arena owned by this environment alone,
// then copies them into the container. The arena is removed before return.
func (s *Stager) Stage(ctx context.Context, env *model.Environment, code, stdin string) error {
	arena, err := s.save(env.InstanceID, code, stdin)
	if err != nil {
		return err
	}
	defer os.RemoveAll(arena)

	tar, err := archive.TarWithOptions(arena, &archive.TarOptions{
		IncludeFiles: []string{SourceFile, InputFile},
	})
	if err != nil {
		return fmt.Errorf("archive staged files: %w", err)
	}
	defer tar.Close()

	if err := s.copier.CopyTo(ctx, env.ContainerID, s.workDir, tar); err != nil {
		return fmt.Errorf("copy into container: %w", err)
	}
	return nil
}

func (s *Stager) save(instanceID, code, stdin string) (string, error) {
	if instanceID == "" || filepath.Base(instanceID) != instanceID || instanceID == "." || instanceID == ".." {
		return "", fmt.Errorf("invalid instance id %q", instanceID)
	}
	dir := filepath.Join(s.root, instanceID)
	// Mkdir, not MkdirAll: an existing arena means the id is not unique.
	if err := os.Mkdir(dir, 0o700); err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("staging arena %s already exists", instanceID)
		}
		return "", fmt.Errorf("create staging arena: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, SourceFile), []byte(code), 0o644); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("write source: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, InputFile), []byte(stdin), 0o644); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("write input: %w", err)
	}
	return dir, nil
}
