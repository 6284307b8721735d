// Package extract copies container members out to a destination directory.
package extract

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/mcdonaldj/apkpatch/internal/adapters/osfs"
	"github.com/mcdonaldj/apkpatch/internal/adapters/ziparchiver"
	"github.com/mcdonaldj/apkpatch/internal/apkerr"
	"github.com/mcdonaldj/apkpatch/internal/ports"
)

// Service provides extraction operations with injected dependencies.
type Service struct {
	fs       ports.FileSystem
	archiver ports.Archiver
	logger   *slog.Logger
}

// NewService creates a new extraction service with the given dependencies.
func NewService(fs ports.FileSystem, archiver ports.Archiver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		fs:       fs,
		archiver: archiver,
		logger:   logger,
	}
}

// NewDefaultService creates an extraction service with real production dependencies.
func NewDefaultService(logger *slog.Logger) *Service {
	return NewService(osfs.New(), ziparchiver.New(ziparchiver.WithLogger(logger)), logger)
}

// ExtractOne writes member to dest/member. dest must be a directory or
// must not exist; this is checked before the container is touched. The
// member name is used verbatim as a relative path and any directories it
// implies must already exist.
func (s *Service) ExtractOne(containerPath, member, dest string) error {
	s.logger.Debug("extract", "container", containerPath, "member", member, "destination", dest)

	if err := s.checkDestination(dest); err != nil {
		return err
	}

	entry, ok := ports.Find(s.archiver.List(containerPath), member)
	if !ok {
		err := apkerr.Newf(apkerr.CodeMemberNotFound, "path does not exist in archive: %s", member)
		return apkerr.With(apkerr.With(err, "container", containerPath), "member", member)
	}

	return s.extractEntry(containerPath, entry, dest)
}

// ExtractAll writes every member to dest in listing order. The listing is
// taken once up front. An empty listing is only accepted from a container
// that opens. The first failure stops the run; members already written
// stay on disk.
func (s *Service) ExtractAll(containerPath, dest string) error {
	s.logger.Debug("extract all", "container", containerPath, "destination", dest)

	if err := s.checkDestination(dest); err != nil {
		return err
	}

	entries := s.archiver.List(containerPath)
	if len(entries) == 0 {
		if err := s.archiver.Check(containerPath); err != nil {
			return err
		}
	}
	for _, entry := range entries {
		if err := s.extractEntry(containerPath, entry, dest); err != nil {
			s.logger.Warn("extract all stopped", "container", containerPath, "member", entry.Name, "error", err)
			return fmt.Errorf("extracting %s: %w", entry.Name, err)
		}
	}
	return nil
}

// checkDestination fails unless dest is a directory or absent.
func (s *Service) checkDestination(dest string) error {
	info, err := s.fs.Stat(dest)
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		return invalidDestination(apkerr.Newf(apkerr.CodeInvalidDestination,
			"path must be a directory or must not exist: %s", dest), dest)
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return invalidDestination(apkerr.Wrap(err, apkerr.CodeInvalidDestination, "unable to inspect destination"), dest)
	}
}

func (s *Service) extractEntry(containerPath string, entry ports.Entry, dest string) error {
	target, err := memberPath(dest, entry.Name)
	if err != nil {
		return err
	}

	data, err := s.archiver.ReadMember(containerPath, entry)
	if err != nil {
		return err
	}

	if err := s.ensureDir(dest); err != nil {
		return err
	}

	// Directory members carry no data; materialize the directory itself.
	if strings.HasSuffix(entry.Name, "/") {
		return s.ensureDir(target)
	}

	if err := s.fs.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", target, err)
	}
	return nil
}

// ensureDir creates dir if it does not exist yet. Parents are not created.
func (s *Service) ensureDir(dir string) error {
	if _, err := s.fs.Stat(dir); err == nil {
		return nil
	}
	if err := s.fs.Mkdir(dir, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}

// memberPath joins a member name onto dest, rejecting names that would
// land outside it.
func memberPath(dest, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", invalidDestination(apkerr.Newf(apkerr.CodeInvalidDestination, "invalid member path: %q", name), dest)
	}

	absDest, err := filepath.Abs(dest)
	if err != nil {
		return "", invalidDestination(apkerr.Wrap(err, apkerr.CodeInvalidDestination, "resolving destination path"), dest)
	}
	absDest = filepath.Clean(absDest)

	target := filepath.Join(dest, filepath.FromSlash(name))
	if !isWithinDir(absDest, target) {
		return "", invalidDestination(apkerr.Newf(apkerr.CodeInvalidDestination,
			"invalid file path (path traversal detected): %s", name), dest)
	}
	return target, nil
}

// isWithinDir checks if the target path is within the base directory.
func isWithinDir(absBaseDir, targetPath string) bool {
	absTarget, err := filepath.Abs(targetPath)
	if err != nil {
		return false
	}
	absTarget = filepath.Clean(absTarget)

	return strings.HasPrefix(absTarget, absBaseDir+string(filepath.Separator)) ||
		absTarget == absBaseDir
}

func invalidDestination(err error, dest string) error {
	return apkerr.With(err, "destination", dest)
}
