// Package tuisvc provides the real implementation of tui.Service.
package tuisvc

import (
	"log/slog"

	"github.com/mcdonaldj/apkpatch/internal/apk"
	"github.com/mcdonaldj/apkpatch/internal/apkerr"
	"github.com/mcdonaldj/apkpatch/internal/compare"
	"github.com/mcdonaldj/apkpatch/internal/ports"
	"github.com/mcdonaldj/apkpatch/internal/tui"
)

// Service implements tui.Service on top of an archiver and a decoder.
type Service struct {
	archiver     ports.Archiver
	decoder      ports.ManifestDecoder
	manifestName string
	logger       *slog.Logger
}

// New creates a new TUI service. An empty manifestName uses the default.
func New(archiver ports.Archiver, decoder ports.ManifestDecoder, manifestName string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		archiver:     archiver,
		decoder:      decoder,
		manifestName: manifestName,
		logger:       logger,
	}
}

// Members lists the package in archive order.
func (s *Service) Members(path string) ([]ports.Entry, error) {
	entries := s.archiver.List(path)
	if len(entries) == 0 {
		return nil, apkerr.With(apkerr.Newf(apkerr.CodeArchiveOpen, "no members in %s", path), "container", path)
	}
	return entries, nil
}

// Inspect digests the member and renders its preview.
func (s *Service) Inspect(path string, entry ports.Entry) (*tui.MemberDetail, error) {
	digest, err := s.archiver.Digest(path, entry)
	if err != nil {
		return nil, err
	}

	text, binary, err := compare.MemberText(s.archiver, s.decoder, path, entry.Name)
	if err != nil {
		return nil, err
	}

	return &tui.MemberDetail{
		Entry:  entry,
		Digest: digest,
		Text:   text,
		Binary: binary,
	}, nil
}

// CheckManifest runs the debuggable check.
func (s *Service) CheckManifest(path string) (apk.Result, error) {
	return apk.NewPackage(path, s.archiver, s.decoder, s.logger, apk.WithManifestName(s.manifestName)).MakeDebuggable()
}

// Compare lists the members that differ between two packages.
func (s *Service) Compare(left, right string) (*compare.DiffResult, error) {
	return compare.ComputeDiff(s.archiver, left, right)
}

// CompareMember diffs one changed member.
func (s *Service) CompareMember(left, right string, change compare.MemberChange) *compare.MemberDiffResult {
	return compare.ComputeMemberDiff(s.archiver, s.decoder, left, right, change)
}

// Compile-time check that Service implements tui.Service.
var _ tui.Service = (*Service)(nil)
