// Package snapshot records the members of a package with their digests and
// verifies a package against such a record later.
package snapshot

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/zeebo/blake3"

	"github.com/mcdonaldj/apkpatch/internal/apkerr"
	"github.com/mcdonaldj/apkpatch/internal/ports"
)

type MemberRecord struct {
	Name      string `json:"name"`
	SizeBytes uint64 `json:"size_bytes"`
	CRC32     uint32 `json:"crc32"`
	BLAKE3    string `json:"blake3"`
}

type Snapshot struct {
	Package   string         `json:"package"`
	BLAKE3    string         `json:"blake3"`
	SizeBytes int64          `json:"size_bytes"`
	CreatedAt time.Time      `json:"created_at"`
	Members   []MemberRecord `json:"members"`
}

// Member returns the first record named name.
func (s *Snapshot) Member(name string) (MemberRecord, bool) {
	for _, m := range s.Members {
		if m.Name == name {
			return m, true
		}
	}
	return MemberRecord{}, false
}

// Mismatch is one way a package differs from its snapshot.
type Mismatch struct {
	Name    string
	Problem string // "missing", "unexpected" or "digest"
}

// VerifyResult is the outcome of Verify. The package digest may change
// while every member still matches, for example after re-signing.
type VerifyResult struct {
	Mismatches     []Mismatch
	PackageChanged bool
}

// OK reports whether every member matched.
func (r *VerifyResult) OK() bool {
	return len(r.Mismatches) == 0
}

// Service provides snapshot operations with injected dependencies.
type Service struct {
	fs       ports.FileSystem
	archiver ports.Archiver
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a new snapshot service with the given dependencies.
func NewService(fs ports.FileSystem, archiver ports.Archiver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		fs:       fs,
		archiver: archiver,
		logger:   logger,
		now:      time.Now,
	}
}

// Take records every member of the package at path.
func (s *Service) Take(path string) (*Snapshot, error) {
	entries := s.archiver.List(path)
	if len(entries) == 0 {
		return nil, apkerr.With(apkerr.Newf(apkerr.CodeArchiveOpen, "no members in %s", path), "container", path)
	}

	sum, size, err := s.digestFile(path)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Package:   path,
		BLAKE3:    sum,
		SizeBytes: size,
		CreatedAt: s.now().UTC(),
		Members:   make([]MemberRecord, 0, len(entries)),
	}
	for _, e := range entries {
		digest, err := s.archiver.Digest(path, e)
		if err != nil {
			return nil, err
		}
		snap.Members = append(snap.Members, MemberRecord{
			Name:      e.Name,
			SizeBytes: e.UncompressedSize,
			CRC32:     e.CRC32,
			BLAKE3:    digest,
		})
	}

	s.logger.Debug("snapshot taken", "package", path, "members", len(snap.Members))
	return snap, nil
}

func (s *Service) digestFile(path string) (string, int64, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := blake3.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Save writes the snapshot as indented JSON.
func (s *Service) Save(snap *Snapshot, dest string) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return s.fs.WriteFile(dest, append(data, '\n'), 0o644)
}

// Load reads a snapshot written by Save.
func (s *Service) Load(src string) (*Snapshot, error) {
	f, err := s.fs.Open(src)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", src, err)
	}
	return &snap, nil
}

// Verify compares the package at path with snap, member by member.
// Duplicate names compare their first entries.
func (s *Service) Verify(path string, snap *Snapshot) (*VerifyResult, error) {
	current, err := s.Take(path)
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{PackageChanged: current.BLAKE3 != snap.BLAKE3}
	seen := make(map[string]bool)

	for _, want := range snap.Members {
		if seen[want.Name] {
			continue
		}
		seen[want.Name] = true

		got, ok := current.Member(want.Name)
		switch {
		case !ok:
			result.Mismatches = append(result.Mismatches, Mismatch{Name: want.Name, Problem: "missing"})
		case got.BLAKE3 != want.BLAKE3 || got.SizeBytes != want.SizeBytes:
			result.Mismatches = append(result.Mismatches, Mismatch{Name: want.Name, Problem: "digest"})
		}
	}
	for _, got := range current.Members {
		if !seen[got.Name] {
			seen[got.Name] = true
			result.Mismatches = append(result.Mismatches, Mismatch{Name: got.Name, Problem: "unexpected"})
		}
	}

	if !result.OK() {
		s.logger.Warn("snapshot mismatch", "package", path, "mismatches", len(result.Mismatches))
	}
	return result, nil
}
