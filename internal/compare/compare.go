// Package compare reports the differences between two packages, member by
// member, and line by line within a member.
package compare

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/mcdonaldj/apkpatch/internal/apkerr"
	"github.com/mcdonaldj/apkpatch/internal/binxml"
	"github.com/mcdonaldj/apkpatch/internal/ports"
)

// MemberChange represents a member that differs between two packages
type MemberChange struct {
	Name   string
	Status rune // 'M' modified, 'A' added, 'D' deleted
	Size1  uint64
	Size2  uint64
}

// DiffResult contains the comparison between two packages
type DiffResult struct {
	Left     string
	Right    string
	Changes  []MemberChange
	Added    int
	Modified int
	Deleted  int
}

// ComputeDiff compares the listings of two packages. Members are matched by
// name; a member whose CRC-32 or size differs is modified. Duplicate names
// resolve to their first entry.
func ComputeDiff(archiver ports.Archiver, left, right string) (*DiffResult, error) {
	files1, err := listMembers(archiver, left)
	if err != nil {
		return nil, err
	}
	files2, err := listMembers(archiver, right)
	if err != nil {
		return nil, err
	}

	result := &DiffResult{Left: left, Right: right}

	// Find all unique names
	allNames := make(map[string]bool)
	for name := range files1 {
		allNames[name] = true
	}
	for name := range files2 {
		allNames[name] = true
	}

	for name := range allNames {
		e1, in1 := files1[name]
		e2, in2 := files2[name]

		change := MemberChange{Name: name}
		switch {
		case in1 && !in2:
			change.Status = 'D'
			change.Size1 = e1.UncompressedSize
			result.Deleted++
		case !in1 && in2:
			change.Status = 'A'
			change.Size2 = e2.UncompressedSize
			result.Added++
		case e1.CRC32 != e2.CRC32 || e1.UncompressedSize != e2.UncompressedSize:
			change.Status = 'M'
			change.Size1 = e1.UncompressedSize
			change.Size2 = e2.UncompressedSize
			result.Modified++
		default:
			// Unchanged, skip
			continue
		}

		result.Changes = append(result.Changes, change)
	}

	// Sort changes: M, A, D then by name
	order := map[rune]int{'M': 0, 'A': 1, 'D': 2}
	sort.Slice(result.Changes, func(i, j int) bool {
		if result.Changes[i].Status != result.Changes[j].Status {
			return order[result.Changes[i].Status] < order[result.Changes[j].Status]
		}
		return result.Changes[i].Name < result.Changes[j].Name
	})

	return result, nil
}

// listMembers indexes a listing by name. An empty listing means the
// package is missing, unreadable or empty, none of which can be compared.
func listMembers(archiver ports.Archiver, path string) (map[string]ports.Entry, error) {
	entries := archiver.List(path)
	if len(entries) == 0 {
		return nil, apkerr.With(apkerr.Newf(apkerr.CodeArchiveOpen, "no members in %s", path), "container", path)
	}
	files := make(map[string]ports.Entry, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name, "/") {
			continue
		}
		if _, dup := files[e.Name]; !dup {
			files[e.Name] = e
		}
	}
	return files, nil
}

// DiffLine represents a single line in the diff output
type DiffLine struct {
	LineNum1 int    // Line number in the left member (0 if added)
	LineNum2 int    // Line number in the right member (0 if deleted)
	Type     rune   // '+' added, '-' deleted, ' ' unchanged
	Content  string // Line content
}

// MemberDiffResult contains the line-by-line diff of a single member
type MemberDiffResult struct {
	Name     string
	Left     string
	Right    string
	Lines    []DiffLine
	IsBinary bool
	Error    string
}

// IsCompiledXML reports whether data starts with a compiled XML header.
func IsCompiledXML(data []byte) bool {
	return len(data) >= 8 && data[0] == 0x03 && data[1] == 0x00 && data[2] == 0x08 && data[3] == 0x00
}

// IsBinaryContent checks if content appears to be binary
func IsBinaryContent(content []byte) bool {
	if len(content) == 0 {
		return false
	}
	// Check first 8000 bytes for null bytes or invalid UTF-8
	sample := content
	if len(sample) > 8000 {
		sample = sample[:8000]
	}
	return bytes.IndexByte(sample, 0) >= 0 || !utf8.Valid(sample)
}

// MemberText returns a member as text. Compiled XML is decoded and
// rendered as an outline; other binary content reports binary=true.
func MemberText(archiver ports.Archiver, decoder ports.ManifestDecoder, path, name string) (text string, binary bool, err error) {
	entry, ok := ports.Find(archiver.List(path), name)
	if !ok {
		err := apkerr.Newf(apkerr.CodeMemberNotFound, "path does not exist in archive: %s", name)
		return "", false, apkerr.With(apkerr.With(err, "container", path), "member", name)
	}

	data, err := archiver.ReadMember(path, entry)
	if err != nil {
		return "", false, err
	}

	if IsCompiledXML(data) {
		doc, err := decoder.Decode(data)
		if err != nil {
			return "", false, fmt.Errorf("decoding %s: %w", name, err)
		}
		return binxml.Outline(doc.Elements()), false, nil
	}
	if IsBinaryContent(data) {
		return "", true, nil
	}
	return string(data), false, nil
}

// ComputeMemberDiff computes the line-by-line diff of one changed member.
// Read failures are reported in the result rather than returned.
func ComputeMemberDiff(archiver ports.Archiver, decoder ports.ManifestDecoder, left, right string, change MemberChange) *MemberDiffResult {
	result := &MemberDiffResult{
		Name:  change.Name,
		Left:  left,
		Right: right,
	}

	var content1, content2 string
	var bin1, bin2 bool
	var err error

	// Read contents based on member status
	switch change.Status {
	case 'A': // Added - only exists on the right
		content2, bin2, err = MemberText(archiver, decoder, right, change.Name)
		if err != nil {
			result.Error = fmt.Sprintf("Error reading member: %v", err)
			return result
		}
	case 'D': // Deleted - only exists on the left
		content1, bin1, err = MemberText(archiver, decoder, left, change.Name)
		if err != nil {
			result.Error = fmt.Sprintf("Error reading member: %v", err)
			return result
		}
	default: // Modified - exists in both
		content1, bin1, err = MemberText(archiver, decoder, left, change.Name)
		if err != nil {
			result.Error = fmt.Sprintf("Error reading %s: %v", left, err)
			return result
		}
		content2, bin2, err = MemberText(archiver, decoder, right, change.Name)
		if err != nil {
			result.Error = fmt.Sprintf("Error reading %s: %v", right, err)
			return result
		}
	}

	if bin1 || bin2 {
		result.IsBinary = true
		return result
	}

	result.Lines = LineDiff(content1, content2)
	return result
}

// LineDiff diffs two texts line by line.
func LineDiff(content1, content2 string) []DiffLine {
	dmp := diffmatchpatch.New()
	chars1, chars2, lineArray := dmp.DiffLinesToChars(content1, content2)
	diffs := dmp.DiffMain(chars1, chars2, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var lines []DiffLine
	n1, n2 := 0, 0
	for _, d := range diffs {
		for _, text := range splitLines(d.Text) {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				n1++
				n2++
				lines = append(lines, DiffLine{LineNum1: n1, LineNum2: n2, Type: ' ', Content: text})
			case diffmatchpatch.DiffDelete:
				n1++
				lines = append(lines, DiffLine{LineNum1: n1, Type: '-', Content: text})
			case diffmatchpatch.DiffInsert:
				n2++
				lines = append(lines, DiffLine{LineNum2: n2, Type: '+', Content: text})
			}
		}
	}
	return lines
}

// splitLines splits a diff run into lines, dropping the final terminator.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}
