package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mcdonaldj/apkpatch/internal/adapters/axmldecoder/axmltest"
	"github.com/mcdonaldj/apkpatch/internal/adapters/ziparchiver"
	"github.com/mcdonaldj/apkpatch/internal/apkerr"
	"github.com/mcdonaldj/apkpatch/internal/binxml"
	"github.com/mcdonaldj/apkpatch/internal/config"
	"github.com/mcdonaldj/apkpatch/internal/mocks"
	"github.com/mcdonaldj/apkpatch/internal/tui"
)

// ============================================================================
// Mock implementations for testing
// ============================================================================

// mockConfigService implements ConfigService for testing.
type mockConfigService struct {
	config        *config.Config
	loadErr       error
	saveErr       error
	configPath    string
	configPathErr error
	saved         *config.Config
}

func newMockConfigService() *mockConfigService {
	return &mockConfigService{
		config:     config.DefaultConfig(),
		configPath: "/test/.apkpatch/config.yaml",
	}
}

func (m *mockConfigService) Load() (*config.Config, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.config, nil
}

func (m *mockConfigService) Save(cfg *config.Config) error {
	m.saved = cfg
	return m.saveErr
}

func (m *mockConfigService) ConfigPath() (string, error) {
	if m.configPathErr != nil {
		return "", m.configPathErr
	}
	return m.configPath, nil
}

func (m *mockConfigService) DefaultConfig() *config.Config {
	return m.config
}

// testCLI bundles a CLI with its captured output, exit code and mocks.
type testCLI struct {
	*CLI
	out, errOut *bytes.Buffer
	exitCode    int
	cfgSvc      *mockConfigService
	archiver    *mocks.MockArchiver
	fs          *mocks.MockFileSystem
	decoder     *mocks.MockDecoder
}

func newTestCLI(args ...string) *testCLI {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	tc := &testCLI{
		CLI:      NewForTesting(out, errOut, append([]string{"apkpatch"}, args...)),
		out:      out,
		errOut:   errOut,
		exitCode: -1,
		cfgSvc:   newMockConfigService(),
		archiver: mocks.NewMockArchiver(),
		fs:       mocks.NewMockFileSystem(),
		decoder:  &mocks.MockDecoder{},
	}
	tc.Exit = func(code int) { tc.exitCode = code }
	tc.ConfigSvc = tc.cfgSvc
	tc.Archiver = tc.archiver
	tc.FileSystem = tc.fs
	tc.Decoder = tc.decoder
	return tc
}

// ============================================================================
// Dispatch
// ============================================================================

func TestRunNoCommand(t *testing.T) {
	tc := newTestCLI()
	tc.Run()

	if !strings.Contains(tc.out.String(), "No command specified") {
		t.Errorf("output = %q", tc.out.String())
	}
	if tc.exitCode != 1 {
		t.Errorf("exit code = %d, expected 1", tc.exitCode)
	}
}

func TestRunVersion(t *testing.T) {
	for _, arg := range []string{"version", "-v", "--version"} {
		t.Run(arg, func(t *testing.T) {
			tc := newTestCLI(arg)
			tc.Run()

			if got := tc.out.String(); got != "apkpatch vtest\n" {
				t.Errorf("output = %q", got)
			}
		})
	}
}

func TestRunHelp(t *testing.T) {
	tc := newTestCLI("help")
	tc.Run()

	for _, cmd := range []string{"list", "contains", "add", "extract", "debuggable", "manifest", "diff", "ui", "snapshot", "verify", "init"} {
		if !strings.Contains(tc.out.String(), "apkpatch "+cmd) {
			t.Errorf("usage does not mention %q", cmd)
		}
	}
	if tc.exitCode != -1 {
		t.Errorf("help should not exit, got %d", tc.exitCode)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	tc := newTestCLI("frobnicate")
	tc.Run()

	if !strings.Contains(tc.errOut.String(), "Unknown command: frobnicate") {
		t.Errorf("stderr = %q", tc.errOut.String())
	}
	if tc.exitCode != 1 {
		t.Errorf("exit code = %d, expected 1", tc.exitCode)
	}
}

// ============================================================================
// init
// ============================================================================

func TestInitConfig(t *testing.T) {
	tc := newTestCLI("init")
	tc.Run()

	if tc.cfgSvc.saved != tc.cfgSvc.config {
		t.Error("init should save the default config")
	}
	if !strings.Contains(tc.out.String(), "Created config at /test/.apkpatch/config.yaml") {
		t.Errorf("output = %q", tc.out.String())
	}
}

func TestInitConfigSaveError(t *testing.T) {
	tc := newTestCLI("init")
	tc.cfgSvc.saveErr = errors.New("read-only home")
	tc.Run()

	if !strings.Contains(tc.errOut.String(), "read-only home") || tc.exitCode != 1 {
		t.Errorf("stderr = %q, exit = %d", tc.errOut.String(), tc.exitCode)
	}
}

func TestInitConfigPathError(t *testing.T) {
	tc := newTestCLI("init")
	tc.cfgSvc.configPathErr = errors.New("no home")
	tc.Run()

	if tc.exitCode != 1 {
		t.Errorf("exit code = %d, expected 1", tc.exitCode)
	}
}

// ============================================================================
// list
// ============================================================================

func TestListMembers(t *testing.T) {
	tc := newTestCLI("list", "app.apk")
	tc.archiver.Put("app.apk", "AndroidManifest.xml", bytes.Repeat([]byte("m"), 2048))
	tc.archiver.Put("app.apk", "classes.dex", []byte("dex"))
	tc.Run()

	out := tc.out.String()
	if tc.exitCode != -1 {
		t.Fatalf("exit code = %d, stderr = %q", tc.exitCode, tc.errOut.String())
	}
	manifestAt := strings.Index(out, "AndroidManifest.xml")
	dexAt := strings.Index(out, "classes.dex")
	if manifestAt < 0 || dexAt < 0 || manifestAt > dexAt {
		t.Errorf("members missing or out of archive order:\n%s", out)
	}
	if !strings.Contains(out, "2.0 KiB") {
		t.Errorf("expected humanized size in:\n%s", out)
	}
	if !strings.Contains(out, "2 members") {
		t.Errorf("expected member count in:\n%s", out)
	}
	if strings.Contains(out, "digest:") {
		t.Error("digests should only be printed with --digest")
	}
}

func TestListMembersWithDigest(t *testing.T) {
	tc := newTestCLI("list", "--digest", "app.apk")
	tc.archiver.Put("app.apk", "classes.dex", []byte("dex"))
	tc.Run()

	if !strings.Contains(tc.out.String(), "digest:classes.dex") {
		t.Errorf("output = %q", tc.out.String())
	}
}

func TestListMembersDigestError(t *testing.T) {
	tc := newTestCLI("list", "-d", "app.apk")
	tc.archiver.Put("app.apk", "classes.dex", []byte("dex"))
	tc.archiver.Errors["Digest"] = errors.New("corrupt member")
	tc.Run()

	if !strings.Contains(tc.errOut.String(), "corrupt member") || tc.exitCode != 1 {
		t.Errorf("stderr = %q, exit = %d", tc.errOut.String(), tc.exitCode)
	}
}

func TestListMembersEmpty(t *testing.T) {
	tc := newTestCLI("list", "missing.apk")
	tc.Run()

	if !strings.Contains(tc.out.String(), "No members found in missing.apk") {
		t.Errorf("output = %q", tc.out.String())
	}
}

func TestListMembersUsage(t *testing.T) {
	for _, args := range [][]string{{"list"}, {"list", "a.apk", "b.apk"}, {"list", "--bogus", "a.apk"}} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			tc := newTestCLI(args...)
			tc.Run()

			if !strings.Contains(tc.out.String(), "Usage: apkpatch list") || tc.exitCode != 1 {
				t.Errorf("output = %q, exit = %d", tc.out.String(), tc.exitCode)
			}
		})
	}
}

func TestListMembersConfigError(t *testing.T) {
	tc := newTestCLI("list", "app.apk")
	tc.cfgSvc.loadErr = errors.New("bad yaml")
	tc.Run()

	if !strings.Contains(tc.errOut.String(), "Error loading config: bad yaml") || tc.exitCode != 1 {
		t.Errorf("stderr = %q, exit = %d", tc.errOut.String(), tc.exitCode)
	}
	if len(tc.archiver.Calls) != 0 {
		t.Errorf("archiver should not be touched, got %v", tc.archiver.Calls)
	}
}

// ============================================================================
// contains
// ============================================================================

func TestCheckContains(t *testing.T) {
	tc := newTestCLI("contains", "app.apk", "classes.dex")
	tc.archiver.Put("app.apk", "classes.dex", []byte("dex"))
	tc.Run()

	if tc.exitCode != -1 {
		t.Errorf("exit code = %d, expected none", tc.exitCode)
	}
	if !strings.Contains(tc.out.String(), "app.apk contains classes.dex") {
		t.Errorf("output = %q", tc.out.String())
	}
}

func TestCheckContainsMissing(t *testing.T) {
	tc := newTestCLI("contains", "app.apk", "Classes.dex")
	tc.archiver.Put("app.apk", "classes.dex", []byte("dex"))
	tc.Run()

	if tc.exitCode != 1 {
		t.Errorf("exit code = %d, expected 1", tc.exitCode)
	}
	if !strings.Contains(tc.out.String(), "does not contain Classes.dex") {
		t.Errorf("output = %q", tc.out.String())
	}
}

func TestCheckContainsUsage(t *testing.T) {
	tc := newTestCLI("contains", "app.apk")
	tc.Run()

	if !strings.Contains(tc.out.String(), "Usage: apkpatch contains") || tc.exitCode != 1 {
		t.Errorf("output = %q, exit = %d", tc.out.String(), tc.exitCode)
	}
}

// ============================================================================
// add
// ============================================================================

func TestAddMember(t *testing.T) {
	tc := newTestCLI("add", "app.apk", "/work/classes.dex")
	tc.fs.Files["/work/classes.dex"] = []byte("dex")
	tc.Run()

	if tc.exitCode != -1 {
		t.Fatalf("exit code = %d, stderr = %q", tc.exitCode, tc.errOut.String())
	}
	members := tc.archiver.Containers["app.apk"]
	if len(members) != 1 || members[0].Name != "classes.dex" || string(members[0].Content) != "dex" {
		t.Errorf("members = %+v", members)
	}
	if !strings.Contains(tc.out.String(), "Added classes.dex to app.apk") {
		t.Errorf("output = %q", tc.out.String())
	}
}

func TestAddMemberWithName(t *testing.T) {
	tc := newTestCLI("add", "app.apk", "/work/out.bin", "--name", "assets/data.bin")
	tc.fs.Files["/work/out.bin"] = []byte("data")
	tc.Run()

	members := tc.archiver.Containers["app.apk"]
	if len(members) != 1 || members[0].Name != "assets/data.bin" {
		t.Errorf("members = %+v", members)
	}
}

func TestAddMemberMissingFile(t *testing.T) {
	tc := newTestCLI("add", "app.apk", "/work/nope")
	tc.Run()

	if tc.exitCode != 1 || !strings.Contains(tc.errOut.String(), "Add failed") {
		t.Errorf("stderr = %q, exit = %d", tc.errOut.String(), tc.exitCode)
	}
	if len(tc.archiver.Calls) != 0 {
		t.Errorf("archiver should not be touched, got %v", tc.archiver.Calls)
	}
}

func TestAddMemberDirectory(t *testing.T) {
	tc := newTestCLI("add", "app.apk", "/work")
	tc.fs.AddDir("/work")
	tc.Run()

	if tc.exitCode != 1 || !strings.Contains(tc.errOut.String(), "is a directory") {
		t.Errorf("stderr = %q, exit = %d", tc.errOut.String(), tc.exitCode)
	}
}

func TestAddMemberArchiveError(t *testing.T) {
	tc := newTestCLI("add", "app.apk", "/work/classes.dex")
	tc.fs.Files["/work/classes.dex"] = []byte("dex")
	tc.archiver.Errors["Add"] = apkerr.New(apkerr.CodeArchiveOpen, "permission denied")
	tc.Run()

	if tc.exitCode != 1 || !strings.Contains(tc.errOut.String(), "ARCHIVE_OPEN_FAILED") {
		t.Errorf("stderr = %q, exit = %d", tc.errOut.String(), tc.exitCode)
	}
}

// ============================================================================
// extract
// ============================================================================

func TestExtractOneMember(t *testing.T) {
	tc := newTestCLI("extract", "app.apk", "/out", "a.txt")
	tc.archiver.Put("app.apk", "a.txt", []byte("hello"))
	tc.fs.AddDir("/out")
	tc.Run()

	if tc.exitCode != -1 {
		t.Fatalf("exit code = %d, stderr = %q", tc.exitCode, tc.errOut.String())
	}
	if got := string(tc.fs.Files[filepath.Join("/out", "a.txt")]); got != "hello" {
		t.Errorf("extracted = %q, expected hello", got)
	}
}

func TestExtractAllMembers(t *testing.T) {
	tc := newTestCLI("extract", "app.apk", "/out")
	tc.archiver.Put("app.apk", "a.txt", []byte("a"))
	tc.archiver.Put("app.apk", "b.txt", []byte("b"))
	tc.Run()

	if tc.exitCode != -1 {
		t.Fatalf("exit code = %d, stderr = %q", tc.exitCode, tc.errOut.String())
	}
	if len(tc.fs.Writes) != 2 {
		t.Errorf("writes = %v", tc.fs.Writes)
	}
}

func TestExtractAllMissingContainer(t *testing.T) {
	tc := newTestCLI("extract", "gone.apk", "/out")
	tc.Run()

	if tc.exitCode != 1 || !strings.Contains(tc.errOut.String(), "ARCHIVE_OPEN_FAILED") {
		t.Errorf("stderr = %q, exit = %d", tc.errOut.String(), tc.exitCode)
	}
	if len(tc.fs.Writes) != 0 {
		t.Errorf("writes = %v, expected none", tc.fs.Writes)
	}
}

func TestExtractIntoFile(t *testing.T) {
	tc := newTestCLI("extract", "app.apk", "/out")
	tc.archiver.Put("app.apk", "a.txt", []byte("a"))
	tc.fs.Files["/out"] = []byte("plain file")
	tc.Run()

	if tc.exitCode != 1 || !strings.Contains(tc.errOut.String(), "INVALID_DESTINATION") {
		t.Errorf("stderr = %q, exit = %d", tc.errOut.String(), tc.exitCode)
	}
	if len(tc.fs.Writes) != 0 {
		t.Errorf("writes = %v, expected none", tc.fs.Writes)
	}
}

func TestExtractUsage(t *testing.T) {
	tc := newTestCLI("extract", "app.apk")
	tc.Run()

	if !strings.Contains(tc.out.String(), "Usage: apkpatch extract") || tc.exitCode != 1 {
		t.Errorf("output = %q, exit = %d", tc.out.String(), tc.exitCode)
	}
}

// ============================================================================
// debuggable
// ============================================================================

func TestCheckDebuggableFound(t *testing.T) {
	tc := newTestCLI("debuggable", "app.apk")
	tc.archiver.Put("app.apk", "AndroidManifest.xml", []byte("axml"))
	tc.decoder.Document = binxml.Elements{
		binxml.StartTag{Name: "application"},
		binxml.EndTag{Name: "application"},
	}
	tc.Run()

	if tc.exitCode != -1 {
		t.Fatalf("exit code = %d, stderr = %q", tc.exitCode, tc.errOut.String())
	}
	out := tc.out.String()
	if !strings.Contains(out, "app.apk: TARGET_FOUND") || !strings.Contains(out, "android:debuggable: false") {
		t.Errorf("output = %q", out)
	}
}

func TestCheckDebuggableUsesConfiguredManifestName(t *testing.T) {
	tc := newTestCLI("debuggable", "app.apk")
	tc.cfgSvc.config.ManifestName = "Manifest.axml"
	tc.archiver.Put("app.apk", "Manifest.axml", []byte("axml"))
	tc.decoder.Document = binxml.Elements{
		binxml.StartTag{Name: "application"},
	}
	tc.Run()

	if !strings.Contains(tc.out.String(), "app.apk: TARGET_MISSING") {
		t.Errorf("output = %q, stderr = %q", tc.out.String(), tc.errOut.String())
	}
}

func TestCheckDebuggableMissingManifest(t *testing.T) {
	tc := newTestCLI("debuggable", "app.apk")
	tc.archiver.Put("app.apk", "classes.dex", []byte("dex"))
	tc.Run()

	if tc.exitCode != 1 || !strings.Contains(tc.errOut.String(), "MISSING_MANIFEST") {
		t.Errorf("stderr = %q, exit = %d", tc.errOut.String(), tc.exitCode)
	}
}

func TestCheckDebuggableUsage(t *testing.T) {
	tc := newTestCLI("debuggable")
	tc.Run()

	if !strings.Contains(tc.out.String(), "Usage: apkpatch debuggable") || tc.exitCode != 1 {
		t.Errorf("output = %q, exit = %d", tc.out.String(), tc.exitCode)
	}
}

// ============================================================================
// manifest
// ============================================================================

func TestPrintManifest(t *testing.T) {
	tc := newTestCLI("manifest", "app.apk")
	tc.archiver.Put("app.apk", "AndroidManifest.xml", []byte("axml"))
	tc.decoder.Document = binxml.Elements{
		binxml.StartTag{Name: "manifest"},
		binxml.StartTag{Name: "application"},
		binxml.EndTag{Name: "application"},
		binxml.EndTag{Name: "manifest"},
	}
	tc.Run()

	want := "<manifest>\n  <application>\n  </application>\n</manifest>\n"
	if got := tc.out.String(); got != want {
		t.Errorf("output = %q, expected %q", got, want)
	}
}

func TestPrintManifestDecodeError(t *testing.T) {
	tc := newTestCLI("manifest", "app.apk")
	tc.archiver.Put("app.apk", "AndroidManifest.xml", []byte("axml"))
	tc.decoder.Err = errors.New("bad chunk")
	tc.Run()

	if tc.exitCode != 1 || !strings.Contains(tc.errOut.String(), "MALFORMED_MANIFEST") {
		t.Errorf("stderr = %q, exit = %d", tc.errOut.String(), tc.exitCode)
	}
}

func TestPrintManifestUsage(t *testing.T) {
	tc := newTestCLI("manifest")
	tc.Run()

	if !strings.Contains(tc.out.String(), "Usage: apkpatch manifest") || tc.exitCode != 1 {
		t.Errorf("output = %q, exit = %d", tc.out.String(), tc.exitCode)
	}
}

// ============================================================================
// diff
// ============================================================================

func newDiffCLI(args ...string) *testCLI {
	tc := newTestCLI(append([]string{"diff", "a.apk", "b.apk"}, args...)...)
	tc.archiver.Put("a.apk", "same.txt", []byte("same"))
	tc.archiver.Put("a.apk", "notes.txt", []byte("one\ntwo\n"))
	tc.archiver.Put("a.apk", "gone.txt", []byte("bye"))
	tc.archiver.Put("a.apk", "lib.so", []byte{0x7f, 'E', 'L', 'F', 0})
	tc.archiver.Put("b.apk", "same.txt", []byte("same"))
	tc.archiver.Put("b.apk", "notes.txt", []byte("one\nthree\n"))
	tc.archiver.Put("b.apk", "new.txt", []byte("hi"))
	tc.archiver.Put("b.apk", "lib.so", []byte{0x7f, 'E', 'L', 'F', 1, 0})
	return tc
}

func TestDiffPackages(t *testing.T) {
	tc := newDiffCLI()
	tc.Run()

	if tc.exitCode != -1 {
		t.Fatalf("exit = %d, stderr = %q", tc.exitCode, tc.errOut.String())
	}
	out := tc.out.String()
	for _, want := range []string{"M lib.so", "M notes.txt", "A new.txt", "D gone.txt", "2 modified, 1 added, 1 deleted"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "same.txt") {
		t.Error("unchanged members should not be listed")
	}
}

func TestDiffPackagesIdentical(t *testing.T) {
	tc := newTestCLI("diff", "a.apk", "b.apk")
	tc.archiver.Put("a.apk", "x", []byte("x"))
	tc.archiver.Put("b.apk", "x", []byte("x"))
	tc.Run()

	if !strings.Contains(tc.out.String(), "No differences between a.apk and b.apk") {
		t.Errorf("output = %q", tc.out.String())
	}
}

func TestDiffPackagesMissing(t *testing.T) {
	tc := newTestCLI("diff", "a.apk", "missing.apk")
	tc.archiver.Put("a.apk", "x", []byte("x"))
	tc.Run()

	if tc.exitCode != 1 || !strings.Contains(tc.errOut.String(), "ARCHIVE_OPEN_FAILED") {
		t.Errorf("stderr = %q, exit = %d", tc.errOut.String(), tc.exitCode)
	}
}

func TestDiffMember(t *testing.T) {
	tc := newDiffCLI("notes.txt")
	tc.Run()

	want := "--- a.apk:notes.txt\n+++ b.apk:notes.txt\n one\n-two\n+three\n"
	if got := tc.out.String(); got != want {
		t.Errorf("output = %q, expected %q", got, want)
	}
}

func TestDiffMemberCases(t *testing.T) {
	tests := []struct {
		member   string
		want     string
		exitCode int
	}{
		{"same.txt", "No differences in same.txt", -1},
		{"lib.so", "Binary member lib.so differs", -1},
		{"new.txt", "+hi", -1},
		{"gone.txt", "-bye", -1},
	}

	for _, tt := range tests {
		t.Run(tt.member, func(t *testing.T) {
			tc := newDiffCLI(tt.member)
			tc.Run()

			if tc.exitCode != tt.exitCode {
				t.Errorf("exit = %d, stderr = %q", tc.exitCode, tc.errOut.String())
			}
			if !strings.Contains(tc.out.String(), tt.want) {
				t.Errorf("output = %q, expected it to contain %q", tc.out.String(), tt.want)
			}
		})
	}
}

func TestDiffMemberNotFound(t *testing.T) {
	tc := newDiffCLI("nope.txt")
	tc.Run()

	if tc.exitCode != 1 || !strings.Contains(tc.errOut.String(), "MEMBER_NOT_FOUND") {
		t.Errorf("stderr = %q, exit = %d", tc.errOut.String(), tc.exitCode)
	}
}

func TestDiffUsage(t *testing.T) {
	tc := newTestCLI("diff", "a.apk")
	tc.Run()

	if !strings.Contains(tc.out.String(), "Usage: apkpatch diff") || tc.exitCode != 1 {
		t.Errorf("output = %q, exit = %d", tc.out.String(), tc.exitCode)
	}
}

// ============================================================================
// ui
// ============================================================================

func TestRunBrowser(t *testing.T) {
	tc := newTestCLI("ui", "app.apk", "old.apk")
	tc.archiver.Put("app.apk", "classes.dex", []byte("dex"))

	var gotPath, gotOther string
	var members int
	tc.RunUI = func(svc tui.Service, path, other string) error {
		gotPath, gotOther = path, other
		entries, err := svc.Members(path)
		members = len(entries)
		return err
	}
	tc.Run()

	if tc.exitCode != -1 {
		t.Fatalf("exit = %d, stderr = %q", tc.exitCode, tc.errOut.String())
	}
	if gotPath != "app.apk" || gotOther != "old.apk" || members != 1 {
		t.Errorf("RunUI(%q, %q) saw %d members", gotPath, gotOther, members)
	}
}

func TestRunBrowserError(t *testing.T) {
	tc := newTestCLI("ui", "app.apk")
	tc.RunUI = func(svc tui.Service, path, other string) error {
		if other != "" {
			t.Errorf("other = %q, expected empty", other)
		}
		_, err := svc.Members(path)
		return err
	}
	tc.Run()

	if tc.exitCode != 1 || !strings.Contains(tc.errOut.String(), "UI failed") {
		t.Errorf("stderr = %q, exit = %d", tc.errOut.String(), tc.exitCode)
	}
}

func TestRunBrowserUsage(t *testing.T) {
	tc := newTestCLI("ui")
	tc.Run()

	if !strings.Contains(tc.out.String(), "Usage: apkpatch ui") || tc.exitCode != 1 {
		t.Errorf("output = %q, exit = %d", tc.out.String(), tc.exitCode)
	}
}

// ============================================================================
// snapshot / verify
// ============================================================================

func newSnapshotCLI(args ...string) *testCLI {
	tc := newTestCLI(args...)
	tc.fs.Files["app.apk"] = []byte("PK bytes")
	tc.archiver.Put("app.apk", "classes.dex", []byte("dex"))
	tc.archiver.Put("app.apk", "AndroidManifest.xml", []byte("axml"))
	return tc
}

func TestTakeSnapshot(t *testing.T) {
	tc := newSnapshotCLI("snapshot", "app.apk", "app.json")
	tc.Run()

	if tc.exitCode != -1 {
		t.Fatalf("exit = %d, stderr = %q", tc.exitCode, tc.errOut.String())
	}
	if !strings.Contains(tc.out.String(), "Recorded 2 members of app.apk in app.json") {
		t.Errorf("output = %q", tc.out.String())
	}
	if !strings.Contains(string(tc.fs.Files["app.json"]), `"digest:classes.dex"`) {
		t.Errorf("snapshot = %s", tc.fs.Files["app.json"])
	}
}

func TestTakeSnapshotEmptyPackage(t *testing.T) {
	tc := newTestCLI("snapshot", "app.apk", "app.json")
	tc.Run()

	if tc.exitCode != 1 || !strings.Contains(tc.errOut.String(), "ARCHIVE_OPEN_FAILED") {
		t.Errorf("stderr = %q, exit = %d", tc.errOut.String(), tc.exitCode)
	}
	if len(tc.fs.Writes) != 0 {
		t.Errorf("nothing should be written, got %v", tc.fs.Writes)
	}
}

func TestVerifySnapshot(t *testing.T) {
	take := newSnapshotCLI("snapshot", "app.apk", "app.json")
	take.Run()

	tc := newSnapshotCLI("verify", "app.apk", "app.json")
	tc.fs.Files["app.json"] = take.fs.Files["app.json"]
	tc.Run()

	if tc.exitCode != -1 {
		t.Fatalf("exit = %d, output = %q", tc.exitCode, tc.out.String())
	}
	if !strings.Contains(tc.out.String(), "app.apk matches app.json") {
		t.Errorf("output = %q", tc.out.String())
	}
}

func TestVerifySnapshotMismatch(t *testing.T) {
	take := newSnapshotCLI("snapshot", "app.apk", "app.json")
	take.Run()

	tc := newSnapshotCLI("verify", "app.apk", "app.json")
	tc.fs.Files["app.json"] = take.fs.Files["app.json"]
	tc.archiver.Put("app.apk", "extra.txt", []byte("x"))
	tc.Run()

	if tc.exitCode != 1 {
		t.Errorf("exit = %d, expected 1", tc.exitCode)
	}
	out := tc.out.String()
	if !strings.Contains(out, "does not match") || !strings.Contains(out, "extra.txt") {
		t.Errorf("output = %q", out)
	}
}

func TestVerifySnapshotMissingFile(t *testing.T) {
	tc := newSnapshotCLI("verify", "app.apk", "nope.json")
	tc.Run()

	if tc.exitCode != 1 || !strings.Contains(tc.errOut.String(), "Verify failed") {
		t.Errorf("stderr = %q, exit = %d", tc.errOut.String(), tc.exitCode)
	}
}

func TestSnapshotUsage(t *testing.T) {
	for _, cmd := range []string{"snapshot", "verify"} {
		t.Run(cmd, func(t *testing.T) {
			tc := newTestCLI(cmd, "app.apk")
			tc.Run()

			if !strings.Contains(tc.out.String(), "Usage: apkpatch "+cmd) || tc.exitCode != 1 {
				t.Errorf("output = %q, exit = %d", tc.out.String(), tc.exitCode)
			}
		})
	}
}

// ============================================================================
// Real adapters
// ============================================================================

// newRealCLI uses the production archiver, filesystem and decoder.
func newRealCLI(args ...string) *testCLI {
	tc := newTestCLI(args...)
	tc.Archiver = nil
	tc.FileSystem = nil
	tc.Decoder = nil
	return tc
}

func TestEndToEnd(t *testing.T) {
	dir := t.TempDir()
	apkPath := filepath.Join(dir, "app.apk")
	manifestPath := filepath.Join(dir, "AndroidManifest.xml")
	manifest := axmltest.Manifest(axmltest.Bool(axmltest.AndroidNS, "debuggable", true))
	if err := os.WriteFile(manifestPath, manifest, 0o644); err != nil {
		t.Fatal(err)
	}

	add := newRealCLI("add", apkPath, manifestPath)
	add.Run()
	if add.exitCode != -1 {
		t.Fatalf("add exit = %d, stderr = %q", add.exitCode, add.errOut.String())
	}

	contains := newRealCLI("contains", apkPath, "AndroidManifest.xml")
	contains.Run()
	if contains.exitCode != -1 {
		t.Errorf("contains exit = %d", contains.exitCode)
	}

	list := newRealCLI("list", "--digest", apkPath)
	list.Run()
	if !strings.Contains(list.out.String(), "store") {
		t.Errorf("list output = %q", list.out.String())
	}

	dbg := newRealCLI("debuggable", apkPath)
	dbg.Run()
	if !strings.Contains(dbg.out.String(), "TARGET_FOUND") || !strings.Contains(dbg.out.String(), "android:debuggable: true") {
		t.Errorf("debuggable output = %q, stderr = %q", dbg.out.String(), dbg.errOut.String())
	}

	mf := newRealCLI("manifest", apkPath)
	mf.Run()
	if !strings.Contains(mf.out.String(), `<application android:debuggable="true">`) {
		t.Errorf("manifest output = %q, stderr = %q", mf.out.String(), mf.errOut.String())
	}

	dest := filepath.Join(dir, "out")
	extract := newRealCLI("extract", apkPath, dest)
	extract.Run()
	if extract.exitCode != -1 {
		t.Fatalf("extract exit = %d, stderr = %q", extract.exitCode, extract.errOut.String())
	}
	got, err := os.ReadFile(filepath.Join(dest, "AndroidManifest.xml"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, manifest) {
		t.Error("extracted manifest differs from the added file")
	}
}

func TestEndToEndHonorsBufferSize(t *testing.T) {
	dir := t.TempDir()
	apkPath := filepath.Join(dir, "app.apk")
	src := filepath.Join(dir, "big.bin")
	data := bytes.Repeat([]byte("0123456789"), 1000)
	if err := os.WriteFile(src, data, 0o644); err != nil {
		t.Fatal(err)
	}

	tc := newRealCLI("add", apkPath, src)
	tc.cfgSvc.config.BufferSize = 7
	tc.Run()
	if tc.exitCode != -1 {
		t.Fatalf("exit = %d, stderr = %q", tc.exitCode, tc.errOut.String())
	}

	a := ziparchiver.New()
	entries := a.List(apkPath)
	if len(entries) != 1 {
		t.Fatalf("entries = %v", entries)
	}
	got, err := a.ReadMember(apkPath, entries[0])
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("round trip through a small buffer changed the data")
	}
}
