// Package cli provides the command-line interface with injectable io.Writer for testing.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/mcdonaldj/apkpatch/internal/adapters/axmldecoder"
	"github.com/mcdonaldj/apkpatch/internal/adapters/osfs"
	"github.com/mcdonaldj/apkpatch/internal/adapters/tuisvc"
	"github.com/mcdonaldj/apkpatch/internal/adapters/ziparchiver"
	"github.com/mcdonaldj/apkpatch/internal/apk"
	"github.com/mcdonaldj/apkpatch/internal/apkerr"
	"github.com/mcdonaldj/apkpatch/internal/compare"
	"github.com/mcdonaldj/apkpatch/internal/config"
	"github.com/mcdonaldj/apkpatch/internal/extract"
	"github.com/mcdonaldj/apkpatch/internal/ports"
	"github.com/mcdonaldj/apkpatch/internal/snapshot"
	"github.com/mcdonaldj/apkpatch/internal/tui"
)

// ConfigService provides configuration operations for the CLI.
type ConfigService interface {
	Load() (*config.Config, error)
	Save(cfg *config.Config) error
	ConfigPath() (string, error)
	DefaultConfig() *config.Config
}

// CLI represents the command-line interface with injectable dependencies.
type CLI struct {
	Out     io.Writer // Standard output
	Err     io.Writer // Standard error
	Version string    // Application version
	Args    []string  // Command arguments (like os.Args)

	// Exit function for testability (defaults to os.Exit)
	Exit func(code int)

	// Injectable dependencies (nil means use defaults built from config)
	ConfigSvc  ConfigService
	Archiver   ports.Archiver
	FileSystem ports.FileSystem
	Decoder    ports.ManifestDecoder
	Logger     *slog.Logger

	// RunUI starts the interactive browser (defaults to tui.Run)
	RunUI func(svc tui.Service, path, other string) error

	// Color functions (can be disabled for testing)
	green  func(a ...interface{}) string
	yellow func(a ...interface{}) string
	cyan   func(a ...interface{}) string
	gray   func(a ...interface{}) string
	red    func(a ...interface{}) string
}

// New creates a new CLI with default settings.
func New(version string) *CLI {
	return &CLI{
		Out:     os.Stdout,
		Err:     os.Stderr,
		Version: version,
		Args:    os.Args,
		Exit:    os.Exit,
		green:   color.New(color.FgGreen, color.Bold).SprintFunc(),
		yellow:  color.New(color.FgYellow).SprintFunc(),
		cyan:    color.New(color.FgCyan).SprintFunc(),
		gray:    color.New(color.FgHiBlack).SprintFunc(),
		red:     color.New(color.FgRed).SprintFunc(),
	}
}

// NewForTesting creates a CLI configured for testing (no colors, captured output).
func NewForTesting(out, errOut io.Writer, args []string) *CLI {
	noColor := func(a ...interface{}) string { return fmt.Sprint(a...) }
	return &CLI{
		Out:     out,
		Err:     errOut,
		Version: "test",
		Args:    args,
		Exit:    func(int) {},
		green:   noColor,
		yellow:  noColor,
		cyan:    noColor,
		gray:    noColor,
		red:     noColor,
	}
}

// defaultConfigService wraps the config package functions.
type defaultConfigService struct{}

func (d *defaultConfigService) Load() (*config.Config, error) { return config.Load() }
func (d *defaultConfigService) Save(cfg *config.Config) error { return cfg.Save() }
func (d *defaultConfigService) ConfigPath() (string, error)   { return config.ConfigPath() }
func (d *defaultConfigService) DefaultConfig() *config.Config { return config.DefaultConfig() }

// Helper methods to get the dependency or default
func (c *CLI) configSvc() ConfigService {
	if c.ConfigSvc != nil {
		return c.ConfigSvc
	}
	return &defaultConfigService{}
}

func (c *CLI) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func (c *CLI) archiver(cfg *config.Config) ports.Archiver {
	if c.Archiver != nil {
		return c.Archiver
	}
	return ziparchiver.New(
		ziparchiver.WithBufferSize(cfg.BufferSize),
		ziparchiver.WithMaxMemberSize(cfg.MaxMemberSize),
		ziparchiver.WithLogger(c.logger()),
	)
}

func (c *CLI) fileSystem() ports.FileSystem {
	if c.FileSystem != nil {
		return c.FileSystem
	}
	return osfs.New()
}

func (c *CLI) runUI() func(svc tui.Service, path, other string) error {
	if c.RunUI != nil {
		return c.RunUI
	}
	return tui.Run
}

func (c *CLI) decoder() ports.ManifestDecoder {
	if c.Decoder != nil {
		return c.Decoder
	}
	return axmldecoder.New(c.logger())
}

// Run executes the CLI with the configured arguments.
func (c *CLI) Run() {
	if len(c.Args) < 2 {
		fmt.Fprintln(c.Out, "No command specified. Use 'apkpatch help' for usage.")
		c.Exit(1)
		return
	}

	switch c.Args[1] {
	case "list", "ls":
		c.ListMembers()
	case "contains":
		c.CheckContains()
	case "add":
		c.AddMember()
	case "extract":
		c.ExtractMembers()
	case "debuggable":
		c.CheckDebuggable()
	case "manifest":
		c.PrintManifest()
	case "diff":
		c.DiffPackages()
	case "ui":
		c.RunBrowser()
	case "snapshot":
		c.TakeSnapshot()
	case "verify":
		c.VerifySnapshot()
	case "init":
		c.InitConfig()
	case "version", "-v", "--version":
		fmt.Fprintf(c.Out, "apkpatch v%s\n", c.Version)
	case "help", "-h", "--help":
		c.PrintUsage()
	default:
		fmt.Fprintf(c.Err, "Unknown command: %s\n", c.Args[1])
		c.PrintUsage()
		c.Exit(1)
	}
}

// PrintUsage prints the help message.
func (c *CLI) PrintUsage() {
	fmt.Fprintln(c.Out, `apkpatch - Android package inspection tool

Usage:
  apkpatch list <apk> [--digest]           List members with sizes (and BLAKE3 digests)
  apkpatch contains <apk> <member>         Exit 0 if member exists, 1 otherwise
  apkpatch add <apk> <file> [--name=member]
                                           Store a file as a new member
  apkpatch extract <apk> <dest> [member]   Extract one member or all of them
  apkpatch debuggable <apk>                Locate the manifest's application declaration
  apkpatch manifest <apk>                  Print the decoded manifest
  apkpatch diff <apk> <other> [member]     Compare two packages, or one member line by line
  apkpatch ui <apk> [other]                Browse a package interactively
  apkpatch snapshot <apk> <file.json>      Record every member's digest
  apkpatch verify <apk> <file.json>        Check a package against a snapshot
  apkpatch init                            Create default config file
  apkpatch version, -v                     Show version
  apkpatch help, -h                        Show this help

Config: ~/.apkpatch/config.yaml`)
}

// loadConfig loads config, reporting failures. ok is false when the command
// must stop.
func (c *CLI) loadConfig() (*config.Config, bool) {
	cfg, err := c.configSvc().Load()
	if err != nil {
		fmt.Fprintf(c.Err, "Error loading config: %v\n", err)
		c.Exit(1)
		return nil, false
	}
	return cfg, true
}

// parseFlags parses the arguments after the command name. ok is false when
// the command must stop; a help request is not an error.
func (c *CLI) parseFlags(fs *pflag.FlagSet, usage string) ([]string, bool) {
	fs.SetOutput(c.Err)
	fs.Usage = func() {
		fmt.Fprintln(c.Out, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(c.Args[2:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, false
		}
		fmt.Fprintln(c.Out, usage)
		c.Exit(1)
		return nil, false
	}
	return fs.Args(), true
}

// fail prints err and exits 1. Coded errors print their kind.
func (c *CLI) fail(prefix string, err error) {
	fmt.Fprintf(c.Err, "%s %s: %v\n", c.red("x"), prefix, err)
	c.Exit(1)
}

// InitConfig creates the default config file.
func (c *CLI) InitConfig() {
	svc := c.configSvc()
	if err := svc.Save(svc.DefaultConfig()); err != nil {
		fmt.Fprintf(c.Err, "Error saving config: %v\n", err)
		c.Exit(1)
		return
	}
	path, err := svc.ConfigPath()
	if err != nil {
		fmt.Fprintf(c.Err, "Error: %v\n", err)
		c.Exit(1)
		return
	}
	fmt.Fprintf(c.Out, "Created config at %s\n", path)
}

// ListMembers prints a container's members in archive order.
func (c *CLI) ListMembers() {
	const usage = "Usage: apkpatch list <apk> [--digest]"
	fs := pflag.NewFlagSet("list", pflag.ContinueOnError)
	digest := fs.BoolP("digest", "d", false, "print the BLAKE3 digest of every member")
	args, ok := c.parseFlags(fs, usage)
	if !ok {
		return
	}
	if len(args) != 1 {
		fmt.Fprintln(c.Out, usage)
		c.Exit(1)
		return
	}

	cfg, ok := c.loadConfig()
	if !ok {
		return
	}
	archiver := c.archiver(cfg)
	path := args[0]

	entries := archiver.List(path)
	if len(entries) == 0 {
		fmt.Fprintf(c.Out, "No members found in %s\n", path)
		return
	}

	fmt.Fprintf(c.Out, "Members of %s:\n\n", c.cyan(path))
	fmt.Fprintf(c.Out, "  %-40s %10s %10s %-8s\n", "NAME", "SIZE", "STORED", "METHOD")
	fmt.Fprintf(c.Out, "  %-40s %10s %10s %-8s\n", "----", "----", "------", "------")

	var total uint64
	for _, e := range entries {
		total += e.UncompressedSize
		fmt.Fprintf(c.Out, "  %-40s %10s %10s %-8s",
			e.Name,
			humanize.IBytes(e.UncompressedSize),
			humanize.IBytes(e.CompressedSize),
			e.MethodName())
		if *digest {
			sum, err := archiver.Digest(path, e)
			if err != nil {
				fmt.Fprintln(c.Out)
				c.fail("Digest failed", err)
				return
			}
			fmt.Fprintf(c.Out, " %s", c.gray(sum))
		}
		fmt.Fprintln(c.Out)
	}

	fmt.Fprintf(c.Out, "\n%s members, %s uncompressed\n",
		humanize.Comma(int64(len(entries))), c.yellow(humanize.IBytes(total)))
}

// CheckContains exits 0 when the member exists and 1 otherwise.
func (c *CLI) CheckContains() {
	if len(c.Args) != 4 {
		fmt.Fprintln(c.Out, "Usage: apkpatch contains <apk> <member>")
		c.Exit(1)
		return
	}

	cfg, ok := c.loadConfig()
	if !ok {
		return
	}
	path, member := c.Args[2], c.Args[3]

	if c.archiver(cfg).Contains(path, member) {
		fmt.Fprintf(c.Out, "%s %s contains %s\n", c.green("*"), path, member)
		return
	}
	fmt.Fprintf(c.Out, "%s %s does not contain %s\n", c.gray("-"), path, member)
	c.Exit(1)
}

// AddMember stores a local file as a new member.
func (c *CLI) AddMember() {
	const usage = "Usage: apkpatch add <apk> <file> [--name=member]"
	fs := pflag.NewFlagSet("add", pflag.ContinueOnError)
	name := fs.StringP("name", "n", "", "member name (default: the file's base name)")
	args, ok := c.parseFlags(fs, usage)
	if !ok {
		return
	}
	if len(args) != 2 {
		fmt.Fprintln(c.Out, usage)
		c.Exit(1)
		return
	}

	cfg, ok := c.loadConfig()
	if !ok {
		return
	}
	path, file := args[0], args[1]
	member := *name
	if member == "" {
		member = filepath.Base(file)
	}

	fsys := c.fileSystem()
	info, err := fsys.Stat(file)
	if err != nil {
		c.fail("Add failed", err)
		return
	}
	if info.IsDir() {
		c.fail("Add failed", fmt.Errorf("%s is a directory", file))
		return
	}
	src, err := fsys.Open(file)
	if err != nil {
		c.fail("Add failed", err)
		return
	}
	defer func() { _ = src.Close() }()

	if err := c.archiver(cfg).Add(path, src, member); err != nil {
		c.fail("Add failed", err)
		return
	}
	fmt.Fprintf(c.Out, "%s Added %s to %s %s\n",
		c.green("*"), member, path, c.yellow(humanize.IBytes(uint64(info.Size()))))
}

// ExtractMembers extracts one member, or every member, into a directory.
func (c *CLI) ExtractMembers() {
	if len(c.Args) != 4 && len(c.Args) != 5 {
		fmt.Fprintln(c.Out, "Usage: apkpatch extract <apk> <dest> [member]")
		c.Exit(1)
		return
	}

	cfg, ok := c.loadConfig()
	if !ok {
		return
	}
	path, dest := c.Args[2], c.Args[3]
	svc := extract.NewService(c.fileSystem(), c.archiver(cfg), c.logger())

	if len(c.Args) == 5 {
		member := c.Args[4]
		if err := svc.ExtractOne(path, member, dest); err != nil {
			c.fail("Extract failed", err)
			return
		}
		fmt.Fprintf(c.Out, "%s Extracted %s to %s\n", c.green("*"), member, dest)
		return
	}

	if err := svc.ExtractAll(path, dest); err != nil {
		c.fail("Extract failed", err)
		return
	}
	fmt.Fprintf(c.Out, "%s Extracted %s to %s\n", c.green("*"), path, dest)
}

// CheckDebuggable runs manifest detection and prints the terminal state.
func (c *CLI) CheckDebuggable() {
	if len(c.Args) != 3 {
		fmt.Fprintln(c.Out, "Usage: apkpatch debuggable <apk>")
		c.Exit(1)
		return
	}

	cfg, ok := c.loadConfig()
	if !ok {
		return
	}
	path := c.Args[2]
	pkg := apk.NewPackage(path, c.archiver(cfg), c.decoder(), c.logger(),
		apk.WithManifestName(cfg.ManifestName))

	res, err := pkg.MakeDebuggable()
	if err != nil {
		c.fail("Manifest check failed", err)
		return
	}

	switch res.State {
	case apk.StateTargetFound:
		fmt.Fprintf(c.Out, "%s %s: %s\n", c.green("*"), path, res.State)
	default:
		fmt.Fprintf(c.Out, "%s %s: %s\n", c.yellow("!"), path, res.State)
	}
	if res.Debuggable {
		fmt.Fprintf(c.Out, "  android:debuggable: %s\n", c.green("true"))
	} else {
		fmt.Fprintf(c.Out, "  android:debuggable: %s\n", c.gray("false"))
	}
}

// PrintManifest prints the decoded manifest as indented text.
func (c *CLI) PrintManifest() {
	if len(c.Args) != 3 {
		fmt.Fprintln(c.Out, "Usage: apkpatch manifest <apk>")
		c.Exit(1)
		return
	}

	cfg, ok := c.loadConfig()
	if !ok {
		return
	}
	pkg := apk.NewPackage(c.Args[2], c.archiver(cfg), c.decoder(), c.logger(),
		apk.WithManifestName(cfg.ManifestName))

	text, err := pkg.Outline()
	if err != nil {
		c.fail("Manifest decode failed", err)
		return
	}
	fmt.Fprint(c.Out, text)
}

// DiffPackages compares two packages member by member, or diffs one
// member's text when a member name is given.
func (c *CLI) DiffPackages() {
	if len(c.Args) != 4 && len(c.Args) != 5 {
		fmt.Fprintln(c.Out, "Usage: apkpatch diff <apk> <other> [member]")
		c.Exit(1)
		return
	}

	cfg, ok := c.loadConfig()
	if !ok {
		return
	}
	archiver := c.archiver(cfg)
	left, right := c.Args[2], c.Args[3]

	result, err := compare.ComputeDiff(archiver, left, right)
	if err != nil {
		c.fail("Diff failed", err)
		return
	}

	if len(c.Args) == 5 {
		c.diffMember(archiver, result, c.Args[4])
		return
	}

	if len(result.Changes) == 0 {
		fmt.Fprintf(c.Out, "No differences between %s and %s\n", left, right)
		return
	}

	fmt.Fprintf(c.Out, "Comparing %s → %s\n\n", c.cyan(left), c.cyan(right))
	for _, ch := range result.Changes {
		switch ch.Status {
		case 'A':
			fmt.Fprintf(c.Out, "  %s %-40s %s\n", c.green("A"), ch.Name, humanize.IBytes(ch.Size2))
		case 'D':
			fmt.Fprintf(c.Out, "  %s %-40s %s\n", c.red("D"), ch.Name, humanize.IBytes(ch.Size1))
		default:
			fmt.Fprintf(c.Out, "  %s %-40s %s → %s\n", c.yellow("M"), ch.Name,
				humanize.IBytes(ch.Size1), humanize.IBytes(ch.Size2))
		}
	}
	fmt.Fprintf(c.Out, "\n%d modified, %d added, %d deleted\n", result.Modified, result.Added, result.Deleted)
}

func (c *CLI) diffMember(archiver ports.Archiver, result *compare.DiffResult, member string) {
	var change *compare.MemberChange
	for i := range result.Changes {
		if result.Changes[i].Name == member {
			change = &result.Changes[i]
			break
		}
	}
	if change == nil {
		if archiver.Contains(result.Left, member) {
			fmt.Fprintf(c.Out, "No differences in %s\n", member)
			return
		}
		c.fail("Diff failed", apkerr.Newf(apkerr.CodeMemberNotFound, "path does not exist in archive: %s", member))
		return
	}

	res := compare.ComputeMemberDiff(archiver, c.decoder(), result.Left, result.Right, *change)
	if res.Error != "" {
		c.fail("Diff failed", errors.New(res.Error))
		return
	}
	if res.IsBinary {
		fmt.Fprintf(c.Out, "Binary member %s differs\n", member)
		return
	}

	fmt.Fprintf(c.Out, "--- %s:%s\n+++ %s:%s\n", result.Left, member, result.Right, member)
	for _, line := range res.Lines {
		switch line.Type {
		case '+':
			fmt.Fprintln(c.Out, c.green("+"+line.Content))
		case '-':
			fmt.Fprintln(c.Out, c.red("-"+line.Content))
		default:
			fmt.Fprintln(c.Out, " "+line.Content)
		}
	}
}

// RunBrowser starts the interactive package browser.
func (c *CLI) RunBrowser() {
	if len(c.Args) != 3 && len(c.Args) != 4 {
		fmt.Fprintln(c.Out, "Usage: apkpatch ui <apk> [other]")
		c.Exit(1)
		return
	}

	cfg, ok := c.loadConfig()
	if !ok {
		return
	}
	other := ""
	if len(c.Args) == 4 {
		other = c.Args[3]
	}

	svc := tuisvc.New(c.archiver(cfg), c.decoder(), cfg.ManifestName, c.logger())
	if err := c.runUI()(svc, c.Args[2], other); err != nil {
		c.fail("UI failed", err)
	}
}

// TakeSnapshot records the package's member digests as JSON.
func (c *CLI) TakeSnapshot() {
	if len(c.Args) != 4 {
		fmt.Fprintln(c.Out, "Usage: apkpatch snapshot <apk> <file.json>")
		c.Exit(1)
		return
	}

	cfg, ok := c.loadConfig()
	if !ok {
		return
	}
	path, dest := c.Args[2], c.Args[3]
	svc := snapshot.NewService(c.fileSystem(), c.archiver(cfg), c.logger())

	snap, err := svc.Take(path)
	if err != nil {
		c.fail("Snapshot failed", err)
		return
	}
	if err := svc.Save(snap, dest); err != nil {
		c.fail("Snapshot failed", err)
		return
	}
	fmt.Fprintf(c.Out, "%s Recorded %d members of %s in %s\n", c.green("*"), len(snap.Members), path, dest)
}

// VerifySnapshot exits 0 when every member matches the snapshot.
func (c *CLI) VerifySnapshot() {
	if len(c.Args) != 4 {
		fmt.Fprintln(c.Out, "Usage: apkpatch verify <apk> <file.json>")
		c.Exit(1)
		return
	}

	cfg, ok := c.loadConfig()
	if !ok {
		return
	}
	path, src := c.Args[2], c.Args[3]
	svc := snapshot.NewService(c.fileSystem(), c.archiver(cfg), c.logger())

	snap, err := svc.Load(src)
	if err != nil {
		c.fail("Verify failed", err)
		return
	}
	result, err := svc.Verify(path, snap)
	if err != nil {
		c.fail("Verify failed", err)
		return
	}

	if result.OK() {
		fmt.Fprintf(c.Out, "%s %s matches %s\n", c.green("*"), path, src)
		if result.PackageChanged {
			fmt.Fprintf(c.Out, "  %s\n", c.gray("package bytes changed, members unchanged"))
		}
		return
	}

	fmt.Fprintf(c.Out, "%s %s does not match %s\n", c.red("x"), path, src)
	for _, m := range result.Mismatches {
		fmt.Fprintf(c.Out, "  %-10s %s\n", c.yellow(m.Problem), m.Name)
	}
	c.Exit(1)
}
