// Package tui is an interactive browser for the members of a package.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/mcdonaldj/apkpatch/internal/apk"
	"github.com/mcdonaldj/apkpatch/internal/compare"
	"github.com/mcdonaldj/apkpatch/internal/ports"
)

// Service is the data the browser shows. Production code uses the tuisvc
// adapter.
type Service interface {
	// Members lists a package, failing when it has no members.
	Members(path string) ([]ports.Entry, error)
	// Inspect reads one member's digest and text preview.
	Inspect(path string, entry ports.Entry) (*MemberDetail, error)
	// CheckManifest runs the debuggable check on a package.
	CheckManifest(path string) (apk.Result, error)
	// Compare lists the members that differ between two packages.
	Compare(left, right string) (*compare.DiffResult, error)
	// CompareMember diffs one changed member line by line.
	CompareMember(left, right string, change compare.MemberChange) *compare.MemberDiffResult
}

// MemberDetail is what the member view shows.
type MemberDetail struct {
	Entry  ports.Entry
	Digest string
	// Text is the member as text, or its outline when it is compiled XML.
	Text   string
	Binary bool
}

// View represents the current view state
type View int

const (
	MembersView    View = iota
	MemberView          // One member's details and preview
	DiffResultView      // Members that differ from the other package
	MemberDiffView      // Line diff of one changed member
)

// Model is the main TUI model
type Model struct {
	svc      Service
	path     string
	other    string
	view     View
	width    int
	height   int
	quitting bool

	// Members view
	members      []ports.Entry
	memberCursor int

	// Member view
	detail       *MemberDetail
	detailScroll int

	// Diff views
	diffResult       *compare.DiffResult
	diffCursor       int
	memberDiff       *compare.MemberDiffResult
	memberDiffScroll int
	diffSwapped      bool // Whether the packages are swapped (other on left)

	statusMsg string
	statusErr bool
}

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Enter    key.Binding
	Back     key.Binding
	Manifest key.Binding
	Compare  key.Binding
	Swap     key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "open"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc", "backspace"),
		key.WithHelp("esc", "back"),
	),
	Manifest: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "check manifest"),
	),
	Compare: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "compare"),
	),
	Swap: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "swap"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// NewModel creates a browser for path. other, when set, is the package the
// compare key diffs against.
func NewModel(svc Service, path, other string) (*Model, error) {
	members, err := svc.Members(path)
	if err != nil {
		return nil, err
	}
	return &Model{
		svc:     svc,
		path:    path,
		other:   other,
		view:    MembersView,
		members: members,
	}, nil
}

type statusMsg struct {
	msg string
	err bool
}

type detailMsg struct {
	result *MemberDetail
	err    error
}

type diffMsg struct {
	result *compare.DiffResult
	err    error
}

type memberDiffMsg struct {
	result *compare.MemberDiffResult
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case statusMsg:
		m.statusMsg = msg.msg
		m.statusErr = msg.err
		return m, nil

	case detailMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("Read failed: %v", msg.err)
			m.statusErr = true
		} else {
			m.detail = msg.result
			m.detailScroll = 0
			m.view = MemberView
			m.statusMsg = ""
		}
		return m, nil

	case diffMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("Compare failed: %v", msg.err)
			m.statusErr = true
		} else {
			m.diffResult = msg.result
			m.diffCursor = 0
			m.view = DiffResultView
			m.statusMsg = ""
		}
		return m, nil

	case memberDiffMsg:
		m.memberDiff = msg.result
		m.memberDiffScroll = 0
		m.view = MemberDiffView
		return m, nil

	case tea.KeyMsg:
		// Clear status on any key
		m.statusMsg = ""
		m.statusErr = false

		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, keys.Up):
			m.moveCursor(-1)

		case key.Matches(msg, keys.Down):
			m.moveCursor(1)

		case key.Matches(msg, keys.Enter):
			switch {
			case m.view == MembersView && len(m.members) > 0:
				return m, m.inspect(m.members[m.memberCursor])
			case m.view == DiffResultView && m.diffResult != nil && len(m.diffResult.Changes) > 0:
				return m, m.compareMember(m.diffResult.Changes[m.diffCursor])
			}

		case key.Matches(msg, keys.Back):
			switch m.view {
			case MemberView:
				m.view = MembersView
				m.detail = nil
			case DiffResultView:
				m.view = MembersView
				m.diffResult = nil
				m.diffCursor = 0
			case MemberDiffView:
				m.view = DiffResultView
				m.memberDiff = nil
				m.memberDiffScroll = 0
			}

		case key.Matches(msg, keys.Manifest):
			return m, m.checkManifest()

		case key.Matches(msg, keys.Compare):
			if m.view != MembersView {
				break
			}
			if m.other == "" {
				m.statusMsg = "No second package to compare against"
				m.statusErr = true
				break
			}
			return m, m.compare()

		case key.Matches(msg, keys.Swap):
			if m.view == MemberDiffView && m.memberDiff != nil {
				m.diffSwapped = !m.diffSwapped
			}
		}
	}

	return m, nil
}

func (m *Model) moveCursor(delta int) {
	switch m.view {
	case MembersView:
		m.memberCursor = clamp(m.memberCursor+delta, 0, len(m.members)-1)
	case MemberView:
		if m.detail != nil {
			m.detailScroll = clamp(m.detailScroll+delta, 0, m.maxScroll(len(previewLines(m.detail))))
		}
	case DiffResultView:
		if m.diffResult != nil {
			m.diffCursor = clamp(m.diffCursor+delta, 0, len(m.diffResult.Changes)-1)
		}
	case MemberDiffView:
		if m.memberDiff != nil {
			m.memberDiffScroll = clamp(m.memberDiffScroll+delta, 0, m.maxScroll(len(m.memberDiff.Lines)))
		}
	}
}

func (m *Model) maxScroll(lines int) int {
	return max(lines-(m.height-10), 0)
}

func clamp(v, lo, hi int) int {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}

func (m *Model) inspect(entry ports.Entry) tea.Cmd {
	return func() tea.Msg {
		result, err := m.svc.Inspect(m.path, entry)
		return detailMsg{result: result, err: err}
	}
}

func (m *Model) checkManifest() tea.Cmd {
	return func() tea.Msg {
		res, err := m.svc.CheckManifest(m.path)
		if err != nil {
			return statusMsg{err: true, msg: fmt.Sprintf("✗ Manifest check failed: %v", err)}
		}
		if res.State != apk.StateTargetFound {
			return statusMsg{err: true, msg: fmt.Sprintf("✗ %s", res.State)}
		}
		return statusMsg{msg: fmt.Sprintf("✓ %s  android:debuggable=%t", res.State, res.Debuggable)}
	}
}

func (m *Model) compare() tea.Cmd {
	return func() tea.Msg {
		result, err := m.svc.Compare(m.path, m.other)
		return diffMsg{result: result, err: err}
	}
}

func (m *Model) compareMember(change compare.MemberChange) tea.Cmd {
	left, right := m.diffResult.Left, m.diffResult.Right
	return func() tea.Msg {
		return memberDiffMsg{result: m.svc.CompareMember(left, right, change)}
	}
}

// View renders the UI
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.view {
	case MembersView:
		content = m.renderMembersView()
	case MemberView:
		content = m.renderMemberView()
	case DiffResultView:
		content = m.renderDiffResultView()
	case MemberDiffView:
		content = m.renderMemberDiffView()
	}

	return appStyle.Render(content)
}

func (m *Model) visibleHeight(reserved int) int {
	return max(m.height-reserved, 5)
}

// window returns the slice bounds that keep cursor on screen.
func window(cursor, total, height int) (int, int) {
	start := 0
	if cursor >= height {
		start = cursor - height + 1
	}
	return start, min(start+height, total)
}

func (m *Model) renderStatus(b *strings.Builder) {
	b.WriteString("\n")
	if m.statusMsg != "" {
		if m.statusErr {
			b.WriteString(errorBadge.Render(m.statusMsg))
		} else {
			b.WriteString(successBadge.Render(m.statusMsg))
		}
	}
	b.WriteString("\n")
}

func (m *Model) renderMembersView() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf(" 📦 %s ", m.path)))
	b.WriteString("\n\n")

	header := fmt.Sprintf("  %-44s %10s %10s %s", "MEMBER", "SIZE", "PACKED", "METHOD")
	b.WriteString(dimStyle.Render(header))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(strings.Repeat("─", 76)))
	b.WriteString("\n")

	height := m.visibleHeight(10)
	start, end := window(m.memberCursor, len(m.members), height)
	for i := start; i < end; i++ {
		e := m.members[i]
		cursor := "  "
		style := normalStyle
		if i == m.memberCursor {
			cursor = "▸ "
			style = selectedStyle
		}

		line := fmt.Sprintf("%s%-44s %10s %10s %s",
			cursor, truncate(e.Name, 44),
			humanize.IBytes(e.UncompressedSize), humanize.IBytes(e.CompressedSize),
			e.MethodName())
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}

	// Pad to fixed height
	for i := end - start; i < height; i++ {
		b.WriteString("\n")
	}

	m.renderStatus(&b)

	help := "[↑/↓] navigate  [enter] inspect  [m] check manifest  [q] quit"
	if m.other != "" {
		help = "[↑/↓] navigate  [enter] inspect  [m] check manifest  [c] compare  [q] quit"
	}
	b.WriteString(helpStyle.Render(help))

	return b.String()
}

func previewLines(d *MemberDetail) []string {
	if d.Binary || d.Text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n")
}

func (m *Model) renderMemberView() string {
	var b strings.Builder

	if m.detail == nil {
		return "Loading..."
	}
	d := m.detail

	b.WriteString(titleStyle.Render(fmt.Sprintf(" 📄 %s ", d.Entry.Name)))
	b.WriteString("\n\n")

	field := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(normalStyle.Render(value))
		b.WriteString("\n")
	}
	field("Size", fmt.Sprintf("%s (%d bytes)", humanize.IBytes(d.Entry.UncompressedSize), d.Entry.UncompressedSize))
	field("Packed", humanize.IBytes(d.Entry.CompressedSize))
	field("Method", d.Entry.MethodName())
	field("CRC-32", fmt.Sprintf("%08x", d.Entry.CRC32))
	field("BLAKE3", d.Digest)
	if !d.Entry.Modified.IsZero() {
		field("Modified", humanize.Time(d.Entry.Modified))
	}
	b.WriteString(dimStyle.Render(strings.Repeat("─", 76)))
	b.WriteString("\n")

	lines := previewLines(d)
	switch {
	case d.Binary:
		b.WriteString(dimStyle.Render("  Binary member - no preview"))
		b.WriteString("\n")
	case len(lines) == 0:
		b.WriteString(dimStyle.Render("  Empty member"))
		b.WriteString("\n")
	default:
		height := m.visibleHeight(18)
		end := min(m.detailScroll+height, len(lines))
		for i := m.detailScroll; i < end; i++ {
			b.WriteString(normalStyle.Render(truncate(lines[i], 100)))
			b.WriteString("\n")
		}
		if len(lines) > height {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  Lines %d-%d of %d", m.detailScroll+1, end, len(lines))))
			b.WriteString("\n")
		}
	}

	m.renderStatus(&b)

	help := "[↑/↓] scroll  [esc] back  [q] quit"
	b.WriteString(helpStyle.Render(help))

	return b.String()
}

func (m *Model) renderDiffResultView() string {
	var b strings.Builder

	if m.diffResult == nil {
		return "Loading..."
	}

	title := titleStyle.Render(fmt.Sprintf(" 📊 Diff: %s vs %s ", m.diffResult.Left, m.diffResult.Right))
	b.WriteString(title)
	b.WriteString("\n\n")

	summary := fmt.Sprintf("  Modified: %d   Added: %d   Deleted: %d",
		m.diffResult.Modified, m.diffResult.Added, m.diffResult.Deleted)
	b.WriteString(dimStyle.Render(summary))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(strings.Repeat("─", 70)))
	b.WriteString("\n")

	height := m.visibleHeight(10)
	shown := 0
	if len(m.diffResult.Changes) == 0 {
		b.WriteString(dimStyle.Render("  No differences found"))
		b.WriteString("\n")
		shown = 1
	} else {
		start, end := window(m.diffCursor, len(m.diffResult.Changes), height)
		for i := start; i < end; i++ {
			c := m.diffResult.Changes[i]
			cursor := "  "
			style := normalStyle
			if i == m.diffCursor {
				cursor = "▸ "
				style = selectedStyle
			}

			line := fmt.Sprintf("%s%c %-50s %s", cursor, c.Status, truncate(c.Name, 50), sizeChange(c))
			b.WriteString(style.Render(line))
			b.WriteString("\n")
		}
		shown = end - start
	}

	for i := shown; i < height; i++ {
		b.WriteString("\n")
	}

	m.renderStatus(&b)

	help := "[↑/↓] navigate  [enter] view diff  [esc] back  [q] quit"
	b.WriteString(helpStyle.Render(help))

	return b.String()
}

func sizeChange(c compare.MemberChange) string {
	switch c.Status {
	case 'A':
		return humanize.IBytes(c.Size2)
	case 'D':
		return humanize.IBytes(c.Size1)
	default:
		return humanize.IBytes(c.Size1) + " → " + humanize.IBytes(c.Size2)
	}
}

func (m *Model) renderMemberDiffView() string {
	var b strings.Builder

	if m.memberDiff == nil {
		return "Loading..."
	}
	d := m.memberDiff

	left, right := d.Left, d.Right
	if m.diffSwapped {
		left, right = right, left
	}
	b.WriteString(titleStyle.Render(fmt.Sprintf(" 📄 %s ", d.Name)))
	b.WriteString("\n")

	header := fmt.Sprintf("  %-35s │ %-35s", truncate(left, 35), truncate(right, 35))
	b.WriteString(dimStyle.Render(header))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(strings.Repeat("─", 75)))
	b.WriteString("\n")

	switch {
	case d.Error != "":
		b.WriteString(errorBadge.Render(d.Error))
		b.WriteString("\n")
	case d.IsBinary:
		b.WriteString(warnBadge.Render("  Binary member - content diff not available"))
		b.WriteString("\n")
	case len(d.Lines) == 0:
		b.WriteString(dimStyle.Render("  No differences"))
		b.WriteString("\n")
	default:
		height := m.visibleHeight(12)
		end := min(m.memberDiffScroll+height, len(d.Lines))

		for i := m.memberDiffScroll; i < end; i++ {
			line := d.Lines[i]

			ln1, ln2 := "   ", "   "
			if line.LineNum1 > 0 {
				ln1 = fmt.Sprintf("%3d", line.LineNum1)
			}
			if line.LineNum2 > 0 {
				ln2 = fmt.Sprintf("%3d", line.LineNum2)
			}
			if m.diffSwapped {
				ln1, ln2 = ln2, ln1
			}

			content := truncate(line.Content, 60)
			switch line.Type {
			case '+':
				b.WriteString(addedStyle.Render(fmt.Sprintf("%s  + │ %s  + %s", ln1, ln2, content)))
			case '-':
				b.WriteString(deletedStyle.Render(fmt.Sprintf("%s  - │ %s  - %s", ln1, ln2, content)))
			default:
				b.WriteString(dimStyle.Render(fmt.Sprintf("%s    │ %s    %s", ln1, ln2, content)))
			}
			b.WriteString("\n")
		}

		if len(d.Lines) > height {
			scrollInfo := fmt.Sprintf("  Lines %d-%d of %d", m.memberDiffScroll+1, end, len(d.Lines))
			b.WriteString(dimStyle.Render(scrollInfo))
			b.WriteString("\n")
		}
	}

	m.renderStatus(&b)

	help := "[↑/↓] scroll  [s] swap sides  [esc] back  [q] quit"
	b.WriteString(helpStyle.Render(help))

	return b.String()
}

// Run starts the browser on path.
func Run(svc Service, path, other string) error {
	m, err := NewModel(svc, path, other)
	if err != nil {
		return err
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
