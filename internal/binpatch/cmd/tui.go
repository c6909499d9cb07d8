package cmd

import (
	"fmt"
	"os"
	pathpkg "path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/log"

	"binpatch/internal/binpatch/styles"
	"binpatch/internal/report"
)

type model struct {
	viewport viewport.Model
	spinner  spinner.Model
	opts     runOptions
	logger   *log.Logger
	running  bool
	quitting bool
	outcome  *outcome
	err      error
	width    int
	height   int
}

// runDoneMsg carries the result of the patch run.
type runDoneMsg struct {
	outcome *outcome
	err     error
}

// runPatchCmd runs the whole pipeline off the UI loop.
func runPatchCmd(opts runOptions, logger *log.Logger) tea.Cmd {
	return func() tea.Msg {
		out, err := runPatch(opts, logger)
		return runDoneMsg{outcome: out, err: err}
	}
}

func NewModel(opts runOptions, logger *log.Logger) model {
	vp := viewport.New()
	vp.SetWidth(80)
	vp.SetHeight(24)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Spinner

	m := model{
		viewport: vp,
		spinner:  s,
		opts:     opts,
		logger:   logger,
		running:  true,
		width:    80,
		height:   24,
	}
	m.updateContent()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		runPatchCmd(m.opts, m.logger),
		m.spinner.Tick,
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case runDoneMsg:
		m.running = false
		m.outcome = msg.outcome
		m.err = msg.err
		m.updateContent()
		if m.quitting {
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		if !m.running {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		m.updateContent()
		return m, cmd

	case tea.WindowSizeMsg:
		if msg.Width != m.width || msg.Height != m.height {
			m.width = msg.Width
			m.height = msg.Height
			m.viewport.SetWidth(msg.Width)
			m.viewport.SetHeight(msg.Height - 2)
			m.updateContent()
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m.requestQuit()
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// requestQuit quits now, or once the run has finished. Leaving mid-run
// would cut a backup or write-back short.
func (m model) requestQuit() (model, tea.Cmd) {
	if m.running {
		m.quitting = true
		return m, nil
	}
	return m, tea.Quit
}

func (m model) View() string {
	menu := " ↑/↓: scroll • Q: quit "
	switch {
	case m.quitting:
		menu = " Quitting when the run finishes... "
	case m.running:
		menu = " Q: quit when done "
	}
	return m.viewport.View() + "\n" + styles.Help.Width(m.width).Render(menu)
}

func (m *model) updateContent() {
	width := m.width
	if width == 0 {
		width = 80
	}

	var markdown string
	switch {
	case m.running:
		markdown = fmt.Sprintf("# binpatch\n\n```\n; %s\n```\n\n%s Patching...", displayPath(m.opts.Target), m.spinner.View())
	case m.err != nil:
		markdown = fmt.Sprintf("# binpatch: failed\n\n```\n; %s\n```\n\n> %s", displayPath(m.opts.Target), m.err)
	case m.outcome == nil || m.outcome.Report == nil:
		markdown = fmt.Sprintf("# binpatch: skipped\n\n```\n; %s\n```\n\nBinary patching skipped; build structure is valid.", displayPath(m.opts.Target))
	default:
		markdown = report.Markdown(m.outcome.Report, m.outcome.reportOptions())
		if m.outcome.Notes != "" {
			markdown += fmt.Sprintf("Patch notes: `%s`\n", m.outcome.Notes)
		}
	}

	rendered := styles.RenderMarkdown(markdown, width-2)
	m.viewport.SetContent(strings.TrimSuffix(rendered, "\n"))
}

// displayPath shortens p relative to the working directory when possible.
func displayPath(p string) string {
	if cwd, err := os.Getwd(); err == nil {
		if rel, err := pathpkg.Rel(cwd, p); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	return p
}
