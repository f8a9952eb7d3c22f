// Package ui renders run progress as a bubbletea program.
package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/stackvity/stack-linguist/internal/cli/hooks"
	"github.com/stackvity/stack-linguist/pkg/linguist"
)

const listHeightMargin = 4

const listUpdateInterval = 50 * time.Millisecond

// statusPending marks files that were discovered but not yet picked up by
// a worker. The engine never reports it.
const statusPending linguist.Status = "pending"

const (
	phaseInitializing = "Initializing..."
	phaseScanning     = "Scanning..."
	phaseClassifying  = "Classifying..."
	phaseComplete     = "Complete"
	phaseFailed       = "Failed"
)

// UpdateListMsg asks the model to copy its items into the list component.
type UpdateListMsg struct{}

// RunFailedMsg ends the program when a run returns an error instead of results.
type RunFailedMsg struct{ Err error }

// Model is the progress UI. Update is only ever called from the bubbletea
// event loop, so the model needs no locking.
type Model struct {
	list    list.Model
	spinner spinner.Model
	version string

	width       int
	height      int
	initialized bool

	fileItems []listItem
	itemMap   map[string]int
	// updatePending is set while an UpdateListMsg is scheduled.
	updatePending bool

	summary      Summary
	phaseMessage string
	fatalError   string
	quitting     bool
	done         bool
}

type listItem struct {
	path     string
	status   linguist.Status
	message  string
	duration time.Duration
}

// Summary holds the counters shown in the footer.
type Summary struct {
	Discovered int
	Classified int
	Unknown    int
	Cached     int
	Ignored    int
	Binary     int
	Failed     int
	Languages  int
	StartTime  time.Time
	Duration   time.Duration
}

// NewModel creates the initial model. version is shown in the header.
func NewModel(version string) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorStatusProcessing)

	delegate := list.NewDefaultDelegate()
	delegate.SetSpacing(0)
	delegate.ShowDescription = true
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(ColorSelectedFg).
		Background(ColorSelectedBg).
		Bold(true).
		Padding(0, 0, 0, 1)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(ColorSelectedDescFg).
		Background(ColorSelectedBg).
		Padding(0, 0, 0, 1)
	delegate.Styles.NormalTitle = delegate.Styles.NormalTitle.
		Foreground(ColorNormalFg).Padding(0, 0, 0, 1)
	delegate.Styles.NormalDesc = delegate.Styles.NormalDesc.
		Foreground(ColorNormalDescFg).Padding(0, 0, 0, 1)

	l := list.New([]list.Item{}, delegate, 0, 0)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetShowTitle(false)
	l.SetShowFilter(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()

	if version == "" {
		version = "dev"
	}
	return &Model{
		list:         l,
		spinner:      s,
		version:      version,
		summary:      Summary{StartTime: time.Now()},
		phaseMessage: phaseInitializing,
		fileItems:    make([]listItem, 0, 1024),
		itemMap:      make(map[string]int),
	}
}

func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(m.width, max(m.height-listHeightMargin, 1))
		m.initialized = true

	case tea.KeyMsg:
		if m.quitting {
			return m, nil
		}
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}
		var listCmd tea.Cmd
		m.list, listCmd = m.list.Update(msg)
		cmds = append(cmds, listCmd)

	case spinner.TickMsg:
		if m.quitting || m.done {
			return m, nil
		}
		var spinnerCmd tea.Cmd
		m.spinner, spinnerCmd = m.spinner.Update(msg)
		cmds = append(cmds, spinnerCmd)

	case hooks.FileDiscoveredMsg:
		if _, exists := m.itemMap[msg.Path]; !exists {
			m.addItem(listItem{path: msg.Path, status: statusPending})
			cmds = append(cmds, m.scheduleListUpdate())
		}
		if m.phaseMessage == phaseInitializing {
			m.phaseMessage = phaseScanning
		}

	case hooks.FileStatusUpdateMsg:
		idx, ok := m.itemMap[msg.Path]
		if !ok {
			// Ignored folders are never discovered.
			m.addItem(listItem{path: msg.Path, status: statusPending})
			idx = len(m.fileItems) - 1
		}
		item := &m.fileItems[idx]
		if isFinalStatus(msg.Status) && !isFinalStatus(item.status) {
			m.count(msg.Status)
		}
		item.status = msg.Status
		item.message = msg.Message
		item.duration = msg.Duration
		cmds = append(cmds, m.scheduleListUpdate())
		if msg.Status == linguist.StatusProcessing && m.phaseMessage != phaseClassifying {
			m.phaseMessage = phaseClassifying
		}

	case hooks.RunCompleteMsg:
		m.phaseMessage = phaseComplete
		m.done = true
		m.summary.Duration = msg.Duration
		if msg.Results != nil {
			m.summary.Languages = msg.Results.Languages.Count
		}
		return m, tea.Quit

	case RunFailedMsg:
		m.phaseMessage = phaseFailed
		m.done = true
		if msg.Err != nil {
			m.fatalError = fmt.Sprintf("Run failed: %v", msg.Err)
		}
		return m, tea.Quit

	case UpdateListMsg:
		m.updatePending = false
		items := make([]list.Item, len(m.fileItems))
		for i, item := range m.fileItems {
			items[i] = item
		}
		cmds = append(cmds, m.list.SetItems(items))
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) View() string {
	if m.quitting {
		return "Exiting...\n"
	}
	if m.done {
		// The report is printed below the final frame, so keep it to one line.
		line := m.summaryText()
		if m.fatalError != "" {
			return StatusStyleFailed.Render(m.fatalError) + "\n" + line + "\n"
		}
		return line + "\n"
	}
	if !m.initialized {
		return phaseInitializing
	}

	headerLeft := fmt.Sprintf("Stack Linguist v%s", m.version)
	headerRight := m.spinner.View() + " " + m.phaseMessage
	if m.phaseMessage == phaseInitializing {
		headerRight = m.phaseMessage
	}
	header := HeaderStyle.Width(m.width).Render(spread(m.width-2, headerLeft, headerRight))
	footer := FooterStyle.Width(m.width).Render(spread(m.width-2, m.summaryText(), "q: quit"))

	return lipgloss.JoinVertical(lipgloss.Left, header, m.list.View(), footer)
}

func (m *Model) summaryText() string {
	elapsed := m.summary.Duration
	if elapsed == 0 {
		elapsed = time.Since(m.summary.StartTime)
	}
	return fmt.Sprintf(
		"Classified: %d (Cached: %d) | Unknown: %d | Ignored: %d | Binary: %d | Failed: %d | Files: %d | Elapsed: %s",
		m.summary.Classified,
		m.summary.Cached,
		m.summary.Unknown,
		m.summary.Ignored,
		m.summary.Binary,
		m.summary.Failed,
		m.summary.Discovered,
		elapsed.Round(time.Millisecond),
	)
}

// spread places left and right at the edges of a line of the given
// content width.
func spread(width int, left, right string) string {
	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap <= 0 {
		return left + " " + right
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, left, lipgloss.PlaceHorizontal(gap, lipgloss.Center, " "), right)
}

func (m *Model) addItem(item listItem) {
	m.fileItems = append(m.fileItems, item)
	m.itemMap[item.path] = len(m.fileItems) - 1
	m.summary.Discovered++
}

// scheduleListUpdate coalesces bursts of hook messages into one list
// refresh per interval.
func (m *Model) scheduleListUpdate() tea.Cmd {
	if m.updatePending {
		return nil
	}
	m.updatePending = true
	return tea.Tick(listUpdateInterval, func(time.Time) tea.Msg { return UpdateListMsg{} })
}

func isFinalStatus(status linguist.Status) bool {
	switch status {
	case linguist.StatusClassified, linguist.StatusUnknown, linguist.StatusCached,
		linguist.StatusIgnored, linguist.StatusBinary, linguist.StatusFailed:
		return true
	}
	return false
}

func (m *Model) count(status linguist.Status) {
	switch status {
	case linguist.StatusClassified:
		m.summary.Classified++
	case linguist.StatusCached:
		m.summary.Classified++
		m.summary.Cached++
	case linguist.StatusUnknown:
		m.summary.Unknown++
	case linguist.StatusIgnored:
		m.summary.Ignored++
	case linguist.StatusBinary:
		m.summary.Binary++
	case linguist.StatusFailed:
		m.summary.Failed++
	}
}

func (i listItem) FilterValue() string { return i.path }

func (i listItem) Title() string { return i.path }

func (i listItem) Description() string {
	style, icon := StatusStyleIgnored, " "
	details := i.message
	switch i.status {
	case linguist.StatusClassified:
		style, icon = StatusStyleClassified, "✓"
		if d := formatDuration(i.duration); d != "" {
			details += " " + d
		}
	case linguist.StatusCached:
		style, icon = StatusStyleCached, "C"
	case linguist.StatusUnknown:
		style, icon = StatusStyleUnknown, "?"
	case linguist.StatusIgnored:
		icon = "-"
	case linguist.StatusBinary:
		icon = "B"
	case linguist.StatusFailed:
		style, icon = StatusStyleFailed, "✗"
	case linguist.StatusProcessing:
		style, icon = StatusStyleProcessing, "…"
		details = ""
	default:
		details = ""
	}
	return fmt.Sprintf("%s %s", style.Render("["+icon+"]"), details)
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return ""
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}
