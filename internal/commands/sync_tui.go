package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/strideworks/stridesync/internal/app"
	"github.com/strideworks/stridesync/internal/sync"
)

// SyncKeyMap defines keybindings for the sync TUI
type SyncKeyMap struct {
	Help key.Binding
	Quit key.Binding
}

// ShortHelp returns keybindings to show in the mini help view
func (k SyncKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Quit}
}

// FullHelp returns all keybindings for the help view
func (k SyncKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Help, k.Quit},
	}
}

// DefaultSyncKeyMap returns the default keybindings
func DefaultSyncKeyMap() SyncKeyMap {
	return SyncKeyMap{
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// Messages pushed into the TUI from the sync run
type (
	// syncProgressMsg carries one progress snapshot
	syncProgressMsg struct {
		progress sync.Progress
	}

	// syncDoneMsg is sent when the run could not even start
	syncDoneMsg struct {
		err error
	}
)

// syncStyles holds the lipgloss styles for the sync view
type syncStyles struct {
	Title   lipgloss.Style
	Info    lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Subtle  lipgloss.Style
	Border  lipgloss.Style
}

func defaultSyncStyles() syncStyles {
	return syncStyles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14")),
		Info:    lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		Subtle:  lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Border:  lipgloss.NewStyle().Padding(1, 2),
	}
}

// SyncModel represents the state of the sync TUI
type SyncModel struct {
	app      *app.App
	keymap   SyncKeyMap
	help     help.Model
	spinner  spinner.Model
	progress progress.Model
	styles   syncStyles

	ready     bool
	showHelp  bool
	syncing   bool
	done      bool
	width     int
	startedAt time.Time
	last      sync.Progress
	err       error
}

// NewSyncModel creates a new sync model
func NewSyncModel(a *app.App) SyncModel {
	s := spinner.New()
	s.Spinner = spinner.Dot

	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(40),
	)

	return SyncModel{
		app:       a,
		keymap:    DefaultSyncKeyMap(),
		help:      help.New(),
		spinner:   s,
		progress:  p,
		styles:    defaultSyncStyles(),
		syncing:   true,
		startedAt: time.Now(),
	}
}

// Init initializes the model
func (m SyncModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages
func (m SyncModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keymap.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keymap.Help):
			m.showHelp = !m.showHelp
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		if !m.ready {
			m.ready = true
		}

	case spinner.TickMsg:
		if m.syncing {
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case syncProgressMsg:
		m.last = msg.progress

		if msg.progress.TotalToUpload > 0 {
			percent := float64(msg.progress.UploadedCount) / float64(msg.progress.TotalToUpload)
			cmds = append(cmds, m.progress.SetPercent(percent))
		}

		if msg.progress.Phase.Terminal() {
			m.syncing = false
			m.done = true
			m.err = msg.progress.Err
		}
		return m, tea.Batch(cmds...)

	case syncDoneMsg:
		m.syncing = false
		m.done = true
		m.err = msg.err
		return m, nil

	case progress.FrameMsg:
		model, cmd := m.progress.Update(msg)
		m.progress = model.(progress.Model)
		return m, cmd
	}

	return m, tea.Batch(cmds...)
}

// View renders the UI
func (m SyncModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var sb strings.Builder

	sb.WriteString(m.styles.Title.Render("StrideSync"))
	sb.WriteString("\n\n")

	switch {
	case m.syncing:
		sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Center, m.spinner.View(), " ", m.stageLine()))
		sb.WriteString("\n\n")
		sb.WriteString(m.progress.View())
		sb.WriteString("\n")

	case m.done && m.err != nil:
		sb.WriteString(m.styles.Error.Render("Sync failed: " + m.err.Error()))
		sb.WriteString("\n")
		if m.last.UploadedCount > 0 {
			sb.WriteString(fmt.Sprintf("Uploaded %d of %d before the failure; a retry resumes from there.\n",
				m.last.UploadedCount, m.last.TotalToUpload))
		}

	case m.done:
		if m.last.UploadedCount == 0 {
			sb.WriteString(m.styles.Success.Render("Nothing to sync, everything is up to date"))
		} else {
			sb.WriteString(m.styles.Success.Render(
				fmt.Sprintf("Uploaded %d activities in %d batches",
					m.last.UploadedCount, m.last.TotalBatches)))
		}
		sb.WriteString("\n")
		sb.WriteString(m.styles.Subtle.Render(
			fmt.Sprintf("Took %s", time.Since(m.startedAt).Round(time.Millisecond))))
		sb.WriteString("\n")
	}

	if m.showHelp {
		sb.WriteString("\n" + m.help.View(m.keymap))
	} else {
		sb.WriteString("\n" + m.help.ShortHelpView(m.keymap.ShortHelp()))
	}

	return m.styles.Border.Render(sb.String())
}

// stageLine describes the current phase for the spinner row
func (m SyncModel) stageLine() string {
	switch m.last.Phase {
	case sync.PhaseUploading:
		return fmt.Sprintf("Uploading batch %d/%d (%d/%d activities)",
			m.last.CurrentBatch, m.last.TotalBatches,
			m.last.UploadedCount, m.last.TotalToUpload)
	case sync.PhaseFetching:
		if m.last.TotalToFetch > 0 {
			return fmt.Sprintf("Found %d activities to upload", m.last.TotalToFetch)
		}
		return "Looking for new activities..."
	default:
		return "Preparing to sync..."
	}
}
