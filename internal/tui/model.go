package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"profrag/internal/domain"
	"profrag/internal/service"
)

// ProgressMsg reports how many reviews have been embedded.
type ProgressMsg struct {
	Done  int
	Total int
}

// DoneMsg carries the result of a finished run.
type DoneMsg struct {
	Result *service.Result
}

// ErrMsg carries the error that aborted a run.
type ErrMsg struct {
	Err error
}

// Model is the Bubble Tea model for the ingestion progress view.
type Model struct {
	title    string
	spinner  spinner.Model
	bar      progress.Model
	done     int
	total    int
	result   *service.Result
	err      error
	quitting bool
}

// New creates a progress view for the named index and namespace.
func New(title string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle
	return Model{
		title:   title,
		spinner: sp,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd { return m.spinner.Tick }

// Update handles progress, completion and key events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = min(60, max(10, msg.Width-boxStyle.GetHorizontalFrameSize()-8))
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			m.quitting = true
			return m, tea.Quit
		}
		if m.Finished() && (msg.String() == "q" || msg.Type == tea.KeyEnter || msg.Type == tea.KeyEsc) {
			return m, tea.Quit
		}
		return m, nil
	case ProgressMsg:
		m.done, m.total = msg.Done, msg.Total
		return m, nil
	case DoneMsg:
		m.result = msg.Result
		return m, tea.Quit
	case ErrMsg:
		m.err = msg.Err
		return m, tea.Quit
	case spinner.TickMsg:
		if m.Finished() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// Finished reports whether the run has completed or failed.
func (m Model) Finished() bool { return m.result != nil || m.err != nil }

// Interrupted reports whether the user quit before the run finished.
func (m Model) Interrupted() bool { return m.quitting && !m.Finished() }

// Result returns the outcome of the run, if any.
func (m Model) Result() (*service.Result, error) { return m.result, m.err }

// View renders the header, the progress bar and the final summary.
func (m Model) View() string {
	header := titleStyle.Render(m.title)

	var body string
	switch {
	case m.err != nil:
		body = errorStyle.Render("Error: " + m.err.Error())
	case m.result != nil:
		body = successStyle.Render(fmt.Sprintf("Upserted count: %d", m.result.Upserted)) + "\n" + StatsTable(m.result.Stats)
	case m.total == 0:
		body = m.spinner.View() + " provisioning index and loading corpus..."
	default:
		body = m.spinner.View() + fmt.Sprintf(" embedding %d/%d\n", m.done, m.total) + m.bar.ViewAs(m.percent())
	}
	return boxStyle.Render(header+"\n\n"+body) + "\n"
}

func (m Model) percent() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.done) / float64(m.total)
}

// StatsTable renders index statistics with namespaces in name order.
func StatsTable(st domain.IndexStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("dimension:"), st.Dimension)
	fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("total vectors:"), st.TotalVectorCount)
	fmt.Fprintf(&b, "%s %.4f\n", labelStyle.Render("fullness:"), st.IndexFullness)
	names := make([]string, 0, len(st.Namespaces))
	for ns := range st.Namespaces {
		names = append(names, ns)
	}
	sort.Strings(names)
	for _, ns := range names {
		fmt.Fprintf(&b, "  %s %d\n", labelStyle.Render(ns+":"), st.Namespaces[ns])
	}
	return strings.TrimRight(b.String(), "\n")
}

var (
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	titleStyle   = lipgloss.NewStyle().Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)
