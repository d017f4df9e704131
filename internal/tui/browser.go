// internal/tui/browser.go
// Package tui provides the interactive results browser.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mwiater/edgebench/internal/benchmark"
)

// RunStore is the subset of the results store the browser needs.
type RunStore interface {
	Load() ([]benchmark.RunRecord, error)
	Delete(id string) error
}

// viewState represents the current screen of the browser.
type viewState int

const (
	// viewList shows every persisted run.
	viewList viewState = iota
	// viewDetail shows one run with its per-example results.
	viewDetail
)

// model is the Bubble Tea model for the results browser.
type model struct {
	store         RunStore
	state         viewState
	isLoading     bool
	err           error
	notice        string
	runs          []benchmark.RunRecord
	runList       list.Model
	viewport      viewport.Model
	spinner       spinner.Model
	selected      *benchmark.RunRecord
	width, height int
}

// initialModel creates the browser model over store.
func initialModel(store RunStore) *model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Benchmark Runs"

	return &model{
		store:     store,
		state:     viewList,
		isLoading: true,
		spinner:   s,
		runList:   l,
		viewport:  viewport.New(100, 20),
	}
}

// runItem adapts a run record to the list.
type runItem struct {
	run benchmark.RunRecord
}

// Title returns the model and dataset of the run.
func (i runItem) Title() string {
	title := fmt.Sprintf("%s / %s", i.run.ModelName, i.run.TaskType)
	if i.run.Partial() {
		title += " " + partialBadge()
	}
	return title
}

// Description summarizes the run on one line.
func (i runItem) Description() string {
	started := i.run.StartedAt.Time().Local().Format("2006-01-02 15:04:05")
	desc := fmt.Sprintf("%d examples, started %s", i.run.NumberOfExamples, started)
	if bm := i.run.BenchmarkMetrics; bm != nil {
		desc += fmt.Sprintf(", metric1 %.3f, %.1f tok/s", bm.AverageMetric1, bm.AverageEvalTokenPerSec)
	}
	return desc
}

// FilterValue returns the text used for filtering.
func (i runItem) FilterValue() string { return i.run.ModelName + " " + i.run.TaskType }

type runsLoadedMsg struct{ runs []benchmark.RunRecord }

type runsLoadErr struct{ error }

type runDeletedMsg struct{ id string }

type runDeleteErr struct{ error }

func loadRunsCmd(store RunStore) tea.Cmd {
	return func() tea.Msg {
		runs, err := store.Load()
		if err != nil {
			return runsLoadErr{error: err}
		}
		return runsLoadedMsg{runs: runs}
	}
}

func deleteRunCmd(store RunStore, id string) tea.Cmd {
	return func() tea.Msg {
		if err := store.Delete(id); err != nil {
			return runDeleteErr{error: err}
		}
		return runDeletedMsg{id: id}
	}
}

// Init loads the runs and starts the spinner.
func (m *model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, loadRunsCmd(m.store))
}

// Update is the central update function for the browser.
func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.runList.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "esc", "backspace":
			if m.state == viewDetail {
				m.state = viewList
				m.selected = nil
				return m, nil
			}
		case "enter":
			if m.state == viewList {
				if it, ok := m.runList.SelectedItem().(runItem); ok {
					run := it.run
					m.selected = &run
					m.state = viewDetail
					m.viewport.SetContent(renderDetail(run, m.viewport.Width))
					m.viewport.GotoTop()
				}
				return m, nil
			}
		case "d":
			if id := m.currentID(); id != "" {
				m.notice = ""
				return m, deleteRunCmd(m.store, id)
			}
		case "r":
			m.isLoading = true
			return m, tea.Batch(m.spinner.Tick, loadRunsCmd(m.store))
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.runList.SetSize(msg.Width-4, msg.Height-4)
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = msg.Height - 6
		return m, nil

	case runsLoadedMsg:
		m.isLoading = false
		m.err = nil
		m.runs = msg.runs
		items := make([]list.Item, len(msg.runs))
		// Newest first.
		for i, r := range msg.runs {
			items[len(msg.runs)-1-i] = runItem{run: r}
		}
		m.runList.SetItems(items)
		return m, nil

	case runsLoadErr:
		m.isLoading = false
		m.err = msg.error
		return m, nil

	case runDeletedMsg:
		m.notice = fmt.Sprintf("Deleted run %s", msg.id)
		m.state = viewList
		m.selected = nil
		m.isLoading = true
		return m, loadRunsCmd(m.store)

	case runDeleteErr:
		m.notice = fmt.Sprintf("Delete failed: %v", msg.error)
		return m, nil
	}

	if m.isLoading {
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	switch m.state {
	case viewList:
		m.runList, cmd = m.runList.Update(msg)
	case viewDetail:
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

// currentID returns the run the delete key applies to.
func (m *model) currentID() string {
	if m.state == viewDetail && m.selected != nil {
		return m.selected.ID
	}
	if it, ok := m.runList.SelectedItem().(runItem); ok {
		return it.run.ID
	}
	return ""
}

// View renders the browser.
func (m *model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	}
	if m.isLoading {
		return fmt.Sprintf("\n  %s Loading results...\n", m.spinner.View())
	}

	var b strings.Builder
	switch m.state {
	case viewDetail:
		b.WriteString(headerStyle.Render(fmt.Sprintf("Run %s", m.selected.ID)))
		b.WriteString("\n\n")
		b.WriteString(m.viewport.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("esc: back  d: delete  q: quit"))
	default:
		if len(m.runs) == 0 {
			b.WriteString("No benchmark runs recorded yet.\n")
		} else {
			b.WriteString(m.runList.View())
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter: details  d: delete  r: reload  q: quit"))
	}
	if m.notice != "" {
		b.WriteString("\n")
		b.WriteString(noticeStyle.Render(m.notice))
	}
	return lipgloss.NewStyle().Margin(1, 2).Render(b.String())
}

// Browse runs the results browser until the user quits or ctx is done.
func Browse(ctx context.Context, store RunStore) error {
	p := tea.NewProgram(initialModel(store), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
