package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/klauern/bkup/internal/engine"
	"github.com/klauern/bkup/internal/planner"
)

// ReviewAction is the decision taken in the plan review.
type ReviewAction int

const (
	// ReviewActionNone means the user quit without deciding.
	ReviewActionNone ReviewAction = iota
	// ReviewActionAbort means the user declined the plan.
	ReviewActionAbort
	// ReviewActionApply means the user accepted the plan.
	ReviewActionApply
)

// PlanReviewResult contains the result of the plan review.
type PlanReviewResult struct {
	Action ReviewAction
}

// Apply reports whether the plan was accepted.
func (r PlanReviewResult) Apply() bool {
	return r.Action == ReviewActionApply
}

type planReviewKeyMap struct {
	Up    key.Binding
	Down  key.Binding
	Apply key.Binding
	Abort key.Binding
	Help  key.Binding
	Quit  key.Binding
}

func defaultPlanReviewKeyMap() planReviewKeyMap {
	return planReviewKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "scroll down"),
		),
		Apply: key.NewBinding(
			key.WithKeys("y", "enter"),
			key.WithHelp("y", "apply plan"),
		),
		Abort: key.NewBinding(
			key.WithKeys("n", "esc"),
			key.WithHelp("n/esc", "abort"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// PlanReviewModel is the BubbleTea model for reviewing a plan before it is
// applied.
type PlanReviewModel struct {
	viewport viewport.Model
	plan     *engine.PlanResult
	keys     planReviewKeyMap
	result   PlanReviewResult
	showHelp bool
	width    int
	height   int
	quitting bool
	ready    bool
}

var planReviewStyles = struct {
	Title      lipgloss.Style
	Help       lipgloss.Style
	Status     lipgloss.Style
	SectionHdr lipgloss.Style
	Dir        lipgloss.Style
	Missing    lipgloss.Style
	Newer      lipgloss.Style
	Problem    lipgloss.Style
	Info       lipgloss.Style
}{
	Title:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")).Padding(0, 1),
	Help:       lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	Status:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1),
	SectionHdr: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5")).Padding(1, 0),
	Dir:        lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
	Missing:    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
	Newer:      lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	Problem:    lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	Info:       lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Italic(true),
}

// NewPlanReviewModel creates a review model for plan.
func NewPlanReviewModel(plan *engine.PlanResult) PlanReviewModel {
	return PlanReviewModel{
		plan: plan,
		keys: defaultPlanReviewKeyMap(),
	}
}

// Init implements tea.Model.
func (m PlanReviewModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m PlanReviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 3 // Title + spacing
		footerHeight := 3 // Status + help
		viewportHeight := max(msg.Height-headerHeight-footerHeight, 5)

		if !m.ready {
			m.viewport = viewport.New(msg.Width-2, viewportHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 2
			m.viewport.Height = viewportHeight
		}
		m.viewport.SetContent(m.buildContent())

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil

		case key.Matches(msg, m.keys.Abort):
			m.result = PlanReviewResult{Action: ReviewActionAbort}
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Apply):
			if len(m.plan.Actions) == 0 {
				return m, nil
			}
			m.result = PlanReviewResult{Action: ReviewActionApply}
			m.quitting = true
			return m, tea.Quit
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m PlanReviewModel) lineWidth() int {
	if m.width <= 4 {
		return 120
	}
	return m.width - 4
}

func (m PlanReviewModel) buildContent() string {
	var b strings.Builder
	width := m.lineWidth()

	b.WriteString(formatDetail("  Source:      ", m.plan.SourceRoot, width))
	b.WriteString("\n")
	b.WriteString(formatDetail("  Destination: ", m.plan.DestRoot, width))
	b.WriteString("\n")
	if m.plan.DestMissing {
		b.WriteString(planReviewStyles.Info.Render("  Destination does not exist and will be created"))
		b.WriteString("\n")
	}
	for _, w := range m.plan.Warnings {
		b.WriteString(planReviewStyles.Info.Render(formatDetail("  Note: ", w, width)))
		b.WriteString("\n")
	}

	if len(m.plan.Actions) == 0 {
		b.WriteString("\n")
		b.WriteString(planReviewStyles.Info.Render("  Destination is up to date - nothing to copy"))
		b.WriteString("\n")
	} else {
		b.WriteString(planReviewStyles.SectionHdr.Render(fmt.Sprintf("Actions (%d)", len(m.plan.Actions))))
		b.WriteString("\n")
		for _, a := range m.plan.Actions {
			b.WriteString(formatAction(a, width))
			b.WriteString("\n")
		}
	}

	if len(m.plan.Conflicts) > 0 {
		b.WriteString(planReviewStyles.SectionHdr.Render(fmt.Sprintf("Conflicts (%d)", len(m.plan.Conflicts))))
		b.WriteString("\n")
		for _, c := range m.plan.Conflicts {
			b.WriteString(planReviewStyles.Problem.Render(truncateText("  ! "+c.Error(), width)))
			b.WriteString("\n")
		}
	}

	walkErrs := append(m.plan.SourceErrors.Failures(), m.plan.DestErrors.Failures()...)
	if len(walkErrs) > 0 {
		b.WriteString(planReviewStyles.SectionHdr.Render(fmt.Sprintf("Errors (%d)", len(walkErrs))))
		b.WriteString("\n")
		for _, e := range walkErrs {
			b.WriteString(planReviewStyles.Problem.Render(truncateText("  ! "+e.Error(), width)))
			b.WriteString("\n")
		}
	}

	return b.String()
}

func formatAction(a planner.Action, width int) string {
	switch a.Type {
	case planner.CreateDirectory:
		return planReviewStyles.Dir.Render("  + "+truncatePath(a.Key()+"/", width-4))
	default:
		style := planReviewStyles.Missing
		marker := "+"
		if a.Reason == planner.ReasonNewer {
			style = planReviewStyles.Newer
			marker = "~"
		}
		suffix := fmt.Sprintf("  %s, %s", a.Reason, humanize.Bytes(uint64(max(a.Size, 0))))
		path := truncatePath(a.Key(), width-len(suffix)-4)
		return style.Render(fmt.Sprintf("  %s %s", marker, path)) + planReviewStyles.Help.Render(suffix)
	}
}

// View implements tea.Model.
func (m PlanReviewModel) View() string {
	if m.quitting {
		return ""
	}

	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder

	title := planReviewStyles.Title.Render("Review sync plan")
	b.WriteString(title)
	b.WriteString("\n\n")

	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	s := m.plan.Summary
	scrollPercent := int(m.viewport.ScrollPercent() * 100)
	status := fmt.Sprintf("Scroll: %d%% • %d dirs • %d files • %s",
		scrollPercent, s.Dirs, s.Files(), humanize.Bytes(uint64(max(s.Bytes, 0))))
	b.WriteString(planReviewStyles.Status.Render(status))
	b.WriteString("\n")

	if m.showHelp {
		b.WriteString("\n")
		b.WriteString(m.renderFullHelp())
	} else {
		b.WriteString(m.renderShortHelp())
	}

	return b.String()
}

func (m PlanReviewModel) renderShortHelp() string {
	keys := []string{
		"↑/↓ scroll",
		"y apply",
		"n abort",
		"? help",
		"q quit",
	}
	return planReviewStyles.Help.Render(strings.Join(keys, " • "))
}

func (m PlanReviewModel) renderFullHelp() string {
	help := `Navigation:
  ↑/k      Scroll up
  ↓/j      Scroll down
  PgUp     Page up
  PgDown   Page down

Actions:
  y/Enter  Apply the plan
  n/Esc    Abort without changes

General:
  ?        Toggle full help
  q        Quit`
	return planReviewStyles.Help.Render(help)
}

// Result returns the result of the user interaction.
func (m PlanReviewModel) Result() PlanReviewResult {
	return m.result
}

// RunPlanReview shows plan full screen and returns the user's decision.
func RunPlanReview(plan *engine.PlanResult) (PlanReviewResult, error) {
	finalModel, err := Run(NewPlanReviewModel(plan), tea.WithAltScreen())
	if err != nil {
		return PlanReviewResult{}, err
	}

	if m, ok := finalModel.(PlanReviewModel); ok {
		return m.Result(), nil
	}

	return PlanReviewResult{}, nil
}
