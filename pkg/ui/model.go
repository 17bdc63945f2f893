package ui

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"colstore/pkg/concurrency/transaction"
	"colstore/pkg/database"
	"colstore/pkg/logging"
	"colstore/pkg/parser"
	"colstore/pkg/ui/base"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type screen int

const (
	tablesScreen screen = iota
	rowsScreen
)

const defaultPageSize = 20

// changedMsg reports a commit by another session.
type changedMsg struct{}

// Model browses one database snapshot. It holds a read transaction on its
// session for as long as it lives; refreshing advances that transaction to
// the latest snapshot.
type Model struct {
	sg     *transaction.SharedGroup
	group  *database.Group
	format *database.ResultFormatter
	hl     *FilterHighlighter

	tables  table.Model
	rows    table.Model
	filter  textinput.Model
	spinner spinner.Model
	help    help.Model
	keys    keyMap

	screen    screen
	filtering bool

	// open table, and the filtered view over it when expr is set
	name    string
	current *database.Table
	view    *database.TableView
	expr    string
	offset  int
	result  database.Result

	follow   bool
	pending  bool
	showHelp bool
	err      error

	width  int
	height int
}

// NewModel starts a read transaction on sg, which must not be in a
// transaction, and lists the tables of that snapshot.
func NewModel(sg *transaction.SharedGroup) (Model, error) {
	g, err := sg.BeginRead()
	if err != nil {
		return Model{}, err
	}

	ti := textinput.New()
	ti.Placeholder = "age >= 18 and name beginswith 'A' nocase"
	ti.Prompt = "where "
	ti.CharLimit = 1000
	ti.PromptStyle = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	ti.PlaceholderStyle = lipgloss.NewStyle().Foreground(mutedColor)

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(accentColor)

	m := Model{
		sg:      sg,
		group:   g,
		format:  &database.ResultFormatter{MaxRows: defaultPageSize, MaxWidth: 40},
		hl:      NewFilterHighlighter(),
		tables:  newGrid([]table.Column{{Title: "Table", Width: 20}, {Title: "Rows", Width: 8}, {Title: "Columns", Width: 9}, {Title: "Links", Width: 40}}),
		rows:    newGrid(nil),
		filter:  ti,
		spinner: sp,
		help:    help.New(),
		keys:    keys,
	}
	m.loadTables()
	return m, nil
}

func newGrid(cols []table.Column) table.Model {
	t := table.New(
		table.WithColumns(cols),
		table.WithFocused(true),
		table.WithHeight(defaultPageSize),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(primaryColor).
		BorderBottom(true).
		Bold(true).
		Foreground(primaryColor)
	s.Selected = s.Selected.
		Foreground(bgColor).
		Background(secondaryColor).
		Bold(false)
	t.SetStyles(s)
	return t
}

// Close ends the read transaction held by the model.
func (m Model) Close() {
	m.sg.EndRead()
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.loadPage()

	case changedMsg:
		if m.follow {
			m.refresh()
		} else {
			m.pending = true
		}

	case spinner.TickMsg:
		if !m.follow {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.filtering {
			return m.updateFilter(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.err = nil
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp

	case key.Matches(msg, m.keys.Refresh):
		m.refresh()

	case key.Matches(msg, m.keys.Follow):
		m.follow = !m.follow
		if m.follow {
			if m.pending {
				m.refresh()
			}
			return m, m.spinner.Tick
		}

	case m.screen == tablesScreen && key.Matches(msg, m.keys.Select):
		if row := m.tables.SelectedRow(); row != nil {
			m.openTable(row[0])
		}

	case m.screen == rowsScreen && key.Matches(msg, m.keys.Back):
		m.closeTable()

	case m.screen == rowsScreen && key.Matches(msg, m.keys.Filter):
		m.filtering = true
		m.filter.SetValue(m.expr)
		m.filter.CursorEnd()
		return m, m.filter.Focus()

	case m.screen == rowsScreen && key.Matches(msg, m.keys.ClearFilter):
		m.view, m.expr, m.offset = nil, "", 0
		m.loadPage()

	case m.screen == rowsScreen && key.Matches(msg, m.keys.NextPage):
		if m.offset+m.pageSize() < m.result.Total {
			m.offset += m.pageSize()
			m.loadPage()
		}

	case m.screen == rowsScreen && key.Matches(msg, m.keys.PrevPage):
		if m.offset > 0 {
			m.offset = max(m.offset-m.pageSize(), 0)
			m.loadPage()
		}

	default:
		var cmd tea.Cmd
		if m.screen == tablesScreen {
			m.tables, cmd = m.tables.Update(msg)
		} else {
			m.rows, cmd = m.rows.Update(msg)
		}
		return m, cmd
	}
	return m, nil
}

func (m Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.filtering = false
		m.filter.Blur()
		return m, nil
	case "enter":
		if err := m.applyFilter(m.filter.Value()); err != nil {
			m.err = err
			return m, nil
		}
		m.err = nil
		m.offset = 0
		m.filtering = false
		m.filter.Blur()
		m.loadPage()
		return m, nil
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	return m, cmd
}

func (m *Model) pageSize() int {
	return m.format.MaxRows
}

func (m *Model) openTable(name string) {
	t, err := m.group.GetTableByName(name)
	if err != nil {
		m.err = err
		return
	}
	m.name, m.current = name, t
	m.view, m.expr, m.offset = nil, "", 0
	m.screen = rowsScreen
	m.loadPage()
}

func (m *Model) closeTable() {
	m.name, m.current = "", nil
	m.view, m.expr, m.offset = nil, "", 0
	m.result = database.Result{}
	m.screen = tablesScreen
}

// applyFilter replaces the view over the open table. An empty expression
// shows the whole table.
func (m *Model) applyFilter(expr string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		m.view, m.expr = nil, ""
		return nil
	}
	q, err := parser.Filter(m.current, expr)
	if err != nil {
		return err
	}
	v, err := q.FindAll(0, -1, -1)
	if err != nil {
		return err
	}
	m.view, m.expr = v, expr
	return nil
}

// refresh moves the read transaction to the latest snapshot. When the
// session cannot advance in place it starts a new read and looks the open
// table up again by name.
func (m *Model) refresh() {
	m.pending = false
	if err := m.sg.AdvanceRead(nil); err != nil {
		logging.Debug("advance failed, starting a new read", "session", m.sg.ID(), "error", err)
		m.sg.EndRead()
		if _, err := m.sg.BeginRead(); err != nil {
			m.err = err
			return
		}
	}
	m.group = m.sg.Group()

	if m.current != nil && !m.current.IsAttached() {
		t, err := m.group.GetTableByName(m.name)
		if err != nil {
			m.closeTable()
			m.err = err
		} else {
			m.current = t
		}
	}
	if m.current != nil && m.expr != "" {
		if err := m.applyFilter(m.expr); err != nil {
			m.view, m.expr = nil, ""
			m.err = err
		}
	}
	m.loadTables()
	m.loadPage()
}

func (m *Model) loadTables() {
	info := m.format.FormatGroup(m.group)
	rows := make([]table.Row, 0, len(info.Tables))
	for _, ti := range info.Tables {
		rows = append(rows, table.Row{ti.Name, strconv.Itoa(ti.Rows), strconv.Itoa(ti.Columns), strings.Join(ti.Links, ", ")})
	}
	m.tables.SetRows(rows)
	if m.tables.Cursor() >= len(rows) {
		m.tables.SetCursor(max(len(rows)-1, 0))
	}
}

// loadPage renders the current page of the open table or view into the
// row grid. The first grid column carries the table row index.
func (m *Model) loadPage() {
	if m.current == nil {
		return
	}
	if m.view != nil {
		m.result = m.format.FormatView(m.view, m.offset)
	} else {
		m.result = m.format.FormatTable(m.current, m.offset)
	}
	if m.offset > 0 && m.offset >= m.result.Total {
		m.offset = max(m.result.Total-m.pageSize(), 0)
		m.loadPage()
		return
	}

	cells := make([][]string, len(m.result.Rows))
	for i, row := range m.result.Rows {
		cells[i] = append([]string{strconv.Itoa(m.result.RowIndices[i])}, row...)
	}
	titles := append([]string{"#"}, m.result.Columns...)
	cols := make([]table.Column, len(titles))
	for i, title := range titles {
		cols[i] = table.Column{Title: title, Width: base.ColumnWidth(title, cells, i, 4, 30)}
	}
	rows := make([]table.Row, len(cells))
	for i, c := range cells {
		rows[i] = table.Row(c)
	}

	// the grid indexes every row by column, so drop the rows before
	// the columns change
	m.rows.SetRows(nil)
	m.rows.SetColumns(cols)
	m.rows.SetRows(rows)
	if m.rows.Cursor() >= len(rows) {
		m.rows.SetCursor(max(len(rows)-1, 0))
	}
}

func (m *Model) updateLayout() {
	w := max(m.width-6, 20)
	h := max(m.height-14, 5)
	m.tables.SetWidth(w)
	m.tables.SetHeight(h)
	m.rows.SetWidth(w)
	m.rows.SetHeight(h)
	m.filter.Width = w - 8
	m.help.Width = w
	m.format.MaxRows = h
}

func (m Model) View() string {
	sections := []string{m.renderHeader()}

	switch m.screen {
	case tablesScreen:
		sections = append(sections, headerStyle.Render(fmt.Sprintf("Tables (%d)", m.group.TableCount())), m.tables.View())
	case rowsScreen:
		sections = append(sections, m.renderRows())
	}
	if m.filtering {
		sections = append(sections, filterStyle.Render(m.filter.View()))
	}
	if m.err != nil {
		sections = append(sections, errorStyle.Render("error: ")+m.err.Error())
	}
	sections = append(sections, m.renderStatusBar())
	if m.showHelp {
		sections = append(sections, helpStyle.Render(m.help.View(m.keys)))
	} else {
		sections = append(sections, m.help.View(m.keys))
	}
	return appStyle.Render(strings.Join(sections, "\n"))
}

func (m Model) renderHeader() string {
	v := m.sg.GetVersionOfCurrentTransaction()
	parts := []string{
		titleStyle.Render("colstore"),
		pathBadgeStyle.Render(filepath.Base(m.sg.Path())),
		versionStyle.Render(fmt.Sprintf("version %d", v.Version)),
	}
	if m.follow {
		parts = append(parts, followStyle.Render(m.spinner.View()+" following"))
	}
	if m.pending {
		parts = append(parts, pendingStyle.Render("● new commits, press r"))
	}
	return strings.Join(parts, "  ")
}

func (m Model) renderRows() string {
	typed := make([]string, len(m.result.Columns))
	for i, c := range m.result.Columns {
		typed[i] = c + ":" + m.result.Types[i]
	}
	title := headerStyle.Render(m.name) + "  " + typeStyle.Render(strings.Join(typed, " "))
	if m.expr != "" {
		title += "\n" + versionStyle.Render("where ") + m.hl.Highlight(m.expr)
	}

	paging := versionStyle.Render("no rows")
	if n := len(m.result.Rows); n > 0 {
		paging = versionStyle.Render(fmt.Sprintf("rows %d-%d of %d", m.offset+1, m.offset+n, m.result.Total))
	}
	return title + "\n" + m.rows.View() + "\n" + paging
}

func (m Model) renderStatusBar() string {
	stage := m.sg.TransactStage().String()
	content := fmt.Sprintf("session %s  %s", shortID(m.sg.ID()), stage)
	return statusBarStyle.Width(max(m.width-4, 0)).Render(content)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
