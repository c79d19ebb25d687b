package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/v2/list"
	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"

	"avmdis/internal/avmdis/styles"
	"avmdis/internal/report"
	"avmdis/internal/ui/colorize"
)

type viewMode int

const (
	viewSummary viewMode = iota
	viewEntries
	viewListing
)

// entryItem is a method body or trait section in the entries list.
type entryItem struct {
	address uint64
	kind    string // "method" or "traits"
	detail  string
	failed  bool
	content string
}

func (i entryItem) Title() string {
	return fmt.Sprintf("%x  %s %s", i.address, i.kind, i.detail)
}

func (i entryItem) FilterValue() string {
	return fmt.Sprintf("%x %s %s", i.address, i.kind, i.detail)
}

type itemDelegate struct{}

func (d itemDelegate) Height() int                               { return 1 }
func (d itemDelegate) Spacing() int                              { return 0 }
func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d itemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(entryItem)
	if !ok {
		return
	}

	indicator := " "
	addrStyle := styles.Address
	if index == m.Index() {
		indicator = ">"
		addrStyle = styles.Selected
	}
	kind := styles.Mnemonic.Render(fmt.Sprintf("%-6s", i.kind))
	detail := i.detail
	if i.failed {
		detail = styles.Error.Render(detail)
	}

	fmt.Fprintf(w, " %s  %s  %s %s", indicator, addrStyle.Render(fmt.Sprintf("%8x", i.address)), kind, detail)
}

type model struct {
	viewport    viewport.Model
	entriesList list.Model
	listingView viewport.Model
	spinner     spinner.Model
	mode        viewMode
	session     *session
	methods     []uint64
	sections    []uint64
	report      *report.Report
	loadErr     error
	loading     bool
	width       int
	height      int
}

// loadedMsg carries the decode results into the model.
type loadedMsg struct {
	report *report.Report
	items  []list.Item
	err    error
}

// loadCmd decodes every requested address off the UI goroutine.
func loadCmd(s *session, methods, sections []uint64) tea.Cmd {
	return func() tea.Msg {
		ms, methodErr := s.decodeMethods(methods, false)
		ts, traitErr := s.decodeTraits(sections, false)

		items := make([]list.Item, 0, len(ms)+len(ts))
		for _, m := range ms {
			item := entryItem{address: m.Address, kind: "method", failed: m.Err != nil}
			if m.Body != nil && m.Body.Disassembly != nil {
				item.detail = fmt.Sprintf("%d instructions, %d xrefs", m.Body.Len(), len(m.Xrefs))
			}
			if m.Err != nil {
				item.detail = strings.TrimSpace(item.detail + " (error)")
			}
			item.content = s.listing(m)
			if !s.cfg.NoColor {
				if colored, err := colorize.ColorizeListing(item.content); err == nil {
					item.content = colored
				}
			}
			items = append(items, item)
		}
		for _, t := range ts {
			item := entryItem{address: t.Address, kind: "traits", failed: t.Err != nil}
			item.detail = fmt.Sprintf("%d traits", len(t.Traits))
			var b strings.Builder
			fmt.Fprintf(&b, "; traits %#x\n", t.Address)
			if t.Err != nil {
				fmt.Fprintf(&b, "; error: %v\n", t.Err)
			}
			for _, tr := range t.Traits {
				b.WriteString(formatTrait(tr, s.names))
				b.WriteByte('\n')
			}
			item.content = b.String()
			items = append(items, item)
		}

		err := methodErr
		if err == nil {
			err = traitErr
		}
		return loadedMsg{report: s.buildReport(ms, ts), items: items, err: err}
	}
}

func NewModel(s *session, methods, sections []uint64) model {
	vp := viewport.New()
	vp.SetWidth(80)
	vp.SetHeight(24)

	entriesList := list.New([]list.Item{}, itemDelegate{}, 80, 24)
	entriesList.SetShowStatusBar(false)
	entriesList.SetFilteringEnabled(true)
	entriesList.Title = "Entries"
	entriesList.Styles.Title = styles.Title.MarginLeft(2)
	entriesList.SetShowHelp(true)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Selected

	lv := viewport.New()
	lv.SetWidth(80)
	lv.SetHeight(24)

	m := model{
		viewport:    vp,
		entriesList: entriesList,
		listingView: lv,
		spinner:     sp,
		mode:        viewSummary,
		session:     s,
		methods:     methods,
		sections:    sections,
		loading:     true,
		width:       80,
		height:      24,
	}
	m.updateContent()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		loadCmd(m.session, m.methods, m.sections),
		m.spinner.Tick,
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case loadedMsg:
		m.loading = false
		m.report = msg.report
		m.loadErr = msg.err
		m.entriesList.SetItems(msg.items)
		m.updateContent()
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
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
			m.entriesList.SetWidth(msg.Width)
			m.entriesList.SetHeight(msg.Height - 2)
			m.listingView.SetWidth(msg.Width)
			m.listingView.SetHeight(msg.Height - 2)
			m.updateContent()
		}

	case tea.KeyMsg:
		if m.mode == viewEntries && m.entriesList.FilterState() == list.Filtering {
			// The list owns every key except quit while filtering.
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			break
		}

		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "s":
			m.mode = viewSummary
			return m, nil
		case "e":
			if !m.loading {
				m.mode = viewEntries
			}
			return m, nil
		case "enter":
			if m.mode == viewEntries {
				if item, ok := m.entriesList.SelectedItem().(entryItem); ok {
					m.listingView.SetContent(item.content)
					m.listingView.GotoTop()
					m.mode = viewListing
				}
			}
			return m, nil
		case "esc":
			if m.mode == viewListing {
				m.mode = viewEntries
				return m, nil
			}
		case "tab", "shift+tab":
			m.mode = m.nextMode()
			return m, nil
		}
	}

	switch m.mode {
	case viewEntries:
		m.entriesList, cmd = m.entriesList.Update(msg)
	case viewListing:
		m.listingView, cmd = m.listingView.Update(msg)
	default:
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

// nextMode toggles between the summary and entries views. The listing view
// is only reachable by selecting an entry.
func (m model) nextMode() viewMode {
	if m.loading || m.mode != viewSummary {
		return viewSummary
	}
	return viewEntries
}

func (m model) View() string {
	var content, menu string
	switch m.mode {
	case viewEntries:
		content = m.entriesList.View()
		menu = " Enter: listing • S: summary • /: filter • Tab: cycle • Q: quit "
	case viewListing:
		content = m.listingView.View()
		menu = " Esc: entries • S: summary • Q: quit "
	default:
		content = m.viewport.View()
		if m.loading {
			menu = " Q: quit "
		} else {
			menu = " E: entries • Tab: cycle • Q: quit "
		}
	}
	return content + "\n" + styles.MenuBar.Width(m.width).Render(menu)
}

func (m *model) updateContent() {
	var md string
	switch {
	case m.report != nil:
		md = report.Markdown(m.report)
		if m.loadErr != nil {
			md += "\n## Errors\n\n```\n" + m.loadErr.Error() + "\n```\n"
		}
	default:
		md = fmt.Sprintf("# %s\n\n%s Decoding...", m.session.image.Path, m.spinner.View())
	}

	width := m.width
	if width == 0 {
		width = 80
	}
	rendered := styles.RenderMarkdown(md, width-2)
	m.viewport.SetContent(strings.TrimSuffix(rendered, "\n"))
}

// runNoTUI prints the markdown summary followed by every listing.
func runNoTUI(w io.Writer, s *session, methods, sections []uint64) error {
	ms, methodErr := s.decodeMethods(methods, false)
	ts, traitErr := s.decodeTraits(sections, false)
	r := s.buildReport(ms, ts)

	summary := report.Markdown(r)
	if colorEnabled(w, s.cfg) {
		summary = styles.RenderMarkdown(summary, 100)
	}
	if _, err := io.WriteString(w, summary); err != nil {
		return err
	}
	for _, m := range ms {
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
		if err := writeListing(w, s.cfg, s.listing(m)); err != nil {
			return err
		}
	}
	for _, t := range ts {
		fmt.Fprintf(w, "\n; traits %#x\n", t.Address)
		for _, tr := range t.Traits {
			fmt.Fprintln(w, formatTrait(tr, s.names))
		}
	}

	if methodErr != nil {
		return methodErr
	}
	return traitErr
}
