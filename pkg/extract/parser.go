package extract

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/coolbeans/codetree/pkg/diag"
	"github.com/coolbeans/codetree/pkg/grammar"
	"github.com/coolbeans/codetree/pkg/pages"
	"github.com/coolbeans/codetree/pkg/tree"
)

// Mode is the driver's position in its line state machine.
type Mode int

const (
	Idle Mode = iota
	ClauseOpen
	InTableNotes
)

func (m Mode) String() string {
	switch m {
	case ClauseOpen:
		return "clause_open"
	case InTableNotes:
		return "in_table_notes"
	default:
		return "idle"
	}
}

// PendingHeading is an ID-only heading waiting for its title on the next line.
type PendingHeading struct {
	Type grammar.NodeType `json:"type"`
	ID   string           `json:"id"`
	Page int              `json:"page"`
}

// State is the parse state carried from one page to the next. The zero value is the
// initial Idle state. It holds no references into the tree and can be checkpointed.
type State struct {
	// Buffer holds the lines of the open clause.
	Buffer       []string `json:"buffer,omitempty"`
	ClauseID     string   `json:"clause_id,omitempty"`
	ClauseMarker string   `json:"clause_marker,omitempty"`
	ClausePage   int      `json:"clause_page,omitempty"`

	InTableNotes bool            `json:"in_table_notes,omitempty"`
	Pending      *PendingHeading `json:"pending,omitempty"`
}

// Mode reports the state machine position.
func (s State) Mode() Mode {
	switch {
	case s.InTableNotes:
		return InTableNotes
	case s.ClauseID != "":
		return ClauseOpen
	default:
		return Idle
	}
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithDriverDiagnostics reports classification and numbering problems to sink.
func WithDriverDiagnostics(sink diag.Sink) DriverOption {
	return func(d *Driver) { d.sink = diag.OrDiscard(sink) }
}

// WithFilter strips page furniture from each page before parsing.
func WithFilter(f *grammar.Filter) DriverOption {
	return func(d *Driver) { d.filter = f }
}

// WithHyphenRejoin merges words hyphenated across continuation lines of a clause.
func WithHyphenRejoin(enabled bool) DriverOption {
	return func(d *Driver) { d.rejoinHyphens = enabled }
}

// WithNotesMarker replaces the pattern that opens a table-notes block.
func WithNotesMarker(re *regexp.Regexp) DriverOption {
	return func(d *Driver) { d.notesMarker = re }
}

// Driver feeds classified lines into a tree builder. A Driver and its Builder form one
// parse and must not be shared between documents.
type Driver struct {
	builder       *tree.Builder
	sink          diag.Sink
	filter        *grammar.Filter
	rejoinHyphens bool
	notesMarker   *regexp.Regexp
}

// NewDriver creates a driver emitting nodes into b.
func NewDriver(b *tree.Builder, opts ...DriverOption) *Driver {
	d := &Driver{
		builder: b,
		sink:    diag.Discard,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Builder returns the tree the driver writes to.
func (d *Driver) Builder() *tree.Builder {
	return d.builder
}

// Parse runs a whole document: every page in order, the end-of-document flush and the
// article content merge.
func (d *Driver) Parse(doc []pages.Page) *tree.Builder {
	var state State
	for _, p := range doc {
		lines := p.Lines
		if d.filter != nil {
			lines = d.filter.Page(lines)
		}
		state = d.ParsePage(state, p.Number, lines)
	}
	d.Finish(state)
	d.builder.MergeArticleContent()
	return d.builder
}

// ParsePage processes the lines of one page starting from state and returns the state to
// pass to the next page. An open clause stays open across the page boundary.
func (d *Driver) ParsePage(state State, page int, lines []string) State {
	state.Buffer = slices.Clone(state.Buffer)
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		state = d.step(state, page, i+1, line)
	}
	return state
}

// Finish ends the document: a heading still waiting for its title is titled Reserved and
// the open clause is flushed. The returned state is Idle.
func (d *Driver) Finish(state State) State {
	if state.Pending != nil {
		d.addPending(*state.Pending, grammar.ReservedTitle)
		state.Pending = nil
	}
	return d.flush(state)
}

func (d *Driver) step(state State, page, lineNum int, line string) State {
	if state.Pending != nil {
		pending := *state.Pending
		state.Pending = nil
		if grammar.TitleCandidate(line) {
			d.addPending(pending, line)
			return state
		}
		d.addPending(pending, grammar.ReservedTitle)
	}

	if id, title, ok := grammar.SectionMarker(line); ok {
		state = d.flush(state)
		state.InTableNotes = false
		d.enterSection(id, title, page)
		return state
	}

	if d.isTableNotes(line) {
		state = d.flush(state)
		state.InTableNotes = true
		return state
	}

	if tok, ok := grammar.IDOnly(line); ok {
		// A citation wrapped onto its own line ("... Article" / "9.5.3.1.") names a
		// heading that already exists.
		if _, exists := d.builder.Node(tok.ID); exists && state.ClauseID != "" {
			state.Buffer = d.appendContinuation(state.Buffer, line)
			return state
		}
		state = d.flush(state)
		state.InTableNotes = false
		state.Pending = &PendingHeading{Type: tok.Type, ID: tok.ID, Page: page}
		return state
	}

	tok := grammar.Classify(line)
	switch tok.Kind {
	case grammar.Heading:
		state = d.flush(state)
		state.InTableNotes = false
		d.builder.AddNode(tree.NodeSpec{Type: tok.Type, ID: tok.ID, Title: tok.Title, Page: page})

	case grammar.Content:
		if state.InTableNotes {
			return state
		}
		if tok.Type == grammar.TypeClause {
			state = d.flush(state)
			return d.open(state, tok, page)
		}
		if state.ClauseID == "" {
			d.unclassified(line, page, lineNum)
			return state
		}
		state.Buffer = append(state.Buffer, tok.Fragment())

	default:
		if state.InTableNotes {
			return state
		}
		if state.ClauseID == "" {
			d.unclassified(line, page, lineNum)
			return state
		}
		state.Buffer = d.appendContinuation(state.Buffer, line)
	}
	return state
}

func (d *Driver) isTableNotes(line string) bool {
	if d.notesMarker != nil {
		return d.notesMarker.MatchString(line)
	}
	return grammar.TableNotes(line)
}

func (d *Driver) addPending(p PendingHeading, title string) {
	d.builder.AddNode(tree.NodeSpec{Type: p.Type, ID: p.ID, Title: title, Page: p.Page})
}

// enterSection makes a section the open scope, creating it on first sight. Running
// section headers repeat on later pages and only re-enter the existing node.
func (d *Driver) enterSection(id, title string, page int) {
	if _, ok := d.builder.Node(id); ok {
		d.builder.Enter(id)
		return
	}
	d.builder.AddNode(tree.NodeSpec{Type: grammar.TypeSection, ID: id, Title: title, Page: page})
}

func (d *Driver) open(state State, tok grammar.Token, page int) State {
	state.Buffer = []string{tok.Text}
	if owner := d.builder.Current(); owner != "" {
		state.ClauseID = grammar.ClauseID(owner, tok.Marker)
	} else {
		// No heading is open: the clause keeps its marker as id and the builder
		// flags it as an orphan.
		state.ClauseID = "(" + tok.Marker + ")"
	}
	state.ClauseMarker = tok.Marker
	state.ClausePage = page
	return state
}

func (d *Driver) appendContinuation(buffer []string, line string) []string {
	if d.rejoinHyphens && len(buffer) > 0 {
		if joined, ok := joinHyphenated(buffer[len(buffer)-1], line); ok {
			buffer[len(buffer)-1] = joined
			return buffer
		}
	}
	return append(buffer, line)
}

// flush turns the open buffer into a clause node and returns the state with no clause open.
func (d *Driver) flush(state State) State {
	if state.ClauseID == "" {
		return state
	}

	d.checkClauseNumber(state)
	d.builder.AddNode(tree.NodeSpec{
		Type:    grammar.TypeClause,
		ID:      state.ClauseID,
		Content: strings.Join(state.Buffer, "\n"),
		Page:    state.ClausePage,
	})

	state.Buffer = nil
	state.ClauseID = ""
	state.ClauseMarker = ""
	state.ClausePage = 0
	return state
}

// checkClauseNumber reports a clause whose number does not follow the previous clause of
// the same heading. Gaps are legitimate for repealed clauses, so parsing goes on.
func (d *Driver) checkClauseNumber(state State) {
	n, err := strconv.Atoi(state.ClauseMarker)
	if err != nil {
		return
	}
	owner, ok := grammar.ParentID(grammar.TypeClause, state.ClauseID)
	if !ok {
		return
	}
	if _, exists := d.builder.Node(state.ClauseID); exists {
		return
	}

	prev := 0
	for _, child := range d.builder.Children(owner) {
		if child.Type != grammar.TypeClause {
			continue
		}
		if m, err := strconv.Atoi(child.Marker()); err == nil {
			prev = m
		}
	}

	if n != prev+1 {
		d.sink.Report(diag.Diagnostic{
			Kind:    diag.KindClauseGap,
			NodeID:  state.ClauseID,
			Page:    state.ClausePage,
			Message: fmt.Sprintf("clause (%d) follows (%d)", n, prev),
		})
	}
}

func (d *Driver) unclassified(line string, page, lineNum int) {
	d.sink.Report(diag.Diagnostic{
		Kind:    diag.KindUnclassified,
		Page:    page,
		Line:    truncate(line, 80),
		Message: fmt.Sprintf("line %d matched no pattern outside a clause", lineNum),
	})
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
