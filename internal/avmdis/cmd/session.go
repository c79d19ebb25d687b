package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/x/term"
	"github.com/hashicorp/go-multierror"

	"avmdis/internal/analysis"
	"avmdis/internal/config"
	"avmdis/internal/detectors"
	"avmdis/internal/disasm"
	"avmdis/internal/dumpx"
	"avmdis/internal/pool"
	"avmdis/internal/report"
	"avmdis/internal/traits"
	"avmdis/internal/ui/colorize"
)

// session holds one opened dump and everything needed to decode it.
type session struct {
	cfg    *config.Config
	image  *dumpx.Image
	names  pool.Lookup
	traits *traits.Decoder
	chain  *analysis.DetectorChain
}

func openSession(c *config.Config, path string) (*session, error) {
	chain, err := detectorChain(c.Detect)
	if err != nil {
		return nil, err
	}

	names := pool.Empty
	if c.Names != "" {
		n, err := pool.Load(c.Names)
		if err != nil {
			return nil, err
		}
		slog.Debug("Loaded names", "file", c.Names, "count", n.Len())
		names = n
	}

	im, err := dumpx.Open(path, c.BaseAddress())
	if err != nil {
		return nil, err
	}
	slog.Debug("Opened dump", "file", path, "format", im.Format, "size", im.Size())

	return &session{
		cfg:    c,
		image:  im,
		names:  names,
		traits: traits.NewDecoder(names),
		chain:  chain,
	}, nil
}

func (s *session) Close() error {
	return s.image.Close()
}

// detectorChain builds the xref detectors enabled in d. Pattern detectors
// run in tag order so output is stable.
func detectorChain(d config.Detect) (*analysis.DetectorChain, error) {
	chain := analysis.NewDetectorChain()
	if d.Crypto {
		chain.Add(detectors.NewCryptoDetector())
	}
	tags := make([]string, 0, len(d.Patterns))
	for tag := range d.Patterns {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		nm, err := detectors.NewNameMatch(tag, d.Patterns[tag])
		if err != nil {
			return nil, fmt.Errorf("detect pattern %q: %w", tag, err)
		}
		chain.Add(nm)
	}
	if d.Unresolved {
		chain.Add(detectors.Unresolved{})
	}
	return chain, nil
}

// addresses parses address flags. With none given it returns the dump base
// when orBase is set, so a bare method dump decodes from its first byte.
func (s *session) addresses(args []string, orBase bool) ([]uint64, error) {
	if len(args) == 0 {
		if orBase {
			return []uint64{s.image.Base}, nil
		}
		return nil, nil
	}
	out := make([]uint64, 0, len(args))
	for _, a := range args {
		va, err := dumpx.ParseAddress(a)
		if err != nil {
			return nil, err
		}
		out = append(out, va)
	}
	return out, nil
}

// decodeMethod decodes the method body at va. With codeOnly set the
// exception table and activation traits are not read.
func (s *session) decodeMethod(va uint64, codeOnly bool) (*disasm.Body, error) {
	c, err := s.image.CursorAt(va)
	if err != nil {
		return nil, err
	}
	if codeOnly {
		d, err := disasm.Disassemble(c)
		return &disasm.Body{Disassembly: d}, err
	}
	return disasm.DecodeBody(c, s.traits, s.names)
}

// xrefs resolves and tags the class references of body.
func (s *session) xrefs(body *disasm.Body) []analysis.Xref {
	if body == nil {
		return nil
	}
	return s.chain.Detect(analysis.ResolveXrefs(body.Disassembly, s.names))
}

// methodResult is one decoded method with its error, if any.
type methodResult struct {
	Address uint64
	Body    *disasm.Body
	Xrefs   []analysis.Xref
	Err     error
}

// decodeMethods decodes every address. A failing method is recorded and
// the rest still decode; the returned error aggregates all failures.
func (s *session) decodeMethods(addrs []uint64, codeOnly bool) ([]methodResult, error) {
	var result *multierror.Error
	out := make([]methodResult, 0, len(addrs))
	for _, va := range addrs {
		body, err := s.decodeMethod(va, codeOnly)
		if err != nil {
			err = fmt.Errorf("method %#x: %w", va, err)
			slog.Warn("Method decode failed", "address", fmt.Sprintf("%#x", va), "error", err)
			result = multierror.Append(result, err)
		}
		out = append(out, methodResult{Address: va, Body: body, Xrefs: s.xrefs(body), Err: err})
	}
	return out, result.ErrorOrNil()
}

// traitResult is one decoded trait section.
type traitResult struct {
	Address uint64
	Traits  traits.Table
	Err     error
}

// decodeTraits decodes the trait section at every address. With list set
// each address holds a bare trait list rather than a full section.
func (s *session) decodeTraits(addrs []uint64, list bool) ([]traitResult, error) {
	var result *multierror.Error
	out := make([]traitResult, 0, len(addrs))
	for _, va := range addrs {
		t, err := s.decodeTraitsAt(va, list)
		if err != nil {
			err = fmt.Errorf("traits %#x: %w", va, err)
			result = multierror.Append(result, err)
		}
		out = append(out, traitResult{Address: va, Traits: t, Err: err})
	}
	return out, result.ErrorOrNil()
}

func (s *session) decodeTraitsAt(va uint64, list bool) (traits.Table, error) {
	c, err := s.image.CursorAt(va)
	if err != nil {
		return nil, err
	}
	if list {
		return s.traits.DecodeList(c, nil)
	}
	return s.traits.Decode(c, nil)
}

// buildReport collects decode results into an export document.
func (s *session) buildReport(methods []methodResult, sections []traitResult) *report.Report {
	r := &report.Report{
		File:   s.image.Path,
		Digest: report.Digest(s.image.All),
		Base:   s.image.Base,
	}
	for _, m := range methods {
		r.Methods = append(r.Methods, report.NewMethod(m.Address, m.Body, m.Xrefs, m.Err))
	}
	for _, t := range sections {
		r.Traits = append(r.Traits, report.NewTraitSet(t.Address, t.Traits, t.Err))
	}
	return r
}

// listing renders an annotated listing of m, including the exception table
// and activation traits when they were decoded.
func (s *session) listing(m methodResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "; method %#x\n", m.Address)
	if m.Err != nil {
		fmt.Fprintf(&b, "; error: %v\n", m.Err)
	}
	if m.Body == nil || m.Body.Disassembly == nil {
		return b.String()
	}

	d := m.Body.Disassembly
	fmt.Fprintf(&b, "; max_stack %d, locals %d, scope %d..%d, code %#x..%#x\n",
		d.Header.MaxStack, d.Header.LocalCount, d.Header.InitScopeDepth, d.Header.MaxScopeDepth, d.Start, d.End)
	for _, ai := range analysis.Annotate(d, s.image.All, s.names) {
		b.WriteString(ai.String())
		b.WriteByte('\n')
	}
	for i, e := range m.Body.Exceptions {
		fmt.Fprintf(&b, "; exception %d: %s..%s -> %s type %s var %s\n", i,
			analysis.Label(d.Start+int(e.From)), analysis.Label(d.Start+int(e.To)),
			analysis.Label(d.Start+int(e.Target)),
			nameOrIndex(s.names, e.ExcType), nameOrIndex(s.names, e.VarName))
	}
	for _, t := range m.Body.Traits {
		fmt.Fprintf(&b, "; activation %s %s id=%d\n", t.Kind, displayName(t), t.ID)
	}
	return b.String()
}

// colorEnabled reports whether listings written to w should be highlighted.
func colorEnabled(w io.Writer, c *config.Config) bool {
	if c.NoColor || colorize.Disabled() {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(f.Fd())
}

// writeListing writes text to w, highlighted when color is enabled.
func writeListing(w io.Writer, c *config.Config, text string) error {
	if colorEnabled(w, c) {
		if colored, err := colorize.ColorizeListing(text); err == nil {
			text = colored
		} else {
			slog.Debug("Listing colorization failed", "error", err)
		}
	}
	_, err := io.WriteString(w, text)
	return err
}

func nameOrIndex(l pool.Lookup, idx uint32) string {
	if idx == 0 {
		return "*"
	}
	if name := pool.Resolve(l, idx); name != "" {
		return analysis.EscapeUnprintable([]byte(name))
	}
	return fmt.Sprintf("#%d", idx)
}

func displayName(t traits.Trait) string {
	if t.Name != "" {
		return analysis.EscapeUnprintable([]byte(t.Name))
	}
	return fmt.Sprintf("#%d", t.NameIndex)
}
