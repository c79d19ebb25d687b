package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"

	"avmdis/internal/analysis"
	"avmdis/internal/avm2"
	"avmdis/internal/config"
	"avmdis/internal/disasm"
	"avmdis/internal/dumpx"
	"avmdis/internal/pool"
	"avmdis/internal/report"
	"avmdis/internal/store"
	"avmdis/internal/stream"
	"avmdis/internal/traits"
)

const base = 0x1000

// body assembles a method body with an empty exception table and no
// activation traits.
func body(code ...byte) []byte {
	var b []byte
	for _, v := range []uint32{2, 1, 0, 1, uint32(len(code))} {
		b = stream.AppendVarint(b, v)
	}
	b = append(b, code...)
	return append(b, 0, 0)
}

// fixture lays out a good method at 0x10, an aborting one at 0x40 and a
// bare trait list at 0x60.
func fixture() []byte {
	buf := make([]byte, 0x80)
	copy(buf[0x10:], body(
		byte(avm2.OpGetLocal0),
		byte(avm2.OpPushScope),
		byte(avm2.OpGetLex), 42,
		byte(avm2.OpCoerce), 9,
		byte(avm2.OpPop),
		byte(avm2.OpReturnVoid),
	))
	copy(buf[0x40:], body(0xFF))
	// one slot: name 5, tag 0, slot id 1, type 9, value 0
	copy(buf[0x60:], []byte{1, 5, 0x00, 1, 9, 0})
	return buf
}

var fixtureNames = map[uint32]string{
	5:  "key",
	9:  "String",
	42: "com.game.crypto::Cipher",
}

func testSession(t *testing.T) *session {
	t.Helper()
	c := config.Default()
	c.NoColor = true
	chain, err := detectorChain(c.Detect)
	require.NoError(t, err)
	names := pool.NewNames(fixtureNames)
	return &session{
		cfg:    c,
		image:  dumpx.FromBytes(fixture(), base),
		names:  names,
		traits: traits.NewDecoder(names),
		chain:  chain,
	}
}

func TestOpenSession(t *testing.T) {
	dir := t.TempDir()
	dump := filepath.Join(dir, "dump.bin")
	require.NoError(t, os.WriteFile(dump, fixture(), 0o644))
	namesFile := filepath.Join(dir, "names.txt")
	require.NoError(t, os.WriteFile(namesFile, []byte("42 com.game.crypto::Cipher\n9 String\n"), 0o644))

	c := config.Default()
	c.Names = namesFile
	c.Base = "0x1000"
	s, err := openSession(c, dump)
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, uint64(base), s.image.Base)
	require.Equal(t, "com.game.crypto::Cipher", pool.Resolve(s.names, 42))

	c.Names = filepath.Join(dir, "missing.json")
	_, err = openSession(c, dump)
	require.Error(t, err)
}

func TestDetectorChainFromConfig(t *testing.T) {
	chain, err := detectorChain(config.Detect{
		Patterns: map[string]string{"ui": `^flash\.display::`, "net": `^flash\.net::`},
	})
	require.NoError(t, err)
	require.Equal(t, 2, chain.Len())
	out := chain.Detect(namedXrefs("flash.display::Sprite", "flash.net::URLLoader"))
	require.Equal(t, []string{"ui"}, out[0].Tags)
	require.Equal(t, []string{"net"}, out[1].Tags)

	_, err = detectorChain(config.Detect{Patterns: map[string]string{"bad": "("}})
	require.ErrorContains(t, err, `"bad"`)
}

func namedXrefs(names ...string) []analysis.Xref {
	out := make([]analysis.Xref, len(names))
	for i, n := range names {
		out[i] = analysis.Xref{Opcode: avm2.OpGetLex, Index: uint32(i + 1), Name: n, Resolved: true}
	}
	return out
}

func TestAddresses(t *testing.T) {
	s := testSession(t)
	tests := []struct {
		name   string
		args   []string
		orBase bool
		want   []uint64
		err    bool
	}{
		{"default to base", nil, true, []uint64{base}, false},
		{"none", nil, false, nil, false},
		{"hex and decimal", []string{"0x1010", "4160"}, true, []uint64{0x1010, 0x1040}, false},
		{"invalid", []string{"0xzz"}, true, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.addresses(tt.args, tt.orBase)
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRunDis(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runDis(&out, testSession(t), []uint64{0x1010}, false))

	text := out.String()
	require.Contains(t, text, "; method 0x1010\n")
	require.Contains(t, text, "; max_stack 2, locals 1, scope 0..1, code 0x15..0x1d\n")
	require.Contains(t, text, "getlex")
	require.Contains(t, text, "; com.game.crypto::Cipher")
	require.Contains(t, text, "; String")
	require.NotContains(t, text, "\x1b[")
}

func TestRunDisAggregatesFailures(t *testing.T) {
	var out bytes.Buffer
	err := runDis(&out, testSession(t), []uint64{0x1010, 0x1040, 0x9000}, false)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	require.Len(t, merr.Errors, 2)
	require.True(t, disasm.IsAborted(merr.Errors[0]))
	require.ErrorIs(t, merr.Errors[1], stream.ErrOutOfBounds)

	// The good method is still listed, and so are both failures.
	text := out.String()
	require.Contains(t, text, "getlex")
	require.Contains(t, text, "; method 0x1040\n; error: method 0x1040: unknown opcode")
	require.Contains(t, text, "; method 0x9000\n; error:")
}

func TestRunTraits(t *testing.T) {
	s := testSession(t)

	var out bytes.Buffer
	require.NoError(t, runTraits(&out, s, []uint64{0x1060}, true, traitFilter{}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "; traits 0x1060", lines[0])
	require.Contains(t, lines[1], "slot")
	require.Contains(t, lines[1], "key")
	require.True(t, strings.HasSuffix(lines[1], "id=1 type=String"), lines[1])

	out.Reset()
	require.NoError(t, runTraits(&out, s, []uint64{0x1060}, true, traitFilter{slotType: "ByteArray"}))
	require.Equal(t, "; traits 0x1060\n", out.String())

	out.Reset()
	require.NoError(t, runTraits(&out, s, []uint64{0x1060}, true, traitFilter{kind: traits.Method, hasKind: true}))
	require.Equal(t, "; traits 0x1060\n", out.String())
}

func TestParseKind(t *testing.T) {
	k, err := parseKind("Getter")
	require.NoError(t, err)
	require.Equal(t, traits.Getter, k)
	_, err = parseKind("kind(5)")
	require.Error(t, err)
}

func TestRunXrefs(t *testing.T) {
	s := testSession(t)
	tests := []struct {
		name string
		opts xrefOptions
		want []string
	}{
		{"raw", xrefOptions{raw: true}, []string{"42", "9"}},
		{"all", xrefOptions{}, []string{
			"1017     getlex           42     com.game.crypto::Cipher [crypto]",
			"1019     coerce           9      String",
		}},
		{"namespace first", xrefOptions{namespace: "crypto", first: true}, []string{
			"1017     getlex           42     com.game.crypto::Cipher [crypto]",
		}},
		{"no namespace match", xrefOptions{namespace: "net", first: true}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			require.NoError(t, runXrefs(&out, s, []uint64{0x1010}, tt.opts))
			got := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
			if tt.want == nil {
				require.Empty(t, strings.TrimSpace(out.String()))
				return
			}
			for i := range got {
				got[i] = strings.SplitN(got[i], " ; ", 2)[0]
			}
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRunExportJSON(t *testing.T) {
	var out bytes.Buffer
	err := runExport(context.Background(), &out, testSession(t),
		[]uint64{0x1010}, []uint64{0x1060}, exportOptions{format: "json", list: true})
	require.NoError(t, err)

	var r report.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &r))
	require.True(t, strings.HasPrefix(r.RunID, "run_"))
	require.Equal(t, uint64(base), r.Base)
	require.Len(t, r.Methods, 1)
	require.Len(t, r.Methods[0].Instructions, 6)
	require.Len(t, r.Methods[0].Xrefs, 2)
	require.Len(t, r.Traits, 1)
	require.Equal(t, "key", r.Traits[0].Traits[0].Name)
}

func TestRunExportDatabase(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	db := filepath.Join(dir, "runs.sqlite")
	cborOut := filepath.Join(dir, "report.cbor")

	var out bytes.Buffer
	err := runExport(ctx, &out, testSession(t), []uint64{0x1010, 0x1040}, nil,
		exportOptions{format: "cbor", out: cborOut, db: db})
	require.True(t, disasm.IsAborted(err))
	require.Contains(t, out.String(), "saved run_")

	data, err := os.ReadFile(cborOut)
	require.NoError(t, err)
	r, err := report.DecodeCBOR(data)
	require.NoError(t, err)
	require.Len(t, r.Methods, 2)
	require.NotEmpty(t, r.Methods[1].Error)

	st, err := store.Open(ctx, db)
	require.NoError(t, err)
	defer st.Close()

	out.Reset()
	require.NoError(t, runRuns(ctx, &out, st, runsQuery{}))
	require.Contains(t, out.String(), "2 methods, 1 failed")

	out.Reset()
	require.NoError(t, runRuns(ctx, &out, st, runsQuery{xref: "Cipher"}))
	require.Contains(t, out.String(), "getlex")
	require.Contains(t, out.String(), "[crypto]")

	out.Reset()
	require.NoError(t, runRuns(ctx, &out, st, runsQuery{run: r.RunID, method: 0x1010, hasMethod: true}))
	require.Equal(t, r.RunID+" 0x1010: 6 instructions\n", out.String())

	err = runRuns(ctx, &out, st, runsQuery{run: "run_missing", method: 0x1010, hasMethod: true})
	require.ErrorIs(t, err, store.ErrRunNotFound)
}

func TestRunNoTUI(t *testing.T) {
	var out bytes.Buffer
	// 0x1060 read as a full descriptor has one interface and no traits.
	require.NoError(t, runNoTUI(&out, testSession(t), []uint64{0x1010}, []uint64{0x1060}))

	text := out.String()
	require.Contains(t, text, "# <memory>")
	require.Contains(t, text, "## method 0x1010")
	require.Contains(t, text, "; method 0x1010")
	require.Contains(t, text, "; traits 0x1060")
}

func TestModelLoad(t *testing.T) {
	s := testSession(t)
	m := NewModel(s, []uint64{0x1010, 0x1040}, []uint64{0x1060})
	require.True(t, m.loading)
	require.Contains(t, m.View(), "Q: quit")

	msg := loadCmd(s, m.methods, m.sections)()
	loaded, ok := msg.(loadedMsg)
	require.True(t, ok)
	require.Error(t, loaded.err)
	require.Len(t, loaded.items, 3)

	first := loaded.items[0].(entryItem)
	require.Equal(t, "6 instructions, 2 xrefs", first.detail)
	require.Contains(t, first.content, "getlex")
	require.True(t, loaded.items[1].(entryItem).failed)

	next, _ := m.Update(loaded)
	m = next.(model)
	require.False(t, m.loading)
	require.NotNil(t, m.report)
	require.Equal(t, viewEntries, m.nextMode())

	next, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = next.(model)
	require.Equal(t, 120, m.width)
	require.Contains(t, m.View(), "E: entries")
}

func TestSchemaCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"schema"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())
	require.Contains(t, out.String(), `"noColor"`)
}
