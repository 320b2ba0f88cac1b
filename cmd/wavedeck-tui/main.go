// wavedeck-tui is the terminal front end: waveform with mouse-drag
// region selection, a per-track mixer, and hotkeys for the edit,
// separation, and export operations.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"wavedeck/internal/config"
	"wavedeck/internal/playback"
	"wavedeck/internal/processor"
	"wavedeck/internal/selection"
	"wavedeck/internal/session"
	"wavedeck/internal/stream"
	"wavedeck/internal/track"
	"wavedeck/internal/waveform"
)

var (
	// Nord palette
	nord0  = lipgloss.Color("#2E3440")
	nord1  = lipgloss.Color("#3B4252")
	nord3  = lipgloss.Color("#4C566A")
	nord4  = lipgloss.Color("#D8DEE9")
	nord8  = lipgloss.Color("#88C0D0")
	nord9  = lipgloss.Color("#81A1C1")
	nord10 = lipgloss.Color("#5E81AC")
	nord11 = lipgloss.Color("#BF616A")
	nord13 = lipgloss.Color("#EBCB8B")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(nord8)
	sectionStyle = lipgloss.NewStyle().Foreground(nord9)
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(nord3).Padding(0, 1)
	waveStyle    = lipgloss.NewStyle().Foreground(nord10)
	waveSelStyle = lipgloss.NewStyle().Foreground(nord13).Background(nord1)
	focusStyle   = lipgloss.NewStyle().Foreground(nord13)
	mutedStyle   = lipgloss.NewStyle().Foreground(nord11)
	soloStyle    = lipgloss.NewStyle().Foreground(nord13)
	statusStyle  = lipgloss.NewStyle().Foreground(nord4).Background(nord1).Padding(0, 1)
	errStyle     = lipgloss.NewStyle().Foreground(nord0).Background(nord11).Padding(0, 1)
	helpStyle    = lipgloss.NewStyle().Faint(true)
)

type evMsg session.Event
type tickMsg time.Time
type opDoneMsg struct{ err error }

type model struct {
	ctx    context.Context
	sess   *session.Session
	engine *playback.Engine
	sub    *session.Subscriber

	width  int
	height int

	sel     *selection.Selector
	focused int // index into the track snapshot
	status  string
	failed  bool

	loadInput textinput.Model
	loading   bool // load prompt visible
}

func initialModel(ctx context.Context, sess *session.Session, engine *playback.Engine) model {
	ti := textinput.New()
	ti.Placeholder = "/path/to/audio.mp3"
	ti.Prompt = "load> "
	ti.CharLimit = 4096
	ti.Width = 60

	return model{
		ctx:       ctx,
		sess:      sess,
		engine:    engine,
		sub:       sess.Subscribe(),
		sel:       selection.New(0, 0),
		loadInput: ti,
		status:    "No file loaded. Press o to open one.",
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.waitEvent(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) waitEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case e := <-m.sub.C:
			return evMsg(e)
		case <-m.sub.Done():
			return nil
		}
	}
}

// runOp dispatches a session operation off the UI loop. The busy latch
// rejects overlap, so firing is always safe.
func (m model) runOp(op func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: op(m.ctx)}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.sel.SetWidth(float64(m.waveWidth()))
		return m, nil

	case evMsg:
		switch msg.Kind {
		case session.EventProcessing:
			m.status = msg.Message
			m.failed = false
		case session.EventFailed:
			m.status = msg.Err
			m.failed = true
		case session.EventCompleted:
			if msg.URL != "" {
				m.status = fmt.Sprintf("Done: %s", msg.URL)
			} else {
				m.status = "Done."
			}
			m.failed = false
		case session.EventLoaded:
			if src := m.sess.Source(); src != nil {
				m.sel.SetDuration(src.Duration)
			}
			m.sel.Clear()
			m.status = fmt.Sprintf("Loaded %s", msg.Message)
			m.failed = false
		case session.EventUnloaded:
			m.sel.SetDuration(0)
			m.sel.Clear()
			m.status = "No file loaded. Press o to open one."
		}
		return m, m.waitEvent()

	case tickMsg:
		// playhead and busy spinner refresh
		return m, tick()

	case opDoneMsg:
		// Remote failures arrive through the event feed, but errors
		// rejected before the operation starts (no selection, busy, no
		// source, unknown track) never reach the bus. Show them here.
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.status = msg.err.Error()
			m.failed = true
		}
		return m, nil

	case tea.MouseMsg:
		return m.updateMouse(msg)

	case tea.KeyMsg:
		if m.loading {
			return m.updateLoadPrompt(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m model) updateLoadPrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		path := strings.TrimSpace(m.loadInput.Value())
		m.loading = false
		if path == "" {
			return m, nil
		}
		return m, m.runOp(func(ctx context.Context) error {
			_, err := m.sess.Load(ctx, path)
			return err
		})
	case "esc", "ctrl+c":
		m.loading = false
		return m, nil
	}
	var cmd tea.Cmd
	m.loadInput, cmd = m.loadInput.Update(msg)
	return m, cmd
}

func (m model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	snap := m.sess.Tracks().Snapshot()

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "o":
		m.loading = true
		m.loadInput.SetValue("")
		m.loadInput.Focus()
		return m, textinput.Blink
	case " ":
		m.engine.Toggle()
	case "left":
		pos, _ := m.engine.Position()
		m.engine.Seek(pos - 5)
	case "right":
		pos, _ := m.engine.Position()
		m.engine.Seek(pos + 5)
	case "x":
		m.sel.Clear()
		m.sess.ClearSelection()
		m.status = "Selection cleared."
	case "c":
		return m, m.runOp(m.sess.Cut)
	case "f":
		return m, m.runOp(func(ctx context.Context) error {
			return m.sess.Fade(ctx, "in", 3)
		})
	case "g":
		return m, m.runOp(func(ctx context.Context) error {
			return m.sess.Fade(ctx, "out", 3)
		})
	case "v":
		return m, m.runOp(m.sess.SeparateVocalMusic)
	case "i":
		return m, m.runOp(m.sess.SeparateInstruments)
	case "e":
		return m, m.runOp(func(ctx context.Context) error {
			_, err := m.sess.ExportMix(ctx, "mp3", "high")
			return err
		})
	case "E":
		if m.focused < len(snap) {
			id := snap[m.focused].ID
			return m, m.runOp(func(ctx context.Context) error {
				_, err := m.sess.ExportTrack(ctx, id, "mp3", "high")
				return err
			})
		}
	case "up", "k":
		if m.focused > 0 {
			m.focused--
		}
	case "down", "j":
		if m.focused < len(snap)-1 {
			m.focused++
		}
	case "-", "_":
		m.adjustVolume(snap, -0.05)
	case "+", "=":
		m.adjustVolume(snap, 0.05)
	case "m":
		if m.focused < len(snap) {
			muted := !snap[m.focused].Muted
			m.sess.Tracks().Update(snap[m.focused].ID, track.Patch{Muted: &muted})
		}
	case "s":
		if m.focused < len(snap) {
			solo := !snap[m.focused].Solo
			m.sess.Tracks().Update(snap[m.focused].ID, track.Patch{Solo: &solo})
		}
	}
	return m, nil
}

func (m *model) adjustVolume(snap []track.Track, delta float64) {
	if m.focused >= len(snap) {
		return
	}
	v := snap[m.focused].Volume + delta
	m.sess.Tracks().Update(snap[m.focused].ID, track.Patch{Volume: &v})
}

// waveRow and waveCol locate the waveform bar on screen for mouse hit
// testing. They must track the layout in View.
func (m model) waveRow() int {
	y := 3 // title, panel border, panel header
	if m.loading {
		y += 3
	}
	return y
}

func (m model) waveCol() int { return 2 }

func (m model) updateMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	x := float64(msg.X - m.waveCol())
	onBar := msg.Y == m.waveRow() && msg.X >= m.waveCol() && msg.X < m.waveCol()+m.waveWidth()

	switch {
	case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft:
		if onBar {
			m.sel.PointerDown(x)
		}
	case msg.Action == tea.MouseActionMotion && msg.Button == tea.MouseButtonLeft:
		if region, ok := m.sel.PointerMove(x); ok {
			m.sess.SetSelection(region)
		}
	case msg.Action == tea.MouseActionRelease && msg.Button == tea.MouseButtonLeft:
		if seek, ok := m.sel.PointerUp(x); ok {
			m.engine.Seek(seek)
		} else if !m.sel.Region().Empty() {
			m.sess.SetSelection(m.sel.Region())
		}
	}
	return m, nil
}

func (m model) waveWidth() int {
	w := m.width - 8
	if w < 20 {
		w = 20
	}
	return w
}

var waveGlyphs = []rune(" ▁▂▃▄▅▆▇█")

func (m model) renderWaveform() string {
	src := m.sess.Source()
	if src == nil {
		return helpStyle.Render("no waveform")
	}

	w := m.waveWidth()
	env := m.sess.Envelope()
	cols := resample(env, w)
	if peak := env.Peak(); peak > 0 {
		for i := range cols {
			cols[i] /= peak
		}
	}
	region := m.sel.Region()
	selStart := int(m.sel.TimeToPixel(region.Start))
	selEnd := int(m.sel.TimeToPixel(region.End))

	var b strings.Builder
	for i, v := range cols {
		g := waveGlyphs[int(math.Round(v*float64(len(waveGlyphs)-1)))]
		if !region.Empty() && i >= selStart && i <= selEnd {
			b.WriteString(waveSelStyle.Render(string(g)))
		} else {
			b.WriteString(waveStyle.Render(string(g)))
		}
	}

	// playhead ruler
	pos, dur := m.engine.Position()
	ruler := make([]rune, w)
	for i := range ruler {
		ruler[i] = ' '
	}
	if dur > 0 {
		p := int(float64(w-1) * pos / dur)
		ruler[p] = '▲'
	}

	return b.String() + "\n" + string(ruler)
}

// resample squeezes or stretches the envelope to n columns, keeping
// the peak of each bucket so transients stay visible.
func resample(env waveform.Envelope, n int) []float64 {
	out := make([]float64, n)
	if len(env) == 0 {
		return out
	}
	for i := 0; i < n; i++ {
		lo := i * len(env) / n
		hi := (i + 1) * len(env) / n
		if hi <= lo {
			hi = lo + 1
		}
		if hi > len(env) {
			hi = len(env)
		}
		peak := 0.0
		for _, v := range env[lo:hi] {
			if v > peak {
				peak = v
			}
		}
		out[i] = peak
	}
	return out
}

func renderSlider(value float64, width int) string {
	pos := int(value * float64(width-1))
	if pos < 0 {
		pos = 0
	}
	if pos >= width {
		pos = width - 1
	}
	return "[" + strings.Repeat("=", pos) + "|" + strings.Repeat("-", width-pos-1) + "]"
}

func (m model) View() string {
	var b strings.Builder
	fmt.Fprintln(&b, titleStyle.Render("wavedeck"))

	if m.loading {
		fmt.Fprintln(&b, panelStyle.Render(m.loadInput.View()))
	}

	// Waveform panel
	wavePanel := m.renderWaveform()

	src := m.sess.Source()
	header := "Waveform"
	if src != nil {
		pos, dur := m.engine.Position()
		state := "paused"
		if m.engine.Playing() {
			state = "playing"
		}
		header = fmt.Sprintf("%s  %s / %s  %s", src.Name, clock(pos), clock(dur), state)
	}
	fmt.Fprintln(&b, panelStyle.Render(sectionStyle.Render(header)+"\n"+wavePanel))

	// Selection line
	region := m.sess.Selection()
	if !region.Empty() {
		fmt.Fprintf(&b, "  Selection: %s - %s (%.2fs)\n",
			clock(region.Start), clock(region.End), region.Length())
	}

	// Mixer panel
	snap := m.sess.Tracks().Snapshot()
	if len(snap) > 0 {
		var tb strings.Builder
		fmt.Fprintln(&tb, sectionStyle.Render("Tracks"))
		sliderW := m.waveWidth() - 36
		if sliderW < 10 {
			sliderW = 10
		}
		for i, t := range snap {
			flags := "  "
			if t.Muted {
				flags = mutedStyle.Render("M ")
			}
			if t.Solo {
				flags = soloStyle.Render("S ")
			}
			line := fmt.Sprintf("%-14s %s %s %3.0f%%", t.Name, flags, renderSlider(t.Volume, sliderW), t.Volume*100)
			if i == m.focused {
				line = focusStyle.Render("> " + line)
			} else {
				line = "  " + line
			}
			fmt.Fprintln(&tb, line)
		}
		fmt.Fprintln(&b, panelStyle.Render(strings.TrimRight(tb.String(), "\n")))
	}

	// Status bar
	style := statusStyle
	if m.failed {
		style = errStyle
	}
	if st := m.sess.Status(); st.Busy {
		fmt.Fprintln(&b, style.Render(st.Message))
	} else {
		fmt.Fprintln(&b, style.Render(m.status))
	}

	fmt.Fprintln(&b, helpStyle.Render(
		"o open  space play  ←/→ seek  drag select  x clear  c cut  f/g fade  v vocals  i instruments  e export  m mute  s solo  +/- vol  q quit"))
	return b.String()
}

func clock(seconds float64) string {
	mins := int(seconds) / 60
	secs := seconds - float64(mins*60)
	return fmt.Sprintf("%d:%05.2f", mins, secs)
}

func main() {
	var file string
	flag.StringVar(&file, "file", "", "audio file to load on startup")
	flag.Parse()
	if file == "" && flag.NArg() > 0 {
		file = flag.Arg(0)
	}

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := processor.NewClient(cfg.ProcessorURL, cfg.CacheDir, cfg.RequestTimeout)

	healthCtx, healthCancel := context.WithTimeout(ctx, 30*time.Second)
	err := client.WaitForHealthy(healthCtx)
	healthCancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "audio processor not reachable at %s: %v\n", cfg.ProcessorURL, err)
		os.Exit(1)
	}

	sess := session.New(client, cfg.EnvelopeSize)
	engine := playback.NewEngine(sess.Tracks())
	go engine.Run(ctx)

	// The broadcaster drains engine frames; attach a player or the
	// /stream endpoint of the gateway to actually hear the preview.
	broadcaster := stream.NewBroadcaster()
	go broadcaster.Run(ctx, engine.Frames())
	go sess.SyncPlayback(ctx, engine)

	// TUI owns the terminal; route the stdlib logger to a file.
	if f, err := os.OpenFile(os.TempDir()+"/wavedeck-tui.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
		log.SetOutput(f)
		defer f.Close()
	}

	m := initialModel(ctx, sess, engine)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseAllMotion())

	if file != "" {
		go func() {
			if _, err := sess.Load(ctx, file); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("startup load: %v", err)
			}
		}()
	}

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
