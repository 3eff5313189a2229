// Command syncmon runs a mirror-sync round against an in-memory demo
// queue and renders it live. By default it draws a bubbletea TUI;
// --headless drops to line-oriented structured logging instead, for
// CI logs or terminals bubbletea can't take over.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	logging "github.com/ipfs/go-log/v2"

	"github.com/relaymq/relaymq/internal/membership"
	"github.com/relaymq/relaymq/internal/memqueue"
	"github.com/relaymq/relaymq/pkg/bq"
	"github.com/relaymq/relaymq/pkg/metrics"
	"github.com/relaymq/relaymq/pkg/mirrorsync"
)

func main() {
	headless := flag.Bool("headless", false, "log events as lines instead of drawing a TUI")
	depth := flag.Int("depth", 5000, "number of demo messages to seed the master queue with")
	mirrors := flag.Int("mirrors", 3, "number of demo mirrors")
	batch := flag.Int("batch", 256, "flush batch size B")
	flag.Parse()

	events := make(chan mirrorsync.Event, 256)
	result := make(chan mirrorsync.RoundResult, 1)

	go func() {
		result <- runDemoRound(*depth, *mirrors, *batch, events)
		close(events)
	}()

	if *headless {
		runHeadless(events, result)
		return
	}
	runTUI(events, result, *depth)
}

func runDemoRound(depth, mirrorCount, batch int, events chan<- mirrorsync.Event) mirrorsync.RoundResult {
	master := seededFlat(depth)
	bus := membership.NewMem()

	participants := make([]mirrorsync.MirrorParticipant, 0, mirrorCount)
	for i := 0; i < mirrorCount; i++ {
		id := mirrorsync.MirrorID(fmt.Sprintf("mirror-%d", i))
		participants = append(participants, mirrorsync.MirrorParticipant{ID: id, BQ: memqueue.NewFlat()})
	}

	return mirrorsync.RunRound(context.Background(), mirrorsync.RoundConfig{
		MasterBQ:  master,
		Mirrors:   participants,
		Bus:       bus,
		BatchSize: batch,
		Events:    events,
	})
}

func seededFlat(depth int) bq.BQ {
	f := memqueue.NewFlat()
	batch := make([]bq.PublishRecord, 0, depth)
	for i := 0; i < depth; i++ {
		batch = append(batch, bq.PublishRecord{
			Msg: bq.Msg{ID: bq.MsgID(fmt.Sprintf("msg-%d", i)), Payload: []byte("payload")},
		})
	}
	f.BatchPublish(batch)
	return f
}

func runHeadless(events <-chan mirrorsync.Event, result <-chan mirrorsync.RoundResult) {
	logging.SetupLogging(logging.Config{Stderr: true, Level: logging.LevelInfo, Format: logging.ColorizedOutput})
	log := logging.Logger("syncmon")

	for ev := range events {
		log.Infow(string(ev.Type), "ref", ev.Ref.String(), "fields", ev.Fields)
	}
	res := <-result
	log.Infow("round_complete", "outcome", res.Master.Kind.String(), "reason", res.Master.Reason)
	for id, m := range res.Mirrors {
		log.Infow("mirror_outcome", "mirror", string(id), "outcome", m.Kind.String(), "acks", len(m.AckMap))
	}
}

func runTUI(events chan mirrorsync.Event, result chan mirrorsync.RoundResult, total int) {
	p := tea.NewProgram(newModel(events, result, total))
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "syncmon:", err)
		os.Exit(1)
	}
}

var (
	indigo = lipgloss.Color("#5A56E0")
	green  = lipgloss.Color("#2ECC71")
	red    = lipgloss.Color("#E74C3C")
	dim    = lipgloss.Color("240")
)

type tickMsg time.Time

type model struct {
	events   <-chan mirrorsync.Event
	result   <-chan mirrorsync.RoundResult
	log      *metrics.Logger
	lines    []string
	metrics  metrics.RoundMetrics
	done     bool
	outcome  string
	width    int
	total    int
	progress progress.Model
}

func newModel(events <-chan mirrorsync.Event, result <-chan mirrorsync.RoundResult, total int) model {
	return model{
		events:   events,
		result:   result,
		log:      metrics.NewLogger(),
		width:    80,
		total:    total,
		progress: progress.New(progress.WithDefaultGradient()),
	}
}

func (m model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func waitForEvent(events <-chan mirrorsync.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return ev
	}
}

func waitForResult(result <-chan mirrorsync.RoundResult) tea.Cmd {
	return func() tea.Msg {
		return <-result
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = msg.Width - 4
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
		return m, nil
	case mirrorsync.Event:
		m.applyEvent(msg)
		return m, waitForEvent(m.events)
	case mirrorsync.RoundResult:
		m.done = true
		m.outcome = msg.Master.Kind.String()
		return m, tea.Quit
	case nil:
		return m, waitForResult(m.result)
	}
	return m, nil
}

func (m *model) applyEvent(ev mirrorsync.Event) {
	m.metrics.Ref = ev.Ref.String()
	switch ev.Type {
	case mirrorsync.EventBatchSent:
		if sent, ok := ev.Fields["sent"].(int); ok {
			m.metrics.Sent = sent
		}
	case mirrorsync.EventMirrorReady:
		m.metrics.MirrorsLive++
	case mirrorsync.EventMirrorDenied:
		m.metrics.MirrorsDenied++
	case mirrorsync.EventMirrorDown:
		m.metrics.MirrorsDown++
	case mirrorsync.EventCreditBlocked:
		m.metrics.CreditBlocked++
	case mirrorsync.EventCreditBump:
		m.metrics.CreditBumps++
	}
	m.log.Log(m.metrics)

	line := fmt.Sprintf("%s  %-16s %v", ev.Time.Format("15:04:05.000"), ev.Type, ev.Fields)
	m.lines = append(m.lines, line)
	if len(m.lines) > 20 {
		m.lines = m.lines[len(m.lines)-20:]
	}
}

func (m model) View() string {
	header := lipgloss.NewStyle().Bold(true).Foreground(indigo).Render("relaymq syncmon")
	status := lipgloss.NewStyle().Foreground(green)
	if m.done && m.outcome != "ok" && m.outcome != "already_synced" {
		status = lipgloss.NewStyle().Foreground(red)
	}

	stat := fmt.Sprintf("ref=%s sent=%d live=%d denied=%d down=%d blocked=%d bumps=%d",
		m.metrics.Ref, m.metrics.Sent, m.metrics.MirrorsLive, m.metrics.MirrorsDenied,
		m.metrics.MirrorsDown, m.metrics.CreditBlocked, m.metrics.CreditBumps)

	body := status.Render(stat)

	percent := 0.0
	if m.total > 0 {
		percent = float64(m.metrics.Sent) / float64(m.total)
	}
	bar := m.progress.ViewAs(percent)

	hist := lipgloss.NewStyle().Foreground(dim).Render(joinLines(m.lines))

	footer := "press q to quit"
	if m.done {
		footer = fmt.Sprintf("round finished: %s", m.outcome)
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body, bar, hist, footer)
}

func joinLines(lines []string) string {
	out := ""
	for _, l := range lines {
		out += l + "\n"
	}
	return out
}
