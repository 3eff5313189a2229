// Command inspect is the legacy static viewer: it runs one demo sync
// round to completion and then draws the round outcome and each
// mirror's outcome and ack-map size in a gocui panel, for operators who script against the older
// termbox-based tooling instead of syncmon's live bubbletea view.
package main

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/jroimartin/gocui"
	runewidth "github.com/mattn/go-runewidth"

	"github.com/relaymq/relaymq/internal/membership"
	"github.com/relaymq/relaymq/internal/memqueue"
	"github.com/relaymq/relaymq/pkg/bq"
	"github.com/relaymq/relaymq/pkg/mirrorsync"
)

func main() {
	result := runDemoRound()

	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		log.Fatalln("inspect:", err)
	}
	defer g.Close()

	g.SetManagerFunc(layout(result))
	if err := g.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, quit); err != nil {
		log.Fatalln("inspect:", err)
	}
	if err := g.SetKeybinding("", 'q', gocui.ModNone, quit); err != nil {
		log.Fatalln("inspect:", err)
	}

	if err := g.MainLoop(); err != nil && err != gocui.ErrQuit {
		log.Fatalln("inspect:", err)
	}
}

func quit(*gocui.Gui, *gocui.View) error { return gocui.ErrQuit }

func runDemoRound() mirrorsync.RoundResult {
	master := memqueue.NewPriority()
	batch := make([]bq.PublishRecord, 0, 200)
	for i := 0; i < 200; i++ {
		batch = append(batch, bq.PublishRecord{
			Msg:   bq.Msg{ID: bq.MsgID(fmt.Sprintf("msg-%d", i)), Payload: []byte("x")},
			Props: bq.Props{Priority: uint8(i % 4)},
		})
	}
	master.BatchPublish(batch)

	bus := membership.NewMem()
	participants := []mirrorsync.MirrorParticipant{
		{ID: "mirror-a", BQ: memqueue.NewPriority()},
		{ID: "mirror-b", BQ: memqueue.NewPriority()},
	}

	return mirrorsync.RunRound(context.Background(), mirrorsync.RoundConfig{
		MasterBQ:  master,
		Mirrors:   participants,
		Bus:       bus,
		BatchSize: 32,
	})
}

func layout(result mirrorsync.RoundResult) func(*gocui.Gui) error {
	return func(g *gocui.Gui) error {
		maxX, maxY := g.Size()

		if v, err := g.SetView("summary", 0, 0, maxX-1, 3); err != nil {
			if err != gocui.ErrUnknownView {
				return err
			}
			v.Title = "round summary"
			fmt.Fprintf(v, " outcome=%s reason=%q\n", result.Master.Kind, result.Master.Reason)
		}

		if v, err := g.SetView("mirrors", 0, 4, maxX-1, maxY-1); err != nil {
			if err != gocui.ErrUnknownView {
				return err
			}
			v.Title = "mirror ack-maps (q to quit)"
			renderMirrors(v, result)
		}
		return nil
	}
}

func renderMirrors(v *gocui.View, result mirrorsync.RoundResult) {
	ids := make([]string, 0, len(result.Mirrors))
	for id := range result.Mirrors {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	for _, id := range ids {
		outcome := result.Mirrors[mirrorsync.MirrorID(id)]
		name := runewidth.FillRight(id, 12)
		fmt.Fprintf(v, " %s  outcome=%-8s acks=%d\n", name, outcome.Kind, len(outcome.AckMap))
	}
}
