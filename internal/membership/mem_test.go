package membership

import (
	"testing"

	"github.com/relaymq/relaymq/pkg/roundref"
)

func TestBroadcastSyncStartDeliversToEveryListener(t *testing.T) {
	bus := NewMem()
	a := bus.Listen("a")
	b := bus.Listen("b")

	ref := roundref.New()
	if err := bus.BroadcastSyncStart(ref, []MirrorID{"a", "b"}); err != nil {
		t.Fatalf("BroadcastSyncStart: %v", err)
	}

	if got := <-a; got != ref {
		t.Fatalf("mirror a got %v, want %v", got, ref)
	}
	if got := <-b; got != ref {
		t.Fatalf("mirror b got %v, want %v", got, ref)
	}
}

func TestBroadcastSyncStartReportsUnreachableMirrors(t *testing.T) {
	bus := NewMem()
	bus.Listen("a")

	ref := roundref.New()
	err := bus.BroadcastSyncStart(ref, []MirrorID{"a", "ghost"})
	if err == nil {
		t.Fatal("expected an error naming the unreachable mirror")
	}
}

func TestUnlistenStopsFurtherDelivery(t *testing.T) {
	bus := NewMem()
	bus.Listen("a")
	bus.Unlisten("a")

	if err := bus.BroadcastSyncStart(roundref.New(), []MirrorID{"a"}); err == nil {
		t.Fatal("expected an error after Unlisten removed the only listener")
	}
}
