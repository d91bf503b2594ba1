package console

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func newTestConsole(cap int) *Console {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return New(logrus.NewEntry(log), cap)
}

func TestPutsRecordsHistory(t *testing.T) {
	c := newTestConsole(4)
	c.Puts(0, 1, "hi")
	c.Puts(0, 1, "there")

	hist := c.History()
	if len(hist) != 2 {
		t.Fatalf("len(History()) = %d, want 2", len(hist))
	}
	if hist[0].Text != "hi" || hist[1].Text != "there" {
		t.Fatalf("unexpected history contents: %+v", hist)
	}
}

func TestHistoryIsBounded(t *testing.T) {
	c := newTestConsole(2)
	c.Puts(0, 0, "a")
	c.Puts(0, 0, "b")
	c.Puts(0, 0, "c")

	hist := c.History()
	if len(hist) != 2 {
		t.Fatalf("len(History()) = %d, want 2", len(hist))
	}
	if hist[0].Text != "b" || hist[1].Text != "c" {
		t.Fatalf("expected oldest entry evicted, got %+v", hist)
	}
}

func TestHistoryDisabledWhenCapZero(t *testing.T) {
	c := newTestConsole(0)
	c.Puts(0, 0, "ignored")
	if got := c.History(); len(got) != 0 {
		t.Fatalf("History() = %v, want empty", got)
	}
}
