// Package console implements the single external collaborator CPUTS
// writes through: a function printing a NUL-terminated kernel-space
// string, using structured logrus.Entry fields rather than bare Printf
// so every console line carries the CPU and process that produced it.
package console

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Console serializes CPUTS output from every simulated CPU and keeps a
// bounded history for the `pios ps` control endpoint and for tests.
type Console struct {
	log *logrus.Entry

	mu      sync.Mutex
	history []Line
	cap     int
}

// Line is one CPUTS write, tagged with the CPU and process table index
// that produced it.
type Line struct {
	CPUID int
	Proc  int
	Text  string
}

// New creates a Console that logs through log and retains up to
// historyCap lines (0 disables history retention).
func New(log *logrus.Entry, historyCap int) *Console {
	return &Console{log: log, cap: historyCap}
}

// Puts writes text to the console, attributed to cpuid/procIndex.
func (c *Console) Puts(cpuid, procIndex int, text string) {
	c.log.WithFields(logrus.Fields{
		"cpu":  cpuid,
		"proc": procIndex,
	}).Info(text)

	if c.cap == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, Line{CPUID: cpuid, Proc: procIndex, Text: text})
	if len(c.history) > c.cap {
		c.history = c.history[len(c.history)-c.cap:]
	}
}

// History returns a snapshot of the retained console lines, oldest first.
func (c *Console) History() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Line, len(c.history))
	copy(out, c.history)
	return out
}
