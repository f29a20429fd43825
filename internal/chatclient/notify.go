package chatclient

import (
	"fmt"
	"io"
	"os"
)

// Notifier is a local attention cue for incoming messages. Failures are
// logged and otherwise ignored; a cue never blocks message delivery.
type Notifier interface {
	Notify() error
}

// BellNotifier rings the terminal bell.
type BellNotifier struct {
	out io.Writer
}

// NewBellNotifier returns a notifier writing the bell to stdout.
func NewBellNotifier() *BellNotifier {
	return &BellNotifier{out: os.Stdout}
}

func (n *BellNotifier) Notify() error {
	_, err := fmt.Fprint(n.out, "\a")
	return err
}

// NopNotifier discards notification cues.
type NopNotifier struct{}

func (NopNotifier) Notify() error { return nil }
