package signals

import (
	"os"
	"os/signal"
)

type Notifier interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

// Handler subscribes to a set of OS signals and reacts to them until its
// context is done.
type Handler interface {
	Handle()
}

// OSNotifier delivers real process signals via os/signal.
type OSNotifier struct {
}

func NewOSNotifier() *OSNotifier {
	return &OSNotifier{}
}

func (s *OSNotifier) Notify(c chan<- os.Signal, sig ...os.Signal) {
	signal.Notify(c, sig...)
}

func (s *OSNotifier) Stop(c chan<- os.Signal) {
	signal.Stop(c)
}
