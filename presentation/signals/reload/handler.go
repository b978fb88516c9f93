package reload

import (
	"context"
	"os"
	"sshcore/application/logging"
	infraSignal "sshcore/infrastructure/signal"
	"sshcore/presentation/signals"
	"sync"
)

// Handler calls reload for every reload signal until ctx is done. Unlike
// shutdown, a reload signal may arrive any number of times.
type Handler struct {
	ctx            context.Context
	reload         func()
	signalChan     chan os.Signal
	once           sync.Once
	signalProvider infraSignal.Provider
	notifier       signals.Notifier
	logger         logging.Logger
}

func NewHandler(
	ctx context.Context,
	reload func(),
	signalProvider infraSignal.Provider,
	notifier signals.Notifier,
	logger logging.Logger,
) signals.Handler {
	return &Handler{
		ctx:            ctx,
		reload:         reload,
		signalChan:     make(chan os.Signal, 1),
		signalProvider: signalProvider,
		notifier:       notifier,
		logger:         logger,
	}
}

func (h *Handler) Handle() {
	h.once.Do(func() {
		sigs := h.signalProvider.ReloadSignals()
		if len(sigs) == 0 {
			return
		}
		h.notifier.Notify(h.signalChan, sigs...)
		go h.loop()
	})
}

func (h *Handler) loop() {
	defer h.notifier.Stop(h.signalChan)
	for {
		select {
		case sig := <-h.signalChan:
			h.logger.Printf("Reload signal (%v) received. Reloading negotiation policy...", sig)
			h.reload()
		case <-h.ctx.Done():
			return
		}
	}
}
