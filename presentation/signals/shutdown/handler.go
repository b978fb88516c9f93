package shutdown

import (
	"context"
	"os"
	"sshcore/application/logging"
	infraSignal "sshcore/infrastructure/signal"
	"sshcore/presentation/signals"
	"sync"
)

type Handler struct {
	// appCtx is application context.
	// If this context is cancelled - handler must stop its job and return.
	appCtx context.Context
	// appCtxCancel - cancellation func that must be used to cancel appCtx.
	appCtxCancel context.CancelFunc
	// signalChan - channel of signals that handler is supposed to handle (shutdown signals in this case)
	signalChan chan os.Signal
	once       sync.Once
	// signalProvider is used to provide shutdown signal set for current platform.
	signalProvider infraSignal.Provider
	// notifier used to subscribe to OS Signal and to unsubscribe from it
	notifier signals.Notifier
	logger   logging.Logger
}

func NewHandler(
	appCtx context.Context,
	appCtxCancel context.CancelFunc,
	signalProvider infraSignal.Provider,
	notifier signals.Notifier,
	logger logging.Logger,
) signals.Handler {
	return &Handler{
		appCtx:       appCtx,
		appCtxCancel: appCtxCancel,
		// Note: 1-sized buffer used as os/signal uses non-blocking sends and may drop signals if unbuffered.
		signalChan:     make(chan os.Signal, 1),
		signalProvider: signalProvider,
		notifier:       notifier,
		logger:         logger,
	}
}

func (h *Handler) Handle() {
	h.once.Do(func() {
		h.listenAndHandleShutdownSignals()
	})
}

func (h *Handler) listenAndHandleShutdownSignals() {
	h.subscribe()
	go func() {
		defer h.unsubscribe()
		select {
		case sig := <-h.signalChan:
			h.logger.Printf("Shutdown signal (%v) received. Disconnecting clients...", sig)
			h.appCtxCancel()
		case <-h.appCtx.Done():
		}
	}()
}

func (h *Handler) subscribe() {
	h.notifier.Notify(h.signalChan, h.signalProvider.ShutdownSignals()...)
}

func (h *Handler) unsubscribe() {
	h.notifier.Stop(h.signalChan)
}
