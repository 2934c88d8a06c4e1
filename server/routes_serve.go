// routes_serve.go - Server-Start und Lifecycle-Management
// Enthaelt: Serve() - Hauptfunktion zum Starten des HTTP-Servers

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/speedster/speedster/device"
	"github.com/speedster/speedster/envconfig"
	"github.com/speedster/speedster/logutil"
	"github.com/speedster/speedster/store"
	"github.com/speedster/speedster/version"
)

// Serve startet den HTTP-Server und blockiert bis SIGINT/SIGTERM
func Serve(ln net.Listener) error {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
	slog.Info("server config", "env", envconfig.Values())

	var st *store.Store
	if !envconfig.NoTelemetryDB() {
		var err error
		st, err = store.Open(store.DefaultPath())
		if err != nil {
			return err
		}
		defer st.Close()
	}

	s := New(ln.Addr(), st, nil, slog.Default())

	ctx, done := context.WithCancel(context.Background())
	defer done()

	srvr := &http.Server{
		Handler:     s.GenerateRoutes(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// listen for a ctrl+c and cancel running optimizations
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		done()
		srvr.Close()
	}()

	for _, d := range device.Devices() {
		slog.Info("inference compute", "kind", d.Kind, "name", d.Name, "cores", d.Cores)
	}

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))
	err := srvr.Serve(ln)
	// If server is closed from the signal handler, wait for the ctx to be done
	// otherwise error out quickly
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-ctx.Done()
	return nil
}
