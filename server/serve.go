// serve.go - Server-Start und Shutdown
// Enthaelt: Serve() - startet den HTTP-Server und wartet auf Signale

package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cnnbench/cnnbench/envconfig"
	"github.com/cnnbench/cnnbench/logutil"
	"github.com/cnnbench/cnnbench/store"
	"github.com/cnnbench/cnnbench/version"
)

// Serve answers API requests on ln until SIGINT or SIGTERM.
func Serve(ln net.Listener) error {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
	slog.Info("server config", "env", envconfig.Values())

	s := &Server{addr: ln.Addr()}

	if !envconfig.NoRecord() {
		st, err := store.Open(store.DefaultPath())
		if err != nil {
			return err
		}
		defer st.Close()
		s.store = st
	}

	h, err := s.GenerateRoutes()
	if err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))
	srvr := &http.Server{Handler: h}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		srvr.Close()
	}()

	err = srvr.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
