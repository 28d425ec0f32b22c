// Command ignite-ping runs a minimal, protocol-free liveness responder:
// reply PONG\r\n to any line sent over TCP. It shares the reactor/session
// plumbing the cache server uses but carries no cache state of its own.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/iamNilotpal/ignite/internal/pingsrv"
	"github.com/iamNilotpal/ignite/pkg/logger"
)

func main() {
	flagSet := flag.NewFlagSet("ignite-ping", flag.ContinueOnError)
	flagSet.SetOutput(os.Stderr)
	addr := flagSet.StringP("addr", "a", ":11299", "bind address")
	showVersion := flagSet.BoolP("version", "v", false, "show version number")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}
	if *showVersion {
		fmt.Println("ignite-ping version dev")
		return
	}

	log := logger.New("ignite-ping")
	srv, err := pingsrv.New(pingsrv.Config{Addr: *addr, Logger: log})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ignite-ping: %v\n", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		srv.Shutdown()
	}()

	log.Infow("listening", "addr", srv.Addr().String())
	if err := srv.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "ignite-ping: %v\n", err)
		os.Exit(1)
	}
	srv.Close()
}
