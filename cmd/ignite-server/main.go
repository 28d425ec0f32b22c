// Command ignite-server runs the segment-structured cache: the
// memcache-ASCII-protocol listener, its worker pool, and (if configured)
// the admin surface, all driven by a single JWCC config file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/iamNilotpal/ignite/pkg/ignite"
	"github.com/iamNilotpal/ignite/pkg/options"
)

const (
	exitOK        = 0
	exitConfigErr = 1
	exitPanic     = 101
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut *os.File) (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(errOut, "ignite-server: panic: %v\n", r)
			code = exitPanic
		}
	}()

	flagSet := flag.NewFlagSet("ignite-server", flag.ContinueOnError)
	flagSet.SetOutput(errOut)
	flagSet.Usage = func() {
		fmt.Fprintln(flagSet.Output(), "Usage: ignite-server [options] [config-file]")
		fmt.Fprintln(flagSet.Output(), "\nOptions:")
		flagSet.PrintDefaults()
	}

	showVersion := flagSet.BoolP("version", "v", false, "show version number")
	showConfig := flagSet.BoolP("config", "c", false, "list and describe all configuration options")
	showStats := flagSet.BoolP("stats", "s", false, "list and describe all stats exposed by the admin surface")

	if err := flagSet.Parse(args); err != nil {
		return exitConfigErr
	}

	if *showVersion {
		fmt.Fprintf(out, "ignite-server version %s\n", version)
		return exitOK
	}
	if *showConfig {
		describeConfig(out)
		return exitOK
	}
	if *showStats {
		describeStats(out)
		return exitOK
	}

	configFile := ""
	if flagSet.NArg() > 0 {
		configFile = flagSet.Arg(0)
	}

	o, err := options.Load(configFile)
	if err != nil {
		fmt.Fprintf(errOut, "ignite-server: config error: %v\n", err)
		return exitConfigErr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	inst, err := ignite.NewInstance(ctx, "ignite-server", func(opts *options.Options) { *opts = o })
	if err != nil {
		fmt.Fprintf(errOut, "ignite-server: startup error: %v\n", err)
		return exitConfigErr
	}

	if err := inst.Serve(ctx); err != nil {
		fmt.Fprintf(errOut, "ignite-server: %v\n", err)
		return exitConfigErr
	}
	return exitOK
}

func describeConfig(out *os.File) {
	fmt.Fprintln(out, "server.socket_addr    bind address of the cache listener")
	fmt.Fprintln(out, "server.nevent         max events per poll")
	fmt.Fprintln(out, "server.timeout        poll timeout in ms")
	fmt.Fprintln(out, "server.klog_sample_rate  log 1-in-N requests (1 = log all, 0 = disabled)")
	fmt.Fprintln(out, "worker.threads        1 = single-worker topology, >1 = multi-worker")
	fmt.Fprintln(out, "worker.nevent         max events per poll")
	fmt.Fprintln(out, "worker.timeout        poll timeout in ms")
	fmt.Fprintln(out, "seg.heap_size         arena size in bytes")
	fmt.Fprintln(out, "seg.segment_size      fixed segment size in bytes")
	fmt.Fprintln(out, "seg.hash_power        log2 of primary hash bucket count")
	fmt.Fprintln(out, "seg.overflow_factor   overflow bucket pool scale")
	fmt.Fprintln(out, "seg.eviction          none | random | fifo | cte | util | merge")
	fmt.Fprintln(out, "seg.merge_max         segments scanned per merge attempt")
	fmt.Fprintln(out, "seg.merge_target      least-utilized segments packed per attempt")
	fmt.Fprintln(out, "seg.compact_target    fallback-to-fifo occupancy threshold")
	fmt.Fprintln(out, "seg.datapool_path     optional file-backed snapshot path")
	fmt.Fprintln(out, "seg.graceful_shutdown persist snapshot on clean exit")
	fmt.Fprintln(out, "time.time_type        unix | delta | memcache")
	fmt.Fprintln(out, "tls.cert_path, tls.chain_path, tls.key_path   all-or-none")
	fmt.Fprintln(out, "admin_socket_addr     bind address of the admin listener (empty disables it)")
}

func describeStats(out *os.File) {
	fmt.Fprintln(out, "segments_total    total segments in the arena")
	fmt.Fprintln(out, "segments_free     segments on the free list")
	fmt.Fprintln(out, "segment_size      configured segment size in bytes")
	fmt.Fprintln(out, "heap_bytes        segments_total * segment_size")
}
