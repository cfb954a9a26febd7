// Command console is an interactive MCB master for poking at a running
// drive emulator.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	target := pflag.StringP("target", "t", "127.0.0.2:1061", "emulator UDP address")
	timeout := pflag.Duration("timeout", time.Second, "response timeout")
	interval := pflag.Duration("interval", 500*time.Millisecond, "watch polling interval")
	debug := pflag.Bool("debug", false, "log poller activity")
	pflag.Parse()

	logger := zap.NewNop()
	if *debug {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			fmt.Fprintf(os.Stderr, "console: %v\n", err)
			os.Exit(1)
		}
	}
	defer logger.Sync()

	c, err := NewConsole(*target, *timeout, *interval, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "console: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	c.Run(ctx, cancel)
}
