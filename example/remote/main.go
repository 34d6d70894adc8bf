// Example remote serves a registry over HTTP and follows it from a
// reconnecting WebSocket watcher.
//
// Usage:
//
//	go run ./example/remote
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hedeqiang/telreg"
	"github.com/hedeqiang/telreg/broadcast"
	"github.com/hedeqiang/telreg/capability"
	"github.com/hedeqiang/telreg/internal/server"
	"github.com/hedeqiang/telreg/status"
	"github.com/hedeqiang/telreg/subscriber"
	"github.com/hedeqiang/telreg/transport"
	"github.com/hedeqiang/telreg/watcher"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sticky := broadcast.NewSticky(nil)
	reg := telreg.New(
		telreg.WithSink(sticky),
		telreg.WithChecker(capability.AllowAll),
	)
	defer reg.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Fatal(err)
	}
	base := "http://" + ln.Addr().String()

	srv := server.New(server.Config{Registry: reg, Sticky: sticky})
	go func() {
		if err := srv.ServeListener(ctx, ln); err != nil {
			log.Printf("server: %v", err)
		}
	}()

	// Follow call state and signal strength over CBOR frames.
	cfg := watcher.DefaultConfig(base)
	cfg.Options = transport.DialOptions{
		Mask:  status.MaskOf(status.CallStateField, status.SignalStrengthField),
		Label: "remote-example",
		Codec: transport.CBOR,
	}
	w := watcher.New(cfg, subscriber.NewCallback(func(u subscriber.Update) {
		fmt.Printf("[Remote] %s call=%s asu=%d\n", u.Field, u.CallState, u.SignalStrength)
	}))
	w.OnError(func(err error) { log.Printf("watcher: %v", err) })
	go func() {
		if err := w.Watch(ctx); err != nil {
			log.Printf("watch: %v", err)
		}
	}()

	// Producer side: report changes through the HTTP API.
	client := transport.NewHTTP(base, "")
	asu := 10
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	fmt.Println("Reporting changes... Press Ctrl+C to stop.")
	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			fmt.Println("Shutting down...")
			return
		case <-ticker.C:
			asu = (asu + 3) % 32
			if err := client.Notify(ctx, "signal_strength", transport.NotifyRequest{ASU: &asu}); err != nil {
				log.Printf("notify: %v", err)
			}
		}
	}
}
