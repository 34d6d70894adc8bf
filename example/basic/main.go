// Example basic runs an in-process registry with channel and callback
// subscribers.
//
// Usage:
//
//	go run ./example/basic
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync/atomic"

	"github.com/hedeqiang/telreg"
	"github.com/hedeqiang/telreg/broadcast"
	"github.com/hedeqiang/telreg/capability"
	mw "github.com/hedeqiang/telreg/middleware"
	"github.com/hedeqiang/telreg/status"
	"github.com/hedeqiang/telreg/subscriber"
)

func main() {
	ctx := context.Background()

	sticky := broadcast.NewSticky(nil)
	metrics := mw.NewMetrics()
	r := telreg.New(
		telreg.WithSink(sticky),
		telreg.WithChecker(capability.AllowAll),
		telreg.WithMiddleware(metrics),
	)
	defer r.Close()

	// --- Subscriber 1: Channel-based, calls and signal ---
	ch := subscriber.NewChannel(64)
	err := r.Listen(ctx, telreg.Subscription{
		ID:        "dialer",
		Label:     "dialer",
		Listener:  ch,
		Mask:      status.MaskOf(status.CallStateField, status.SignalStrengthField),
		NotifyNow: true,
	})
	if err != nil {
		log.Fatal(err)
	}

	// --- Subscriber 2: Callback-based, data connection ---
	var cbCount atomic.Int64
	cb := subscriber.NewCallback(func(u subscriber.Update) {
		n := cbCount.Add(1)
		fmt.Printf("[Callback] #%d %s=%s\n", n, u.Field, u.DataState)
	})
	err = r.Listen(ctx, telreg.Subscription{
		ID:       subscriber.NewID(),
		Label:    "statusbar",
		Listener: cb,
		Mask:     status.MaskOf(status.DataConnectionStateField),
	})
	if err != nil {
		log.Fatal(err)
	}

	r.NotifySignalStrength(17)
	r.NotifyCallState(status.CallRinging, "555-0100")
	r.NotifyCallState(status.CallOffhook, "")
	r.NotifyDataConnection(status.DataConnected, true, "", "internet", "rmnet0")
	r.NotifyDataConnectionFailed("roaming disabled")

	ch.Close()
	for u := range ch.Updates() {
		switch u.Field {
		case status.CallStateField:
			fmt.Printf("[Channel]  call=%s number=%q\n", u.CallState, u.IncomingNumber)
		case status.SignalStrengthField:
			fmt.Printf("[Channel]  signal asu=%d\n", u.SignalStrength)
		}
	}

	if a, ok := sticky.Last(broadcast.TopicPhoneState); ok {
		fmt.Printf("sticky %s: %v\n", a.Topic, a.Fields)
	}
	fmt.Printf("delivered: %v\n", metrics.Snapshot().Delivered)

	fmt.Println()
	if err := r.Dump(ctx, os.Stdout); err != nil {
		log.Fatal(err)
	}
}
