package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/loykin/ocsup"
)

// This example loads a TOML config file, starts the server through the public
// ocsup facade and keeps it running until interrupted.
func main() {
	cfgPath := filepath.Join("config", "ocsup.toml")
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := ocsup.LoadConfig(cfgPath)
	if err != nil {
		panic(err)
	}
	sup, err := ocsup.NewFromConfig(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = sup.Close() }()

	sup.Subscribe(func(e ocsup.Event) {
		if e == ocsup.EventStateChanged {
			fmt.Println("state:", sup.State())
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := sup.Start(ctx); err != nil {
		fmt.Println("start failed:", sup.LastError())
		return
	}
	fmt.Println("open", sup.URL())
	<-ctx.Done()
}
