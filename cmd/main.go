package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/civiclens/civiclens-backend/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Start(); err != nil {
		a.Log.Error("Startup failed", "error", err)
		a.Close()
		os.Exit(1)
	}
	a.Log.Info("civiclens worker running")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	a.Log.Info("Shutting down")
}
