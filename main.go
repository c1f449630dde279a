package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/blaxel-ai/session-core/internal/agent"
	"github.com/blaxel-ai/session-core/internal/registry"
	"github.com/blaxel-ai/session-core/src/api"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug(".env file not found, continuing with process environment")
	}

	port := flag.Int("port", 8080, "port to listen on")
	shortPort := flag.Int("p", 8080, "port to listen on (shorthand)")
	name := flag.String("session", "default", "name of the local demo session to create on startup")
	shell := flag.String("shell", "", "shell command the local agent spawns per shell (defaults to $SHELL, then /bin/sh)")
	flag.Parse()

	portValue := *port
	if *shortPort != 8080 {
		portValue = *shortPort
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := registry.New()
	sess, _ := reg.GetOrCreate(*name)

	localAgent := agent.New(sess, *shell, logrus.WithField("component", "agent"))
	go localAgent.Run(ctx)

	router := api.SetupRouter(reg, false, true)

	serverAddr := fmt.Sprintf(":%d", portValue)
	logrus.Infof("session core listening on %s, demo session %q", serverAddr, *name)
	go func() {
		if err := router.Run(serverAddr); err != nil {
			logrus.Fatalf("server exited: %v", err)
		}
	}()

	<-ctx.Done()
	logrus.Info("shutting down")
	sess.Shutdown()
}
