// Command testserver runs the mock API used by the example flows.
//
// Usage:
//
//	testserver [-host localhost] [-port 8080] [-log-level info]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"flowload/internal/log"
	"flowload/internal/testserver"
)

func main() {
	port := flag.Int("port", 8080, "port to listen on")
	host := flag.String("host", "localhost", "host to bind to")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	if err := log.Init(*logLevel, "console", os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	defer log.Sync()

	addr := fmt.Sprintf("%s:%d", *host, *port)
	fmt.Println("flowload test server")
	fmt.Println("====================")
	fmt.Printf("Listening on http://%s\n\n", addr)
	fmt.Println("Endpoints:")
	fmt.Println("  GET    /health              - Health check")
	fmt.Println("  GET    /status/{code}       - Return a specific status code")
	fmt.Println("  GET    /delay/{ms}          - Delay the response")
	fmt.Println("  ANY    /echo                - Echo method, query and body")
	fmt.Println("  GET    /fail-rate           - Fail a percentage of requests (?rate=10)")
	fmt.Println("  GET    /flaky/{key}         - 503 for the first n calls (?fail=n)")
	fmt.Println("  GET    /headers             - Echo request headers")
	fmt.Println("  POST   /auth/login          - Issue a bearer token")
	fmt.Println("  POST   /auth/logout         - Revoke the token (auth)")
	fmt.Println("  GET    /users/me            - Current user (auth)")
	fmt.Println("  GET    /items, POST /items  - List or create items (auth)")
	fmt.Println("  GET    /items/{id}, DELETE  - Read or delete an item (auth)")
	fmt.Println()

	srv := &http.Server{
		Addr:              addr,
		Handler:           testserver.NewServer().Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.L().Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.L().Fatal("server failed", zap.Error(err))
	}
}
