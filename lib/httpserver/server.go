// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpserver runs an http.Handler on a TCP address and,
// optionally, a unix-domain socket, with graceful shutdown when the
// serving context is cancelled.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"
)

// DefaultShutdownTimeout bounds how long in-flight requests may run
// after shutdown begins.
const DefaultShutdownTimeout = 10 * time.Second

// Config configures a Server.
type Config struct {
	// Address is the TCP listen address, e.g. "127.0.0.1:8000".
	Address string

	// Socket is an optional unix-domain socket path served alongside
	// the TCP address. A leftover file at the path is removed first.
	Socket string

	Handler         http.Handler
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

// Server serves HTTP until its context is cancelled.
type Server struct {
	config Config
	ready  chan struct{}
	addr   net.Addr
}

// New validates config and returns a Server. Call Serve to listen.
func New(config Config) (*Server, error) {
	if config.Address == "" {
		return nil, errors.New("httpserver: address is required")
	}
	if config.Handler == nil {
		return nil, errors.New("httpserver: handler is required")
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultShutdownTimeout
	}
	return &Server{config: config, ready: make(chan struct{})}, nil
}

// Ready is closed once every listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr is the resolved TCP address. Valid after Ready is closed.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Serve binds the listeners and blocks until ctx is cancelled or a
// listener fails. On cancellation it stops accepting connections and
// waits up to ShutdownTimeout for active requests. The socket file is
// removed on return.
func (s *Server) Serve(ctx context.Context) error {
	listeners, err := s.listen()
	if err != nil {
		return err
	}
	s.addr = listeners[0].Addr()
	close(s.ready)

	server := &http.Server{
		Handler:           s.config.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErrors := make(chan error, len(listeners))
	for _, listener := range listeners {
		s.config.Logger.Info("listening", "network", listener.Addr().Network(), "address", listener.Addr().String())
		go func() {
			if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErrors <- fmt.Errorf("serving %s: %w", listener.Addr(), err)
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		s.config.Logger.Info("http server shutting down")
	case serveErr = <-serveErrors:
		s.config.Logger.Error("http server failed", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	shutdownErr := server.Shutdown(shutdownCtx)
	if s.config.Socket != "" {
		os.Remove(s.config.Socket)
	}
	if serveErr != nil {
		return serveErr
	}
	if shutdownErr != nil {
		return fmt.Errorf("http server shutdown: %w", shutdownErr)
	}
	s.config.Logger.Info("http server stopped")
	return nil
}

func (s *Server) listen() ([]net.Listener, error) {
	tcp, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", s.config.Address, err)
	}
	listeners := []net.Listener{tcp}
	if s.config.Socket == "" {
		return listeners, nil
	}

	if err := os.Remove(s.config.Socket); err != nil && !errors.Is(err, os.ErrNotExist) {
		tcp.Close()
		return nil, fmt.Errorf("removing stale socket %s: %w", s.config.Socket, err)
	}
	unixListener, err := net.Listen("unix", s.config.Socket)
	if err != nil {
		tcp.Close()
		return nil, fmt.Errorf("listening on %s: %w", s.config.Socket, err)
	}
	return append(listeners, unixListener), nil
}
