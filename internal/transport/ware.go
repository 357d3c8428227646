// ABOUTME: Provisions the communication backends a protocol adapter requires
// ABOUTME: Sets them up in dependency order, runs their daemons and tears them down

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrUnsupportedBackend is returned for a backend kind the ware cannot provide.
var ErrUnsupportedBackend = errors.New("unsupported backend")

// Kind names a communication backend.
type Kind string

const (
	KindHTTPClient Kind = "http_client"
	KindWSClient   Kind = "ws_client"
)

// Settings describes where the backends connect.
type Settings struct {
	HTTP              Endpoint
	WS                Endpoint
	WSPath            string
	ReconnectInterval time.Duration
	RequestTimeout    time.Duration
}

// Ware owns the provisioned backends.
type Ware struct {
	logger *slog.Logger

	http *HTTPClient
	ws   *ReconnectingChannel

	// httpUp tracks whether the shared HTTP client was brought up here.
	httpUp bool
	wsUp   bool
}

// NewWare provisions one backend per kind. The push channel borrows the
// HTTP client when both point at the same endpoint and owns a private one
// otherwise.
func NewWare(kinds []Kind, settings Settings, logger *slog.Logger) (*Ware, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Ware{logger: logger.With("component", "ware")}

	for _, k := range kinds {
		if k != KindHTTPClient && k != KindWSClient {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, k)
		}
	}

	httpOpts := []HTTPOption{}
	if settings.RequestTimeout > 0 {
		httpOpts = append(httpOpts, WithRequestTimeout(settings.RequestTimeout))
	}

	if slices.Contains(kinds, KindHTTPClient) {
		w.http = NewHTTPClient(settings.HTTP, logger, httpOpts...)
	}
	if slices.Contains(kinds, KindWSClient) {
		chOpts := []ChannelOption{WithReconnectInterval(settings.ReconnectInterval)}
		if settings.WSPath != "" {
			chOpts = append(chOpts, WithPath(settings.WSPath))
		}
		if w.http != nil && w.http.Endpoint() == settings.WS {
			w.ws = NewReconnectingChannel(w.http, false, logger, chOpts...)
		} else {
			base := NewHTTPClient(settings.WS, logger, httpOpts...)
			w.ws = NewReconnectingChannel(base, true, logger, chOpts...)
		}
	}
	return w, nil
}

// HTTP returns the HTTP backend, or nil if it was not requested.
func (w *Ware) HTTP() *HTTPClient {
	return w.http
}

// WS returns the push channel, or nil if it was not requested.
func (w *Ware) WS() *ReconnectingChannel {
	return w.ws
}

// Setup brings up the HTTP backend and then the push channel. On failure
// whatever was already up is cleaned up again.
func (w *Ware) Setup(ctx context.Context) error {
	if w.http != nil {
		if err := w.http.Setup(ctx); err != nil {
			return fmt.Errorf("%w: http client: %w", ErrSetupFailed, err)
		}
		w.httpUp = true
	}
	if w.ws != nil {
		if err := w.ws.Setup(ctx); err != nil {
			if cerr := w.Cleanup(); cerr != nil {
				w.logger.Error("cleanup after failed setup", "error", cerr)
			}
			return err
		}
		w.wsUp = true
	}
	w.logger.Info("backends ready", "http", w.http != nil, "ws", w.ws != nil)
	return nil
}

// Run runs every backend daemon until ctx is cancelled or all of them return.
func (w *Ware) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if w.ws != nil {
		g.Go(func() error {
			return w.ws.Run(gctx)
		})
	}
	return g.Wait()
}

// Cleanup tears backends down in reverse setup order.
func (w *Ware) Cleanup() error {
	var errs []error
	if w.ws != nil && w.wsUp {
		if err := w.ws.Cleanup(); err != nil {
			errs = append(errs, fmt.Errorf("push channel: %w", err))
		}
		w.wsUp = false
	}
	if w.http != nil && w.httpUp {
		if err := w.http.Cleanup(); err != nil {
			errs = append(errs, fmt.Errorf("http client: %w", err))
		}
		w.httpUp = false
	}
	return errors.Join(errs...)
}
