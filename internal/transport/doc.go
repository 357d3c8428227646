// Package transport provides the bot's communication backends.
//
// HTTPClient carries request/response calls to the gateway.
// ReconnectingChannel keeps a WebSocket push connection open, reconnecting
// on a fixed interval after every loss until its context is cancelled.
// Ware provisions the backends a protocol adapter asks for:
//
//	ware, err := transport.NewWare(adapter.RequiredBackends(), settings, logger)
//	err = ware.Setup(ctx)    // http first, then ws
//	go ware.Run(runCtx)      // push channel receive loop
//	err = ware.Cleanup()     // ws first, then http
package transport
