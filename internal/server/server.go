package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/yohannes-mesay/cursor-hackathon/internal/hub"
	"github.com/yohannes-mesay/cursor-hackathon/internal/router"
	"github.com/yohannes-mesay/cursor-hackathon/internal/server/middleware"
	"github.com/yohannes-mesay/cursor-hackathon/pkg/config"
	"github.com/yohannes-mesay/cursor-hackathon/pkg/protocol"
	"github.com/yohannes-mesay/cursor-hackathon/pkg/session"
	"github.com/yohannes-mesay/cursor-hackathon/pkg/session/sessionmanager"
	"github.com/yohannes-mesay/cursor-hackathon/pkg/transport"
)

type App struct {
	logger      *slog.Logger
	sessions    session.Manager
	hub         *hub.Hub
	eventRouter *router.EventRouter
	wg          sync.WaitGroup
	http        *http.Server
	config      *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config) *App {
	sessions := sessionmanager.NewInMemoryManager(logger)
	h := hub.New(logger, sessions, hub.Config{TypingTTL: cfg.Chat.TypingTTL})
	eventRouter := router.NewEventRouter(logger, sessions, h)

	app := &App{
		logger:      logger,
		sessions:    sessions,
		hub:         h,
		eventRouter: eventRouter,
		config:      cfg,
		ctx:         rootCtx,
	}

	mux := http.NewServeMux()
	upgradeHandler := http.HandlerFunc(app.upgradeHandler)
	// Create a cycler function that closes over the session manager and logger.
	connCycler := func(ip string) {
		oldest, found := sessions.FindOldestConnectionByIP(ip)
		if found {
			logger.Info("Cycling connection: closing oldest", slog.String("ip", ip), slog.String("connID", oldest.ID.String()))
			oldest.Transport.Close(errors.New("connection cycled by new connection"))
		}
	}

	mux.Handle("/ws",
		middleware.Chain(upgradeHandler,
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(app.logger),
			middleware.NewConnectionLimiter(
				logger,
				sessions.CountConnectionsByIP,
				connCycler,
				app.config.Server.ConnectionLimit,
			),
			middleware.NewTokenGate(logger, app.config.Server.Auth.JWTSecret),
		),
	)

	app.http = &http.Server{Addr: app.config.Server.Address, Handler: mux, BaseContext: func(l net.Listener) context.Context {
		return app.ctx
	}}

	return app
}

// Handler exposes the app's HTTP handler so it can be served by an
// external listener, e.g. httptest.
func (a *App) Handler() http.Handler {
	return a.http.Handler
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(slog.String("remoteAddr", reqMeta.IP))

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig{
			ReadTimeout:  a.config.Transport.ReadTimeout,
			PingInterval: a.config.Transport.PingInterval,
		},
		nil,
		nil,
		a.logger,
	)
	// register new connection
	stateConn, err := a.sessions.RegisterConnection(conn, reqMeta.IP)
	if err != nil {
		connLogger.Error("Failed to register connection state", slog.Any("error", err))
		conn.Close(err)
		return
	}
	// When the token gate authenticated the request, pre-bind that
	// identity; the client's own announce-presence may still refine it.
	if reqMeta.UserID != "" {
		if err := a.sessions.Announce(stateConn.ID, protocol.Identity{UserID: reqMeta.UserID, UserName: reqMeta.UserID}); err != nil {
			connLogger.Error("Failed to pre-bind authenticated identity", slog.Any("error", err))
		}
	}

	conn.SetOnMessageHandler(a.eventRouter.HandleMessage)
	conn.SetOnCloseHandler(func(id uuid.UUID, err error) {
		connLogger.Info("Cleaning up connection due to closure", slog.String("connID", id.String()))
		a.hub.HandleDisconnect(id)
	})

	connLogger.Info("Connection fully established", slog.String("connID", stateConn.ID.String()))
	conn.Run()
	// Fresh sockets get the roster immediately.
	a.hub.HandleConnect(stateConn)
	<-conn.Done()
}

// graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// close all active WebSocket connections.
	a.logger.Info("Closing all active connections...")
	for _, conn := range a.sessions.AllConnections() {
		conn.Transport.Close(errors.New("graceful shutdown"))
	}

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
