package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-app-lock/internal/config"
	"github.com/jrsteele09/go-app-lock/internal/logger"
	"github.com/jrsteele09/go-app-lock/server"
	"github.com/jrsteele09/go-app-lock/server/parentsession"
	"github.com/jrsteele09/go-app-lock/token"
	fakeuserrepo "github.com/jrsteele09/go-app-lock/users/repofake"
	"github.com/rs/zerolog/log"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("Error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("Recovered from panic: %v", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	logger.Setup(c.GetLogLevel(), c.GetEnv())
	displayAppname(c.GetAppName())

	issuer := token.NewIssuer(
		token.NewHMACSigner(c.GetTokenSigningKey()),
		token.WithIssuerName(c.GetTokenIssuer()),
		token.WithExpiry(c.GetAppTokenExpiry()),
	)
	repos := server.Repos{
		Users:          fakeuserrepo.NewFakeUserRepo(),
		ParentSessions: parentsession.NewInMemoryRepo(),
	}
	s, err := server.New(c, repos, issuer)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	boot, err := s.InitialiseSystem(context.Background())
	if err != nil {
		return fmt.Errorf("InitialiseSystem: %w", err)
	}
	logBootstrap(boot)

	httpServer := &http.Server{Addr: c.GetPort(), Handler: s, ReadHeaderTimeout: 10 * time.Second}
	errs := make(chan error, 1)
	go func() {
		errs <- listenAndServe(httpServer)
	}()

	select {
	case err := <-errs:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

// logBootstrap prints what a workspace needs to talk to this endpoint.
func logBootstrap(boot *server.Bootstrap) {
	ev := log.Info().Str("email", boot.Email).Str("parent_token", boot.ParentToken)
	if boot.Password != "" {
		ev = ev.Str("password", boot.Password)
	}
	if boot.TOTPSecret != "" {
		ev = ev.Str("totp_secret", boot.TOTPSecret)
	}
	ev.Msg("seed user ready")
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
