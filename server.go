package oauth

import (
	"log/slog"

	"github.com/giantswarm/appleid-oauth/providers"
	"github.com/giantswarm/appleid-oauth/server"
	"github.com/giantswarm/appleid-oauth/storage"
)

// Server is the login orchestrator the HTTP handlers delegate to
type Server = server.Server

// ServerConfig configures a Server
type ServerConfig = server.Config

// LoginResult is the outcome of a successful login
type LoginResult = server.Result

// NewServer creates a Server. userStore may be nil when users are not persisted.
func NewServer(
	provider providers.Provider,
	stateStore storage.StateStore,
	userStore storage.UserStore,
	config *ServerConfig,
	logger *slog.Logger,
) (*Server, error) {
	return server.New(provider, stateStore, userStore, config, logger)
}
