package server

import (
	"github.com/Hamiltonwise/signalsai-sub006/internal/logging"
)

type Config struct {
	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr string
	// AllowedOrigins feeds the CORS middleware. Empty allows any origin.
	AllowedOrigins []string
	Logger         logging.Logger
}

func DefaultConfig() Config {
	return Config{ListenAddr: ":8080", AllowedOrigins: []string{"*"}}
}
