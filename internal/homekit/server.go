package homekit

import (
	"context"
	"errors"
	"fmt"

	"github.com/brutella/hap"

	"github.com/nerrad567/gray-logic-garage/internal/infrastructure/config"
)

// ErrInvalidPin is returned when the configured setup code is not 8 digits.
var ErrInvalidPin = errors.New("homekit: pin must be 8 digits")

// Server publishes the accessories over HAP.
type Server struct {
	hap    *hap.Server
	logger Logger
}

// NewServer creates a HAP server for the accessories. Pairing data lives
// in cfg.StoragePath and survives restarts.
//
// Parameters:
//   - cfg: HomeKit section of the bridge configuration
//   - accessories: Door opener and optional light from NewAccessories
//
// Returns:
//   - *Server: Ready to Run
//   - error: ErrInvalidPin, or a hap setup failure
func NewServer(cfg config.HomeKitConfig, accessories *Accessories, logger Logger) (*Server, error) {
	if !validPin(cfg.Pin) {
		return nil, ErrInvalidPin
	}

	list := accessories.List()
	srv, err := hap.NewServer(hap.NewFsStore(cfg.StoragePath), list[0], list[1:]...)
	if err != nil {
		return nil, fmt.Errorf("creating hap server: %w", err)
	}
	srv.Pin = cfg.Pin
	srv.Addr = cfg.Addr

	return &Server{hap: srv, logger: logger}, nil
}

// Run serves HAP until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.Info("homekit server starting", "addr", s.hap.Addr)
	}
	err := s.hap.ListenAndServe(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("homekit server: %w", err)
	}
	return nil
}

func validPin(pin string) bool {
	if len(pin) != 8 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
