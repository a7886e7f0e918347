package devices

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrNoDeviceAvailable = errors.New("devices: no cast receivers found")
	ErrOutOfRange        = errors.New("devices: device index out of range")
)

// DefaultDiscoveryTimeout bounds one discovery pass.
const DefaultDiscoveryTimeout = 3 * time.Second

// DefaultCastPort is the receiver control port when mDNS omits it.
const DefaultCastPort = 8009

// CastDevice is a receiver found during a discovery pass.
type CastDevice struct {
	ModelName    string
	FriendlyName string
	Host         string
	Port         int
	ID           string
	AudioOnly    bool
}

// Addr returns the host:port of the receiver's control channel.
func (d CastDevice) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

func (d CastDevice) String() string {
	return fmt.Sprintf("%s (%s) %s", d.FriendlyName, d.ModelName, d.Host)
}

// Registry holds the result of the latest discovery pass.
type Registry struct {
	timeout time.Duration
	log     zerolog.Logger

	mu      sync.RWMutex
	devices []CastDevice
}

// NewRegistry returns an empty registry whose passes last timeout.
func NewRegistry(timeout time.Duration, log zerolog.Logger) *Registry {
	if timeout <= 0 {
		timeout = DefaultDiscoveryTimeout
	}

	return &Registry{
		timeout: timeout,
		log:     log.With().Str("Component", "devices").Logger(),
	}
}

// Discover runs one mDNS pass and replaces the registry contents with its
// result. Devices keep the order their answers arrived in. Finding nothing
// is not an error.
func (r *Registry) Discover(ctx context.Context) ([]CastDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("Discover: %w", err)
	}

	found := discoverChromecasts(ctx, r.timeout)

	r.mu.Lock()
	r.devices = found
	r.mu.Unlock()

	r.log.Debug().Str("Method", "Discover").Int("Devices", len(found)).Msg("discovery pass finished")
	return r.Devices(), nil
}

// Devices returns a copy of the current pass's list.
func (r *Registry) Devices() []CastDevice {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]CastDevice, len(r.devices))
	copy(out, r.devices)
	return out
}

// Select returns the device at index i of the current pass.
func (r *Registry) Select(i int) (CastDevice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i < 0 || i >= len(r.devices) {
		return CastDevice{}, fmt.Errorf("%w: %d of %d", ErrOutOfRange, i, len(r.devices))
	}

	return r.devices[i], nil
}
