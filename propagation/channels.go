package propagation

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/telemetry/config"
)

// ErrMissingDefaultChannel signals a configuration without the required
// "default" channel for a medium.
var ErrMissingDefaultChannel = errors.New("propagation requires a default channel")

// Channels is the immutable set of propagators built from one
// configuration snapshot. Reconfiguration builds a fresh Channels value
// and swaps it in whole.
type Channels struct {
	http   map[string]*HTTPPropagator
	binary map[string]*BinaryPropagator
}

// NewChannels builds every configured propagation channel. Both media
// must define the "default" channel.
func NewChannels(cfg *config.Config, logger *zap.Logger) (*Channels, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, ok := cfg.Propagation.HTTP[config.DefaultChannel]; !ok {
		return nil, fmt.Errorf("http: %w", ErrMissingDefaultChannel)
	}
	if _, ok := cfg.Propagation.Binary[config.DefaultChannel]; !ok {
		return nil, fmt.Errorf("binary: %w", ErrMissingDefaultChannel)
	}

	c := &Channels{
		http:   make(map[string]*HTTPPropagator, len(cfg.Propagation.HTTP)),
		binary: make(map[string]*BinaryPropagator, len(cfg.Propagation.Binary)),
	}
	for name, channel := range cfg.Propagation.HTTP {
		c.http[name] = newHTTPPropagator(name, channel, logger)
	}
	for name, channel := range cfg.Propagation.Binary {
		c.binary[name] = newBinaryPropagator(name, channel, logger)
	}
	return c, nil
}

// HTTP returns the named HTTP channel.
func (c *Channels) HTTP(name string) (*HTTPPropagator, bool) {
	p, ok := c.http[name]
	return p, ok
}

// DefaultHTTP returns the required default HTTP channel.
func (c *Channels) DefaultHTTP() *HTTPPropagator {
	return c.http[config.DefaultChannel]
}

// Binary returns the named binary channel.
func (c *Channels) Binary(name string) (*BinaryPropagator, bool) {
	p, ok := c.binary[name]
	return p, ok
}

// DefaultBinary returns the required default binary channel.
func (c *Channels) DefaultBinary() *BinaryPropagator {
	return c.binary[config.DefaultChannel]
}
