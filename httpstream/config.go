package httpstream

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"pipelined.dev/player/pipe"
	"pipelined.dev/player/port"
)

// Defaults of Config.
const (
	DefaultTimeout       = 30 * time.Second
	DefaultBlockSize     = 4096
	DefaultBlocks        = 4
	DefaultMaxReconnects = 5
	// MaxRedirects bounds number of hops of a single request.
	MaxRedirects = 10
)

// Config of HTTP transport.
type Config struct {
	// Timeout bounds dial, TLS handshake and response header wait.
	Timeout time.Duration
	// BlockSize and Blocks size the bus between pump and reader.
	BlockSize int
	Blocks    int
	// Ring buffers the download as a byte stream of BlockSize*Blocks bytes.
	// Reads then wait for the wanted size instead of returning the next
	// received block.
	Ring bool
	// MaxReconnects is number of consecutive reconnects after read errors.
	// Negative value disables reconnects.
	MaxReconnects int
	// TLS is used for https connections, for example to pin server
	// certificates.
	TLS *tls.Config
	// Request is called before every request is sent.
	Request func(*http.Request) error
	// Client overrides the client built from timeouts and TLS config.
	Client *http.Client
	// Task configures the pump worker of readers.
	Task pipe.TaskConfig
}

// DefaultConfig returns config with default timeouts and buffers.
func DefaultConfig() Config {
	return Config{
		Timeout:       DefaultTimeout,
		BlockSize:     DefaultBlockSize,
		Blocks:        DefaultBlocks,
		MaxReconnects: DefaultMaxReconnects,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.BlockSize <= 0 {
		c.BlockSize = d.BlockSize
	}
	if c.Blocks <= 0 {
		c.Blocks = d.Blocks
	}
	switch {
	case c.MaxReconnects == 0:
		c.MaxReconnects = d.MaxReconnects
	case c.MaxReconnects < 0:
		c.MaxReconnects = 0
	}
	if c.Task.Name == "" {
		c.Task.Name = pipe.IOHTTP
	}
	return c
}

// client returns http client which does not follow redirects and does not
// decompress bodies.
func (c Config) client() *http.Client {
	var client http.Client
	if c.Client != nil {
		client = *c.Client
	} else {
		client.Transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   c.Timeout,
				KeepAlive: c.Timeout,
			}).DialContext,
			TLSClientConfig:       c.TLS,
			TLSHandshakeTimeout:   c.Timeout,
			ResponseHeaderTimeout: c.Timeout,
			DisableCompression:    true,
		}
	}
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &client
}

// bus returns buffer between pump and reader.
func (c Config) bus() port.Bus {
	if c.Ring {
		return port.NewByteBus(c.BlockSize * c.Blocks)
	}
	return port.NewBlockBus(c.Blocks, c.BlockSize)
}
