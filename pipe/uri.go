package pipe

import (
	"fmt"
	"net/url"
	"strings"
)

// Registered names of built-in transports.
const (
	IOHTTP       = "io_http"
	IOFile       = "io_file"
	IOEmbedFlash = "io_embed_flash"
	IOCodecDev   = "io_codec_dev"
	IOPDM        = "io_i2s_pdm"
)

// URI is a parsed stream location.
type URI struct {
	Scheme string
	Host   string
	Path   string
}

// ParseURI parses stream location. A bare absolute path is a file URI.
func ParseURI(s string) (URI, error) {
	if s == "" {
		return URI{}, fmt.Errorf("empty uri: %w", ErrInvalidURI)
	}
	if strings.HasPrefix(s, "/") {
		return URI{Scheme: "file", Path: s}, nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return URI{}, fmt.Errorf("%q: %v: %w", s, err, ErrInvalidURI)
	}
	if u.Scheme == "" {
		return URI{}, fmt.Errorf("%q: missing scheme: %w", s, ErrInvalidURI)
	}
	return URI{Scheme: strings.ToLower(u.Scheme), Host: u.Host, Path: u.Path}, nil
}

// IsRaw reports whether the scheme selects a user provided byte source.
func (u URI) IsRaw() bool {
	return strings.HasPrefix(u.Scheme, "raw")
}

// TransportName returns registered transport name for the URI scheme.
// Raw schemes return an empty name: input is provided by the user.
func TransportName(u URI) (string, error) {
	switch {
	case u.Scheme == "http" || u.Scheme == "https":
		return IOHTTP, nil
	case u.Scheme == "file":
		return IOFile, nil
	case u.Scheme == "embed":
		return IOEmbedFlash, nil
	case u.IsRaw():
		return "", nil
	}
	return "", fmt.Errorf("scheme %q: %w", u.Scheme, ErrNotSupported)
}

// MountPath converts file URI into a file system path. Absolute paths are
// returned as is, otherwise scheme and authority separator are dropped.
func MountPath(uri string) string {
	if strings.HasPrefix(uri, "/") {
		return uri
	}
	i := strings.Index(uri, "://")
	if i < 0 {
		return uri
	}
	p := uri[i+2:]
	if len(p) > 1 && p[1] == '/' {
		p = p[1:]
	}
	return p
}
