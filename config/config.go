// Package config builds the shared settings every top-level operation
// needs: where the server lives, which app it belongs to, how outbound
// HTTP is issued, how much is logged, and how many passes a key
// rotation sweep gets before giving up. Options are functional so a
// caller only names the settings it overrides.
package config

import (
	"net/http"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/sentclose/sentc-go/transport"
)

// defaultRotationRetries bounds RotationWatcher/FinishKeyRotation
// sweeps per group before surfacing sdkerr.ErrRotationRetriesExhausted. A
// pragmatic bound, not a correctness requirement, so it is
// configurable.
const defaultRotationRetries = 10

// Config is the immutable result of applying a set of Options; every
// top-level sentc operation takes one.
type Config struct {
	BaseURL         string
	AppToken        string
	FilePartURL     string
	Logger          hclog.Logger
	HTTPDoer        transport.Doer
	RotationRetries int
}

// Option mutates a Config under construction.
type Option func(*Config)

// WithBaseURL sets the API origin every request is issued against.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithAppToken sets the app identifying header sent on every request.
func WithAppToken(token string) Option {
	return func(c *Config) { c.AppToken = token }
}

// WithFilePartURL points file chunk bodies at a distinct origin (e.g. a
// storage CDN) instead of BaseURL; unset, file transport falls back to
// BaseURL.
func WithFilePartURL(url string) Option {
	return func(c *Config) { c.FilePartURL = url }
}

// WithLogger overrides the default null logger. Sub-loggers are named
// per component ("sentc.group", "sentc.rotation", "sentc.cache", ...)
// by the package that owns them.
func WithLogger(logger hclog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// WithHTTPDoer overrides the default *http.Client, e.g. to inject a
// scripted fake in tests or a client with custom TLS settings.
func WithHTTPDoer(doer transport.Doer) Option {
	return func(c *Config) { c.HTTPDoer = doer }
}

// WithRotationRetries overrides defaultRotationRetries.
func WithRotationRetries(n int) Option {
	return func(c *Config) { c.RotationRetries = n }
}

// New applies opts over a set of defaults: a null logger, *http.Client,
// and defaultRotationRetries. BaseURL and AppToken have no sane
// default and are left empty if the caller omits them.
func New(opts ...Option) *Config {
	c := &Config{
		Logger:          hclog.NewNullLogger(),
		HTTPDoer:        http.DefaultClient,
		RotationRetries: defaultRotationRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GroupApi builds the HTTP-backed transport.GroupAdminApi this Config
// describes.
func (c *Config) GroupApi() *transport.HttpGroupApi {
	return transport.NewHttpGroupApi(c.HTTPDoer, c.BaseURL, c.AppToken)
}

// UserApi builds the HTTP-backed transport.UserApi this Config
// describes.
func (c *Config) UserApi() *transport.HttpUserApi {
	return transport.NewHttpUserApi(c.HTTPDoer, c.BaseURL, c.AppToken)
}

// FileApi builds the HTTP-backed transport.FileApi this Config
// describes, routing chunk bodies at FilePartURL when set.
func (c *Config) FileApi() *transport.HttpFileApi {
	partURL := c.FilePartURL
	if partURL == "" {
		partURL = c.BaseURL
	}
	return transport.NewHttpFileApi(c.HTTPDoer, c.BaseURL, partURL, c.AppToken)
}
