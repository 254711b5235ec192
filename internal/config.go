package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/USEPA-clone/nsink/internal/flowpath"
	"github.com/USEPA-clone/nsink/internal/lookup"
	"github.com/USEPA-clone/nsink/internal/models"
	"github.com/USEPA-clone/nsink/internal/removal"
	"github.com/USEPA-clone/nsink/internal/staticmap"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Data     DataConfig        `yaml:"data"`
	Removal  RemovalConfig     `yaml:"removal"`
	Trace    TraceConfig       `yaml:"trace"`
	Sampling SamplingConfig    `yaml:"sampling"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Data.Validate(); err != nil {
		return err
	}
	if err := c.Removal.Validate(); err != nil {
		return err
	}
	if err := c.Trace.Validate(); err != nil {
		return err
	}
	if err := c.Sampling.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// DataConfig locates the layer store. When Watch is set the server reloads
// the model after the store file changes on disk. Bundles optionally names a
// directory of prepared bundles the MCP server may import from.
type DataConfig struct {
	Path    string `yaml:"path"`
	Watch   bool   `yaml:"watch"`
	Bundles string `yaml:"bundles"`
}

// Validate validates the data configuration.
func (c *DataConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// RemovalConfig holds the land removal thresholds and off-network policies.
type RemovalConfig struct {
	HydricThreshold     float64                 `yaml:"hydric_threshold"`
	ImperviousThreshold float64                 `yaml:"impervious_threshold"`
	OffNetworkLakes     models.OffNetworkPolicy `yaml:"off_network_lakes"`
	OffNetworkStreams   models.OffNetworkPolicy `yaml:"off_network_streams"`
	OffNetworkCanals    models.OffNetworkPolicy `yaml:"off_network_canals"`
}

// Validate validates the removal configuration.
func (c *RemovalConfig) Validate() error {
	policy := validation.In(models.PolicyRemoval, models.PolicyPassThrough)
	return validation.ValidateStruct(c,
		validation.Field(&c.HydricThreshold, validation.Min(0.0), validation.Max(100.0)),
		validation.Field(&c.ImperviousThreshold, validation.Min(0.0), validation.Max(100.0)),
		validation.Field(&c.OffNetworkLakes, validation.Required, policy),
		validation.Field(&c.OffNetworkStreams, validation.Required, policy),
		validation.Field(&c.OffNetworkCanals, validation.Required, policy),
	)
}

// Params converts the configuration to removal model parameters.
func (c *RemovalConfig) Params() removal.Params {
	return removal.Params{
		HydricThreshold:     c.HydricThreshold,
		ImperviousThreshold: c.ImperviousThreshold,
		OffNetwork: removal.OffNetworkPolicies{
			Lakes:   c.OffNetworkLakes,
			Streams: c.OffNetworkStreams,
			Canals:  c.OffNetworkCanals,
		},
	}
}

// TraceConfig controls flow path tracing. Zero values derive from the grid:
// half a cell of buffer and one step per cell.
type TraceConfig struct {
	BufferDistance float64 `yaml:"buffer_distance"`
	MaxSteps       int     `yaml:"max_steps"`
}

// Validate validates the trace configuration.
func (c *TraceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BufferDistance, validation.Min(0.0)),
		validation.Field(&c.MaxSteps, validation.Min(0)),
	)
}

// Options converts the configuration to tracer options.
func (c *TraceConfig) Options() flowpath.Options {
	return flowpath.Options{BufferDistance: c.BufferDistance, MaxSteps: c.MaxSteps}
}

// SamplingConfig controls static map generation.
//
// LoadingTable optionally points at a YAML land cover table replacing the
// built-in NLCD loading classes.
type SamplingConfig struct {
	Density      int     `yaml:"density"`
	Seed         uint64  `yaml:"seed"`
	Workers      int     `yaml:"workers"`
	MinSamples   int     `yaml:"min_samples"`
	Power        float64 `yaml:"power"`
	Neighbors    int     `yaml:"neighbors"`
	LoadingTable string  `yaml:"loading_table"`
}

// Validate validates the sampling configuration.
func (c *SamplingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Density, validation.Required, validation.Min(1)),
		validation.Field(&c.Workers, validation.Min(0)),
		validation.Field(&c.MinSamples, validation.Min(0)),
		validation.Field(&c.Power, validation.Min(0.0)),
		validation.Field(&c.Neighbors, validation.Min(0)),
	)
}

// Options converts the configuration to static map options.
func (c *SamplingConfig) Options() staticmap.Options {
	return staticmap.Options{
		Density:    c.Density,
		Seed:       c.Seed,
		Workers:    c.Workers,
		MinSamples: c.MinSamples,
		Power:      c.Power,
		Neighbors:  c.Neighbors,
	}
}

// Loading returns the configured land cover loading table.
func (c *SamplingConfig) Loading() (*lookup.Table, error) {
	if c.LoadingTable == "" {
		return lookup.Default(), nil
	}
	return lookup.Load(c.LoadingTable)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	params := removal.DefaultParams()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Data: DataConfig{
			Path: "./nsink.db",
		},
		Removal: RemovalConfig{
			HydricThreshold:     params.HydricThreshold,
			ImperviousThreshold: params.ImperviousThreshold,
			OffNetworkLakes:     params.OffNetwork.Lakes,
			OffNetworkStreams:   params.OffNetwork.Streams,
			OffNetworkCanals:    params.OffNetwork.Canals,
		},
		Sampling: SamplingConfig{
			Density:    500,
			Seed:       1,
			MinSamples: 10,
			Power:      2,
			Neighbors:  12,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
