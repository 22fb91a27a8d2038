// Package config holds the state shared by every command of one CLI run.
package config

import (
	"context"

	"github.com/google/uuid"

	"github.com/fieldbio/sightings/internal/conf"
	"github.com/fieldbio/sightings/internal/ebird"
	"github.com/fieldbio/sightings/internal/errors"
	"github.com/fieldbio/sightings/internal/logger"
	"github.com/fieldbio/sightings/internal/observability"
)

// Context holds the overall application state of one run: the settings,
// the central logger modules are taken from and the metrics registry.
type Context struct {
	ConfigFile string
	LogLevel   string
	RunID      string // attached to every log line as trace_id
	Settings   *conf.Settings
	Logger     *logger.CentralLogger
	Metrics    *observability.Metrics
}

// NewContext creates an empty Context; Initialize fills it once flags are parsed.
func NewContext() *Context {
	return &Context{}
}

// Initialize loads settings and sets up logging and metrics.
func (c *Context) Initialize() error {
	settings, err := conf.Load(c.ConfigFile)
	if err != nil {
		return err
	}
	c.Settings = settings

	logCfg := settings.Logging
	switch {
	case c.LogLevel != "":
		logCfg.DefaultLevel = c.LogLevel
	case settings.Debug:
		logCfg.DefaultLevel = "debug"
	}
	if logCfg.Console != nil && (c.LogLevel != "" || settings.Debug) {
		console := *logCfg.Console
		console.Level = logCfg.DefaultLevel
		logCfg.Console = &console
	}

	central, err := logger.NewCentralLogger(&logCfg)
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryConfiguration).
			Component("config").
			Build()
	}
	c.Logger = central
	c.RunID = uuid.NewString()[:8]

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}
	c.Metrics = metrics

	c.Log().Debug("Settings loaded",
		logger.String("config_file", conf.ConfigFileUsed()),
		logger.String("sightings_file", settings.Sightings.File),
		logger.String("region", settings.Sightings.Region))
	return nil
}

// Log returns the logger for the application module, tagged with the run id.
func (c *Context) Log() logger.Logger {
	if c.Logger == nil {
		return logger.NewDiscardLogger()
	}
	return c.Logger.Module("sightings").WithContext(logger.WithTraceID(context.Background(), c.RunID))
}

// EBirdConfig builds the eBird client configuration from the settings.
func (c *Context) EBirdConfig() ebird.Config {
	s := c.Settings.EBird
	return ebird.Config{
		APIKey:      s.APIKey,
		BaseURL:     s.BaseURL,
		Timeout:     s.Timeout,
		CacheTTL:    s.CacheTTL,
		RateLimitMS: s.RateLimitMS,
		Debug:       c.Settings.Debug,
	}
}

// Close writes the metrics textfile when configured and closes the logger.
func (c *Context) Close() error {
	var errs []error
	if c.Metrics != nil && c.Settings != nil && c.Settings.Metrics.Textfile != "" {
		if err := c.Metrics.WriteTextfile(c.Settings.Metrics.Textfile); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Logger != nil {
		if err := c.Logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
