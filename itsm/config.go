package itsm

import (
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/config"
)

// Settings is the adapter configuration: tenant credentials plus the
// default pacing applied when operation parameters leave batching and
// pagination unset.
type Settings struct {
	Credentials Credentials
	Defaults    DefaultsSettings
}

type DefaultsSettings struct {
	Batch struct {
		Size       int
		IntervalMs int `yaml:"intervalMs"`
	}
	Pagination struct {
		PagesPerBatch int `yaml:"pagesPerBatch"`
		IntervalMs    int `yaml:"intervalMs"`
	}
}

// BatchOptions converts the configured defaults to runtime options.
func (d DefaultsSettings) BatchOptions() BatchOptions {
	return BatchOptions{
		Size:     d.Batch.Size,
		Interval: time.Duration(d.Batch.IntervalMs) * time.Millisecond,
	}
}

// PaginationOptions converts the configured defaults to runtime options.
func (d DefaultsSettings) PaginationOptions() PaginationOptions {
	return PaginationOptions{
		PagesPerBatch: d.Pagination.PagesPerBatch,
		Interval:      time.Duration(d.Pagination.IntervalMs) * time.Millisecond,
	}
}

// LoadSettings reads YAML settings from the given readers, later sources
// overriding earlier ones. ${VAR} references expand from the environment,
// which is how API keys stay out of config files.
func LoadSettings(sources ...io.Reader) (Settings, error) {
	var result Settings
	var options []config.YAMLOption
	for _, s := range sources {
		options = append(options, config.Source(s))
	}
	options = append(options, config.Expand(os.LookupEnv))
	yaml, err := config.NewYAML(options...)
	if err != nil {
		return result, fmt.Errorf("failed to read yaml config %w", err)
	}
	readError := func(key string, cause error) error {
		return fmt.Errorf("failed to read '%s' from yaml config %w", key, cause)
	}
	key := "credentials"
	err = yaml.Get(key).Populate(&result.Credentials)
	if err != nil {
		return result, readError(key, err)
	}
	key = "defaults"
	if yaml.Get(key).HasValue() {
		err = yaml.Get(key).Populate(&result.Defaults)
		if err != nil {
			return result, readError(key, err)
		}
	}
	if result.Credentials.TenantURL == "" {
		return result, fmt.Errorf("credentials.tenantUrl is required")
	}
	if result.Credentials.APIKey == "" {
		return result, fmt.Errorf("credentials.apiKey is required")
	}
	return result, nil
}
