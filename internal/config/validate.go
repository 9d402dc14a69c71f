package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/guildcrawl/internal/database"
	"github.com/jonesrussell/guildcrawl/internal/discovery"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var spiderNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Validate checks the configuration for values that would fail at runtime.
// All problems are reported together.
func (c Config) Validate() error {
	return errors.Join(c.ValidateWithoutDatabase(), c.validateDatabase())
}

// ValidateWithoutDatabase is Validate for commands that only touch Redis.
func (c Config) ValidateWithoutDatabase() error {
	var errs []error

	if c.Spider.Name == "" {
		errs = append(errs, &ValidationError{Field: "spider.name", Message: "is required"})
	} else if !spiderNamePattern.MatchString(c.Spider.Name) {
		errs = append(errs, &ValidationError{Field: "spider.name", Message: "may only contain letters, digits, '.', '_' and '-'"})
	}
	if c.Spider.PaginationThreshold < 0 {
		errs = append(errs, &ValidationError{Field: "spider.pagination_threshold", Message: "must not be negative"})
	}
	if c.Spider.TagThreshold < 0 {
		errs = append(errs, &ValidationError{Field: "spider.tag_threshold", Message: "must not be negative"})
	}
	if c.Spider.Language != "" && !discovery.IsLanguage(c.Spider.Language) {
		errs = append(errs, &ValidationError{
			Field:   "spider.language",
			Message: fmt.Sprintf("%q is not a supported listing language", c.Spider.Language),
		})
	}
	if err := validateURL("spider.base_url", c.Spider.BaseURL); err != nil {
		errs = append(errs, err)
	}
	for _, u := range c.Spider.StartURLs {
		if err := validateURL("spider.start_urls", u); err != nil {
			errs = append(errs, err)
		}
	}

	if c.Redis.URL == "" && c.Redis.Address == "" {
		errs = append(errs, &ValidationError{Field: "redis.url", Message: "is required"})
	}

	if c.Proxy.URL != "" {
		if err := validateURL("proxy.url", c.Proxy.URL); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Proxy.RetryTimes < 0 {
		errs = append(errs, &ValidationError{Field: "proxy.retry_times", Message: "must not be negative"})
	}
	for _, code := range c.Proxy.RetryHTTPCodes {
		if code < 100 || code > 599 {
			errs = append(errs, &ValidationError{Field: "proxy.retry_http_codes", Message: fmt.Sprintf("%d is not an HTTP status", code)})
		}
	}

	if c.Worker.Workers < 0 {
		errs = append(errs, &ValidationError{Field: "worker.workers", Message: "must not be negative"})
	}
	if c.Worker.MaxDenialRetries < 0 {
		errs = append(errs, &ValidationError{Field: "worker.max_denial_retries", Message: "must not be negative"})
	}

	if c.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			errs = append(errs, &ValidationError{Field: "schedule.cron", Message: err.Error()})
		}
	}

	return errors.Join(errs...)
}

func (c Config) validateDatabase() error {
	switch c.Database.Driver {
	case database.DriverPostgres:
		if c.Database.URL == "" {
			return &ValidationError{Field: "database.url", Message: "is required for the postgres driver"}
		}
	case database.DriverSQLite:
		// an empty path opens an in-memory database
	default:
		return &ValidationError{Field: "database.driver", Message: "must be postgres or sqlite"}
	}
	return nil
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ValidationError{Field: field, Message: fmt.Sprintf("%q is not an absolute URL", raw)}
	}
	return nil
}
