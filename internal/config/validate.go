package config

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/text/language"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateChat(); err != nil {
		return err
	}
	if err := c.validateRetention(); err != nil {
		return err
	}
	if err := c.validateAuth(); err != nil {
		return err
	}
	if err := c.validateRateLimit(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if c.Transcription.BaseURL == "" {
		return errors.New("transcription.base_url must be set")
	}
	if c.Transcription.DefaultModel == "" {
		return errors.New("transcription.default_model must be set")
	}
	if c.Transcription.TimeoutSeconds < 0 {
		return errors.New("transcription.timeout_seconds must not be negative")
	}
	if c.Transcription.Language != "" {
		if _, err := language.Parse(c.Transcription.Language); err != nil {
			return fmt.Errorf("transcription.language %q is not a valid BCP 47 tag: %w", c.Transcription.Language, err)
		}
	}
	return nil
}

func (c *Config) validateChat() error {
	if c.Chat.BaseURL == "" {
		return errors.New("chat.base_url must be set")
	}
	if c.Chat.TimeoutMinutes <= 0 {
		return errors.New("chat.timeout_minutes must be positive")
	}
	if c.Chat.RetryAttempts <= 0 {
		return errors.New("chat.retry_attempts must be positive")
	}
	if c.Chat.RetryBaseMS < 0 {
		return errors.New("chat.retry_base_ms must not be negative")
	}
	return nil
}

func (c *Config) validateRetention() error {
	if c.Retention.Days <= 0 {
		return errors.New("retention.days must be positive")
	}
	if c.Retention.SweepHour < 0 || c.Retention.SweepHour > 23 {
		return errors.New("retention.sweep_hour must be between 0 and 23")
	}
	if c.Retention.Timezone != "" {
		if _, err := time.LoadLocation(c.Retention.Timezone); err != nil {
			return fmt.Errorf("retention.timezone %q is not a valid IANA zone: %w", c.Retention.Timezone, err)
		}
	}
	return nil
}

func (c *Config) validateAuth() error {
	seen := make(map[string]struct{}, len(c.Auth.Clients))
	for i, client := range c.Auth.Clients {
		if client.Token == "" {
			return fmt.Errorf("auth.clients[%d].token must be set", i)
		}
		if client.OwnerID == "" {
			return fmt.Errorf("auth.clients[%d].owner_id must be set", i)
		}
		if _, dup := seen[client.Token]; dup {
			return fmt.Errorf("auth.clients[%d].token duplicates an earlier token", i)
		}
		seen[client.Token] = struct{}{}
	}
	return nil
}

func (c *Config) validateRateLimit() error {
	if c.RateLimit.RequestsPerSecond < 0 {
		return errors.New("rate_limit.requests_per_second must not be negative")
	}
	if c.RateLimit.Burst < 0 {
		return errors.New("rate_limit.burst must not be negative")
	}
	return nil
}
