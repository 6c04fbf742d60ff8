package config

import "strings"

// normalize expands path fields and trims string settings so later validation
// and consumers see canonical values.
func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}

	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)

	c.Transcription.APIKey = strings.TrimSpace(c.Transcription.APIKey)
	c.Transcription.BaseURL = strings.TrimSuffix(strings.TrimSpace(c.Transcription.BaseURL), "/")
	c.Transcription.DefaultModel = strings.TrimSpace(c.Transcription.DefaultModel)
	c.Transcription.Language = strings.TrimSpace(c.Transcription.Language)

	c.Chat.APIKey = strings.TrimSpace(c.Chat.APIKey)
	c.Chat.BaseURL = strings.TrimSpace(c.Chat.BaseURL)
	c.Chat.Referer = strings.TrimSpace(c.Chat.Referer)
	c.Chat.Title = strings.TrimSpace(c.Chat.Title)

	c.Retention.Timezone = strings.TrimSpace(c.Retention.Timezone)
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)

	for i := range c.Auth.Clients {
		c.Auth.Clients[i].Token = strings.TrimSpace(c.Auth.Clients[i].Token)
		c.Auth.Clients[i].OwnerID = strings.TrimSpace(c.Auth.Clients[i].OwnerID)
	}

	return nil
}
