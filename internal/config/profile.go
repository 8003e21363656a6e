package config

import (
	"fmt"

	"billdesk/internal/models"

	"github.com/BurntSushi/toml"
)

// Profile is the optional TOML file named by COMPANY_PROFILE.
type Profile struct {
	Company models.CompanyInfo `toml:"company"`
	Queue   QueueConfig        `toml:"queue"`
}

// QueueConfig contains asynq concurrency settings
type QueueConfig struct {
	Concurrency      int            `toml:"concurrency"`
	Queues           map[string]int `toml:"queues"`
	MaxRetryAttempts int            `toml:"max_retry_attempts"`
}

func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Concurrency:      5,
		Queues:           map[string]int{"default": 1},
		MaxRetryAttempts: 3,
	}
}

// LoadProfile loads company and queue settings from a TOML file
func LoadProfile(filename string) (*Profile, error) {
	profile := &Profile{}
	if _, err := toml.DecodeFile(filename, profile); err != nil {
		return nil, fmt.Errorf("failed to load company profile: %w", err)
	}
	return profile, nil
}

// Apply overlays the non-empty profile fields onto cfg.
func (p *Profile) Apply(cfg *Config) {
	c := p.Company
	if c.Name != "" {
		cfg.Company.Name = c.Name
	}
	if c.Address != "" {
		cfg.Company.Address = c.Address
	}
	if c.Phone != "" {
		cfg.Company.Phone = c.Phone
	}
	if c.Email != "" {
		cfg.Company.Email = c.Email
	}
	if c.Website != "" {
		cfg.Company.Website = c.Website
	}
	if c.TaxID != "" {
		cfg.Company.TaxID = c.TaxID
	}
	if len(c.Terms) > 0 {
		cfg.Company.Terms = c.Terms
	}
	if p.Queue.Concurrency > 0 {
		cfg.Queue.Concurrency = p.Queue.Concurrency
	}
	if len(p.Queue.Queues) > 0 {
		cfg.Queue.Queues = p.Queue.Queues
	}
	if p.Queue.MaxRetryAttempts > 0 {
		cfg.Queue.MaxRetryAttempts = p.Queue.MaxRetryAttempts
	}
}
