package courier

import (
	"strings"
	"time"

	"github.com/erp/returns/internal/infrastructure/config"
)

const (
	// GHNProductionAPIURL is the production API endpoint
	GHNProductionAPIURL = "https://online-gateway.ghn.vn/shiip/public-api"
	// GHNSandboxAPIURL is the sandbox API endpoint
	GHNSandboxAPIURL = "https://dev-online-gateway.ghn.vn/shiip/public-api"
)

// GHNConfig holds configuration for the GHN shipping API
type GHNConfig struct {
	BaseURL      string
	Token        string
	ShopID       int
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// NewGHNConfig builds the adapter configuration from the courier section
func NewGHNConfig(cfg config.CourierConfig) *GHNConfig {
	return &GHNConfig{
		BaseURL:      cfg.BaseURL,
		Token:        cfg.Token,
		ShopID:       cfg.ShopID,
		Timeout:      cfg.Timeout,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}
}

// Validate checks credentials and fills defaults
func (c *GHNConfig) Validate() error {
	if c.Token == "" {
		return ErrMissingToken
	}
	if c.ShopID <= 0 {
		return ErrMissingShopID
	}
	if c.BaseURL == "" {
		c.BaseURL = GHNSandboxAPIURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	return nil
}
