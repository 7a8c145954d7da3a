package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds all shop backend configuration.
type Config struct {
	Env    string       `yaml:"env"` // development, production
	Server ServerConfig `yaml:"server"`

	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`

	Shipping ShippingConfig `yaml:"shipping"`

	PayU        PayUConfig        `yaml:"payu"`
	Fakturownia FakturowniaConfig `yaml:"fakturownia"`
	Resend      ResendConfig      `yaml:"resend"`
	Cloudinary  CloudinaryConfig  `yaml:"cloudinary"`
	Events      EventsConfig      `yaml:"events"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	AllowedOrigins  []string `yaml:"allowed_origins"` // storefront + admin panel
	ShutdownTimeout string   `yaml:"shutdown_timeout"`
	// OutboundTimeout bounds every call to PayU, Fakturownia, Resend and Cloudinary.
	OutboundTimeout string `yaml:"outbound_timeout"`
	// PublicURL is where the API is reachable from the internet (PayU notifications).
	PublicURL string `yaml:"public_url"`
	// FrontendURL is where customers are sent back after paying.
	FrontendURL string `yaml:"frontend_url"`
	// TrustProxyHops is how many reverse proxies append to X-Forwarded-For.
	// Zero, the default, ignores the header.
	TrustProxyHops int `yaml:"trust_proxy_hops"`
}

type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	AutoMigrate  bool   `yaml:"auto_migrate"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	TokenTTL  string `yaml:"token_ttl"`
	Issuer    string `yaml:"issuer"`
}

type ShippingMethod struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Price string `yaml:"price" json:"price"`
}

type ShippingConfig struct {
	Methods []ShippingMethod `yaml:"methods"`
	// FreeThreshold is the subtotal from which shipping costs nothing. Empty disables it.
	FreeThreshold string `yaml:"free_threshold"`
	Currency      string `yaml:"currency"`
}

type PayUConfig struct {
	BaseURL      string `yaml:"base_url"`
	PosID        string `yaml:"pos_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	SecondKey    string `yaml:"second_key"` // MD5 key used to sign notifications
}

type FakturowniaConfig struct {
	Domain   string `yaml:"domain"`
	APIToken string `yaml:"api_token"`
	// AutoInvoice creates an invoice as soon as a payment completes.
	AutoInvoice bool   `yaml:"auto_invoice"`
	SendEmail   bool   `yaml:"send_email"`
	SellerName  string `yaml:"seller_name"`
	SellerTaxNo string `yaml:"seller_tax_no"`
	TaxRate     int    `yaml:"tax_rate"`
}

type ResendConfig struct {
	APIKey       string `yaml:"api_key"`
	From         string `yaml:"from"`
	ContactInbox string `yaml:"contact_inbox"`
}

type CloudinaryConfig struct {
	CloudName string `yaml:"cloud_name"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Folder    string `yaml:"folder"`
}

type EventsConfig struct {
	AMQPURL string `yaml:"amqp_url"`
	Queue   string `yaml:"queue"`
}

type RateLimitConfig struct {
	Enabled bool     `yaml:"enabled"`
	Global  RateRule `yaml:"global"`
	Auth    RateRule `yaml:"auth"`
	Contact RateRule `yaml:"contact"`
}

type RateRule struct {
	Requests int    `yaml:"requests"`
	Window   string `yaml:"window"`
	Message  string `yaml:"message"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Env: "production",
		Server: ServerConfig{
			Addr:            ":5000",
			AllowedOrigins:  []string{"http://localhost:5173", "http://localhost:5174"},
			ShutdownTimeout: "10s",
			OutboundTimeout: "15s",
			PublicURL:       "http://localhost:5000",
			FrontendURL:     "http://localhost:5173",
		},
		Database: DatabaseConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			AutoMigrate:  true,
		},
		Auth: AuthConfig{
			TokenTTL: "168h",
			Issuer:   "acro-shop",
		},
		Shipping: ShippingConfig{
			Methods: []ShippingMethod{
				{ID: "courier", Name: "Kurier", Price: "18.99"},
				{ID: "parcel_locker", Name: "Paczkomat", Price: "14.99"},
				{ID: "pickup", Name: "Odbiór osobisty", Price: "0"},
			},
			FreeThreshold: "300",
			Currency:      "PLN",
		},
		PayU: PayUConfig{
			BaseURL: "https://secure.snd.payu.com",
		},
		Fakturownia: FakturowniaConfig{
			AutoInvoice: true,
			SendEmail:   true,
			TaxRate:     23,
		},
		Events: EventsConfig{
			Queue: "shop_events",
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Global: RateRule{
				Requests: 100,
				Window:   "15m",
				Message:  "Too many requests from this IP, please try again later.",
			},
			Auth: RateRule{
				Requests: 10,
				Window:   "1h",
				Message:  "Too many login attempts, please try again after an hour.",
			},
			Contact: RateRule{
				Requests: 3,
				Window:   "1h",
				Message:  "Too many messages sent, please try again later.",
			},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
// Environment variables are applied on top in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	set(&c.Env, "APP_ENV")
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
	set(&c.Server.PublicURL, "PUBLIC_URL")
	set(&c.Server.FrontendURL, "FRONTEND_URL")
	if hops, err := strconv.Atoi(os.Getenv("TRUST_PROXY_HOPS")); err == nil {
		c.Server.TrustProxyHops = hops
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = strings.Split(origins, ",")
	} else {
		c.Server.AllowedOrigins = appendOrigin(c.Server.AllowedOrigins, os.Getenv("FRONTEND_URL"))
		c.Server.AllowedOrigins = appendOrigin(c.Server.AllowedOrigins, os.Getenv("ADMIN_URL"))
	}

	set(&c.Database.URL, "DATABASE_URL")
	set(&c.Auth.JWTSecret, "JWT_SECRET")

	set(&c.PayU.BaseURL, "PAYU_BASE_URL")
	set(&c.PayU.PosID, "PAYU_POS_ID")
	set(&c.PayU.ClientID, "PAYU_CLIENT_ID")
	set(&c.PayU.ClientSecret, "PAYU_CLIENT_SECRET")
	set(&c.PayU.SecondKey, "PAYU_SECOND_KEY")

	set(&c.Fakturownia.Domain, "FAKTUROWNIA_DOMAIN")
	set(&c.Fakturownia.APIToken, "FAKTUROWNIA_API_TOKEN")

	set(&c.Resend.APIKey, "RESEND_API_KEY")
	set(&c.Resend.From, "RESEND_FROM")
	set(&c.Resend.ContactInbox, "CONTACT_EMAIL")

	set(&c.Cloudinary.CloudName, "CLOUDINARY_CLOUD_NAME")
	set(&c.Cloudinary.APIKey, "CLOUDINARY_API_KEY")
	set(&c.Cloudinary.APISecret, "CLOUDINARY_API_SECRET")

	set(&c.Events.AMQPURL, "AMQP_URL")
	set(&c.Logging.Level, "LOG_LEVEL")
}

func appendOrigin(origins []string, origin string) []string {
	if origin == "" {
		return origins
	}
	for _, o := range origins {
		if o == origin {
			return origins
		}
	}
	return append(origins, origin)
}

// Validate checks that required settings are present and parseable.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database url is required (DATABASE_URL)"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("jwt secret is required (JWT_SECRET)"))
	}
	if c.Server.TrustProxyHops < 0 {
		errs = append(errs, errors.New("server.trust_proxy_hops cannot be negative"))
	}
	for _, d := range []struct{ name, val string }{
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
		{"server.outbound_timeout", c.Server.OutboundTimeout},
		{"auth.token_ttl", c.Auth.TokenTTL},
		{"rate_limit.global.window", c.RateLimit.Global.Window},
		{"rate_limit.auth.window", c.RateLimit.Auth.Window},
		{"rate_limit.contact.window", c.RateLimit.Contact.Window},
	} {
		if _, err := time.ParseDuration(d.val); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.name, err))
		}
	}
	for _, m := range c.Shipping.Methods {
		if _, err := decimal.NewFromString(m.Price); err != nil {
			errs = append(errs, fmt.Errorf("shipping method %s: invalid price %q", m.ID, m.Price))
		}
	}
	if c.Shipping.FreeThreshold != "" {
		if _, err := decimal.NewFromString(c.Shipping.FreeThreshold); err != nil {
			errs = append(errs, fmt.Errorf("shipping.free_threshold: invalid amount %q", c.Shipping.FreeThreshold))
		}
	}
	return errors.Join(errs...)
}

// IsDevelopment reports whether error details may be exposed to clients.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 10*time.Second)
}

func (c *Config) GetOutboundTimeout() time.Duration {
	return parseDuration(c.Server.OutboundTimeout, 15*time.Second)
}

func (c *Config) GetTokenTTL() time.Duration {
	return parseDuration(c.Auth.TokenTTL, 7*24*time.Hour)
}

// GetWindow returns the rule's window, defaulting to one hour.
func (r RateRule) GetWindow() time.Duration {
	return parseDuration(r.Window, time.Hour)
}

func (c *Config) IsPayUEnabled() bool {
	return c.PayU.ClientID != "" && c.PayU.ClientSecret != "" && c.PayU.PosID != ""
}

func (c *Config) IsFakturowniaEnabled() bool {
	return c.Fakturownia.Domain != "" && c.Fakturownia.APIToken != ""
}

func (c *Config) IsResendEnabled() bool {
	return c.Resend.APIKey != "" && c.Resend.From != ""
}

func (c *Config) IsCloudinaryEnabled() bool {
	return c.Cloudinary.CloudName != "" && c.Cloudinary.APIKey != "" && c.Cloudinary.APISecret != ""
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
