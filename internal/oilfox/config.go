package oilfox

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFairUseMinutes is the minimum spacing of unscheduled refreshes.
const DefaultFairUseMinutes = 60

// Config is the root configuration for the OilFox bridge.
type Config struct {
	Bridge    BridgeSettings    `yaml:"bridge"`
	Account   AccountSettings   `yaml:"account"`
	Polling   PollingSettings   `yaml:"polling"`
	Discovery DiscoverySettings `yaml:"discovery"`
	Devices   []DeviceConfig    `yaml:"devices"`
}

// BridgeSettings identifies the bridge.
type BridgeSettings struct {
	// ID names the bridge thing. Discovered devices are addressed as
	// "<id>:<hwid>".
	ID string `yaml:"id"`

	// HealthInterval is how often to publish health status (seconds).
	// Default: 30 seconds.
	HealthInterval int `yaml:"health_interval"`
}

// AccountSettings holds the FoxInsights customer account.
type AccountSettings struct {
	// Address is the API host. Default: api.oilfox.io
	Address string `yaml:"address"`

	Email string `yaml:"email"`

	// Password for the customer account.
	// WARNING: Never log this value. Use String() method for safe logging.
	Password string `yaml:"password"`
}

// String returns a string representation with password masked.
func (a AccountSettings) String() string {
	password := ""
	if a.Password != "" {
		password = "[REDACTED]"
	}
	return fmt.Sprintf("AccountSettings{Address:%q, Email:%q, Password:%s}", a.Address, a.Email, password)
}

// MarshalJSON redacts the password.
func (a AccountSettings) MarshalJSON() ([]byte, error) {
	type redacted AccountSettings
	safe := redacted(a)
	if safe.Password != "" {
		safe.Password = "[REDACTED]"
	}
	return json.Marshal(safe)
}

// PollingSettings controls how often the cloud is queried.
type PollingSettings struct {
	// RefreshHours is the delay between the end of one scheduled poll and
	// the start of the next. Default: 6
	RefreshHours int `yaml:"refresh_hours"`

	// FairUseMinutes is the minimum spacing of unscheduled refreshes.
	// Default: 60
	FairUseMinutes int `yaml:"fair_use_minutes"`
}

// DiscoverySettings controls handling of devices found in the account.
type DiscoverySettings struct {
	// AutoAdopt creates a device handler for every discovered device
	// instead of waiting for approval.
	AutoAdopt bool `yaml:"auto_adopt"`
}

// DeviceConfig declares one sensor.
type DeviceConfig struct {
	// ID is the device thing identifier. Default: "<bridge id>:<hwid>"
	ID   string `yaml:"id" json:"id"`
	HWID string `yaml:"hwid" json:"hwid"`
	Name string `yaml:"name" json:"name,omitempty"`
}

// LoadConfig reads the bridge configuration from a YAML file.
//
// The configuration loading order is:
//  1. Default values
//  2. YAML file values
//  3. Environment variables (OILFOX_EMAIL, OILFOX_PASSWORD, OILFOX_ADDRESS,
//     OILFOX_BRIDGE_ID)
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a Config with defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Bridge: BridgeSettings{
			ID:             "oilfox",
			HealthInterval: 30,
		},
		Account: AccountSettings{
			Address: DefaultAddress,
		},
		Polling: PollingSettings{
			RefreshHours:   6,
			FairUseMinutes: DefaultFairUseMinutes,
		},
		Devices: []DeviceConfig{},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OILFOX_BRIDGE_ID"); v != "" {
		cfg.Bridge.ID = v
	}
	if v := os.Getenv("OILFOX_ADDRESS"); v != "" {
		cfg.Account.Address = v
	}
	if v := os.Getenv("OILFOX_EMAIL"); v != "" {
		cfg.Account.Email = v
	}
	if v := os.Getenv("OILFOX_PASSWORD"); v != "" {
		cfg.Account.Password = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	errs = append(errs, c.validateBridge()...)
	errs = append(errs, c.validateAccount()...)
	errs = append(errs, c.validatePolling()...)
	errs = append(errs, c.validateDevices()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateBridge() []string {
	var errs []string
	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	} else if strings.ContainsAny(c.Bridge.ID, "/+#:") {
		errs = append(errs, fmt.Sprintf("bridge.id %q must not contain '/', '+', '#' or ':'", c.Bridge.ID))
	}
	if c.Bridge.HealthInterval < 1 {
		errs = append(errs, "bridge.health_interval must be at least 1 second")
	}
	return errs
}

func (c *Config) validateAccount() []string {
	var errs []string
	if c.Account.Email == "" {
		errs = append(errs, "account.email is required")
	}
	if c.Account.Password == "" {
		errs = append(errs, "account.password is required")
	}
	return errs
}

func (c *Config) validatePolling() []string {
	var errs []string
	if c.Polling.RefreshHours < 1 {
		errs = append(errs, "polling.refresh_hours must be at least 1")
	}
	if c.Polling.FairUseMinutes < 0 {
		errs = append(errs, "polling.fair_use_minutes must not be negative")
	}
	return errs
}

// validateDevices rejects duplicates. A device without hwid is accepted
// here and reported offline with a configuration error at runtime.
func (c *Config) validateDevices() []string {
	var errs []string
	ids := make(map[string]bool)
	hwids := make(map[string]bool)

	for i, dev := range c.Devices {
		if dev.ID == "" && dev.HWID == "" {
			errs = append(errs, fmt.Sprintf("devices[%d] needs an id or a hwid", i))
			continue
		}
		id := c.DeviceThingID(dev)
		if ids[id] {
			errs = append(errs, fmt.Sprintf("devices[%d].id %q is duplicate", i, id))
		}
		ids[id] = true

		if dev.HWID == "" {
			continue
		}
		if hwids[dev.HWID] {
			errs = append(errs, fmt.Sprintf("devices[%d].hwid %q is duplicate", i, dev.HWID))
		}
		hwids[dev.HWID] = true
	}
	return errs
}

// DeviceThingID returns the configured id or the default derived from hwid.
func (c *Config) DeviceThingID(dev DeviceConfig) string {
	if dev.ID != "" {
		return dev.ID
	}
	return ThingID(c.Bridge.ID, dev.HWID)
}

// ThingID builds the identifier of a device thing under a bridge.
func ThingID(bridgeID, hwid string) string {
	return bridgeID + ":" + hwid
}

// GetHealthInterval returns the health reporting interval.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthInterval) * time.Second
}

// GetRefreshInterval returns the delay between scheduled polls.
func (c *Config) GetRefreshInterval() time.Duration {
	return time.Duration(c.Polling.RefreshHours) * time.Hour
}

// GetFairUseWindow returns the minimum spacing of unscheduled refreshes.
func (c *Config) GetFairUseWindow() time.Duration {
	return time.Duration(c.Polling.FairUseMinutes) * time.Minute
}
