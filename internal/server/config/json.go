package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/stylist/internal/flagx"
	"github.com/dmitrijs2005/stylist/internal/timex"
)

// JsonConfig is the on-disk shape of the server configuration file.
// Duration fields accept "15m" style strings or integer nanoseconds.
// Zero values leave the corresponding Config field untouched.
type JsonConfig struct {
	EndpointAddrHTTP             string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC             string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	StorageTimeout               timex.Duration `json:"storage_timeout"`
	FreeMonthlyQuota             *int           `json:"free_monthly_quota"`
	ProviderBaseURL              string         `json:"provider_base_url"`
	ProviderAPIKey               string         `json:"provider_api_key"`
	ProviderMode                 string         `json:"provider_mode"`
	ProviderRequestTimeout       timex.Duration `json:"provider_request_timeout"`
	PollInterval                 timex.Duration `json:"poll_interval"`
	TryOnDeadline                timex.Duration `json:"tryon_deadline"`
	MaxPollAttempts              int            `json:"max_poll_attempts"`
	MaxConcurrentTryOns          int            `json:"max_concurrent_tryons"`
	TryOnRatePerMinute           int            `json:"tryon_rate_per_minute"`
	OutfitServiceURL             string         `json:"outfit_service_url"`
	BillingSecret                string         `json:"billing_secret"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
	ResultURLExpiry              timex.Duration `json:"result_url_expiry"`
	LogLevel                     string         `json:"log_level"`
}

// parseJson overlays values from the JSON file named by -c / -config.
// Without either flag it does nothing.
func parseJson(config *Config, args []string) error {
	jsonConfigFile := flagx.ConfigPath(args)
	if jsonConfigFile == "" {
		return nil
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return err
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return err
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setDuration(&config.StorageTimeout, c.StorageTimeout)
	if c.FreeMonthlyQuota != nil {
		config.FreeMonthlyQuota = *c.FreeMonthlyQuota
	}
	setString(&config.ProviderBaseURL, c.ProviderBaseURL)
	setString(&config.ProviderAPIKey, c.ProviderAPIKey)
	setString(&config.ProviderMode, c.ProviderMode)
	setDuration(&config.ProviderRequestTimeout, c.ProviderRequestTimeout)
	setDuration(&config.PollInterval, c.PollInterval)
	setDuration(&config.TryOnDeadline, c.TryOnDeadline)
	setInt(&config.MaxPollAttempts, c.MaxPollAttempts)
	setInt(&config.MaxConcurrentTryOns, c.MaxConcurrentTryOns)
	setInt(&config.TryOnRatePerMinute, c.TryOnRatePerMinute)
	setString(&config.OutfitServiceURL, c.OutfitServiceURL)
	setString(&config.BillingSecret, c.BillingSecret)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setDuration(&config.ResultURLExpiry, c.ResultURLExpiry)
	setString(&config.LogLevel, c.LogLevel)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
