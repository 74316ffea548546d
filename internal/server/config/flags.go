package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/stylist/internal/flagx"
)

// parseFlags populates server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     HTTP bind address (e.g., ":8080")
//	-m string     gRPC health bind address (e.g., ":50051")
//	-d string     PostgreSQL DSN
//	-s string     JWT HMAC secret key
//	-t int        access token validity, minutes
//	-r int        refresh token validity, minutes
//	-q int        FREE tier monthly quota
//	-v string     try-on provider base URL
//	-k string     try-on provider API key
//	-i duration   provider poll interval
//	-l duration   try-on deadline
//	-x int        max poll attempts
//	-n int        max concurrent try-ons
//	-z int        try-on submissions per account per minute
//	-o string     outfit service URL
//	-w string     billing webhook secret
//	-u string     S3 root user
//	-p string     S3 root password
//	-b string     S3 bucket name (empty disables result upload)
//	-g string     S3 region
//	-e string     S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-log string   log level (debug, info, warn, error)
//
// Flags not listed here are ignored so other components can share argv.
func parseFlags(config *Config, args []string) error {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run HTTP server")
	fs.StringVar(&config.EndpointAddrGRPC, "m", config.EndpointAddrGRPC, "address and port to run gRPC health server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")
	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh_token_validity_duration (in minutes)")

	fs.IntVar(&config.FreeMonthlyQuota, "q", config.FreeMonthlyQuota, "FREE tier monthly quota")
	fs.StringVar(&config.ProviderBaseURL, "v", config.ProviderBaseURL, "try-on provider base URL")
	fs.StringVar(&config.ProviderAPIKey, "k", config.ProviderAPIKey, "try-on provider API key")
	fs.DurationVar(&config.PollInterval, "i", config.PollInterval, "provider poll interval")
	fs.DurationVar(&config.TryOnDeadline, "l", config.TryOnDeadline, "try-on deadline")
	fs.IntVar(&config.MaxPollAttempts, "x", config.MaxPollAttempts, "max poll attempts")
	fs.IntVar(&config.MaxConcurrentTryOns, "n", config.MaxConcurrentTryOns, "max concurrent try-ons")
	fs.IntVar(&config.TryOnRatePerMinute, "z", config.TryOnRatePerMinute, "try-on submissions per account per minute")
	fs.StringVar(&config.OutfitServiceURL, "o", config.OutfitServiceURL, "outfit service URL")
	fs.StringVar(&config.BillingSecret, "w", config.BillingSecret, "billing webhook secret")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.LogLevel, "log", config.LogLevel, "log level")

	if err := flagx.ParseKnown(fs, args); err != nil {
		return err
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Minute
	return nil
}
