// Package dynamo implements the storage interface on Amazon DynamoDB.
package dynamo

// Config configures a DynamoDB store.
//
// Authentication priority (AWS SDK v2 default chain):
//  1. Explicit AccessKeyID/SecretAccessKey (if provided)
//  2. Environment variables (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY)
//  3. Shared credentials file (~/.aws/credentials)
//  4. Shared config file (~/.aws/config) with profile
//  5. EC2 instance metadata / ECS task role / EKS IRSA
//
// For DynamoDB-compatible stores (DynamoDB Local, LocalStack), set
// Endpoint.
type Config struct {
	// Region is the AWS region. Defaults to us-east-1 when not
	// resolvable from config, environment, or profile.
	Region string

	// Endpoint is a custom endpoint URL for local or compatible stores.
	// Leave empty for AWS DynamoDB.
	Endpoint string

	// Profile is the AWS profile name to use from shared config.
	Profile string

	// AccessKeyID is an explicit access key. If set, SecretAccessKey
	// must also be set.
	AccessKeyID string

	// SecretAccessKey is an explicit secret key. Required if AccessKeyID
	// is set.
	SecretAccessKey string

	// TablePrefix is prepended to every logical table name, so multiple
	// deployments can share an account (e.g. "Staging.").
	TablePrefix string

	// RateLimit is the maximum requests per second issued to the store.
	// Zero means unlimited (the store throttles on its own terms and the
	// retry policy absorbs it).
	RateLimit float64

	// WriteAttempts bounds retries for throttled writes. Zero uses
	// DefaultWriteAttempts.
	WriteAttempts int

	// ReadAttempts bounds retries for throttled reads. Zero uses
	// DefaultReadAttempts.
	ReadAttempts int
}

// DefaultWriteAttempts bounds throttling retries for writes.
const DefaultWriteAttempts = 5

// DefaultReadAttempts bounds throttling retries for reads.
const DefaultReadAttempts = 3

// DefaultAWSRegion is the fallback region when none is specified.
const DefaultAWSRegion = "us-east-1"

// maxBatchSize is the DynamoDB BatchWriteItem request limit.
const maxBatchSize = 25

// Validate checks that the configuration is coherent.
func (c *Config) Validate() error {
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}
	if c.WriteAttempts < 0 || c.ReadAttempts < 0 {
		return &ConfigError{Field: "WriteAttempts/ReadAttempts", Message: "attempt bounds must be >= 0"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "dynamo config: " + e.Field + ": " + e.Message
}
