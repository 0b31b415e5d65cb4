package manifest

// AWSClient configures the S3 client used to resolve s3:// references
// (vault credentials, JSON schema). Optional; the default AWS chain applies when absent.
type AWSClient struct {
	Region                string `toml:"region"`
	EndpointURL           string `toml:"endpoint_url"`
	UsePathStyle          bool   `toml:"use_path_style"`
	StaticAccessKeyID     string `toml:"static_access_key_id"`
	StaticSecretAccessKey string `toml:"static_secret_access_key"`
	SessionToken          string `toml:"session_token"`
}
