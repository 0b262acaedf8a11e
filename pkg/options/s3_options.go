package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*S3Options)(nil)

// S3Options configures the object storage used to stage custom WPK files.
type S3Options struct {
	Endpoint        string `json:"endpoint" mapstructure:"endpoint"`
	AccessKeyID     string `json:"access-key-id" mapstructure:"access-key-id"`
	SecretAccessKey string `json:"secret-access-key" mapstructure:"secret-access-key"`
	UseSSL          bool   `json:"use-ssl" mapstructure:"use-ssl"`
	BucketName      string `json:"bucket-name" mapstructure:"bucket-name"`
	Region          string `json:"region" mapstructure:"region"`

	// InsecureSkipVerify disables TLS certificate checks, for self-signed development endpoints.
	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`

	// URLExpiry is how long the presigned download link handed to the agent stays valid.
	URLExpiry time.Duration `json:"url-expiry" mapstructure:"url-expiry"`
}

// NewS3Options creates a new S3Options with default values.
func NewS3Options() *S3Options {
	return &S3Options{
		Endpoint:        "s3.cloupeer.io",
		AccessKeyID:     "admin",
		SecretAccessKey: "public_cloupeer",
		UseSSL:          true,
		BucketName:      "wpk",
		Region:          "us-east-1",
		URLExpiry:       time.Hour,
	}
}

// Validate checks the storage settings. They are only consulted for custom file upgrades.
func (o *S3Options) Validate() []error {
	errors := []error{}

	if o.Endpoint == "" {
		errors = append(errors, fmt.Errorf("--s3.endpoint must be set"))
	}
	if o.BucketName == "" {
		errors = append(errors, fmt.Errorf("--s3.bucket-name must be set"))
	}
	if o.URLExpiry <= 0 {
		errors = append(errors, fmt.Errorf("--s3.url-expiry must be greater than 0"))
	}

	return errors
}

// AddFlags adds flags for S3Options to the specified FlagSet.
func (o *S3Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Endpoint, "s3.endpoint", o.Endpoint, "S3 service endpoint (e.g. s3.amazonaws.com or minio.local)")
	fs.StringVar(&o.AccessKeyID, "s3.access-key-id", o.AccessKeyID, "S3 access key ID")
	fs.StringVar(&o.SecretAccessKey, "s3.secret-access-key", o.SecretAccessKey, "S3 secret access key")
	fs.BoolVar(&o.UseSSL, "s3.use-ssl", o.UseSSL, "Enable SSL for S3 connection")
	fs.StringVar(&o.BucketName, "s3.bucket-name", o.BucketName, "S3 bucket name for staged WPK packages")
	fs.DurationVar(&o.URLExpiry, "s3.url-expiry", o.URLExpiry, "Lifetime of the presigned WPK download URL")
	fs.StringVar(&o.Region, "s3.region", o.Region, "S3 region")
	fs.BoolVar(&o.InsecureSkipVerify, "s3.insecure-skip-verify", o.InsecureSkipVerify, "Skip TLS certificate verification of the S3 endpoint")
}
