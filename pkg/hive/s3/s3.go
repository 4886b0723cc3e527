// Package s3 is the S3 driver. A drive is one bucket, optionally under a
// key prefix. Directories are "key/" marker objects or prefixes implied by
// the keys below them.
package s3

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/tonimelisma/hive/internal/store"
	"github.com/tonimelisma/hive/pkg/hive"
)

// DefaultRegion is used when Config.Region is empty.
const DefaultRegion = "us-east-1"

// fanout bounds concurrent per-object requests in directory operations.
const fanout = 8

var backendName = hive.BackendS3.String()

// Config is the S3 backend section. Endpoint selects an S3-compatible
// service such as MinIO; credentials fall back to the SDK's default chain
// when AccessKeyID is empty.
type Config struct {
	Region          string `toml:"region" yaml:"region"`
	Bucket          string `toml:"bucket" yaml:"bucket" validate:"required"`
	Prefix          string `toml:"prefix" yaml:"prefix"`
	Endpoint        string `toml:"endpoint" yaml:"endpoint" validate:"omitempty,url"`
	AccessKeyID     string `toml:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key" yaml:"secret_access_key" validate:"required_with=AccessKeyID"`
	PathStyle       bool   `toml:"path_style" yaml:"path_style"`

	HTTPClient *http.Client `toml:"-" yaml:"-"`
}

// Driver holds one bucket binding. The SDK client is built on Login.
type Driver struct {
	cfg      Config
	api      *s3.Client
	accounts *store.Store
	spoolDir string
	logger   *slog.Logger
}

// New is the hive.Constructor for BackendS3.
func New(ctx context.Context, opts *hive.Options) (hive.Driver, error) {
	var cfg Config
	if c, ok := opts.Config.(*Config); ok && c != nil {
		cfg = *c
	}

	if cfg.Bucket == "" {
		return nil, hive.NewError(hive.CodeInvalidArgs, "s3.new", errors.New("bucket is required"))
	}

	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}

	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	if cfg.Prefix != "" {
		cfg.Prefix += "/"
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With(slog.String("backend", backendName), slog.String("bucket", cfg.Bucket))

	spoolDir := filepath.Join(opts.PersistentLocation, backendName, "spool")
	if err := os.MkdirAll(spoolDir, 0o700); err != nil {
		return nil, fmt.Errorf("s3: creating spool directory: %w", err)
	}

	accounts, err := store.Open(ctx, filepath.Join(opts.PersistentLocation, store.FileName), logger)
	if err != nil {
		return nil, err
	}

	return &Driver{cfg: cfg, accounts: accounts, spoolDir: spoolDir, logger: logger}, nil
}

func (d *Driver) newAPI(ctx context.Context) (*s3.Client, error) {
	loadOpts := []func(*awscfg.LoadOptions) error{awscfg.WithRegion(d.cfg.Region)}

	if d.cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(d.cfg.AccessKeyID, d.cfg.SecretAccessKey, ""),
		))
	}

	if d.cfg.HTTPClient != nil {
		loadOpts = append(loadOpts, awscfg.WithHTTPClient(d.cfg.HTTPClient))
	}

	awsConfig, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: loading AWS config: %w", err)
	}

	return s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if d.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(d.cfg.Endpoint)
		}

		o.UsePathStyle = d.cfg.PathStyle

		// Many S3-compatible stores reject the SDK's default CRC trailers.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	}), nil
}

// Login builds the SDK client and checks that the bucket is reachable.
func (d *Driver) Login(ctx context.Context, _ hive.AuthHandler) error {
	const op = "s3.login"

	api, err := d.newAPI(ctx)
	if err != nil {
		return err
	}

	if _, err := api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(d.cfg.Bucket)}); err != nil {
		return mapErr(op, err)
	}

	d.api = api

	d.logger.Info("bucket reachable", slog.String("endpoint", d.endpoint()))

	return d.accounts.Put(ctx, &store.Account{
		Backend:     backendName,
		UID:         d.cfg.AccessKeyID,
		DisplayName: d.cfg.Bucket,
		Endpoint:    d.endpoint(),
		DriveID:     d.cfg.Bucket,
	})
}

func (d *Driver) endpoint() string {
	if d.cfg.Endpoint != "" {
		return d.cfg.Endpoint
	}

	return "s3://" + d.cfg.Bucket
}

func (d *Driver) Logout(ctx context.Context) error {
	d.api = nil

	return d.accounts.Delete(ctx, backendName)
}

func (d *Driver) ClientInfo(context.Context) (*hive.ClientInfo, error) {
	return &hive.ClientInfo{
		UserID:      d.cfg.AccessKeyID,
		DisplayName: d.cfg.Bucket,
		Endpoint:    d.endpoint(),
	}, nil
}

func (d *Driver) OpenDrive(context.Context) (hive.DriveDriver, error) {
	if d.api == nil {
		return nil, hive.NewError(hive.CodeNotReady, "s3.open_drive", errors.New("not logged in"))
	}

	return &Drive{drv: d, api: d.api, bucket: d.cfg.Bucket, prefix: d.cfg.Prefix}, nil
}

func (d *Driver) Close() error {
	return d.accounts.Close()
}

// mapErr converts SDK errors by HTTP status. HEAD requests carry no error
// body, so the status is the only reliable signal.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}

	var re *awshttp.ResponseError
	if !errors.As(err, &re) {
		return fmt.Errorf("s3: %s: %w", op, err)
	}

	switch re.HTTPStatusCode() {
	case http.StatusNotFound:
		return hive.NewError(hive.CodeNotExists, op, err)
	case http.StatusPreconditionFailed:
		return hive.NewError(hive.CodeAlreadyExists, op, err)
	default:
		return hive.HTTPError(re.HTTPStatusCode(), op, err)
	}
}

var (
	_ hive.LoginDriver  = (*Driver)(nil)
	_ hive.LogoutDriver = (*Driver)(nil)
	_ hive.InfoDriver   = (*Driver)(nil)
	_ hive.DriveOpener  = (*Driver)(nil)
)
