package alert

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hamba/avro/v2"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"
)

// DefaultSchemaURL is where the broker publishes the schema of the
// alerts it currently distributes.
const DefaultSchemaURL = "https://raw.github.com/astrolabsoftware/fink-broker/master/schemas/distribution_schema.avsc"

// DefaultSchemaTimeout bounds the schema download. The packaged schema
// takes over when the fink servers do not answer in time.
const DefaultSchemaTimeout = 1 * time.Second

//go:embed schema/fink_alert_schema.avsc
var packagedSchema []byte

// SchemaConfig holds configuration for a SchemaResolver.
type SchemaConfig struct {
	// FS is the filesystem Path is read from. Defaults to the OS
	// filesystem.
	FS afero.Fs

	// Path points at a local schema file. When set, no download is
	// attempted and the packaged schema is never used.
	Path string

	// URL overrides where the current schema is downloaded from.
	URL string

	// Client performs the download. Defaults to http.DefaultClient.
	Client *http.Client

	// Timeout bounds the download. Defaults to DefaultSchemaTimeout.
	Timeout time.Duration

	Logger hclog.Logger
}

// SchemaResolver produces the Avro schema alerts are decoded with: an
// explicit local file when configured, otherwise whatever the fink
// servers currently publish, otherwise the schema packaged with the
// client.
type SchemaResolver struct {
	fs      afero.Fs
	path    string
	url     string
	client  *http.Client
	timeout time.Duration
	logger  hclog.Logger
}

// NewSchemaResolver returns a resolver with defaults applied.
func NewSchemaResolver(cfg SchemaConfig) *SchemaResolver {
	if cfg.FS == nil {
		cfg.FS = afero.NewOsFs()
	}
	if cfg.URL == "" {
		cfg.URL = DefaultSchemaURL
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultSchemaTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	return &SchemaResolver{
		fs:      cfg.FS,
		path:    cfg.Path,
		url:     cfg.URL,
		client:  cfg.Client,
		timeout: cfg.Timeout,
		logger:  cfg.Logger.Named("schema"),
	}
}

// Resolve returns the parsed alert schema.
func (r *SchemaResolver) Resolve(ctx context.Context) (avro.Schema, error) {
	if r.path != "" {
		b, err := afero.ReadFile(r.fs, r.path)
		if err != nil {
			return nil, fmt.Errorf("reading alert schema %s: %w", r.path, err)
		}
		schema, err := avro.Parse(string(b))
		if err != nil {
			return nil, fmt.Errorf("parsing alert schema %s: %w", r.path, err)
		}
		return schema, nil
	}

	r.logger.Debug("fetching alert schema", "url", r.url)
	if b, err := r.fetch(ctx); err == nil {
		schema, perr := avro.Parse(string(b))
		if perr == nil {
			return schema, nil
		}
		r.logger.Warn("downloaded alert schema does not parse, using packaged schema",
			"error", perr)
	} else {
		r.logger.Warn("could not download alert schema, using packaged schema",
			"url", r.url, "error", err)
	}

	return avro.Parse(string(packagedSchema))
}

func (r *SchemaResolver) fetch(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
