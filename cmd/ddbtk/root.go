package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cloudxsgmbh/dynamodb-toolbox-go/internal/modelfile"
)

type settings struct {
	envFile       string
	model         string
	region        string
	profile       string
	endpoint      string
	accessKey     string
	secretKey     string
	cryptPassword string
	logLevel      string
	logFormat     string
}

// envFallbacks maps flags to the environment variables read when the flag
// is not set on the command line.
var envFallbacks = []struct {
	flag, env string
	target    func(*settings) *string
}{
	{"model", "DDBTK_MODEL", func(s *settings) *string { return &s.model }},
	{"region", "DDBTK_REGION", func(s *settings) *string { return &s.region }},
	{"profile", "DDBTK_PROFILE", func(s *settings) *string { return &s.profile }},
	{"endpoint", "DDBTK_ENDPOINT", func(s *settings) *string { return &s.endpoint }},
	{"access-key", "DDBTK_ACCESS_KEY_ID", func(s *settings) *string { return &s.accessKey }},
	{"secret-key", "DDBTK_SECRET_ACCESS_KEY", func(s *settings) *string { return &s.secretKey }},
	{"crypt-password", "DDBTK_CRYPT_PASSWORD", func(s *settings) *string { return &s.cryptPassword }},
	{"log-level", "DDBTK_LOG_LEVEL", func(s *settings) *string { return &s.logLevel }},
	{"log-format", "DDBTK_LOG_FORMAT", func(s *settings) *string { return &s.logFormat }},
}

type app struct {
	out    io.Writer
	s      settings
	log    *slog.Logger
	client *ddb.Client
	model  *modelfile.Model
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}
	root := &cobra.Command{
		Use:           "ddbtk",
		Short:         "Typed DynamoDB reads and table management from a model file",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	f := root.PersistentFlags()
	f.StringVar(&a.s.envFile, "env-file", ".env", "dotenv file loaded before reading DDBTK_* variables")
	f.StringVar(&a.s.model, "model", "model.yaml", "YAML model file")
	f.StringVar(&a.s.region, "region", "", "AWS region")
	f.StringVar(&a.s.profile, "profile", "", "shared config profile")
	f.StringVar(&a.s.endpoint, "endpoint", "", "DynamoDB endpoint override, e.g. http://localhost:8000")
	f.StringVar(&a.s.accessKey, "access-key", "", "static access key id")
	f.StringVar(&a.s.secretKey, "secret-key", "", "static secret access key")
	f.StringVar(&a.s.cryptPassword, "crypt-password", "", "password of encrypted attributes")
	f.StringVar(&a.s.logLevel, "log-level", "info", "debug, info, warn or error")
	f.StringVar(&a.s.logFormat, "log-format", "text", "text or json")

	root.AddCommand(a.getCmd(), a.scanCmd(), a.queryCmd(), a.createTableCmd())
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	if err := godotenv.Load(a.s.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", a.s.envFile, err)
	}
	for _, fb := range envFallbacks {
		if cmd.Flags().Changed(fb.flag) {
			continue
		}
		if v, ok := os.LookupEnv(fb.env); ok {
			*fb.target(&a.s) = v
		}
	}

	log, err := newLogger(a.s.logLevel, a.s.logFormat, os.Stderr)
	if err != nil {
		return err
	}
	a.log = log

	client, err := newClient(cmd.Context(), a.s)
	if err != nil {
		return err
	}
	a.client = client

	model, err := modelfile.Load(a.s.model, modelfile.Options{
		DocumentClient: client,
		Logger:         log,
		CryptPassword:  a.s.cryptPassword,
	})
	if err != nil {
		return err
	}
	a.model = model
	return nil
}

func newLogger(level, format string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("invalid log format %q", format)
}

// newClient builds the DynamoDB client. Static keys and an endpoint
// override target DynamoDB Local.
func newClient(ctx context.Context, s settings) (*ddb.Client, error) {
	var opts []func(*config.LoadOptions) error
	if s.region != "" {
		opts = append(opts, config.WithRegion(s.region))
	}
	if s.profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(s.profile))
	}
	if s.accessKey != "" || s.secretKey != "" {
		if s.accessKey == "" || s.secretKey == "" {
			return nil, errors.New("access key and secret key go together")
		}
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.accessKey, s.secretKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return ddb.NewFromConfig(cfg, func(o *ddb.Options) {
		if s.endpoint != "" {
			o.BaseEndpoint = aws.String(s.endpoint)
		}
	}), nil
}
