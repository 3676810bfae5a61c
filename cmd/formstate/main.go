package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/pflag"

	formstate "github.com/goliatone/go-formstate"
	"github.com/goliatone/go-formstate/internal/cli"
	"github.com/goliatone/go-formstate/internal/prompt"
	"github.com/goliatone/go-formstate/pkg/defaults"
	"github.com/goliatone/go-formstate/pkg/form"
	"github.com/goliatone/go-formstate/pkg/formdef"
)

type config struct {
	definition   string
	openapi      string
	operation    string
	defaultsURL  string
	defaultsFile string
	timeout      time.Duration
	maxSubmits   int
	output       string
	pretty       bool
	logLevel     string
}

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: formstate [options]\n\n")
		fmt.Fprintf(os.Stderr, "Fill a form definition interactively and print the submitted values as JSON.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  formstate -d examples/youtube.yaml\n")
		fmt.Fprintf(os.Stderr, "  formstate --openapi api.yaml --operation createChannel --pretty\n")
		fmt.Fprintf(os.Stderr, "  formstate -d examples/youtube.yaml --defaults-url https://jsonplaceholder.typicode.com/users/1\n")
	}

	var cfg config
	pflag.StringVarP(&cfg.definition, "definition", "d", "", "Form definition file (YAML or JSON)")
	pflag.StringVar(&cfg.openapi, "openapi", "", "OpenAPI document to derive the definition from")
	pflag.StringVar(&cfg.operation, "operation", "", "Operation ID whose request body describes the form (with --openapi)")
	pflag.StringVar(&cfg.defaultsURL, "defaults-url", "", "Fetch default values from a JSON endpoint")
	pflag.StringVar(&cfg.defaultsFile, "defaults-file", "", "Read default values from a YAML or JSON file")
	pflag.DurationVar(&cfg.timeout, "timeout", 10*time.Second, "Timeout for fetching remote defaults")
	pflag.IntVar(&cfg.maxSubmits, "max-submits", 3, "Submission attempts before giving up")
	pflag.StringVarP(&cfg.output, "output", "o", "", "Write the submitted values to a file (stdout if empty)")
	pflag.BoolVarP(&cfg.pretty, "pretty", "p", false, "Indent the JSON output")
	pflag.StringVar(&cfg.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	pflag.Parse()

	logger, err := newLogger(cfg.logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		if errors.Is(err, prompt.ErrAborted) || errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		logger.Error("formstate failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config, logger *slog.Logger) error {
	def, err := loadDefinition(ctx, cfg)
	if err != nil {
		return err
	}
	f, err := def.Build(namedRules(), form.WithLogger(logger))
	if err != nil {
		return err
	}
	if src, err := defaultsSource(cfg); err != nil {
		return err
	} else if src != nil {
		if err := formstate.Seed(ctx, f, def, src); err != nil {
			return err
		}
	}

	session := cli.New(prompt.NewSurvey(), cli.WithLogger(logger), cli.WithMaxSubmits(cfg.maxSubmits))
	values, err := session.Run(ctx, def, f)
	if err != nil {
		return err
	}

	var out []byte
	if cfg.pretty {
		out, err = json.MarshalIndent(values, "", "  ")
	} else {
		out, err = json.Marshal(values)
	}
	if err != nil {
		return fmt.Errorf("encode values: %w", err)
	}
	out = append(out, '\n')
	if cfg.output == "" {
		_, err = os.Stdout.Write(out)
		return err
	}
	if err := os.WriteFile(cfg.output, out, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	logger.Info("values written", "file", cfg.output)
	return nil
}

func loadDefinition(ctx context.Context, cfg config) (formdef.Definition, error) {
	switch {
	case cfg.definition != "" && cfg.openapi != "":
		return formdef.Definition{}, errors.New("use either --definition or --openapi")
	case cfg.definition != "":
		data, err := os.ReadFile(cfg.definition)
		if err != nil {
			return formdef.Definition{}, fmt.Errorf("read definition: %w", err)
		}
		return formdef.Load(data)
	case cfg.openapi != "":
		if cfg.operation == "" {
			return formdef.Definition{}, errors.New("--operation is required with --openapi")
		}
		data, err := os.ReadFile(cfg.openapi)
		if err != nil {
			return formdef.Definition{}, fmt.Errorf("read openapi document: %w", err)
		}
		return formdef.FromOpenAPI(ctx, data, cfg.operation)
	default:
		return formdef.Definition{}, errors.New("a --definition or --openapi document is required")
	}
}

// defaultsSource returns the configured remote or file defaults, or nil.
func defaultsSource(cfg config) (defaults.Source, error) {
	switch {
	case cfg.defaultsURL != "" && cfg.defaultsFile != "":
		return nil, errors.New("use either --defaults-url or --defaults-file")
	case cfg.defaultsURL != "":
		return defaults.FromHTTP(cfg.defaultsURL, defaults.WithTimeout(cfg.timeout)), nil
	case cfg.defaultsFile != "":
		data, err := os.ReadFile(cfg.defaultsFile)
		if err != nil {
			return nil, fmt.Errorf("read defaults: %w", err)
		}
		return defaults.FromYAML(data), nil
	default:
		return nil, nil
	}
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}
