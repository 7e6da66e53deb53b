package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"

	"slotcheck/internal/checker"
	"slotcheck/internal/config"
	"slotcheck/internal/extract"
	"slotcheck/internal/google"
	"slotcheck/internal/microsoft"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "slotcheck",
		Usage: "Check proposed meeting times against all of your calendars.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: config.DefaultPath, Usage: "Path to the YAML config file.", EnvVars: []string{"SLOTCHECK_CONFIG"}},
		},
		Commands: []*cli.Command{
			authCommand(),
			calendarsCommand(),
			checkCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies environment overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyEnv(os.Getenv)
	if tz := c.String("timezone"); tz != "" {
		cfg.Timezone = tz
	}
	return cfg, nil
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with a Google or Microsoft account to get an API token.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "provider", Value: "google", Usage: "google or microsoft"},
			&cli.StringFlag{Name: "account", Usage: "Name for this account (e.g., 'personal', 'work')."},
		},
		Action: func(c *cli.Context) error {
			logger := setupLogger("info")
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			var (
				oauthCfg *oauth2.Config
				opts     []oauth2.AuthCodeOption
				store    = google.Tokens
			)
			switch provider := strings.ToLower(c.String("provider")); provider {
			case "google":
				oauthCfg, err = google.GetOAuthConfigForAuthFlow(cfg.Google.ClientID, cfg.Google.ClientSecret)
				if err != nil {
					return fmt.Errorf("failed to get google oauth config: %w", err)
				}
				opts = []oauth2.AuthCodeOption{oauth2.AccessTypeOffline}
			case "microsoft":
				oauthCfg, err = microsoft.OAuthConfig(cfg.Microsoft.ClientID, cfg.Microsoft.ClientSecret, cfg.Microsoft.Tenant)
				if err != nil {
					return fmt.Errorf("failed to get microsoft oauth config: %w", err)
				}
				store = microsoft.Tokens
			default:
				return fmt.Errorf("unknown provider %q: want google or microsoft", provider)
			}
			store.Dir = cfg.TokenDir
			logger.Info("Starting authentication flow.", "provider", c.String("provider"))

			authURL := oauthCfg.AuthCodeURL("state-token", opts...)
			fmt.Printf("Go to the following link in your browser then type the "+
				"authorization code: \n%v\n", authURL)

			fmt.Print("Enter Authorization Code: ")
			reader := bufio.NewReader(os.Stdin)
			authCode, _ := reader.ReadString('\n')
			authCode = strings.TrimSpace(authCode)

			token, err := oauthCfg.Exchange(c.Context, authCode)
			if err != nil {
				return fmt.Errorf("unable to retrieve token from web: %w", err)
			}

			accountName := c.String("account")
			if accountName == "" {
				fmt.Print("Enter a name for this account (e.g., 'personal', 'work'): ")
				accountName, _ = reader.ReadString('\n')
				accountName = strings.TrimSpace(accountName)
			}
			if accountName == "" {
				return errors.New("account name must not be empty")
			}

			if err := store.Save(accountName, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			logger.Info("Successfully authenticated and saved token.", "file", store.Path(accountName))
			return nil
		},
	}
}

func calendarsCommand() *cli.Command {
	return &cli.Command{
		Name:  "calendars",
		Usage: "List the calendars of every configured source.",
		Action: func(c *cli.Context) error {
			logger := setupLogger(os.Getenv("LOG_LEVEL"))
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			chk, err := newChecker(c.Context, logger, cfg)
			if err != nil {
				return err
			}

			listing := chk.Calendars(c.Context)
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tID\tNAME\tPRIMARY")
			for _, cal := range listing.Calendars {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", cal.Provider, cal.ID, cal.Name, cal.IsPrimary)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			for _, warn := range listing.Warnings {
				fmt.Fprintln(os.Stderr, "warning:", warn.String())
			}
			return nil
		},
	}
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Check the time slots of an analysed conversation and print a JSON report.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "payload", Usage: "File with the analysis JSON. Reads stdin when neither --payload nor --text is given."},
			&cli.StringFlag{Name: "text", Usage: "Conversation text or analysis JSON given inline."},
			&cli.StringFlag{Name: "timezone", Usage: "Override the configured timezone."},
		},
		Action: func(c *cli.Context) error {
			logLevel := os.Getenv("LOG_LEVEL")
			if logLevel == "" {
				logLevel = "info"
			}
			logger := setupLogger(logLevel)

			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			input, err := readInput(c.String("payload"), c.String("text"), os.Stdin)
			if err != nil {
				return err
			}
			payload, err := extract.Default(logger).Extract(c.Context, input)
			if err != nil {
				return fmt.Errorf("could not read the analysis: %w", err)
			}

			chk, err := newChecker(c.Context, logger, cfg)
			if err != nil {
				return err
			}
			r, err := chk.Check(c.Context, payload)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(r)
		},
	}
}

// readInput returns the inline text, the payload file or stdin, in that order.
func readInput(path, text string, stdin io.Reader) ([]byte, error) {
	switch {
	case text != "":
		return []byte(text), nil
	case path != "":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload: %w", err)
		}
		return b, nil
	default:
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		if len(strings.TrimSpace(string(b))) == 0 {
			return nil, errors.New("no input: pass --payload, --text or pipe the analysis on stdin")
		}
		return b, nil
	}
}

func newChecker(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*checker.Checker, error) {
	opts, err := cfg.EngineOptions()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	adapters := buildAdapters(ctx, logger, cfg, opts.Location)
	if len(adapters) == 0 {
		logger.Warn("No calendar sources configured.")
	}
	logger.Debug("Calendar sources ready.", "count", len(adapters), "timezone", opts.Location, "timeout", cfg.AdapterTimeout().Round(time.Millisecond))
	return checker.NewChecker(logger, adapters, opts, cfg.DefaultDuration(), cfg.AdapterTimeout()), nil
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
