package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/consentinel/api/schemas"
	"github.com/xkilldash9x/consentinel/internal/browser"
	"github.com/xkilldash9x/consentinel/internal/classifier"
	"github.com/xkilldash9x/consentinel/internal/complexity"
	"github.com/xkilldash9x/consentinel/internal/config"
	"github.com/xkilldash9x/consentinel/internal/history"
	"github.com/xkilldash9x/consentinel/internal/learning"
	"github.com/xkilldash9x/consentinel/internal/lexicon"
	"github.com/xkilldash9x/consentinel/internal/negotiation"
	"github.com/xkilldash9x/consentinel/internal/notify"
	"github.com/xkilldash9x/consentinel/internal/observability"
	"github.com/xkilldash9x/consentinel/internal/session"
	"github.com/xkilldash9x/consentinel/internal/storage"
	"github.com/xkilldash9x/consentinel/internal/strategy"
)

// newRunCmd creates the `run` command: open each URL in a browser tab and
// dismiss whatever consent banners appear.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [urls...]",
		Short: "Opens the given pages and dismisses their consent banners",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags so command-line values override config file and env.
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			if err := viper.BindPFlag("browser.debug", cmd.Flags().Lookup("debug")); err != nil {
				return err
			}
			if err := viper.BindPFlag("engine.session_timeout", cmd.Flags().Lookup("timeout")); err != nil {
				return err
			}
			if err := viper.BindPFlag("learning.enabled", cmd.Flags().Lookup("learning")); err != nil {
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := observability.GetLogger()
			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("finalizing configuration: %w", err)
			}

			deps, err := buildComponents(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer deps.teardown(logger)

			manager := browser.NewManager(cfg.Browser(), logger)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
				defer cancel()
				if err := manager.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Browser shutdown incomplete", zap.Error(err))
				}
			}()

			exitOK := true
			for _, url := range args {
				if ctx.Err() != nil {
					break
				}
				summary, err := processPage(ctx, cfg, deps, manager, url, logger)
				if err != nil {
					logger.Error("Page processing failed", zap.String("url", url), zap.Error(err))
					exitOK = false
					continue
				}
				logger.Info("Page processed",
					zap.String("url", url),
					zap.Int("candidates", summary.Candidates),
					zap.Int("dismissed", summary.Dismissed))
				if summary.Candidates > summary.Dismissed {
					exitOK = false
				}
			}

			if !exitOK {
				return fmt.Errorf("one or more pages kept an undismissed banner")
			}
			return nil
		},
	}

	runCmd.Flags().Bool("headless", true, "run the browser headless")
	runCmd.Flags().Bool("debug", false, "enable browser protocol debug logging")
	runCmd.Flags().Duration("timeout", 60*time.Second, "per-page session timeout")
	runCmd.Flags().Bool("learning", true, "enable the learning optimizer")
	return runCmd
}

// components bundles the long-lived collaborators shared across pages.
type components struct {
	lex       *lexicon.Lexicon
	cls       *classifier.Classifier
	history   *history.Store
	estimator *complexity.Estimator
	optimizer *learning.Optimizer
	notifier  schemas.Notifier
	store     schemas.Storage
	pg        *storage.Postgres
}

func buildComponents(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*components, error) {
	deps := &components{
		lex:      lexicon.New(),
		notifier: notify.NewConsole(logger),
	}
	deps.cls = classifier.New(cfg.Classifier(), deps.lex, logger)

	store, pg, err := openStorage(ctx, cfg.Storage(), logger)
	if err != nil {
		return nil, err
	}
	deps.store = store
	deps.pg = pg

	deps.history = history.New(store, logger)
	deps.estimator = complexity.New(deps.history, deps.lex, logger)

	if cfg.Learning().Enabled {
		opt := learning.New(cfg.Learning(), store, logger)
		if err := opt.Initialize(ctx); err != nil {
			logger.Warn("Learning optimizer unavailable; continuing rule-only", zap.Error(err))
		} else {
			deps.optimizer = opt
		}
	}
	return deps, nil
}

// openStorage picks the configured backend, degrading to memory on trouble.
func openStorage(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (schemas.Storage, *storage.Postgres, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		pg, err := storage.Connect(ctx, cfg.URL, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		return pg, pg, nil
	case config.BackendFile:
		dir := cfg.Path
		if dir == "" {
			var err error
			if dir, err = storage.DefaultDir(); err != nil {
				return nil, nil, err
			}
		}
		fs, err := storage.NewFile(dir, logger)
		if err != nil {
			return nil, nil, err
		}
		return fs, nil, nil
	default:
		return storage.NewMemory(), nil, nil
	}
}

func (c *components) teardown(logger *zap.Logger) {
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if c.history != nil {
		c.history.Flush(flushCtx)
	}
	if c.optimizer != nil {
		c.optimizer.Flush(flushCtx)
	}
	if c.pg != nil {
		c.pg.Close()
	}
	logger.Debug("Component teardown complete")
}

// processPage opens one tab and runs a full session against it.
func processPage(ctx context.Context, cfg config.Interface, deps *components, manager *browser.Manager, url string, logger *zap.Logger) (session.Summary, error) {
	tab, err := manager.NewTab(ctx, url)
	if err != nil {
		return session.Summary{}, err
	}
	defer tab.Close()

	negotiator := negotiation.New(cfg, tab.Driver, deps.cls, deps.lex, logger)

	// A typed-nil optimizer must stay nil through the interface, or the
	// coordinator would see a present-but-broken collaborator.
	var opt schemas.Optimizer
	if deps.optimizer != nil {
		opt = deps.optimizer
	}
	coordinator := strategy.New(cfg, deps.cls, deps.estimator, negotiator, opt, deps.history, deps.notifier, logger)

	agent := session.New(cfg, tab.Driver, deps.cls, deps.lex, coordinator, deps.history, browser.NewScanCache(), logger)
	return agent.Run(ctx), nil
}
