package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/davidroman0O/gopref"
	"github.com/davidroman0O/gopref/store/sqlite"
)

// passphraseEnv holds the passphrase the database key is derived from.
const passphraseEnv = "GOPREF_PASSPHRASE"

type options struct {
	configPath string
	dbPath     string
	namespace  string
	verbose    bool
}

// session is an open database and the preferences over it.
type session struct {
	prefs   *gopref.Preferences
	backend *sqlite.Store
	logger  *zap.Logger
}

func (s *session) Close() error {
	err := s.prefs.Close()
	if cerr := s.backend.Close(); err == nil {
		err = cerr
	}
	_ = s.logger.Sync()
	return err
}

func newLogger(level string, verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if verbose {
		lvl = zapcore.DebugLevel
	}
	config.Level = zap.NewAtomicLevelAt(lvl)
	config.OutputPaths = []string{"stderr"}
	return config.Build()
}

func (o *options) open() (*session, error) {
	cfg, err := gopref.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.dbPath != "" {
		cfg.DatabasePath = o.dbPath
	}
	if o.namespace != "" {
		cfg.Namespace = o.namespace
	}

	passphrase := os.Getenv(passphraseEnv)
	if passphrase == "" {
		return nil, fmt.Errorf("%s is not set", passphraseEnv)
	}

	logger, err := newLogger(cfg.LogLevel, o.verbose)
	if err != nil {
		return nil, err
	}

	backend, err := sqlite.Open(cfg.DatabasePath, sqlite.Options{
		Namespace:  cfg.Namespace,
		Passphrase: passphrase,
		KeyParams:  cfg.KeyParams(),
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("Opened database",
		zap.String("path", cfg.DatabasePath),
		zap.String("namespace", cfg.Namespace))

	opts := append(cfg.Options(), gopref.WithLogger(gopref.NewZapLogger(logger)))
	prefs, err := gopref.New(backend, opts...)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return &session{prefs: prefs, backend: backend, logger: logger}, nil
}

// withSession opens a session around run.
func (o *options) withSession(run func(cmd *cobra.Command, s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := o.open()
		if err != nil {
			return err
		}
		defer s.Close()
		return run(cmd, s, args)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	o := &options{}

	rootCmd := &cobra.Command{
		Use:   "gopref",
		Short: "Inspect and edit encrypted preferences",
		Long: `gopref reads and writes typed preferences kept in an encrypted SQLite
database. The encryption key is derived from the passphrase in
` + passphraseEnv + `.`,
		SilenceUsage: true,
	}
	rootCmd.SetOut(out)

	rootCmd.PersistentFlags().StringVarP(&o.configPath, "config", "c", "gopref.yaml", "Configuration file")
	rootCmd.PersistentFlags().StringVar(&o.dbPath, "db", "", "Database path (overrides the configuration)")
	rootCmd.PersistentFlags().StringVarP(&o.namespace, "namespace", "n", "", "Namespace (overrides the configuration)")
	rootCmd.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(
		newKeysCmd(o),
		newDumpCmd(o),
		newCountCmd(o),
		newGetCmd(o),
		newPutCmd(o),
		newClearCmd(o),
		newWatchCmd(o),
	)
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
