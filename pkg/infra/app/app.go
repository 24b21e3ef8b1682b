// Package app wires cobra commands to the option structs in pkg/options.
//
// Values are resolved in this order, later sources winning: the YAML config
// file, the .env file together with the process environment, then flags set
// on the command line.
package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kart-io/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	options "github.com/kart-io/cyplan/pkg/app"
	"github.com/kart-io/cyplan/pkg/app/cliflag"
)

// App is a runnable command built from options and a run function.
type App struct {
	name        string
	shortDesc   string
	description string
	options     options.CliOptions
	run         func(args []string) error
	envFiles    []string
	cmd         *cobra.Command
}

// Option configures an App.
type Option func(*App)

func WithName(name string) Option { return func(a *App) { a.name = name } }

func WithShortDescription(desc string) Option { return func(a *App) { a.shortDesc = desc } }

func WithDescription(desc string) Option { return func(a *App) { a.description = desc } }

// WithOptions attaches the option struct whose flags the command exposes.
func WithOptions(opts options.CliOptions) Option { return func(a *App) { a.options = opts } }

// WithRunFunc sets a run function that ignores positional arguments.
func WithRunFunc(run func() error) Option {
	return func(a *App) { a.run = func([]string) error { return run() } }
}

// WithArgsRunFunc sets a run function receiving the positional arguments.
func WithArgsRunFunc(run func(args []string) error) Option {
	return func(a *App) { a.run = run }
}

// WithEnvFiles replaces the dotenv files read before configuration (".env").
func WithEnvFiles(files ...string) Option { return func(a *App) { a.envFiles = files } }

// Version returns the git version stamped into the binary.
func Version() string {
	return version.Get().GitVersion
}

// NewApp builds the cobra command for the configured options.
func NewApp(opts ...Option) *App {
	a := &App{name: filepath.Base(os.Args[0]), envFiles: []string{".env"}}
	for _, opt := range opts {
		opt(a)
	}

	a.cmd = &cobra.Command{
		Use:          a.name,
		Short:        a.shortDesc,
		Long:         a.description,
		SilenceUsage: true,
		RunE:         a.execute,
	}
	a.cmd.SetOut(os.Stdout)
	a.cmd.SetErr(os.Stderr)

	pf := a.cmd.PersistentFlags()
	pf.StringP("config", "c", "", "Path to a YAML config file.")
	pf.BoolP("help", "h", false, "Help for "+a.name)
	version.AddFlags(pf)

	if a.options != nil {
		fss := a.options.Flags()
		for _, name := range fss.Order {
			a.cmd.Flags().AddFlagSet(fss.FlagSets[name])
		}
		a.cmd.SetUsageFunc(func(cmd *cobra.Command) error {
			_, _ = fmt.Fprintf(cmd.OutOrStderr(), "Usage:\n  %s\n", cmd.UseLine())
			cliflag.PrintSections(cmd.OutOrStderr(), fss, 0)
			return nil
		})
		a.cmd.SetHelpFunc(func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\n\nUsage:\n  %s\n", cmd.Long, cmd.UseLine())
			cliflag.PrintSections(cmd.OutOrStdout(), fss, 0)
		})
	}
	return a
}

func (a *App) execute(cmd *cobra.Command, args []string) error {
	version.PrintAndExitIfRequested()

	if a.options != nil {
		if err := a.configure(cmd.Flags()); err != nil {
			return err
		}
		if err := a.options.Complete(); err != nil {
			return err
		}
		if err := a.options.Validate(); err != nil {
			return err
		}
	}
	if a.run == nil {
		return nil
	}
	return a.run(args)
}

// configure fills the options from the config file and environment, then
// re-applies every flag the user set explicitly.
func (a *App) configure(flags *pflag.FlagSet) error {
	for _, f := range a.envFiles {
		// Load never overrides variables already present in the environment.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", f, err)
		}
	}

	v := viper.New()
	if path, _ := flags.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(a.name)
		v.SetConfigType("yaml")
		for _, dir := range []string{".", "./configs", filepath.Join(os.Getenv("HOME"), "."+a.name), "/etc/" + a.name} {
			v.AddConfigPath(dir)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config file: %w", err)
		}
	}
	for _, key := range v.AllKeys() {
		if s, ok := v.Get(key).(string); ok {
			v.Set(key, expandEnv(s))
		}
	}

	v.SetEnvPrefix(EnvPrefix(a.name))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	explicit := map[string]string{}
	flags.Visit(func(f *pflag.Flag) { explicit[f.Name] = f.Value.String() })

	if err := v.Unmarshal(a.options); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	for name, val := range explicit {
		if err := flags.Set(name, val); err != nil {
			return fmt.Errorf("re-apply flag %s: %w", name, err)
		}
	}
	return nil
}

// expandEnv substitutes $VAR and ${VAR} with their environment values.
// Unset variables are left as written.
func expandEnv(s string) string {
	return os.Expand(s, func(name string) string {
		if val, ok := os.LookupEnv(name); ok && val != "" {
			return val
		}
		return "${" + name + "}"
	})
}

// EnvPrefix turns an app name such as "cyplan-agent" into "CYPLAN_AGENT".
func EnvPrefix(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// Run executes the command and exits non-zero on error.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Command exposes the underlying cobra command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}
