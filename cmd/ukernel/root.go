package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"ukernel/pkg/config"
	"ukernel/pkg/engine"
	"ukernel/pkg/fdtable"
	"ukernel/pkg/kernel"
	"ukernel/pkg/logging"
	"ukernel/pkg/programs"
)

// kernelFlags are shared by every command that boots a kernel.
type kernelFlags struct {
	configPath string
	envFile    string
	verbose    bool
}

func (f *kernelFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.configPath, "config", "c", "", "kernel configuration file (.yaml, .yml, .json or .jsonc)")
	fs.StringVar(&f.envFile, "env-file", ".env", "file with "+config.EnvPrefix+"* overrides")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "log every system call")
}

// load builds the configuration: defaults, then the config file, then the
// env file and the environment, then the flags.
func (f *kernelFlags) load(fs *pflag.FlagSet) (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	env, err := config.ReadEnvFile(f.envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(config.MapLookup(env)); err != nil {
		return nil, err
	}

	if fs.Changed("verbose") {
		cfg.Verbose = f.verbose
	}
	return cfg, cfg.Validate()
}

// newRegistry returns a registry holding the built-in images.
func newRegistry(suffix string) (*engine.Registry, error) {
	reg := engine.NewRegistry(suffix)
	if err := programs.RegisterAll(reg); err != nil {
		return nil, fmt.Errorf("register images: %w", err)
	}
	return reg, nil
}

// bootKernel creates a kernel with the built-in images.
func bootKernel(cfg *config.Config, console *fdtable.Console) (*kernel.Kernel, error) {
	reg, err := newRegistry(cfg.ImageSuffix)
	if err != nil {
		return nil, err
	}
	return kernel.New(cfg,
		kernel.WithRegistry(reg),
		kernel.WithConsole(console),
		kernel.WithLogger(logging.NewConsoleLogger(cfg.Verbose)),
	)
}

func newRootCmd() *cobra.Command {
	flags := &kernelFlags{}

	root := &cobra.Command{
		Use:   "ukernel",
		Short: "Run programs on a simulated teaching kernel",
		Long: `ukernel simulates the file and process layer of a small teaching kernel.

Programs are built-in images such as multiproc.coff. They see a flat file
store, per-process descriptor tables with stdin on 0 and stdout on 1, and
the halt, exit, exec, join, create, open, read, write, close and unlink
system calls.

Exit Codes:
  N   - exit status of the root process (run)
  1   - general error
  2   - usage error
  3   - panic
  130 - interrupted`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags.register(root.PersistentFlags())

	root.AddCommand(
		newRunCmd(flags),
		newImagesCmd(),
		newShellCmd(flags),
	)
	return root
}
