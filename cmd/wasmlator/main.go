// Command wasmlator translates PVM programs into WebAssembly units.
package main

import (
	"fmt"
	"os"

	"github.com/BjoernBoss/wasmlator-sub001/config"
	"github.com/BjoernBoss/wasmlator-sub001/log"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "none"
)

// options are shared by all subcommands; flags override the config file.
type options struct {
	configPath string
	logLevel   string
	debug      string
	program    string
	entry      uint64
	maxDepth   uint32
	singleStep bool
	mapping    string

	cfg *config.Config
}

func (o *options) load(cmd *cobra.Command) error {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.LoadConfig(o.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if flags.Changed("debug") {
		cfg.Log.Modules = o.debug
	}
	if flags.Changed("max-depth") {
		cfg.Translate.MaxDepth = o.maxDepth
	}
	if flags.Changed("single-step") {
		cfg.Translate.SingleStep = o.singleStep
	}
	if flags.Changed("mapping") {
		cfg.Mapping.Path = o.mapping
	}
	o.cfg = cfg

	log.InitLogger(cfg.Log.Level)
	log.EnableModules(cfg.Log.Modules)
	return nil
}

func main() {
	o := &options{}
	rootCmd := &cobra.Command{
		Use:           "wasmlator",
		Short:         "PVM to WebAssembly translator",
		Version:       fmt.Sprintf("%s (%s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.load(cmd)
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&o.configPath, "config", "", "path to a wasmlator.toml")
	pf.StringVar(&o.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	pf.StringVar(&o.debug, "debug", "", "comma separated log modules to enable, or all")
	pf.StringVar(&o.program, "program", "", "path to the program blob")
	pf.Uint64Var(&o.entry, "entry", 0, "guest address translation starts at")
	pf.Uint32Var(&o.maxDepth, "max-depth", 4, "depth budget of a unit")
	pf.BoolVar(&o.singleStep, "single-step", false, "translate one instruction per block")
	pf.StringVar(&o.mapping, "mapping", "", "mapping store directory, in memory if empty")

	rootCmd.AddCommand(newTranslateCmd(o), newRangesCmd(o), newMappingCmd(o), newGraphCmd(o), newDisasmCmd(o))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
