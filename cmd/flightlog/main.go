package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"flightlog/internal/app"
)

// options holds raw flag values. They override the loaded configuration
// only when set on the command line.
type options struct {
	configFile  string
	apiKey      string
	output      string
	outputDir   string
	logLevel    string
	stdout      bool
	gzip        bool
	verbose     bool
	showVersion bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "flightlog",
		Short: "UAV flight log to GeoJSON converter",
		Long: `Decodes DJI-style binary flight logs, including obfuscated and
encrypted formats, and renders the flight track as GeoJSON.

Example usage:
  flightlog convert DJIFlightRecord_2020-09-13.txt --api-key $KEY
  flightlog info DJIFlightRecord_2020-09-13.txt`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				app.ShowVersion(cmd.OutOrStdout())
				return nil
			}
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose logging")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", app.DefaultLogLevel, "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&opts.apiKey, "api-key", "k", "", "Credential for encrypted logs")
	rootCmd.Flags().BoolVar(&opts.showVersion, "version", false, "Show version information")

	rootCmd.AddCommand(newConvertCommand(&opts), newInfoCommand(&opts))
	return rootCmd
}

func newConvertCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert FILE...",
		Short: "Convert flight logs to GeoJSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if config.Output != "" && len(args) > 1 {
				return fmt.Errorf("--output needs a single input file, got %d", len(args))
			}

			application, err := app.NewApplication(config, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			for _, path := range args {
				written, err := application.Convert(path)
				if err != nil {
					return err
				}
				if written != "" {
					fmt.Fprintln(cmd.OutOrStdout(), written)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file (single input only)")
	cmd.Flags().StringVarP(&opts.outputDir, "output-dir", "d", "", "Output directory (default next to the input)")
	cmd.Flags().BoolVar(&opts.stdout, "stdout", false, "Write GeoJSON to standard output")
	cmd.Flags().BoolVarP(&opts.gzip, "gzip", "z", false, "Gzip-compress written files")
	return cmd
}

func newInfoCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "info FILE",
		Short: "Print a summary of a flight log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			application, err := app.NewApplication(config, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			_, err = application.Info(args[0])
			return err
		},
	}
}

// loadConfig merges defaults, the YAML file, the environment and the flags
// that were set, in increasing precedence
func loadConfig(cmd *cobra.Command, opts *options) (app.Config, error) {
	config, err := app.Load(opts.configFile)
	if err != nil {
		return app.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("api-key") {
		config.APIKey = opts.apiKey
	}
	if flags.Changed("log-level") {
		config.LogLevel = opts.logLevel
	}
	if flags.Changed("output-dir") {
		config.OutputDir = opts.outputDir
	}
	if flags.Changed("gzip") {
		config.Gzip = opts.gzip
	}
	config.Output = opts.output
	config.Stdout = opts.stdout
	config.Verbose = opts.verbose
	return config, nil
}
