package main

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mediafetch/fetchd/internal/engine"
	"github.com/mediafetch/fetchd/internal/log"
	"github.com/mediafetch/fetchd/internal/vault"
)

var (
	userConfigPath string // /default/config/path/fetchd on given OS
	configPath     string // actual config file used (if loaded)

	serviceCfg serviceConfig
	engineCfg  engine.Config

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
)

type serviceConfig struct {
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Verbose bool   `mapstructure:"verbose" yaml:"verbose"`
}

type appConfig struct {
	Service serviceConfig `yaml:"service"`
	Engine  engine.Config `yaml:"engine"`
}

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "fetchd")
}

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is fetchd.yaml in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	// never print messages
	rootCmd.SilenceErrors = true

	rootCmd.PersistentPreRunE = initFetchd

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("fetchd failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "fetchd",
	Short:        "Service orchestrating media fetch jobs driven by an external extraction tool",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve runs the HTTP API, the job engine and the janitor",
	RunE:  doServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provides version of fetchd",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("fetchd: version info not available")
		}

		if configPath != "" {
			fmt.Printf("config: %s\n", configPath)
		}
		fmt.Printf("fetchd: %s\n", info.Main.Version)
		fmt.Printf("go:     %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit: %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:   %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:  %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func initFetchd(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("FETCHDCONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{userConfigPath, "."} {
			path := filepath.Join(d, "fetchd.yaml")
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	// store default configuration
	if configPath == "" {
		configPath = filepath.Join(userConfigPath, "fetchd.yaml")
		if err := writeDefaultConfig(configPath); err != nil {
			return err
		}
	}

	viper.SetConfigFile(configPath)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config %s: %w", configPath, err)
	}
	if err := viper.UnmarshalKey("service", &serviceCfg); err != nil {
		return fmt.Errorf("parsing service config: %w", err)
	}
	var err error
	engineCfg, err = engine.ParseConfig("engine")
	if err != nil {
		return fmt.Errorf("parsing engine config: %w", err)
	}

	if serviceCfg.Listen == "" {
		serviceCfg.Listen = ":8080"
	}

	// --verbose has a precedence over config file
	if flagVerbose {
		serviceCfg.Verbose = true
	}
	slog.SetDefault(log.New(serviceCfg.Verbose))

	slog.Debug("fetchd run", "configPath", configPath)
	return nil
}

func writeDefaultConfig(path string) error {
	key, err := vault.NewKey()
	if err != nil {
		return fmt.Errorf("generating credentials key: %w", err)
	}

	config := appConfig{
		Service: serviceConfig{Listen: ":8080"},
		Engine:  engine.Config{}.WithDefaults(),
	}
	config.Engine.Credentials.Key = base64.StdEncoding.EncodeToString(key)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	enc := yaml.NewEncoder(f)
	if err := enc.Encode(config); err != nil {
		return fmt.Errorf("storing configuration: %w", err)
	}
	return nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
