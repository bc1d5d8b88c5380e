package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"metamirror/internal/utils"
	"metamirror/pkg/meta"
	"metamirror/pkg/reqlog"
	"metamirror/pkg/storage"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "metamirror",
	Short: "A write-through local mirror for Meta advertising entities.",
	Long: `metamirror manages campaigns, ad sets and ads on the Meta Graph API
while keeping a local SQLite mirror of everything the platform has confirmed.
The mirror never claims state the remote has not acknowledged: every mutation
goes remote first and is recorded locally only on success.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.metamirror.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("dbpath", "", "Path to SQLite mirror file (default is $HOME/.config/metamirror/mirror.sqlite)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".metamirror")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := home + "/.metamirror.yaml"
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		}
	}

	// Set default empty values for all keys
	viper.SetDefault("meta.access_token", "")
	viper.SetDefault("meta.account_id", "")
	viper.SetDefault("meta.page_id", "")
	viper.SetDefault("meta.base_url", "")
	viper.SetDefault("meta.retry_max", 0)
	viper.SetDefault("logdir", "")
	viper.SetDefault("dbpath", "")

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}

// configDir is where the mirror and request logs live unless overridden.
func configDir() string {
	home, err := homedir.Dir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "metamirror")
}

func resolveDBPath(cmd *cobra.Command) string {
	if p, _ := cmd.Flags().GetString("dbpath"); p != "" {
		return p
	}
	if p := viper.GetString("dbpath"); p != "" {
		return p
	}
	return filepath.Join(configDir(), "mirror.sqlite")
}

func resolveLogDir() string {
	if d := viper.GetString("logdir"); d != "" {
		return d
	}
	return filepath.Join(configDir(), "logs")
}

func openMirror(cmd *cobra.Command) (*storage.DB, error) {
	path := resolveDBPath(cmd)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return storage.Open(path)
}

// newRemoteClient builds the platform client from config. Credentials are
// read once here and never change for the process lifetime.
func newRemoteClient() (*meta.Client, error) {
	token := viper.GetString("meta.access_token")
	account := viper.GetString("meta.account_id")
	if token == "" || account == "" {
		return nil, fmt.Errorf("meta.access_token and meta.account_id must be set in %s", viper.ConfigFileUsed())
	}
	return meta.NewClient(meta.Config{
		BaseURL:     viper.GetString("meta.base_url"),
		AccessToken: token,
		AccountID:   account,
		PageID:      viper.GetString("meta.page_id"),
		RetryMax:    viper.GetInt("meta.retry_max"),
	}, reqlog.New(resolveLogDir())), nil
}
