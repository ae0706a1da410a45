package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiranshivaraju/convointel/pkg/client"
)

const defaultURL = "http://localhost:8080"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "convoctl",
	Short: "convoctl is a command line tool for the convointel API",
	Long: `convoctl submits call recordings for analysis and reads back the results.

Uploads are processed asynchronously: the server transcribes the recording,
then generates insights. Each poll of an analysis advances it, so 'wait'
keeps polling until the analysis is COMPLETE or FAILED.

Common workflows:

  Upload a recording and wait for the result:
    convoctl submit call.wav --description "Discovery call" --wait

  Check an analysis once:
    convoctl status <analysis-id>

  List completed analyses:
    convoctl list --status COMPLETE

  Get coaching feedback for a practice call:
    convoctl feedback <simulation-id>

Configuration:
  Set the API endpoint and key via flags, environment variables or
  $HOME/.convoctl.yaml:
    CONVOINTEL_URL      API endpoint (default: http://localhost:8080)
    CONVOINTEL_TOKEN    API key for authentication`,
	SilenceUsage: true,
}

// Execute runs the root command. Ctrl-C cancels in-flight requests.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".convoctl")
		viper.SetConfigType("yaml")
	}

	// CONVOINTEL_URL, CONVOINTEL_TOKEN
	viper.SetEnvPrefix("CONVOINTEL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newClient builds an API client from the resolved url and token.
func newClient() (*client.Client, error) {
	token := viper.GetString("token")
	if token == "" {
		return nil, errors.New("API token not found. Set it with --token or the CONVOINTEL_TOKEN environment variable")
	}
	url := viper.GetString("url")
	if url == "" {
		url = defaultURL
	}
	return client.New(url, token), nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.convoctl.yaml)")

	rootCmd.PersistentFlags().String("url", defaultURL, "convointel API URL")
	rootCmd.PersistentFlags().StringP("token", "t", "", "API key for authentication")
	bindFlags()
}

func bindFlags() {
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}
