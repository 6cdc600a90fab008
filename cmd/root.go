package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jhansche/ha-birdbuddy/cmd/serve"
	"github.com/jhansche/ha-birdbuddy/internal/conf"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "birdbuddy",
		Short: "Bird Buddy smart feeder bridge",
		Long:  "Polls the Bird Buddy cloud for feeder activity and exposes recent visitors over MQTT and a local HTTP API.",
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
	}

	rootCmd.AddCommand(serve.Command(settings))

	return rootCmd
}

// setupFlags configures persistent flags shared by all commands and binds
// them to viper so the precedence order is flags, env, config file.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	cmd.PersistentFlags().StringVar(&settings.BirdBuddy.AccessToken, "token", viper.GetString("birdbuddy.accesstoken"), "Bird Buddy API access token")
	cmd.PersistentFlags().DurationVar(&settings.BirdBuddy.PollInterval, "pollinterval", viper.GetDuration("birdbuddy.pollinterval"), "Cloud polling interval")

	if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
