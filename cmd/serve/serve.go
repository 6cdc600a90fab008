// Package serve implements the long-running bridge command.
package serve

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jhansche/ha-birdbuddy/internal/conf"
	"github.com/jhansche/ha-birdbuddy/internal/server"
)

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge",
		Long:  "Start polling the Bird Buddy cloud and serving feeder state until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.Run(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		return cmd
	}
	return cmd
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().BoolVar(&settings.MQTT.Enabled, "mqtt", viper.GetBool("mqtt.enabled"), "Enable MQTT publishing")
	cmd.Flags().StringVar(&settings.MQTT.Broker, "broker", viper.GetString("mqtt.broker"), "MQTT broker URL")
	cmd.Flags().BoolVar(&settings.HTTP.Enabled, "http", viper.GetBool("http.enabled"), "Enable the HTTP API")
	cmd.Flags().StringVar(&settings.HTTP.Listen, "listen", viper.GetString("http.listen"), "HTTP API listen address")
	cmd.Flags().StringVar(&settings.Datastore.Path, "datastore", viper.GetString("datastore.path"), "Path to the SQLite datastore")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
