package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig sets the default value for every configuration parameter.
// A config file only needs to carry the values it overrides.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "birdbuddy-go")

	viper.SetDefault("birdbuddy.apiurl", "https://graphql.birdbuddy.com/graphql")
	viper.SetDefault("birdbuddy.accesstoken", "")
	// Keep the poll interval below the access token lifetime so the token
	// stays warm between polls.
	viper.SetDefault("birdbuddy.pollinterval", 10*time.Minute)
	viper.SetDefault("birdbuddy.timeout", 45*time.Second)
	viper.SetDefault("birdbuddy.collectionsttl", 30*time.Minute)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.topicprefix", "birdbuddy")
	viper.SetDefault("mqtt.retain", true)
	viper.SetDefault("mqtt.discovery.enabled", true)
	viper.SetDefault("mqtt.discovery.prefix", "homeassistant")

	viper.SetDefault("http.enabled", true)
	viper.SetDefault("http.listen", ":8090")

	viper.SetDefault("datastore.path", "birdbuddy.db")

	viper.SetDefault("notification.enabled", false)
	viper.SetDefault("notification.urls", []string{})
}
