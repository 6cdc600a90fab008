package conf

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ValidateSettings checks the loaded settings for values that would only
// fail later at runtime.
func ValidateSettings(settings *Settings) error {
	if err := validateBirdBuddySettings(&settings.BirdBuddy); err != nil {
		return err
	}
	if err := validateMQTTSettings(&settings.MQTT); err != nil {
		return err
	}
	if settings.HTTP.Enabled && settings.HTTP.Listen == "" {
		return fmt.Errorf("http.listen must be set when the HTTP API is enabled")
	}
	if settings.Notification.Enabled && len(settings.Notification.URLs) == 0 {
		return fmt.Errorf("notification.urls must not be empty when notifications are enabled")
	}
	return nil
}

func validateBirdBuddySettings(s *BirdBuddySettings) error {
	if s.APIURL == "" {
		return fmt.Errorf("birdbuddy.apiurl must not be empty")
	}
	u, err := url.Parse(s.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("birdbuddy.apiurl is not a valid URL: %q", s.APIURL)
	}
	if s.PollInterval < time.Minute {
		return fmt.Errorf("birdbuddy.pollinterval must be at least 1m, got %s", s.PollInterval)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("birdbuddy.timeout must be positive, got %s", s.Timeout)
	}
	return nil
}

func validateMQTTSettings(s *MQTTSettings) error {
	if !s.Enabled {
		return nil
	}
	if s.Broker == "" {
		return fmt.Errorf("mqtt.broker must be set when MQTT is enabled")
	}
	if !strings.Contains(s.Broker, "://") {
		return fmt.Errorf("mqtt.broker must include a scheme (tcp://, ssl:// or ws://): %q", s.Broker)
	}
	if s.TopicPrefix == "" {
		return fmt.Errorf("mqtt.topicprefix must not be empty")
	}
	return nil
}
