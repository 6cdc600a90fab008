package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	return &Settings{
		Main: MainSettings{Name: "birdbuddy"},
		BirdBuddy: BirdBuddySettings{
			APIURL:         "https://graphql.birdbuddy.com/graphql",
			AccessToken:    "token",
			PollInterval:   10 * time.Minute,
			Timeout:        45 * time.Second,
			CollectionsTTL: 30 * time.Minute,
		},
	}
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateSettings(validSettings()))

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{
			name:    "missing api url",
			mutate:  func(s *Settings) { s.BirdBuddy.APIURL = "" },
			wantErr: "apiurl",
		},
		{
			name:    "api url without scheme",
			mutate:  func(s *Settings) { s.BirdBuddy.APIURL = "graphql.birdbuddy.com" },
			wantErr: "not a valid URL",
		},
		{
			name:    "poll interval too short",
			mutate:  func(s *Settings) { s.BirdBuddy.PollInterval = 30 * time.Second },
			wantErr: "pollinterval",
		},
		{
			name:    "non-positive timeout",
			mutate:  func(s *Settings) { s.BirdBuddy.Timeout = 0 },
			wantErr: "timeout",
		},
		{
			name: "mqtt enabled without broker",
			mutate: func(s *Settings) {
				s.MQTT.Enabled = true
				s.MQTT.TopicPrefix = "birdbuddy"
			},
			wantErr: "mqtt.broker",
		},
		{
			name: "mqtt broker without scheme",
			mutate: func(s *Settings) {
				s.MQTT.Enabled = true
				s.MQTT.Broker = "localhost:1883"
				s.MQTT.TopicPrefix = "birdbuddy"
			},
			wantErr: "scheme",
		},
		{
			name: "mqtt enabled without topic prefix",
			mutate: func(s *Settings) {
				s.MQTT.Enabled = true
				s.MQTT.Broker = "tcp://localhost:1883"
			},
			wantErr: "topicprefix",
		},
		{
			name: "http enabled without listen address",
			mutate: func(s *Settings) {
				s.HTTP.Enabled = true
				s.HTTP.Listen = ""
			},
			wantErr: "http.listen",
		},
		{
			name: "notifications enabled without urls",
			mutate: func(s *Settings) {
				s.Notification.Enabled = true
			},
			wantErr: "notification.urls",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := validSettings()
			tt.mutate(s)
			err := ValidateSettings(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateSettingsDisabledSubsystemsAreIgnored(t *testing.T) {
	t.Parallel()

	s := validSettings()
	s.MQTT.Enabled = false
	s.MQTT.Broker = "" // irrelevant while disabled
	s.HTTP.Enabled = false
	require.NoError(t, ValidateSettings(s))
}
