// Package notification pushes noteworthy sightings to external services
// (Telegram, Pushover, Discord and anything else shoutrrr can reach).
package notification

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"slices"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/jhansche/ha-birdbuddy/internal/errors"
	"github.com/jhansche/ha-birdbuddy/internal/logging"
)

// Notification is one message to push out.
type Notification struct {
	Title   string
	Message string
}

// Notifier pushes notifications to an external service.
type Notifier interface {
	Send(ctx context.Context, n *Notification) error
}

var notificationLogger *slog.Logger

func init() {
	var err error
	notificationLogger, _, err = logging.NewFileLogger("logs/notification.log", "notification", slog.LevelInfo)
	if err != nil {
		logging.Error("Failed to initialize notification file logger", "error", err)
		notificationLogger = logging.ForService("notification")
	}
}

// ShoutrrrNotifier sends via nicholas-fedor/shoutrrr. One sender covers all
// configured URLs.
type ShoutrrrNotifier struct {
	urls    []string
	sender  *router.ServiceRouter
	timeout time.Duration
}

// NewShoutrrrNotifier validates the URLs and builds the sender.
func NewShoutrrrNotifier(urls []string, timeout time.Duration) (*ShoutrrrNotifier, error) {
	cleaned := make([]string, 0, len(urls))
	for _, u := range urls {
		if trimmed := strings.TrimSpace(u); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) == 0 {
		return nil, errors.Newf("at least one notification URL is required").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}

	sender, err := shoutrrr.CreateSender(cleaned...)
	if err != nil {
		return nil, errors.New(err).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))

	return &ShoutrrrNotifier{
		urls:    slices.Clone(cleaned),
		sender:  sender,
		timeout: timeout,
	}, nil
}

// Send pushes the notification to every configured URL, returning the first
// failure.
func (s *ShoutrrrNotifier) Send(ctx context.Context, n *Notification) error {
	if s.sender == nil {
		return fmt.Errorf("shoutrrr sender not initialized")
	}
	_ = ctx // router handles its own timeouts

	params := stypes.Params{}
	if n.Title != "" {
		params.SetTitle(n.Title)
	}
	errs := s.sender.Send(n.Message, &params)
	for _, e := range errs {
		if e != nil {
			return errors.New(e).
				Component("notification").
				Category(errors.CategoryNotification).
				Build()
		}
	}
	return nil
}
