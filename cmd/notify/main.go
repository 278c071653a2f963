package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"eventsphere/internal/core/domain"
	"eventsphere/internal/core/services"
	"eventsphere/internal/infrastructure/repositories"
	"eventsphere/pkg/config"
	"eventsphere/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

var channels = map[string]domain.Channel{
	"notifications": domain.ChannelNotifications,
	"admin":         domain.ChannelAdmin,
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "notify:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("notify", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to the YAML config file")
	channelName := flags.String("channel", "notifications", "bus channel: notifications or admin")
	eventType := flags.StringP("event", "e", "", "client event name (required)")
	payload := flags.StringP("payload", "p", "", "JSON payload delivered as the event data")
	room := flags.StringP("room", "r", "", "target room, e.g. user_42 or event_7")
	if err := flags.Parse(args); err != nil {
		return err
	}

	_ = godotenv.Load()

	msg, err := buildMessage(*channelName, *eventType, *payload, *room)
	if err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if cfg.Bus.Backend != "redis" {
		return errors.New("bus.backend must be redis to reach running socket servers")
	}

	zapLogger := logger.NewWithFormat(cfg.Logging.Level, "console")
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	factory, err := repositories.NewRepositoryFactory(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer factory.Close()

	bus, err := factory.CreateMessageBus()
	if err != nil {
		return err
	}
	defer bus.Close()

	bridge := services.NewBusBridge(bus, nil, cfg.PublishRetry(), nil, log)
	if err := bridge.Publish(ctx, msg); err != nil {
		return err
	}

	log.Infow("published", "channel", msg.Channel, "event_type", msg.EventType, "target_room", msg.TargetRoom)
	return nil
}

// buildMessage checks the flags that can be checked without a bus.
func buildMessage(channelName, eventType, payload, room string) (domain.ChannelMessage, error) {
	channel, ok := channels[channelName]
	if !ok {
		return domain.ChannelMessage{}, fmt.Errorf("unknown channel %q", channelName)
	}
	if eventType == "" {
		return domain.ChannelMessage{}, errors.New("--event is required")
	}

	msg := domain.ChannelMessage{
		Channel:    channel,
		EventType:  eventType,
		TargetRoom: domain.RoomName(room),
	}
	if payload != "" {
		if !json.Valid([]byte(payload)) {
			return domain.ChannelMessage{}, errors.New("--payload must be valid JSON")
		}
		msg.Payload = json.RawMessage(payload)
	}
	if room != "" {
		if _, err := domain.ParseRoom(room); err != nil {
			return domain.ChannelMessage{}, err
		}
	}
	if room == "" {
		if _, ok := channel.DefaultRoom(); !ok {
			return domain.ChannelMessage{}, fmt.Errorf("--room is required on the %s channel", channelName)
		}
	}
	return msg, nil
}
