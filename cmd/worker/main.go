package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/railbooking/config"
	"github.com/Domenick1991/railbooking/internal/kafka"
	"github.com/Domenick1991/railbooking/internal/logger"
	"github.com/Domenick1991/railbooking/internal/notify"
	"github.com/sirupsen/logrus"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	if !cfg.Kafka.Enabled() {
		log.Fatal("kafka brokers not configured, nothing to consume")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic, log)
	defer consumer.Close()

	sender := notify.NewSender(log)

	log.WithFields(logrus.Fields{
		"topic": cfg.Kafka.NotificationsTopic,
		"group": cfg.Kafka.GroupID,
	}).Info("notification worker started")

	if err := consumer.ConsumeEvents(ctx, sender.Send); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("consumer stopped: %v", err)
		return
	}
	log.Info("notification worker stopped")
}
