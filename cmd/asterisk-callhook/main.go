package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/asterisk-callhook/internal/ami"
	"github.com/sweeney/asterisk-callhook/internal/config"
	"github.com/sweeney/asterisk-callhook/internal/dispatch"
	"github.com/sweeney/asterisk-callhook/internal/notify"
	"github.com/sweeney/asterisk-callhook/internal/publisher"
)

const (
	reconnectDelay = 5 * time.Second
	logoffGrace    = 2 * time.Second
)

func main() {
	configPath := flag.String("config", "/etc/asterisk-callhook/asterisk-callhook.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down", sig)
		cancel()
	}()

	pubs, err := buildPublishers(cfg)
	if err != nil {
		log.Fatalf("setting up publishers: %v", err)
	}

	if err := serve(ctx, cfg, pubs); err != nil {
		log.Printf("error: %v", err)
		os.Exit(1)
	}
}

// serve runs the bridge until ctx is cancelled or the session loop gives up.
// The publishers are closed before it returns.
func serve(ctx context.Context, cfg *config.Config, pubs []publisher.Publisher) error {
	defer closeAll(pubs)

	b, err := newBridge(cfg, pubs, log.Default())
	if err != nil {
		return fmt.Errorf("building rules: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.sender.Run(gctx) })
	g.Go(func() error { return run(gctx, cfg, b.dispatcher) })
	err = g.Wait()

	st := b.sender.Stats()
	log.Printf("shutdown complete (%d delivered, %d failed, %d dropped)", st.Delivered, st.Failed, st.Dropped)
	return err
}

func buildPublishers(cfg *config.Config) ([]publisher.Publisher, error) {
	pubs := []publisher.Publisher{
		publisher.NewWebhookPublisher(publisher.WebhookOptions{
			URL:     cfg.Webhook.URL,
			Timeout: cfg.Webhook.Timeout,
		}),
	}
	log.Printf("delivering notifications to %s", cfg.Webhook.URL)

	if cfg.MQTTEnabled() {
		mq, err := publisher.NewMQTTPublisher(publisher.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			QoS:      1,
		})
		if err != nil {
			closeAll(pubs)
			return nil, err
		}
		pubs = append(pubs, mq)
		log.Printf("connected to MQTT broker %s", cfg.MQTT.Broker)
	}
	return pubs, nil
}

func closeAll(pubs []publisher.Publisher) {
	for _, p := range pubs {
		if err := p.Close(); err != nil {
			log.Printf("closing %s: %v", p.Name(), err)
		}
	}
}

// bridge is the event path: dispatcher in front, single-worker sender behind.
type bridge struct {
	dispatcher *dispatch.Dispatcher
	sender     *notify.Sender
}

func newBridge(cfg *config.Config, pubs []publisher.Publisher, logger *log.Logger) (*bridge, error) {
	table, err := dispatch.BuildTable(cfg.Rules)
	if err != nil {
		return nil, err
	}
	for _, r := range table.Rules() {
		logger.Printf("rule %s", r)
	}

	sender := notify.NewSender(pubs,
		notify.WithQueueSize(cfg.Delivery.QueueSize),
		notify.WithDrainTimeout(cfg.Delivery.DrainTimeout),
		notify.WithTopicPrefix(cfg.MQTT.TopicPrefix),
		notify.WithLogger(logger),
	)
	d := dispatch.New(table, sender,
		dispatch.WithEventLog(cfg.DebugEvents),
		dispatch.WithLogger(logger),
	)
	return &bridge{dispatcher: d, sender: sender}, nil
}

// run keeps an AMI session open until ctx is cancelled. Connection errors
// are retried; a rejected login is returned.
func run(ctx context.Context, cfg *config.Config, d *dispatch.Dispatcher) error {
	for {
		err := runSession(ctx, cfg, d)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ami.ErrAuthFailed) {
			return err
		}
		if err != nil {
			log.Printf("AMI session error: %v, reconnecting in %s", err, reconnectDelay)
			select {
			case <-time.After(reconnectDelay):
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func runSession(ctx context.Context, cfg *config.Config, d *dispatch.Dispatcher) error {
	addr := cfg.AMI.Addr()
	log.Printf("connecting to AMI at %s", addr)

	sess, err := ami.Dial(ctx, addr, ami.WithTimeout(10*time.Second))
	if err != nil {
		return err
	}
	defer sess.Close()
	log.Printf("AMI banner: %s", sess.Banner())

	if err := sess.Login(cfg.AMI.Username, cfg.AMI.Secret); err != nil {
		return err
	}
	log.Println("AMI authenticated, processing events")

	// Log off when cancelled; close anyway if the manager does not hang up.
	stop := context.AfterFunc(ctx, func() {
		if err := sess.Logoff(); err != nil {
			log.Printf("AMI logoff: %v", err)
			sess.Close()
			return
		}
		time.AfterFunc(logoffGrace, func() { sess.Close() })
	})
	defer stop()

	err = sess.Events(func(evt ami.Event) {
		d.Dispatch(evt)
	})
	if ctx.Err() != nil {
		log.Println("AMI session logged off")
		return nil
	}
	return err
}
