package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/foliowatch/foliowatch/alerts"
	"github.com/foliowatch/foliowatch/internal/config"
	"github.com/foliowatch/foliowatch/marketdata"
	"github.com/foliowatch/foliowatch/marketdata/stream"
)

// app is what every command needs: the configuration and a logger.
type app struct {
	cfg    *config.Config
	logger *zap.SugaredLogger
}

func newApp() (*app, error) {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger}, nil
}

func newLogger(level string) (*zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.DisableStacktrace = true
	zcfg.OutputPaths = []string{"stderr"}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}

func (a *app) streamClient(opts ...stream.Option) *stream.Client {
	s := a.cfg.Stream
	opts = append([]stream.Option{
		stream.WithLogger(a.logger),
		stream.WithToken(a.cfg.Finnhub.Token),
		stream.WithBaseURL(a.cfg.Finnhub.WSURL),
		stream.WithReconnectSettings(s.ReconnectLimit, s.ReconnectDelay),
		stream.WithMaxReconnectDelay(s.MaxReconnectDelay),
		stream.WithBufferSize(s.BufferSize),
		stream.WithBufferFillCallback(func(msg []byte) {
			a.logger.Warnf("livestream: buffer full, dropped %d bytes", len(msg))
		}),
	}, opts...)
	return stream.NewClient(opts...)
}

func (a *app) quoteClient() *marketdata.Client {
	return marketdata.NewClient(marketdata.ClientOpts{
		Token:   a.cfg.Finnhub.Token,
		BaseURL: a.cfg.Finnhub.APIURL,
	})
}

func (a *app) alertStorage() (alerts.Storage, func(), error) {
	switch a.cfg.Alerts.Store {
	case "redis":
		r := a.cfg.Redis
		client := redis.NewClient(&redis.Options{
			Addr:     r.Addr,
			Password: r.Password,
			DB:       r.DB,
		})
		return alerts.NewRedisStorage(client, r.Prefix), func() { client.Close() }, nil
	case "memory":
		return alerts.NewMemoryStorage(), func() {}, nil
	case "file":
		return alerts.NewFileStorage(a.cfg.Alerts.Dir), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown alert store %q", a.cfg.Alerts.Store)
}

func (a *app) alertManager(ctx context.Context, storage alerts.Storage) *alerts.Manager {
	opts := []alerts.Option{alerts.WithLogger(a.logger)}
	if a.cfg.Alerts.Notify {
		opts = append(opts, alerts.WithNotifier(alerts.NewDesktopNotifier()))
	}
	if a.cfg.Alerts.Chime {
		opts = append(opts, alerts.WithChime(alerts.Bell{W: os.Stdout}))
	}
	return alerts.NewManager(ctx, storage, opts...)
}

// printMarkdown renders md for the terminal, falling back to the raw text.
func printMarkdown(md string) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(120),
	)
	if err == nil {
		var out string
		if out, err = r.Render(md); err == nil {
			fmt.Print(out)
			return
		}
	}
	fmt.Print(md)
}
