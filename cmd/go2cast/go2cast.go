package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go2tv.app/go2cast/castprotocol"
	"go2tv.app/go2cast/controller"
	"go2tv.app/go2cast/devices"
	"go2tv.app/go2cast/interactive"
	"go2tv.app/go2cast/internal/config"
	"go2tv.app/go2cast/jobqueue"
	"go2tv.app/go2cast/resolver"
	"go2tv.app/go2cast/servefiles"
	"go2tv.app/go2cast/session"
)

func main() {
	err := run()
	switch {
	case errors.Is(err, devices.ErrNoDeviceAvailable):
		fmt.Println("No cast devices found on the network.")
		os.Exit(0)
	case errors.Is(err, interactive.ErrCancelled):
		os.Exit(0)
	}
	check(err)
}

func run() error {
	conf, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "configuration error")
	}

	logger, closeLog, err := newLogger(conf)
	if err != nil {
		return errors.Wrap(err, "logger error")
	}
	defer closeLog()

	for _, k := range conf.Unknown() {
		logger.Warn().Str("Variable", k).Msg("unknown configuration variable")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ytdlp := &resolver.YtDlp{Path: conf.YtDlpPath}
	if err := ytdlp.Check(ctx); err != nil {
		logger.Warn().Err(err).Msg("yt-dlp unavailable, stream extraction will fail")
	}

	fmt.Println("Looking for cast devices...")
	registry := devices.NewRegistry(conf.DiscoveryTimeout, logger)
	devs, err := registry.Discover(ctx)
	if err != nil {
		return errors.Wrap(err, "discovery error")
	}
	stop()

	s, err := interactive.InitScreen()
	if err != nil {
		return err
	}
	defer s.Fini()

	idx, err := interactive.NewDevicePicker(s, devs).Run()
	if err != nil {
		return err
	}

	dev, err := registry.Select(idx)
	if err != nil {
		return err
	}
	logger.Info().Str("Device", dev.String()).Msg("device selected")

	client, err := castprotocol.NewCastClient(dev.Host, dev.Port)
	if err != nil {
		return errors.Wrap(err, "cast client error")
	}
	client.Logger = logger.With().Str("Component", "castprotocol").Logger()

	sess := session.New(client,
		session.WithLogger(logger),
		session.WithStatusInterval(conf.StatusInterval),
	)

	res := resolver.New(
		resolver.WithExtractor(ytdlp),
		resolver.WithHTTPClient(resolver.NewRetryableHTTPClient(conf.HTTPRetries)),
		resolver.WithMimeType(conf.MimeType),
		resolver.WithLogger(logger),
	)

	player := interactive.NewPlayerScreen(s, dev.FriendlyName, interactive.Defaults{
		Host: conf.HTTPHost,
		Port: strconv.Itoa(conf.HTTPPort),
		Dir:  conf.HTTPDir,
	})

	queue := jobqueue.New(player.Wake)

	// The controller subscribes before Connect so the watcher's first
	// status poll reaches the screen.
	ctrl := controller.New(sess, res, servefiles.NewServer(logger), queue, player,
		controller.WithLogger(logger),
	)

	if err := sess.Connect(); err != nil {
		_ = ctrl.Close()
		return errors.Wrapf(err, "could not connect to %s", dev.FriendlyName)
	}

	return player.Run(ctrl)
}

func newLogger(conf *config.Config) (zerolog.Logger, func(), error) {
	if conf.LogFile == "" {
		return zerolog.New(io.Discard), func() {}, nil
	}

	f, err := os.OpenFile(conf.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, err
	}

	logger := zerolog.New(f).Level(conf.Level()).With().Timestamp().Logger()
	return logger, func() { _ = f.Close() }, nil
}

func check(err error) {
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Encountered error(s): %s\n", err)
		os.Exit(1)
	}
}
