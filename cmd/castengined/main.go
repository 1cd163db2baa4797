// Command castengined runs one cast session against a single peer: a
// source that casts to a sink, or a sink that accepts one. It is a
// thin wiring example, not a production daemon — a real deployment
// would add multi-session bookkeeping and a discovery layer on top.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/castengine/castplus/internal/config"
	"github.com/castengine/castplus/internal/rtsp"
	"github.com/castengine/castplus/internal/session"
	"github.com/castengine/castplus/internal/stream"
	"github.com/castengine/castplus/internal/transport"
)

func main() {
	var (
		role        = flag.String("role", "source", "source or sink")
		localID     = flag.String("local-id", "local-device", "local device id")
		localAddr   = flag.String("local-addr", "127.0.0.1", "local ip address")
		remoteID    = flag.String("remote-id", "", "remote device id (required)")
		remoteAddr  = flag.String("remote-addr", "", "remote ip address (required)")
		remotePort  = flag.Int("remote-port", 8554, "remote rtsp port")
		configPath  = flag.String("config", "", "path to a YAML config overlay; defaults apply if empty")
		logLevel    = flag.String("log-level", "info", "zerolog level name")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()
	log.Logger = logger

	if *remoteID == "" || *remoteAddr == "" {
		logger.Fatal().Msg("-remote-id and -remote-addr are required")
	}

	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", *configPath).Msg("failed to load config")
		}
	}

	var sessionRole transport.Role
	switch *role {
	case "source":
		sessionRole = transport.RoleSource
	case "sink":
		sessionRole = transport.RoleSink
	default:
		logger.Fatal().Str("role", *role).Msg("role must be source or sink")
	}

	listener := &loggingListener{log: logger}
	local := transport.DeviceInfo{DeviceID: *localID, IPAddress: *localAddr}
	sess := session.NewSession(cfg, local, sessionRole, session.VariantStream, listener, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	remote := transport.DeviceInfo{DeviceID: *remoteID, IPAddress: *remoteAddr}
	if err := sess.Start(ctx, remote, *remotePort); err != nil {
		logger.Fatal().Err(err).Msg("failed to start session")
	}

	if sessionRole == transport.RoleSource {
		go func() {
			negotiateCtx, negotiateCancel := context.WithTimeout(ctx, cfg.RTSP.NegotiationTimeout)
			defer negotiateCancel()
			if err := sess.Negotiate(negotiateCtx); err != nil {
				logger.Error().Err(err).Msg("negotiation failed")
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	sess.Close()
}

// loggingListener is the minimal session.Listener a standalone daemon
// needs: it just logs every callback. A real host application would
// forward these into its own UI/automation layer instead.
type loggingListener struct {
	log zerolog.Logger
}

func (l *loggingListener) OnNegotiated(local, remote rtsp.Params) {
	l.log.Info().Int("localFeatures", len(local.FeatureSet)).Int("remoteFeatures", len(remote.FeatureSet)).Msg("negotiated")
}
func (l *loggingListener) OnTrigger(action string) {
	l.log.Info().Str("action", action).Msg("trigger received")
}
func (l *loggingListener) OnKeepAliveTimeout() {
	l.log.Warn().Msg("keep-alive timeout")
}
func (l *loggingListener) OnDeviceGone() {
	l.log.Warn().Msg("peer device gone")
}
func (l *loggingListener) OnStreamDeviceDisconnected() {
	l.log.Warn().Msg("stream device disconnected, awaiting reconnect")
}
func (l *loggingListener) OnPlayerStatusChanged(state stream.PlayerState, isPlayWhenReady bool) {
	l.log.Info().Int("state", int(state)).Bool("playWhenReady", isPlayWhenReady).Msg("player status changed")
}
func (l *loggingListener) OnPositionChanged(position, bufferPosition, duration int) {
	l.log.Debug().Int("position", position).Int("duration", duration).Msg("position changed")
}
func (l *loggingListener) OnMediaItemChanged(info stream.MediaInfo) {
	l.log.Info().Str("mediaId", info.MediaID).Str("mediaName", info.MediaName).Msg("media item changed")
}
func (l *loggingListener) OnVolumeChanged(volume, maxVolume int) {
	l.log.Info().Int("volume", volume).Int("maxVolume", maxVolume).Msg("volume changed")
}
func (l *loggingListener) OnError(code int, message string) {
	l.log.Error().Int("code", code).Str("message", message).Msg("player error")
}
