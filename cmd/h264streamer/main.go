// Command h264streamer reads a H264 Annex-B file and sends it to a UDP destination
// as RTP/H264, fragmenting NAL units into FU-A packets when needed.
//
// It is configured through environment variables prefixed with H264FRAG_.
package main

import (
	"context"
	"errors"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/rtcstream/h264frag/internal/config"
	"github.com/rtcstream/h264frag/internal/streamer"
)

func newLogger() (*zap.Logger, error) {
	return zap.NewProduction()
}

func newSugaredLogger(l *zap.Logger) *zap.SugaredLogger {
	return l.Sugar()
}

func newStreamer(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	conf *config.Config,
	log *zap.SugaredLogger,
) *streamer.Streamer {
	s := streamer.New(conf, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			err := s.Initialize()
			if err != nil {
				cancel()
				return err
			}

			go func() {
				defer close(done)

				err := s.Run(ctx)
				switch {
				case errors.Is(err, context.Canceled):
					return

				case err != nil:
					log.Errorw("streaming failed", "error", err)
					shutdowner.Shutdown(fx.ExitCode(1)) //nolint:errcheck

				default:
					shutdowner.Shutdown() //nolint:errcheck
				}
			}()

			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			<-done
			s.Close()
			log.Sync() //nolint:errcheck
			return nil
		},
	})

	return s
}

func main() {
	fx.New(
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l}
		}),
		fx.Provide(
			config.Load,
			newLogger,
			newSugaredLogger,
			newStreamer,
		),
		fx.Invoke(func(*streamer.Streamer) {}),
	).Run()
}
