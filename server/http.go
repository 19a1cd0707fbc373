package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"worker-hls/config"
	"worker-hls/constant"
	"worker-hls/dto"
	jobHandler "worker-hls/handler"
	"worker-hls/pkg/rabbitmq"
	"worker-hls/pkg/watcher"
)

type StatusProvider interface {
	Status() dto.StatusResponse
}

func RunHttp(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.App.Environment == constant.EnvironmentProduction.String()).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	app, err := NewApp(ctx, cfg)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("NewApp")
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.Orchestrator.Run(gctx)
	})

	if cfg.Watcher.Enabled {
		w := watcher.New(cfg.Paths.UploadDir, cfg.Watcher.Depth, app.Orchestrator)
		if err := w.Start(gctx); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("watcher start")
			cancel()
			_ = g.Wait()
			return err
		}
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	if cfg.Scanner.Enabled {
		g.Go(func() error {
			return app.Scanner.Run(gctx, cfg.Scanner.Interval)
		})
	}

	if cfg.Queue != nil && cfg.Queue.Enabled {
		conn, err := config.NewRabbitMQConn(gctx, cfg.Queue)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("NewRabbitMQConn")
		} else {
			deps := jobHandler.ServiceDependencies{
				Queue:   app.Orchestrator,
				Targets: cfg.Targets,
			}
			uploadConsumer := rabbitmq.NewConsumer(conn, cfg.Queue, 1, jobHandler.UploadHandler)
			g.Go(func() error {
				if err := uploadConsumer.Consume(gctx, deps); err != nil && !errors.Is(err, context.Canceled) {
					zerolog.Ctx(gctx).Error().Err(err).Msg("upload consumer error")
				}
				return nil
			})
		}
	}

	if cfg.Server.Enabled {
		handler := http.Server{
			Handler:           NewRouter(app.Orchestrator),
			Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			zerolog.Ctx(gctx).Info().Str("env", cfg.App.Environment).Str("addr", handler.Addr).Msg("start http server")
			if err := handler.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zerolog.Ctx(gctx).Info().Msg("shutting down server")
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancelShutdown()
			return handler.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	if err != nil {
		zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Err(err).Msg("server stopped with error")
	}
	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
	return err
}

// RunScan performs one scan pass (and optionally a walk of the upload root), drains the
// queue and returns.
func RunScan(cfg *config.Config, includeUploads bool) error {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := NewApp(ctx, cfg)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("NewApp")
		return err
	}
	return runScan(ctx, app, includeUploads)
}

func runScan(ctx context.Context, app *App, includeUploads bool) error {
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()

	g, gctx := errgroup.WithContext(workerCtx)
	g.Go(func() error {
		return app.Orchestrator.Run(gctx)
	})

	enqueued, scanErr := app.Scanner.Scan(ctx)
	if scanErr != nil {
		zerolog.Ctx(ctx).Warn().Err(scanErr).Msg("scan pass finished with errors")
	}
	if includeUploads {
		n, err := app.Scanner.ScanUploads(ctx)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("upload walk failed")
			scanErr = errors.Join(scanErr, err)
		}
		enqueued += n
	}
	zerolog.Ctx(ctx).Info().Int("enqueued", enqueued).Msg("scan pass queued jobs")

	waitErr := app.Orchestrator.WaitIdle(ctx)
	stopWorker()
	_ = g.Wait()

	status := app.Orchestrator.Status()
	zerolog.Ctx(ctx).Info().Int64("completed", status.Completed).Int64("failed", status.Failed).Msg("scan finished")
	if waitErr != nil {
		return waitErr
	}
	if status.Failed > 0 {
		return errors.Join(scanErr, fmt.Errorf("%d job(s) failed", status.Failed))
	}
	return scanErr
}

func NewRouter(status StatusProvider) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	addHealth(r)
	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, status.Status())
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func addHealth(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})
}

func setupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// Log to standard output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
