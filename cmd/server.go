package cmd

import (
	"context"
	"log"
	httpNet "net/http"
	"os"
	"os/signal"
	"syscall"

	"prediction-trading/internal/delivery/http"
	"prediction-trading/internal/repository"
	"prediction-trading/internal/service"
	"prediction-trading/pkg/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the position exit engine",
	Run:   Start,
}

func Start(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appDep, err := NewAppDependency(ctx)
	if err != nil {
		log.Fatalf("Failed to create app dependency: %v", err)
	}

	repo, err := repository.NewRepository(appDep.cfg, appDep.cache, appDep.db.DB, appDep.log)
	if err != nil {
		log.Fatalf("Failed to create repository: %v", err)
	}

	services := service.NewService(
		appDep.cfg,
		appDep.log,
		appDep.cache,
		repo,
		appDep.alerter,
	)
	httpHandler := http.NewHttpAPIHandler(ctx, appDep.echo, appDep.validator, services, repo)

	apiServer := NewHTTPServer(ctx, appDep, httpHandler)
	go func() {
		if err := apiServer.Start(); err != nil && err != httpNet.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	if err := services.Maintenance.Start(ctx); err != nil {
		log.Fatalf("Failed to schedule maintenance jobs: %v", err)
	}

	utils.GoSafe(func() {
		if err := services.Monitor.Run(ctx); err != nil && ctx.Err() == nil {
			appDep.log.Fatal("Position monitor exited unexpectedly", zap.Error(err))
		}
	})

	<-ctx.Done()
	log.Println("Shutting down gracefully...")

	services.Maintenance.Stop()

	if err := apiServer.Stop(); err != nil {
		log.Fatalf("Failed to stop HTTP server: %v", err)
	}

	if err := appDep.Close(); err != nil {
		log.Fatalf("Failed to close app dependency: %v", err)
	}
}
