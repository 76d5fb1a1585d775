package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/shaharia-lab/taskrunner/internal/api"
	"github.com/shaharia-lab/taskrunner/internal/config"
	"github.com/shaharia-lab/taskrunner/internal/eventbus"
	"github.com/shaharia-lab/taskrunner/internal/httpaction"
	"github.com/shaharia-lab/taskrunner/internal/logfilter"
	"github.com/shaharia-lab/taskrunner/internal/logger"
	"github.com/shaharia-lab/taskrunner/internal/logwriter"
	"github.com/shaharia-lab/taskrunner/internal/metrics"
	"github.com/shaharia-lab/taskrunner/internal/pipeline"
	"github.com/shaharia-lab/taskrunner/internal/registry"
	"github.com/shaharia-lab/taskrunner/internal/scheduler"
	"github.com/shaharia-lab/taskrunner/internal/service"
	"github.com/shaharia-lab/taskrunner/internal/storage"
	"github.com/shaharia-lab/taskrunner/internal/template"
)

var (
	flagPort        int
	flagDataDir     string
	flagNoBrowser   bool
	flagMaxParallel int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP control plane",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&flagPort, "port", 0, "HTTP control-plane port (overrides PORT env)")
	serveCmd.Flags().StringVar(&flagDataDir, "data-dir", "", "data directory holding the rolling task log (overrides TASKRUNNER_DATA_DIR env)")
	serveCmd.Flags().BoolVar(&flagNoBrowser, "no-browser", false, "do not open the control plane in a browser on startup")
	serveCmd.Flags().IntVar(&flagMaxParallel, "max-concurrency", 0, "maximum number of job firings running at once (overrides MAX_CONCURRENCY env)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if flagPort != 0 {
		cfg.Port = flagPort
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	if flagMaxParallel != 0 {
		cfg.MaxConcurrency = flagMaxParallel
	}
	if flagNoBrowser {
		cfg.OpenBrowser = false
	}

	appLogger, err := logger.NewSystemLogger(cfg.LogDir(), cfg.SlogLevel())
	if err != nil {
		return fmt.Errorf("opening system log: %w", err)
	}

	taskLogger, rollingLog, err := logwriter.New(cfg.DataDir, cfg.SlogLevel())
	if err != nil {
		return fmt.Errorf("opening task log: %w", err)
	}
	defer rollingLog.Close()

	m := metrics.New()

	bus := eventbus.New(0)
	bus.Subscribe(func(e eventbus.Event) {
		appLogger.Debug("lifecycle event", "type", e.Type, "payload", e.Payload)
	})
	defer bus.Close()

	store := storage.New()
	reg := registry.New()

	action := httpaction.New(taskLogger)
	action.OnResult = func(success bool) {
		m.HTTPActionCalls.WithLabelValues(strconv.FormatBool(success)).Inc()
	}
	reg.RegisterHTTPAction(action.Execute)
	registry.RegisterDemoCallables(reg, taskLogger, cfg.DataDir)

	resolver := template.New(taskLogger)

	sched := scheduler.New(taskLogger, cfg.MaxConcurrency)
	sched.OnDispatch = func(jobID string) {
		m.JobFires.WithLabelValues(jobKind(jobID), "dispatched").Inc()
		bus.Publish("job.dispatched", map[string]string{"job_id": jobID})
	}
	sched.OnDrop = func(jobID string) {
		m.JobFiresDropped.WithLabelValues(jobKind(jobID)).Inc()
		bus.Publish("job.dropped", map[string]string{"job_id": jobID})
	}
	defer sched.Stop()

	executor := pipeline.New(store, reg, resolver, taskLogger)
	executor.OnComplete = func(status storage.GroupStatus) {
		m.PipelineRuns.WithLabelValues(string(status)).Inc()
		bus.Publish("pipeline.completed", map[string]string{"status": string(status)})
	}

	taskSvc := service.NewTaskService(store, reg, sched, taskLogger)
	groupSvc := service.NewGroupService(store, sched, executor, taskLogger)
	logSvc := service.NewLogService(logfilter.New(cfg.TaskLogPath()), store)

	apiServer := api.New(taskSvc, groupSvc, logSvc)

	router := chi.NewRouter()
	apiServer.Mount(router)
	router.Handle("/metrics", m.Handler())

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		appLogger.Info("control plane listening", "port", cfg.Port, "data_dir", cfg.DataDir)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	if cfg.OpenBrowser {
		go openBrowser(fmt.Sprintf("http://localhost:%d", cfg.Port))
	}

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	appLogger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// jobKind extracts the "task" or "group" prefix from a scheduler job id of
// the form "task:<id>" or "group:<id>".
func jobKind(jobID string) string {
	if i := strings.IndexByte(jobID, ':'); i >= 0 {
		return jobID[:i]
	}
	return "unknown"
}

func openBrowser(url string) {
	time.Sleep(600 * time.Millisecond)

	var cmdName string
	var args []string
	switch runtime.GOOS {
	case "windows":
		cmdName, args = "rundll32", []string{"url.dll,FileProtocolHandler", url}
	case "darwin":
		cmdName, args = "open", []string{url}
	default:
		cmdName, args = "xdg-open", []string{url}
	}
	_ = exec.Command(cmdName, args...).Start()
}
