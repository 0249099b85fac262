package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/thediveo/enumflag/v2"

	"github.com/veloscale/velobench/internal/analyze"
	"github.com/veloscale/velobench/internal/api"
	"github.com/veloscale/velobench/internal/config"
	"github.com/veloscale/velobench/internal/kubectl"
	"github.com/veloscale/velobench/internal/loadgen"
	"github.com/veloscale/velobench/internal/monitor"
	"github.com/veloscale/velobench/internal/perflog"
	"github.com/veloscale/velobench/internal/velero"
)

var version = "dev"

type jobKindFlag enumflag.Flag

const (
	kindBackup jobKindFlag = iota
	kindRestore
)

var jobKindIds = map[jobKindFlag][]string{
	kindBackup:  {"backup"},
	kindRestore: {"restore"},
}

var (
	debug      bool
	configFile string

	// monitor flags
	jobName             string
	jobKind             jobKindFlag = kindBackup
	namespace           string
	pollIntervalSeconds int
	outputDir           string
	verbose             bool
	podSelector         string
	lowRateThreshold    float64
	degradationItems    int64
	listenAddr          string
	veleroBinary        string
	kubectlBinary       string
	noProgress          bool

	// analyze flags
	analyzeFile   string
	analyzeFollow bool

	// loadgen flags
	burnerConfig   string
	burnerBinary   string
	burnerLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "velobench",
	Short: "Velero backup/restore scale-test harness",
	Long: `velobench reproduces and measures Velero backup/restore performance at
scale: it drives object churn with kube-burner, monitors a backup or
restore job until it reaches a terminal phase, records throughput per
polling tick and flags sustained performance degradation.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debug {
			log.SetLevel(log.DebugLevel)
		}
	},
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Monitor a backup or restore job until it completes",
	Long: `Polls the job's structured status at a fixed interval, derives an
items-per-second rate from consecutive samples, samples worker pod
resource usage best-effort, and writes the performance, resource,
detailed and summary logs under the output directory.

The monitor's own exit status is independent of the observed job's
outcome: watching a job fail is a successful monitoring session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildMonitorConfig(cmd)
		if err != nil {
			return err
		}
		return runMonitor(cfg)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a performance log written by the monitor",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()
		if configFile != "" {
			if err := config.LoadFile(configFile, &cfg); err != nil {
				return err
			}
		}
		if cmd.Flags().Changed("low-rate-threshold") {
			cfg.LowRateThreshold = lowRateThreshold
		}
		if cmd.Flags().Changed("degradation-items") {
			cfg.DegradationItems = degradationItems
		}
		thresholds := analyze.Thresholds{
			LowRate: cfg.LowRateThreshold,
			Items:   cfg.DegradationItems,
		}

		if analyzeFollow {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			err := analyze.Follow(ctx, analyzeFile, thresholds)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		records, err := analyze.ParseFile(analyzeFile)
		if err != nil {
			return err
		}
		fmt.Print(analyze.Format(analyze.Analyze(records, thresholds)))
		return nil
	},
}

var loadgenCmd = &cobra.Command{
	Use:   "loadgen",
	Short: "Run a kube-burner workload to populate the cluster",
	RunE: func(cmd *cobra.Command, args []string) error {
		runner := loadgen.NewRunner(burnerBinary, burnerConfig)
		runner.LogLevel = burnerLogLevel
		if err := runner.CheckBinary(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		_, err := runner.Run(ctx)
		return err
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the velobench version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("velobench %s\n", version)
	},
}

// buildMonitorConfig merges defaults, the optional config file and any
// explicitly set flags, in that order, then validates the result.
func buildMonitorConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if configFile != "" {
		if err := config.LoadFile(configFile, &cfg); err != nil {
			return cfg, err
		}
	}

	if cmd.Flags().Changed("job") {
		cfg.JobName = jobName
	}
	if cmd.Flags().Changed("kind") {
		cfg.Kind = jobKindIds[jobKind][0]
	}
	if cmd.Flags().Changed("namespace") {
		cfg.Namespace = namespace
	}
	if cmd.Flags().Changed("poll-interval") {
		cfg.PollInterval = time.Duration(pollIntervalSeconds) * time.Second
	}
	if cmd.Flags().Changed("output-dir") {
		cfg.OutputDir = outputDir
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = verbose
	}
	if cmd.Flags().Changed("pod-selector") {
		cfg.PodSelector = podSelector
	}
	if cmd.Flags().Changed("low-rate-threshold") {
		cfg.LowRateThreshold = lowRateThreshold
	}
	if cmd.Flags().Changed("degradation-items") {
		cfg.DegradationItems = degradationItems
	}
	if cmd.Flags().Changed("listen") {
		cfg.Listen = listenAddr
	}
	if cmd.Flags().Changed("velero-binary") {
		cfg.VeleroBinary = veleroBinary
	}
	if cmd.Flags().Changed("kubectl-binary") {
		cfg.KubectlBinary = kubectlBinary
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func runMonitor(cfg config.Config) error {
	statusClient := velero.NewClient(cfg.VeleroBinary)
	usageClient := kubectl.NewClient(cfg.KubectlBinary)

	// Required tooling first, then job existence: both are fatal before
	// any session log is created.
	if err := statusClient.CheckBinary(); err != nil {
		return err
	}
	if err := usageClient.CheckBinary(); err != nil {
		return err
	}

	job := monitor.JobHandle{
		Kind:      monitor.JobKind(cfg.Kind),
		Name:      cfg.JobName,
		Namespace: cfg.Namespace,
	}

	if _, err := statusClient.JobStatus(job); err != nil {
		if errors.Is(err, monitor.ErrJobNotFound) {
			return fmt.Errorf("%s %q not found in namespace %s", job.Kind, job.Name, job.Namespace)
		}
		return err
	}

	sessionID := uuid.New().String()
	start := time.Now()

	session, err := perflog.NewSession(cfg.OutputDir, job, sessionID, start)
	if err != nil {
		return err
	}
	defer session.Close()

	logger := log.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(log.DebugLevel)
	logger.AddHook(perflog.NewDetailHook(session))
	logger.AddHook(perflog.NewEchoHook(cfg.Verbose || debug))

	mon := monitor.New(monitor.Config{
		Job:              job,
		SessionID:        sessionID,
		PollInterval:     cfg.PollInterval,
		PodSelector:      cfg.PodSelector,
		LowRateThreshold: cfg.LowRateThreshold,
		DegradationItems: cfg.DegradationItems,
	}, statusClient, usageClient, session, logger)

	if !noProgress {
		mon.SetConsole(monitor.NewConsole())
	}

	if cfg.Listen != "" {
		server := api.NewServer(cfg.Listen, mon)
		server.Start()
		defer server.Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sum, err := mon.Run(ctx)
	if err != nil {
		// Operator interruption: logs are already flushed, the external
		// job keeps running untouched.
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	fmt.Printf("\nSession %s finished: %s, %d items in %s (%.2f items/sec)\n",
		sessionID[:8], sum.FinalPhase, sum.ItemsDone,
		sum.Elapsed.Round(time.Second), sum.AverageRate)
	fmt.Printf("Summary written to %s\n", session.SummaryPath())
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Optional YAML config file (flags override file values)")

	monitorCmd.Flags().StringVar(&jobName, "job", "", "Name of the backup or restore job to monitor")
	monitorCmd.MarkFlagRequired("job")
	monitorCmd.Flags().Var(
		enumflag.New(&jobKind, "kind", jobKindIds, enumflag.EnumCaseInsensitive),
		"kind", "Job kind to monitor (backup|restore)")
	monitorCmd.Flags().StringVarP(&namespace, "namespace", "n", config.DefaultNamespace, "Namespace the job lives in")
	monitorCmd.Flags().IntVar(&pollIntervalSeconds, "poll-interval", 10, "Polling interval in seconds")
	monitorCmd.Flags().StringVar(&outputDir, "output-dir", config.DefaultOutputDir, "Directory for session logs (created if absent)")
	monitorCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Echo info-level log lines to the console")
	monitorCmd.Flags().StringVar(&podSelector, "pod-selector", config.DefaultPodSelector, "Label selector for the worker pods to sample")
	monitorCmd.Flags().Float64Var(&lowRateThreshold, "low-rate-threshold", config.DefaultLowRateThreshold, "Items/sec below which throughput counts as degraded")
	monitorCmd.Flags().Int64Var(&degradationItems, "degradation-items", config.DefaultDegradationItems, "Items processed before degradation checks apply")
	monitorCmd.Flags().StringVar(&listenAddr, "listen", "", "Serve the live status API on this address (e.g. :8087)")
	monitorCmd.Flags().StringVar(&veleroBinary, "velero-binary", velero.DefaultBinary, "Path to the velero CLI")
	monitorCmd.Flags().StringVar(&kubectlBinary, "kubectl-binary", kubectl.DefaultBinary, "Path to the kubectl CLI")
	monitorCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the live console status line")

	analyzeCmd.Flags().StringVar(&analyzeFile, "file", "", "Performance log to analyze")
	analyzeCmd.MarkFlagRequired("file")
	analyzeCmd.Flags().BoolVar(&analyzeFollow, "follow", false, "Tail a live performance log instead of a one-shot report")
	analyzeCmd.Flags().Float64Var(&lowRateThreshold, "low-rate-threshold", config.DefaultLowRateThreshold, "Items/sec below which throughput counts as degraded")
	analyzeCmd.Flags().Int64Var(&degradationItems, "degradation-items", config.DefaultDegradationItems, "Items processed before degradation checks apply")

	loadgenCmd.Flags().StringVar(&burnerConfig, "burner-config", "", "kube-burner workload config file")
	loadgenCmd.MarkFlagRequired("burner-config")
	loadgenCmd.Flags().StringVar(&burnerBinary, "burner-binary", loadgen.DefaultBinary, "Path to the kube-burner CLI")
	loadgenCmd.Flags().StringVar(&burnerLogLevel, "burner-log-level", "", "Log level passed through to kube-burner")

	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(loadgenCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
