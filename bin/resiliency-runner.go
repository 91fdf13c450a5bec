package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cglendenning/percona-operator-eks-sub000/pkg/catalog"
	clients "github.com/cglendenning/percona-operator-eks-sub000/pkg/clients"
	"github.com/cglendenning/percona-operator-eks-sub000/pkg/log"
	"github.com/cglendenning/percona-operator-eks-sub000/pkg/runner"
	"github.com/cglendenning/percona-operator-eks-sub000/pkg/telemetry"
)

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:          true,
		DisableSorting:         true,
		DisableLevelTruncation: true,
	})
}

var (
	kubeconfig     string
	catalogPath    string
	artifactsDir   string
	chaosNamespace string
	serviceAccount string
	enginePrefix   string
	concurrency    int
	stuckThreshold time.Duration
	metricsAddr    string
	otelEndpoint   string
	eksCluster     string
	awsRegion      string
	validateOnly   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "resiliency-runner",
		Short:         "Runs the disaster-scenario catalog against a PXC deployment and verifies self-healing",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	rootCmd.Flags().StringVar(&kubeconfig, "kubeconfig", "", "absolute path to the kubeconfig file; in-cluster config when empty")
	rootCmd.Flags().StringVar(&catalogPath, "catalog", "", "path to the scenario catalog file")
	rootCmd.Flags().StringVar(&artifactsDir, "artifacts-dir", "", "directory holding the verification artifacts")
	rootCmd.Flags().StringVar(&chaosNamespace, "chaos-namespace", "litmus", "namespace the chaos controller operates in")
	rootCmd.Flags().StringVar(&serviceAccount, "service-account", "litmus-admin", "service account used by the chaos experiments")
	rootCmd.Flags().StringVar(&enginePrefix, "engine-prefix", "", "prefix for generated chaos engine names")
	rootCmd.Flags().IntVar(&concurrency, "concurrency", 1, "number of scenarios to run at once")
	rootCmd.Flags().DurationVar(&stuckThreshold, "stuck-threshold", 60*time.Second, "fail fast when a run never starts within this duration")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to expose /metrics on; disabled when empty")
	rootCmd.Flags().StringVar(&otelEndpoint, "otel-endpoint", "", "OTLP/gRPC endpoint for traces; disabled when empty")
	rootCmd.Flags().StringVar(&eksCluster, "eks-cluster", "", "EKS cluster name for the worker-instance preflight; disabled when empty")
	rootCmd.Flags().StringVar(&awsRegion, "aws-region", "", "AWS region of the EKS cluster")
	rootCmd.Flags().BoolVar(&validateOnly, "validate-only", false, "validate the catalog and exit without touching the cluster")

	if err := rootCmd.MarkFlagRequired("catalog"); err != nil {
		log.Fatalf("Unable to mark catalog flag required, err: %v", err)
	}
	if err := rootCmd.MarkFlagRequired("artifacts-dir"); err != nil {
		log.Fatalf("Unable to mark artifacts-dir flag required, err: %v", err)
	}

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.Load(catalogPath)
	if err != nil {
		return err
	}
	if verrs := catalog.Validate(cat.Scenarios, artifactsDir); len(verrs) > 0 {
		for _, verr := range verrs {
			log.Errorf("[Catalog]: %v", verr)
		}
		return errors.Errorf("scenario catalog failed validation with %d error(s)", len(verrs))
	}
	log.Infof("[Catalog]: Loaded %d scenarios (%d enabled), version %v", len(cat.Scenarios), len(cat.Enabled()), cat.Version)
	if validateOnly {
		return nil
	}

	clientSets := clients.ClientSets{}
	if err := clientSets.GenerateClientSetFromKubeConfig(kubeconfig); err != nil {
		return err
	}

	if otelEndpoint != "" {
		shutdown, err := telemetry.InitOTelSDK(ctx, otelEndpoint)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Warnf("Unable to shut down otel SDK, err: %v", err)
			}
		}()
	}
	if metricsAddr != "" {
		if err := telemetry.InitMetrics(); err != nil {
			return err
		}
		telemetry.ServeMetrics(metricsAddr)
	}

	engine := runner.New(clientSets, runner.Settings{
		ChaosNamespace: chaosNamespace,
		ServiceAccount: serviceAccount,
		EnginePrefix:   enginePrefix,
		StuckThreshold: stuckThreshold,
		EKSClusterName: eksCluster,
		AWSRegion:      awsRegion,
	})

	results := engine.RunCatalog(ctx, cat.Enabled(), concurrency)

	failed := 0
	for _, result := range results {
		if result.Passed {
			log.Infof("[Summary]: %v PASS (%.0fs)", result.Scenario, result.ElapsedSeconds)
			continue
		}
		failed++
		log.Errorf("[Summary]: %v FAIL (%.0fs) [%v] %v", result.Scenario, result.ElapsedSeconds, result.ErrorType, result.FailureReason)
	}
	if failed > 0 {
		return errors.Errorf("%d of %d scenarios failed", failed, len(results))
	}
	log.Infof("[Summary]: All %d scenarios passed", len(results))
	return nil
}
