// Package runner composes fault trigger, completion detection, and recovery
// verification per catalog entry and records one result per scenario.
package runner

import (
	"context"
	"sync"
	"time"

	"github.com/kyokomi/emoji"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cglendenning/percona-operator-eks-sub000/pkg/catalog"
	"github.com/cglendenning/percona-operator-eks-sub000/pkg/cerrors"
	"github.com/cglendenning/percona-operator-eks-sub000/pkg/chaos"
	clients "github.com/cglendenning/percona-operator-eks-sub000/pkg/clients"
	"github.com/cglendenning/percona-operator-eks-sub000/pkg/cloud/aws"
	"github.com/cglendenning/percona-operator-eks-sub000/pkg/events"
	"github.com/cglendenning/percona-operator-eks-sub000/pkg/log"
	"github.com/cglendenning/percona-operator-eks-sub000/pkg/recovery"
	"github.com/cglendenning/percona-operator-eks-sub000/pkg/telemetry"
)

const defaultCompletionBuffer = 120 * time.Second

// Settings is the process-wide runner configuration; the scenario catalog
// itself is passed explicitly, never held as a singleton
type Settings struct {
	ChaosNamespace string
	ServiceAccount string
	EnginePrefix   string
	// CompletionBuffer is added to the fault duration to bound the
	// completion wait; defaults to 120s
	CompletionBuffer       time.Duration
	CompletionPollInterval time.Duration
	StuckThreshold         time.Duration
	// EKSClusterName/AWSRegion enable the EC2 worker preflight for
	// node-level faults; empty disables it
	EKSClusterName string
	AWSRegion      string
}

// Result is the structured per-scenario outcome
type Result struct {
	Scenario       string
	Passed         bool
	ElapsedSeconds float64
	// FailureReason is exactly one terminal reason from the taxonomy,
	// empty on success
	FailureReason string
	ErrorType     cerrors.ErrorType
}

// Runner executes disaster scenarios against one cluster
type Runner struct {
	Clients  clients.ClientSets
	Settings Settings
}

// New returns a runner with defaulted settings
func New(clientSets clients.ClientSets, settings Settings) *Runner {
	if settings.CompletionBuffer <= 0 {
		settings.CompletionBuffer = defaultCompletionBuffer
	}
	return &Runner{Clients: clientSets, Settings: settings}
}

// RunScenario executes one scenario end to end: trigger the fault, await
// the run's terminal verdict, then verify recovery within the MTTR budget.
// A trigger or completion failure short-circuits the scenario as failed
// without attempting recovery verification.
func (r *Runner) RunScenario(ctx context.Context, sc catalog.DisasterScenario) Result {
	start := time.Now()
	logger := log.WithScenario(sc.Name)

	ctx, span := telemetry.Tracer().Start(ctx, "scenario",
		trace.WithAttributes(
			attribute.String("scenario", sc.Name),
			attribute.String("fault_kind", string(sc.FaultKind)),
		))
	defer span.End()

	logger.Infof("[Scenario]: Starting, faultKind: %v, target: %v/%v", sc.FaultKind, sc.Target.Namespace, sc.Target.LabelSelector)

	if isNodeLevel(sc.FaultKind) && r.Settings.EKSClusterName != "" {
		if err := aws.ClusterInstancesRunning(r.Settings.EKSClusterName, r.Settings.AWSRegion); err != nil {
			return r.fail(ctx, sc, start, cerrors.TriggerFailed{Reason: "EKS worker preflight failed: " + err.Error()})
		}
	}

	run, err := chaos.Trigger(ctx, r.Clients, chaos.TriggerDetails{
		Scenario:        sc.Name,
		FaultKind:       sc.FaultKind,
		AppNamespace:    sc.Target.Namespace,
		AppLabel:        sc.Target.LabelSelector,
		AppKind:         sc.Target.Kind,
		ChaosNamespace:  r.Settings.ChaosNamespace,
		ServiceAccount:  r.Settings.ServiceAccount,
		DurationSeconds: sc.DurationSeconds,
		IntervalSeconds: sc.IntervalSeconds,
		NamePrefix:      r.Settings.EnginePrefix,
	})
	if err != nil {
		return r.fail(ctx, sc, start, err)
	}
	defer r.cleanup(run)

	r.recordEvent(ctx, run, events.ChaosInject, "Fault injection submitted for scenario "+sc.Name, "Normal")

	completion, err := chaos.AwaitCompletion(ctx, r.Clients, run, chaos.DetectorSettings{
		Timeout:        time.Duration(sc.DurationSeconds)*time.Second + r.Settings.CompletionBuffer,
		Interval:       r.Settings.CompletionPollInterval,
		StuckThreshold: r.Settings.StuckThreshold,
	})
	if err != nil {
		return r.fail(ctx, sc, start, err)
	}
	if completion.Verdict != chaos.VerdictPass {
		return r.fail(ctx, sc, start, cerrors.ChaosFailedVerdict{Engine: run.EngineName, FailStep: completion.FailStep})
	}

	verifier, err := recovery.ForScenario(r.Clients, sc)
	if err != nil {
		return r.fail(ctx, sc, start, err)
	}
	mttr := time.Duration(sc.MTTRSeconds) * time.Second
	interval := time.Duration(sc.Recovery.PollIntervalSeconds) * time.Second
	if err := verifier.Verify(ctx, mttr, interval); err != nil {
		return r.fail(ctx, sc, start, err)
	}

	elapsed := time.Since(start)
	r.recordEvent(ctx, run, events.Summary, "Scenario "+sc.Name+" passed", "Normal")
	telemetry.RecordScenario(ctx, sc.Name, true, elapsed)
	logger.Infof("[Scenario]: Passed in %v %v", elapsed.Round(time.Second), emoji.Sprint(":smile:"))

	return Result{
		Scenario:       sc.Name,
		Passed:         true,
		ElapsedSeconds: elapsed.Seconds(),
	}
}

// RunCatalog executes the given scenarios with at most concurrency running
// at once. Results are returned in catalog order; scenarios themselves are
// independent and carry no cross-ordering guarantee.
func (r *Runner) RunCatalog(ctx context.Context, scenarios []catalog.DisasterScenario, concurrency int) []Result {
	if concurrency < 1 {
		concurrency = 1
	}
	results := make([]Result, len(scenarios))

	if concurrency == 1 {
		for i, sc := range scenarios {
			results[i] = r.RunScenario(ctx, sc)
		}
		return results
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for worker := 0; worker < concurrency; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = r.RunScenario(ctx, scenarios[i])
			}
		}()
	}
	for i := range scenarios {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

// fail terminates the scenario with exactly one taxonomy reason. External
// cancellation is reported as Cancelled, never as a timeout or failure.
func (r *Runner) fail(ctx context.Context, sc catalog.DisasterScenario, start time.Time, err error) Result {
	if ctx.Err() != nil && !cerrors.IsUserFriendly(err) {
		err = cerrors.Cancelled{Phase: "scenario " + sc.Name}
	}
	reason, errorType := cerrors.GetRootCauseAndErrorCode(err)

	telemetry.RecordScenario(ctx, sc.Name, false, 0)
	log.WithScenario(sc.Name).Errorf("[Scenario]: Failed after %v, reason: %v %v", time.Since(start).Round(time.Second), reason, emoji.Sprint(":cry:"))

	return Result{
		Scenario:       sc.Name,
		Passed:         false,
		ElapsedSeconds: time.Since(start).Seconds(),
		FailureReason:  reason,
		ErrorType:      errorType,
	}
}

// cleanup deletes the run's engine regardless of outcome; runs on its own
// context so a cancelled scenario still gets cleaned up
func (r *Runner) cleanup(run *chaos.RunHandle) {
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := chaos.Cleanup(cleanupCtx, r.Clients, run); err != nil {
		log.WithScenario(run.Scenario).Warnf("[Cleanup]: Unable to delete chaos engine %v, err: %v", run.EngineName, err)
	}
}

func (r *Runner) recordEvent(ctx context.Context, run *chaos.RunHandle, reason, message, eventType string) {
	details := events.EventDetails{
		Reason:     reason,
		Message:    message,
		Type:       eventType,
		EngineName: run.EngineName,
		Namespace:  run.Namespace,
	}
	if err := events.GenerateEvents(ctx, &details, r.Clients); err != nil {
		log.WithScenario(run.Scenario).Warnf("[Events]: Unable to record %v event, err: %v", reason, err)
	}
}

func isNodeLevel(kind catalog.FaultKind) bool {
	switch kind {
	case catalog.NodeDrain, catalog.NodeCPUHog:
		return true
	default:
		return false
	}
}
