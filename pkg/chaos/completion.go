package chaos

import (
	"context"
	"fmt"
	"time"

	"github.com/litmuschaos/chaos-operator/api/litmuschaos/v1alpha1"
	"github.com/pkg/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/cglendenning/percona-operator-eks-sub000/pkg/cerrors"
	clients "github.com/cglendenning/percona-operator-eks-sub000/pkg/clients"
	"github.com/cglendenning/percona-operator-eks-sub000/pkg/log"
	"github.com/cglendenning/percona-operator-eks-sub000/pkg/poller"
)

const (
	// experimentStatusWaiting is the controller's initial phase before the
	// experiment job exists
	experimentStatusWaiting = "Waiting for Job Creation"
	// engineStatusCompleted is the engine-level terminal status
	engineStatusCompleted = "completed"

	defaultDetectorInterval = 10 * time.Second
	defaultStuckThreshold   = 60 * time.Second
	defaultDiagnosticsEvery = 6
)

// DetectorSettings bounds one completion wait
type DetectorSettings struct {
	// Timeout is the overall wait budget for a terminal verdict
	Timeout time.Duration
	// Interval between status polls; defaults to 10s
	Interval time.Duration
	// StuckThreshold fails the wait fast when the run never leaves its
	// initial phase; independent of, and smaller than, Timeout. Defaults
	// to 60s.
	StuckThreshold time.Duration
	// DiagnosticsEvery emits running-phase diagnostics every N polls
	DiagnosticsEvery int
}

// Completion is the detector's outcome for a run that reached a terminal
// verdict
type Completion struct {
	Verdict  Verdict
	FailStep string
	Elapsed  time.Duration
}

// AwaitCompletion polls the run's ChaosEngine status and associated
// ChaosResult until a terminal verdict appears. It never infers a verdict
// from absence of information: "not yet observed" and "failed" stay
// distinct. Possible errors: StuckNotStarted, ChaosTimeout, or the
// context's own cancellation error.
func AwaitCompletion(ctx context.Context, clientSets clients.ClientSets, run *RunHandle, settings DetectorSettings) (*Completion, error) {
	if settings.Interval <= 0 {
		settings.Interval = defaultDetectorInterval
	}
	if settings.StuckThreshold <= 0 {
		settings.StuckThreshold = defaultStuckThreshold
	}
	if settings.DiagnosticsEvery <= 0 {
		settings.DiagnosticsEvery = defaultDiagnosticsEvery
	}

	// the poller has no fail-fast channel of its own, so stuck detection
	// cancels the wait context and is told apart from an external
	// cancellation afterwards
	waitCtx, cancelWait := context.WithCancel(ctx)
	defer cancelWait()

	start := time.Now()
	lastProgress := start
	stuck := false
	polls := 0
	var completion *Completion

	stats, err := poller.WaitUntil(waitCtx, poller.Settings{
		Timeout:     settings.Timeout,
		Interval:    settings.Interval,
		Description: fmt.Sprintf("chaos engine %s terminal verdict", run.EngineName),
	}, func(ctx context.Context) (poller.ConditionStatus, error) {
		polls++
		engine, err := clientSets.LitmusClient.ChaosEngines(run.Namespace).Get(ctx, run.EngineName, metav1.GetOptions{})
		if err != nil {
			return poller.NotYetSatisfied, errors.Wrapf(err, "Unable to get chaos engine %v, err: %v", run.EngineName, err)
		}

		status, engineVerdict, found := experimentStatus(engine, run.ExperimentName)

		switch {
		case string(engine.Status.EngineStatus) == engineStatusCompleted || status == "Completed":
			run.advance(PhaseCompleted)
			verdict, failStep := resolveVerdict(ctx, clientSets, run, engineVerdict)
			if verdict != VerdictUnknown {
				completion = &Completion{Verdict: verdict, FailStep: failStep}
				return poller.Satisfied, nil
			}
			// completed but verdict still awaited, keep polling
			return poller.NotYetSatisfied, nil

		case !found || status == "" || status == experimentStatusWaiting:
			// still in the initial phase; fail fast once the stuck
			// threshold passes without any progress
			if time.Since(lastProgress) > settings.StuckThreshold {
				stuck = true
				cancelWait()
			}
			return poller.NotYetSatisfied, nil

		default:
			run.advance(PhaseStarted)
			lastProgress = time.Now()
			if polls%settings.DiagnosticsEvery == 0 {
				logRunningDiagnostics(ctx, clientSets, run, status)
			}
			return poller.NotYetSatisfied, nil
		}
	})

	switch {
	case err == nil:
		completion.Elapsed = stats.Elapsed
		log.Infof("[Chaos]: Engine %v completed with verdict %v after %v", run.EngineName, completion.Verdict, stats.Elapsed.Round(time.Second))
		return completion, nil
	case stuck:
		run.advance(PhaseStuckNotStarted)
		return nil, cerrors.StuckNotStarted{Engine: run.EngineName, Elapsed: time.Since(start)}
	case ctx.Err() != nil:
		// external cancellation, not ours
		return nil, ctx.Err()
	default:
		if _, isTimeout := err.(*poller.TimeoutExceeded); isTimeout {
			run.advance(PhaseError)
			return nil, cerrors.ChaosTimeout{Engine: run.EngineName, Timeout: settings.Timeout}
		}
		return nil, err
	}
}

// experimentStatus extracts the run's experiment entry from the engine
// status
func experimentStatus(engine *v1alpha1.ChaosEngine, experimentName string) (status, verdict string, found bool) {
	for _, exp := range engine.Status.Experiments {
		if exp.Name == experimentName {
			return string(exp.Status), exp.Verdict, true
		}
	}
	return "", "", false
}

// resolveVerdict reads the terminal verdict, preferring the engine's own
// status and falling back to the ChaosResult. When both report a terminal
// verdict and disagree, the engine wins and the mismatch is logged.
func resolveVerdict(ctx context.Context, clientSets clients.ClientSets, run *RunHandle, engineVerdict string) (Verdict, string) {
	resultVerdict, failStep := chaosResultVerdict(ctx, clientSets, run)

	engineTerminal := engineVerdict == string(VerdictPass) || engineVerdict == string(VerdictFail)
	resultTerminal := resultVerdict == string(VerdictPass) || resultVerdict == string(VerdictFail)

	if engineTerminal && resultTerminal && engineVerdict != resultVerdict {
		log.Warnf("[Chaos]: Engine %v status verdict %v disagrees with chaos result verdict %v, using engine status", run.EngineName, engineVerdict, resultVerdict)
	}
	if engineTerminal {
		return Verdict(engineVerdict), failStep
	}
	if resultTerminal {
		return Verdict(resultVerdict), failStep
	}
	return VerdictUnknown, ""
}

// chaosResultVerdict reads the verdict from the run's ChaosResult; any read
// problem is treated as "not yet observed"
func chaosResultVerdict(ctx context.Context, clientSets clients.ClientSets, run *RunHandle) (string, string) {
	resultName := run.EngineName + "-" + run.ExperimentName
	result, err := clientSets.LitmusClient.ChaosResults(run.Namespace).Get(ctx, resultName, metav1.GetOptions{})
	if err != nil {
		return "", ""
	}
	return string(result.Status.ExperimentStatus.Verdict), ""
}

// logRunningDiagnostics records target and runner state while the fault is
// executing, to aid debugging if the run later fails
func logRunningDiagnostics(ctx context.Context, clientSets clients.ClientSets, run *RunHandle, status string) {
	fields := map[string]interface{}{
		"Engine": run.EngineName,
		"Status": status,
	}

	if runnerPod, err := clientSets.KubeClient.CoreV1().Pods(run.Namespace).Get(ctx, run.EngineName+"-runner", metav1.GetOptions{}); err == nil {
		fields["RunnerPod"] = string(runnerPod.Status.Phase)
	}

	if targets, err := clientSets.KubeClient.CoreV1().Pods(run.AppNamespace).List(ctx, metav1.ListOptions{LabelSelector: run.AppLabel}); err == nil {
		running := 0
		for _, pod := range targets.Items {
			if pod.Status.Phase == "Running" {
				running++
			}
		}
		fields["TargetPods"] = fmt.Sprintf("%d/%d running", running, len(targets.Items))
	}

	if events, err := clientSets.KubeClient.CoreV1().Events(run.Namespace).List(ctx, metav1.ListOptions{FieldSelector: "type=Warning"}); err == nil && len(events.Items) > 0 {
		latest := events.Items[len(events.Items)-1]
		fields["LastWarning"] = fmt.Sprintf("%s: %s", latest.Reason, latest.Message)
	}

	log.InfoWithValues("[Chaos]: Fault run in progress", fields)
}
