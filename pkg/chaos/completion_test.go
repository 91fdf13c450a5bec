package chaos

import (
	"context"
	"testing"
	"time"

	"github.com/litmuschaos/chaos-operator/api/litmuschaos/v1alpha1"
	litmusfake "github.com/litmuschaos/chaos-operator/pkg/client/clientset/versioned/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	k8sfake "k8s.io/client-go/kubernetes/fake"

	"github.com/cglendenning/percona-operator-eks-sub000/pkg/cerrors"
	clients "github.com/cglendenning/percona-operator-eks-sub000/pkg/clients"
)

func newRunHandle() *RunHandle {
	return &RunHandle{
		Scenario:       "pxc-pod-delete",
		EngineName:     "resiliency-pod-delete-abc123",
		ExperimentName: "pod-delete",
		Namespace:      "litmus",
		AppNamespace:   "pxc",
		AppLabel:       "component=pxc",
		CreatedAt:      time.Now(),
	}
}

func engineWithStatus(run *RunHandle, engineStatus, experimentStatus, verdict string) *v1alpha1.ChaosEngine {
	engine := &v1alpha1.ChaosEngine{
		ObjectMeta: metav1.ObjectMeta{Name: run.EngineName, Namespace: run.Namespace},
	}
	engine.Status.EngineStatus = v1alpha1.EngineStatus(engineStatus)
	if experimentStatus != "" {
		engine.Status.Experiments = []v1alpha1.ExperimentStatuses{
			{
				Name:    run.ExperimentName,
				Status:  v1alpha1.ExperimentStatus(experimentStatus),
				Verdict: verdict,
			},
		}
	}
	return engine
}

func detectorClientSets(objects ...runtime.Object) clients.ClientSets {
	return clients.ClientSets{
		KubeClient:   k8sfake.NewSimpleClientset(),
		LitmusClient: litmusfake.NewSimpleClientset(objects...).LitmuschaosV1alpha1(),
	}
}

func fastSettings() DetectorSettings {
	return DetectorSettings{
		Timeout:        2 * time.Second,
		Interval:       10 * time.Millisecond,
		StuckThreshold: time.Second,
	}
}

func TestAwaitCompletion_PassVerdict(t *testing.T) {
	run := newRunHandle()
	clientSets := detectorClientSets(engineWithStatus(run, engineStatusCompleted, "Completed", "Pass"))

	completion, err := AwaitCompletion(context.Background(), clientSets, run, fastSettings())
	require.NoError(t, err)
	assert.Equal(t, VerdictPass, completion.Verdict)
	assert.Equal(t, PhaseCompleted, run.Phase())
}

func TestAwaitCompletion_FailVerdict(t *testing.T) {
	run := newRunHandle()
	clientSets := detectorClientSets(engineWithStatus(run, engineStatusCompleted, "Completed", "Fail"))

	completion, err := AwaitCompletion(context.Background(), clientSets, run, fastSettings())
	require.NoError(t, err)
	assert.Equal(t, VerdictFail, completion.Verdict)
}

func TestAwaitCompletion_VerdictFromChaosResult(t *testing.T) {
	// engine reports completed but its status verdict is still awaited; the
	// verdict comes from the ChaosResult instead
	run := newRunHandle()
	result := &v1alpha1.ChaosResult{
		ObjectMeta: metav1.ObjectMeta{
			Name:      run.EngineName + "-" + run.ExperimentName,
			Namespace: run.Namespace,
		},
	}
	result.Status.ExperimentStatus.Verdict = "Pass"
	clientSets := detectorClientSets(
		engineWithStatus(run, engineStatusCompleted, "Completed", "Awaited"),
		result,
	)

	completion, err := AwaitCompletion(context.Background(), clientSets, run, fastSettings())
	require.NoError(t, err)
	assert.Equal(t, VerdictPass, completion.Verdict)
}

func TestAwaitCompletion_StuckNotStarted(t *testing.T) {
	run := newRunHandle()
	// the engine never reports any experiment status
	clientSets := detectorClientSets(engineWithStatus(run, "initialized", "", ""))

	start := time.Now()
	_, err := AwaitCompletion(context.Background(), clientSets, run, DetectorSettings{
		Timeout:        10 * time.Second,
		Interval:       10 * time.Millisecond,
		StuckThreshold: 50 * time.Millisecond,
	})

	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeStuckNotStarted, cerrors.GetErrorType(err))
	assert.Equal(t, PhaseStuckNotStarted, run.Phase())
	// failed fast at the stuck threshold, not at the overall timeout
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestAwaitCompletion_WaitingStatusCountsAsNotStarted(t *testing.T) {
	run := newRunHandle()
	clientSets := detectorClientSets(engineWithStatus(run, "initialized", experimentStatusWaiting, ""))

	_, err := AwaitCompletion(context.Background(), clientSets, run, DetectorSettings{
		Timeout:        10 * time.Second,
		Interval:       10 * time.Millisecond,
		StuckThreshold: 50 * time.Millisecond,
	})

	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeStuckNotStarted, cerrors.GetErrorType(err))
}

func TestAwaitCompletion_Timeout(t *testing.T) {
	run := newRunHandle()
	// the experiment starts but never reaches a terminal verdict
	clientSets := detectorClientSets(engineWithStatus(run, "initialized", "Running", "Awaited"))

	_, err := AwaitCompletion(context.Background(), clientSets, run, DetectorSettings{
		Timeout:        100 * time.Millisecond,
		Interval:       20 * time.Millisecond,
		StuckThreshold: 10 * time.Second,
	})

	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeChaosTimeout, cerrors.GetErrorType(err))
	assert.Equal(t, PhaseError, run.Phase())
}

func TestAwaitCompletion_ExternalCancellation(t *testing.T) {
	run := newRunHandle()
	clientSets := detectorClientSets(engineWithStatus(run, "initialized", "Running", "Awaited"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := AwaitCompletion(ctx, clientSets, run, DetectorSettings{
		Timeout:        10 * time.Second,
		Interval:       10 * time.Millisecond,
		StuckThreshold: 10 * time.Second,
	})

	// cancellation surfaces as the context error, not as stuck or timeout
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunHandle_PhaseNeverRegresses(t *testing.T) {
	run := newRunHandle()
	assert.Equal(t, PhaseCreated, run.Phase())

	run.advance(PhaseStarted)
	assert.Equal(t, PhaseStarted, run.Phase())

	run.advance(PhaseCompleted)
	run.advance(PhaseStarted)
	assert.Equal(t, PhaseCompleted, run.Phase())
}

func TestExperimentStatus(t *testing.T) {
	run := newRunHandle()
	engine := engineWithStatus(run, "initialized", "Running", "Awaited")

	status, verdict, found := experimentStatus(engine, run.ExperimentName)
	assert.True(t, found)
	assert.Equal(t, "Running", status)
	assert.Equal(t, "Awaited", verdict)

	_, _, found = experimentStatus(engine, "some-other-experiment")
	assert.False(t, found)
}
