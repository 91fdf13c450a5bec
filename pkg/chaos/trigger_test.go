package chaos

import (
	"context"
	"strings"
	"testing"

	"github.com/litmuschaos/chaos-operator/api/litmuschaos/v1alpha1"
	litmusfake "github.com/litmuschaos/chaos-operator/pkg/client/clientset/versioned/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	fakediscovery "k8s.io/client-go/discovery/fake"
	k8sfake "k8s.io/client-go/kubernetes/fake"

	"github.com/cglendenning/percona-operator-eks-sub000/pkg/catalog"
	"github.com/cglendenning/percona-operator-eks-sub000/pkg/cerrors"
	clients "github.com/cglendenning/percona-operator-eks-sub000/pkg/clients"
)

func triggerDetails() TriggerDetails {
	return TriggerDetails{
		Scenario:        "pxc-pod-delete",
		FaultKind:       catalog.PodDelete,
		AppNamespace:    "pxc",
		AppLabel:        "component=pxc",
		AppKind:         "statefulset",
		ChaosNamespace:  "litmus",
		ServiceAccount:  "litmus-admin",
		DurationSeconds: 60,
		IntervalSeconds: 10,
	}
}

// fakeClientSets wires a kube fake whose discovery advertises the chaos CRDs
// unless registered is false
func fakeClientSets(registered bool, objects ...runtime.Object) clients.ClientSets {
	kubeClient := k8sfake.NewSimpleClientset(objects...)
	if registered {
		kubeClient.Discovery().(*fakediscovery.FakeDiscovery).Resources = []*metav1.APIResourceList{
			{
				GroupVersion: litmusGroupVersion,
				APIResources: []metav1.APIResource{{Name: engineResourceName}},
			},
		}
	}
	return clients.ClientSets{
		KubeClient:   kubeClient,
		LitmusClient: litmusfake.NewSimpleClientset().LitmuschaosV1alpha1(),
	}
}

func chaosNamespaceAndTarget() []runtime.Object {
	return []runtime.Object{
		&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "litmus"}},
		&corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{
				Namespace: "pxc",
				Name:      "pxc-0",
				Labels:    map[string]string{"component": "pxc"},
			},
		},
	}
}

func TestTrigger(t *testing.T) {
	clientSets := fakeClientSets(true, chaosNamespaceAndTarget()...)

	run, err := Trigger(context.Background(), clientSets, triggerDetails())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(run.EngineName, DefaultEnginePrefix+"-pod-delete-"), "engine name %q", run.EngineName)
	assert.Equal(t, "pod-delete", run.ExperimentName)
	assert.Equal(t, "litmus", run.Namespace)
	assert.Equal(t, PhaseCreated, run.Phase())

	engine, err := clientSets.LitmusClient.ChaosEngines("litmus").Get(context.Background(), run.EngineName, metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "pxc", engine.Spec.Appinfo.Appns)
	assert.Equal(t, "component=pxc", engine.Spec.Appinfo.Applabel)
	assert.Equal(t, "litmus-admin", engine.Spec.ChaosServiceAccount)
	assert.Equal(t, v1alpha1.EngineStateActive, engine.Spec.EngineState)
	assert.Equal(t, v1alpha1.CleanUpPolicyDelete, engine.Spec.JobCleanUpPolicy)
	assert.Equal(t, "pxc-pod-delete", engine.Labels["resiliency.percona.com/scenario"])

	require.Len(t, engine.Spec.Experiments, 1)
	experiment := engine.Spec.Experiments[0]
	assert.Equal(t, "pod-delete", experiment.Name)
	env := map[string]string{}
	for _, v := range experiment.Spec.Components.ENV {
		env[v.Name] = v.Value
	}
	assert.Equal(t, "60", env["TOTAL_CHAOS_DURATION"])
	assert.Equal(t, "10", env["CHAOS_INTERVAL"])
	assert.Equal(t, "false", env["FORCE"])
}

func TestTrigger_UniqueEngineNames(t *testing.T) {
	clientSets := fakeClientSets(true, chaosNamespaceAndTarget()...)

	first, err := Trigger(context.Background(), clientSets, triggerDetails())
	require.NoError(t, err)
	second, err := Trigger(context.Background(), clientSets, triggerDetails())
	require.NoError(t, err)

	assert.NotEqual(t, first.EngineName, second.EngineName)
}

func TestTrigger_ControllerNotRegistered(t *testing.T) {
	clientSets := fakeClientSets(false, chaosNamespaceAndTarget()...)

	_, err := Trigger(context.Background(), clientSets, triggerDetails())
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeControllerUnavailable, cerrors.GetErrorType(err))
}

func TestTrigger_ChaosNamespaceMissing(t *testing.T) {
	clientSets := fakeClientSets(true, &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Namespace: "pxc",
			Name:      "pxc-0",
			Labels:    map[string]string{"component": "pxc"},
		},
	})

	_, err := Trigger(context.Background(), clientSets, triggerDetails())
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeControllerUnavailable, cerrors.GetErrorType(err))
	assert.Contains(t, err.Error(), "namespace")
}

func TestTrigger_NoTargetsMatchSelector(t *testing.T) {
	clientSets := fakeClientSets(true, &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "litmus"}})

	_, err := Trigger(context.Background(), clientSets, triggerDetails())
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeTargetNotFound, cerrors.GetErrorType(err))
}

func TestCleanup(t *testing.T) {
	clientSets := fakeClientSets(true, chaosNamespaceAndTarget()...)
	run, err := Trigger(context.Background(), clientSets, triggerDetails())
	require.NoError(t, err)

	require.NoError(t, Cleanup(context.Background(), clientSets, run))
	_, err = clientSets.LitmusClient.ChaosEngines("litmus").Get(context.Background(), run.EngineName, metav1.GetOptions{})
	assert.Error(t, err)

	// deleting an already-deleted engine is not an error
	assert.NoError(t, Cleanup(context.Background(), clientSets, run))
}
