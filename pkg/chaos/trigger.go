package chaos

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/litmuschaos/chaos-operator/api/litmuschaos/v1alpha1"
	corev1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/cglendenning/percona-operator-eks-sub000/pkg/catalog"
	"github.com/cglendenning/percona-operator-eks-sub000/pkg/cerrors"
	clients "github.com/cglendenning/percona-operator-eks-sub000/pkg/clients"
	"github.com/cglendenning/percona-operator-eks-sub000/pkg/log"
	"github.com/cglendenning/percona-operator-eks-sub000/pkg/utils/stringutils"
)

const (
	litmusGroupVersion = "litmuschaos.io/v1alpha1"
	engineResourceName = "chaosengines"

	// DefaultEnginePrefix prefixes every generated engine name
	DefaultEnginePrefix = "resiliency"
)

// TriggerDetails carries everything needed to construct one fault-injection
// request
type TriggerDetails struct {
	Scenario       string
	FaultKind      catalog.FaultKind
	AppNamespace   string
	AppLabel       string
	AppKind        string
	ChaosNamespace string
	ServiceAccount string
	// DurationSeconds/IntervalSeconds parameterize the fault itself
	DurationSeconds int
	IntervalSeconds int
	// NamePrefix defaults to DefaultEnginePrefix when empty
	NamePrefix string
}

// Trigger preflights the chaos controller, builds a uniquely named
// ChaosEngine for the scenario, and submits it. Submission is not retried:
// a failure here is immediately actionable for the scenario.
func Trigger(ctx context.Context, clientSets clients.ClientSets, details TriggerDetails) (*RunHandle, error) {
	if err := preflight(ctx, clientSets, details.ChaosNamespace); err != nil {
		return nil, err
	}

	// the selector must match something before we ask the controller to
	// break it
	pods, err := clientSets.KubeClient.CoreV1().Pods(details.AppNamespace).List(ctx, metav1.ListOptions{LabelSelector: details.AppLabel})
	if err != nil {
		return nil, cerrors.TriggerFailed{Engine: "", Reason: fmt.Sprintf("unable to list target pods: %v", err)}
	}
	if len(pods.Items) == 0 {
		return nil, cerrors.TargetNotFound{Namespace: details.AppNamespace, Selector: details.AppLabel}
	}

	prefix := details.NamePrefix
	if prefix == "" {
		prefix = DefaultEnginePrefix
	}
	engineName := fmt.Sprintf("%s-%s-%s", prefix, details.FaultKind, stringutils.GetRunID())

	engine := buildEngine(engineName, details)
	if _, err := clientSets.LitmusClient.ChaosEngines(details.ChaosNamespace).Create(ctx, engine, metav1.CreateOptions{}); err != nil {
		return nil, cerrors.TriggerFailed{Engine: engineName, Reason: err.Error()}
	}

	log.InfoWithValues("[Chaos]: Submitted fault-injection request", map[string]interface{}{
		"Engine":    engineName,
		"FaultKind": details.FaultKind,
		"Targets":   len(pods.Items),
		"Duration":  details.DurationSeconds,
	})

	return &RunHandle{
		Scenario:       details.Scenario,
		EngineName:     engineName,
		ExperimentName: string(details.FaultKind),
		Namespace:      details.ChaosNamespace,
		AppNamespace:   details.AppNamespace,
		AppLabel:       details.AppLabel,
		CreatedAt:      time.Now(),
		phase:          PhaseCreated,
	}, nil
}

// preflight verifies the chaos controller's CRDs are registered and its
// operating namespace exists; either failure short-circuits the scenario
func preflight(ctx context.Context, clientSets clients.ClientSets, chaosNamespace string) error {
	resources, err := clientSets.KubeClient.Discovery().ServerResourcesForGroupVersion(litmusGroupVersion)
	if err != nil {
		return cerrors.ControllerUnavailable{Component: litmusGroupVersion, Reason: fmt.Sprintf("API group not registered: %v", err)}
	}
	registered := false
	for _, resource := range resources.APIResources {
		if resource.Name == engineResourceName {
			registered = true
			break
		}
	}
	if !registered {
		return cerrors.ControllerUnavailable{Component: engineResourceName, Reason: "resource type not registered in " + litmusGroupVersion}
	}

	if _, err := clientSets.KubeClient.CoreV1().Namespaces().Get(ctx, chaosNamespace, metav1.GetOptions{}); err != nil {
		if k8serrors.IsNotFound(err) {
			return cerrors.ControllerUnavailable{Component: "namespace " + chaosNamespace, Reason: "chaos namespace does not exist"}
		}
		return cerrors.ControllerUnavailable{Component: "namespace " + chaosNamespace, Reason: err.Error()}
	}
	return nil
}

// buildEngine constructs the fault-injection request. FORCE stays false so
// the controller's own safety checks are not overridden; RANDOMNESS varies
// the exact target within the selector across runs.
func buildEngine(engineName string, details TriggerDetails) *v1alpha1.ChaosEngine {
	return &v1alpha1.ChaosEngine{
		ObjectMeta: metav1.ObjectMeta{
			Name:      engineName,
			Namespace: details.ChaosNamespace,
			Labels: map[string]string{
				"app.kubernetes.io/managed-by":    "resiliency-verification-engine",
				"resiliency.percona.com/scenario": details.Scenario,
			},
		},
		Spec: v1alpha1.ChaosEngineSpec{
			Appinfo: v1alpha1.ApplicationParams{
				Appns:    details.AppNamespace,
				Applabel: details.AppLabel,
				AppKind:  details.AppKind,
			},
			AnnotationCheck:     "false",
			EngineState:         v1alpha1.EngineStateActive,
			ChaosServiceAccount: details.ServiceAccount,
			JobCleanUpPolicy:    v1alpha1.CleanUpPolicyDelete,
			Experiments: []v1alpha1.ExperimentList{
				{
					Name: string(details.FaultKind),
					Spec: v1alpha1.ExperimentAttributes{
						Components: v1alpha1.ExperimentComponents{
							ENV: []corev1.EnvVar{
								{Name: "TOTAL_CHAOS_DURATION", Value: strconv.Itoa(details.DurationSeconds)},
								{Name: "CHAOS_INTERVAL", Value: strconv.Itoa(details.IntervalSeconds)},
								{Name: "FORCE", Value: "false"},
								{Name: "RANDOMNESS", Value: "true"},
							},
						},
					},
				},
			},
		},
	}
}

// Cleanup deletes the run's ChaosEngine. Best-effort: a missing engine is
// not an error, anything else is logged by the caller.
func Cleanup(ctx context.Context, clientSets clients.ClientSets, run *RunHandle) error {
	err := clientSets.LitmusClient.ChaosEngines(run.Namespace).Delete(ctx, run.EngineName, metav1.DeleteOptions{})
	if err != nil && !k8serrors.IsNotFound(err) {
		return err
	}
	return nil
}
