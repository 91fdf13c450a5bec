// Package recovery implements the per-scenario recovery predicates. Each
// variant projects the raw API object into a small typed snapshot first, so
// the predicate logic never touches untyped data, and keeps the latest
// snapshot around for the failure diagnostics.
package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/cglendenning/percona-operator-eks-sub000/pkg/catalog"
	"github.com/cglendenning/percona-operator-eks-sub000/pkg/cerrors"
	clients "github.com/cglendenning/percona-operator-eks-sub000/pkg/clients"
	"github.com/cglendenning/percona-operator-eks-sub000/pkg/log"
	"github.com/cglendenning/percona-operator-eks-sub000/pkg/poller"
	"github.com/pkg/errors"
	v1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// PXCClusterGVR locates the Percona XtraDB Cluster custom resource whose
// status carries the cluster-ready condition
var PXCClusterGVR = schema.GroupVersionResource{
	Group:    "pxc.percona.com",
	Version:  "v1",
	Resource: "perconaxtradbclusters",
}

// Observation is a timestamped snapshot of the target's observed state,
// taken on each poll tick; transient, never persisted
type Observation struct {
	Timestamp time.Time
	Detail    string
}

// probeFunc evaluates the target once: satisfied, human-readable detail of
// what was observed, or an observation error
type probeFunc func(ctx context.Context) (bool, string, error)

// Verifier polls one recovery condition until satisfied or the MTTR budget
// expires
type Verifier struct {
	Description string
	probe       probeFunc
	last        Observation
}

// LastObservation returns the most recent snapshot, for diagnostics
func (v *Verifier) LastObservation() Observation {
	return v.last
}

// Verify polls the condition every interval until it is satisfied or mttr
// elapses. On timeout the returned error carries the last observed value.
func (v *Verifier) Verify(ctx context.Context, mttr, interval time.Duration) error {
	stats, err := poller.WaitUntil(ctx, poller.Settings{
		Timeout:     mttr,
		Interval:    interval,
		Description: v.Description,
	}, func(ctx context.Context) (poller.ConditionStatus, error) {
		ok, detail, err := v.probe(ctx)
		if err != nil {
			return poller.NotYetSatisfied, err
		}
		v.last = Observation{Timestamp: time.Now(), Detail: detail}
		if ok {
			return poller.Satisfied, nil
		}
		return poller.NotYetSatisfied, nil
	})
	if err != nil {
		if timeoutErr, ok := err.(*poller.TimeoutExceeded); ok {
			lastObserved := v.last.Detail
			if lastObserved == "" {
				lastObserved = "no successful observation"
			}
			return cerrors.RecoveryTimeout{
				Condition:    v.Description,
				LastObserved: lastObserved,
				Elapsed:      timeoutErr.Elapsed,
			}
		}
		return err
	}
	log.Infof("[Recovery]: %s satisfied after %v (%d polls), observed: %s", v.Description, stats.Elapsed.Round(time.Second), stats.Polls, v.last.Detail)
	return nil
}

// PodRunning is satisfied when the named pod's phase is Running. A
// not-found read counts as not satisfied, not as an error.
func PodRunning(clientSets clients.ClientSets, namespace, podName string) *Verifier {
	return &Verifier{
		Description: fmt.Sprintf("pod %s/%s running", namespace, podName),
		probe: func(ctx context.Context) (bool, string, error) {
			pod, err := clientSets.KubeClient.CoreV1().Pods(namespace).Get(ctx, podName, metav1.GetOptions{})
			if k8serrors.IsNotFound(err) {
				return false, "pod not found", nil
			}
			if err != nil {
				return false, "", errors.Wrapf(err, "Unable to get pod %v, err: %v", podName, err)
			}
			projection := struct{ Phase v1.PodPhase }{Phase: pod.Status.Phase}
			return projection.Phase == v1.PodRunning, fmt.Sprintf("phase=%s", projection.Phase), nil
		},
	}
}

// ReplicaSetReady is satisfied when the replica set's ready-replica count
// matches its own declared count (re-read each tick, the declared count may
// be in flux) and is at least expectedReplicas.
func ReplicaSetReady(clientSets clients.ClientSets, namespace, name string, expectedReplicas int32) *Verifier {
	return &Verifier{
		Description: fmt.Sprintf("replicaset %s/%s fully ready (>=%d replicas)", namespace, name, expectedReplicas),
		probe: func(ctx context.Context) (bool, string, error) {
			rs, err := clientSets.KubeClient.AppsV1().ReplicaSets(namespace).Get(ctx, name, metav1.GetOptions{})
			if k8serrors.IsNotFound(err) {
				return false, "replicaset not found", nil
			}
			if err != nil {
				return false, "", errors.Wrapf(err, "Unable to get replicaset %v, err: %v", name, err)
			}
			projection := struct{ Declared, Ready int32 }{Ready: rs.Status.ReadyReplicas}
			if rs.Spec.Replicas != nil {
				projection.Declared = *rs.Spec.Replicas
			}
			detail := fmt.Sprintf("ready=%d declared=%d", projection.Ready, projection.Declared)
			return projection.Ready == projection.Declared && projection.Ready >= expectedReplicas, detail, nil
		},
	}
}

// ServiceHasEndpoints is satisfied when the union of the service's endpoint
// subset addresses reaches minEndpoints
func ServiceHasEndpoints(clientSets clients.ClientSets, namespace, serviceName string, minEndpoints int) *Verifier {
	return &Verifier{
		Description: fmt.Sprintf("service %s/%s has >=%d endpoints", namespace, serviceName, minEndpoints),
		probe: func(ctx context.Context) (bool, string, error) {
			endpoints, err := clientSets.KubeClient.CoreV1().Endpoints(namespace).Get(ctx, serviceName, metav1.GetOptions{})
			if k8serrors.IsNotFound(err) {
				return false, "endpoints object not found", nil
			}
			if err != nil {
				return false, "", errors.Wrapf(err, "Unable to get endpoints for service %v, err: %v", serviceName, err)
			}
			projection := struct{ Addresses int }{}
			for _, subset := range endpoints.Subsets {
				projection.Addresses += len(subset.Addresses)
			}
			return projection.Addresses >= minEndpoints, fmt.Sprintf("endpoints=%d", projection.Addresses), nil
		},
	}
}

// ClusterReady is satisfied when the PXC custom resource reports state
// "ready" and at least expectedMembers ready members
func ClusterReady(clientSets clients.ClientSets, namespace, clusterName string, expectedMembers int) *Verifier {
	return &Verifier{
		Description: fmt.Sprintf("cluster %s/%s ready with >=%d members", namespace, clusterName, expectedMembers),
		probe: func(ctx context.Context) (bool, string, error) {
			cluster, err := clientSets.DynamicClient.Resource(PXCClusterGVR).Namespace(namespace).Get(ctx, clusterName, metav1.GetOptions{})
			if k8serrors.IsNotFound(err) {
				return false, "cluster resource not found", nil
			}
			if err != nil {
				return false, "", errors.Wrapf(err, "Unable to get cluster %v, err: %v", clusterName, err)
			}
			projection, err := projectClusterStatus(cluster)
			if err != nil {
				return false, "", err
			}
			detail := fmt.Sprintf("state=%s readyMembers=%d", projection.State, projection.ReadyMembers)
			return projection.State == "ready" && projection.ReadyMembers >= int64(expectedMembers), detail, nil
		},
	}
}

type clusterProjection struct {
	State        string
	ReadyMembers int64
}

func projectClusterStatus(cluster *unstructured.Unstructured) (clusterProjection, error) {
	state, _, err := unstructured.NestedString(cluster.Object, "status", "state")
	if err != nil {
		return clusterProjection{}, errors.Wrapf(err, "Unable to read cluster state, err: %v", err)
	}
	ready, found, err := unstructured.NestedInt64(cluster.Object, "status", "pxc", "ready")
	if err != nil {
		return clusterProjection{}, errors.Wrapf(err, "Unable to read cluster ready count, err: %v", err)
	}
	if !found {
		// older operator versions report the count at the top level
		ready, _, _ = unstructured.NestedInt64(cluster.Object, "status", "ready")
	}
	return clusterProjection{State: state, ReadyMembers: ready}, nil
}

// ForScenario maps a catalog entry's recovery spec to its verifier
func ForScenario(clientSets clients.ClientSets, sc catalog.DisasterScenario) (*Verifier, error) {
	namespace := sc.Target.Namespace
	switch sc.Recovery.Kind {
	case catalog.RecoveryPodRunning:
		return PodRunning(clientSets, namespace, sc.Recovery.Name), nil
	case catalog.RecoveryReplicaSetReady:
		return ReplicaSetReady(clientSets, namespace, sc.Recovery.Name, int32(sc.Recovery.MinReady)), nil
	case catalog.RecoveryServiceEndpoints:
		return ServiceHasEndpoints(clientSets, namespace, sc.Recovery.Name, sc.Recovery.MinReady), nil
	case catalog.RecoveryClusterReady:
		return ClusterReady(clientSets, namespace, sc.Recovery.Name, sc.Recovery.MinReady), nil
	default:
		return nil, errors.Errorf("unknown recovery kind '%s' for scenario %s", sc.Recovery.Kind, sc.Name)
	}
}
