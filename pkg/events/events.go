// Package events records Kubernetes Events against the submitted
// ChaosEngine so the scenario timeline is visible with kubectl alone.
package events

import (
	"context"
	"time"

	apiv1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	clientTypes "k8s.io/apimachinery/pkg/types"

	clients "github.com/cglendenning/percona-operator-eks-sub000/pkg/clients"
)

const (
	// ChaosInject marks the start of fault injection
	ChaosInject = "ChaosInject"
	// Summary carries the scenario verdict
	Summary = "Summary"
)

// EventDetails is for collecting all the events-related details
type EventDetails struct {
	Reason     string
	Message    string
	Type       string
	EngineName string
	Namespace  string
	EngineUID  clientTypes.UID
}

// CreateEvents create the event on the run's ChaosEngine
func CreateEvents(ctx context.Context, eventsDetails *EventDetails, clientSets clients.ClientSets) error {
	event := &apiv1.Event{
		ObjectMeta: metav1.ObjectMeta{
			Name:      eventsDetails.Reason + "-" + eventsDetails.EngineName,
			Namespace: eventsDetails.Namespace,
		},
		Source: apiv1.EventSource{
			Component: "resiliency-runner",
		},
		Message:        eventsDetails.Message,
		Reason:         eventsDetails.Reason,
		Type:           eventsDetails.Type,
		Count:          1,
		FirstTimestamp: metav1.Time{Time: time.Now()},
		LastTimestamp:  metav1.Time{Time: time.Now()},
		InvolvedObject: apiv1.ObjectReference{
			APIVersion: "litmuschaos.io/v1alpha1",
			Kind:       "ChaosEngine",
			Name:       eventsDetails.EngineName,
			Namespace:  eventsDetails.Namespace,
			UID:        eventsDetails.EngineUID,
		},
	}

	_, err := clientSets.KubeClient.CoreV1().Events(eventsDetails.Namespace).Create(ctx, event, metav1.CreateOptions{})
	return err
}

// GenerateEvents creates the event or bumps its count when it already exists
func GenerateEvents(ctx context.Context, eventsDetails *EventDetails, clientSets clients.ClientSets) error {
	eventName := eventsDetails.Reason + "-" + eventsDetails.EngineName
	event, err := clientSets.KubeClient.CoreV1().Events(eventsDetails.Namespace).Get(ctx, eventName, metav1.GetOptions{})
	if err != nil || event.Name != eventName {
		return CreateEvents(ctx, eventsDetails, clientSets)
	}

	event.Count = event.Count + 1
	event.LastTimestamp = metav1.Time{Time: time.Now()}
	_, err = clientSets.KubeClient.CoreV1().Events(eventsDetails.Namespace).Update(ctx, event, metav1.UpdateOptions{})
	return err
}
