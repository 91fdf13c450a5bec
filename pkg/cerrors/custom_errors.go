package cerrors

import (
	"fmt"
	"time"
)

// ControllerUnavailable indicates the chaos controller's CRDs or operating
// namespace are missing; fatal for the scenario, never retried.
type ControllerUnavailable struct {
	Component string
	Reason    string
}

func (e ControllerUnavailable) Error() string {
	return fmt.Sprintf("chaos controller unavailable: %s, %s", e.Component, e.Reason)
}

func (e ControllerUnavailable) UserFriendly() bool {
	return true
}

func (e ControllerUnavailable) ErrorType() ErrorType {
	return ErrorTypeControllerUnavailable
}

// TargetNotFound indicates the scenario's selector matched no resources
type TargetNotFound struct {
	Namespace string
	Selector  string
}

func (e TargetNotFound) Error() string {
	return fmt.Sprintf("no target found for selector '%s' in namespace '%s'", e.Selector, e.Namespace)
}

func (e TargetNotFound) UserFriendly() bool {
	return true
}

func (e TargetNotFound) ErrorType() ErrorType {
	return ErrorTypeTargetNotFound
}

// TriggerFailed indicates the fault-injection request could not be submitted
type TriggerFailed struct {
	Engine string
	Reason string
}

func (e TriggerFailed) Error() string {
	return fmt.Sprintf("failed to submit chaos engine '%s', %s", e.Engine, e.Reason)
}

func (e TriggerFailed) UserFriendly() bool {
	return true
}

func (e TriggerFailed) ErrorType() ErrorType {
	return ErrorTypeTriggerFailed
}

// StuckNotStarted indicates the fault run never left its initial phase
// within the stuck threshold, usually a sign the controller itself is
// unhealthy rather than a slow experiment.
type StuckNotStarted struct {
	Engine  string
	Elapsed time.Duration
}

func (e StuckNotStarted) Error() string {
	return fmt.Sprintf("chaos engine '%s' did not start processing within %v, controller is not processing the request", e.Engine, e.Elapsed.Round(time.Second))
}

func (e StuckNotStarted) UserFriendly() bool {
	return true
}

func (e StuckNotStarted) ErrorType() ErrorType {
	return ErrorTypeStuckNotStarted
}

// ChaosTimeout indicates no terminal verdict appeared before the wait timeout
type ChaosTimeout struct {
	Engine  string
	Timeout time.Duration
}

func (e ChaosTimeout) Error() string {
	return fmt.Sprintf("chaos engine '%s' did not report a terminal verdict within %v", e.Engine, e.Timeout.Round(time.Second))
}

func (e ChaosTimeout) UserFriendly() bool {
	return true
}

func (e ChaosTimeout) ErrorType() ErrorType {
	return ErrorTypeChaosTimeout
}

// ChaosFailedVerdict indicates the fault run completed with a Fail verdict
type ChaosFailedVerdict struct {
	Engine   string
	FailStep string
}

func (e ChaosFailedVerdict) Error() string {
	if e.FailStep == "" {
		return fmt.Sprintf("chaos engine '%s' completed with verdict Fail", e.Engine)
	}
	return fmt.Sprintf("chaos engine '%s' completed with verdict Fail, failed step: %s", e.Engine, e.FailStep)
}

func (e ChaosFailedVerdict) UserFriendly() bool {
	return true
}

func (e ChaosFailedVerdict) ErrorType() ErrorType {
	return ErrorTypeChaosFailedVerdict
}

// RecoveryTimeout indicates the recovery predicate stayed unsatisfied for
// the whole MTTR budget. LastObserved carries the final observation so the
// operator sees more than "timed out".
type RecoveryTimeout struct {
	Condition    string
	LastObserved string
	Elapsed      time.Duration
}

func (e RecoveryTimeout) Error() string {
	return fmt.Sprintf("recovery condition '%s' not satisfied within %v, last observed: %s", e.Condition, e.Elapsed.Round(time.Second), e.LastObserved)
}

func (e RecoveryTimeout) UserFriendly() bool {
	return true
}

func (e RecoveryTimeout) ErrorType() ErrorType {
	return ErrorTypeRecoveryTimeout
}

// Cancelled indicates an external cancellation interrupted the scenario;
// reported distinctly from timeouts and failures.
type Cancelled struct {
	Phase string
}

func (e Cancelled) Error() string {
	if e.Phase == "" {
		return "scenario cancelled"
	}
	return fmt.Sprintf("scenario cancelled during %s", e.Phase)
}

func (e Cancelled) UserFriendly() bool {
	return true
}

func (e Cancelled) ErrorType() ErrorType {
	return ErrorTypeCancelled
}
