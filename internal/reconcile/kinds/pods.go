package kinds

import (
	"fmt"
	"slices"
	"time"

	corev1 "k8s.io/api/core/v1"

	"github.com/invergent-ai/surogate-studio-sub002/internal/reconcile"
)

// Container waiting reasons that will not resolve without a change to the spec.
var fatalWaitingReasons = []string{
	"ErrImagePull",
	"ImagePullBackOff",
	"InvalidImageName",
	"CreateContainerConfigError",
	"CreateContainerError",
	"RunContainerError",
}

// PodStatus derives the status of one pod and its containers.
func PodStatus(id, component string, pod *corev1.Pod) reconcile.ResourceStatus {
	stage, message := podStage(pod)
	st := reconcile.ResourceStatus{
		ID:        id,
		Component: component,
		Stage:     stage,
		Message:   message,
		Pods:      containerStatuses(pod),
	}
	if pod.Status.StartTime != nil {
		st.StartedAt = pod.Status.StartTime.Time
	}
	return st
}

func podStage(pod *corev1.Pod) (reconcile.Stage, string) {
	if pod.DeletionTimestamp != nil {
		return reconcile.StageStopped, "terminating"
	}

	switch pod.Status.Phase {
	case corev1.PodSucceeded:
		return reconcile.StageCompleted, ""
	case corev1.PodFailed:
		return reconcile.StageFailed, joinReason(pod.Status.Reason, pod.Status.Message)
	case corev1.PodUnknown:
		return reconcile.StageUnknown, "pod state unknown"
	}

	for _, cs := range pod.Status.InitContainerStatuses {
		if stage, msg, bad := containerTrouble(cs); bad {
			return stage, fmt.Sprintf("init container %s: %s", cs.Name, msg)
		}
		if !cs.Ready {
			return reconcile.StageInitializing, "running init container " + cs.Name
		}
	}

	for _, cs := range pod.Status.ContainerStatuses {
		if stage, msg, bad := containerTrouble(cs); bad {
			return stage, fmt.Sprintf("container %s: %s", cs.Name, msg)
		}
	}

	if pod.Status.Phase == corev1.PodPending {
		for _, c := range pod.Status.Conditions {
			if c.Type == corev1.PodScheduled && c.Status == corev1.ConditionFalse {
				return reconcile.StageWaiting, joinReason(c.Reason, c.Message)
			}
		}
		if len(pod.Status.ContainerStatuses) > 0 {
			return reconcile.StageInitializing, "starting containers"
		}
		return reconcile.StageWaiting, "pending"
	}

	notReady := 0
	restarted := false
	for _, cs := range pod.Status.ContainerStatuses {
		if !cs.Ready {
			notReady++
			restarted = restarted || cs.RestartCount > 0
		}
	}
	switch {
	case notReady == 0:
		return reconcile.StageRunning, ""
	case restarted:
		return reconcile.StageDegraded, fmt.Sprintf("%d containers not ready after restart", notReady)
	default:
		return reconcile.StageInitializing, fmt.Sprintf("%d containers not ready", notReady)
	}
}

// containerTrouble classifies a waiting or crashed container.
func containerTrouble(cs corev1.ContainerStatus) (reconcile.Stage, string, bool) {
	if w := cs.State.Waiting; w != nil {
		switch {
		case w.Reason == "CrashLoopBackOff":
			return reconcile.StageRestarting, joinReason(w.Reason, lastTermination(cs)), true
		case slices.Contains(fatalWaitingReasons, w.Reason):
			return reconcile.StageFailed, joinReason(w.Reason, w.Message), true
		}
	}
	if t := cs.State.Terminated; t != nil && t.ExitCode != 0 {
		if cs.RestartCount > 0 {
			return reconcile.StageRestarting, joinReason(t.Reason, fmt.Sprintf("exit code %d", t.ExitCode)), true
		}
		return reconcile.StageFailed, joinReason(t.Reason, fmt.Sprintf("exit code %d", t.ExitCode)), true
	}
	return "", "", false
}

func lastTermination(cs corev1.ContainerStatus) string {
	if t := cs.LastTerminationState.Terminated; t != nil {
		return joinReason(t.Reason, fmt.Sprintf("last exit code %d", t.ExitCode))
	}
	return ""
}

func joinReason(reason, message string) string {
	switch {
	case reason == "":
		return message
	case message == "":
		return reason
	default:
		return reason + ": " + message
	}
}

// containerStatuses lists the regular containers of pod, preceded by init containers
// that have not finished.
func containerStatuses(pod *corev1.Pod) []reconcile.SubStatus {
	all := make([]corev1.ContainerStatus, 0, len(pod.Status.InitContainerStatuses)+len(pod.Status.ContainerStatuses))
	for _, cs := range pod.Status.InitContainerStatuses {
		if !cs.Ready {
			all = append(all, cs)
		}
	}
	all = append(all, pod.Status.ContainerStatuses...)

	out := make([]reconcile.SubStatus, 0, len(all))
	for _, cs := range all {
		sub := reconcile.SubStatus{
			Pod:       pod.Name,
			Container: cs.Name,
			Node:      pod.Spec.NodeName,
			Ready:     cs.Ready,
			Restarts:  cs.RestartCount,
		}
		if stage, msg, bad := containerTrouble(cs); bad {
			sub.Stage, sub.Message = stage, msg
		} else if cs.Ready {
			sub.Stage = reconcile.StageRunning
		} else if cs.State.Terminated != nil {
			sub.Stage = reconcile.StageCompleted
		} else {
			sub.Stage = reconcile.StageInitializing
		}
		switch {
		case cs.State.Running != nil:
			sub.StartedAt = timePtr(cs.State.Running.StartedAt.Time)
		case cs.State.Waiting != nil:
			sub.Reason = cs.State.Waiting.Reason
		case cs.State.Terminated != nil:
			sub.Reason = cs.State.Terminated.Reason
		}
		out = append(out, sub)
	}
	return out
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
