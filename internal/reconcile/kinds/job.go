package kinds

import (
	"context"
	"fmt"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/utils/ptr"

	"github.com/invergent-ai/surogate-studio-sub002/internal/kube"
	"github.com/invergent-ai/surogate-studio-sub002/internal/reconcile"
	"github.com/invergent-ai/surogate-studio-sub002/internal/resource"
	"github.com/invergent-ai/surogate-studio-sub002/internal/task/kubetask"
	"github.com/invergent-ai/surogate-studio-sub002/pkg/logging"
)

// jobMetricQueries are read from the job metrics backend for training jobs. %q is the
// job name.
var jobMetricQueries = map[string]string{
	"loss":   `last_over_time(training_loss{job_name=%q}[15m])`,
	"step":   `last_over_time(training_step{job_name=%q}[15m])`,
	"tflops": `avg_over_time(training_tflops{job_name=%q}[5m])`,
}

// runtimeStages maps the deployment status of a CRD job runtime onto stages.
var runtimeStages = map[string]reconcile.Stage{
	"New":          reconcile.StageWaiting,
	"Initializing": reconcile.StageInitializing,
	"Running":      reconcile.StageRunning,
	"Complete":     reconcile.StageCompleted,
	"Failed":       reconcile.StageFailed,
	"Suspending":   reconcile.StageStopped,
	"Suspended":    reconcile.StageStopped,
	"Retrying":     reconcile.StageRestarting,
	"Waiting":      reconcile.StageWaiting,
}

// Jobs reads run-to-completion resources: training jobs and task runs. A job is either
// a batch/v1 Job or, on clusters with a job runtime, a CRD object of that runtime.
type Jobs struct {
	locator
	runtime schema.GroupVersionResource
	metrics bool
	now     func() time.Time
}

// NewTrainingJobs returns the accessor for training jobs.
func NewTrainingJobs(source BundleSource, loc reconcile.Locator, opts Options) *Jobs {
	return &Jobs{
		locator: newLocator(resource.KindTrainingJob, source, loc, opts),
		runtime: kubetask.DefaultJobRuntimeResource,
		metrics: true,
		now:     time.Now,
	}
}

// NewTaskRuns returns the accessor for evaluation and import task runs.
func NewTaskRuns(source BundleSource, loc reconcile.Locator, opts Options) *Jobs {
	return &Jobs{
		locator: newLocator(resource.KindTaskRun, source, loc, opts),
		runtime: kubetask.DefaultJobRuntimeResource,
		now:     time.Now,
	}
}

func (j *Jobs) Fetch(ctx context.Context, id string) ([]reconcile.ResourceStatus, error) {
	t, err := j.locate(ctx, id)
	if err != nil {
		return nil, err
	}
	name := kube.ObjectName(string(j.kind), id)

	if t.bundle.HasJobRuntime() {
		st, found, err := j.fetchRuntime(ctx, t, id, name)
		if err != nil || found {
			return st, err
		}
	}

	job, err := t.bundle.Kube().BatchV1().Jobs(t.namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		j.forget(id)
		return nil, reconcile.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", name, err)
	}

	pods, err := j.listPods(ctx, t, batchv1.JobNameLabel+"="+name)
	if err != nil {
		return nil, err
	}

	stage, message := jobStage(job, pods)
	st := reconcile.ResourceStatus{ID: id, Component: "job", Stage: stage, Message: message}
	if job.Status.StartTime != nil {
		st.StartedAt = job.Status.StartTime.Time
	}
	for i := range pods {
		st.Pods = append(st.Pods, containerStatuses(&pods[i])...)
	}
	return []reconcile.ResourceStatus{st}, nil
}

func (j *Jobs) fetchRuntime(ctx context.Context, t target, id, name string) ([]reconcile.ResourceStatus, bool, error) {
	obj, err := t.bundle.JobRuntime().Resource(j.runtime).Namespace(t.namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s %s: %w", j.runtime.Resource, name, err)
	}

	state, _, _ := unstructured.NestedString(obj.Object, "status", "jobDeploymentStatus")
	message, _, _ := unstructured.NestedString(obj.Object, "status", "message")
	stage, ok := runtimeStages[state]
	if !ok {
		stage = reconcile.StageUnknown
	}
	st := reconcile.ResourceStatus{ID: id, Component: "job", Stage: stage, Message: joinReason(state, message)}
	if started, _, _ := unstructured.NestedString(obj.Object, "status", "startTime"); started != "" {
		if ts, err := time.Parse(time.RFC3339, started); err == nil {
			st.StartedAt = ts
		}
	}
	return []reconcile.ResourceStatus{st}, true, nil
}

// jobStage derives the stage of a batch job from its conditions and pods.
func jobStage(job *batchv1.Job, pods []corev1.Pod) (reconcile.Stage, string) {
	for _, c := range job.Status.Conditions {
		if c.Status != corev1.ConditionTrue {
			continue
		}
		switch c.Type {
		case batchv1.JobComplete:
			return reconcile.StageCompleted, ""
		case batchv1.JobFailed:
			return reconcile.StageFailed, joinReason(c.Reason, c.Message)
		}
	}
	if ptr.Deref(job.Spec.Suspend, false) {
		return reconcile.StageStopped, "suspended"
	}

	if len(pods) == 0 {
		return reconcile.StageWaiting, "waiting for pods"
	}
	stages := make([]reconcile.Stage, 0, len(pods))
	var message string
	for i := range pods {
		stage, msg := podStage(&pods[i])
		// pods replaced by the job controller after a failure do not fail the job
		if stage == reconcile.StageFailed && job.Status.Active > 0 {
			continue
		}
		stages = append(stages, stage)
		if message == "" && stage != reconcile.StageRunning {
			message = msg
		}
	}
	stage := reconcile.AggregateStages(stages)
	if stage == reconcile.StageRunning {
		message = ""
	}
	return stage, message
}

// Enrich attaches log tails and, for training jobs, the latest training metrics.
func (j *Jobs) Enrich(ctx context.Context, id string, statuses []reconcile.ResourceStatus) {
	t, ok := j.cached(id)
	if !ok {
		return
	}
	j.attachLogs(ctx, t, statuses)

	querier := t.bundle.JobMetrics()
	if !j.metrics || querier == nil {
		return
	}
	name := kube.ObjectName(string(j.kind), id)
	values := make(map[string]float64, len(jobMetricQueries))
	at := j.now()
	for metric, tmpl := range jobMetricQueries {
		res, err := querier.Query(ctx, fmt.Sprintf(tmpl, name), at)
		if err != nil {
			logging.Debug("Reconcile", "Metric %s of %s unavailable: %v", metric, name, err)
			continue
		}
		if v, err := res.Value(); err == nil {
			values[metric] = v
		}
	}
	if len(values) == 0 {
		return
	}
	for i := range statuses {
		statuses[i].Metrics = values
	}
}
