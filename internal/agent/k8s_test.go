package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	batchV1 "k8s.io/api/batch/v1"
	coreV1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metaV1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/robocompute/go-robocompute/internal/models"
)

const testNamespace = "robocompute"

// finishJob waits for the job to appear, adds its pod and marks it done.
func finishJob(t *testing.T, cs *fake.Clientset, name string, succeeded bool) {
	ctx := context.Background()
	var job *batchV1.Job
	require.Eventually(t, func() bool {
		j, err := cs.BatchV1().Jobs(testNamespace).Get(ctx, name, metaV1.GetOptions{})
		if err != nil {
			return false
		}
		job = j
		return true
	}, 5*time.Second, 5*time.Millisecond)

	_, err := cs.CoreV1().Pods(testNamespace).Create(ctx, &coreV1.Pod{
		ObjectMeta: metaV1.ObjectMeta{Name: name + "-x7k2p", Namespace: testNamespace, Labels: map[string]string{"job-name": name}},
	}, metaV1.CreateOptions{})
	require.NoError(t, err)

	if succeeded {
		job.Status.Succeeded = 1
	} else {
		job.Status.Failed = 1
	}
	_, err = cs.BatchV1().Jobs(testNamespace).UpdateStatus(ctx, job, metaV1.UpdateOptions{})
	require.NoError(t, err)
}

func TestK8sExecutorSuccess(t *testing.T) {
	cs := fake.NewSimpleClientset()
	k := newK8sExecutor(cs, testNamespace, 5*time.Millisecond)
	job := Job{
		TaskId:       "task_K1",
		Type:         models.TaskTypeGPU,
		Image:        "robocompute/slam:2",
		Command:      []string{"./run"},
		Requirements: models.ResourceRequirements{CpuCores: 4, RamGb: 16},
		Timeout:      time.Minute,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		finishJob(t, cs, "rc-task-k1", true)
	}()

	var started string
	out, err := k.Run(context.Background(), job, func(id string) error {
		started = id
		return nil
	})
	<-done
	require.NoError(t, err)
	assert.Equal(t, "rc-task-k1", started)
	assert.Equal(t, []string{"fake logs"}, out.Logs)
	assert.Equal(t, resultHash([]string{"fake logs"}), out.ResultHash)

	_, err = cs.BatchV1().Jobs(testNamespace).Get(context.Background(), "rc-task-k1", metaV1.GetOptions{})
	assert.True(t, apierrors.IsNotFound(err))
}

func TestK8sExecutorFailedJob(t *testing.T) {
	cs := fake.NewSimpleClientset()
	k := newK8sExecutor(cs, testNamespace, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		finishJob(t, cs, "rc-task-k2", false)
	}()

	_, err := k.Run(context.Background(), Job{TaskId: "task_K2", Image: "busybox"}, func(string) error { return nil })
	<-done
	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "job rc-task-k2 failed", execErr.Message)
}

func TestK8sJobSpec(t *testing.T) {
	k := newK8sExecutor(fake.NewSimpleClientset(), testNamespace, time.Second)
	spec := k.jobSpec("rc-task-1", Job{
		Type:         models.TaskTypeGPU,
		Image:        "img",
		Requirements: models.ResourceRequirements{CpuCores: 2, RamGb: 8, StorageGb: 50},
		Timeout:      90 * time.Second,
	})

	require.NotNil(t, spec.Spec.BackoffLimit)
	assert.Equal(t, int32(0), *spec.Spec.BackoffLimit)
	assert.Equal(t, int64(90), *spec.Spec.ActiveDeadlineSeconds)
	assert.Equal(t, coreV1.RestartPolicyNever, spec.Spec.Template.Spec.RestartPolicy)

	limits := spec.Spec.Template.Spec.Containers[0].Resources.Limits
	assert.Equal(t, int64(2), limits.Cpu().Value())
	assert.Equal(t, "8Gi", limits.Memory().String())
	gpu := limits[resourceGpuName]
	assert.Equal(t, int64(1), gpu.Value())
}
