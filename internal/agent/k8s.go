package agent

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/filswan/go-swan-lib/logs"
	batchV1 "k8s.io/api/batch/v1"
	coreV1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metaV1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"

	"github.com/robocompute/go-robocompute/internal/models"
)

const resourceGpuName = "nvidia.com/gpu"

// K8sExecutor runs each job as a batch/v1 Job with no retries.
type K8sExecutor struct {
	client       kubernetes.Interface
	namespace    string
	pollInterval time.Duration
}

func NewK8sExecutor(namespace, kubeConfig string) (*K8sExecutor, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		if kubeConfig == "" {
			if home := homedir.HomeDir(); home != "" {
				kubeConfig = home + "/.kube/config"
			}
		}
		config, err = clientcmd.BuildConfigFromFlags("", kubeConfig)
		if err != nil {
			return nil, fmt.Errorf("failed create k8s config, error: %w", err)
		}
	}
	clientSet, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed create k8s clientset, error: %w", err)
	}
	return newK8sExecutor(clientSet, namespace, 2*time.Second), nil
}

func newK8sExecutor(c kubernetes.Interface, namespace string, pollInterval time.Duration) *K8sExecutor {
	return &K8sExecutor{client: c, namespace: namespace, pollInterval: pollInterval}
}

func (k *K8sExecutor) Run(ctx context.Context, job Job, started func(string) error) (*Output, error) {
	name := containerName(job.TaskId)
	spec := k.jobSpec(name, job)
	if _, err := k.client.BatchV1().Jobs(k.namespace).Create(ctx, spec, metaV1.CreateOptions{}); err != nil {
		return nil, fmt.Errorf("create job %s: %w", name, err)
	}
	defer k.deleteJob(name)

	if err := started(name); err != nil {
		return nil, err
	}
	startedAt := time.Now()

	succeeded, err := k.waitJob(ctx, name)
	lines := splitLogs(k.jobLogs(name))
	if err != nil {
		return nil, &ExecError{Message: fmt.Sprintf("job %s: %v", name, err), Logs: lines}
	}
	if !succeeded {
		return nil, &ExecError{Message: fmt.Sprintf("job %s failed", name), Logs: lines}
	}
	return &Output{
		ContainerId:   name,
		Logs:          lines,
		ResultHash:    resultHash(lines),
		ResourceUsage: map[string]float64{"wall_seconds": time.Since(startedAt).Seconds()},
	}, nil
}

func (k *K8sExecutor) jobSpec(name string, job Job) *batchV1.Job {
	limits := coreV1.ResourceList{}
	if job.Requirements.CpuCores > 0 {
		limits[coreV1.ResourceCPU] = *resource.NewQuantity(int64(job.Requirements.CpuCores), resource.DecimalSI)
	}
	if job.Requirements.RamGb > 0 {
		limits[coreV1.ResourceMemory] = resource.MustParse(fmt.Sprintf("%dGi", job.Requirements.RamGb))
	}
	if job.Requirements.StorageGb > 0 {
		limits[coreV1.ResourceEphemeralStorage] = resource.MustParse(fmt.Sprintf("%dGi", job.Requirements.StorageGb))
	}
	if job.Type == models.TaskTypeGPU {
		limits[resourceGpuName] = *resource.NewQuantity(1, resource.DecimalSI)
	}

	backoff := int32(0)
	var deadline *int64
	if job.Timeout > 0 {
		secs := int64(job.Timeout.Seconds())
		deadline = &secs
	}
	labels := map[string]string{"robocompute.task": name}
	return &batchV1.Job{
		ObjectMeta: metaV1.ObjectMeta{Name: name, Namespace: k.namespace, Labels: labels},
		Spec: batchV1.JobSpec{
			BackoffLimit:          &backoff,
			ActiveDeadlineSeconds: deadline,
			Template: coreV1.PodTemplateSpec{
				ObjectMeta: metaV1.ObjectMeta{Labels: labels},
				Spec: coreV1.PodSpec{
					RestartPolicy: coreV1.RestartPolicyNever,
					Containers: []coreV1.Container{{
						Name:      name,
						Image:     job.Image,
						Command:   job.Command,
						Resources: coreV1.ResourceRequirements{Limits: limits, Requests: limits},
					}},
				},
			},
		},
	}
}

func (k *K8sExecutor) waitJob(ctx context.Context, name string) (bool, error) {
	ticker := time.NewTicker(k.pollInterval)
	defer ticker.Stop()
	for {
		j, err := k.client.BatchV1().Jobs(k.namespace).Get(ctx, name, metaV1.GetOptions{})
		if err != nil {
			return false, err
		}
		if j.Status.Succeeded > 0 {
			return true, nil
		}
		if j.Status.Failed > 0 {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (k *K8sExecutor) jobLogs(name string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pods, err := k.client.CoreV1().Pods(k.namespace).List(ctx, metaV1.ListOptions{LabelSelector: "job-name=" + name})
	if err != nil {
		logs.GetLogger().Errorf("list pods of job %s failed, error: %v", name, err)
		return ""
	}
	var out strings.Builder
	for _, pod := range pods.Items {
		req := k.client.CoreV1().Pods(k.namespace).GetLogs(pod.Name, &coreV1.PodLogOptions{Container: name})
		if err := readLog(ctx, req, &out); err != nil {
			logs.GetLogger().Errorf("read logs of pod %s failed, error: %v", pod.Name, err)
		}
	}
	return out.String()
}

func (k *K8sExecutor) deleteJob(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	policy := metaV1.DeletePropagationBackground
	err := k.client.BatchV1().Jobs(k.namespace).Delete(ctx, name, metaV1.DeleteOptions{PropagationPolicy: &policy})
	if err != nil {
		logs.GetLogger().Errorf("delete job %s failed, error: %v", name, err)
	}
}

func readLog(ctx context.Context, req *rest.Request, w io.Writer) error {
	podLogs, err := req.Stream(ctx)
	if err != nil {
		return err
	}
	defer podLogs.Close()
	_, err = io.Copy(w, podLogs)
	return err
}
