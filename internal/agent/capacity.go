package agent

import (
	"context"
	"sort"

	coreV1 "k8s.io/api/core/v1"
	metaV1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

const gpuProductLabel = "nvidia.com/gpu.product"

// NodeCapacity is what one cluster node can still offer.
type NodeCapacity struct {
	Name        string
	GpuModel    string
	GpuTotal    int64
	GpuFree     int64
	CpuFree     int64
	MemFreeGb   int64
	StorageFree int64
}

// Capacity sums the requests of running pods on each node and returns
// the free share of every node's allocatable resources.
func (k *K8sExecutor) Capacity(ctx context.Context) ([]NodeCapacity, error) {
	return clusterCapacity(ctx, k.client)
}

func clusterCapacity(ctx context.Context, cs kubernetes.Interface) ([]NodeCapacity, error) {
	pods, err := cs.CoreV1().Pods("").List(ctx, metaV1.ListOptions{FieldSelector: "status.phase=Running"})
	if err != nil {
		return nil, err
	}
	nodes, err := cs.CoreV1().Nodes().List(ctx, metaV1.ListOptions{})
	if err != nil {
		return nil, err
	}

	used := make(map[string]coreV1.ResourceList)
	for _, pod := range pods.Items {
		if pod.Status.Phase != "" && pod.Status.Phase != coreV1.PodRunning {
			continue
		}
		sum, ok := used[pod.Spec.NodeName]
		if !ok {
			sum = coreV1.ResourceList{}
			used[pod.Spec.NodeName] = sum
		}
		for _, c := range pod.Spec.Containers {
			for name, q := range c.Resources.Requests {
				total := sum[name]
				total.Add(q)
				sum[name] = total
			}
		}
	}

	var out []NodeCapacity
	for _, node := range nodes.Items {
		alloc := node.Status.Allocatable
		u := used[node.Name]
		gpuTotal := quantity(alloc, resourceGpuName)
		out = append(out, NodeCapacity{
			Name:        node.Name,
			GpuModel:    node.Labels[gpuProductLabel],
			GpuTotal:    gpuTotal,
			GpuFree:     free(gpuTotal, quantity(u, resourceGpuName)),
			CpuFree:     free(quantity(alloc, coreV1.ResourceCPU), quantity(u, coreV1.ResourceCPU)),
			MemFreeGb:   free(quantity(alloc, coreV1.ResourceMemory), quantity(u, coreV1.ResourceMemory)) >> 30,
			StorageFree: free(quantity(alloc, coreV1.ResourceEphemeralStorage), quantity(u, coreV1.ResourceEphemeralStorage)) >> 30,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func quantity(list coreV1.ResourceList, name coreV1.ResourceName) int64 {
	if list == nil {
		return 0
	}
	q, ok := list[name]
	if !ok {
		return 0
	}
	return q.Value()
}

func free(total, used int64) int64 {
	if used >= total {
		return 0
	}
	return total - used
}

