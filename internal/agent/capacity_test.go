package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	coreV1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metaV1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func TestClusterCapacity(t *testing.T) {
	node := &coreV1.Node{
		ObjectMeta: metaV1.ObjectMeta{Name: "gpu-node-1", Labels: map[string]string{gpuProductLabel: "NVIDIA-A100-SXM4-80GB"}},
		Status: coreV1.NodeStatus{Allocatable: coreV1.ResourceList{
			coreV1.ResourceCPU:              resource.MustParse("32"),
			coreV1.ResourceMemory:           resource.MustParse("256Gi"),
			coreV1.ResourceEphemeralStorage: resource.MustParse("1000Gi"),
			resourceGpuName:                 resource.MustParse("4"),
		}},
	}
	pod := &coreV1.Pod{
		ObjectMeta: metaV1.ObjectMeta{Name: "trainer", Namespace: testNamespace},
		Spec: coreV1.PodSpec{
			NodeName: "gpu-node-1",
			Containers: []coreV1.Container{{
				Name: "trainer",
				Resources: coreV1.ResourceRequirements{Requests: coreV1.ResourceList{
					coreV1.ResourceCPU:    resource.MustParse("8"),
					coreV1.ResourceMemory: resource.MustParse("64Gi"),
					resourceGpuName:       resource.MustParse("1"),
				}},
			}},
		},
		Status: coreV1.PodStatus{Phase: coreV1.PodRunning},
	}
	cpuNode := &coreV1.Node{
		ObjectMeta: metaV1.ObjectMeta{Name: "cpu-node-1"},
		Status: coreV1.NodeStatus{Allocatable: coreV1.ResourceList{
			coreV1.ResourceCPU:    resource.MustParse("16"),
			coreV1.ResourceMemory: resource.MustParse("64Gi"),
		}},
	}
	k := newK8sExecutor(fake.NewSimpleClientset(node, cpuNode, pod), testNamespace, 0)

	caps, err := k.Capacity(context.Background())
	require.NoError(t, err)
	require.Len(t, caps, 2)

	assert.Equal(t, NodeCapacity{Name: "cpu-node-1", CpuFree: 16, MemFreeGb: 64}, caps[0])
	assert.Equal(t, NodeCapacity{
		Name:        "gpu-node-1",
		GpuModel:    "NVIDIA-A100-SXM4-80GB",
		GpuTotal:    4,
		GpuFree:     3,
		CpuFree:     24,
		MemFreeGb:   192,
		StorageFree: 1000,
	}, caps[1])
}
