package computing

import (
	"testing"

	"github.com/robocompute/go-robocompute/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestEligible(t *testing.T) {
	prov := &models.Provider{Id: "prov_1", Status: models.ProviderOnline}
	task := &models.Task{
		Type:                 models.TaskTypeGPU,
		ResourceRequirements: models.ResourceRequirements{GpuMemoryGb: 16, RamGb: 32},
		MaxPricePerHour:      dec("3"),
	}
	res := func() *models.Resource {
		return &models.Resource{
			ProviderId:     "prov_1",
			ResourceType:   models.TaskTypeGPU,
			Status:         models.ResourceAvailable,
			Specifications: models.ResourceSpecifications{MemoryGb: 24, RamGb: 64},
			Pricing:        models.ResourcePricing{PerHour: dec("2.5")},
		}
	}
	stake, minimum := dec("100"), dec("100")

	assert.True(t, Eligible(task, res(), prov, stake, minimum))

	r := res()
	r.ActiveTaskId = "task_x"
	assert.False(t, Eligible(task, r, prov, stake, minimum))

	r = res()
	r.Status = models.ResourceOffline
	assert.False(t, Eligible(task, r, prov, stake, minimum))

	r = res()
	r.ResourceType = models.TaskTypeCPU
	assert.False(t, Eligible(task, r, prov, stake, minimum))

	r = res()
	r.Specifications.RamGb = 16
	assert.False(t, Eligible(task, r, prov, stake, minimum))

	r = res()
	r.Pricing.PerHour = dec("3.01")
	assert.False(t, Eligible(task, r, prov, stake, minimum))

	assert.False(t, Eligible(task, res(), prov, dec("99.99"), minimum))
	assert.False(t, Eligible(task, res(), &models.Provider{Id: "prov_1", Status: models.ProviderOffline}, stake, minimum))
	assert.False(t, Eligible(task, res(), &models.Provider{Id: "prov_2", Status: models.ProviderOnline}, stake, minimum))
}

func TestCoversIgnoresZeroRequirements(t *testing.T) {
	assert.True(t, Covers(models.ResourceRequirements{}, models.ResourceSpecifications{}))
	assert.True(t, Covers(models.ResourceRequirements{CpuCores: 4}, models.ResourceSpecifications{CpuCores: 4}))
	assert.False(t, Covers(models.ResourceRequirements{StorageGb: 10}, models.ResourceSpecifications{StorageGb: 5}))
}
