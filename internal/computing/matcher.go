package computing

import (
	"sort"

	"github.com/robocompute/go-robocompute/internal/models"
	"github.com/shopspring/decimal"
)

// Covers reports whether spec meets every non-zero requirement.
func Covers(req models.ResourceRequirements, spec models.ResourceSpecifications) bool {
	if req.CpuCores > 0 && spec.CpuCores < req.CpuCores {
		return false
	}
	if req.GpuMemoryGb > 0 && spec.MemoryGb < req.GpuMemoryGb {
		return false
	}
	if req.RamGb > 0 && spec.RamGb < req.RamGb {
		return false
	}
	if req.StorageGb > 0 && spec.StorageGb < req.StorageGb {
		return false
	}
	return true
}

// Eligible is the single matching rule used for listing, accepting and search.
func Eligible(task *models.Task, res *models.Resource, prov *models.Provider, staked, minimum decimal.Decimal) bool {
	if res.Status != models.ResourceAvailable || res.ActiveTaskId != "" {
		return false
	}
	if prov == nil || prov.Status != models.ProviderOnline || res.ProviderId != prov.Id {
		return false
	}
	if staked.LessThan(minimum) {
		return false
	}
	if res.ResourceType != task.Type {
		return false
	}
	if !Covers(task.ResourceRequirements, res.Specifications) {
		return false
	}
	return !res.Pricing.PerHour.GreaterThan(task.MaxPricePerHour)
}

func (m *Market) stakedOf(providerId string) decimal.Decimal {
	if s, ok := m.stakes[providerId]; ok {
		return s.StakedAmount
	}
	return decimal.Zero
}

func (m *Market) resourcesOf(providerId string) []*models.Resource {
	var list []*models.Resource
	for _, r := range m.resources {
		if r.ProviderId == providerId {
			list = append(list, r)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].Id < list[j].Id
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

// bestResource returns the cheapest eligible resource of the provider.
func (m *Market) bestResource(task *models.Task, prov *models.Provider) *models.Resource {
	staked := m.stakedOf(prov.Id)
	var best *models.Resource
	for _, r := range m.resourcesOf(prov.Id) {
		if !Eligible(task, r, prov, staked, m.opts.MinimumStake) {
			continue
		}
		if best == nil || r.Pricing.PerHour.LessThan(best.Pricing.PerHour) {
			best = r
		}
	}
	return best
}

// anyEligible reports whether some resource in the market could take task now.
func (m *Market) anyEligible(task *models.Task) bool {
	for _, p := range m.providers {
		if m.bestResource(task, p) != nil {
			return true
		}
	}
	return false
}

func sortByPriority(tasks []*models.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.Id < b.Id
	})
}

// AvailableTasks lists pending tasks at least one of the provider's
// resources can serve, high priority first then oldest first.
func (m *Market) AvailableTasks(providerId string) (*models.AvailableTasks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prov, ok := m.providers[providerId]
	if !ok {
		return nil, models.ErrNotFound("provider", providerId)
	}
	out := &models.AvailableTasks{Tasks: []*models.Task{}}
	for _, t := range m.tasks {
		if t.Status != models.TaskPending {
			continue
		}
		if m.bestResource(t, prov) != nil {
			out.Tasks = append(out.Tasks, t)
		}
	}
	sortByPriority(out.Tasks)
	return out, nil
}

func (m *Market) SearchProviders(q models.ProviderSearch) *models.ProviderSearchResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := &models.ProviderSearchResult{Providers: []*models.ProviderMatch{}}
	for _, p := range m.providers {
		if p.Status != models.ProviderOnline {
			continue
		}
		if q.Location != "" && !containsFold(p.Location, q.Location) {
			continue
		}
		var matched []*models.Resource
		var minPrice decimal.Decimal
		for _, r := range m.resourcesOf(p.Id) {
			if r.Status != models.ResourceAvailable || r.ActiveTaskId != "" {
				continue
			}
			if q.GpuMemoryMin > 0 && r.Specifications.MemoryGb < q.GpuMemoryMin {
				continue
			}
			if q.CpuCoresMin > 0 && r.Specifications.CpuCores < q.CpuCoresMin {
				continue
			}
			if q.MaxPrice.IsPositive() && r.Pricing.PerHour.GreaterThan(q.MaxPrice) {
				continue
			}
			if len(matched) == 0 || r.Pricing.PerHour.LessThan(minPrice) {
				minPrice = r.Pricing.PerHour
			}
			matched = append(matched, r)
		}
		if len(matched) == 0 {
			continue
		}
		out.Providers = append(out.Providers, &models.ProviderMatch{
			ProviderId:  p.Id,
			Name:        p.Name,
			Location:    p.Location,
			SuccessRate: p.SuccessRate(),
			MinPrice:    minPrice,
			Resources:   matched,
		})
	}
	sort.Slice(out.Providers, func(i, j int) bool {
		a, b := out.Providers[i], out.Providers[j]
		if !a.MinPrice.Equal(b.MinPrice) {
			return a.MinPrice.LessThan(b.MinPrice)
		}
		if a.SuccessRate != b.SuccessRate {
			return a.SuccessRate > b.SuccessRate
		}
		return a.ProviderId < b.ProviderId
	})
	out.Total = len(out.Providers)
	return out
}
