package delivery

import (
	"fmt"
	"sort"

	"github.com/ayyanulhaq997-cmd/Flenix-sub001/pkg/models"
)

// AccessPolicy maps plan tiers to the qualities they may stream. A plan is
// limited by a bitrate ceiling and, optionally, by an explicit set of ids.
type AccessPolicy struct {
	ceilings map[models.PlanTier]int
	allowed  map[models.PlanTier]map[string]bool
}

// NewAccessPolicy builds a policy from plan ceilings in kbps
func NewAccessPolicy(ceilings map[string]int) (*AccessPolicy, error) {
	if len(ceilings) == 0 {
		return nil, fmt.Errorf("access policy needs at least one plan")
	}

	p := &AccessPolicy{
		ceilings: make(map[models.PlanTier]int, len(ceilings)),
		allowed:  make(map[models.PlanTier]map[string]bool),
	}
	for name, kbps := range ceilings {
		plan := models.ParsePlanTier(name)
		if plan == "" {
			return nil, fmt.Errorf("access policy has an empty plan name")
		}
		if kbps <= 0 {
			return nil, fmt.Errorf("plan %s: ceiling must be positive, got %d", plan, kbps)
		}
		p.ceilings[plan] = kbps
	}
	return p, nil
}

// DefaultAccessPolicy returns the stock free/standard/premium ceilings
func DefaultAccessPolicy() *AccessPolicy {
	p, _ := NewAccessPolicy(map[string]int{
		string(models.PlanFree):     1400,
		string(models.PlanStandard): 2800,
		string(models.PlanPremium):  15000,
	})
	return p
}

// Restrict narrows plan to an explicit set of quality ids on top of its ceiling
func (p *AccessPolicy) Restrict(plan models.PlanTier, qualityIDs ...string) error {
	if _, ok := p.ceilings[plan]; !ok {
		return fmt.Errorf("%w: %s", models.ErrUnknownPlan, plan)
	}
	set := make(map[string]bool, len(qualityIDs))
	for _, id := range qualityIDs {
		set[id] = true
	}
	p.allowed[plan] = set
	return nil
}

// Ceiling returns the maximum bitrate in kbps for plan
func (p *AccessPolicy) Ceiling(plan models.PlanTier) (int, error) {
	kbps, ok := p.ceilings[plan]
	if !ok {
		return 0, fmt.Errorf("%w: %s", models.ErrUnknownPlan, plan)
	}
	return kbps, nil
}

// Permits reports whether plan may stream q
func (p *AccessPolicy) Permits(plan models.PlanTier, q models.QualityLevel) (bool, error) {
	ceiling, err := p.Ceiling(plan)
	if err != nil {
		return false, err
	}
	if q.BitrateKbps > ceiling {
		return false, nil
	}
	if set, ok := p.allowed[plan]; ok && !set[q.ID] {
		return false, nil
	}
	return true, nil
}

// Plans lists the configured plan tiers in ascending ceiling order
func (p *AccessPolicy) Plans() []models.PlanTier {
	plans := make([]models.PlanTier, 0, len(p.ceilings))
	for plan := range p.ceilings {
		plans = append(plans, plan)
	}
	sort.Slice(plans, func(i, j int) bool {
		ci, cj := p.ceilings[plans[i]], p.ceilings[plans[j]]
		if ci != cj {
			return ci < cj
		}
		return plans[i] < plans[j]
	})
	return plans
}
