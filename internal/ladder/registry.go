// Package ladder holds the static catalog of quality levels offered by the
// pipeline. The registry is immutable once built and safe for concurrent use.
package ladder

import (
	"fmt"

	"github.com/ayyanulhaq997-cmd/Flenix-sub001/pkg/models"
)

// audioBitrateKbps is folded into the advertised bandwidth of every level
const audioBitrateKbps = 128

// Registry is an ordered, read-only set of quality levels
type Registry struct {
	levels []models.QualityLevel
	index  map[string]int
}

// NewRegistry builds a registry from levels in their canonical order
func NewRegistry(levels []models.QualityLevel) (*Registry, error) {
	r := &Registry{
		levels: make([]models.QualityLevel, 0, len(levels)),
		index:  make(map[string]int, len(levels)),
	}

	for _, level := range levels {
		if level.ID == "" {
			return nil, fmt.Errorf("quality level has empty id")
		}
		if _, dup := r.index[level.ID]; dup {
			return nil, fmt.Errorf("duplicate quality level %q", level.ID)
		}
		if level.BandwidthBps <= 0 || level.Resolution.IsZero() {
			return nil, fmt.Errorf("quality level %q has invalid bandwidth or resolution", level.ID)
		}
		r.index[level.ID] = len(r.levels)
		r.levels = append(r.levels, level)
	}

	return r, nil
}

// Default returns the standard ladder
func Default() *Registry {
	r, err := NewRegistry([]models.QualityLevel{
		level(models.QualitySD360, "360p", 800, models.Resolution360p),
		level(models.QualitySD480, "480p", 1400, models.Resolution480p),
		level(models.QualityHD720, "720p", 2800, models.Resolution720p),
		level(models.QualityHD1080, "1080p", 5000, models.Resolution1080p),
		level(models.QualityUHD2160, "2160p", 15000, models.Resolution4K),
	})
	if err != nil {
		panic(err)
	}
	return r
}

func level(id, label string, bitrateKbps int, res models.Resolution) models.QualityLevel {
	return models.QualityLevel{
		ID:           id,
		Label:        label,
		BitrateKbps:  bitrateKbps,
		Resolution:   res,
		BandwidthBps: int64(bitrateKbps+audioBitrateKbps) * 1000,
	}
}

// Levels returns a copy of all levels in registry order
func (r *Registry) Levels() []models.QualityLevel {
	out := make([]models.QualityLevel, len(r.levels))
	copy(out, r.levels)
	return out
}

// IDs returns all level ids in registry order
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.levels))
	for i, l := range r.levels {
		ids[i] = l.ID
	}
	return ids
}

// Get looks up a level by id
func (r *Registry) Get(id string) (models.QualityLevel, bool) {
	i, ok := r.index[id]
	if !ok {
		return models.QualityLevel{}, false
	}
	return r.levels[i], true
}

// Position returns the registry order of id, or -1 when unknown
func (r *Registry) Position(id string) int {
	if i, ok := r.index[id]; ok {
		return i
	}
	return -1
}

// Resolve maps ids to levels in request order, failing on the first unknown
// id. Repeated ids are collapsed.
func (r *Registry) Resolve(ids []string) ([]models.QualityLevel, error) {
	out := make([]models.QualityLevel, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		l, ok := r.Get(id)
		if !ok {
			return nil, fmt.Errorf("unknown quality level %q", id)
		}
		seen[id] = true
		out = append(out, l)
	}
	return out, nil
}
