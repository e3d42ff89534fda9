package task

import (
	"fmt"

	"github.com/flybeeper/taskengine/internal/models"
	"github.com/flybeeper/taskengine/internal/oz"
)

// PointDefinition описание точки задания для хранения и передачи
type PointDefinition struct {
	Type         PointType        `json:"type" msgpack:"type"`
	Waypoint     models.Waypoint  `json:"waypoint" msgpack:"waypoint"`
	Zone         oz.Spec          `json:"zone" msgpack:"zone"`
	Target       *models.GeoPoint `json:"target,omitempty" msgpack:"target,omitempty"`
	TargetLocked bool             `json:"target_locked,omitempty" msgpack:"target_locked,omitempty"`
}

// TaskDefinition описание упорядоченного задания без состояния прохождения
type TaskDefinition struct {
	Name           string              `json:"name" msgpack:"name"`
	Factory        FactoryType         `json:"factory" msgpack:"factory"`
	Settings       OrderedTaskSettings `json:"settings" msgpack:"settings"`
	Points         []PointDefinition   `json:"points" msgpack:"points"`
	OptionalStarts []PointDefinition   `json:"optional_starts,omitempty" msgpack:"optional_starts,omitempty"`
}

func (d PointDefinition) build() (*OrderedTaskPoint, error) {
	p, err := NewPointWithZone(d.Type, d.Waypoint, d.Zone)
	if err != nil {
		return nil, err
	}
	p.SetTargetLocked(d.TargetLocked)
	return p, nil
}

// applyTarget восстанавливает цель после привязки точки к заданию
func (d PointDefinition) applyTarget(p *OrderedTaskPoint) {
	if d.Target != nil {
		p.SetTarget(*d.Target, true)
	}
}

// Build собирает задание по описанию
func Build(def TaskDefinition, b TaskBehaviour) (*OrderedTask, error) {
	t := NewOrderedTask(b)
	if _, ok := factoryCatalog[def.Factory]; !ok {
		return nil, fmt.Errorf("unknown factory type %d", def.Factory)
	}
	t.SetFactory(def.Factory)
	t.SetSettings(def.Settings)
	t.name = def.Name

	for i, pd := range def.Points {
		p, err := pd.build()
		if err != nil {
			return nil, fmt.Errorf("failed to build point %d: %w", i, err)
		}
		if !t.Append(p) {
			return nil, fmt.Errorf("point %d (%s) is not allowed at this position", i, pd.Type)
		}
		pd.applyTarget(p)
	}
	for i, pd := range def.OptionalStarts {
		p, err := pd.build()
		if err != nil {
			return nil, fmt.Errorf("failed to build optional start %d: %w", i, err)
		}
		if !t.AppendOptionalStart(p) {
			return nil, fmt.Errorf("optional start %d (%s) is not a start", i, pd.Type)
		}
	}
	return t, nil
}

func definitionOf(p *OrderedTaskPoint) PointDefinition {
	d := PointDefinition{
		Type:     p.Type(),
		Waypoint: p.Waypoint(),
		Zone:     p.Zone().Spec(),
	}
	if p.HasTarget() {
		target := p.Target()
		d.Target = &target
		d.TargetLocked = p.IsTargetLocked()
	}
	return d
}

// Definition описание задания
func (t *OrderedTask) Definition() TaskDefinition {
	def := TaskDefinition{
		Name:     t.name,
		Factory:  t.factory.Type(),
		Settings: t.ctx.settings,
		Points:   make([]PointDefinition, 0, len(t.points)),
	}
	for _, p := range t.points {
		def.Points = append(def.Points, definitionOf(p))
	}
	for _, p := range t.optionalStarts {
		def.OptionalStarts = append(def.OptionalStarts, definitionOf(p))
	}
	return def
}
