package task

// FactoryConstraints ограничения формы задания
type FactoryConstraints struct {
	TaskScored       bool `json:"task_scored"`
	FAIFinish        bool `json:"fai_finish"`
	Homogeneous      bool `json:"homogeneous"`
	IsClosed         bool `json:"is_closed"`
	StartRequiresArm bool `json:"start_requires_arm"`
	MinPoints        int  `json:"min_points"`
	MaxPoints        int  `json:"max_points"`
}

// IsFixedSize задание с фиксированным числом точек
func (c FactoryConstraints) IsFixedSize() bool { return c.MinPoints == c.MaxPoints }

type factoryPolicy struct {
	kind         FactoryType
	constraints  FactoryConstraints
	starts       []PointType
	intermediate []PointType
	finishes     []PointType
	// mutate ближайший допустимый тип для точки другого типа задания
	mutate func(PointType) PointType
	// validate дополнительные правила формы
	validate func(points []*OrderedTaskPoint) ValidationErrors
}

var (
	racingStarts = []PointType{StartCylinder, StartLine, StartSector, StartBGA}
	racingTurns  = []PointType{ASTCylinder, KeyholeSector, BGAFixedCourseSector,
		BGAEnhancedOptionSector, FAISector, SymmetricQuadrant}
	racingFinishes = []PointType{FinishCylinder, FinishLine, FinishSector}

	aatTurns = []PointType{AATCylinder, AATSegment, AATAnnularSector, AATKeyhole}
	matTurns = []PointType{MATCylinder}

	faiStarts    = []PointType{StartSector, StartLine}
	faiTurns     = []PointType{FAISector, ASTCylinder}
	faiFinishes  = []PointType{FinishSector, FinishLine}
	mixedTurns   = concatTypes(racingTurns, aatTurns, matTurns)
	touringTypes = [3][]PointType{{StartCylinder}, {ASTCylinder}, {FinishCylinder}}
)

func identity(t PointType) PointType { return t }

func mutateRacing(t PointType) PointType {
	switch t {
	case AATKeyhole:
		return KeyholeSector
	case AATSegment, AATAnnularSector:
		return FAISector
	case AATCylinder, MATCylinder:
		return ASTCylinder
	}
	return t
}

func mutateAAT(t PointType) PointType {
	switch t {
	case FAISector, SymmetricQuadrant:
		return AATSegment
	case KeyholeSector, BGAFixedCourseSector, BGAEnhancedOptionSector:
		return AATKeyhole
	case ASTCylinder, MATCylinder:
		return AATCylinder
	}
	return t
}

func mutateMAT(t PointType) PointType {
	if t.Kind().IsIntermediate() {
		return MATCylinder
	}
	return t
}

func mutateFAI(t PointType) PointType {
	switch t {
	case StartCylinder, StartBGA:
		return StartLine
	case KeyholeSector, BGAFixedCourseSector, BGAEnhancedOptionSector,
		SymmetricQuadrant, AATSegment, AATAnnularSector, AATKeyhole:
		return FAISector
	case AATCylinder, MATCylinder:
		return ASTCylinder
	case FinishCylinder:
		return FinishLine
	}
	return t
}

func mutateTouring(t PointType) PointType {
	switch t.Kind() {
	case KindStart:
		return StartCylinder
	case KindFinish:
		return FinishCylinder
	default:
		return ASTCylinder
	}
}

// validateFAIZones все точки имеют зоны, допустимые правилами FAI
func validateFAIZones(points []*OrderedTaskPoint) ValidationErrors {
	for _, p := range points {
		if !containsType(faiStarts, p.Type()) && !containsType(faiTurns, p.Type()) &&
			!containsType(faiFinishes, p.Type()) {
			return NonFAIOZs
		}
	}
	return 0
}

func validateMATZones(points []*OrderedTaskPoint) ValidationErrors {
	for _, p := range points {
		if p.Kind().IsIntermediate() && p.Type() != MATCylinder {
			return NonMATOZs
		}
	}
	return 0
}

func validateTriangle(points []*OrderedTaskPoint) ValidationErrors {
	errs := validateFAIZones(points)
	if !validateFAITriangle(points) {
		errs |= InvalidFAITriangleGeometry
	}
	return errs
}

func faiPolicy(kind FactoryType, closed bool, min, max int, validate func([]*OrderedTaskPoint) ValidationErrors) *factoryPolicy {
	return &factoryPolicy{
		kind: kind,
		constraints: FactoryConstraints{
			TaskScored: true, FAIFinish: true, Homogeneous: true, IsClosed: closed,
			MinPoints: min, MaxPoints: max,
		},
		starts:       faiStarts,
		intermediate: faiTurns,
		finishes:     faiFinishes,
		mutate:       mutateFAI,
		validate:     validate,
	}
}

var factoryCatalog = map[FactoryType]*factoryPolicy{
	FactoryRacing: {
		kind:         FactoryRacing,
		constraints:  FactoryConstraints{TaskScored: true, MinPoints: 2, MaxPoints: 13},
		starts:       racingStarts,
		intermediate: racingTurns,
		finishes:     racingFinishes,
		mutate:       mutateRacing,
	},
	FactoryAAT: {
		kind:         FactoryAAT,
		constraints:  FactoryConstraints{TaskScored: true, StartRequiresArm: true, MinPoints: 2, MaxPoints: 13},
		starts:       racingStarts,
		intermediate: aatTurns,
		finishes:     racingFinishes,
		mutate:       mutateAAT,
	},
	FactoryMAT: {
		kind:         FactoryMAT,
		constraints:  FactoryConstraints{TaskScored: true, StartRequiresArm: true, MinPoints: 2, MaxPoints: 13},
		starts:       racingStarts,
		intermediate: matTurns,
		finishes:     racingFinishes,
		mutate:       mutateMAT,
		validate:     validateMATZones,
	},
	FactoryFAIGeneral:  faiPolicy(FactoryFAIGeneral, false, 2, 10, validateFAIZones),
	FactoryFAITriangle: faiPolicy(FactoryFAITriangle, true, 4, 4, validateTriangle),
	FactoryFAIOR:       faiPolicy(FactoryFAIOR, true, 3, 3, validateFAIZones),
	FactoryFAIGoal:     faiPolicy(FactoryFAIGoal, false, 2, 2, validateFAIZones),
	FactoryMixed: {
		kind:         FactoryMixed,
		constraints:  FactoryConstraints{TaskScored: true, StartRequiresArm: true, MinPoints: 2, MaxPoints: 13},
		starts:       racingStarts,
		intermediate: mixedTurns,
		finishes:     racingFinishes,
		mutate:       identity,
	},
	FactoryTouring: {
		kind:         FactoryTouring,
		constraints:  FactoryConstraints{MinPoints: 2, MaxPoints: 10},
		starts:       touringTypes[0],
		intermediate: touringTypes[1],
		finishes:     touringTypes[2],
		mutate:       mutateTouring,
	},
}

// FactoryTypes все типы заданий каталога
func FactoryTypes() []FactoryType {
	return []FactoryType{FactoryRacing, FactoryAAT, FactoryMAT, FactoryFAIGeneral,
		FactoryFAITriangle, FactoryFAIOR, FactoryFAIGoal, FactoryMixed, FactoryTouring}
}

// ConstraintsFor ограничения типа задания
func ConstraintsFor(kind FactoryType) (FactoryConstraints, bool) {
	p, ok := factoryCatalog[kind]
	if !ok {
		return FactoryConstraints{}, false
	}
	return p.constraints, true
}

func containsType(list []PointType, t PointType) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}

func concatTypes(lists ...[]PointType) []PointType {
	var out []PointType
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
