// Package task реализует ядро навигационного задания: точки задания и их
// переходы, фабрики правил, упорядоченное задание, задания goto и abort,
// а также менеджер, выбирающий активное задание.
package task

import (
	"fmt"
	"strings"

	"github.com/flybeeper/taskengine/internal/oz"
)

// ActiveState положение точки относительно активной
type ActiveState uint8

const (
	NotActive ActiveState = iota
	BeforeActive
	CurrentActive
	AfterActive
)

func (s ActiveState) String() string {
	switch s {
	case BeforeActive:
		return "before_active"
	case CurrentActive:
		return "current_active"
	case AfterActive:
		return "after_active"
	default:
		return "not_active"
	}
}

// PointKind вариант точки задания
type PointKind uint8

const (
	KindStart PointKind = iota
	KindAST
	KindAAT
	KindFinish
)

var kindNames = map[PointKind]string{
	KindStart:  "start",
	KindAST:    "ast",
	KindAAT:    "aat",
	KindFinish: "finish",
}

func (k PointKind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// IsIntermediate промежуточная точка
func (k PointKind) IsIntermediate() bool {
	return k == KindAST || k == KindAAT
}

// PointType тип точки с конкретной зоной, которым оперируют фабрики
type PointType uint8

const (
	StartSector PointType = iota
	StartLine
	StartCylinder
	StartBGA
	FAISector
	KeyholeSector
	BGAFixedCourseSector
	BGAEnhancedOptionSector
	SymmetricQuadrant
	ASTCylinder
	AATCylinder
	AATSegment
	AATAnnularSector
	AATKeyhole
	MATCylinder
	FinishSector
	FinishLine
	FinishCylinder
)

type pointTypeInfo struct {
	name  string
	kind  PointKind
	shape oz.Shape
}

var pointTypes = map[PointType]pointTypeInfo{
	StartSector:             {"start_sector", KindStart, oz.ShapeFAISector},
	StartLine:               {"start_line", KindStart, oz.ShapeLine},
	StartCylinder:           {"start_cylinder", KindStart, oz.ShapeCylinder},
	StartBGA:                {"start_bga", KindStart, oz.ShapeBGAStart},
	FAISector:               {"fai_sector", KindAST, oz.ShapeFAISector},
	KeyholeSector:           {"keyhole_sector", KindAST, oz.ShapeKeyhole},
	BGAFixedCourseSector:    {"bga_fixed_course_sector", KindAST, oz.ShapeBGAFixedCourse},
	BGAEnhancedOptionSector: {"bga_enhanced_option_sector", KindAST, oz.ShapeBGAEnhancedOption},
	SymmetricQuadrant:       {"symmetric_quadrant", KindAST, oz.ShapeSymmetricQuadrant},
	ASTCylinder:             {"ast_cylinder", KindAST, oz.ShapeCylinder},
	AATCylinder:             {"aat_cylinder", KindAAT, oz.ShapeCylinder},
	AATSegment:              {"aat_segment", KindAAT, oz.ShapeSector},
	AATAnnularSector:        {"aat_annular_sector", KindAAT, oz.ShapeAnnularSector},
	AATKeyhole:              {"aat_keyhole", KindAAT, oz.ShapeKeyhole},
	MATCylinder:             {"mat_cylinder", KindAAT, oz.ShapeMATCylinder},
	FinishSector:            {"finish_sector", KindFinish, oz.ShapeFAISector},
	FinishLine:              {"finish_line", KindFinish, oz.ShapeLine},
	FinishCylinder:          {"finish_cylinder", KindFinish, oz.ShapeCylinder},
}

func (t PointType) String() string {
	if i, ok := pointTypes[t]; ok {
		return i.name
	}
	return fmt.Sprintf("point_type(%d)", uint8(t))
}

// Kind вариант точки для типа
func (t PointType) Kind() PointKind { return pointTypes[t].kind }

// Shape форма зоны по умолчанию для типа
func (t PointType) Shape() oz.Shape { return pointTypes[t].shape }

// ParsePointType разбирает имя типа точки
func ParsePointType(name string) (PointType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for t, i := range pointTypes {
		if i.name == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown point type: %q", name)
}

// MarshalText для JSON представления
func (t PointType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText разбирает тип из JSON
func (t *PointType) UnmarshalText(b []byte) error {
	v, err := ParsePointType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// FactoryType тип соревновательного задания
type FactoryType uint8

const (
	FactoryRacing FactoryType = iota
	FactoryAAT
	FactoryMAT
	FactoryFAIGeneral
	FactoryFAITriangle
	FactoryFAIOR
	FactoryFAIGoal
	FactoryMixed
	FactoryTouring
)

var factoryNames = map[FactoryType]string{
	FactoryRacing:      "racing",
	FactoryAAT:         "aat",
	FactoryMAT:         "mat",
	FactoryFAIGeneral:  "fai_general",
	FactoryFAITriangle: "fai_triangle",
	FactoryFAIOR:       "fai_or",
	FactoryFAIGoal:     "fai_goal",
	FactoryMixed:       "mixed",
	FactoryTouring:     "touring",
}

func (f FactoryType) String() string {
	if n, ok := factoryNames[f]; ok {
		return n
	}
	return fmt.Sprintf("factory(%d)", uint8(f))
}

// ParseFactoryType разбирает имя типа задания
func ParseFactoryType(name string) (FactoryType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for f, n := range factoryNames {
		if n == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown task type: %q", name)
}

func (f FactoryType) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *FactoryType) UnmarshalText(b []byte) error {
	v, err := ParseFactoryType(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// ValidationErrors набор ошибок проверки задания
type ValidationErrors uint16

const (
	NoValidStart ValidationErrors = 1 << iota
	NoValidFinish
	TaskNotClosed
	TaskNotHomogeneous
	IncorrectNumberTurnpoints
	ExceedsMaxTurnpoints
	UnderMinTurnpoints
	TurnpointsNotUnique
	InvalidFAITriangleGeometry
	EmptyTask
	NonFAIOZs
	NonMATOZs
)

var validationNames = []struct {
	err  ValidationErrors
	name string
}{
	{NoValidStart, "no_valid_start"},
	{NoValidFinish, "no_valid_finish"},
	{TaskNotClosed, "task_not_closed"},
	{TaskNotHomogeneous, "task_not_homogeneous"},
	{IncorrectNumberTurnpoints, "incorrect_number_turnpoints"},
	{ExceedsMaxTurnpoints, "exceeds_max_turnpoints"},
	{UnderMinTurnpoints, "under_min_turnpoints"},
	{TurnpointsNotUnique, "turnpoints_not_unique"},
	{InvalidFAITriangleGeometry, "invalid_fai_triangle_geometry"},
	{EmptyTask, "empty_task"},
	{NonFAIOZs, "non_fai_ozs"},
	{NonMATOZs, "non_mat_ozs"},
}

// warnings не делают задание недействительным
const warnings = TurnpointsNotUnique

// Has содержит ли набор ошибку
func (v ValidationErrors) Has(e ValidationErrors) bool { return v&e != 0 }

// IsError есть ли в наборе ошибки кроме предупреждений
func (v ValidationErrors) IsError() bool { return v&^warnings != 0 }

// Names имена ошибок в порядке объявления
func (v ValidationErrors) Names() []string {
	names := make([]string, 0, 4)
	for _, n := range validationNames {
		if v.Has(n.err) {
			names = append(names, n.name)
		}
	}
	return names
}

func (v ValidationErrors) String() string {
	if v == 0 {
		return "ok"
	}
	return strings.Join(v.Names(), ",")
}

// TaskType вид задания для менеджера
type TaskType uint8

const (
	TypeOrdered TaskType = iota
	TypeGoto
	TypeAbort
)

func (t TaskType) String() string {
	switch t {
	case TypeGoto:
		return "goto"
	case TypeAbort:
		return "abort"
	default:
		return "ordered"
	}
}

// Mode режим менеджера заданий
type Mode uint8

const (
	ModeNull Mode = iota
	ModeOrdered
	ModeGoto
	ModeAbort
)

var modeNames = map[Mode]string{
	ModeNull:    "none",
	ModeOrdered: "ordered",
	ModeGoto:    "goto",
	ModeAbort:   "abort",
}

func (m Mode) String() string { return modeNames[m] }

// ParseMode разбирает имя режима
func ParseMode(name string) (Mode, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for m, n := range modeNames {
		if n == name {
			return m, nil
		}
	}
	return ModeNull, fmt.Errorf("unknown mode: %q", name)
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
