package task

import (
	"fmt"
	"strings"

	"github.com/flybeeper/taskengine/internal/models"
)

// AdvanceMode режим перехода к следующей точке
type AdvanceMode uint8

const (
	AdvanceManual AdvanceMode = iota
	AdvanceAuto
)

func (m AdvanceMode) String() string {
	if m == AdvanceManual {
		return "manual"
	}
	return "auto"
}

// ParseAdvanceMode разбирает режим перехода
func ParseAdvanceMode(s string) (AdvanceMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto", "":
		return AdvanceAuto, nil
	case "manual":
		return AdvanceManual, nil
	}
	return AdvanceAuto, fmt.Errorf("unknown advance mode: %q", s)
}

func (m AdvanceMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *AdvanceMode) UnmarshalText(b []byte) error {
	v, err := ParseAdvanceMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// AdvanceState состояние перехода для отображения
type AdvanceState uint8

const (
	AdvanceStateManual AdvanceState = iota
	AdvanceStateAuto
	AdvanceStateStartArmed
	AdvanceStateStartDisarmed
	AdvanceStateTurnArmed
	AdvanceStateTurnDisarmed
)

func (s AdvanceState) String() string {
	switch s {
	case AdvanceStateAuto:
		return "auto"
	case AdvanceStateStartArmed:
		return "start_armed"
	case AdvanceStateStartDisarmed:
		return "start_disarmed"
	case AdvanceStateTurnArmed:
		return "turn_armed"
	case AdvanceStateTurnDisarmed:
		return "turn_disarmed"
	default:
		return "manual"
	}
}

func (s AdvanceState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *AdvanceState) UnmarshalText(b []byte) error {
	name := string(b)
	for st := AdvanceStateManual; st <= AdvanceStateTurnDisarmed; st++ {
		if st.String() == name {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown advance state: %q", name)
}

// TaskAdvance решает, когда активная точка переходит к следующей.
// Старт с обязательным взведением и точки AAT переходят только после
// взведения; пока его нет, выставляется запрос.
type TaskAdvance struct {
	mode         AdvanceMode
	armed        bool
	requestArmed bool
}

// NewTaskAdvance создает логику перехода с режимом mode
func NewTaskAdvance(mode AdvanceMode) *TaskAdvance {
	return &TaskAdvance{mode: mode}
}

func (a *TaskAdvance) Mode() AdvanceMode { return a.mode }

func (a *TaskAdvance) SetMode(m AdvanceMode) { a.mode = m }

func (a *TaskAdvance) IsArmed() bool { return a.armed }

// NeedToArm запрошено ли взведение
func (a *TaskAdvance) NeedToArm() bool { return a.requestArmed }

// SetArmed взводит или снимает взведение
func (a *TaskAdvance) SetArmed(armed bool) {
	a.armed = armed
	if armed {
		a.requestArmed = false
	}
}

// ToggleArmed переключает взведение и возвращает новое значение
func (a *TaskAdvance) ToggleArmed() bool {
	a.SetArmed(!a.armed)
	return a.armed
}

// Reset снимает взведение и запрос
func (a *TaskAdvance) Reset() {
	a.armed = false
	a.requestArmed = false
}

func stateReady(p *OrderedTaskPoint, entered, exited bool) bool {
	switch p.Kind() {
	case KindStart:
		if p.context().settings.Start.ScoreExit {
			return exited
		}
		return entered || p.HasEntered()
	case KindAST, KindAAT:
		return entered || p.HasEntered()
	default:
		return false
	}
}

// CheckReadyToAdvance готова ли точка p к переходу на следующую.
// entered и exited сообщают о переходах, зафиксированных на этом тике.
func (a *TaskAdvance) CheckReadyToAdvance(p *OrderedTaskPoint, s models.AircraftState, entered, exited bool) bool {
	if a.mode == AdvanceManual || p == nil {
		return false
	}
	ready := stateReady(p, entered, exited)

	switch p.Kind() {
	case KindStart:
		if !p.context().settings.Start.RequireArm {
			return ready
		}
		if a.armed {
			a.requestArmed = false
			return ready
		}
		if p.IsInSector(s) {
			a.requestArmed = true
		}
		return false
	case KindAAT:
		if a.armed {
			a.requestArmed = false
			return ready
		}
		if ready {
			a.requestArmed = true
		}
		return false
	case KindAST:
		return ready
	default:
		return false
	}
}

// State состояние для отображения относительно активной точки p
func (a *TaskAdvance) State(p *OrderedTaskPoint) AdvanceState {
	if a.mode == AdvanceManual {
		return AdvanceStateManual
	}
	if p == nil {
		return AdvanceStateAuto
	}
	switch p.Kind() {
	case KindStart:
		if !p.context().settings.Start.RequireArm {
			return AdvanceStateAuto
		}
		if a.armed {
			return AdvanceStateStartArmed
		}
		return AdvanceStateStartDisarmed
	case KindAAT:
		if a.armed {
			return AdvanceStateTurnArmed
		}
		return AdvanceStateTurnDisarmed
	default:
		return AdvanceStateAuto
	}
}
