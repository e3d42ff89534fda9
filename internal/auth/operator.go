package auth

import (
	"encoding/json"
	"slices"
)

// Роли операторов
const (
	RoleViewer = "viewer"
	RolePilot  = "pilot"
	RoleAdmin  = "admin"
)

// Operator пользователь, от имени которого подаются команды вычислителю
type Operator struct {
	ID      int      `json:"id"`
	Name    string   `json:"name"`
	Role    string   `json:"role"`
	Devices []string `json:"devices,omitempty"`
}

func (o *Operator) toJSON() ([]byte, error) {
	return json.Marshal(o)
}

func operatorFromJSON(data []byte) (*Operator, error) {
	var o Operator
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// IsAdmin проверяет роль администратора
func (o *Operator) IsAdmin() bool {
	return o.Role == RoleAdmin
}

// CanCommand разрешены ли изменяющие команды
func (o *Operator) CanCommand() bool {
	return o.Role == RolePilot || o.Role == RoleAdmin
}

// OwnsDevice привязано ли устройство к оператору. Пустой список и
// администратор допускают любое устройство.
func (o *Operator) OwnsDevice(device string) bool {
	if o.IsAdmin() || len(o.Devices) == 0 {
		return true
	}
	return slices.Contains(o.Devices, device)
}
