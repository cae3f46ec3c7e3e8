package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidConfiguration — конфигурация правила не прошла разбор или проверку.
var ErrInvalidConfiguration = errors.New("invalid rule configuration")

// Configuration — конфигурация конкретного правила.
//
// Конкретный тип определяется по имени правила при разборе сообщения
// (см. Envelope и rules.Registry.DecodeConfiguration).
type Configuration interface {
	Validate() error
}

// Envelope — сериализованная конфигурация с дискриминатором.
type Envelope struct {
	// Type — имя правила, которому принадлежит конфигурация.
	Type string `json:"type"`

	// Body — конфигурация в JSON.
	Body json.RawMessage `json:"body"`
}

// Wrap упаковывает конфигурацию в Envelope.
func Wrap(ruleName string, cfg Configuration) (*Envelope, error) {
	if cfg == nil {
		return nil, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfiguration, ruleName, err)
	}
	body, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal configuration: %w", err)
	}
	return &Envelope{Type: ruleName, Body: body}, nil
}

// Unwrap разбирает Envelope в конфигурацию, созданную factory.
// Пустой Envelope — конфигурации нет.
func Unwrap(env *Envelope, ruleName string, factory func() Configuration) (Configuration, error) {
	if env == nil || len(env.Body) == 0 {
		return nil, nil
	}
	if env.Type != ruleName {
		return nil, fmt.Errorf("%w: configuration for %q sent to rule %q", ErrInvalidConfiguration, env.Type, ruleName)
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: rule %q takes no configuration", ErrInvalidConfiguration, ruleName)
	}

	cfg := factory()
	if err := json.Unmarshal(env.Body, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfiguration, ruleName, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfiguration, ruleName, err)
	}
	return cfg, nil
}

// NetexValidation — конфигурация валидации NeTEx.
type NetexValidation struct {
	// Codespace — codespace, в котором ожидаются идентификаторы.
	Codespace string `json:"codespace"`

	// MaximumErrors — после скольких ошибок валидатор прекращает работу.
	MaximumErrors int `json:"maximum_errors,omitempty"`

	// IgnorableElements — элементы, которые пропускаются при проверке.
	IgnorableElements []string `json:"ignorable_elements,omitempty"`
}

// Validate проверяет конфигурацию.
func (c *NetexValidation) Validate() error {
	if c.Codespace == "" {
		return errors.New("codespace is required")
	}
	if c.MaximumErrors < 0 {
		return errors.New("maximum_errors must not be negative")
	}
	return nil
}

// GTFSToNetex — конфигурация конвертации GTFS → NeTEx.
type GTFSToNetex struct {
	Codespace        string `json:"codespace"`
	StopsAndQuaysURL string `json:"stops_and_quays_url,omitempty"`
}

// Validate проверяет конфигурацию.
func (c *GTFSToNetex) Validate() error {
	if c.Codespace == "" {
		return errors.New("codespace is required")
	}
	return nil
}

// NetexToGTFS — конфигурация конвертации NeTEx → GTFS.
type NetexToGTFS struct {
	Codespace        string `json:"codespace,omitempty"`
	StopsAndQuaysURL string `json:"stops_and_quays_url"`
}

// Validate проверяет конфигурацию.
func (c *NetexToGTFS) Validate() error {
	if c.StopsAndQuaysURL == "" {
		return errors.New("stops_and_quays_url is required")
	}
	return nil
}

// Generic — произвольная конфигурация для правил без собственной схемы.
type Generic map[string]any

// Validate — у Generic нет обязательных полей.
func (c *Generic) Validate() error {
	return nil
}
