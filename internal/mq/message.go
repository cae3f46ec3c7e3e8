package mq

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Feedline/internal/domain"
)

// MessageType — тип сообщения (дискриминатор payload).
type MessageType string

// Типы сообщений.
const (
	MessageTypeValidation MessageType = "job.validation"
	MessageTypeConversion MessageType = "job.conversion"
	MessageTypeDelegation MessageType = "job.delegation"
	MessageTypeTaskResult MessageType = "task.result"
)

// ErrMalformedMessage — тело сообщения не удалось разобрать.
var ErrMalformedMessage = errors.New("malformed message")

// Message — конверт, в котором job путешествует по очередям.
//
// Сообщение неизменяемо: повторная отправка делается через Requeue,
// который возвращает новую копию с увеличенным счётчиком попыток.
type Message struct {
	// ID — идентификатор job (сохраняется между попытками).
	ID string `json:"id"`

	// Type — тип payload.
	Type MessageType `json:"type"`

	// Retry — счётчик попыток.
	Retry domain.Retry `json:"retry"`

	// Payload — полезная нагрузка, формат определяется Type.
	Payload json.RawMessage `json:"payload"`

	// Timestamp — время отправки этой копии.
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage создаёт сообщение для первой попытки.
func NewMessage(msgType MessageType, payload any, retry domain.Retry) (*Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	return &Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Retry:     retry,
		Payload:   body,
		Timestamp: time.Now(),
	}, nil
}

// Requeue возвращает копию сообщения для следующей попытки.
func (m *Message) Requeue() *Message {
	return &Message{
		ID:        m.ID,
		Type:      m.Type,
		Retry:     m.Retry.Increment(),
		Payload:   append(json.RawMessage(nil), m.Payload...),
		Timestamp: time.Now(),
	}
}

// Encode сериализует сообщение в JSON.
func Encode(msg *Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	return body, nil
}

// Decode разбирает тело сообщения.
func Decode(body []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	return &msg, nil
}

// ParsePayload парсит payload сообщения в указанный тип.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T
	if len(msg.Payload) == 0 {
		return result, fmt.Errorf("%w: empty payload", ErrMalformedMessage)
	}
	if err := json.Unmarshal(msg.Payload, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}
