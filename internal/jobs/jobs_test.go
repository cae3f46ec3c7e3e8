package jobs

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shaiso/Feedline/internal/domain"
	"github.com/shaiso/Feedline/internal/mq"
)

func TestRuleJob_Validate(t *testing.T) {
	valid := RuleJob{EntryID: uuid.New(), TaskID: uuid.New(), TaskName: "gtfs.canonical"}
	if err := valid.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	invalid := RuleJob{EntryID: uuid.New(), TaskName: "gtfs.canonical"}
	if err := invalid.Validate(); !errors.Is(err, ErrInvalidJob) {
		t.Errorf("expected ErrInvalidJob, got %v", err)
	}
}

func TestMessageTypeFor(t *testing.T) {
	if mt, _ := MessageTypeFor(domain.CategoryValidation); mt != mq.MessageTypeValidation {
		t.Errorf("unexpected type %s", mt)
	}
	if mt, _ := MessageTypeFor(domain.CategoryConversion); mt != mq.MessageTypeConversion {
		t.Errorf("unexpected type %s", mt)
	}
	if _, err := MessageTypeFor("packaging"); !errors.Is(err, ErrInvalidJob) {
		t.Errorf("expected ErrInvalidJob, got %v", err)
	}
}

func TestEnvelope_WrapUnwrap(t *testing.T) {
	env, err := Wrap("netex.entur", &NetexValidation{Codespace: "FIN", MaximumErrors: 100})
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if env.Type != "netex.entur" {
		t.Errorf("unexpected discriminator %q", env.Type)
	}

	cfg, err := Unwrap(env, "netex.entur", func() Configuration { return &NetexValidation{} })
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	netex, ok := cfg.(*NetexValidation)
	if !ok {
		t.Fatalf("expected *NetexValidation, got %T", cfg)
	}
	if netex.Codespace != "FIN" || netex.MaximumErrors != 100 {
		t.Errorf("unexpected configuration %+v", netex)
	}
}

func TestEnvelope_Errors(t *testing.T) {
	factory := func() Configuration { return &NetexValidation{} }

	tests := []struct {
		name string
		env  *Envelope
		rule string
	}{
		{"wrong rule", &Envelope{Type: "gtfs2netex", Body: []byte(`{"codespace":"FIN"}`)}, "netex.entur"},
		{"bad json", &Envelope{Type: "netex.entur", Body: []byte(`{`)}, "netex.entur"},
		{"fails validation", &Envelope{Type: "netex.entur", Body: []byte(`{}`)}, "netex.entur"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Unwrap(tt.env, tt.rule, factory); !errors.Is(err, ErrInvalidConfiguration) {
				t.Errorf("expected ErrInvalidConfiguration, got %v", err)
			}
		})
	}
}

func TestEnvelope_Empty(t *testing.T) {
	cfg, err := Unwrap(nil, "gtfs.canonical", nil)
	if err != nil || cfg != nil {
		t.Errorf("expected no configuration, got %v %v", cfg, err)
	}

	if _, err := Wrap("netex.entur", &NetexValidation{}); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("wrap should validate, got %v", err)
	}
}

func TestEnvelope_RuleWithoutConfiguration(t *testing.T) {
	env := &Envelope{Type: "gtfs.canonical", Body: []byte(`{"x":1}`)}
	if _, err := Unwrap(env, "gtfs.canonical", nil); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration, got %v", err)
	}
}
