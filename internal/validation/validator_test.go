package validation

import (
	"errors"
	"testing"
)

type sendRequest struct {
	Destination string  `json:"destination" validate:"required,hex=8"`
	Payload     []byte  `json:"payload" validate:"max=246"`
	Priority    string  `json:"priority" validate:"oneof=low normal high critical"`
	Retries     *int    `json:"retries" validate:"min=0,max=5"`
	Name        string  `validate:"min=3"`
	Timeout     float64 `json:"timeout" validate:"min=0"`
}

func intPtr(v int) *int { return &v }

func TestValidate(t *testing.T) {
	valid := sendRequest{
		Destination: "0102030405060708",
		Payload:     []byte("hi"),
		Priority:    "HIGH",
		Retries:     intPtr(3),
		Name:        "abc",
	}

	tests := []struct {
		name   string
		mutate func(*sendRequest)
		field  string
		rule   string
	}{
		{"valid", func(r *sendRequest) {}, "", ""},
		{"missing destination", func(r *sendRequest) { r.Destination = "" }, "destination", "required"},
		{"short destination", func(r *sendRequest) { r.Destination = "0102" }, "destination", "hex"},
		{"bad hex", func(r *sendRequest) { r.Destination = "zz02030405060708" }, "destination", "hex"},
		{"payload too big", func(r *sendRequest) { r.Payload = make([]byte, 247) }, "payload", "max"},
		{"unknown priority", func(r *sendRequest) { r.Priority = "urgent" }, "priority", "oneof"},
		{"retries too high", func(r *sendRequest) { r.Retries = intPtr(6) }, "retries", "max"},
		{"nil retries allowed", func(r *sendRequest) { r.Retries = nil }, "", ""},
		{"short name", func(r *sendRequest) { r.Name = "ab" }, "Name", "min"},
		{"negative timeout", func(r *sendRequest) { r.Timeout = -1 }, "timeout", "min"},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			err := v.Validate(&req)

			if tt.field == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("Validate error = %v, want FieldError", err)
			}
			if fe.Field != tt.field || fe.Rule != tt.rule {
				t.Errorf("FieldError = %s/%s, want %s/%s", fe.Field, fe.Rule, tt.field, tt.rule)
			}
		})
	}
}

func TestValidateNonStruct(t *testing.T) {
	if err := NewValidator().Validate(42); err == nil {
		t.Error("expected error for non-struct")
	}
}
