package validator

import (
	"testing"

	"github.com/go-playground/validator/v10"
)

type loginPayload struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
	Strategy string `json:"strategy" validate:"omitempty,overflow_strategy"`
}

func TestValidateStructSuccess(t *testing.T) {
	payload := loginPayload{
		Username: "alice",
		Password: "hunter2hunter2",
		Strategy: "kick_oldest",
	}

	if err := ValidateStruct(payload); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateStructFailures(t *testing.T) {
	payload := loginPayload{
		Username: "",
		Password: "short",
		Strategy: "kick_random",
	}

	err := ValidateStruct(payload)
	if err == nil {
		t.Fatal("expected validation error")
	}

	vErrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}

	if len(vErrs) != 3 {
		t.Fatalf("expected 3 validation errors, got %d", len(vErrs))
	}

	foundStrategy := false
	for _, v := range vErrs {
		if v.Field == "strategy" {
			foundStrategy = true
		}
	}

	if !foundStrategy {
		t.Fatal("expected strategy field to be present in validation errors")
	}
}

func TestOverflowStrategyRule(t *testing.T) {
	type cfg struct {
		Strategy string `validate:"overflow_strategy"`
	}

	for _, valid := range []string{"deny", "kick_oldest", "kick_idle"} {
		if err := ValidateStruct(cfg{Strategy: valid}); err != nil {
			t.Fatalf("expected %q to validate, got %v", valid, err)
		}
	}

	if err := ValidateStruct(cfg{Strategy: "evict"}); err == nil {
		t.Fatal("expected unknown strategy to fail validation")
	}
}

func TestRegisterValidation(t *testing.T) {
	err := RegisterValidation("filehub", func(fl validator.FieldLevel) bool {
		return fl.Field().String() == "filehub"
	})
	if err != nil {
		t.Fatalf("register validation: %v", err)
	}

	type custom struct {
		Value string `validate:"filehub"`
	}

	if err := ValidateStruct(custom{Value: "filehub"}); err != nil {
		t.Fatalf("expected validation to pass, got %v", err)
	}
	if err := ValidateStruct(custom{Value: "other"}); err == nil {
		t.Fatal("expected validation to fail for non-matching value")
	}
}
