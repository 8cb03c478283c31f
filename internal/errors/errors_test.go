package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err: &AppError{
				Code:    ErrCodeNotFound,
				Message: "job not found",
			},
			want: "job not found",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeStep,
				Message: "submit failed",
				Cause:   errors.New("element detached"),
			},
			want: "submit failed: element detached",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(cause, ErrCodeResource, "launch browser")

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(%v, cause) = false, want true", err)
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		code ErrorCode
		msg  string
	}{
		{"not found", NotFoundf("job %s not found", "abc"), ErrCodeNotFound, "job abc not found"},
		{"validation", Validationf("amount must be positive"), ErrCodeValidation, "amount must be positive"},
		{"authentication", Authenticationf("credentials rejected: %s", "bad password"), ErrCodeAuthentication, "credentials rejected: bad password"},
		{"step", Stepf("step %q timed out", "submit"), ErrCodeStep, `step "submit" timed out`},
		{"ambiguity", Ambiguityf("no exact unique match for %q", "pruebita"), ErrCodeAmbiguity, `no exact unique match for "pruebita"`},
		{"reconciliation", Reconciliationf("outcome unknown"), ErrCodeReconciliation, "outcome unknown"},
		{"internal", Internalf("boom"), ErrCodeInternal, "boom"},
		{"percent without args", Validation("100% required"), ErrCodeValidation, "100% required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %v, want %v", tt.err.Code, tt.code)
			}
			if tt.err.Message != tt.msg {
				t.Errorf("Message = %q, want %q", tt.err.Message, tt.msg)
			}
		})
	}
}

func TestValidationField(t *testing.T) {
	err := ValidationField("amount", "amount is required")
	if !IsValidation(err) {
		t.Fatalf("IsValidation() = false, want true")
	}
	if got := GetField(err); got != "amount" {
		t.Errorf("GetField() = %q, want %q", got, "amount")
	}
}

func TestWrap_Nil(t *testing.T) {
	if err := Wrap(nil, ErrCodeInternal, "x"); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
	if err := Wrapf(nil, ErrCodeInternal, "x %d", 1); err != nil {
		t.Errorf("Wrapf(nil) = %v, want nil", err)
	}
}

func TestPredicates_ThroughWrapping(t *testing.T) {
	base := Authenticationf("invalid credentials")
	wrapped := fmt.Errorf("authenticate: %w", base)

	if !IsAuthentication(wrapped) {
		t.Error("IsAuthentication(wrapped) = false, want true")
	}
	if IsAmbiguity(wrapped) {
		t.Error("IsAmbiguity(wrapped) = true, want false")
	}
	if got := GetCode(wrapped); got != ErrCodeAuthentication {
		t.Errorf("GetCode() = %v, want %v", got, ErrCodeAuthentication)
	}
	if got := GetCode(errors.New("plain")); got != "" {
		t.Errorf("GetCode(plain) = %v, want empty", got)
	}
	if GetField(errors.New("plain")) != "" {
		t.Error("GetField(plain) should be empty")
	}
}

func TestGetCode_OutermostWins(t *testing.T) {
	inner := Ambiguityf("multiple exact matches")
	outer := Wrap(inner, ErrCodeStep, "locate-target-row")

	if got := GetCode(outer); got != ErrCodeStep {
		t.Errorf("GetCode(outer) = %v, want %v", got, ErrCodeStep)
	}
	if !IsAmbiguity(outer) {
		t.Error("IsAmbiguity(outer) should find the inner code")
	}
}
