package domain

import (
	"errors"
	"testing"
)

func TestLoginDecisionErr(t *testing.T) {
	if err := (LoginDecision{Allow: true}).Err(); err != nil {
		t.Fatalf("allowed login: Err = %v", err)
	}

	err := LoginDecision{Reason: "Game loading. Please reconnect."}.Err()
	if !errors.Is(err, ErrLoginDenied) {
		t.Fatalf("refused login: Err = %v, want ErrLoginDenied", err)
	}
	var engErr *EngineError
	if !errors.As(err, &engErr) || engErr.Message != "Game loading. Please reconnect." {
		t.Errorf("refusal lost its reason: %v", err)
	}
}
