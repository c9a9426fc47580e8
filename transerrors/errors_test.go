package transerrors

import (
	"fmt"
	"testing"
)

func TestErrorParts(t *testing.T) {
	err := fmt.Errorf("close unit 0x1000: %w", ErrAIncompletePlacement)
	if got := GetErrorName(err); got != "IncompletePlacement" {
		t.Errorf("GetErrorName = %q", got)
	}
	if got := GetErrorCode(err); got != "A1" {
		t.Errorf("GetErrorCode = %q", got)
	}
	if got := GetErrorDesc(err); got != "Unit closed while a local placement was never produced." {
		t.Errorf("GetErrorDesc = %q", got)
	}
	if got := GetErrorName(fmt.Errorf("plain")); got != "" {
		t.Errorf("unregistered error named %q", got)
	}
}
