package reap

import (
	"errors"
	"fmt"
	"testing"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"not found", stepError(KindNotFound, "resolve", "x", errPackageNotFound), ExitNotFound},
		{"bare not found sentinel", errPackageNotFound, ExitNotFound},
		{"gate rejected", stepError(KindGateRejected, StepVerify, "x", errors.New("score too low")), ExitGateRejected},
		{"missing signature", stepError(KindSignatureMissing, StepVerify, "x", errors.New("no sig")), ExitGateRejected},
		{"invalid signature", stepError(KindSignatureInvalid, StepVerify, "x", errors.New("bad sig")), ExitGateRejected},
		{"cancelled", stepError(KindCancelled, StepInstall, "x", errors.New("interrupted")), ExitCancelled},
		{"partial batch", fmt.Errorf("%w: 2 of 5 failed", errPartialBatch), ExitPartialBatch},
		{"build failure", stepError(KindBuildFailed, StepBuild, "x", errors.New("makepkg exit 4")), ExitFailure},
		{"plain error", errors.New("boom"), ExitFailure},
	}
	for _, tt := range tests {
		if got := ExitCodeFor(tt.err); got != tt.want {
			t.Errorf("%s: ExitCodeFor = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestErrKind(t *testing.T) {
	wrapped := fmt.Errorf("while resolving: %w", stepError(KindDepConflict, StepResolve, "x", errors.New("cycle")))
	if ErrKind(wrapped) != KindDepConflict {
		t.Errorf("ErrKind through wrap = %s", ErrKind(wrapped))
	}
	if ErrKind(errDatabaseLocked) != KindDatabaseLocked {
		t.Errorf("sentinel kind = %s", ErrKind(errDatabaseLocked))
	}
	if ErrKind(errors.New("anything")) != KindIO {
		t.Errorf("default kind = %s", ErrKind(errors.New("anything")))
	}
}

func TestReapErrorFormatting(t *testing.T) {
	inner := errors.New("exit status 1")
	e := stepError(KindBuildFailed, StepBuild, "yay", inner)
	if got := e.Error(); got != "yay: build failed: exit status 1" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(e, inner) {
		t.Error("Unwrap broken")
	}
	bare := stepError(KindIO, "config", "", inner)
	if got := bare.Error(); got != "config failed: exit status 1" {
		t.Errorf("Error() without pkg = %q", got)
	}
}
