package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"plain", cause, ""},
		{"direct", New(KindValidation, "Message content is missing"), KindValidation},
		{"wrapped", Wrap(KindProvider, cause, "embed"), KindProvider},
		{"fmt wrapped", fmt.Errorf("chat: %w", Wrap(KindRetrieval, cause, "search")), KindRetrieval},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := KindOf(tc.err); got != tc.want {
				t.Errorf("KindOf() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestWrap_NilPassthrough(t *testing.T) {
	t.Parallel()
	if err := Wrap(KindStorage, nil, "insert"); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestError_MessageIncludesCause(t *testing.T) {
	t.Parallel()

	err := Wrap(KindProvider, errors.New("401 Unauthorized"), "completion failed")
	if got, want := err.Error(), "completion failed: 401 Unauthorized"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, errors.Unwrap(err)) {
		t.Error("Unwrap should expose the cause")
	}
}

func TestIsUnauthorized(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"kind", New(KindUnauthorized, "invalid token"), true},
		{"marker in provider text", Wrap(KindProvider, errors.New("status 401: Unauthorized"), "embed"), true},
		{"validation", New(KindValidation, "Message content is missing"), false},
		{"lowercase does not match", errors.New("unauthorized"), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := IsUnauthorized(tc.err); got != tc.want {
				t.Errorf("IsUnauthorized() = %v, want %v", got, tc.want)
			}
		})
	}
}
