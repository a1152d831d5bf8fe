package tracing

import (
	"testing"

	"github.com/54b3r/ragchat-go/internal/config"
)

func TestSetup_DisabledWithoutKeys(t *testing.T) {
	t.Parallel()

	cases := []config.TracingConfig{
		{},
		{PublicKey: "pk-lf-123"},
		{SecretKey: "sk-lf-456", Host: "https://cloud.langfuse.com"},
	}
	for _, cfg := range cases {
		h, flush, ok := Setup(cfg)
		if ok || h != nil || flush != nil {
			t.Errorf("cfg %+v: expected tracing disabled", cfg)
		}
	}
}
