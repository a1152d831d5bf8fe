package commands

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/ragchat-go/internal/chat"
	"github.com/54b3r/ragchat-go/internal/completion"
	"github.com/54b3r/ragchat-go/internal/version"
)

func chunk(content string) completion.Frame {
	return completion.Frame(`{"object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"` + content + `"},"finish_reason":null}]}` + "\n")
}

func TestPrintStream(t *testing.T) {
	t.Parallel()

	sr, sw := schema.Pipe[completion.Frame](4)
	go func() {
		defer sw.Close()
		sw.Send(chunk("Hello"), nil)
		sw.Send(chunk(", world"), nil)
	}()

	var buf bytes.Buffer
	if err := printStream(&buf, chat.Result{Stream: sr}); err != nil {
		t.Fatalf("printStream: %v", err)
	}
	if got := buf.String(); got != "Hello, world\n" {
		t.Errorf("got %q, want %q", got, "Hello, world\n")
	}
}

func TestPrintStream_Interrupted(t *testing.T) {
	t.Parallel()

	sr, sw := schema.Pipe[completion.Frame](4)
	go func() {
		defer sw.Close()
		sw.Send(chunk("partial"), nil)
		sw.Send(nil, errors.New("connection reset"))
	}()

	var buf bytes.Buffer
	err := printStream(&buf, chat.Result{Stream: sr})
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("expected interruption error, got %v", err)
	}
	if buf.String() != "partial" {
		t.Errorf("expected partial output before the error, got %q", buf.String())
	}
}

func TestVersionCmd(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cmd := NewVersionCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != version.String() {
		t.Errorf("got %q, want %q", got, version.String())
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	t.Parallel()

	root := NewRootCmd()
	want := map[string]bool{"serve": false, "ask": false, "search": false, "backfill": false, "version": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("--config flag not registered")
	}
}

func TestServeCmd_HelpDocumentsChatBody(t *testing.T) {
	t.Parallel()

	long := NewServeCmd(&app{}).Long
	if !strings.Contains(long, `{"message":"...","history":[`) {
		t.Errorf("serve help must document the chat request body, got:\n%s", long)
	}
	if strings.Contains(long, `"messages"`) {
		t.Errorf("serve help documents a body the handler does not accept:\n%s", long)
	}
}
