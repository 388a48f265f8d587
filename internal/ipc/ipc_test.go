package ipc

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	sock := filepath.Join(dir, "test.sock")
	srv := NewServer(sock, 16, zap.NewNop())
	if err := srv.Serve(); err != nil {
		t.Fatalf("serve: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv, sock
}

func TestClientServerRequestResponse(t *testing.T) {
	srv, sock := newTestServer(t)

	type echoPayload struct {
		Msg string `json:"msg"`
	}
	srv.Handle(TypeState, func(raw json.RawMessage) (interface{}, error) {
		var p echoPayload
		_ = json.Unmarshal(raw, &p)
		return echoPayload{Msg: "echo:" + p.Msg}, nil
	})

	client := NewClient(DefaultClientConfig(sock), zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	resp, err := client.SendRequest(ctx, TypeState, echoPayload{Msg: "hi"}, time.Second)
	if err != nil {
		t.Fatalf("send request: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got error %q", resp.Error)
	}
}

func TestClientRequestWithNoHandlerGetsFailureResponse(t *testing.T) {
	_, sock := newTestServer(t)

	client := NewClient(DefaultClientConfig(sock), zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	resp, err := client.SendRequest(ctx, TypeGap, map[string]string{}, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("expected a response envelope reporting no handler, got error: %v", err)
	}
	if resp.Success {
		t.Fatal("expected failure response for unregistered handler")
	}
}

func TestFireAndForgetInvokesHandler(t *testing.T) {
	srv, sock := newTestServer(t)
	called := make(chan struct{}, 1)
	srv.Handle(TypeQueue, func(raw json.RawMessage) (interface{}, error) {
		called <- struct{}{}
		return nil, nil
	})

	client := NewClient(DefaultClientConfig(sock), zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	if err := client.SendFireAndForget(TypeQueue, map[string]string{"hello": "world"}); err != nil {
		t.Fatalf("fire and forget: %v", err)
	}

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("handler was never invoked")
	}
}
