package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fakebuster/fakebuster/internal/log"
)

func TestBusRequest(t *testing.T) {
	t.Parallel()

	b := NewBus(WithLogger(log.Discard()))
	defer b.Close()

	b.Handle(ActionDetectImage, func(_ context.Context, m Message) (Message, error) {
		req := m.(DetectImage)
		if req.URL == "" {
			return nil, errors.New("empty url")
		}
		return ImageScore{Score: 0.42}, nil
	})

	reply, err := b.Request(context.Background(), DetectImage{URL: "https://a.example/x.jpg"})
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if score, ok := reply.(ImageScore); !ok || score.Score != 0.42 {
		t.Errorf("unexpected reply %#v", reply)
	}

	if _, err := b.Request(context.Background(), DetectImage{}); err == nil {
		t.Error("expected handler error to propagate")
	}

	if _, err := b.Request(context.Background(), GetDetectionCounts{}); !errors.Is(err, ErrNoHandler) {
		t.Errorf("expected ErrNoHandler, got %v", err)
	}
}

func TestBusRequestHonoursContext(t *testing.T) {
	t.Parallel()

	b := NewBus(WithLogger(log.Discard()))
	defer b.Close()

	release := make(chan struct{})
	b.Handle(ActionCheckText, func(ctx context.Context, _ Message) (Message, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return TextResult{}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := b.Request(ctx, CheckText{Text: "hello"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	close(release)
}

func TestBusPostAndSubscribe(t *testing.T) {
	t.Parallel()

	b := NewBus(WithLogger(log.Discard()))

	handled := make(chan string, 1)
	b.Handle(ActionShowResult, func(_ context.Context, m Message) (Message, error) {
		handled <- m.(ShowResult).ResultText
		return nil, nil
	})
	ch, cancel := b.Subscribe(ActionShowResult, 4)

	b.Post(ShowResult{ResultText: "92% likely AI"})

	select {
	case m := <-ch:
		if m.(ShowResult).ResultText != "92% likely AI" {
			t.Errorf("unexpected message %#v", m)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive message")
	}
	select {
	case text := <-handled:
		if text != "92% likely AI" {
			t.Errorf("handler got %q", text)
		}
	case <-time.After(time.Second):
		t.Fatal("handler did not run")
	}

	cancel()
	if _, ok := <-ch; ok {
		t.Error("expected channel closed after cancel")
	}
	cancel()

	b.Close()
	if _, err := b.Request(context.Background(), ShowResult{}); !errors.Is(err, ErrBusClosed) {
		t.Errorf("expected ErrBusClosed, got %v", err)
	}
	b.Post(ShowResult{})
}
