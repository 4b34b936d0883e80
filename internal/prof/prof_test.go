package prof

import (
	"context"
	"testing"

	"github.com/keithlinneman/sopranos-api/internal/log"
)

func TestStart_Disabled(t *testing.T) {
	var got []bool
	stop, err := Start(context.Background(), Options{
		Enabled:       false,
		ServerAddress: "http://ignored",
		OnStatus:      func(a bool) { got = append(got, a) },
	})
	if err != nil {
		t.Fatalf("Start disabled: %v", err)
	}
	stop()
	stop()
	if len(got) != 1 || got[0] {
		t.Fatalf("status calls = %v", got)
	}
}

func TestStart_Enabled_EmptyServerAddress(t *testing.T) {
	var active *bool
	ctx := log.WithContext(context.Background(), log.Nop())
	stop, err := Start(ctx, Options{
		Enabled:  true,
		AppName:  "sopranos-api",
		Tags:     map[string]string{"env": "test"},
		OnStatus: func(a bool) { active = &a },
	})
	if err == nil {
		t.Fatal("expected error for empty server address")
	}
	if stop == nil {
		t.Fatal("stop func should always be non-nil")
	}
	stop()
	if active == nil || *active {
		t.Fatalf("status = %v, want false", active)
	}
}

func TestStart_NoLoggerInContext(t *testing.T) {
	stop, err := Start(context.Background(), Options{})
	if err != nil || stop == nil {
		t.Fatalf("stop nil=%v err=%v", stop == nil, err)
	}
}
