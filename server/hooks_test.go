package server

import (
	"context"
	"errors"
	"testing"
)

func TestHooksDispatchOrder(t *testing.T) {
	hooks := NewHooks()
	var order []string

	hooks.On(HookSignIn, func(ctx context.Context, hc *HookContext) error {
		order = append(order, "first")
		return nil
	})
	hooks.On(HookSignIn, func(ctx context.Context, hc *HookContext) error {
		order = append(order, "second")
		return nil
	})

	err := hooks.Dispatch(context.Background(), HookSignIn, nil, func(ctx context.Context) error {
		order = append(order, "action")
		return nil
	})
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	want := []string{"first", "second", "action"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestHooksWrapBracketsAction(t *testing.T) {
	hooks := NewHooks()
	var order []string

	hooks.OnWrap(HookSignIn, func(ctx context.Context, hc *HookContext) (func(context.Context) error, error) {
		order = append(order, "enter-a")
		return func(ctx context.Context) error {
			order = append(order, "exit-a")
			return nil
		}, nil
	})
	hooks.OnWrap(HookSignIn, func(ctx context.Context, hc *HookContext) (func(context.Context) error, error) {
		order = append(order, "enter-b")
		return func(ctx context.Context) error {
			order = append(order, "exit-b")
			return nil
		}, nil
	})

	err := hooks.Dispatch(context.Background(), HookSignIn, nil, func(ctx context.Context) error {
		order = append(order, "action")
		return nil
	})
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	// Releases run in reverse registration order, after the action.
	want := []string{"enter-a", "enter-b", "action", "exit-b", "exit-a"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestHooksErrorStopsActionButRunsReleases(t *testing.T) {
	hooks := NewHooks()
	var released bool
	boom := errors.New("boom")

	hooks.OnWrap(HookSignUp, func(ctx context.Context, hc *HookContext) (func(context.Context) error, error) {
		return func(ctx context.Context) error {
			released = true
			return nil
		}, nil
	})
	hooks.On(HookSignUp, func(ctx context.Context, hc *HookContext) error {
		return boom
	})
	hooks.On(HookSignUp, func(ctx context.Context, hc *HookContext) error {
		t.Fatal("handler after failure ran")
		return nil
	})

	actionRan := false
	err := hooks.Dispatch(context.Background(), HookSignUp, nil, func(ctx context.Context) error {
		actionRan = true
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Dispatch() error = %v, want boom", err)
	}
	if actionRan {
		t.Fatal("action ran despite handler failure")
	}
	if !released {
		t.Fatal("release skipped after handler failure")
	}
}

func TestHooksValuesFlowBetweenHandlers(t *testing.T) {
	hooks := NewHooks()

	hooks.On(HookSignIn, func(ctx context.Context, hc *HookContext) error {
		hc.Values["greeting"] = "hello"
		return nil
	})
	var got any
	hooks.On(HookSignIn, func(ctx context.Context, hc *HookContext) error {
		got = hc.Values["greeting"]
		return nil
	})

	if err := hooks.Dispatch(context.Background(), HookSignIn, &HookContext{UserID: "user-1"}, nil); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if got != "hello" {
		t.Fatalf("Values did not flow: %v", got)
	}
}

func TestSignInAndSignOutDispatchHooks(t *testing.T) {
	srv := newTestServer(t, nil)
	ctx := context.Background()

	var events []HookEvent
	srv.Hooks().On(HookSignIn, func(ctx context.Context, hc *HookContext) error {
		events = append(events, HookSignIn)
		return nil
	})
	srv.Hooks().On(HookSignOut, func(ctx context.Context, hc *HookContext) error {
		events = append(events, HookSignOut)
		return nil
	})

	session, err := srv.SignIn(ctx, "user-1", "", "")
	if err != nil {
		t.Fatalf("SignIn() error: %v", err)
	}
	if err := srv.SignOut(ctx, session.ID); err != nil {
		t.Fatalf("SignOut() error: %v", err)
	}

	if len(events) != 2 || events[0] != HookSignIn || events[1] != HookSignOut {
		t.Fatalf("events = %v", events)
	}

	// The session is gone after sign-out.
	got, err := srv.Sessions().GetSession(ctx, session.ID)
	if err != nil || got != nil {
		t.Fatalf("session survived sign-out: %+v, %v", got, err)
	}
}

func TestSignInHookFailureAbortsSession(t *testing.T) {
	srv := newTestServer(t, nil)
	boom := errors.New("denied")

	srv.Hooks().On(HookSignIn, func(ctx context.Context, hc *HookContext) error {
		return boom
	})

	if _, err := srv.SignIn(context.Background(), "user-1", "", ""); !errors.Is(err, boom) {
		t.Fatalf("SignIn() error = %v, want boom", err)
	}
}
