package cli

import (
	"context"
	"strings"
	"testing"
)

type fakeExec struct {
	loggedIn bool

	calls []string
}

func (f *fakeExec) isLoggedIn() bool { return f.loggedIn }
func (f *fakeExec) Register(ctx context.Context) error {
	f.calls = append(f.calls, "register")
	return nil
}
func (f *fakeExec) Verify(ctx context.Context) error {
	f.calls = append(f.calls, "verify")
	return nil
}
func (f *fakeExec) Resend(ctx context.Context) error {
	f.calls = append(f.calls, "resend")
	return nil
}
func (f *fakeExec) Login(ctx context.Context) error {
	f.calls = append(f.calls, "login")
	f.loggedIn = true
	return nil
}
func (f *fakeExec) Refresh(ctx context.Context) error {
	f.calls = append(f.calls, "refresh")
	return nil
}
func (f *fakeExec) Me(ctx context.Context) error { f.calls = append(f.calls, "me"); return nil }
func (f *fakeExec) Logout(ctx context.Context) error {
	f.calls = append(f.calls, "logout")
	f.loggedIn = false
	return nil
}

func silence(t *testing.T) *[]string {
	t.Helper()
	var printed []string
	origPrint := printlnFn
	printlnFn = func(a ...any) (int, error) {
		parts := make([]string, len(a))
		for i, v := range a {
			parts[i], _ = v.(string)
		}
		printed = append(printed, strings.Join(parts, " "))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = origPrint })
	return &printed
}

func TestRunREPL_LifecycleCommands(t *testing.T) {
	silence(t)

	input := rdr(strings.Join([]string{
		"help",
		"register",
		"",
		"verify",
		"resend",
		"login",
		"me",
		"refresh",
		"logout",
		"foobar",
		"exit",
		"me",
	}, "\n"))

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "status" }, input)

	want := []string{"register", "verify", "resend", "login", "me", "refresh", "logout"}
	if strings.Join(exec.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("got calls %v, want %v", exec.calls, want)
	}
}

func TestRunREPL_HelpDependsOnSession(t *testing.T) {
	printed := silence(t)

	runREPL(context.Background(), &fakeExec{loggedIn: true}, func() string { return "" }, rdr("help\nquit\n"))

	found := false
	for _, p := range *printed {
		if strings.Contains(p, "me, refresh, logout") {
			found = true
		}
	}
	if !found {
		t.Fatalf("logged-in help not shown: %v", *printed)
	}
}

func TestRunREPL_StopsOnEOF(t *testing.T) {
	silence(t)

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "" }, rdr("login"))

	if len(exec.calls) != 1 || exec.calls[0] != "login" {
		t.Fatalf("unterminated last line should still run: %v", exec.calls)
	}
}
