package adapter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	m "strata.dev/pkg/strata/internal/model"
)

// These tests re-execute the test binary as the external tool so no real
// decompiler or downloader is needed.

func TestHelperProcess(t *testing.T) {
	if os.Getenv("STRATA_HELPER_PROCESS") != "1" {
		return
	}

	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}

	switch os.Getenv("STRATA_HELPER_MODE") {
	case "fail":
		fmt.Fprintf(os.Stderr, "boom %s\n", strings.Join(args, " "))
		os.Exit(3)
	case "sleep":
		time.Sleep(10 * time.Second)
	default:
		fmt.Println(strings.Join(args, " "))
	}

	os.Exit(0)
}

func helperArgs(extra ...string) []string {
	return append([]string{"-test.run=TestHelperProcess", "--"}, extra...)
}

func TestLocalCommandRunnerAdapter_Run(t *testing.T) {
	t.Setenv("STRATA_HELPER_PROCESS", "1")

	t.Run("success captures output", func(t *testing.T) {
		t.Setenv("STRATA_HELPER_MODE", "echo")

		runner := NewLocalCommandRunnerAdapter(0)

		out, err := runner.Run(context.Background(), t.TempDir(), os.Args[0], helperArgs("hello", "world")...)
		if err != nil {
			t.Fatalf("Run() error = %v, output = %s", err, out)
		}

		if !strings.Contains(out, "hello world") {
			t.Fatalf("Run() output = %q", out)
		}
	})

	t.Run("failure returns stderr", func(t *testing.T) {
		t.Setenv("STRATA_HELPER_MODE", "fail")

		runner := NewLocalCommandRunnerAdapter(0)

		out, err := runner.Run(context.Background(), "", os.Args[0], helperArgs("x")...)
		if err == nil {
			t.Fatalf("Run() expected error")
		}

		if !strings.Contains(out, "boom x") {
			t.Fatalf("Run() output = %q", out)
		}
	})

	t.Run("timeout kills the command", func(t *testing.T) {
		t.Setenv("STRATA_HELPER_MODE", "sleep")

		runner := NewLocalCommandRunnerAdapter(100 * time.Millisecond)

		start := time.Now()

		_, err := runner.Run(context.Background(), "", os.Args[0], helperArgs()...)
		if err == nil {
			t.Fatalf("Run() expected timeout error")
		}

		if time.Since(start) > 5*time.Second {
			t.Fatalf("Run() did not honor the timeout")
		}
	})
}

func TestExpandArgs(t *testing.T) {
	got := ExpandArgs(
		[]string{"-o", "{output}", "{input}", "--name={input}.x", "{unknown}"},
		map[string]string{"input": "in.exe", "output": "out"},
	)

	want := []string{"-o", "out", "in.exe", "--name=in.exe.x", "{unknown}"}

	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("ExpandArgs() = %v, want %v", got, want)
	}
}

type recordingRunner struct {
	name string
	args []string
	out  string
	err  error
}

func (r *recordingRunner) Run(_ context.Context, _ string, name string, args ...string) (string, error) {
	r.name = name
	r.args = args

	return r.out, r.err
}

func TestCommandDecompiler_Decompile(t *testing.T) {
	runner := &recordingRunner{}
	dec := NewCommandDecompiler(runner, "ilspycmd", []string{"-p", "-o", "{output}", "{input}"})

	if err := dec.Decompile(context.Background(), m.Path("cloned/Game/Game.exe"), m.Path("decompiled/Game")); err != nil {
		t.Fatalf("Decompile() error = %v", err)
	}

	if runner.name != "ilspycmd" {
		t.Fatalf("Decompile() ran %s", runner.name)
	}

	if strings.Join(runner.args, " ") != "-p -o decompiled/Game cloned/Game/Game.exe" {
		t.Fatalf("Decompile() args = %v", runner.args)
	}

	runner.err = errors.New("exit status 1")
	runner.out = "bad image"

	err := dec.Decompile(context.Background(), m.Path("x.exe"), m.Path("out"))
	if err == nil || !strings.Contains(err.Error(), "bad image") {
		t.Fatalf("Decompile() error = %v", err)
	}
}

func TestCommandDownloader_Download(t *testing.T) {
	runner := &recordingRunner{}
	dl := NewCommandDownloader(runner, "DepotDownloader", []string{
		"-app", "{app}", "-depot", "{depot}", "-filelist", "{filelist}",
		"-username", "{username}", "-password", "{password}", "-dir", "{dir}",
	})

	req := DownloadRequest{
		AppID: 105600, DepotID: 105601,
		Username: "user", Password: "hunter2",
		FileList: "filelist.txt", Dir: "downloads/105600/105601",
	}

	if err := dl.Download(context.Background(), req); err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	want := "-app 105600 -depot 105601 -filelist filelist.txt -username user -password hunter2 -dir downloads/105600/105601"
	if strings.Join(runner.args, " ") != want {
		t.Fatalf("Download() args = %v", runner.args)
	}

	runner.err = errors.New("exit status 2")
	runner.out = "login failed for user/hunter2"

	err := dl.Download(context.Background(), req)
	if err == nil {
		t.Fatalf("Download() expected error")
	}

	if strings.Contains(err.Error(), "hunter2") {
		t.Fatalf("Download() leaked the password: %v", err)
	}
}
