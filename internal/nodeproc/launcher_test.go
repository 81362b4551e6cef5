package nodeproc

import (
	"strings"
	"testing"
	"time"

	"ros-node-supervisor/internal/common/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return log
}

func TestBuildArgvRun(t *testing.T) {
	argv := buildArgv(NodeRequest{Name: "talker", Package: "demo_nodes_cpp", Executable: "talker"})
	want := []string{"ros2", "run", "demo_nodes_cpp", "talker"}
	if !equalSlices(argv, want) {
		t.Fatalf("buildArgv() = %v, want %v", argv, want)
	}
}

func TestBuildArgvLaunch(t *testing.T) {
	argv := buildArgv(NodeRequest{Name: "sys", Package: "demo_nodes_cpp", LaunchFile: "sys.launch.py"})
	want := []string{"ros2", "launch", "demo_nodes_cpp", "sys.launch.py"}
	if !equalSlices(argv, want) {
		t.Fatalf("buildArgv() = %v, want %v", argv, want)
	}
}

func TestBuildArgvParametersAreSortedAndStable(t *testing.T) {
	req := NodeRequest{
		Name:       "talker",
		Package:    "demo_nodes_cpp",
		Executable: "talker",
		Parameters: map[string]string{"zeta": "1", "alpha": "2"},
	}
	first := buildArgv(req)
	second := buildArgv(req)
	if !equalSlices(first, second) {
		t.Fatalf("expected argv rendering to be stable across calls, got %v then %v", first, second)
	}

	joined := strings.Join(first, " ")
	if strings.Index(joined, "alpha") > strings.Index(joined, "zeta") {
		t.Fatalf("expected parameters sorted by key, got %v", first)
	}
	if !strings.Contains(joined, "--ros-args") || !strings.Contains(joined, "alpha:=2") {
		t.Fatalf("expected --ros-args -p alpha:=2 rendering, got %v", first)
	}
}

func TestLaunchRejectsBothExecutableAndLaunchFile(t *testing.T) {
	l := NewLauncher("humble", newTestLogger(t))
	_, err := l.Launch(NodeRequest{
		Name:       "b",
		Package:    "p",
		Executable: "x",
		LaunchFile: "l",
	}, time.Second, 16)
	if err == nil {
		t.Fatal("expected an error when both executable and launch_file are set")
	}
}

func TestLaunchRejectsNeitherExecutableNorLaunchFile(t *testing.T) {
	l := NewLauncher("humble", newTestLogger(t))
	_, err := l.Launch(NodeRequest{Name: "b", Package: "p"}, time.Second, 16)
	if err == nil {
		t.Fatal("expected an error when neither executable nor launch_file is set")
	}
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
