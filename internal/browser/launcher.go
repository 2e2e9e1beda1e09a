package browser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	readyTimeout = 15 * time.Second
	stopTimeout  = 5 * time.Second
)

// Config holds browser launch configuration.
type Config struct {
	CDPAddress string
	CDPPort    int
	ProfileDir string
	// StartURLs are opened as the first tabs, usually a job board and the
	// destination project.
	StartURLs []string
	// LogFile receives the browser's stdout and stderr. Empty discards them.
	LogFile    string
	WindowSize string
	Binary     string
}

// Launcher manages the lifecycle of a browser process.
type Launcher struct {
	cfg     Config
	cmd     *exec.Cmd
	output  io.WriteCloser
	running bool
}

func NewLauncher(cfg Config) *Launcher {
	if cfg.WindowSize == "" {
		cfg.WindowSize = "1440,1000"
	}
	return &Launcher{cfg: cfg}
}

func detectBrowser(explicit string) (string, error) {
	if explicit != "" {
		return exec.LookPath(explicit)
	}
	candidates := []string{"chromium-browser", "chromium", "google-chrome", "google-chrome-stable"}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	if runtime.GOOS == "darwin" {
		macPath := "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
		if _, err := os.Stat(macPath); err == nil {
			return macPath, nil
		}
	}
	return "", fmt.Errorf("browser: no supported browser found (tried %v)", candidates)
}

func (l *Launcher) hostPort() string {
	return net.JoinHostPort(l.cfg.CDPAddress, strconv.Itoa(l.cfg.CDPPort))
}

func (l *Launcher) portInUse() bool {
	conn, err := net.DialTimeout("tcp", l.hostPort(), time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (l *Launcher) args() []string {
	args := []string{
		"--remote-debugging-port=" + strconv.Itoa(l.cfg.CDPPort),
		"--remote-debugging-address=" + l.cfg.CDPAddress,
		"--user-data-dir=" + l.cfg.ProfileDir,
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-dev-shm-usage",
		"--window-size=" + l.cfg.WindowSize,
	}
	return append(args, l.cfg.StartURLs...)
}

// Launch starts the browser unless something already listens on the CDP port,
// then waits for the DevTools endpoint to answer.
func (l *Launcher) Launch(ctx context.Context) error {
	if l.portInUse() {
		slog.Info("browser already running, skipping launch", "cdp", l.hostPort())
		return nil
	}

	browserPath, err := detectBrowser(l.cfg.Binary)
	if err != nil {
		return err
	}
	slog.Info("browser detected", "path", browserPath)

	if err := os.MkdirAll(l.cfg.ProfileDir, 0o755); err != nil {
		return fmt.Errorf("browser: create profile dir: %w", err)
	}

	l.cmd = exec.Command(browserPath, l.args()...)
	if l.cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(l.cfg.LogFile), 0o755); err != nil {
			return fmt.Errorf("browser: create log dir: %w", err)
		}
		l.output = &lumberjack.Logger{
			Filename:   l.cfg.LogFile,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		}
		l.cmd.Stdout = l.output
		l.cmd.Stderr = l.output
	}

	if err := l.cmd.Start(); err != nil {
		return fmt.Errorf("browser: start: %w", err)
	}
	l.running = true
	slog.Info("browser process started", "pid", l.cmd.Process.Pid)

	if err := l.waitForCDP(ctx); err != nil {
		l.Stop()
		return fmt.Errorf("browser: waiting for CDP: %w", err)
	}
	slog.Info("browser CDP endpoint ready", "cdp", l.hostPort())
	return nil
}

func (l *Launcher) waitForCDP(ctx context.Context) error {
	url := "http://" + l.hostPort() + "/json/version"
	deadline := time.After(readyTimeout)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	client := &http.Client{Timeout: time.Second}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("CDP did not become ready within %s at %s", readyTimeout, url)
		case <-ticker.C:
			resp, err := client.Get(url)
			if err != nil {
				continue
			}
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
	}
}

// Running reports whether this launcher spawned a browser process.
func (l *Launcher) Running() bool {
	return l.running
}

// Stop terminates the browser with SIGTERM, falling back to SIGKILL. A
// browser that was already running before Launch is left alone.
func (l *Launcher) Stop() {
	if l.cmd == nil || l.cmd.Process == nil || !l.running {
		return
	}
	slog.Info("browser stopping", "pid", l.cmd.Process.Pid)
	_ = l.cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_ = l.cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("browser stopped gracefully")
	case <-time.After(stopTimeout):
		slog.Warn("browser did not exit, sending SIGKILL")
		_ = l.cmd.Process.Kill()
		<-done
	}
	l.running = false
	if l.output != nil {
		_ = l.output.Close()
	}
}
