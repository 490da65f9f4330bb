package wireless

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// commandTimeout bounds a single wpa_cli call.
const commandTimeout = 5 * time.Second

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput() //nolint:gosec // binary comes from validated config
}

// wpaCLI talks to wpa_supplicant on one interface.
type wpaCLI struct {
	bin   string
	iface string
	run   Runner
}

// call runs "wpa_cli -i <iface> args..." and returns the trimmed reply.
// A FAIL reply is an error.
func (w *wpaCLI) call(ctx context.Context, args ...string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	out, err := w.run(callCtx, w.bin, append([]string{"-i", w.iface}, args...)...)
	reply := strings.TrimSpace(string(out))
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s timed out after %v", ErrCommandFailed, args[0], commandTimeout)
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %s cancelled: %w", ErrCommandFailed, args[0], ctx.Err())
		}
		return "", fmt.Errorf("%w: %s: %w (output: %s)", ErrCommandFailed, args[0], err, reply)
	}
	if strings.HasPrefix(reply, "FAIL") {
		return "", fmt.Errorf("%w: %s: %s", ErrCommandFailed, args[0], reply)
	}
	return reply, nil
}

// addNetwork registers a WPA2-PSK network and selects it.
func (w *wpaCLI) addNetwork(ctx context.Context, ssid, psk string) (int, error) {
	reply, err := w.call(ctx, "add_network")
	if err != nil {
		return 0, err
	}
	// The id is the last line; older wpa_cli versions print a banner first.
	lines := strings.Split(reply, "\n")
	id, err := strconv.Atoi(strings.TrimSpace(lines[len(lines)-1]))
	if err != nil {
		return 0, fmt.Errorf("%w: add_network returned %q", ErrCommandFailed, reply)
	}

	n := strconv.Itoa(id)
	steps := [][]string{
		{"set_network", n, "ssid", quoted(ssid)},
		{"set_network", n, "key_mgmt", "WPA-PSK"},
		{"set_network", n, "psk", quoted(psk)},
		{"enable_network", n},
		{"select_network", n},
	}
	for _, step := range steps {
		if _, err := w.call(ctx, step...); err != nil {
			return id, err
		}
	}
	return id, nil
}

// quoted wraps v in double quotes for set_network. wpa_supplicant reads
// up to the last quote and applies no escapes, so v goes in verbatim.
func quoted(v string) string {
	return `"` + v + `"`
}

// ping checks the control interface answers.
func (w *wpaCLI) ping(ctx context.Context) error {
	reply, err := w.call(ctx, "ping")
	if err != nil {
		return err
	}
	if !strings.HasSuffix(reply, "PONG") {
		return fmt.Errorf("%w: ping returned %q", ErrCommandFailed, reply)
	}
	return nil
}

func (w *wpaCLI) reconnect(ctx context.Context) error {
	_, err := w.call(ctx, "reconnect")
	return err
}
