package capability

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ExecEnvironment asks external commands about backend switching. The probe command must
// print "supported" and the switch command must print "confirmed"; any other output is
// treated as no signal.
type ExecEnvironment struct {
	ProbeCommand  []string
	SwitchCommand []string
	WorkingDir    string
}

func (e *ExecEnvironment) Capability(ctx context.Context) (Capability, error) {
	if len(e.ProbeCommand) == 0 {
		return Unsupported, nil
	}

	out, err := e.run(ctx, e.ProbeCommand, nil)
	if err != nil {
		return Unsupported, fmt.Errorf("probe command: %w", err)
	}

	if firstWord(out) == string(Supported) {
		return Supported, nil
	}
	return Unsupported, nil
}

func (e *ExecEnvironment) RequestSwitch(ctx context.Context, target BackendDescriptor) (Signal, error) {
	if len(e.SwitchCommand) == 0 {
		return SignalNone, errors.New("no switch command configured")
	}

	out, err := e.run(ctx, e.SwitchCommand, []string{"GOVERNOR_SWITCH_TARGET=" + target.Name})
	if err != nil {
		return SignalNone, fmt.Errorf("switch command: %w", err)
	}

	switch firstWord(out) {
	case "confirmed":
		return SignalConfirmed, nil
	case "rejected":
		return SignalRejected, nil
	default:
		return SignalNone, nil
	}
}

func (e *ExecEnvironment) run(ctx context.Context, argv []string, env []string) (string, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = e.WorkingDir
	cmd.Env = append(os.Environ(), env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%w: %s", err, msg)
		}
		return "", err
	}

	return stdout.String(), nil
}

func firstWord(out string) string {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}
