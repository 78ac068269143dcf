// Package ready implements the pass-through platform adapter for targets
// that already exist and need no provisioning: the local machine, a lab box
// reachable over SSH, a long-lived container. Prepare and Deploy are
// reservations only; Delete releases the reservation without touching the
// machine.
package ready

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"testrig/internal/capability"
	"testrig/internal/platform"
)

// AdapterName is the registry name of the ready adapter.
const AdapterName = "ready"

// Target is one preconfigured, already-running machine.
type Target struct {
	// Name labels the target; it doubles as the template name.
	Name string
	// Capability declares what the target offers.
	Capability capability.Capability
	// Channel is the control channel handed out on Connect. For targets
	// without a custom channel, NewExecTarget wires a local exec channel.
	Channel platform.ControlChannel
}

// Adapter serves ready targets. Each target can be reserved by at most one
// environment at a time; Delete releases the reservation.
type Adapter struct {
	mu       sync.Mutex
	targets  []Target
	reserved map[string]bool
}

// New creates a ready adapter over the given targets. Target order is
// preserved; it defines template declaration order.
func New(targets []Target) *Adapter {
	for i := range targets {
		if targets[i].Capability.Name == "" {
			targets[i].Capability.Name = targets[i].Name
		}
	}
	return &Adapter{
		targets:  targets,
		reserved: make(map[string]bool),
	}
}

// Name implements platform.Adapter.
func (a *Adapter) Name() string {
	return AdapterName
}

// DeclareTemplates implements platform.Adapter. Every target is declared,
// reserved or not: reservation is checked at Prepare time.
func (a *Adapter) DeclareTemplates() []capability.Capability {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]capability.Capability, 0, len(a.targets))
	for _, t := range a.targets {
		out = append(out, t.Capability)
	}
	return out
}

type handle struct {
	targetName string
}

func (h *handle) ID() string {
	return AdapterName + "/" + h.targetName
}

// Prepare implements platform.Adapter by reserving the target whose
// capability name matches the requested spec.
func (a *Adapter) Prepare(ctx context.Context, spec capability.Capability) (platform.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, t := range a.targets {
		if t.Capability.Name != spec.Name {
			continue
		}
		if a.reserved[t.Name] {
			return nil, fmt.Errorf("ready target %q is already reserved", t.Name)
		}
		a.reserved[t.Name] = true
		return &handle{targetName: t.Name}, nil
	}
	return nil, fmt.Errorf("no ready target matches template %q", spec.Name)
}

// Deploy implements platform.Adapter. Nothing is instantiated; the declared
// capability is already the measured one.
func (a *Adapter) Deploy(ctx context.Context, h platform.Handle) (capability.Capability, error) {
	if err := ctx.Err(); err != nil {
		return capability.Capability{}, err
	}

	t, err := a.lookup(h)
	if err != nil {
		return capability.Capability{}, err
	}
	return t.Capability.Clone(), nil
}

// Connect implements platform.Adapter.
func (a *Adapter) Connect(ctx context.Context, h platform.Handle) (platform.ControlChannel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, err := a.lookup(h)
	if err != nil {
		return nil, err
	}
	if t.Channel == nil {
		return nil, fmt.Errorf("ready target %q has no control channel configured", t.Name)
	}
	return t.Channel, nil
}

// Delete implements platform.Adapter by releasing the reservation. The
// machine itself is left untouched.
func (a *Adapter) Delete(ctx context.Context, h platform.Handle) error {
	hd, ok := h.(*handle)
	if !ok {
		return fmt.Errorf("foreign handle %q passed to ready adapter", h.ID())
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.reserved, hd.targetName)
	return nil
}

func (a *Adapter) lookup(h platform.Handle) (Target, error) {
	hd, ok := h.(*handle)
	if !ok {
		return Target{}, fmt.Errorf("foreign handle %q passed to ready adapter", h.ID())
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, t := range a.targets {
		if t.Name == hd.targetName {
			return t, nil
		}
	}
	return Target{}, fmt.Errorf("unknown ready target %q", hd.targetName)
}

// ExecChannel runs commands on the local machine, optionally through a
// wrapper command prefix (e.g. ["ssh", "user@host"]) so a remote ready
// target can be driven without a dedicated transport implementation.
type ExecChannel struct {
	prefix []string
}

// NewExecChannel creates an exec channel with the given command prefix.
// An empty prefix runs commands locally via the shell.
func NewExecChannel(prefix []string) *ExecChannel {
	return &ExecChannel{prefix: prefix}
}

// Run implements platform.ControlChannel.
func (c *ExecChannel) Run(ctx context.Context, command string) (string, error) {
	var cmd *exec.Cmd
	if len(c.prefix) > 0 {
		args := append(append([]string(nil), c.prefix[1:]...), command)
		cmd = exec.CommandContext(ctx, c.prefix[0], args...)
	} else {
		cmd = exec.CommandContext(ctx, "/bin/sh", "-c", command)
	}

	out, err := cmd.CombinedOutput()
	output := strings.TrimRight(string(out), "\n")
	if err != nil {
		return output, fmt.Errorf("command %q failed: %w", command, err)
	}
	return output, nil
}

// Close implements platform.ControlChannel. Exec channels hold no
// persistent connection.
func (c *ExecChannel) Close() error {
	return nil
}

// NewExecTarget builds a Target whose channel executes commands locally or
// through the given prefix.
func NewExecTarget(name string, cap capability.Capability, prefix []string) Target {
	return Target{
		Name:       name,
		Capability: cap,
		Channel:    NewExecChannel(prefix),
	}
}

// LocalTarget is the default target: the machine the harness runs on. It
// declares no capability dimensions, so it satisfies any requirement.
func LocalTarget() Target {
	return NewExecTarget("localhost", capability.NewCapability("localhost"), nil)
}
