// Package command turns Brain commands into navigator calls.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/yourusername/orion/guide/internal/contract"
	"github.com/yourusername/orion/guide/internal/nav"
	"github.com/yourusername/orion/guide/internal/route"
	"github.com/yourusername/orion/guide/internal/safety"
)

// Command types accepted by the dispatcher.
const (
	TypeNavigate = "NAVIGATE"
	TypePause    = "PAUSE"
	TypeResume   = "RESUME"
	TypeCancel   = "CANCEL"
	TypeStop     = "STOP"
	TypeStatus   = "STATUS"
)

// Command is a decoded command message.
type Command struct {
	CommandID   string `json:"command_id,omitempty"`
	CommandType string `json:"command_type"`
	Destination string `json:"destination,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Source      string `json:"source,omitempty"`
}

// Reply reports the outcome of a command together with the navigator state
// right after it was handled.
type Reply struct {
	CommandID   string     `json:"command_id,omitempty"`
	CommandType string     `json:"command_type"`
	Accepted    bool       `json:"accepted"`
	Message     string     `json:"message"`
	SessionID   string     `json:"session_id,omitempty"`
	SafeMode    bool       `json:"safe_mode"`
	Status      nav.Status `json:"status"`
}

// Navigator is the part of nav.Navigator driven by commands.
type Navigator interface {
	Start(route nav.Route) (string, error)
	Pause() error
	Resume() error
	Cancel() error
	Status() nav.Status
}

// Interlock is the safe state guarding NAVIGATE.
type Interlock interface {
	Engage(reason string) bool
	Release() error
	Engaged() bool
	Reason() string
}

// Watchdog is reset by every command received from the Brain.
type Watchdog interface {
	Reset()
	Clear()
}

// Dispatcher validates and executes commands.
type Dispatcher struct {
	nav       Navigator
	routes    route.Resolver
	validator *contract.Validator
	interlock Interlock
	watchdog  Watchdog
	logger    *log.Logger
}

// NewDispatcher creates a dispatcher. watchdog may be nil.
func NewDispatcher(n Navigator, routes route.Resolver, v *contract.Validator, lock Interlock, watchdog Watchdog) *Dispatcher {
	return &Dispatcher{
		nav:       n,
		routes:    routes,
		validator: v,
		interlock: lock,
		watchdog:  watchdog,
		logger:    log.Default(),
	}
}

// SetLogger replaces the dispatcher's logger.
func (d *Dispatcher) SetLogger(l *log.Logger) {
	d.logger = l
}

// HandleJSON validates a raw command against the command contract and
// handles it. Any message, even an invalid one, proves the Brain is alive.
func (d *Dispatcher) HandleJSON(ctx context.Context, payload []byte) Reply {
	if d.watchdog != nil {
		d.watchdog.Reset()
	}

	if err := d.validator.ValidateJSON(payload, contract.Command); err != nil {
		d.logger.Printf("ERROR: Rejected command: %v", err)
		return d.reject(Command{}, fmt.Sprintf("invalid command: %v", err))
	}

	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return d.reject(Command{}, fmt.Sprintf("invalid command: %v", err))
	}
	return d.Handle(ctx, cmd)
}

// Handle executes a decoded command.
func (d *Dispatcher) Handle(ctx context.Context, cmd Command) Reply {
	d.logger.Printf("INFO: Received %s command (id: %s)", cmd.CommandType, cmd.CommandID)

	switch cmd.CommandType {
	case TypeNavigate:
		return d.navigate(ctx, cmd)
	case TypePause:
		if err := d.nav.Pause(); err != nil {
			return d.reject(cmd, fmt.Sprintf("cannot pause: %v", err))
		}
		return d.accept(cmd, "navigation paused")
	case TypeResume:
		return d.resume(cmd)
	case TypeCancel:
		if err := d.nav.Cancel(); err != nil {
			return d.reject(cmd, fmt.Sprintf("cannot cancel: %v", err))
		}
		return d.accept(cmd, "navigation cancelled")
	case TypeStop:
		return d.stop(cmd)
	case TypeStatus:
		return d.accept(cmd, "status")
	default:
		d.logger.Printf("WARN: Unknown command type: %s", cmd.CommandType)
		return d.reject(cmd, fmt.Sprintf("unknown command type %q", cmd.CommandType))
	}
}

func (d *Dispatcher) navigate(ctx context.Context, cmd Command) Reply {
	if d.interlock.Engaged() {
		d.logger.Printf("WARN: NAVIGATE rejected - in safe mode (requires RESUME first)")
		return d.reject(cmd, fmt.Sprintf("safe mode engaged (%s), RESUME required", d.interlock.Reason()))
	}

	r, err := d.routes.Resolve(ctx, cmd.Destination)
	if err != nil {
		return d.reject(cmd, err.Error())
	}
	id, err := d.nav.Start(r)
	if err != nil {
		return d.reject(cmd, fmt.Sprintf("cannot start navigation: %v", err))
	}

	d.logger.Printf("INFO: Navigating to %s (session %s, %d steps)", r.Destination, id, len(r.Steps))
	reply := d.accept(cmd, fmt.Sprintf("navigating to %s", r.Destination))
	reply.SessionID = id
	return reply
}

// resume leaves safe mode when it is engaged and otherwise resumes a paused
// session. A session cancelled by the interlock stays failed.
func (d *Dispatcher) resume(cmd Command) Reply {
	if d.interlock.Engaged() {
		if d.watchdog != nil {
			d.watchdog.Clear()
		}
		if err := d.interlock.Release(); err != nil && !errors.Is(err, safety.ErrNotEngaged) {
			return d.reject(cmd, fmt.Sprintf("cannot leave safe mode: %v", err))
		}
		d.logger.Printf("INFO: Exited safe mode via RESUME command")
		return d.accept(cmd, "safe mode cleared")
	}

	if err := d.nav.Resume(); err != nil {
		return d.reject(cmd, fmt.Sprintf("cannot resume: %v", err))
	}
	return d.accept(cmd, "navigation resumed")
}

// stop is the emergency stop: the session is cancelled and the interlock
// latches until RESUME.
func (d *Dispatcher) stop(cmd Command) Reply {
	reason := cmd.Reason
	if reason == "" {
		reason = "STOP command"
	}

	if err := d.nav.Cancel(); err != nil && !errors.Is(err, nav.ErrInvalidTransition) {
		d.logger.Printf("ERROR: Emergency stop could not cancel navigation: %v", err)
	}
	if !d.interlock.Engage(reason) {
		d.logger.Printf("INFO: STOP command received but already in safe mode")
	}
	return d.accept(cmd, "emergency stop")
}

func (d *Dispatcher) accept(cmd Command, msg string) Reply {
	return d.reply(cmd, true, msg)
}

func (d *Dispatcher) reject(cmd Command, msg string) Reply {
	d.logger.Printf("WARN: %s command rejected: %s", cmd.CommandType, msg)
	return d.reply(cmd, false, msg)
}

func (d *Dispatcher) reply(cmd Command, accepted bool, msg string) Reply {
	return Reply{
		CommandID:   cmd.CommandID,
		CommandType: cmd.CommandType,
		Accepted:    accepted,
		Message:     msg,
		SafeMode:    d.interlock.Engaged(),
		Status:      d.nav.Status(),
	}
}
