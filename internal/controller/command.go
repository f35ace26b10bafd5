package controller

import (
	"strconv"
	"strings"
)

// Text command protocol, colon-delimited and case-sensitive. Every
// handled write triggers a status emission, accepted or not: transitions
// are never silently swallowed from the client's point of view.

const (
	cmdModePrefix  = "MODE:"
	cmdLabelPrefix = "LABEL:"
	cmdStartPrefix = "START:"
	cmdStop        = "STOP"
	cmdReset       = "RESET"
	cmdStatus      = "STATUS"
)

// HandleCommand interprets one command from the control channel. Must be
// called from the device loop goroutine, before the next sampling tick.
func (c *Controller) HandleCommand(command string) {
	c.log.Infof("command received: %s", command)

	switch {
	case strings.HasPrefix(command, cmdModePrefix):
		c.switchMode(command[len(cmdModePrefix):])

	case strings.HasPrefix(command, cmdLabelPrefix):
		c.handleLabel(command[len(cmdLabelPrefix):])

	case strings.HasPrefix(command, cmdStartPrefix):
		c.handleStart(command[len(cmdStartPrefix):])

	case command == cmdStop:
		c.handleStop()

	case command == cmdReset:
		if err := c.rig.Reset(); err != nil {
			c.log.Warnf("reset command: %v", err)
		}

	case command == cmdStatus:
		c.emitStatus()

	default:
		c.log.Warnf("unrecognized command: %q", command)
	}

	c.emitStatus()
}

// handleLabel (re)starts a force-test collection under the given label.
func (c *Controller) handleLabel(label string) {
	if c.mode != ModeForceTest {
		return
	}
	c.forceCtx.label = label
	c.forceCtx.collecting = true
	c.forceCtx.startedAt = c.now()
	c.log.Infof("force test started with label %q", label)
}

// handleStart begins a distance-test collection. The argument is
// "<led>[:<distance_mm>]".
func (c *Controller) handleStart(arg string) {
	if c.mode != ModeDistanceTest {
		return
	}
	d := &c.distCtx
	if i := strings.IndexByte(arg, ':'); i >= 0 {
		d.led = arg[:i]
		mm, err := strconv.Atoi(arg[i+1:])
		if err != nil {
			c.log.Warnf("distance value %q: %v", arg[i+1:], err)
			mm = 0
		}
		d.distanceMM = mm
	} else {
		d.led = arg
		d.distanceMM = 0
	}
	d.collecting = true
	d.samples = 0
	d.irSum = 0
	d.redSum = 0
	c.log.Infof("distance test started: %s at %dmm", d.led, d.distanceMM)
}

func (c *Controller) handleStop() {
	switch c.mode {
	case ModeForceTest:
		c.forceCtx.collecting = false
		c.forceCtx.label = waitingLabel
	case ModeDistanceTest:
		c.distCtx.collecting = false
	}
	c.log.Info("collection stopped")
}
