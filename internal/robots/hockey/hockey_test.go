package hockey

import (
	"context"
	"testing"
	"time"

	"robot-service/internal/es"
	"robot-service/internal/robots"
)

type harness struct {
	t       *testing.T
	fw      *es.Framework
	robot   *Robot
	inputs  *robots.MockInputs
	outputs *robots.MockOutputs
	motors  *robots.MockMotors
	analog  *robots.MockAnalog
}

func newHarness(t *testing.T, team string) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		inputs:  robots.NewMockInputs(),
		outputs: robots.NewMockOutputs(),
		motors:  &robots.MockMotors{},
		analog:  robots.NewMockAnalog(),
	}
	h.tape(false, false, false)
	h.robot = New(Config{
		Team:        team,
		MaxBalls:    3,
		ShotTime:    10 * time.Millisecond,
		DefenseTime: 20 * time.Millisecond,
	}, robots.Drivers{
		Inputs:  h.inputs,
		Outputs: h.outputs,
		Motors:  h.motors,
		Analog:  h.analog,
	}, nil)

	h.fw = es.New(es.WithTickPeriod(time.Millisecond))
	if err := h.robot.Register(h.fw); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := h.fw.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	h.run()
	return h
}

func (h *harness) run() {
	for h.fw.Step(context.Background()) > 0 {
	}
}

func (h *harness) ticks(n int) {
	for i := 0; i < n; i++ {
		h.fw.Tick()
		h.run()
	}
}

func (h *harness) post(k es.Kind) {
	if !h.fw.Post(ServicePlay, es.Event{Kind: k}) {
		h.t.Fatalf("post %s failed", k)
	}
	h.run()
}

func (h *harness) tape(left, center, right bool) {
	level := func(on bool) int {
		if on {
			return 900
		}
		return 100
	}
	h.analog.Set(ChannelTapeLeft, level(left))
	h.analog.Set(ChannelTapeCenter, level(center))
	h.analog.Set(ChannelTapeRight, level(right))
}

func (h *harness) hitSwitch() {
	h.inputs.Set(InputLimitSwitch, true)
	h.fw.Interrupts().Raise(h.robot.switchLine)
	h.run()
	h.inputs.Set(InputLimitSwitch, false)
}

func (h *harness) expectPath(want string) {
	h.t.Helper()
	if got := h.robot.play.Path(); got != want {
		h.t.Fatalf("path = %q, want %q", got, want)
	}
}

func TestRedTakesFaceOffAndShoots(t *testing.T) {
	h := newHarness(t, TeamRed)
	h.expectPath("waiting")

	h.post(GameStart)
	h.expectPath("playing/offense/shoot")
	if !h.outputs.Values[OutputShooter] {
		t.Error("shooter not fired on entry")
	}
	if !h.outputs.Values[OutputLED] {
		t.Error("team LED not on")
	}
}

func TestBlueStartsOnDefense(t *testing.T) {
	h := newHarness(t, TeamBlue)
	h.post(GameStart)
	h.expectPath("playing/defense")
	if h.motors.Left != speedBack || h.motors.Right != speedBack {
		t.Errorf("defense should back up, motors %d/%d", h.motors.Left, h.motors.Right)
	}
	h.ticks(20)
	if h.motors.Running {
		t.Error("motors still running after defense timer")
	}
	if h.robot.play.Query() != statePlaying || h.robot.strategy.Query() != stateDefense {
		t.Error("defense timer should not change state")
	}
}

func TestShootUntilEmptyThenReload(t *testing.T) {
	h := newHarness(t, TeamRed)
	h.post(GameStart)

	// each shot is a self transition: retract then fire again
	h.ticks(10)
	if h.robot.NumBalls() != 2 || h.robot.Shots() != 1 {
		t.Fatalf("after one shot: balls=%d shots=%d", h.robot.NumBalls(), h.robot.Shots())
	}
	h.expectPath("playing/offense/shoot")

	h.ticks(20)
	if h.robot.NumBalls() != 0 || h.robot.Shots() != 3 {
		t.Fatalf("after three shots: balls=%d shots=%d", h.robot.NumBalls(), h.robot.Shots())
	}
	h.expectPath("playing/offense/reload/seeking")
	if h.outputs.Values[OutputShooter] {
		t.Error("shooter left extended")
	}
	if h.motors.Left != speedSeek || h.motors.Right != -speedSeek {
		t.Errorf("seeking should spin, motors %d/%d", h.motors.Left, h.motors.Right)
	}

	fires := 0
	for _, w := range h.outputs.Writes {
		if w == OutputShooter+"=true" {
			fires++
		}
	}
	if fires != 3 {
		t.Errorf("shooter fired %d times, want 3", fires)
	}
}

func TestLineFollowAndReload(t *testing.T) {
	h := newHarness(t, TeamRed)
	h.post(GameStart)
	h.ticks(30)
	h.expectPath("playing/offense/reload/seeking")

	h.tape(false, true, false)
	h.run()
	h.expectPath("playing/offense/reload/following")
	if h.motors.Left != speedCruise || h.motors.Right != speedCruise {
		t.Errorf("cruise motors %d/%d", h.motors.Left, h.motors.Right)
	}
	if h.analog.MultiReads == 0 {
		t.Error("tape bar not sampled in one read")
	}

	h.tape(true, false, false)
	h.run()
	h.expectPath("playing/offense/reload/following")
	if h.motors.Left != speedTurn || h.motors.Right != speedCruise {
		t.Errorf("steer left motors %d/%d", h.motors.Left, h.motors.Right)
	}

	h.tape(false, false, false)
	h.run()
	h.expectPath("playing/offense/reload/seeking")

	h.tape(false, false, true)
	h.run()
	h.expectPath("playing/offense/reload/following")

	h.hitSwitch()
	h.expectPath("playing/offense/shoot")
	if h.robot.NumBalls() != 3 {
		t.Errorf("magazine not refilled: %d", h.robot.NumBalls())
	}
	if h.linefollowActive() {
		t.Error("line follower still active after reload")
	}
}

func (h *harness) linefollowActive() bool {
	return h.robot.linefollow.Active()
}

func TestDefendThenAttackResumes(t *testing.T) {
	h := newHarness(t, TeamRed)
	h.post(GameStart)
	h.ticks(30)
	h.tape(false, true, false)
	h.run()
	h.expectPath("playing/offense/reload/following")

	h.post(Defend)
	h.expectPath("playing/defense")
	if h.linefollowActive() {
		t.Error("line follower not exited")
	}

	h.post(Attack)
	h.expectPath("playing/offense/reload/following")
	if h.motors.Left != speedCruise {
		t.Errorf("following entry not rerun on history, motors %d/%d", h.motors.Left, h.motors.Right)
	}
}

func TestGameOverStopsEverything(t *testing.T) {
	h := newHarness(t, TeamRed)
	h.post(GameStart)
	h.ticks(30)
	h.expectPath("playing/offense/reload/seeking")

	h.post(GameOver)
	h.expectPath("finished")
	if h.motors.Running {
		t.Error("motors running after game over")
	}
	if h.outputs.Values[OutputLED] {
		t.Error("team LED still on")
	}

	// a new game starts fresh: empty magazine means reload first
	h.post(GameStart)
	h.expectPath("playing/offense/reload/seeking")
	if h.robot.Shots() != 0 {
		t.Errorf("shot count not reset: %d", h.robot.Shots())
	}
}

func TestAccessors(t *testing.T) {
	h := newHarness(t, TeamBlue)
	if h.robot.TeamColor() != TeamBlue {
		t.Errorf("team = %s", h.robot.TeamColor())
	}
	if h.robot.NumBalls() != 3 {
		t.Errorf("balls = %d", h.robot.NumBalls())
	}
}
