package listener

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/actuator/internal/runtime/errors"
	"github.com/drblury/actuator/internal/runtime/registry"
)

// fakeContainer only implements Container and, optionally, Phased.
type fakeContainer struct {
	running  bool
	starts   int
	stops    int
	startErr error
	log      *[]string
	name     string
}

func (f *fakeContainer) IsRunning() bool { return f.running }

func (f *fakeContainer) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	f.running = true
	f.record("start")
	return nil
}

func (f *fakeContainer) Stop(context.Context) error {
	f.stops++
	f.running = false
	f.record("stop")
	return nil
}

func (f *fakeContainer) record(op string) {
	if f.log != nil {
		*f.log = append(*f.log, op+" "+f.name)
	}
}

type phasedContainer struct {
	*fakeContainer
	phase int
	auto  bool
}

func (p phasedContainer) Phase() int        { return p.phase }
func (p phasedContainer) AutoStartup() bool { return p.auto }

func TestParseAction(t *testing.T) {
	a, err := ParseAction("RESTART")
	require.NoError(t, err)
	assert.Equal(t, ActionRestart, a)

	_, err = ParseAction("pause")
	assert.ErrorIs(t, err, errspkg.ErrUnknownAction)
}

func TestDispatchGuardsOnRunningState(t *testing.T) {
	ctx := context.Background()
	f := &fakeContainer{}

	require.NoError(t, Dispatch(ctx, "f", f, ActionStop))
	assert.Equal(t, 0, f.stops)

	require.NoError(t, Dispatch(ctx, "f", f, ActionStart))
	require.NoError(t, Dispatch(ctx, "f", f, ActionStart))
	assert.Equal(t, 1, f.starts)

	require.NoError(t, Dispatch(ctx, "f", f, ActionRestart))
	assert.Equal(t, 1, f.stops)
	assert.Equal(t, 2, f.starts)
	assert.True(t, f.running)

	require.NoError(t, Dispatch(ctx, "f", f, ActionStop))
	require.NoError(t, Dispatch(ctx, "f", f, ActionRestart))
	assert.Equal(t, 2, f.stops, "restart of a stopped container only starts it")
	assert.Equal(t, 3, f.starts)

	assert.ErrorIs(t, Dispatch(ctx, "f", f, Action("pause")), errspkg.ErrUnknownAction)
}

func TestDispatchWrapsStartFailure(t *testing.T) {
	f := &fakeContainer{startErr: assert.AnError}
	err := Dispatch(context.Background(), "orders", f, ActionStart)
	require.ErrorIs(t, err, errspkg.ErrLifecycle)
	assert.ErrorIs(t, err, assert.AnError)

	var le *errspkg.LifecycleError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "start", le.Op)
	assert.Equal(t, "orders", le.Name)
}

func TestStartAllAndStopAllFollowPhases(t *testing.T) {
	var log []string
	reg := registry.New()
	reg.MustRegister("late", phasedContainer{&fakeContainer{name: "late", log: &log}, 10, true})
	reg.MustRegister("plain", &fakeContainer{name: "plain", log: &log})
	reg.MustRegister("early", phasedContainer{&fakeContainer{name: "early", log: &log}, -5, true})
	reg.MustRegister("manual", phasedContainer{&fakeContainer{name: "manual", log: &log}, 0, false})

	require.NoError(t, StartAll(context.Background(), reg))
	assert.Equal(t, []string{"start early", "start plain", "start late"}, log)

	log = log[:0]
	require.NoError(t, StopAll(context.Background(), reg))
	assert.Equal(t, []string{"stop late", "stop plain", "stop early"}, log)
}
