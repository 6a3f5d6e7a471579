package configbinder

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipeflow/pipeflow/net/listener"
	"github.com/pipeflow/pipeflow/pipeline"
	"github.com/pipeflow/pipeflow/pipeline/event"
	"github.com/pipeflow/pipeflow/pipeline/filters/replay"
)

type echoFilter struct{ pipeline.BaseFilter }

func (f *echoFilter) Process(evt event.Event) { f.Emit(evt) }
func (f *echoFilter) Clone() pipeline.Filter  { return &echoFilter{} }

func TestBindListenEchoesData(t *testing.T) {
	s := NewScript()
	s.Listen("127.0.0.1:0", listener.Options{}, func(m *Module) {
		m.Use("print", &echoFilter{})
	})

	bound, err := NewBinder(s).Bind()
	require.NoError(t, err)
	require.Len(t, bound.Listeners, 1)
	defer bound.Listeners[0].Close()

	conn, err := net.Dial("tcp", bound.Listeners[0].Addr())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("hi\n"))
	require.NoError(t, err)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "hi\n", line)
}

func TestBindRejectsJointFilterWithoutTo(t *testing.T) {
	s := NewScript()
	s.Pipeline("broken", func(m *Module) {
		m.UseJoint("mux_queue", func(sub *pipeline.Layout) (pipeline.Filter, error) {
			return &echoFilter{}, nil
		})
	})

	_, err := NewBinder(s).Bind()
	assert.Error(t, err)
}

func TestBindRejectsUnresolvedImport(t *testing.T) {
	s := NewScript()
	s.Import(map[string]string{"local": "other.thing"})

	_, err := NewBinder(s).Bind()
	assert.Error(t, err)
}

func TestBindRejectsDuplicateExport(t *testing.T) {
	s := NewScript()
	s.Export("ns", map[string]any{"a": 1})
	s.Export("ns", map[string]any{"a": 2})

	_, err := NewBinder(s).Bind()
	assert.Error(t, err)
}

func TestBindResolvesForwardReferencedReplayTarget(t *testing.T) {
	s := NewScript()
	s.Listen("127.0.0.1:0", listener.Options{}, func(m *Module) {
		m.Replay(replay.Options{}).To("echo-sub")
	})
	s.Pipeline("echo-sub", func(m *Module) {
		m.Use("print", &echoFilter{})
	})

	bound, err := NewBinder(s).Bind()
	require.NoError(t, err)
	require.Len(t, bound.Listeners, 1)
	bound.Listeners[0].Close()
}

