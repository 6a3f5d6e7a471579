package listener

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipeflow/pipeflow/pipeline"
	"github.com/pipeflow/pipeflow/pipeline/event"
)

type echoFilter struct{ pipeline.BaseFilter }

func (f *echoFilter) Process(evt event.Event) { f.Emit(evt) }
func (f *echoFilter) Clone() pipeline.Filter   { return &echoFilter{} }

func echoLayout() *pipeline.Layout {
	return pipeline.NewLayout("echo", pipeline.Listen, []pipeline.Filter{&echoFilter{}})
}

func TestListenerEchoesData(t *testing.T) {
	l, err := New("127.0.0.1:0", echoLayout(), Options{})
	require.NoError(t, err)
	defer l.Close()

	conn, err := net.Dial("tcp", l.Addr())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("hello\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "hello\n", line)
}

func TestListenerAdmissionControl(t *testing.T) {
	l, err := New("127.0.0.1:0", echoLayout(), Options{MaxConnections: 1})
	require.NoError(t, err)
	defer l.Close()

	c1, err := net.Dial("tcp", l.Addr())
	require.NoError(t, err)
	defer c1.Close()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, l.OpenConnections())

	c1.Close()
	time.Sleep(50 * time.Millisecond)

	c2, err := net.Dial("tcp", l.Addr())
	require.NoError(t, err)
	defer c2.Close()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, l.OpenConnections())
}

func TestFindReturnsRunningListener(t *testing.T) {
	l, err := New("127.0.0.1:0", echoLayout(), Options{})
	require.NoError(t, err)
	defer l.Close()

	assert.Same(t, l, Find(l.Addr()))
	l.Close()
	assert.Nil(t, Find(l.Addr()))
}
