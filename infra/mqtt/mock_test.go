package mqtt

import (
	"errors"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type publishCall struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// mockClient implements pahoClient for tests
type mockClient struct {
	mu          sync.Mutex
	opts        *paho.ClientOptions
	open        bool
	connects    int
	connectErr  error
	published   []publishCall
	publishErrs []error
	hang        bool          // publish tokens never complete
	gate        chan struct{} // when set, Connect blocks until it is closed
}

func newMockClient() *mockClient { return &mockClient{open: true} }

func (m *mockClient) IsConnected() bool { return m.IsConnectionOpen() }
func (m *mockClient) IsConnectionOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}
func (m *mockClient) Connect() paho.Token {
	m.mu.Lock()
	m.connects++
	gate := m.gate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}
	m.mu.Lock()
	err := m.connectErr
	if err == nil {
		m.open = true
	}
	m.mu.Unlock()
	if err == nil && m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(nil)
	}
	return &dummyToken{err: err}
}
func (m *mockClient) Disconnect(uint) {
	m.mu.Lock()
	m.open = false
	m.mu.Unlock()
}
func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = p
	case string:
		b = []byte(p)
	}
	m.published = append(m.published, publishCall{topic, qos, retained, b})
	if m.hang {
		return &dummyToken{hang: true}
	}
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}

func (m *mockClient) calls() []publishCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]publishCall(nil), m.published...)
}

func (m *mockClient) callsOn(prefix string) []publishCall {
	var out []publishCall
	for _, c := range m.calls() {
		if len(c.topic) >= len(prefix) && c.topic[:len(prefix)] == prefix {
			out = append(out, c)
		}
	}
	return out
}

func (m *mockClient) connectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

func (m *mockClient) reset() {
	m.mu.Lock()
	m.published = nil
	m.mu.Unlock()
}

type dummyToken struct {
	err  error
	hang bool
}

func (d dummyToken) Wait() bool { return !d.hang }
func (d dummyToken) WaitTimeout(t time.Duration) bool {
	if d.hang {
		time.Sleep(t)
		return false
	}
	return true
}
func (d dummyToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !d.hang {
		close(ch)
	}
	return ch
}
func (d dummyToken) Error() error { return d.err }

var errNetFail = errors.New("net fail")

// withMock swaps the client factory for the duration of a test.
func withMock(t interface{ Cleanup(func()) }, mc *mockClient) {
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() {
		newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) }
	})
}
