package feed

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastReachesTCPClient(t *testing.T) {
	hub := NewHub()
	client, server := net.Pipe()
	defer client.Close()
	hub.Add(server)

	got := make(chan CirculationEvent, 1)
	go func() {
		sc := bufio.NewScanner(client)
		if sc.Scan() {
			var ev CirculationEvent
			if json.Unmarshal(sc.Bytes(), &ev) == nil {
				got <- ev
			}
		}
	}()

	hub.BroadcastJSON(CirculationEvent{
		Type:            EventLoanCreated,
		LoanID:          "l-1",
		BookID:          "b-1",
		BorrowerName:    "Ravi",
		AvailableCopies: 2,
		At:              time.Now().UTC(),
	})

	select {
	case ev := <-got:
		assert.Equal(t, EventLoanCreated, ev.Type)
		assert.Equal(t, "b-1", ev.BookID)
		assert.Equal(t, 2, ev.AvailableCopies)
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast never reached the client")
	}
}

func TestBroadcastDropsDeadClient(t *testing.T) {
	hub := NewHub()
	client, server := net.Pipe()
	hub.Add(server)
	assert.Equal(t, 1, hub.Stats().TCPClients)

	// peer hangs up; next broadcast must evict the connection rather
	// than keep a dead subscriber around
	require.NoError(t, client.Close())
	hub.BroadcastJSON(CirculationEvent{Type: EventLoanReturned, BookID: "b-1"})

	assert.Zero(t, hub.Stats().TCPClients)
}

func TestWelcomeNamesTransport(t *testing.T) {
	hub := NewHub()
	client, server := net.Pipe()
	defer client.Close()

	got := make(chan WelcomeEvent, 1)
	go func() {
		sc := bufio.NewScanner(client)
		if sc.Scan() {
			var ev WelcomeEvent
			if json.Unmarshal(sc.Bytes(), &ev) == nil {
				got <- ev
			}
		}
	}()

	hub.Welcome(server)

	select {
	case ev := <-got:
		assert.Equal(t, "welcome", ev.Type)
		assert.Equal(t, "tcp", ev.Transport)
	case <-time.After(2 * time.Second):
		t.Fatal("welcome never reached the client")
	}
}

func TestServerCloseStopsRun(t *testing.T) {
	hub := NewHub()
	srv := NewServer("127.0.0.1:0", hub)

	done := make(chan error, 1)
	go func() { done <- srv.Run() }()

	require.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return srv.ln != nil
	}, 2*time.Second, 10*time.Millisecond, "listener never came up")

	require.NoError(t, srv.Close())

	select {
	case err := <-done:
		assert.NoError(t, err, "Run must exit cleanly once the listener is closed")
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after Close")
	}
}

func TestCloseBeforeRunIsHarmless(t *testing.T) {
	srv := NewServer("127.0.0.1:0", NewHub())
	assert.NoError(t, srv.Close())
}
