// Package broker_test drives the broker end to end over real TCP
// connections.
package broker_test

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/nuulab/jobq/pkg/broker"
)

func startBroker(t *testing.T) string {
	t.Helper()

	srv := broker.New(broker.Config{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })

	return ln.Addr().String()
}

// client is a minimal line-protocol test client.
type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *client) send(line string) {
	c.t.Helper()
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		c.t.Fatalf("Write failed: %v", err)
	}
}

func (c *client) recv() map[string]any {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		c.t.Fatalf("Read failed: %v", err)
	}
	var resp map[string]any
	if err := json.Unmarshal(line, &resp); err != nil {
		c.t.Fatalf("Unmarshal failed on %q: %v", line, err)
	}
	return resp
}

func (c *client) do(line string) map[string]any {
	c.t.Helper()
	c.send(line)
	return c.recv()
}

func (c *client) close() {
	c.conn.Close()
}

func TestBroker_PutGet(t *testing.T) {
	addr := startBroker(t)
	c := dial(t, addr)

	resp := c.do(`{"request":"put","queue":"q","job":{"x":1},"pri":10}`)
	if resp["status"] != "ok" {
		t.Fatalf("Expected ok, got %v", resp)
	}
	if resp["id"] != float64(0) {
		t.Errorf("Expected first id 0, got %v", resp["id"])
	}

	resp = c.do(`{"request":"get","queues":["q"]}`)
	if resp["status"] != "ok" {
		t.Fatalf("Expected ok, got %v", resp)
	}
	if resp["pri"] != float64(10) || resp["id"] != float64(0) || resp["queue"] != "q" {
		t.Errorf("Expected pri 10 id 0 queue q, got %v", resp)
	}
	job, _ := json.Marshal(resp["job"])
	if string(job) != `{"x":1}` {
		t.Errorf("Expected payload {\"x\":1}, got %s", job)
	}
}

func TestBroker_PriorityOrder(t *testing.T) {
	addr := startBroker(t)
	c := dial(t, addr)

	c.do(`{"request":"put","queue":"q","job":{},"pri":5}`)
	c.do(`{"request":"put","queue":"q","job":{},"pri":1}`)

	resp := c.do(`{"request":"get","queues":["q"]}`)
	if resp["pri"] != float64(5) {
		t.Errorf("Expected pri 5 first, got %v", resp["pri"])
	}
	resp = c.do(`{"request":"get","queues":["q"]}`)
	if resp["pri"] != float64(1) {
		t.Errorf("Expected pri 1 second, got %v", resp["pri"])
	}
	resp = c.do(`{"request":"get","queues":["q"]}`)
	if resp["status"] != "no-job" {
		t.Errorf("Expected no-job on empty queue, got %v", resp)
	}
}

func TestBroker_MultiQueueSelection(t *testing.T) {
	addr := startBroker(t)
	c := dial(t, addr)

	c.do(`{"request":"put","queue":"a","job":{},"pri":3}`)
	c.do(`{"request":"put","queue":"b","job":{},"pri":7}`)

	resp := c.do(`{"request":"get","queues":["a","b"]}`)
	if resp["pri"] != float64(7) || resp["queue"] != "b" {
		t.Errorf("Expected pri 7 from b, got %v", resp)
	}
}

func TestBroker_WaitWakesOnPut(t *testing.T) {
	addr := startBroker(t)
	c1 := dial(t, addr)
	c2 := dial(t, addr)

	c1.send(`{"request":"get","queues":["q"],"wait":true}`)

	// Give the waiter time to park before the put.
	time.Sleep(100 * time.Millisecond)

	resp := c2.do(`{"request":"put","queue":"q","job":{"n":1},"pri":4}`)
	if resp["status"] != "ok" {
		t.Fatalf("Expected put ok, got %v", resp)
	}

	got := c1.recv()
	if got["status"] != "ok" || got["pri"] != float64(4) {
		t.Fatalf("Expected the waiter to receive the job, got %v", got)
	}

	// The job is taken: a second waiting get must not see it.
	c1.send(`{"request":"get","queues":["q"],"wait":true}`)
	c1.conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, err := c1.r.ReadBytes('\n'); err == nil {
		t.Error("Expected no response while the queue is empty")
	}
}

func TestBroker_DisconnectRequeues(t *testing.T) {
	addr := startBroker(t)
	c1 := dial(t, addr)

	c1.do(`{"request":"put","queue":"q","job":{"k":"v"},"pri":6}`)
	got := c1.do(`{"request":"get","queues":["q"]}`)
	if got["status"] != "ok" {
		t.Fatalf("Expected get ok, got %v", got)
	}
	id := got["id"]

	// Drop the connection without aborting; the broker requeues the job.
	c1.close()

	c2 := dial(t, addr)
	deadline := time.Now().Add(3 * time.Second)
	for {
		resp := c2.do(`{"request":"get","queues":["q"]}`)
		if resp["status"] == "ok" {
			if resp["id"] != id {
				t.Errorf("Expected same id %v back, got %v", id, resp["id"])
			}
			job, _ := json.Marshal(resp["job"])
			if string(job) != `{"k":"v"}` {
				t.Errorf("Expected same payload back, got %s", job)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("Expected the dropped client's job to reappear")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestBroker_AbortWithoutOwnership(t *testing.T) {
	addr := startBroker(t)
	c1 := dial(t, addr)
	c2 := dial(t, addr)

	put := c1.do(`{"request":"put","queue":"q","job":{},"pri":2}`)
	id := int(put["id"].(float64))

	got := c2.do(`{"request":"get","queues":["q"]}`)
	if got["status"] != "ok" {
		t.Fatalf("Expected c2 to take the job, got %v", got)
	}

	// c1 never held the job: abort is an error and leaves it with c2.
	resp := c1.do(mustLine(t, "abort", id))
	if resp["status"] != "error" {
		t.Errorf("Expected error, got %v", resp)
	}

	// Still held: nobody else can take it.
	resp = c1.do(`{"request":"get","queues":["q"]}`)
	if resp["status"] != "no-job" {
		t.Errorf("Expected job to remain with c2, got %v", resp)
	}

	// And c2's own abort still succeeds.
	resp = c2.do(mustLine(t, "abort", id))
	if resp["status"] != "ok" {
		t.Errorf("Expected holder abort ok, got %v", resp)
	}
}

func TestBroker_DeleteWhileHeld(t *testing.T) {
	addr := startBroker(t)
	c1 := dial(t, addr)
	c2 := dial(t, addr)

	put := c1.do(`{"request":"put","queue":"q","job":{},"pri":9}`)
	id := int(put["id"].(float64))

	if got := c1.do(`{"request":"get","queues":["q"]}`); got["status"] != "ok" {
		t.Fatalf("Expected get ok, got %v", got)
	}

	// Delete is authoritative regardless of who holds the job.
	resp := c2.do(mustLine(t, "delete", id))
	if resp["status"] != "ok" {
		t.Errorf("Expected delete ok, got %v", resp)
	}

	// The holder's abort finds nothing.
	resp = c1.do(mustLine(t, "abort", id))
	if resp["status"] != "no-job" {
		t.Errorf("Expected no-job, got %v", resp)
	}

	// And the job never reappears.
	resp = c2.do(mustLine(t, "delete", id))
	if resp["status"] != "no-job" {
		t.Errorf("Expected repeated delete to find nothing, got %v", resp)
	}
	resp = c2.do(`{"request":"get","queues":["q"]}`)
	if resp["status"] != "no-job" {
		t.Errorf("Expected empty queue, got %v", resp)
	}
}

func TestBroker_MalformedLine(t *testing.T) {
	addr := startBroker(t)
	c := dial(t, addr)

	resp := c.do(`not json`)
	if resp["status"] != "error" {
		t.Errorf("Expected error for malformed line, got %v", resp)
	}

	// The connection survives and serves valid requests.
	resp = c.do(`{"request":"put","queue":"q","job":{},"pri":1}`)
	if resp["status"] != "ok" {
		t.Errorf("Expected ok after malformed line, got %v", resp)
	}

	resp = c.do(`{"request":"frobnicate"}`)
	if resp["status"] != "error" {
		t.Errorf("Expected error for unknown request tag, got %v", resp)
	}
}

func TestBroker_SingleWaiterWinsPerPut(t *testing.T) {
	addr := startBroker(t)

	waiters := make([]*client, 3)
	for i := range waiters {
		waiters[i] = dial(t, addr)
		waiters[i].send(`{"request":"get","queues":["q"],"wait":true}`)
	}
	time.Sleep(100 * time.Millisecond)

	put := dial(t, addr)
	put.do(`{"request":"put","queue":"q","job":{},"pri":1}`)

	// Exactly one waiter receives the job; the others stay parked.
	received := 0
	for _, w := range waiters {
		w.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		line, err := w.r.ReadBytes('\n')
		if err != nil {
			continue
		}
		var resp map[string]any
		if err := json.Unmarshal(line, &resp); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if resp["status"] == "ok" {
			received++
		}
	}
	if received != 1 {
		t.Errorf("Expected exactly one waiter to win, got %d", received)
	}
}

func mustLine(t *testing.T, request string, id int) string {
	t.Helper()
	data, err := json.Marshal(map[string]any{"request": request, "id": id})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	return string(data)
}
