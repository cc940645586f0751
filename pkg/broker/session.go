package broker

import (
	"bufio"
	"log"
	"net"

	"github.com/nuulab/jobq/pkg/events"
	"github.com/nuulab/jobq/pkg/protocol"
	"github.com/nuulab/jobq/pkg/queue"
)

// session is the per-connection context: the jobs this client currently
// holds, keyed by id with their origin queue. The ledger is touched only by
// its own goroutine, so it needs no locking.
type session struct {
	server *Server
	state  *queue.State
	ledger map[uint32]string
}

// handleConn runs one connection to completion: read a line, dispatch,
// write the reply, repeat until EOF or I/O error. Whatever the exit path,
// every job still on the ledger goes back to its origin queue.
func (s *Server) handleConn(conn net.Conn) {
	s.metrics.ConnectionsServed.Inc()
	s.metrics.ConnectionsActive.Inc()
	defer s.metrics.ConnectionsActive.Dec()

	sess := &session{
		server: s,
		state:  s.state,
		ledger: make(map[uint32]string),
	}
	defer sess.drain()
	defer conn.Close()

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	for {
		line, err := r.ReadBytes('\n')
		if err != nil {
			return
		}
		if s.cfg.Verbose {
			log.Printf("broker: %s <- %s", conn.RemoteAddr(), line)
		}

		resp := sess.dispatch(line)
		data, err := resp.Encode()
		if err != nil {
			log.Printf("broker: encoding response: %v", err)
			return
		}
		if s.cfg.Verbose {
			log.Printf("broker: %s -> %s", conn.RemoteAddr(), data)
		}

		if _, err := w.Write(append(data, '\n')); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

// drain aborts every job the client still holds. Failures are swallowed:
// an id missing from the engine just means someone deleted it while held.
func (sess *session) drain() {
	for id, origin := range sess.ledger {
		if sess.state.Abort(id, origin) {
			sess.server.metrics.JobsRequeued.Inc()
			sess.server.events.Publish(events.Event{
				Type:  events.EventJobRequeued,
				JobID: id,
				Queue: origin,
			})
		}
	}
	sess.ledger = nil
}

// dispatch parses one line and runs the matching handler. A parse failure
// answers with an error status; the connection stays open.
func (sess *session) dispatch(line []byte) protocol.Response {
	req, err := protocol.ParseRequest(line)
	if err != nil {
		sess.server.metrics.BadRequests.Inc()
		return protocol.StatusResponse(protocol.StatusError)
	}

	switch req := req.(type) {
	case protocol.PutRequest:
		return sess.handlePut(req)
	case protocol.GetRequest:
		return sess.handleGet(req)
	case protocol.DeleteRequest:
		return sess.handleDelete(req)
	case protocol.AbortRequest:
		return sess.handleAbort(req)
	}
	return protocol.StatusResponse(protocol.StatusError)
}

func (sess *session) handlePut(req protocol.PutRequest) protocol.Response {
	job := sess.state.Add(req.Queue, req.Pri, req.Job)
	sess.server.metrics.JobsQueued.Inc()
	sess.server.events.Publish(events.Event{
		Type:  events.EventJobQueued,
		JobID: job.ID,
		Queue: req.Queue,
		Pri:   job.Pri,
	})
	return protocol.IDResponse(job.ID)
}

// handleGet takes the best job across the requested queues. With wait set
// and nothing available, the attempt and the notifier registration happen
// under one engine lock hold, then the session parks on the notifier with
// the lock released and retries on wake. Spurious wakes loop back around.
func (sess *session) handleGet(req protocol.GetRequest) protocol.Response {
	if !req.Wait {
		job, origin, ok := sess.state.Take(req.Queues)
		if !ok {
			return protocol.StatusResponse(protocol.StatusNoJob)
		}
		return sess.deliver(job, origin)
	}

	for {
		job, origin, notifier := sess.state.TakeOrNotify(req.Queues)
		if notifier == nil {
			return sess.deliver(job, origin)
		}
		sess.server.metrics.WaitersBlocked.Inc()
		notifier.Wait()
		sess.server.metrics.WaitersBlocked.Dec()
	}
}

func (sess *session) deliver(job queue.Job, origin string) protocol.Response {
	sess.ledger[job.ID] = origin
	sess.server.metrics.JobsDelivered.Inc()
	sess.server.events.Publish(events.Event{
		Type:  events.EventJobDelivered,
		JobID: job.ID,
		Queue: origin,
		Pri:   job.Pri,
	})
	return protocol.JobResponse(job.ID, job.Pri, job.Data, origin)
}

// handleDelete removes the job anywhere in the broker. The requester need
// not hold it; a holder's later abort simply finds nothing.
func (sess *session) handleDelete(req protocol.DeleteRequest) protocol.Response {
	if !sess.state.Delete(req.ID) {
		return protocol.StatusResponse(protocol.StatusNoJob)
	}
	sess.server.metrics.JobsDeleted.Inc()
	sess.server.events.Publish(events.Event{
		Type:  events.EventJobDeleted,
		JobID: req.ID,
	})
	return protocol.StatusResponse(protocol.StatusOK)
}

// handleAbort returns a held job to its origin queue. A client may only
// abort jobs on its own ledger; an id it never held is an error and never
// reaches the engine. A ledger entry whose job was deleted out from under
// us answers no-job, and the stale entry is dropped either way.
func (sess *session) handleAbort(req protocol.AbortRequest) protocol.Response {
	origin, ok := sess.ledger[req.ID]
	if !ok {
		return protocol.StatusResponse(protocol.StatusError)
	}
	delete(sess.ledger, req.ID)

	if !sess.state.Abort(req.ID, origin) {
		return protocol.StatusResponse(protocol.StatusNoJob)
	}
	sess.server.metrics.JobsAborted.Inc()
	sess.server.events.Publish(events.Event{
		Type:  events.EventJobAborted,
		JobID: req.ID,
		Queue: origin,
	})
	return protocol.StatusResponse(protocol.StatusOK)
}
