package call

import (
	"github.com/1ureka/telecall/internal/protocol"
	"github.com/1ureka/telecall/internal/util"
)

// candidateQueue holds remote candidates that arrived before the remote
// description. It is owned by one attempt and guarded by the controller lock.
type candidateQueue struct {
	pending []protocol.Candidate
}

// offer applies c immediately when the peer has a remote description and
// queues it otherwise. It reports whether c was queued.
func (q *candidateQueue) offer(p Peer, c protocol.Candidate) bool {
	if !p.HasRemoteDescription() {
		q.pending = append(q.pending, c)
		util.Stats.AddCandidateQueued()
		return true
	}
	apply(p, c)
	return false
}

// drain applies queued candidates in arrival order and empties the queue.
// Without a remote description it keeps the queue; a second drain applies
// nothing.
func (q *candidateQueue) drain(p Peer) int {
	if !p.HasRemoteDescription() {
		return 0
	}
	pending := q.pending
	q.pending = nil
	for _, c := range pending {
		apply(p, c)
	}
	return len(pending)
}

func (q *candidateQueue) len() int { return len(q.pending) }

// apply hands c to the peer. Failures are logged; one bad candidate does
// not end the call.
func apply(p Peer, c protocol.Candidate) {
	if err := p.AddICECandidate(c); err != nil {
		util.LogWarning("failed to add ICE candidate: %v", err)
		return
	}
	util.Stats.AddCandidateApplied()
}
