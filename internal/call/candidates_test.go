package call

import (
	"fmt"
	"slices"
	"testing"

	"github.com/1ureka/telecall/internal/protocol"
)

func cand(name string) protocol.Candidate {
	return protocol.Candidate{Candidate: name}
}

func TestCandidateQueue(t *testing.T) {
	p := newFakePeer("p", 0)
	var q candidateQueue

	if !q.offer(p, cand("a")) || !q.offer(p, cand("b")) {
		t.Fatal("candidates before the remote description should be queued")
	}
	if q.len() != 2 {
		t.Fatalf("queue length: got %d, want 2", q.len())
	}

	if err := p.SetRemoteDescription(protocol.Description{Type: protocol.SDPOffer, SDP: "fake:r:"}); err != nil {
		t.Fatal(err)
	}
	if n := q.drain(p); n != 2 {
		t.Errorf("drain: got %d, want 2", n)
	}
	if n := q.drain(p); n != 0 {
		t.Errorf("second drain: got %d, want 0", n)
	}

	if q.offer(p, cand("c")) {
		t.Error("candidate after the remote description was queued")
	}

	applied, early, _, _, _ := p.snapshot()
	if early != 0 {
		t.Errorf("%d candidates applied early", early)
	}
	if got := candidateNames(applied); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("applied %v", got)
	}
}

// TestCandidateQueueInterleavings runs every placement of the remote
// description among up to five arrivals, with extra drains at any subset of
// positions (before the first arrival, before the description, repeated
// after it). Every candidate is applied once, in arrival order, and none
// before the description.
func TestCandidateQueueInterleavings(t *testing.T) {
	for n := 0; n <= 5; n++ {
		for setAt := 0; setAt <= n; setAt++ {
			for mask := 0; mask < 1<<(n+1); mask++ {
				p := newFakePeer("p", 0)
				var q candidateQueue
				var want []string
				queued := 0

				for i := 0; i <= n; i++ {
					if mask&(1<<i) != 0 {
						q.drain(p)
					}
					if i == setAt {
						if err := p.SetRemoteDescription(protocol.Description{Type: protocol.SDPOffer, SDP: "fake:r:"}); err != nil {
							t.Fatal(err)
						}
						if got := q.drain(p); got != queued {
							t.Fatalf("n=%d set=%d mask=%b: drain applied %d, want %d", n, setAt, mask, got, queued)
						}
					}
					if i < n {
						name := fmt.Sprintf("c%d", i)
						want = append(want, name)
						if q.offer(p, cand(name)) {
							queued++
						}
					}
				}
				if extra := q.drain(p); extra != 0 {
					t.Fatalf("drain after the last arrival applied %d", extra)
				}

				applied, early, _, _, _ := p.snapshot()
				if early != 0 {
					t.Fatalf("n=%d set=%d mask=%b: %d applied early", n, setAt, mask, early)
				}
				if got := candidateNames(applied); !slices.Equal(got, want) {
					t.Fatalf("n=%d set=%d mask=%b: applied %v, want %v", n, setAt, mask, got, want)
				}
				if queued != setAt || q.len() != 0 {
					t.Fatalf("n=%d set=%d mask=%b: queued %d, left %d", n, setAt, mask, queued, q.len())
				}
			}
		}
	}
}
