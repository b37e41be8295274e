package synthesis

import (
	"context"
	"errors"
	"sync"
	"time"
)

type pollResponse struct {
	status *Status
	err    error
}

// fakeProvider replays scripted poll responses and counts calls.
type fakeProvider struct {
	mu sync.Mutex

	validateErr error
	submitErr   error
	handle      Handle

	polls []pollResponse

	validateCalls int
	submitCalls   int
	pollCalls     int
	polledHandles []Handle
	onPoll        func(attempt int)
}

func newFakeProvider(polls ...pollResponse) *fakeProvider {
	return &fakeProvider{handle: "tlk_1", polls: polls}
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Validate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validateCalls++
	return f.validateErr
}

func (f *fakeProvider) Submit(_ context.Context, _ *Request) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.handle, nil
}

func (f *fakeProvider) Poll(_ context.Context, handle Handle) (*Status, error) {
	f.mu.Lock()
	f.pollCalls++
	attempt := f.pollCalls
	f.polledHandles = append(f.polledHandles, handle)
	hook := f.onPoll

	var res pollResponse
	if len(f.polls) == 0 {
		res = pollResponse{err: errors.New("unexpected poll")}
	} else {
		res = f.polls[0]
		if len(f.polls) > 1 {
			f.polls = f.polls[1:]
		}
	}
	f.mu.Unlock()

	if hook != nil {
		hook(attempt)
	}
	return res.status, res.err
}

func processing() pollResponse {
	return pollResponse{status: &Status{State: StatePending, Raw: "processing"}}
}

func done(url string) pollResponse {
	return pollResponse{status: &Status{State: StateDone, ArtifactURL: url, Raw: "done"}}
}

func failed(detail string) pollResponse {
	return pollResponse{status: &Status{State: StateFailed, Detail: detail, Raw: "error"}}
}

func transportFailure() pollResponse {
	return pollResponse{err: Transport(errors.New("connection reset by peer"))}
}

// recordingWait replaces the real delay and keeps the requested durations.
type recordingWait struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingWait) wait(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}
