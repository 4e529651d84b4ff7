package quorum

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultPerMemberTimeout is the default timeout for each member call.
	DefaultPerMemberTimeout = 2 * time.Second
)

// Result represents the result of a quorum gather.
type Result struct {
	Success      bool
	Acks         int
	Required     int
	Members      int
	Responded    []string
	ErrorMessage string
}

// MemberFunc performs a call against a single member.
type MemberFunc func(ctx context.Context, memberID string) error

// Gather fans out fn to all members in parallel and succeeds when at least
// required members returned without error. required <= 0 means all members.
// Each call is bounded by perMember (DefaultPerMemberTimeout when zero).
func Gather(ctx context.Context, members []string, required int, perMember time.Duration, fn MemberFunc) Result {
	if len(members) == 0 {
		return Result{
			Success:      false,
			ErrorMessage: "no members provided",
		}
	}

	if required <= 0 {
		required = len(members)
	}

	if required > len(members) {
		return Result{
			Success:      false,
			ErrorMessage: fmt.Sprintf("required=%d exceeds member count=%d", required, len(members)),
		}
	}

	if perMember <= 0 {
		perMember = DefaultPerMemberTimeout
	}

	var (
		mu        sync.Mutex
		acks      int
		responded []string
		errors    []error
		wg        sync.WaitGroup
	)

	memberCtx, cancel := context.WithTimeout(ctx, perMember)
	defer cancel()

	for _, memberID := range members {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()

			err := fn(memberCtx, id)
			mu.Lock()
			defer mu.Unlock()

			if err == nil {
				acks++
				responded = append(responded, id)
			} else {
				errors = append(errors, fmt.Errorf("member %s: %w", id, err))
			}
		}(memberID)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		mu.Lock()
		defer mu.Unlock()
		return Result{
			Success:      false,
			Acks:         acks,
			Required:     required,
			Members:      len(members),
			Responded:    append([]string(nil), responded...),
			ErrorMessage: fmt.Sprintf("context cancelled: %v", ctx.Err()),
		}
	}

	mu.Lock()
	defer mu.Unlock()

	if acks >= required {
		return Result{
			Success:   true,
			Acks:      acks,
			Required:  required,
			Members:   len(members),
			Responded: responded,
		}
	}

	errMsg := fmt.Sprintf("quorum not met: acks=%d required=%d members=%d", acks, required, len(members))
	if len(errors) > 0 {
		errMsg += fmt.Sprintf(" errors=%v", errors[:min(3, len(errors))])
	}

	return Result{
		Success:      false,
		Acks:         acks,
		Required:     required,
		Members:      len(members),
		Responded:    responded,
		ErrorMessage: errMsg,
	}
}
