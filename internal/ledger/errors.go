package ledger

import (
	"errors"
	"fmt"
	"strings"

	"fedauction/internal/auction"
	"fedauction/internal/commitment"
	"fedauction/internal/scoring"
)

var (
	ErrNotDeployed        = errors.New("ledger: contract not deployed")
	ErrAlreadyDeployed    = errors.New("ledger: contract already deployed")
	ErrNotInitialized     = errors.New("ledger: task not initialized")
	ErrAlreadyInitialized = errors.New("ledger: task already initialized")
	ErrInvalidParams      = errors.New("ledger: invalid task parameters")
	ErrTaskStarted        = errors.New("ledger: task already started")
	ErrNotStarted         = errors.New("ledger: task not started")
	ErrTaskFinished       = errors.New("ledger: task finished")
	ErrAlreadyJoined      = errors.New("ledger: worker already joined")
	ErrNoWorkers          = errors.New("ledger: no workers joined")
	ErrUnknownWorker      = errors.New("ledger: unknown worker")
	ErrWrongRound         = errors.New("ledger: wrong round")
	ErrDuplicateScores    = errors.New("ledger: scores already submitted")
	ErrInvalidScores      = errors.New("ledger: invalid score vector")
	ErrAuctionClosed      = errors.New("ledger: auction already held this round")
	ErrNoAuction          = errors.New("ledger: no auction held this round")
	ErrNotDistributed     = errors.New("ledger: rewards not distributed this round")
	ErrAlreadyDistributed = errors.New("ledger: rewards already distributed this round")
	ErrNotOwner           = errors.New("ledger: caller is not the task owner")
	ErrUnauthorized       = errors.New("ledger: request signature rejected")
	ErrBadRequest         = errors.New("ledger: malformed request")
	ErrInternal           = errors.New("ledger: internal error")
)

var codes = []struct {
	code string
	err  error
}{
	{"not_deployed", ErrNotDeployed},
	{"already_deployed", ErrAlreadyDeployed},
	{"not_initialized", ErrNotInitialized},
	{"already_initialized", ErrAlreadyInitialized},
	{"invalid_params", ErrInvalidParams},
	{"task_started", ErrTaskStarted},
	{"not_started", ErrNotStarted},
	{"task_finished", ErrTaskFinished},
	{"already_joined", ErrAlreadyJoined},
	{"no_workers", ErrNoWorkers},
	{"unknown_worker", ErrUnknownWorker},
	{"wrong_round", ErrWrongRound},
	{"duplicate_scores", ErrDuplicateScores},
	{"invalid_scores", ErrInvalidScores},
	{"auction_closed", ErrAuctionClosed},
	{"no_auction", ErrNoAuction},
	{"not_distributed", ErrNotDistributed},
	{"already_distributed", ErrAlreadyDistributed},
	{"not_owner", ErrNotOwner},
	{"unauthorized", ErrUnauthorized},
	{"bad_request", ErrBadRequest},
	{"no_candidates", auction.ErrNoCandidates},
	{"invalid_request", auction.ErrInvalidRequest},
	{"budget_too_large", auction.ErrBudgetTooLarge},
	{"unknown_rule", auction.ErrUnknownRule},
	{"insufficient_pool", auction.ErrInsufficientPool},
	{"round_overflow", commitment.ErrRoundOverflow},
	{"vector_length", scoring.ErrVectorLength},
	{"self_score", scoring.ErrSelfScore},
	{"invalid_score", scoring.ErrInvalidScore},
}

// Code names the first known sentinel err wraps, "internal" otherwise.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// FromCode rebuilds an error received over the wire so errors.Is matches the
// sentinel the remote side returned.
func FromCode(code, msg string) error {
	for _, c := range codes {
		if c.code == code {
			msg = strings.TrimPrefix(msg, c.err.Error())
			msg = strings.TrimPrefix(msg, ": ")
			if msg == "" {
				return c.err
			}
			return fmt.Errorf("%w: %s", c.err, msg)
		}
	}
	return fmt.Errorf("%w: %s", ErrInternal, msg)
}
