package ledger

import (
	"fedauction/internal/auction"
	"fedauction/internal/commitment"
	"fedauction/internal/scoring"

	"github.com/shopspring/decimal"
)

// HTTP routes served by the ledger daemon.
const (
	RouteInfo       = "/api/v1/info"
	RouteDeploy     = "/api/v1/deploy"
	RouteInit       = "/api/v1/task/init"
	RouteJoin       = "/api/v1/task/join"
	RouteStart      = "/api/v1/task/start"
	RouteScores     = "/api/v1/scores"
	RouteAuction    = "/api/v1/auction"
	RouteDistribute = "/api/v1/rewards/distribute"
	RouteVerify     = "/api/v1/round/verify"
	RouteNext       = "/api/v1/round/next"
	RouteRound      = "/api/v1/round"
	RouteCommittee  = "/api/v1/committee"
	RouteWorkers    = "/api/v1/workers"
	RouteBalances   = "/api/v1/balances"
)

type InfoResponse struct {
	Address string `json:"address"`
	Owner   string `json:"owner"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type DeployResponse struct {
	ID string `json:"id"`
}

type JoinRequest struct {
	Address string `json:"address"`
}

type StartResponse struct {
	Workers int `json:"workers"`
}

type ScoresRequest struct {
	Round     uint64              `json:"round"`
	Evaluator int                 `json:"evaluator"`
	Scores    scoring.ScoreVector `json:"scores"`
}

type ScoreMatrixResponse struct {
	Round uint64                `json:"round"`
	Rows  []scoring.ScoreVector `json:"rows"`
}

type EntriesResponse struct {
	Entries []auction.Entry `json:"entries"`
}

type DistributeResponse struct {
	Allocations []auction.Allocation `json:"allocations"`
}

type VerifyRequest struct {
	Hash commitment.Hash `json:"hash"`
}

type VerifyResponse struct {
	Match bool `json:"match"`
}

type RoundResponse struct {
	Round uint64 `json:"round"`
}

type BalancesResponse struct {
	Balances map[string]decimal.Decimal `json:"balances"`
}
