// Package server exposes a ledger.Ledger over HTTP. Every request except the
// info route must carry Epistula headers signed for the daemon's address.
package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"fedauction/internal/auction"
	"fedauction/internal/ledger"
	"fedauction/internal/metrics"
	"fedauction/internal/nonce"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/subtrahend-labs/gobt/boilerplate"
	"go.uber.org/zap"
)

const signerKey = "signer"

// ReplayWindow is how long request uuids are remembered.
const ReplayWindow = 5 * time.Minute

type Server struct {
	echo    *echo.Echo
	ledger  ledger.Ledger
	address string
	owner   string
	seen    *nonce.Seen
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
}

// NewServer serves l as the daemon identified by address. Mutations other than
// join are accepted from owner only. m may be nil.
func NewServer(l ledger.Ledger, address, owner string, log *zap.SugaredLogger, m *metrics.Metrics) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:    e,
		ledger:  l,
		address: address,
		owner:   owner,
		seen:    nonce.NewSeen(ReplayWindow),
		log:     log,
		metrics: m,
	}
	e.Use(s.observe)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET(ledger.RouteInfo, s.info)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	api := s.echo.Group("", s.authenticate)
	api.POST(ledger.RouteDeploy, s.deploy, s.ownerOnly)
	api.POST(ledger.RouteInit, s.initializeTask, s.ownerOnly)
	api.POST(ledger.RouteJoin, s.join)
	api.POST(ledger.RouteStart, s.startTask, s.ownerOnly)
	api.POST(ledger.RouteScores, s.submitScores, s.ownerOnly)
	api.POST(ledger.RouteAuction, s.reverseAuction, s.ownerOnly)
	api.POST(ledger.RouteDistribute, s.distribute, s.ownerOnly)
	api.POST(ledger.RouteVerify, s.verify)
	api.POST(ledger.RouteNext, s.nextRound, s.ownerOnly)

	api.GET(ledger.RouteRound, s.round)
	api.GET(ledger.RouteScores+"/:round", s.scoreMatrix)
	api.GET(ledger.RouteCommittee, s.committee)
	api.GET(ledger.RouteWorkers, s.workerScores)
	api.GET(ledger.RouteBalances, s.balances)
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		status := c.Response().Status
		if s.metrics != nil {
			s.metrics.LedgerRequests.WithLabelValues(c.Path(), strconv.Itoa(status)).Inc()
		}
		s.log.Debugw("Ledger request",
			"method", c.Request().Method,
			"path", c.Path(),
			"status", status,
			"signer", c.Get(signerKey),
			"duration", time.Since(start).String(),
		)
		return err
	}
}

func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return s.fail(c, fmt.Errorf("%w: failed reading body", ledger.ErrBadRequest))
		}
		req.Body = io.NopCloser(bytes.NewReader(body))

		signedBy := req.Header.Get("Epistula-Signed-By")
		sig := req.Header.Get("Epistula-Request-Signature")
		uuid := req.Header.Get("Epistula-Uuid")
		timestamp := req.Header.Get("Epistula-Timestamp")
		signedFor := req.Header.Get("Epistula-Signed-For")

		if signedBy == "" || sig == "" || uuid == "" || timestamp == "" {
			return s.fail(c, ledger.ErrUnauthorized)
		}
		if signedFor != s.address {
			return s.fail(c, ledger.ErrUnauthorized)
		}
		err = boilerplate.VerifyEpistulaHeaders(
			s.address,
			sig,
			body,
			timestamp,
			uuid,
			signedFor,
			signedBy,
		)
		if err != nil {
			s.log.Warnw("Rejected request signature", "signer", signedBy, "error", err)
			return s.fail(c, ledger.ErrUnauthorized)
		}
		if !s.seen.Check(uuid) {
			s.log.Warnw("Rejected replayed request", "signer", signedBy, "uuid", uuid)
			return s.fail(c, ledger.ErrUnauthorized)
		}
		c.Set(signerKey, signedBy)
		return next(c)
	}
}

func (s *Server) ownerOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if signer(c) != s.owner {
			return s.fail(c, ledger.ErrNotOwner)
		}
		return next(c)
	}
}

func signer(c echo.Context) string {
	v, _ := c.Get(signerKey).(string)
	return v
}

// fail writes err as an ErrorResponse with a status derived from its code.
func (s *Server) fail(c echo.Context, err error) error {
	code := ledger.Code(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		s.log.Errorw("Ledger request failed", "path", c.Path(), "error", err)
	}
	return c.JSON(status, ledger.ErrorResponse{Error: err.Error(), Code: code})
}

func statusFor(code string) int {
	switch code {
	case "unauthorized":
		return http.StatusUnauthorized
	case "not_owner":
		return http.StatusForbidden
	case "unknown_worker":
		return http.StatusNotFound
	case "bad_request", "invalid_params", "invalid_scores", "invalid_request", "vector_length", "self_score",
		"invalid_score", "unknown_rule", "round_overflow", "no_candidates":
		return http.StatusBadRequest
	case "internal":
		return http.StatusInternalServerError
	}
	return http.StatusConflict
}

func (s *Server) bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return s.fail(c, ledger.ErrBadRequest)
	}
	return nil
}

func (s *Server) info(c echo.Context) error {
	return c.JSON(http.StatusOK, ledger.InfoResponse{Address: s.address, Owner: s.owner})
}

func (s *Server) deploy(c echo.Context) error {
	id, err := s.ledger.Deploy(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, ledger.DeployResponse{ID: id})
}

func (s *Server) initializeTask(c echo.Context) error {
	var p ledger.TaskParams
	if err := s.bind(c, &p); err != nil {
		return err
	}
	if err := s.ledger.InitializeTask(c.Request().Context(), p); err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) join(c echo.Context) error {
	var req ledger.JoinRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	// workers register themselves
	if req.Address != signer(c) {
		return s.fail(c, ledger.ErrUnauthorized)
	}
	if err := s.ledger.Join(c.Request().Context(), req.Address); err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) startTask(c echo.Context) error {
	n, err := s.ledger.StartTask(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, ledger.StartResponse{Workers: n})
}

func (s *Server) submitScores(c echo.Context) error {
	var req ledger.ScoresRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	if err := s.ledger.SubmitScores(c.Request().Context(), req.Round, req.Evaluator, req.Scores); err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) scoreMatrix(c echo.Context) error {
	round, err := strconv.ParseUint(c.Param("round"), 10, 64)
	if err != nil {
		return s.fail(c, fmt.Errorf("%w: round must be an unsigned integer", ledger.ErrBadRequest))
	}
	rows, err := s.ledger.ScoreMatrix(c.Request().Context(), round)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, ledger.ScoreMatrixResponse{Round: round, Rows: rows})
}

func (s *Server) reverseAuction(c echo.Context) error {
	var req auction.Request
	if err := s.bind(c, &req); err != nil {
		return err
	}
	if err := s.ledger.ReverseAuction(c.Request().Context(), req); err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) workerScores(c echo.Context) error {
	entries, err := s.ledger.WorkerScores(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, ledger.EntriesResponse{Entries: entries})
}

func (s *Server) committee(c echo.Context) error {
	entries, err := s.ledger.Committee(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, ledger.EntriesResponse{Entries: entries})
}

func (s *Server) distribute(c echo.Context) error {
	allocs, err := s.ledger.DistributeRewards(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, ledger.DistributeResponse{Allocations: allocs})
}

func (s *Server) verify(c echo.Context) error {
	var req ledger.VerifyRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	ok, err := s.ledger.VerifyRound(c.Request().Context(), req.Hash)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, ledger.VerifyResponse{Match: ok})
}

func (s *Server) nextRound(c echo.Context) error {
	round, err := s.ledger.NextRound(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, ledger.RoundResponse{Round: round})
}

func (s *Server) round(c echo.Context) error {
	round, err := s.ledger.Round(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, ledger.RoundResponse{Round: round})
}

func (s *Server) balances(c echo.Context) error {
	b, err := s.ledger.Balances(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, ledger.BalancesResponse{Balances: b})
}
