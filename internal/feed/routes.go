package feed

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/steveyegge/parkd/internal/db"
	"github.com/steveyegge/parkd/internal/errs"
	"github.com/steveyegge/parkd/internal/geocode"
	"github.com/steveyegge/parkd/internal/orchestrator"
	"github.com/steveyegge/parkd/internal/query"
	"github.com/steveyegge/parkd/internal/reachability"
	"github.com/steveyegge/parkd/internal/reconcile"
	"github.com/steveyegge/parkd/internal/schema"
)

// LotLoader is the orchestrator surface the feed needs.
type LotLoader interface {
	LoadLots(ctx context.Context) (*orchestrator.Result, error)
	Refresh(ctx context.Context) (*orchestrator.Result, error)
}

// Users resolves the signed-in user.
type Users interface {
	RequireUserID() (string, error)
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Lots       LotLoader
	Store      db.Store
	Reconciler reconcile.Reconciler
	Users      Users
	Searcher   *query.Searcher
	Network    reachability.Observer
}

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET("/health", s.health)
	e.GET("/ws", echo.WrapHandler(http.HandlerFunc(s.handleWebSocket)))

	e.GET("/lots", s.listLots)
	e.POST("/lots/refresh", s.refreshLots)
	e.GET("/spots", listSpots)

	e.GET("/favorites", s.listFavorites)
	e.POST("/favorites/:lot/toggle", s.toggleFavorite)

	e.GET("/reservations", s.listReservations)
	e.POST("/reservations", s.createReservation)
	e.POST("/reservations/:id/cancel", s.cancelReservation)
	e.POST("/reservations/:id/complete", s.completeReservation)

	return e
}

func (s *Server) health(c echo.Context) error {
	body := echo.Map{"status": "ok", "clients": s.ClientCount()}
	if s.deps.Network != nil {
		body["network"] = s.deps.Network.Current()
	}
	if s.deps.Store != nil {
		if counts, err := s.deps.Store.CountsContext(c.Request().Context()); err == nil {
			body["cache"] = counts
		} else {
			body["cache_error"] = errs.UserMessage(err)
		}
	}
	return c.JSON(http.StatusOK, body)
}

type lotsResponse struct {
	Lots        []*schema.Lot       `json:"lots"`
	Source      orchestrator.Source `json:"source"`
	Offline     bool                `json:"offline"`
	CachedAt    *time.Time          `json:"cached_at,omitempty"`
	Warning     string              `json:"warning,omitempty"`
	Suggestions []geocode.Candidate `json:"suggestions,omitempty"`
}

func (s *Server) listLots(c echo.Context) error {
	ctx := c.Request().Context()

	params, err := s.queryParams(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	res, err := s.deps.Lots.LoadLots(ctx)
	if err != nil {
		return errorJSON(c, err)
	}
	return s.respondLots(c, res, params)
}

func (s *Server) refreshLots(c echo.Context) error {
	res, err := s.deps.Lots.Refresh(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return s.respondLots(c, res, query.Params{})
}

func (s *Server) respondLots(c echo.Context, res *orchestrator.Result, params query.Params) error {
	ctx := c.Request().Context()
	out := lotsResponse{Source: res.Source, Offline: res.Offline, CachedAt: res.CachedAt}
	if res.RefreshErr != nil {
		out.Warning = errs.UserMessage(res.RefreshErr)
	}

	if s.deps.Searcher != nil && params.Search != "" {
		if err := s.deps.Searcher.Update(ctx, params.Search, res.Lots); err != nil {
			if errs.Is(err, query.ErrSuperseded) {
				return c.JSON(http.StatusConflict, echo.Map{"error": "superseded by a newer search"})
			}
			out.Warning = errs.UserMessage(err)
		}
		out.Suggestions = s.deps.Searcher.Suggestions()
		out.Lots = s.deps.Searcher.Apply(res.Lots, params)
	} else {
		out.Lots = query.Apply(res.Lots, params)
	}
	return c.JSON(http.StatusOK, out)
}

// queryParams reads q, sort, the filter flags, lat/lon and, for the
// favorites filter, the signed-in user's favorite set.
func (s *Server) queryParams(c echo.Context) (query.Params, error) {
	var p query.Params
	p.Search = strings.TrimSpace(c.QueryParam("q"))

	sortKey, err := query.ParseSortKey(c.QueryParam("sort"))
	if err != nil {
		return p, err
	}
	p.Sort = sortKey

	p.Filters = query.Filters{
		EV:        flag(c, "ev"),
		Covered:   flag(c, "covered"),
		CCTV:      flag(c, "cctv"),
		Available: flag(c, "available"),
		Favorites: flag(c, "favorites"),
	}

	if lat, lon := c.QueryParam("lat"), c.QueryParam("lon"); lat != "" || lon != "" {
		loc, err := geocode.ParseCoordinate(lat + "," + lon)
		if err != nil {
			return p, err
		}
		p.Location = &loc
	}

	if p.Filters.Favorites {
		p.FavoriteIDs = map[string]struct{}{}
		if userID, err := s.deps.Users.RequireUserID(); err == nil {
			ids, err := s.deps.Store.ListFavoritesContext(c.Request().Context(), userID)
			if err == nil {
				p.FavoriteIDs = query.FavoriteSet(ids)
			}
		}
	}
	return p, nil
}

func flag(c echo.Context, name string) bool {
	v, err := strconv.ParseBool(c.QueryParam(name))
	return err == nil && v
}

func listSpots(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"spots": schema.Spots()})
}

func (s *Server) listFavorites(c echo.Context) error {
	userID, err := s.deps.Users.RequireUserID()
	if err != nil {
		return errorJSON(c, err)
	}
	ids, err := s.deps.Store.ListFavoritesContext(c.Request().Context(), userID)
	if err != nil {
		return errorJSON(c, err)
	}
	if ids == nil {
		ids = []string{}
	}
	return c.JSON(http.StatusOK, echo.Map{"favorites": ids})
}

func (s *Server) toggleFavorite(c echo.Context) error {
	userID, err := s.deps.Users.RequireUserID()
	if err != nil {
		return errorJSON(c, err)
	}
	lotID := c.Param("lot")
	on, err := s.deps.Reconciler.ToggleFavorite(c.Request().Context(), userID, lotID)
	if err != nil {
		return c.JSON(statusOf(err), echo.Map{"error": errs.UserMessage(err), "lot_id": lotID, "favorite": on})
	}
	return c.JSON(http.StatusOK, echo.Map{"lot_id": lotID, "favorite": on})
}

func (s *Server) listReservations(c echo.Context) error {
	userID, err := s.deps.Users.RequireUserID()
	if err != nil {
		return errorJSON(c, err)
	}
	rs, err := s.deps.Store.ListReservationsContext(c.Request().Context(), userID)
	if err != nil {
		return errorJSON(c, err)
	}
	if rs == nil {
		rs = []*schema.Reservation{}
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": rs})
}

type createReservationRequest struct {
	SpotID          string     `json:"spot_id"`
	StartTime       *time.Time `json:"start_time"`
	DurationMinutes int        `json:"duration_minutes"`
}

func (s *Server) createReservation(c echo.Context) error {
	userID, err := s.deps.Users.RequireUserID()
	if err != nil {
		return errorJSON(c, err)
	}

	var req createReservationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid JSON"})
	}
	if req.SpotID == "" || req.DurationMinutes <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "spot_id and a positive duration_minutes are required"})
	}
	start := time.Now()
	if req.StartTime != nil {
		start = *req.StartTime
	}

	res, err := s.deps.Reconciler.CreateReservation(c.Request().Context(), userID, req.SpotID, start, time.Duration(req.DurationMinutes)*time.Minute)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (s *Server) cancelReservation(c echo.Context) error {
	return s.finishReservation(c, s.deps.Reconciler.CancelReservation)
}

func (s *Server) completeReservation(c echo.Context) error {
	return s.finishReservation(c, s.deps.Reconciler.CompleteReservation)
}

func (s *Server) finishReservation(c echo.Context, fn func(ctx context.Context, userID, id string) (*schema.Reservation, error)) error {
	userID, err := s.deps.Users.RequireUserID()
	if err != nil {
		return errorJSON(c, err)
	}
	res, err := fn(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func errorJSON(c echo.Context, err error) error {
	return c.JSON(statusOf(err), echo.Map{"error": errs.UserMessage(err), "kind": errs.KindOf(err)})
}

// statusOf maps an error kind to an HTTP status.
func statusOf(err error) int {
	if errs.Is(err, errs.ErrSpotTaken) {
		return http.StatusConflict
	}
	switch errs.KindOf(err) {
	case errs.KindUnauthorized:
		return http.StatusUnauthorized
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindNetwork, errs.KindStorage, errs.KindNoData:
		return http.StatusServiceUnavailable
	case errs.KindTransport, errs.KindMalformed:
		return http.StatusBadGateway
	}
	return http.StatusBadRequest
}
