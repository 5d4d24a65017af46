package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"leadpool-crm/internal/activity"
	"leadpool-crm/internal/auth"
	"leadpool-crm/internal/config"
	"leadpool-crm/internal/importer"
	"leadpool-crm/internal/leads"
	"leadpool-crm/internal/outreach"
	"leadpool-crm/internal/realtime"
	"leadpool-crm/internal/settings"
	"leadpool-crm/internal/stats"
	"leadpool-crm/internal/users"
	"leadpool-crm/pkg/logger"
	"leadpool-crm/pkg/metrics"
	"leadpool-crm/pkg/phone"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type harness struct {
	router  *gin.Engine
	h       Handlers
	store   *leads.MemoryStore
	acts    *activity.MemoryRepo
	users   *users.MemoryRepo
	feed    *realtime.Feed
	metrics *metrics.Metrics

	adminID, agentID, otherID          string
	adminToken, agentToken, otherToken string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	mgr, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	phones := phone.NewNormalizer("IN")
	hs := &harness{
		store:   leads.NewMemoryStore(),
		acts:    activity.NewMemoryRepo(),
		users:   users.NewMemoryRepo(),
		feed:    realtime.NewFeed(rdb, "test:changes"),
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	actSvc := activity.NewService(hs.acts, leads.NewContactStamper(hs.store))
	leadSvc := leads.NewService(hs.store, actSvc, leads.Options{Notifier: hs.feed, Phones: phones})
	userSvc := users.NewService(hs.users, mgr, phones, users.Bootstrap{})
	settingSvc := settings.NewService(settings.NewMemoryRepo())

	hs.h = Handlers{
		Auth:            mgr,
		Users:           userSvc,
		Leads:           leadSvc,
		Activity:        actSvc,
		Importer:        importer.NewEngine(hs.store, importer.NewMemoryRunRepo(), importer.Options{Phones: phones}),
		Outreach:        outreach.NewService(leadSvc, actSvc, settingSvc),
		Settings:        settingSvc,
		Stats:           stats.NewService(hs.store, actSvc, userSvc),
		Feed:            hs.feed,
		Metrics:         hs.metrics,
		StreamHeartbeat: time.Hour,
	}

	ctx := context.Background()
	mk := func(email, role, ph string) (string, string) {
		u, err := userSvc.Create(ctx, users.CreateInput{Email: email, Name: email, Role: role, Phone: ph})
		require.NoError(t, err)
		pair, err := mgr.IssuePair(time.Now(), u.ID, u.Role)
		require.NoError(t, err)
		return u.ID, pair.AccessToken
	}
	hs.adminID, hs.adminToken = mk("admin@example.com", "admin", "+919800000001")
	hs.agentID, hs.agentToken = mk("agent@example.com", "team", "+919800000002")
	hs.otherID, hs.otherToken = mk("other@example.com", "team", "+919800000003")

	hs.router = newRouter(hs)
	return hs
}

func newRouter(hs *harness) *gin.Engine {
	r := gin.New()
	r.Use(logger.Middleware(slog.New(slog.NewJSONHandler(io.Discard, nil))))
	hs.h.Register(r, auth.RequireAccessToken(hs.h.Auth))
	return r
}

func (hs *harness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	hs.router.ServeHTTP(w, req)
	return w
}

func (hs *harness) seedLead(t *testing.T, name, ph, assignee string) leads.Lead {
	t.Helper()
	row := leads.Fields{leads.ColName: name, leads.ColPhone: ph, leads.ColStatus: leads.StatusNew}
	row.SetAssignedTo(assignee)
	out, err := hs.store.Insert(context.Background(), []leads.Fields{row})
	require.NoError(t, err)
	return out[0]
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return w.Body.String()
}
