package qrcampaign

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "qrloop-service/internal/domain/qrcampaign"
	"qrloop-service/internal/domain/tool"
	"qrloop-service/internal/middleware"
	"qrloop-service/internal/pkg/jwt"
	"qrloop-service/internal/pkg/ratelimit"
	"qrloop-service/internal/repository/memory"
	service "qrloop-service/internal/service/qrcampaign"
	toolsvc "qrloop-service/internal/service/tool"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type envelope struct {
	Success       bool            `json:"success"`
	Message       string          `json:"message"`
	Data          json.RawMessage `json:"data"`
	FailureReason string          `json:"failure_reason"`
}

type testServer struct {
	engine     *gin.Engine
	tools      *toolsvc.ToolService
	toolID     int64
	webhookKey string
	tokens     *jwt.Generator
}

func newTestServer(t *testing.T, scanLimit int) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	verifier := jwt.NewVerifier(&priv.PublicKey, "qrloop", "dash")

	store := memory.NewStore()
	tools := toolsvc.NewToolService(store, zap.NewNop())
	campaigns := service.NewCampaignService(store, service.NewCodeGenerator(5, zap.NewNop()), nil, zap.NewNop())
	h := NewCampaignHandler(campaigns, tools, ratelimit.NewLocalScanLimiter(scanLimit, time.Hour), zap.NewNop())

	created, err := tools.CreateTool(context.Background(), toolsvc.Actor{IdentityID: 1}, &tool.CreateToolRequest{
		Name: "coffee",
		QRConfig: domain.CampaignConfig{
			IsRecurring:       true,
			RewardThreshold:   2,
			AutoResetOnReward: true,
			RecurringConfig: domain.RecurringPolicy{
				Kind:          domain.PolicyKindFlat,
				RewardPayload: domain.RewardPayload{TagsToAdd: []string{"free-coffee"}, MessageToSend: "Enjoy!"},
			},
		},
	})
	require.NoError(t, err)

	auth := middleware.NewAuthMiddleware(verifier)
	r := gin.New()
	webhooks := r.Group("/webhooks/tools/:id", middleware.WebhookAuth(tools))
	webhooks.POST("/qr/validate", h.WebhookValidate)
	webhooks.POST("/qr/current", h.WebhookCurrentCode)

	dash := r.Group("/tools", auth.Auth())
	dash.POST("/:id/qr/scan", h.Scan)
	dash.POST("/:id/qr/users/:user_id/issue", h.IssueCode)
	dash.POST("/:id/qr/starter-codes", h.IssueStarterCodes)
	dash.GET("/:id/qr/users/:user_id/progress", h.GetProgress)
	dash.GET("/:id/qr/codes", h.ListCodes)
	dash.GET("/:id/qr/rewards", h.ListRewards)

	return &testServer{
		engine:     r,
		tools:      tools,
		toolID:     created.Tool.ID,
		webhookKey: created.WebhookKey,
		tokens:     jwt.NewGenerator(priv, "qrloop", "dash", "", time.Hour),
	}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (s *testServer) webhook(t *testing.T, action string, body interface{}) (int, envelope) {
	return s.do(t, http.MethodPost, fmt.Sprintf("/webhooks/tools/%d/qr/%s", s.toolID, action), body,
		map[string]string{"X-Tool-Key": s.webhookKey})
}

func (s *testServer) bearer(t *testing.T, identityID int64) map[string]string {
	token, _, err := s.tokens.GenerateAccessToken(identityID, nil)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestWebhook_ScanFlow(t *testing.T) {
	s := newTestServer(t, 100)

	status, env := s.webhook(t, "current", gin.H{"user_id": "sub-1"})
	require.Equal(t, http.StatusOK, status)
	issued := decode[domain.IssueResponse](t, env)
	require.NotNil(t, issued.Code)
	code := issued.Code.Code

	status, env = s.webhook(t, "validate", gin.H{"code": code, "user_id": "sub-1"})
	require.Equal(t, http.StatusOK, status)
	first := decode[domain.ValidationResult](t, env)
	assert.True(t, first.Accepted)
	assert.False(t, first.IsReward)
	require.NotNil(t, first.NextCode)

	status, env = s.webhook(t, "validate", gin.H{"code": code, "user_id": "sub-1"})
	assert.Equal(t, http.StatusConflict, status)
	assert.False(t, env.Success)
	assert.Equal(t, string(domain.FailureAlreadyUsed), env.FailureReason)
	replay := decode[domain.ValidationResult](t, env)
	assert.Equal(t, domain.FailureAlreadyUsed, replay.FailureReason)

	status, env = s.webhook(t, "validate", gin.H{"code": *first.NextCode, "user_id": "sub-1"})
	require.Equal(t, http.StatusOK, status)
	reward := decode[domain.ValidationResult](t, env)
	assert.True(t, reward.IsReward)
	require.NotNil(t, reward.RewardInstructions)
	assert.Equal(t, []string{"free-coffee"}, reward.RewardInstructions.TagsToAdd)
}

func TestWebhook_Rejections(t *testing.T) {
	s := newTestServer(t, 100)

	_, env := s.webhook(t, "current", gin.H{"user_id": "sub-1"})
	code := decode[domain.IssueResponse](t, env).Code.Code

	tests := []struct {
		name   string
		body   interface{}
		status int
		reason domain.FailureReason
	}{
		{"unknown code", gin.H{"code": "QR1-NOTREAL", "user_id": "sub-1"}, http.StatusNotFound, domain.FailureNotFound},
		{"wrong user", gin.H{"code": code, "user_id": "sub-2"}, http.StatusForbidden, domain.FailureWrongUser},
		{"missing user", gin.H{"code": code}, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := s.webhook(t, "validate", tt.body)
			assert.Equal(t, tt.status, status)
			assert.False(t, env.Success)
			assert.Equal(t, string(tt.reason), env.FailureReason)
		})
	}
}

func TestWebhook_Authentication(t *testing.T) {
	s := newTestServer(t, 100)
	path := fmt.Sprintf("/webhooks/tools/%d/qr/current", s.toolID)
	body := gin.H{"user_id": "sub-1"}

	status, _ := s.do(t, http.MethodPost, path, body, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.do(t, http.MethodPost, path, body, map[string]string{"X-Tool-Key": "qrk_wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.do(t, http.MethodPost, "/webhooks/tools/999/qr/current", body, map[string]string{"X-Tool-Key": s.webhookKey})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.do(t, http.MethodPost, "/webhooks/tools/abc/qr/current", body, map[string]string{"X-Tool-Key": s.webhookKey})
	assert.Equal(t, http.StatusBadRequest, status)

	_, err := s.tools.UpdateStatus(context.Background(), toolsvc.Actor{IdentityID: 1}, s.toolID, tool.ToolStatusInactive)
	require.NoError(t, err)
	status, _ = s.webhook(t, "current", body)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestWebhook_ScanRateLimit(t *testing.T) {
	s := newTestServer(t, 2)
	body := gin.H{"code": "QR1-WHATEVER", "user_id": "sub-1"}

	for i := 0; i < 2; i++ {
		status, _ := s.webhook(t, "validate", body)
		assert.Equal(t, http.StatusNotFound, status)
	}

	status, _ := s.webhook(t, "validate", body)
	assert.Equal(t, http.StatusTooManyRequests, status)

	status, _ = s.webhook(t, "validate", gin.H{"code": "QR1-WHATEVER", "user_id": "sub-2"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestDashboard_OwnershipAndFlow(t *testing.T) {
	s := newTestServer(t, 100)
	owner := s.bearer(t, 1)
	stranger := s.bearer(t, 2)

	issuePath := fmt.Sprintf("/tools/%d/qr/users/alice/issue", s.toolID)

	status, _ := s.do(t, http.MethodPost, issuePath, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.do(t, http.MethodPost, issuePath, nil, stranger)
	assert.Equal(t, http.StatusForbidden, status)

	status, env := s.do(t, http.MethodPost, issuePath, nil, owner)
	require.Equal(t, http.StatusOK, status)
	code := decode[domain.IssueResponse](t, env).Code.Code

	status, env = s.do(t, http.MethodPost, fmt.Sprintf("/tools/%d/qr/scan", s.toolID), gin.H{"code": code, "user_id": "alice"}, owner)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decode[domain.ValidationResult](t, env).Accepted)

	status, env = s.do(t, http.MethodGet, fmt.Sprintf("/tools/%d/qr/users/alice/progress", s.toolID), nil, owner)
	require.Equal(t, http.StatusOK, status)
	progress := decode[domain.ProgressView](t, env)
	assert.Equal(t, 1, progress.CurrentStreak)
	assert.Equal(t, 1, progress.NextRewardIn)

	status, env = s.do(t, http.MethodGet, fmt.Sprintf("/tools/%d/qr/codes?user_id=alice&page_size=10", s.toolID), nil, owner)
	require.Equal(t, http.StatusOK, status)
	codes := decode[domain.CodeListResponse](t, env)
	assert.EqualValues(t, 2, codes.Total)

	status, env = s.do(t, http.MethodGet, fmt.Sprintf("/tools/%d/qr/rewards", s.toolID), nil, owner)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, decode[domain.RewardListResponse](t, env).Total)

	status, _ = s.do(t, http.MethodGet, "/tools/999/qr/codes", nil, owner)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestDashboard_StarterCodes(t *testing.T) {
	s := newTestServer(t, 100)
	owner := s.bearer(t, 1)
	path := fmt.Sprintf("/tools/%d/qr/starter-codes", s.toolID)

	status, _ := s.do(t, http.MethodPost, path, gin.H{"count": 2}, s.bearer(t, 2))
	assert.Equal(t, http.StatusForbidden, status)

	for _, count := range []int{0, 101} {
		status, env := s.do(t, http.MethodPost, path, gin.H{"count": count}, owner)
		assert.Equal(t, http.StatusBadRequest, status, "count %d", count)
		assert.Empty(t, env.FailureReason)
	}

	status, env := s.do(t, http.MethodPost, path, gin.H{"count": 2}, owner)
	require.Equal(t, http.StatusCreated, status)
	batch := decode[domain.StarterCodesResponse](t, env)
	require.Len(t, batch.Codes, 2)
	assert.Nil(t, batch.Codes[0].UserID)

	// Whoever scans a printed code first claims it.
	status, env = s.webhook(t, "validate", gin.H{"code": batch.Codes[0].Code, "user_id": "walk-in"})
	require.Equal(t, http.StatusOK, status)
	claimed := decode[domain.ValidationResult](t, env)
	assert.True(t, claimed.Accepted)
	assert.Equal(t, 1, claimed.Progress.CurrentStreak)

	status, env = s.webhook(t, "validate", gin.H{"code": batch.Codes[0].Code, "user_id": "late"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, string(domain.FailureAlreadyUsed), env.FailureReason)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		reason domain.FailureReason
		want   int
	}{
		{domain.FailureNotFound, http.StatusNotFound},
		{domain.FailureNotRecurring, http.StatusUnprocessableEntity},
		{domain.FailureExpired, http.StatusGone},
		{domain.FailureAlreadyUsed, http.StatusConflict},
		{domain.FailureWrongUser, http.StatusForbidden},
		{domain.FailureCampaignCompleted, http.StatusConflict},
		{domain.FailureGenerationExhausted, http.StatusServiceUnavailable},
		{domain.FailureReason("mystery"), http.StatusBadRequest},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.reason), string(tt.reason))
	}
}
