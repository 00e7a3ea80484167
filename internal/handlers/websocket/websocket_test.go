package websocket

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	domain "qrloop-service/internal/domain/qrcampaign"
	wstypes "qrloop-service/internal/domain/websocket"
	"qrloop-service/internal/domain/tool"
	"qrloop-service/internal/pkg/jwt"
	"qrloop-service/internal/repository/memory"
	campaignsvc "qrloop-service/internal/service/qrcampaign"
	toolsvc "qrloop-service/internal/service/tool"
	ws "qrloop-service/internal/websocket"
	wsHandlers "qrloop-service/internal/websocket/handler"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type liveFeed struct {
	server    *httptest.Server
	campaigns *campaignsvc.CampaignService
	tokens    *jwt.Generator
	toolID    int64
}

func newLiveFeed(t *testing.T) *liveFeed {
	t.Helper()
	gin.SetMode(gin.TestMode)

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	hub := ws.NewHub(jwt.NewVerifier(&priv.PublicKey, "qrloop", "dash"), zap.NewNop())
	store := memory.NewStore()
	tools := toolsvc.NewToolService(store, zap.NewNop())
	campaigns := campaignsvc.NewCampaignService(store, campaignsvc.NewCodeGenerator(5, zap.NewNop()), hub, zap.NewNop())
	hub.RegisterHandler(wsHandlers.NewProgressHandler(campaigns, tools))

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	created, err := tools.CreateTool(ctx, toolsvc.Actor{IdentityID: 1}, &tool.CreateToolRequest{
		Name: "coffee",
		QRConfig: domain.CampaignConfig{
			IsRecurring:     true,
			RewardThreshold: 1,
			RecurringConfig: domain.RecurringPolicy{
				Kind:          domain.PolicyKindFlat,
				RewardPayload: domain.RewardPayload{MessageToSend: "streak {streak}"},
			},
		},
	})
	require.NoError(t, err)

	r := gin.New()
	h := NewWebSocketHandler(hub, nil, zap.NewNop())
	r.GET("/ws", h.HandleConnection)
	r.GET("/ws/stats", h.GetStats)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return &liveFeed{
		server:    srv,
		campaigns: campaigns,
		tokens:    jwt.NewGenerator(priv, "qrloop", "dash", "", time.Hour),
		toolID:    created.Tool.ID,
	}
}

func (f *liveFeed) dial(t *testing.T, identityID int64) *gws.Conn {
	t.Helper()
	token, _, err := f.tokens.GenerateAccessToken(identityID, nil)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=" + token
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	msg := readMessage(t, conn)
	require.Equal(t, wstypes.EventTypeConnected, msg.Type)
	return conn
}

type rawMessage struct {
	Type wstypes.EventType `json:"type"`
	Data json.RawMessage   `json:"data"`
}

func readMessage(t *testing.T, conn *gws.Conn) rawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg rawMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHandleConnection_RejectsMissingToken(t *testing.T) {
	f := newLiveFeed(t)

	resp, err := http.Get(f.server.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp2, err := http.Get(f.server.URL + "/ws?token=garbage")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestLiveFeed_ScanAndRewardEvents(t *testing.T) {
	f := newLiveFeed(t)
	conn := f.dial(t, 1)

	issued, err := f.campaigns.IssueNext(context.Background(), f.toolID, "alice")
	require.NoError(t, err)

	res, err := f.campaigns.ValidateAndAdvance(context.Background(), domain.ValidateInput{
		ToolID: f.toolID,
		Code:   issued.Code.Code,
		UserID: "alice",
	})
	require.NoError(t, err)
	require.True(t, res.IsReward)

	scan := readMessage(t, conn)
	require.Equal(t, wstypes.EventTypeScan, scan.Type)
	var event wstypes.ScanEventData
	require.NoError(t, json.Unmarshal(scan.Data, &event))
	assert.Equal(t, "alice", event.UserID)
	assert.True(t, event.Accepted)
	assert.Equal(t, "streak 1", event.MessageToSend)

	reward := readMessage(t, conn)
	assert.Equal(t, wstypes.EventTypeReward, reward.Type)
}

func TestLiveFeed_ProgressRequest(t *testing.T) {
	f := newLiveFeed(t)
	owner := f.dial(t, 1)

	req := wstypes.NewMessage(wstypes.EventTypeProgress, wstypes.ProgressRequest{ToolID: f.toolID, UserID: "bob"})
	require.NoError(t, owner.WriteJSON(req))

	msg := readMessage(t, owner)
	require.Equal(t, wstypes.EventTypeProgress, msg.Type)
	var body struct {
		Progress domain.ProgressView `json:"progress"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &body))
	assert.Equal(t, 1, body.Progress.NextRewardIn)

	stranger := f.dial(t, 2)
	require.NoError(t, stranger.WriteJSON(req))
	denied := readMessage(t, stranger)
	assert.Equal(t, wstypes.EventTypeError, denied.Type)
}

func TestLiveFeed_PingAndUnknownEvent(t *testing.T) {
	f := newLiveFeed(t)
	conn := f.dial(t, 1)

	require.NoError(t, conn.WriteJSON(wstypes.NewMessage(wstypes.EventTypePing, nil)))
	assert.Equal(t, wstypes.EventTypePong, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(wstypes.NewMessage("offers:list", nil)))
	assert.Equal(t, wstypes.EventTypeError, readMessage(t, conn).Type)
}

func TestLiveFeed_Unsubscribe(t *testing.T) {
	f := newLiveFeed(t)
	conn := f.dial(t, 1)

	require.NoError(t, conn.WriteJSON(wstypes.NewMessage(wstypes.EventTypeUnsubscribe, wstypes.UnsubscribeRequest{
		Channels: []wstypes.ChannelType{wstypes.ChannelScans},
	})))
	assert.Equal(t, wstypes.EventTypeUnsubscribe, readMessage(t, conn).Type)

	issued, err := f.campaigns.IssueNext(context.Background(), f.toolID, "alice")
	require.NoError(t, err)
	_, err = f.campaigns.ValidateAndAdvance(context.Background(), domain.ValidateInput{
		ToolID: f.toolID,
		Code:   issued.Code.Code,
		UserID: "alice",
	})
	require.NoError(t, err)

	// Only the rewards channel is still subscribed.
	assert.Equal(t, wstypes.EventTypeReward, readMessage(t, conn).Type)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example.com", " https://admin.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://admin.example.com")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))

	assert.True(t, originChecker(nil)(req))
}
