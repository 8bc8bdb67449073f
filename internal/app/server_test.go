package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	mochi "github.com/mochi-mqtt/server/v2"
	mochiauth "github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/relabs-tech/motionsense/internal/auth"
	"github.com/relabs-tech/motionsense/internal/labeling"
	"github.com/relabs-tech/motionsense/internal/persist"
	"github.com/relabs-tech/motionsense/internal/predict"
	"github.com/relabs-tech/motionsense/internal/stream"
)

const testTopic = "sensor/nodejs"

func init() {
	gin.SetMode(gin.TestMode)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startBroker(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	server := mochi.New(nil)
	require.NoError(t, server.AddHook(new(mochiauth.AllowHook), nil))
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{Type: "tcp", ID: "tcp", Address: addr})))
	require.NoError(t, server.Serve())
	t.Cleanup(func() { _ = server.Close() })
	return "tcp://" + addr
}

type fixture struct {
	server *Server
	sink   *persist.GormSink
	router *gin.Engine
}

func newFixture(t *testing.T, broker string) *fixture {
	t.Helper()
	log := discardLogger()

	sink, err := persist.OpenGorm(persist.DriverSQLite, filepath.Join(t.TempDir(), "motionsense.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })

	svc, err := auth.NewService(sink.DB(), "test-secret", auth.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)

	controller := labeling.NewController(nil, labeling.WithLogger(log))
	hub := NewHub(log, nil)
	var srv *Server
	session := stream.NewSession(controller.Tag,
		stream.WithLogger(log),
		stream.WithErrorHandler(func(err error) { srv.OnStreamError(err) }),
	)
	controller.Bind(session)

	srv = NewServer(ServerConfig{
		Log:        log,
		Auth:       svc,
		Controller: controller,
		Session:    session,
		Persister:  persist.NewPersister(sink, persist.WithLogger(log)),
		Predictor:  predict.New(predict.WithOverrideProbability(0)),
		Hub:        hub,
	})
	if broker != "" {
		require.NoError(t, session.Configure(stream.Config{Broker: broker, Topic: testTopic, QoS: 1}))
	}
	t.Cleanup(func() {
		_ = session.Disconnect(context.Background())
		hub.Close()
	})
	return &fixture{server: srv, sink: sink, router: srv.Router()}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) login(t *testing.T) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/auth/register", "", auth.RegisterRequest{
		Username: "operator", Password: "long-enough", Name: "Operator",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/auth/login", "", auth.LoginRequest{Username: "operator", Password: "long-enough"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var sess auth.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	require.NotEmpty(t, sess.AccessToken)
	return sess.AccessToken
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestAuthRoutes(t *testing.T) {
	f := newFixture(t, "")

	w := f.do(t, http.MethodGet, "/api/session", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	token := f.login(t)

	w = f.do(t, http.MethodPost, "/api/auth/register", "", auth.RegisterRequest{
		Username: "Operator", Password: "long-enough", Name: "Again",
	})
	require.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPost, "/api/auth/register", "", auth.RegisterRequest{
		Username: "short", Password: "abc", Name: "Short",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/auth/login", "", auth.LoginRequest{Username: "operator", Password: "wrong-password"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "operator", decode[auth.User](t, w).Username)

	w = f.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = f.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestActivityRoutes(t *testing.T) {
	f := newFixture(t, "")
	token := f.login(t)

	w := f.do(t, http.MethodGet, "/api/activities", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Activities []labeling.Activity `json:"activities"`
	}](t, w)
	require.Len(t, list.Activities, len(labeling.DefaultActivities))

	w = f.do(t, http.MethodPost, "/api/activities", token, nameRequest{Name: " Jogging "})
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "jogging", f.server.Controller.Status().Activity)

	tests := []struct {
		name string
		path string
		body nameRequest
		want int
	}{
		{"duplicate activity", "/api/activities", nameRequest{Name: "walking"}, http.StatusConflict},
		{"empty activity", "/api/activities", nameRequest{Name: "  "}, http.StatusBadRequest},
		{"sub-activity", "/api/activities/walking/sub-activities", nameRequest{Name: "uphill"}, http.StatusCreated},
		{"duplicate sub-activity", "/api/activities/walking/sub-activities", nameRequest{Name: "Uphill"}, http.StatusConflict},
		{"unknown parent", "/api/activities/swimming/sub-activities", nameRequest{Name: "crawl"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, tt.path, token, tt.body)
			require.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	walking, uphill, bogus := "walking", "uphill", "bogus"
	w = f.do(t, http.MethodPut, "/api/selection", token, selectionRequest{Activity: &walking, SubActivity: &uphill})
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[labeling.Status](t, w)
	require.Equal(t, "walking", st.Activity)
	require.Equal(t, "uphill", st.SubActivity)

	w = f.do(t, http.MethodPut, "/api/selection", token, selectionRequest{Activity: &bogus})
	require.Equal(t, http.StatusBadRequest, w.Code)

	mixed := "Walking"
	w = f.do(t, http.MethodPut, "/api/selection", token, selectionRequest{Activity: &mixed})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "walking", decode[labeling.Status](t, w).Activity)
}

func TestSessionErrors(t *testing.T) {
	f := newFixture(t, "")
	token := f.login(t)

	w := f.do(t, http.MethodPost, "/api/session/start", token, nil)
	require.Equal(t, http.StatusBadRequest, w.Code, "no activity selected")

	f.server.Controller.SelectActivity("walking")
	w = f.do(t, http.MethodPost, "/api/session/start", token, nil)
	require.Equal(t, http.StatusBadRequest, w.Code, "stream not configured")

	w = f.do(t, http.MethodPost, "/api/session/save", token, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/prediction", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"available":false}`, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/stream/config", token, map[string]string{"broker": "tcp://127.0.0.1:1"})
	require.Equal(t, http.StatusBadRequest, w.Code, "topic still missing")

	w = f.do(t, http.MethodPost, "/api/stream/config", token, map[string]string{"broker": "tcp://127.0.0.1:1", "topic": testTopic})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cfg, ok := f.server.Session.Config()
	require.True(t, ok)
	require.Equal(t, testTopic, cfg.Topic)
}

func TestRecordAndSave(t *testing.T) {
	broker := startBroker(t)
	f := newFixture(t, broker)
	token := f.login(t)

	f.server.Controller.SelectActivity("walking")
	w := f.do(t, http.MethodPost, "/api/session/start", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.True(t, decode[labeling.Status](t, w).Recording)

	w = f.do(t, http.MethodPost, "/api/session/start", token, nil)
	require.Equal(t, http.StatusConflict, w.Code)

	pub := mqtt.NewClient(mqtt.NewClientOptions().AddBroker(broker).SetClientID("test-publisher"))
	tok := pub.Connect()
	tok.Wait()
	require.NoError(t, tok.Error())
	t.Cleanup(func() { pub.Disconnect(50) })

	for i := 0; i < 8; i++ {
		payload := fmt.Sprintf(`{"acc_x":0,"acc_y":0,"acc_z":%d.5,"gyro_x":0,"gyro_y":0,"gyro_z":0}`, i%2+4)
		tok := pub.Publish(testTopic, 1, false, payload)
		tok.Wait()
		require.NoError(t, tok.Error())
	}
	require.Eventually(t, func() bool { return f.server.Session.Len() == 8 }, 5*time.Second, 10*time.Millisecond)

	w = f.do(t, http.MethodGet, "/api/session", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[sessionResponse](t, w)
	require.Equal(t, 8, status.Buffered)
	require.Equal(t, stream.Streaming, status.Connection)
	require.Equal(t, "walking", status.Window[0].ActivityName())

	w = f.do(t, http.MethodGet, "/api/prediction", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	pred := decodePrediction(t, w)
	require.Equal(t, "walking", pred.Label)
	require.GreaterOrEqual(t, pred.Confidence, 75)

	w = f.do(t, http.MethodPost, "/api/session/stop", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/api/session/save", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.JSONEq(t, `{"saved":8}`, w.Body.String())
	require.Zero(t, f.server.Session.Len())

	n, err := f.sink.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(8), n)
}

func decodePrediction(t *testing.T, w *httptest.ResponseRecorder) predict.Prediction {
	t.Helper()
	return decode[struct {
		Prediction predict.Prediction `json:"prediction"`
	}](t, w).Prediction
}

func TestLiveFeed(t *testing.T) {
	f := newFixture(t, "")
	token := f.login(t)
	ts := httptest.NewServer(f.router)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/live"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return f.server.Hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Pointing the stream at a dead broker surfaces the dial failure live.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	dead := "tcp://" + l.Addr().String()
	require.NoError(t, l.Close())
	w := f.do(t, http.MethodPost, "/api/stream/config", token, map[string]string{"broker": dead, "topic": testTopic})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	var frame LiveFrame
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, "error", frame.Type)
	require.Contains(t, frame.Error, dead)
	require.Eventually(t, func() bool { return f.server.Session.State() == stream.Errored }, 2*time.Second, 10*time.Millisecond)

	f.server.Hub.Close()
	require.Zero(t, f.server.Hub.Len())
}
