package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/relabs-tech/motionsense/internal/auth"
	"github.com/relabs-tech/motionsense/internal/imu"
	"github.com/relabs-tech/motionsense/internal/labeling"
	"github.com/relabs-tech/motionsense/internal/orientation"
	"github.com/relabs-tech/motionsense/internal/persist"
	"github.com/relabs-tech/motionsense/internal/predict"
	"github.com/relabs-tech/motionsense/internal/stream"
)

// ServerConfig holds the components behind the dashboard API.
type ServerConfig struct {
	Log         *slog.Logger
	Auth        *auth.Service
	Controller  *labeling.Controller
	Session     *stream.Session
	Persister   *persist.Persister
	Predictor   *predict.Predictor
	Hub         *Hub
	CORSOrigins []string
	StaticDir   string // served for unknown paths when set
}

// Server is the dashboard HTTP API.
type Server struct {
	ServerConfig
	log *slog.Logger
}

// NewServer creates a Server over c.
func NewServer(c ServerConfig) *Server {
	logger := c.Log
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{ServerConfig: c, log: logger.With("component", "web")}
}

// OnSample is the recording callback: it pushes the sample, its tilt and
// the current prediction to live clients.
func (s *Server) OnSample(ts imu.TaggedSample) {
	tilt := orientation.FromSample(ts.Sample)
	frame := LiveFrame{Type: "sample", Sample: &ts, Tilt: &tilt}
	if pred, ok := s.Predictor.Predict(imu.Samples(s.Session.Window())); ok {
		frame.Prediction = &pred
	}
	s.Hub.Broadcast(frame)
}

// OnStreamError forwards transport errors to live clients.
func (s *Server) OnStreamError(err error) {
	s.Hub.Broadcast(LiveFrame{Type: "error", Error: err.Error()})
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	corsCfg := cors.DefaultConfig()
	if len(s.CORSOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.CORSOrigins
	}
	corsCfg.AddAllowHeaders("Authorization")
	r.Use(cors.New(corsCfg))

	api := r.Group("/api")
	api.POST("/auth/register", s.register)
	api.POST("/auth/login", s.login)

	private := api.Group("", s.Auth.RequireAuth())
	private.POST("/auth/logout", s.logout)
	private.GET("/auth/me", s.me)

	private.GET("/activities", s.listActivities)
	private.POST("/activities", s.addActivity)
	private.POST("/activities/:name/sub-activities", s.addSubActivity)
	private.PUT("/selection", s.updateSelection)

	private.POST("/session/start", s.startSession)
	private.POST("/session/stop", s.stopSession)
	private.POST("/session/save", s.saveSession)
	private.GET("/session", s.sessionStatus)
	private.GET("/prediction", s.prediction)
	private.POST("/stream/config", s.configureStream)

	r.GET("/ws/live", s.live)

	if s.StaticDir != "" {
		r.NoRoute(gin.WrapH(http.FileServer(http.Dir(s.StaticDir))))
	}
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.log.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
		)
	}
}

func errorJSON(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	user, err := s.Auth.Register(c.Request.Context(), req)
	switch {
	case errors.Is(err, auth.ErrUserExists):
		errorJSON(c, http.StatusConflict, err)
	case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrInvalidUsername):
		errorJSON(c, http.StatusBadRequest, err)
	case err != nil:
		s.log.Error("register failed", "error", err)
		errorJSON(c, http.StatusInternalServerError, errors.New("registration failed"))
	default:
		c.JSON(http.StatusCreated, user)
	}
}

func (s *Server) login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	sess, err := s.Auth.Login(c.Request.Context(), req)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		errorJSON(c, http.StatusUnauthorized, err)
	case err != nil:
		s.log.Error("login failed", "error", err)
		errorJSON(c, http.StatusInternalServerError, errors.New("login failed"))
	default:
		c.JSON(http.StatusOK, sess)
	}
}

func (s *Server) logout(c *gin.Context) {
	if err := s.Auth.Logout(auth.TokenFrom(c)); err != nil {
		errorJSON(c, http.StatusUnauthorized, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) me(c *gin.Context) {
	user, _ := auth.UserFrom(c)
	c.JSON(http.StatusOK, user)
}

type nameRequest struct {
	Name string `json:"name"`
}

func (s *Server) listActivities(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"activities": s.Controller.Catalog().Activities()})
}

func (s *Server) addActivity(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	name, err := s.Controller.AddActivity(req.Name)
	if err != nil {
		catalogError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": name, "selection": s.Controller.Status()})
}

func (s *Server) addSubActivity(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	name, err := s.Controller.AddSubActivity(c.Param("name"), req.Name)
	if err != nil {
		catalogError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": name})
}

func catalogError(c *gin.Context, err error) {
	var dup *labeling.DuplicateActivityError
	var unknown *labeling.UnknownActivityError
	switch {
	case errors.As(err, &dup):
		errorJSON(c, http.StatusConflict, err)
	case errors.As(err, &unknown):
		errorJSON(c, http.StatusNotFound, err)
	default:
		errorJSON(c, http.StatusBadRequest, err)
	}
}

type selectionRequest struct {
	Activity    *string `json:"activity"`
	SubActivity *string `json:"subActivity"`
}

func (s *Server) updateSelection(c *gin.Context) {
	var req selectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	catalog := s.Controller.Catalog()
	if req.Activity != nil {
		if *req.Activity != "" && !catalog.Has(*req.Activity) {
			errorJSON(c, http.StatusBadRequest, &labeling.UnknownActivityError{Name: *req.Activity})
			return
		}
		s.Controller.SelectActivity(*req.Activity)
	}
	if req.SubActivity != nil {
		activity := s.Controller.Status().Activity
		if *req.SubActivity != "" && !catalog.HasSubActivity(activity, *req.SubActivity) {
			errorJSON(c, http.StatusBadRequest, &labeling.UnknownActivityError{Name: *req.SubActivity})
			return
		}
		s.Controller.SelectSubActivity(*req.SubActivity)
	}
	c.JSON(http.StatusOK, s.Controller.Status())
}

func (s *Server) startSession(c *gin.Context) {
	st, err := s.Controller.StartSession(c.Request.Context(), s.OnSample)
	var berr *stream.BrokerError
	var cerr *stream.ConfigurationError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, st)
	case errors.Is(err, labeling.ErrNoActivity), errors.As(err, &cerr):
		errorJSON(c, http.StatusBadRequest, err)
	case errors.Is(err, labeling.ErrSessionActive):
		errorJSON(c, http.StatusConflict, err)
	case errors.As(err, &berr), errors.Is(err, stream.ErrDisconnected):
		errorJSON(c, http.StatusBadGateway, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		errorJSON(c, http.StatusGatewayTimeout, err)
	default:
		errorJSON(c, http.StatusInternalServerError, err)
	}
}

func (s *Server) stopSession(c *gin.Context) {
	st, err := s.Controller.StopSession(c.Request.Context())
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": st, "buffered": s.Session.Len()})
}

func (s *Server) saveSession(c *gin.Context) {
	n, err := s.Persister.Save(c.Request.Context(), s.Session)
	var perr *persist.PersistenceError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"saved": n})
	case errors.Is(err, persist.ErrNothingToSave):
		errorJSON(c, http.StatusBadRequest, err)
	case errors.Is(err, persist.ErrSaveInProgress):
		errorJSON(c, http.StatusConflict, err)
	case errors.As(err, &perr):
		errorJSON(c, http.StatusBadGateway, err)
	default:
		errorJSON(c, http.StatusInternalServerError, err)
	}
}

type sessionResponse struct {
	labeling.Status
	Connection stream.ConnState   `json:"connection"`
	LastError  string             `json:"lastError,omitempty"`
	Buffered   int                `json:"buffered"`
	Saving     bool               `json:"saving"`
	Window     []imu.TaggedSample `json:"window"`
}

func (s *Server) sessionStatus(c *gin.Context) {
	resp := sessionResponse{
		Status:     s.Controller.Status(),
		Connection: s.Session.State(),
		Buffered:   s.Session.Len(),
		Saving:     s.Persister.Saving(),
		Window:     s.Session.Window(),
	}
	if err := s.Session.LastError(); err != nil {
		resp.LastError = err.Error()
	}
	if resp.Window == nil {
		resp.Window = []imu.TaggedSample{}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) prediction(c *gin.Context) {
	pred, ok := s.Predictor.Predict(imu.Samples(s.Session.Window()))
	if !ok {
		c.JSON(http.StatusOK, gin.H{"available": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"available": true, "prediction": pred})
}

type streamConfigRequest struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Topic    string `json:"topic"`
	Username string `json:"username"`
	Password string `json:"password"`
	QoS      *byte  `json:"qos"`
}

// configureStream replaces the transport. Omitted fields keep their
// current value.
func (s *Server) configureStream(c *gin.Context) {
	var req streamConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	cfg, _ := s.Session.Config()
	if req.Broker != "" {
		cfg.Broker = req.Broker
	}
	if req.ClientID != "" {
		cfg.ClientID = req.ClientID
	}
	if req.Topic != "" {
		cfg.Topic = req.Topic
	}
	if req.Username != "" {
		cfg.Username, cfg.Password = req.Username, req.Password
	}
	if req.QoS != nil {
		cfg.QoS = *req.QoS
	}

	if err := s.Session.Configure(cfg); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	active, _ := s.Session.Config()
	c.JSON(http.StatusOK, gin.H{
		"broker":     active.Broker,
		"client_id":  active.ClientID,
		"topic":      active.Topic,
		"qos":        active.QoS,
		"connection": s.Session.State(),
	})
}

// live serves the websocket feed. Browsers cannot set headers on a
// websocket handshake, so the token may also come as ?token=.
func (s *Server) live(c *gin.Context) {
	token := auth.BearerToken(c.GetHeader("Authorization"))
	if token == "" {
		token = c.Query("token")
	}
	if _, err := s.Auth.CurrentUser(c.Request.Context(), token); err != nil {
		errorJSON(c, http.StatusUnauthorized, auth.ErrUnauthenticated)
		return
	}
	s.Hub.ServeWS(c.Writer, c.Request)
}
