package httpEngine

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"authsec-server/configs"

	"github.com/boj/redistore"
	"github.com/gomodule/redigo/redis"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type Server struct {
	e *echo.Echo
}

// NewServer instantiates Echo, initializes the session store, and
// registers routes.
func NewServer() *Server {
	e := echo.New()
	e.IPExtractor = echo.ExtractIPFromRealIPHeader()

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     configs.Configs.Service.AllowOrigins,
		AllowCredentials: true,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	requestLoggerConfig := initCustomRequestLoggerConfig()
	e.Use(middleware.RequestLoggerWithConfig(*requestLoggerConfig))

	store, err := initSessionStore()
	if err != nil {
		configs.Logger.Fatal("Failed to initialize session store", zap.Error(err))
		return nil
	}
	e.Use(session.Middleware(store))
	e.Use(middleware.Recover())

	RegisterRoutes(e)

	return &Server{e: e}
}

// Start runs the Echo server on the configured HTTP port.
func (s *Server) Start() error {
	port := configs.Configs.Service.HttpPort
	if port == "" {
		port = "8080"
	}
	return s.e.Start(":" + port)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

// initSessionStore initializes the Redis-backed session store.
func initSessionStore() (store *redistore.RediStore, err error) {
	if len(configs.Configs.Redis.Addresses) == 0 {
		configs.Logger.Fatal("No Redis addresses configured for session store")
	}

	redisAddress := configs.Configs.Redis.Addresses[0]
	secretKey := []byte(configs.Configs.Secrets.SessionSecret)

	pool := &redis.Pool{
		MaxIdle:     10,
		MaxActive:   0,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			var options []redis.DialOption
			if configs.Configs.Redis.Username != "" {
				options = append(options, redis.DialUsername(configs.Configs.Redis.Username))
			}
			if configs.Configs.Redis.Password != "" {
				options = append(options, redis.DialPassword(configs.Configs.Redis.Password))
			}
			if configs.Configs.Redis.Tls {
				options = append(options,
					redis.DialUseTLS(true),
					redis.DialTLSConfig(&tls.Config{
						InsecureSkipVerify: true,
					}),
				)
			}
			return redis.Dial("tcp", redisAddress, options...)
		},
	}

	store, err = redistore.NewRediStoreWithPool(pool, secretKey)
	if err != nil {
		configs.Logger.Fatal("Failed to create Redis-based session store", zap.Error(err))
		return nil, err
	}

	store.SetKeyPrefix("session:")

	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   configs.Configs.Security.SessionExpireHours * 3600,
		HttpOnly: true,
		Secure:   true,
	}

	configs.Logger.Info("Session store initialized",
		zap.String("redisAddress", redisAddress),
		zap.Int("sessionExpireHours", configs.Configs.Security.SessionExpireHours),
		zap.Bool("httpOnly", true),
		zap.Bool("secure", true),
	)

	return store, nil
}

func initCustomRequestLoggerConfig() *middleware.RequestLoggerConfig {
	return &middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/"
		},
		HandleError: true,

		LogLatency:       true,
		LogProtocol:      true,
		LogRemoteIP:      true,
		LogHost:          true,
		LogMethod:        true,
		LogURI:           true,
		LogURIPath:       true,
		LogRoutePath:     true,
		LogRequestID:     true,
		LogReferer:       true,
		LogUserAgent:     true,
		LogStatus:        true,
		LogError:         true,
		LogContentLength: true,
		LogResponseSize:  true,

		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("request.remote_ip", v.RemoteIP),
				zap.String("request.host", v.Host),
				zap.String("request.protocol", v.Protocol),
				zap.String("request.method", v.Method),
				zap.String("request.uri", v.URI),
				zap.String("request.path", v.URIPath),
				zap.String("request.route", v.RoutePath),
				zap.String("request.user_agent", v.UserAgent),
				zap.String("request.referer", v.Referer),
				zap.Int("response.status", v.Status),
				zap.Duration("response.latency", v.Latency),
				zap.String("request.request_id", v.RequestID),
				zap.Int64("response.response_size", v.ResponseSize),
				zap.String("request.content_length", v.ContentLength),
			}

			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
				configs.Logger.Error("Request log with error", fields...)
				return nil
			}

			configs.Logger.Info("Request log", fields...)
			return nil
		},
	}
}
