package server

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/jrsteele09/go-auth-gateway/routes"
)

func (s *Server) initRoutes() {
	s.router.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	for _, mw := range s.EdgeMiddleware() {
		s.router.Use(handlerMiddleware(mw))
	}

	// HEALTH
	s.RegisterRouteFunc(http.MethodGet, routes.RouteAPIPing, s.PingHandler())
	s.RegisterRouteFunc(http.MethodGet, routes.RouteHealthz, s.PingHandler())
	s.RegisterRouteFunc(http.MethodGet, routes.RouteMetrics, s.MetricsHandler())

	// SESSION
	s.RegisterRouteFunc(http.MethodGet, routes.RouteAuthSession, ChainMiddleware(s.SessionGetHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc(http.MethodDelete, routes.RouteAuthSession, ChainMiddleware(s.SessionDeleteHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc(http.MethodGet, routes.RouteLogout, s.LogoutHandler())

	// LOGIN
	s.RegisterRouteFunc(http.MethodPost, routes.RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc(http.MethodGet, routes.RouteAuthLogin, s.LoginMethodNotAllowedHandler())
	s.RegisterRouteFunc(http.MethodDelete, routes.RouteAuthLogin, ChainMiddleware(s.LoginClearHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc(http.MethodPost, routes.RouteAuthRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware()...))

	// MFA
	s.RegisterRouteFunc(http.MethodGet, routes.RouteAuthMFAStatus, ChainMiddleware(s.MFAStatusHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc(http.MethodPost, routes.RouteAuthMFASetup, ChainMiddleware(s.MFASetupHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc(http.MethodGet, routes.RouteAuthMFASetup, s.MFAMethodNotAllowedHandler())
	s.RegisterRouteFunc(http.MethodPost, routes.RouteAuthMFAVerify, ChainMiddleware(s.MFAVerifyHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc(http.MethodGet, routes.RouteAuthMFAVerify, s.MFAMethodNotAllowedHandler())
	s.RegisterRouteFunc(http.MethodPost, routes.RouteAuthMFADisable, ChainMiddleware(s.MFADisableHandler(), s.APIMiddleware()...))

	// Everything else belongs to the dashboard app
	s.router.NotFound(s.NotFoundHandler())
	s.router.MethodNotAllowed(s.NotFoundHandler())
}
