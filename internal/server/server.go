// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package server serves the postal code lookup page. Every websocket connection of a page is backed by
// its own location controller, the page itself only renders what the controller tells it to.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/text/language"

	"github.com/wneessen/postalcode/internal/country"
	"github.com/wneessen/postalcode/internal/devicegeo"
	"github.com/wneessen/postalcode/internal/feedback"
	"github.com/wneessen/postalcode/internal/geocode"
	"github.com/wneessen/postalcode/internal/locator"
	"github.com/wneessen/postalcode/internal/logger"
)

const (
	DefaultListen       = "127.0.0.1:8080"
	DefaultPingInterval = time.Second * 30

	shutdownTimeout   = time.Second * 5
	readHeaderTimeout = time.Second * 10
	pageTemplate      = "index.html"
)

//go:embed web
var webFS embed.FS

// Config holds the server settings.
type Config struct {
	Listen       string
	PingInterval time.Duration
	// GeolocationTimeout is the browser's position timeout. The wait on the server is not bounded, the
	// page reports a timeout itself.
	GeolocationTimeout time.Duration
	// Countries restricts the country selector. An empty list offers all countries.
	Countries []string
	Locator   locator.Config
}

// Server serves the lookup page and its websocket sessions.
type Server struct {
	conf      Config
	logger    *logger.Logger
	resolver  geocode.Resolver
	t         feedback.Translator
	tag       language.Tag
	countries []country.Country
	engine    *gin.Engine
	upgrader  websocket.Upgrader
	sessions  atomic.Int64
	baseCtx   atomic.Pointer[context.Context]
}

type pageData struct {
	Lang      string
	Labels    map[string]string
	Fields    []pageField
	Countries []country.Country
	Container string
}

type pageField struct {
	ID      string
	Caption string
}

// New returns a Server resolving lookups with resolver. t translates the page and all feedback into
// the language of tag.
func New(conf Config, resolver geocode.Resolver, t feedback.Translator, tag language.Tag,
	log *logger.Logger,
) (*Server, error) {
	if conf.Listen == "" {
		conf.Listen = DefaultListen
	}
	if conf.PingInterval <= 0 {
		conf.PingInterval = DefaultPingInterval
	}
	if conf.GeolocationTimeout <= 0 {
		conf.GeolocationTimeout = devicegeo.DefaultTimeout
	}

	countries, err := country.List(conf.Countries, tag)
	if err != nil {
		return nil, fmt.Errorf("failed to build country list: %w", err)
	}

	tpl, err := template.New(pageTemplate).Funcs(template.FuncMap{"t": t.Get}).ParseFS(webFS, "web/"+pageTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page template: %w", err)
	}
	static, err := fs.Sub(webFS, "web/static")
	if err != nil {
		return nil, fmt.Errorf("failed to load static assets: %w", err)
	}

	srv := &Server{
		conf:      conf,
		logger:    log,
		resolver:  resolver,
		t:         t,
		tag:       tag,
		countries: countries,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), srv.requestLogger())
	engine.SetHTMLTemplate(tpl)
	engine.GET("/", srv.handlePage)
	engine.GET("/healthz", srv.handleHealth)
	engine.GET("/ws", srv.handleWebsocket)
	engine.StaticFS("/static", http.FS(static))
	srv.engine = engine

	return srv, nil
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Sessions returns the number of connected pages.
func (s *Server) Sessions() int {
	return int(s.sessions.Load())
}

// Start listens on the configured address until ctx is canceled. Open sessions are closed on return.
func (s *Server) Start(ctx context.Context) error {
	s.baseCtx.Store(&ctx)
	httpSrv := &http.Server{
		Addr:              s.conf.Listen,
		Handler:           s.engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("address", s.conf.Listen))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

func (s *Server) handlePage(c *gin.Context) {
	fields := make([]pageField, 0, len(feedback.Fields))
	for _, field := range feedback.Fields {
		fields = append(fields, pageField{ID: field.String(), Caption: s.t.Get(field.Label())})
	}
	labels := make(map[string]string)
	for surface, label := range feedback.Labels(s.t) {
		labels[surface.String()] = label
	}

	c.HTML(http.StatusOK, pageTemplate, pageData{
		Lang:      s.tag.String(),
		Labels:    labels,
		Fields:    fields,
		Countries: s.countries,
		Container: s.conf.Locator.Map.Container,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": s.Sessions(),
		"geocoder": s.resolver.Name(),
	})
}

func (s *Server) handleWebsocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket connection", logger.Err(err))
		return
	}

	parent := context.Background()
	if base := s.baseCtx.Load(); base != nil {
		parent = *base
	}
	sess := newSession(parent, conn, s.conf.GeolocationTimeout, s.logger)
	device := devicegeo.NewChain(sess.logger, devicegeo.NoTimeout, sess.browser)
	sess.ctrl = locator.New(s.conf.Locator, s.resolver, device, view{sess}, pageMap{sess}, s.t, sess.logger)

	s.sessions.Add(1)
	defer s.sessions.Add(-1)
	sess.run(s.conf.PingInterval)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		s.logger.Debug("http request", slog.String("method", c.Request.Method), slog.String("path", path),
			slog.Int("status", c.Writer.Status()), slog.Duration("latency", time.Since(start)),
			slog.String("client", c.ClientIP()))
	}
}
