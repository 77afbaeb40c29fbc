package server

import (
	"html/template"

	"github.com/gin-gonic/gin"
)

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(s.log))
	r.SetHTMLTemplate(template.Must(template.New("index").Funcs(pageFuncs).Parse(indexHTML)))

	r.GET("/", s.Index)
	r.GET("/healthz", s.Health)
	r.GET("/ws", s.Stream)

	api := r.Group("/api")
	{
		api.GET("/state", s.State)
		api.GET("/events", s.Events)
		api.POST("/refresh", s.Refresh)
		api.POST("/baseline", s.Baseline)
		api.POST("/auto", s.Auto)
	}
	return r
}
