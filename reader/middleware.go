package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/segmentio/ksuid"
	log "github.com/sirupsen/logrus"

	mw "community.io/pinboard/common/middleware"
	cst "community.io/pinboard/constants"
	se "community.io/pinboard/errors"
)

// requestIDer tags each request with a fresh id, reusing one supplied by a proxy in front
func requestIDer() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(mw.HeaderRequestID)
		if id == "" {
			id = ksuid.New().String()
		}
		c.Set(cst.LogFieldRequestID, id)
		c.Header(mw.HeaderRequestID, id)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		log.WithFields(log.Fields{
			cst.LogFieldRequestID: c.GetString(cst.LogFieldRequestID),
			"method":              c.Request.Method,
			"path":                path,
			"status":              c.Writer.Status(),
			"latency":             time.Since(start).String(),
			"ip":                  c.ClientIP(),
		}).Info("served request")
	}
}

func panicRecoverer() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if reason := recover(); reason != nil {
				log.WithField("panicReason", reason).WithField(cst.LogFieldRequestID, c.GetString(cst.LogFieldRequestID)).
					Error("got panic from underlying handler")
				respErr(c, se.NewServiceFailure("internal server error"))
				c.Abort()
			}
		}()
		c.Next()
	}
}

type errView struct {
	Err  string     `json:"error"`
	Code se.ErrCode `json:"code"`
}

func respErr(c *gin.Context, err *se.Err) {
	c.JSON(err.StatusCode(), errView{Err: err.Error(), Code: err.Code})
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, errView{Err: "page not found", Code: se.ErrCodeNotFound})
}
