// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package status serves run progress over HTTP, grounded on nightlight's
// internal/rest/serve.go gin wiring (api/v1 group, gin.Default()). Unlike
// the teacher's job-submission API this is read-only: the dispatcher
// reports island counts as it goes and the server just exposes them.
package status

import (
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// Server tracks island fitting progress and exposes it over /api/v1.
type Server struct {
	total int64
	done  int64
}

// New returns an idle progress server.
func New() *Server {
	return &Server{}
}

// SetTotal records the expected island count, once known.
func (s *Server) SetTotal(n int) {
	atomic.StoreInt64(&s.total, int64(n))
}

// Increment records one more island finishing.
func (s *Server) Increment() {
	atomic.AddInt64(&s.done, 1)
}

// Handler builds the gin engine exposing ping and status endpoints.
func (s *Server) Handler() *gin.Engine {
	r := gin.Default()
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.GET("/status", s.getStatus)
		}
	}
	return r
}

// Run starts the HTTP server and blocks, matching nightlight's r.Run()
// call in internal/rest/serve.go.
func (s *Server) Run(addr string) error {
	return s.Handler().Run(addr)
}

func getPing(c *gin.Context) {
	c.JSON(200, gin.H{"message": "pong"})
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(200, gin.H{
		"islands_total": atomic.LoadInt64(&s.total),
		"islands_done":  atomic.LoadInt64(&s.done),
	})
}
