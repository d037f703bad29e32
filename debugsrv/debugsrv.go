// Package debugsrv is an optional fasthttp-based introspection endpoint
// serving the registry's live allocator/pool/broker directory as JSON.
// Grounded on the teacher serving cluster/object state over HTTP
// (ais/prxs3.go); here the surface is read-only and tiny by comparison.
package debugsrv

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"github.com/NVIDIA/ash/registry"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Server is a minimal HTTP(S) introspection endpoint over a Registry.
type Server struct {
	reg *registry.Registry
	srv *fasthttp.Server
}

// New builds a Server over reg. It does not start listening until Serve is
// called.
func New(reg *registry.Registry) *Server {
	s := &Server{reg: reg}
	s.srv = &fasthttp.Server{Handler: s.handle, Name: "ash-debugsrv"}
	return s
}

// ListenAndServe blocks serving on addr (e.g. "127.0.0.1:0").
func (s *Server) ListenAndServe(addr string) error {
	if err := s.srv.ListenAndServe(addr); err != nil {
		return errors.WithMessagef(err, "debugsrv: listening on %s", addr)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() error { return s.srv.Shutdown() }

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/debug/ash/allocators", "/debug/ash/pools", "/debug/ash/brokers":
		s.writeList(ctx)
	default:
		s.writeSnapshot(ctx)
	}
}

func (s *Server) writeList(ctx *fasthttp.RequestCtx) {
	entries, err := s.reg.List()
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	body, err := jsonAPI.Marshal(entries)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func (s *Server) writeSnapshot(ctx *fasthttp.RequestCtx) {
	name := string(ctx.QueryArgs().Peek("name"))
	if name == "" {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	snap, ok := s.reg.Lookup(name)
	if !ok {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	body, err := jsonAPI.Marshal(snap)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}
