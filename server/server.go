// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the extraction pipeline over HTTP.
package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jcodagnone/fieldex/classifier"
	"github.com/jcodagnone/fieldex/document"
	"github.com/jcodagnone/fieldex/fields"
	"github.com/jcodagnone/fieldex/pipeline"
	"github.com/jcodagnone/fieldex/store"
)

// RetryAfter is advertised to clients while no model is ready.
const RetryAfter = 5 * time.Second

type Server struct {
	processor *pipeline.Processor
	engine    *classifier.Engine
	repo      store.Repository
	loader    classifier.Loader

	// one document at a time, so every decision sees the invoices stored
	// before it
	mu sync.Mutex
}

func NewServer(processor *pipeline.Processor, engine *classifier.Engine, repo store.Repository, loader classifier.Loader) *Server {
	return &Server{
		processor: processor,
		engine:    engine,
		repo:      repo,
		loader:    loader,
	}
}

// Router registers the API routes on a new gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.POST("/api/documents", s.processDocument)
	r.GET("/api/documents/:id", s.getDecision)
	r.GET("/api/documents/:id/blocks", s.listBlocks)
	r.PUT("/api/documents/:id/blocks", s.labelBlock)
	r.GET("/api/invoices", s.listInvoices)
	r.GET("/api/model", s.modelStatus)
	r.POST("/api/model/reload", s.reloadModel)

	return r
}

func (s *Server) Run(addr string) error {
	log.Printf("Listening on %s", addr)

	return s.Router().Run(addr)
}

// notReady answers 503 when err says the model is not loaded yet.
func notReady(ctx *gin.Context, err error) bool {
	if !classifier.IsRetryable(err) {
		return false
	}

	ctx.Header("Retry-After", strconv.Itoa(int(RetryAfter.Seconds())))
	ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})

	return true
}

// readDocument accepts the JSON representation or an hOCR page.
func readDocument(ctx *gin.Context) (*document.Document, error) {
	contentType := ctx.ContentType()

	switch {
	case contentType == "" || contentType == gin.MIMEJSON:
		doc, err := document.ReadJSON(ctx.Request.Body)
		if err != nil {
			return nil, err
		}

		if doc.ID == "" {
			doc.ID = ctx.DefaultQuery("id", uuid.NewString())
		}

		return doc, nil
	case contentType == gin.MIMEHTML || strings.HasSuffix(contentType, "xhtml+xml"):
		return document.ReadHOCR(ctx.Request.Body, ctx.DefaultQuery("id", uuid.NewString()))
	default:
		return nil, fmt.Errorf("unsupported content type %q", contentType)
	}
}

func (s *Server) processDocument(ctx *gin.Context) {
	doc, err := readDocument(ctx)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.repo.DuplicateCandidates(doc.ID)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	res, err := s.processor.Process(ctx.Request.Context(), doc, existing)
	if err != nil {
		if !notReady(ctx, err) {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}

		return
	}

	if ctx.Query("dry_run") != "true" {
		if err := s.repo.SaveDocumentResult(res); err != nil {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

			return
		}
	}

	ctx.JSON(http.StatusOK, res)
}

func (s *Server) getDecision(ctx *gin.Context) {
	res, err := s.repo.GetDecision(ctx.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "document not found"})

		return
	} else if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	ctx.JSON(http.StatusOK, res)
}

func (s *Server) listBlocks(ctx *gin.Context) {
	blocks, err := s.repo.ListBlocks(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	if len(blocks) == 0 {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "document not found"})

		return
	}

	ctx.JSON(http.StatusOK, blocks)
}

// LabelRequest corrects the label of one block.
type LabelRequest struct {
	Page      int          `json:"page"`
	LineIndex int          `json:"line_index"`
	Position  int          `json:"position"`
	Label     fields.Label `json:"label"`
}

func (s *Server) labelBlock(ctx *gin.Context) {
	var req LabelRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	err := s.repo.SetActualLabel(ctx.Param("id"), req.Page, req.LineIndex, req.Position, req.Label)
	if errors.Is(err, store.ErrNotFound) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "block not found"})

		return
	} else if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "success"})
}

// invoiceFilter builds a filter from the from, to, min_confidence and
// number query parameters.
func invoiceFilter(ctx *gin.Context) (store.Filter, error) {
	var (
		filters  []store.Filter
		from, to time.Time
	)

	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &from}, {"to", &to}} {
		if v := ctx.Query(p.name); v != "" {
			t, err := time.Parse(time.DateOnly, v)
			if err != nil {
				return nil, fmt.Errorf("invalid %s date %q", p.name, v)
			}

			*p.dst = t
		}
	}

	if !from.IsZero() || !to.IsZero() {
		filters = append(filters, store.DateRange(from, to))
	}

	if v := ctx.Query("min_confidence"); v != "" {
		c, err := strconv.ParseFloat(v, 64)
		if err != nil || c < 0 || c > 1 {
			return nil, fmt.Errorf("invalid min_confidence %q", v)
		}

		filters = append(filters, store.MinConfidence(c))
	}

	if v := ctx.Query("number"); v != "" {
		filters = append(filters, store.Number(v))
	}

	return store.And(filters...), nil
}

func (s *Server) listInvoices(ctx *gin.Context) {
	f, err := invoiceFilter(ctx)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	invoices, err := s.repo.ListInvoices(f)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	ctx.JSON(http.StatusOK, invoices)
}

// ModelStatus describes the serving model.
type ModelStatus struct {
	State     string         `json:"state"`
	Version   string         `json:"version,omitempty"`
	Schema    string         `json:"schema,omitempty"`
	Labels    []fields.Label `json:"labels,omitempty"`
	TrainedAt *time.Time     `json:"trained_at,omitempty"`
}

func (s *Server) status() ModelStatus {
	ret := ModelStatus{State: s.engine.State().String()}

	if m := s.engine.Model(); m != nil {
		ret.Version = m.Version
		ret.Schema = m.SchemaVersion
		ret.Labels = m.Labels
		ret.TrainedAt = &m.TrainedAt
	}

	return ret
}

func (s *Server) modelStatus(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, s.status())
}

func (s *Server) reloadModel(ctx *gin.Context) {
	if s.loader == nil {
		ctx.JSON(http.StatusNotImplemented, gin.H{"error": "no model source configured"})

		return
	}

	if err := s.engine.Load(ctx.Request.Context(), s.loader); err != nil {
		status := http.StatusInternalServerError
		if classifier.IsSchemaMismatch(err) || classifier.IsInvalidModel(err) {
			status = http.StatusConflict
		}

		ctx.JSON(status, gin.H{"error": err.Error(), "model": s.status()})

		return
	}

	ctx.JSON(http.StatusOK, s.status())
}
