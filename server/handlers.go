package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/carlodf/harvest/catalog"
	"github.com/carlodf/harvest/engine"
	"github.com/carlodf/harvest/opener"
	"github.com/carlodf/harvest/uploads"
)

type apiError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// storeError maps catalog sentinel errors to HTTP statuses.
func storeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	kind := "internal"
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, catalog.ErrDuplicateName):
		status, kind = http.StatusConflict, "duplicate_name"
	case errors.Is(err, catalog.ErrInUse):
		status, kind = http.StatusConflict, "in_use"
	case errors.Is(err, catalog.ErrInvalid):
		status, kind = http.StatusBadRequest, "invalid"
	}
	c.JSON(status, apiError{Kind: kind, Message: err.Error()})
}

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, apiError{Kind: "bad_input", Message: "invalid id"})
		return 0, false
	}
	return id, true
}

//
// Data systems

func (s *Server) createDataSystem(c *gin.Context) {
	var sys catalog.DataSystem
	if err := c.ShouldBindJSON(&sys); err != nil {
		c.JSON(http.StatusBadRequest, apiError{Kind: "bad_input", Message: err.Error()})
		return
	}
	if err := s.store.CreateDataSystem(c.Request.Context(), &sys); err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sys)
}

func (s *Server) listDataSystems(c *gin.Context) {
	systems, err := s.store.DataSystems(c.Request.Context())
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, systems)
}

func (s *Server) getDataSystem(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	sys, err := s.store.DataSystem(c.Request.Context(), id)
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sys)
}

func (s *Server) deleteDataSystem(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.store.DeleteDataSystem(c.Request.Context(), id); err != nil {
		storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

//
// Data sources

func (s *Server) createDataSource(c *gin.Context) {
	var src catalog.DataSource
	if err := c.ShouldBindJSON(&src); err != nil {
		c.JSON(http.StatusBadRequest, apiError{Kind: "bad_input", Message: err.Error()})
		return
	}
	if err := s.store.CreateDataSource(c.Request.Context(), &src); err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, src)
}

func (s *Server) listDataSources(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	sources, err := s.store.DataSourcesBySystem(c.Request.Context(), id)
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sources)
}

func (s *Server) deleteDataSource(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.store.DeleteDataSource(c.Request.Context(), id); err != nil {
		storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

//
// Attributes

func (s *Server) createAttribute(c *gin.Context) {
	var a catalog.Attribute
	if err := c.ShouldBindJSON(&a); err != nil {
		c.JSON(http.StatusBadRequest, apiError{Kind: "bad_input", Message: err.Error()})
		return
	}
	if err := s.store.CreateAttribute(c.Request.Context(), &a); err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (s *Server) listAttributes(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	attrs, err := s.store.AttributesBySource(c.Request.Context(), id)
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, attrs)
}

func (s *Server) deleteAttribute(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.store.DeleteAttribute(c.Request.Context(), id); err != nil {
		storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

//
// Cross references and mappings

func (s *Server) createCrossReference(c *gin.Context) {
	var cr catalog.CrossReference
	if err := c.ShouldBindJSON(&cr); err != nil {
		c.JSON(http.StatusBadRequest, apiError{Kind: "bad_input", Message: err.Error()})
		return
	}
	if err := s.store.CreateCrossReference(c.Request.Context(), &cr); err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cr)
}

func (s *Server) listCrossReferences(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	refs, err := s.store.CrossReferencesBySystem(c.Request.Context(), id)
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, refs)
}

func (s *Server) deleteCrossReference(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.store.DeleteCrossReference(c.Request.Context(), id); err != nil {
		storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) createCrossReferenceMapping(c *gin.Context) {
	var m catalog.CrossReferenceMapping
	if err := c.ShouldBindJSON(&m); err != nil {
		c.JSON(http.StatusBadRequest, apiError{Kind: "bad_input", Message: err.Error()})
		return
	}
	if err := s.store.CreateCrossReferenceMapping(c.Request.Context(), &m); err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (s *Server) listCrossReferenceMappings(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	maps, err := s.store.MappingsByCrossReference(c.Request.Context(), id)
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, maps)
}

func (s *Server) deleteCrossReferenceMapping(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.store.DeleteCrossReferenceMapping(c.Request.Context(), id); err != nil {
		storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

//
// Canonicals and data mappings

func (s *Server) createCanonical(c *gin.Context) {
	var can catalog.Canonical
	if err := c.ShouldBindJSON(&can); err != nil {
		c.JSON(http.StatusBadRequest, apiError{Kind: "bad_input", Message: err.Error()})
		return
	}
	if err := s.store.CreateCanonical(c.Request.Context(), &can); err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, can)
}

func (s *Server) listCanonicals(c *gin.Context) {
	canonicals, err := s.store.Canonicals(c.Request.Context())
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, canonicals)
}

func (s *Server) deleteCanonical(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.store.DeleteCanonical(c.Request.Context(), id); err != nil {
		storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) createDataMapping(c *gin.Context) {
	var m catalog.DataMapping
	if err := c.ShouldBindJSON(&m); err != nil {
		c.JSON(http.StatusBadRequest, apiError{Kind: "bad_input", Message: err.Error()})
		return
	}
	if err := s.store.CreateDataMapping(c.Request.Context(), &m); err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (s *Server) listDataMappings(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	maps, err := s.store.DataMappingsBySystem(c.Request.Context(), id)
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, maps)
}

func (s *Server) deleteDataMapping(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.store.DeleteDataMapping(c.Request.Context(), id); err != nil {
		storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

//
// Filter conditions

func (s *Server) createFilterCondition(c *gin.Context) {
	var f catalog.FilterCondition
	if err := c.ShouldBindJSON(&f); err != nil {
		c.JSON(http.StatusBadRequest, apiError{Kind: "bad_input", Message: err.Error()})
		return
	}
	if err := s.store.CreateFilterCondition(c.Request.Context(), &f); err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, f)
}

func (s *Server) listFilterConditions(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	conds, err := s.store.FilterConditionsBySystem(c.Request.Context(), id)
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conds)
}

func (s *Server) deleteFilterCondition(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.store.DeleteFilterCondition(c.Request.Context(), id); err != nil {
		storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

//
// Uploads and extraction

// session resolves the caller's upload session, minting one when absent.
// The id is always echoed back so clients can carry it forward.
func (s *Server) session(c *gin.Context) uploads.Session {
	id := strings.TrimSpace(c.GetHeader(SessionHeader))
	if id == "" {
		id = uploads.NewSessionID()
	}
	c.Header(SessionHeader, id)
	return s.uploads.Session(id)
}

// uploadCSV binds one multipart CSV file (form field "file") to a data
// source within the caller's session.
func (s *Server) uploadCSV(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	src, err := s.store.DataSource(c.Request.Context(), id)
	if err != nil {
		storeError(c, err)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, apiError{Kind: "bad_input", Message: "multipart field \"file\" is required"})
		return
	}
	if fileHeader.Size > s.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, apiError{
			Kind:    "bad_input",
			Message: fmt.Sprintf("payload exceeds %d byte limit", s.maxUpload),
		})
		return
	}
	if !isCSVUpload(fileHeader.Filename, fileHeader.Header.Get("Content-Type")) {
		c.JSON(http.StatusBadRequest, apiError{Kind: "bad_input", Message: "only CSV uploads are accepted"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, apiError{Kind: "internal", Message: err.Error()})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, s.maxUpload+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, apiError{Kind: "internal", Message: err.Error()})
		return
	}
	if int64(len(data)) > s.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, apiError{
			Kind:    "bad_input",
			Message: fmt.Sprintf("payload exceeds %d byte limit", s.maxUpload),
		})
		return
	}

	sess := s.session(c)
	err = s.uploads.Bind(sess.ID(), src.ID, opener.Payload{SourceName: fileHeader.Filename, Data: data})
	if err != nil {
		c.JSON(http.StatusBadRequest, apiError{Kind: "bad_input", Message: err.Error()})
		return
	}
	uploadsTotal.Inc()
	log.WithFields(log.Fields{
		"dataSource": src.Name,
		"file":       fileHeader.Filename,
		"bytes":      len(data),
	}).Info("payload bound")
	c.JSON(http.StatusOK, gin.H{"dataSourceId": src.ID, "fileName": fileHeader.Filename, "bytes": len(data)})
}

func isCSVUpload(filename, contentType string) bool {
	if strings.EqualFold(filepath.Ext(filename), ".csv") {
		return true
	}
	mt := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	return mt == "text/csv" || mt == "application/csv" || mt == "application/vnd.ms-excel"
}

// extract runs the engine for one data system against the caller's session
// and streams the output CSV back.
func (s *Server) extract(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	sess := s.session(c)

	start := time.Now()
	result, err := s.engine.Extract(c.Request.Context(), id, sess)
	extractionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		kind := engine.KindOf(err)
		extractionsTotal.WithLabelValues(string(kind)).Inc()
		c.JSON(statusForKind(kind), apiError{Kind: string(kind), Message: err.Error()})
		return
	}
	extractionsTotal.WithLabelValues("success").Inc()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", result.Filename))
	c.Data(http.StatusOK, "text/csv", result.CSV)
}

// statusForKind maps engine error kinds to HTTP statuses.
func statusForKind(kind engine.Kind) int {
	switch kind {
	case engine.KindBadInput, engine.KindNoMaster, engine.KindEmptyResult, engine.KindParse:
		return http.StatusBadRequest
	case engine.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
