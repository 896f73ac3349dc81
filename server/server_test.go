package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlodf/harvest/catalog"
	"github.com/carlodf/harvest/uploads"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testAPI struct {
	t   *testing.T
	srv *httptest.Server
}

func newTestAPI(t *testing.T, opts ...Option) *testAPI {
	t.Helper()
	s := New(catalog.NewInMem(), uploads.NewRegistry(), opts...)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testAPI{t: t, srv: srv}
}

func (a *testAPI) postJSON(path string, body any, out any) *http.Response {
	a.t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(a.t, err)
	resp, err := http.Post(a.srv.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(a.t, err)
	a.t.Cleanup(func() { resp.Body.Close() })
	if out != nil && resp.StatusCode < 300 {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (a *testAPI) upload(path, session, filename, content string) *http.Response {
	a.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(a.t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(a.t, err)
	require.NoError(a.t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, a.srv.URL+path, &buf)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if session != "" {
		req.Header.Set(SessionHeader, session)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	a.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// seed builds the cross-reference join scenario through the public API and
// returns the system id plus per-source upload paths.
func (a *testAPI) seed() (systemID int64, uploadEnc, uploadPat string) {
	a.t.Helper()

	var sys catalog.DataSystem
	resp := a.postJSON("/api/data-systems", gin.H{"name": "Clinical", "active": true}, &sys)
	require.Equal(a.t, http.StatusCreated, resp.StatusCode)

	var enc, pat catalog.DataSource
	resp = a.postJSON("/api/data-sources", gin.H{
		"dataSystemId": sys.ID, "name": "Encounters", "fileName": "encounters.csv",
		"active": true, "isMaster": true,
	}, &enc)
	require.Equal(a.t, http.StatusCreated, resp.StatusCode)
	resp = a.postJSON("/api/data-sources", gin.H{
		"dataSystemId": sys.ID, "name": "Patients", "fileName": "patients.csv", "active": true,
	}, &pat)
	require.Equal(a.t, http.StatusCreated, resp.StatusCode)

	attr := func(sourceID int64, name string) catalog.Attribute {
		var a2 catalog.Attribute
		r := a.postJSON("/api/attributes", gin.H{"dataSourceId": sourceID, "name": name}, &a2)
		require.Equal(a.t, http.StatusCreated, r.StatusCode)
		return a2
	}
	encPid := attr(enc.ID, "pid")
	encEid := attr(enc.ID, "eid")
	patPid := attr(pat.ID, "pid")
	patName := attr(pat.ID, "name")

	var cr catalog.CrossReference
	resp = a.postJSON("/api/cross-references", gin.H{
		"dataSystemId": sys.ID, "name": "enc-pat", "active": true,
	}, &cr)
	require.Equal(a.t, http.StatusCreated, resp.StatusCode)
	resp = a.postJSON("/api/cross-reference-mappings", gin.H{
		"crossReferenceId":   cr.ID,
		"sourceDataSourceId": enc.ID, "sourceAttributeId": encPid.ID,
		"targetDataSourceId": pat.ID, "targetAttributeId": patPid.ID,
	}, nil)
	require.Equal(a.t, http.StatusCreated, resp.StatusCode)

	var cEnc, cName catalog.Canonical
	resp = a.postJSON("/api/canonicals", gin.H{"name": "EncounterID"}, &cEnc)
	require.Equal(a.t, http.StatusCreated, resp.StatusCode)
	resp = a.postJSON("/api/canonicals", gin.H{"name": "PatientName"}, &cName)
	require.Equal(a.t, http.StatusCreated, resp.StatusCode)

	resp = a.postJSON("/api/data-mappings", gin.H{
		"dataSystemId": sys.ID, "canonicalId": cEnc.ID,
		"primaryDataSourceId": enc.ID, "primaryAttributeId": encEid.ID,
	}, nil)
	require.Equal(a.t, http.StatusCreated, resp.StatusCode)
	resp = a.postJSON("/api/data-mappings", gin.H{
		"dataSystemId": sys.ID, "canonicalId": cName.ID,
		"primaryDataSourceId": pat.ID, "primaryAttributeId": patName.ID,
	}, nil)
	require.Equal(a.t, http.StatusCreated, resp.StatusCode)

	return sys.ID,
		fmt.Sprintf("/api/data-sources/%d/upload", enc.ID),
		fmt.Sprintf("/api/data-sources/%d/upload", pat.ID)
}

func TestUploadExtractRoundTrip(t *testing.T) {
	api := newTestAPI(t)
	systemID, uploadEnc, uploadPat := api.seed()

	// First upload mints a session; reuse it for the rest of the flow.
	resp := api.upload(uploadEnc, "", "encounters.csv", "pid,eid\nP1,E9\n")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	session := resp.Header.Get(SessionHeader)
	require.NotEmpty(t, session)

	resp = api.upload(uploadPat, session, "patients.csv", "pid,name\nP1,Ada\n")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, api.srv.URL+fmt.Sprintf("/api/data-systems/%d/extract", systemID), nil)
	require.NoError(t, err)
	req.Header.Set(SessionHeader, session)
	extResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer extResp.Body.Close()

	require.Equal(t, http.StatusOK, extResp.StatusCode)
	assert.Equal(t, "text/csv", extResp.Header.Get("Content-Type"))
	assert.Contains(t, extResp.Header.Get("Content-Disposition"), "extracted_data_")

	body, err := io.ReadAll(extResp.Body)
	require.NoError(t, err)
	assert.Equal(t, "EncounterID,PatientName\r\nE9,Ada\r\n", string(body))
}

func TestExtractWithoutUploadsFails(t *testing.T) {
	api := newTestAPI(t)
	systemID, _, _ := api.seed()

	resp, err := http.Post(api.srv.URL+fmt.Sprintf("/api/data-systems/%d/extract", systemID), "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	// Masters without payloads are skipped; zero rows is an empty result.
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var apiErr apiError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&apiErr))
	assert.Equal(t, "empty_result", apiErr.Kind)
}

func TestExtractUnknownSystem(t *testing.T) {
	api := newTestAPI(t)
	resp, err := http.Post(api.srv.URL+"/api/data-systems/999/extract", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUploadRejectsNonCSV(t *testing.T) {
	api := newTestAPI(t)
	_, uploadEnc, _ := api.seed()

	resp := api.upload(uploadEnc, "", "data.xlsx", "not a csv")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadRejectsOversizedPayload(t *testing.T) {
	api := newTestAPI(t, WithMaxUploadBytes(64))
	_, uploadEnc, _ := api.seed()

	big := "pid,eid\n" + strings.Repeat("P,E\n", 100)
	resp := api.upload(uploadEnc, "", "big.csv", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestUploadSessionsIsolated(t *testing.T) {
	api := newTestAPI(t)
	systemID, uploadEnc, _ := api.seed()

	resp := api.upload(uploadEnc, "session-a", "encounters.csv", "pid,eid\nP1,E9\n")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// A different session sees no payloads.
	req, err := http.NewRequest(http.MethodPost, api.srv.URL+fmt.Sprintf("/api/data-systems/%d/extract", systemID), nil)
	require.NoError(t, err)
	req.Header.Set(SessionHeader, "session-b")
	extResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer extResp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, extResp.StatusCode)
}

func TestCatalogCRUDErrorMapping(t *testing.T) {
	api := newTestAPI(t)
	api.seed()

	// Duplicate system name conflicts.
	resp := api.postJSON("/api/data-systems", gin.H{"name": "Clinical"}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Unknown parent is not found.
	resp = api.postJSON("/api/data-sources", gin.H{"dataSystemId": 999, "name": "Orphan"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Delete guard surfaces as conflict.
	req, err := http.NewRequest(http.MethodDelete, api.srv.URL+"/api/data-systems/1", nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer delResp.Body.Close()
	assert.Equal(t, http.StatusConflict, delResp.StatusCode)
}
