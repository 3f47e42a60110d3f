package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-shop-chat/internal/http/middleware"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("error body %q: %v", w.Body.String(), err)
	}
	return er
}

func Test_failInternal_HidesCauseAndLogsIt(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.RedactingLogger(middleware.RedactOptions{}))
	r.GET("/boom", func(c *gin.Context) {
		failInternal(c, ErrCodeListFailed, errors.New("sqlite: disk I/O error"))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set("X-Request-ID", "rid-500")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	er := decodeError(t, w)
	if er.RequestID != "rid-500" || er.Code != ErrCodeListFailed || er.Message != internalMessage {
		t.Fatalf("unexpected body: %+v", er)
	}
	if strings.Contains(w.Body.String(), "disk I/O") {
		t.Fatalf("cause leaked to client: %s", w.Body.String())
	}
	logs := buf.String()
	if !strings.Contains(logs, `"error":"sqlite: disk I/O error"`) || !strings.Contains(logs, `"request_id":"rid-500"`) {
		t.Fatalf("cause not logged with request id: %s", logs)
	}
}

func Test_Fail_RequestIDSources(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// from the RequestID middleware
	r := gin.New()
	r.Use(middleware.RequestID())
	r.GET("/missing", func(c *gin.Context) { Fail(c, http.StatusNotFound, ErrCodeNotFound, "room not found") })
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	req.Header.Set("X-Request-ID", "rid-404")
	r.ServeHTTP(w, req)
	if er := decodeError(t, w); w.Code != http.StatusNotFound || er.RequestID != "rid-404" || er.Code != ErrCodeNotFound {
		t.Fatalf("404: %d %+v", w.Code, er)
	}

	// from a response header set by someone else
	r = gin.New()
	r.Use(func(c *gin.Context) { c.Header("X-Request-ID", "rid-hdr"); c.Next() })
	r.GET("/bad", func(c *gin.Context) { fail(c, http.StatusBadRequest, ErrCodeBadRequest, "nope") })
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/bad", nil))
	if er := decodeError(t, w); er.RequestID != "rid-hdr" {
		t.Fatalf("400: %+v", er)
	}

	// none at all: field omitted
	r = gin.New()
	r.GET("/bare", func(c *gin.Context) { fail(c, http.StatusConflict, ErrCodeConflict, "taken") })
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/bare", nil))
	if strings.Contains(w.Body.String(), "request_id") {
		t.Fatalf("empty request id should be omitted: %s", w.Body.String())
	}
}

func Test_notModified(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ts := time.Unix(1700000000, 5)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		if notModified(c, "messages:1", 3, &ts) {
			return
		}
		ok(c, http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/empty", func(c *gin.Context) {
		if notModified(c, "rooms:9", 0, nil) {
			return
		}
		ok(c, http.StatusOK, gin.H{})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	etag := w.Header().Get("ETag")
	if w.Code != http.StatusOK || etag != `W/"messages:1:3:1700000000000000005"` {
		t.Fatalf("first GET: status=%d etag=%q", w.Code, etag)
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("If-None-Match", etag)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified || w.Body.Len() != 0 {
		t.Fatalf("revalidation: status=%d body=%q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/empty", nil))
	if got := w.Header().Get("ETag"); got != `W/"rooms:9:0:0"` {
		t.Fatalf("empty etag = %q", got)
	}
}
