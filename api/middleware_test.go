package api

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func gzipBody(t *testing.T, body string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write([]byte(body)); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf
}

func TestGzipRequestMiddlewareDecompresses(t *testing.T) {
	e := echo.New()
	e.Use(GzipRequestMiddleware())
	e.POST("/echo", func(c echo.Context) error {
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return err
		}
		return c.String(http.StatusOK, string(body))
	})

	req := httptest.NewRequest(http.MethodPost, "/echo", gzipBody(t, `{"hello":"world"}`))
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != `{"hello":"world"}` {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestGzipRequestMiddlewareCapsDecompressedBody(t *testing.T) {
	e := echo.New()
	e.Use(GzipRequestMiddleware())
	e.POST("/echo", func(c echo.Context) error {
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return err
		}
		return c.String(http.StatusOK, strconv.Itoa(len(body)))
	})

	huge := strings.Repeat("a", maxBodySize*2)
	req := httptest.NewRequest(http.MethodPost, "/echo", gzipBody(t, huge))
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Body.String() != strconv.Itoa(maxBodySize) {
		t.Fatalf("decompressed length = %s, want %d", rec.Body.String(), maxBodySize)
	}
}

func TestGzipRequestMiddlewareRejectsGarbage(t *testing.T) {
	e := echo.New()
	e.Use(GzipRequestMiddleware())
	e.POST("/echo", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("not gzip"))
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGzipRequestMiddlewarePassesPlainBodies(t *testing.T) {
	e := echo.New()
	e.Use(GzipRequestMiddleware())
	e.POST("/echo", func(c echo.Context) error {
		body, _ := io.ReadAll(c.Request().Body)
		return c.String(http.StatusOK, string(body))
	})

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("plain"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Body.String() != "plain" {
		t.Fatalf("body = %s", rec.Body.String())
	}
}
