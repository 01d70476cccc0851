package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/dittoshare/internal/logger"
	"github.com/marmos91/dittoshare/internal/telemetry"
	"github.com/marmos91/dittoshare/pkg/fileops"
	"github.com/marmos91/dittoshare/pkg/metrics"
	"github.com/marmos91/dittoshare/pkg/registry"
	"github.com/marmos91/dittoshare/pkg/resolve"
)

// shareHandler routes requests under /{share} to the file operations.
type shareHandler struct {
	reg           *registry.Registry
	ops           *fileops.Operations
	metrics       metrics.HTTPMetrics
	maxUploadSize int64
}

// index renders the list of visible shares at the server root.
func (h *shareHandler) index(w http.ResponseWriter, r *http.Request) {
	shares := h.reg.ListVisible()

	if wantsJSON(r) {
		names := make([]string, 0, len(shares))
		for _, s := range shares {
			names = append(names, s.Name)
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"shares": names})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if r.Method == http.MethodHead {
		return
	}
	if err := indexTemplate.Execute(w, indexData{Shares: shares}); err != nil {
		logger.ErrorCtx(r.Context(), "render index", logger.KeyError, err)
	}
}

// dispatch is the catch-all for /{share} and /{share}/*. Custom
// handlers win over shares; everything else goes through the registry,
// the path resolver, and the operation selected by method and query.
func (h *shareHandler) dispatch(w http.ResponseWriter, r *http.Request) {
	shareName := chi.URLParam(r, "share")
	rest := chi.URLParam(r, "*")

	// Opaque handlers receive the request verbatim.
	if custom, ok := h.reg.LookupHandler(shareName); ok {
		custom.ServeHTTP(w, r)
		return
	}

	share, err := h.reg.Lookup(shareName)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if lc := logger.FromContext(r.Context()); lc != nil {
		r = r.WithContext(logger.WithContext(r.Context(), lc.WithShare(share.Name)))
	}

	op := "unknown"
	start := time.Now()
	ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
	if h.metrics != nil {
		defer func() {
			h.metrics.RecordRequest(share.Name, op, ww.Status(), time.Since(start))
		}()
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		op = h.serveGet(ww, r, share, rest)
	case http.MethodPut:
		op = "upload"
		h.serveUpload(ww, r, share, rest)
	case http.MethodDelete:
		op = "delete"
		h.serveDelete(ww, r, share, rest)
	case http.MethodPost:
		op = h.servePost(ww, r, share, rest)
	default:
		op = "unsupported"
		http.Error(ww, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}
}

// serveGet stats the target and either renders a directory listing or
// streams the file. Returns the operation name for metrics.
func (h *shareHandler) serveGet(w http.ResponseWriter, r *http.Request, share *registry.Share, rest string) string {
	info, err := h.ops.Stat(r.Context(), share, rest)
	if err != nil {
		h.writeError(w, r, err)
		return "download"
	}

	if info.IsDir() {
		// Directory links in listings are relative, so directory URLs
		// need the trailing slash.
		if !strings.HasSuffix(r.URL.Path, "/") {
			target := r.URL.Path + "/"
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			http.Redirect(w, r, target, http.StatusMovedPermanently)
			return "list"
		}
		h.serveListing(w, r, share, rest)
		return "list"
	}

	h.serveDownload(w, r, share, rest, info.Size())
	return "download"
}

func (h *shareHandler) serveListing(w http.ResponseWriter, r *http.Request, share *registry.Share, rest string) {
	// Directory URLs carry a trailing slash; the listing path does not.
	dirPath := "/" + strings.TrimSuffix(rest, "/")

	ctx, span := telemetry.StartShareSpan(r.Context(), "list", share.Name, dirPath)
	defer span.End()
	r = r.WithContext(ctx)

	entries, err := h.ops.List(ctx, share, rest)
	if err != nil {
		telemetry.RecordError(ctx, err)
		h.writeError(w, r, err)
		return
	}
	span.SetAttributes(telemetry.Entries(len(entries)))

	if h.metrics != nil {
		h.metrics.RecordRequestStart(share.Name, "list")
		defer h.metrics.RecordRequestEnd(share.Name, "list")
	}

	if wantsJSON(r) {
		writeJSON(w, r, http.StatusOK, map[string]any{
			"share":   share.Name,
			"path":    dirPath,
			"entries": entries,
		})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if r.Method == http.MethodHead {
		return
	}
	data := listingData{
		Share:     share,
		Path:      dirPath,
		AtRoot:    rest == "",
		Entries:   entries,
		CanUpload: !share.ReadOnly,
	}
	if err := listingTemplate.Execute(w, data); err != nil {
		logger.ErrorCtx(r.Context(), "render listing", logger.KeyError, err)
	}
}

func (h *shareHandler) serveDownload(w http.ResponseWriter, r *http.Request, share *registry.Share, rest string, size int64) {
	ctx, span := telemetry.StartShareSpan(r.Context(), "download", share.Name, "/"+rest, telemetry.Size(size))
	defer span.End()
	r = r.WithContext(ctx)

	ctype := mime.TypeByExtension(path.Ext(rest))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", size))

	if r.Method == http.MethodHead {
		return
	}

	if h.metrics != nil {
		h.metrics.RecordRequestStart(share.Name, "download")
		defer h.metrics.RecordRequestEnd(share.Name, "download")
	}

	n, err := h.ops.Download(ctx, share, rest, w)
	span.SetAttributes(telemetry.Bytes(n))
	if h.metrics != nil {
		h.metrics.RecordBytesTransferred(share.Name, "download", n)
	}
	if err != nil {
		telemetry.RecordError(ctx, err)
		if n == 0 {
			h.writeError(w, r, err)
			return
		}
		// Headers are gone; the truncated body is all we can signal.
		logger.ErrorCtx(r.Context(), "download aborted mid-stream",
			logger.KeyShare, share.Name, logger.KeyError, err)
	}
}

func (h *shareHandler) serveUpload(w http.ResponseWriter, r *http.Request, share *registry.Share, rest string) {
	ctx, span := telemetry.StartShareSpan(r.Context(), "upload", share.Name, "/"+rest)
	defer span.End()
	r = r.WithContext(ctx)

	if h.metrics != nil {
		h.metrics.RecordRequestStart(share.Name, "upload")
		defer h.metrics.RecordRequestEnd(share.Name, "upload")
	}

	body := r.Body
	if h.maxUploadSize > 0 {
		body = http.MaxBytesReader(w, body, h.maxUploadSize)
	}

	n, err := h.ops.Upload(ctx, share, rest, body)
	span.SetAttributes(telemetry.Bytes(n))
	if h.metrics != nil {
		h.metrics.RecordBytesTransferred(share.Name, "upload", n)
	}
	if err != nil {
		telemetry.RecordError(ctx, err)
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, map[string]any{"written": n})
}

func (h *shareHandler) serveDelete(w http.ResponseWriter, r *http.Request, share *registry.Share, rest string) {
	ctx, span := telemetry.StartShareSpan(r.Context(), "delete", share.Name, "/"+rest)
	defer span.End()
	r = r.WithContext(ctx)

	if err := h.ops.Delete(ctx, share, rest); err != nil {
		telemetry.RecordError(ctx, err)
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// servePost handles the query-selected mutations and the browser
// multipart upload form. Returns the operation name for metrics.
func (h *shareHandler) servePost(w http.ResponseWriter, r *http.Request, share *registry.Share, rest string) string {
	switch op := r.URL.Query().Get("op"); op {
	case "mkdir":
		ctx, span := telemetry.StartShareSpan(r.Context(), op, share.Name, "/"+rest)
		defer span.End()
		if err := h.ops.Mkdir(ctx, share, rest); err != nil {
			telemetry.RecordError(ctx, err)
			h.writeError(w, r, err)
			return op
		}
		w.WriteHeader(http.StatusCreated)
		return op

	case "rename":
		ctx, span := telemetry.StartShareSpan(r.Context(), op, share.Name, "/"+rest)
		defer span.End()
		to := r.URL.Query().Get("to")
		if to == "" {
			http.Error(w, "missing to parameter", http.StatusBadRequest)
			return op
		}
		clean, err := resolve.Clean(rest)
		if err != nil || clean == "" {
			h.writeError(w, r, resolve.ErrTraversal)
			return op
		}
		dir, from := path.Split(clean)
		if err := h.ops.Rename(ctx, share, dir, from, to); err != nil {
			telemetry.RecordError(ctx, err)
			h.writeError(w, r, err)
			return op
		}
		w.WriteHeader(http.StatusNoContent)
		return op

	case "move", "copy":
		dest := r.URL.Query().Get("dest")
		overwrite := isTruthy(r.URL.Query().Get("overwrite"))
		ctx, span := telemetry.StartShareSpan(r.Context(), op, share.Name, "/"+rest,
			telemetry.Dest(dest), telemetry.Overwrite(overwrite))
		defer span.End()
		dstShare, dstRel, err := h.splitDest(dest)
		if err != nil {
			telemetry.RecordError(ctx, err)
			h.writeError(w, r, err)
			return op
		}
		if op == "move" {
			err = h.ops.Move(ctx, share, rest, dstShare, dstRel, overwrite)
		} else {
			err = h.ops.Copy(ctx, share, rest, dstShare, dstRel, overwrite)
		}
		if err != nil {
			telemetry.RecordError(ctx, err)
			h.writeError(w, r, err)
			return op
		}
		w.WriteHeader(http.StatusNoContent)
		return op

	case "":
		if isMultipart(r) {
			h.serveFormUpload(w, r, share, rest)
			return "upload"
		}
		http.Error(w, "missing op parameter", http.StatusBadRequest)
		return "unknown"

	default:
		http.Error(w, fmt.Sprintf("unknown op %q", op), http.StatusBadRequest)
		return "unknown"
	}
}

// serveFormUpload stores every file part of a browser form POST into
// the target directory and redirects back to the listing.
func (h *shareHandler) serveFormUpload(w http.ResponseWriter, r *http.Request, share *registry.Share, rest string) {
	ctx, span := telemetry.StartShareSpan(r.Context(), "upload", share.Name, "/"+rest)
	defer span.End()
	r = r.WithContext(ctx)

	if h.metrics != nil {
		h.metrics.RecordRequestStart(share.Name, "upload")
		defer h.metrics.RecordRequestEnd(share.Name, "upload")
	}
	if h.maxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	}

	reader, err := r.MultipartReader()
	if err != nil {
		http.Error(w, "malformed multipart body", http.StatusBadRequest)
		return
	}

	stored := 0
	var total int64
	for {
		part, err := reader.NextPart()
		if err != nil {
			break
		}
		name := path.Base(part.FileName())
		if part.FormName() != "file" || name == "" || name == "." || name == "/" {
			part.Close()
			continue
		}

		n, err := h.ops.Upload(ctx, share, path.Join(rest, name), part)
		part.Close()
		total += n
		if h.metrics != nil {
			h.metrics.RecordBytesTransferred(share.Name, "upload", n)
		}
		if err != nil {
			telemetry.RecordError(ctx, err)
			h.writeError(w, r, err)
			return
		}
		stored++
	}
	span.SetAttributes(telemetry.Bytes(total))

	if stored == 0 {
		http.Error(w, "no file field in form", http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, r.URL.Path, http.StatusSeeOther)
}

// splitDest parses a rooted /share/relative destination and resolves
// its share through the registry.
func (h *shareHandler) splitDest(dest string) (*registry.Share, string, error) {
	if !strings.HasPrefix(dest, "/") {
		return nil, "", fmt.Errorf("%w: destination must be a rooted /share/path", fileops.ErrNotFound)
	}
	name, rel, _ := strings.Cut(strings.TrimPrefix(dest, "/"), "/")
	share, err := h.reg.Lookup(name)
	if err != nil {
		return nil, "", err
	}
	return share, rel, nil
}

// writeError translates a domain error into an HTTP response. Bodies
// carry only the status text: traversal and permission failures must
// not leak what exists on disk.
func (h *shareHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapError(err)
	if status == http.StatusInternalServerError {
		logger.ErrorCtx(r.Context(), "request failed", logger.KeyError, err)
	} else {
		logger.DebugCtx(r.Context(), "request rejected",
			logger.KeyStatus, status, logger.KeyError, err)
	}
	http.Error(w, http.StatusText(status), status)
}

// mapError maps the operation error taxonomy onto status codes.
func mapError(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, resolve.ErrTraversal):
		// Masked: a traversal probe learns nothing about the tree.
		return http.StatusForbidden
	case errors.Is(err, fileops.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, fileops.ErrNotFound), errors.Is(err, registry.ErrShareNotFound):
		return http.StatusNotFound
	case errors.Is(err, fileops.ErrConflict):
		return http.StatusConflict
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

func wantsJSON(r *http.Request) bool {
	return r.URL.Query().Get("format") == "json"
}

func isTruthy(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}

func isMultipart(r *http.Request) bool {
	ctype, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && ctype == "multipart/form-data"
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.ErrorCtx(r.Context(), "encode response", logger.KeyError, err)
	}
}
