package photo

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/beehive/service/internal/middleware"
	"github.com/beehive/service/internal/response"
	"github.com/beehive/service/internal/storage"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to a temp file.
const multipartMemory = 8 << 20

// Handler holds HTTP handlers for bee photo endpoints.
type Handler struct {
	svc            *Service
	maxUploadBytes int64
	log            *zap.Logger
}

// NewHandler creates a new photo Handler.
func NewHandler(svc *Service, maxUploadBytes int64, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, maxUploadBytes: maxUploadBytes, log: log}
}

// Routes mounts the photo endpoints. protect wraps destructive endpoints and
// may be nil.
func (h *Handler) Routes(r chi.Router, protect func(http.Handler) http.Handler) {
	r.Post("/upload_bee/", h.UploadBee)
	r.Get("/download_bee/", h.DownloadBee)
	r.Get("/list_bees/", h.ListBees)
	r.Get("/bees/*", h.GetBee)

	r.Group(func(r chi.Router) {
		if protect != nil {
			r.Use(protect)
		}
		r.Delete("/bees/*", h.DeleteBee)
		r.Post("/sync_bees/", h.SyncBees)
	})
}

// UploadBee godoc
//
//	@Summary		Upload a bee photo
//	@Description	Stores the file under its own file name, verifies it landed with a non-zero size, and returns its public URL. An existing photo with the same name is overwritten.
//	@Tags			bees
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"Photo file"
//	@Param			bucket	formData	string	false	"Bucket override"
//	@Param			acl		formData	string	false	"Canned ACL override"
//	@Success		200		{object}	response.Envelope{message=string}
//	@Failure		400		{object}	response.Envelope
//	@Failure		413		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/upload_bee/ [post]
func (h *Handler) UploadBee(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.TooLarge(w, "file exceeds upload limit")
			return
		}
		response.BadRequest(w, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		response.BadRequest(w, "file is required")
		return
	}
	defer file.Close()

	url, err := h.svc.Upload(r.Context(), UploadInput{
		Filename:    header.Filename,
		Body:        file,
		Size:        header.Size,
		ContentType: header.Header.Get("Content-Type"),
		Bucket:      r.FormValue("bucket"),
		ACL:         r.FormValue("acl"),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, url)
}

// DownloadBee godoc
//
//	@Summary		Download a bee photo
//	@Description	Fetches the named photo to the server's download directory and returns the local path.
//	@Tags			bees
//	@Produce		json
//	@Param			bee_photo_name	query		string	true	"Object key"
//	@Param			bucket			query		string	false	"Bucket override"
//	@Success		200				{object}	response.Envelope{message=string}
//	@Failure		400				{object}	response.Envelope
//	@Failure		404				{object}	response.Envelope
//	@Failure		500				{object}	response.Envelope
//	@Router			/download_bee/ [get]
func (h *Handler) DownloadBee(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := q.Get("bee_photo_name")
	if name == "" {
		response.BadRequest(w, "bee_photo_name is required")
		return
	}

	path, err := h.svc.Download(r.Context(), name, q.Get("bucket"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, path)
}

// ListBees godoc
//
//	@Summary		List bee photos
//	@Description	Returns every key in the bucket, walking all result pages.
//	@Tags			bees
//	@Produce		json
//	@Param			bucket		query		string	false	"Bucket override"
//	@Param			prefix		query		string	false	"Key prefix"
//	@Param			start_after	query		string	false	"List keys after this one"
//	@Param			pattern		query		string	false	"Glob filter, e.g. **/*.jpg"
//	@Success		200			{object}	response.Envelope{message=[]string}
//	@Failure		400			{object}	response.Envelope
//	@Failure		500			{object}	response.Envelope
//	@Router			/list_bees/ [get]
func (h *Handler) ListBees(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	keys, err := h.svc.List(r.Context(), ListInput{
		Bucket:     q.Get("bucket"),
		Prefix:     q.Get("prefix"),
		StartAfter: q.Get("start_after"),
		Pattern:    q.Get("pattern"),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, keys)
}

// GetBee godoc
//
//	@Summary		Describe a bee photo
//	@Tags			bees
//	@Produce		json
//	@Param			file_path	path		string	true	"Object key"
//	@Param			bucket		query		string	false	"Bucket override"
//	@Success		200			{object}	response.Envelope{message=Photo}
//	@Failure		404			{object}	response.Envelope
//	@Router			/bees/{file_path} [get]
func (h *Handler) GetBee(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Stat(r.Context(), chi.URLParam(r, "*"), r.URL.Query().Get("bucket"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, p)
}

// DeleteBee godoc
//
//	@Summary		Delete a bee photo
//	@Description	Removes the object and its metadata record. Deleting a missing photo succeeds.
//	@Tags			bees
//	@Produce		json
//	@Security		BearerAuth
//	@Param			file_path	path		string	true	"Object key"
//	@Param			bucket		query		string	false	"Bucket override"
//	@Success		200			{object}	response.Envelope{message=string}
//	@Failure		401			{object}	response.Envelope
//	@Failure		500			{object}	response.Envelope
//	@Router			/bees/{file_path} [delete]
func (h *Handler) DeleteBee(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	bucket := r.URL.Query().Get("bucket")
	h.audit(r, "photo delete requested", zap.String("key", name), zap.String("bucket", bucket))
	if err := h.svc.Delete(r.Context(), name, bucket); err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, name)
}

// SyncBees godoc
//
//	@Summary		Sync photo metadata
//	@Description	Upserts one metadata record per key in the bucket. With prune=true, records whose object no longer exists are deleted.
//	@Tags			bees
//	@Produce		json
//	@Security		BearerAuth
//	@Param			bucket	query		string	false	"Bucket override"
//	@Param			prefix	query		string	false	"Key prefix"
//	@Param			prune	query		bool	false	"Delete stale records"
//	@Success		200		{object}	response.Envelope{message=SyncReport}
//	@Failure		503		{object}	response.Envelope
//	@Router			/sync_bees/ [post]
func (h *Handler) SyncBees(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	prune := false
	if v := q.Get("prune"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			response.BadRequest(w, "prune must be a boolean")
			return
		}
		prune = b
	}

	opts := SyncOptions{
		Bucket: q.Get("bucket"),
		Prefix: q.Get("prefix"),
		Prune:  prune,
	}
	h.audit(r, "photo sync requested",
		zap.String("bucket", opts.Bucket), zap.String("prefix", opts.Prefix), zap.Bool("prune", opts.Prune))
	report, err := h.svc.Sync(r.Context(), opts)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, report)
}

// audit logs a destructive request with the token subject, when authenticated.
func (h *Handler) audit(r *http.Request, msg string, fields ...zap.Field) {
	if sub, ok := middleware.Subject(r.Context()); ok {
		fields = append(fields, zap.String("subject", sub))
	}
	h.log.Info(msg, fields...)
}

// writeError maps service errors onto the response envelope.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		response.BadRequest(w, err.Error())
	case errors.Is(err, ErrUploadIncomplete):
		response.Error(w, http.StatusInternalServerError, "upload incomplete: the stored object is empty")
	case storage.IsNotFound(err):
		response.NotFound(w, "photo not found")
	case errors.Is(err, storage.ErrBucketNotFound):
		response.NotFound(w, "bucket not found")
	case errors.Is(err, storage.ErrAccessDenied), errors.Is(err, storage.ErrInvalidCredentials):
		h.log.Error("store rejected credentials", zap.Error(err))
		response.Forbidden(w, "access to the bucket was denied")
	case errors.Is(err, ErrMetadataUnavailable):
		response.ServiceUnavailable(w, err.Error())
	case storage.IsTransient(err):
		h.log.Warn("store unavailable", zap.Error(err))
		response.ServiceUnavailable(w, "object store temporarily unavailable")
	default:
		h.log.Error("request failed", zap.Error(err))
		response.InternalError(w)
	}
}
