package rest

import (
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"augeias/pkg/apperr"
	"augeias/pkg/archive"
	"augeias/pkg/collection"
	"augeias/pkg/storage"
)

// MinObjectKeyLen is the minimum length of a client chosen object key.
const MinObjectKeyLen = 3

// Limits bounds request sizes. Zero means unlimited.
type Limits struct {
	MaxObjectBytes int64
}

// Server routes API requests to the collections of a registry.
type Server struct {
	reg    *collection.Registry
	limits Limits
	log    *zap.Logger
	newKey func() string
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithKeyGenerator replaces the UUIDv4 generator used for server chosen keys.
func WithKeyGenerator(f func() string) Option {
	return func(s *Server) {
		if f != nil {
			s.newKey = f
		}
	}
}

// New returns a server over reg.
func New(reg *collection.Registry, limits Limits, opts ...Option) *Server {
	s := &Server{
		reg:    reg,
		limits: limits,
		log:    zap.NewNop(),
		newKey: uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func (s *Server) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			s.writeError(w, r, err)
		}
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	const (
		containers = "/collections/{collection}/containers"
		container  = containers + "/{container}"
		object     = container + "/{object}"
	)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.wrap(s.handleHome))
	mux.HandleFunc("GET /collections", s.wrap(s.handleListCollections))
	mux.HandleFunc("POST "+containers, s.wrap(s.handleCreateContainerAndID))
	mux.HandleFunc("PUT "+container, s.wrap(s.handleCreateContainer))
	mux.HandleFunc("DELETE "+container, s.wrap(s.handleDeleteContainer))
	mux.HandleFunc("GET "+container, s.wrap(s.handleGetContainer))
	mux.HandleFunc("POST "+container, s.wrap(s.handleCreateObjectAndID))
	mux.HandleFunc("PUT "+object, s.wrap(s.handleUpdateObject))
	mux.HandleFunc("GET "+object, s.wrap(s.handleGetObject))
	mux.HandleFunc("DELETE "+object, s.wrap(s.handleDeleteObject))
	mux.HandleFunc("GET "+object+"/meta", s.wrap(s.handleGetObjectInfo))
	mux.HandleFunc("GET "+object+"/{member...}", s.wrap(s.handleGetMember))
	mux.HandleFunc("PUT "+object+"/{member...}", s.wrap(s.handleReplaceMember))
	return stripTrailingSlash(mux)
}

// stripTrailingSlash rewrites /a/b/ to /a/b before routing.
func stripTrailingSlash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p := r.URL.Path; len(p) > 1 && strings.HasSuffix(p, "/") {
			r2 := r.Clone(r.Context())
			r2.URL.Path = strings.TrimRight(p, "/")
			if r2.URL.Path == "" {
				r2.URL.Path = "/"
			}
			if r2.URL.RawPath != "" {
				r2.URL.RawPath = strings.TrimRight(r2.URL.RawPath, "/")
			}
			r = r2
		}
		next.ServeHTTP(w, r)
	})
}

type containerResponse struct {
	ContainerKey string `json:"container_key"`
	URI          string `json:"uri"`
}

type objectResponse struct {
	ContainerKey string `json:"container_key"`
	ObjectKey    string `json:"object_key"`
	URI          string `json:"uri"`
}

type objectInfoResponse struct {
	TimeLastModification string `json:"time_last_modification"`
	Size                 int64  `json:"size"`
	MIME                 string `json:"mime"`
}

func (s *Server) collection(r *http.Request) (*collection.Collection, error) {
	return s.reg.Lookup(r.PathValue("collection"))
}

func containerResp(c *collection.Collection, key string) containerResponse {
	return containerResponse{ContainerKey: key, URI: c.URIs.ContainerURI(c.Name, key)}
}

func objectResp(c *collection.Collection, container, key string) objectResponse {
	return objectResponse{
		ContainerKey: container,
		ObjectKey:    key,
		URI:          c.URIs.ObjectURI(c.Name, container, key),
	}
}

func (s *Server) handleHome(w http.ResponseWriter, _ *http.Request) error {
	writeJSON(w, http.StatusOK, map[string]string{"project": "augeias"})
	return nil
}

func (s *Server) handleListCollections(w http.ResponseWriter, _ *http.Request) error {
	writeJSON(w, http.StatusOK, s.reg.Names())
	return nil
}

func (s *Server) handleCreateContainerAndID(w http.ResponseWriter, r *http.Request) error {
	c, err := s.collection(r)
	if err != nil {
		return err
	}
	key := s.newKey()
	if err := c.Store.CreateContainer(r.Context(), key); err != nil {
		return err
	}
	s.log.Info("container created", zap.String("collection", c.Name), zap.String("container", key))
	writeJSON(w, http.StatusCreated, containerResp(c, key))
	return nil
}

func (s *Server) handleCreateContainer(w http.ResponseWriter, r *http.Request) error {
	c, err := s.collection(r)
	if err != nil {
		return err
	}
	key := r.PathValue("container")
	if err := c.Store.CreateContainer(r.Context(), key); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, containerResp(c, key))
	return nil
}

func (s *Server) handleDeleteContainer(w http.ResponseWriter, r *http.Request) error {
	c, err := s.collection(r)
	if err != nil {
		return err
	}
	key := r.PathValue("container")
	if err := c.Store.DeleteContainer(r.Context(), key); err != nil {
		return err
	}
	s.log.Info("container deleted", zap.String("collection", c.Name), zap.String("container", key))
	writeJSON(w, http.StatusOK, containerResp(c, key))
	return nil
}

// wantsZip reports whether the Accept header asks for a zip download.
func wantsZip(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil || mt != "application/zip" {
			continue
		}
		return params["q"] != "0"
	}
	return false
}

func (s *Server) handleGetContainer(w http.ResponseWriter, r *http.Request) error {
	c, err := s.collection(r)
	if err != nil {
		return err
	}
	key := r.PathValue("container")
	if !wantsZip(r) {
		keys, err := c.Store.ListObjectKeys(r.Context(), key)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, keys)
		return nil
	}

	names := make(map[string]string)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			names[k] = v[0]
		}
	}
	data, err := c.Store.GetContainerArchive(r.Context(), key, names)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.zip", key))
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	return nil
}

func (s *Server) handleCreateObjectAndID(w http.ResponseWriter, r *http.Request) error {
	data, err := s.objectData(r)
	if err != nil {
		return err
	}
	c, err := s.collection(r)
	if err != nil {
		return err
	}
	container, key := r.PathValue("container"), s.newKey()
	if err := c.Store.CreateObject(r.Context(), container, key, data); err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, objectResp(c, container, key))
	return nil
}

func (s *Server) handleUpdateObject(w http.ResponseWriter, r *http.Request) error {
	data, err := s.objectData(r)
	if err != nil {
		return err
	}
	c, err := s.collection(r)
	if err != nil {
		return err
	}
	container, key := r.PathValue("container"), r.PathValue("object")
	if utf8.RuneCountInString(key) < MinObjectKeyLen {
		return apperr.Validationf("The object key must be %d characters long", MinObjectKeyLen)
	}
	if err := c.Store.UpdateObject(r.Context(), container, key, data); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, objectResp(c, container, key))
	return nil
}

func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request) error {
	c, err := s.collection(r)
	if err != nil {
		return err
	}
	data, err := c.Store.GetObject(r.Context(), r.PathValue("container"), r.PathValue("object"))
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", storage.SniffMIME(data))
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	return nil
}

func (s *Server) handleGetObjectInfo(w http.ResponseWriter, r *http.Request) error {
	c, err := s.collection(r)
	if err != nil {
		return err
	}
	info, err := c.Store.GetObjectInfo(r.Context(), r.PathValue("container"), r.PathValue("object"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, objectInfoResponse{
		TimeLastModification: info.LastModified.UTC().Format(time.RFC3339),
		Size:                 info.Size,
		MIME:                 info.MIME,
	})
	return nil
}

func (s *Server) handleDeleteObject(w http.ResponseWriter, r *http.Request) error {
	c, err := s.collection(r)
	if err != nil {
		return err
	}
	container, key := r.PathValue("container"), r.PathValue("object")
	if err := c.Store.DeleteObject(r.Context(), container, key); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, objectResp(c, container, key))
	return nil
}

func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) error {
	c, err := s.collection(r)
	if err != nil {
		return err
	}
	blob, err := c.Store.GetObject(r.Context(), r.PathValue("container"), r.PathValue("object"))
	if err != nil {
		return err
	}
	data, err := archive.ExtractMember(blob, r.PathValue("member"))
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	return nil
}

func (s *Server) handleReplaceMember(w http.ResponseWriter, r *http.Request) error {
	payload, err := s.objectData(r)
	if err != nil {
		return err
	}
	content, err := storage.ReadPayload(payload)
	if err != nil {
		return err
	}
	c, err := s.collection(r)
	if err != nil {
		return err
	}
	q := r.URL.Query()
	if !q.Has("new_file_name") {
		return badRequest("new_file_name parameter is required")
	}
	container, key := r.PathValue("container"), r.PathValue("object")
	blob, err := c.Store.GetObject(r.Context(), container, key)
	if err != nil {
		return err
	}
	updated, err := archive.ReplaceMember(blob, r.PathValue("member"), content, q.Get("new_file_name"))
	if err != nil {
		return err
	}
	if err := c.Store.UpdateObject(r.Context(), container, key, updated); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, objectResp(c, container, key))
	return nil
}
