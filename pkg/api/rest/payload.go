package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"sort"
	"strings"

	"augeias/pkg/apperr"
)

// copyRequest points at an existing object of this instance whose content
// becomes the payload of a write.
type copyRequest struct {
	HostURL       *string `json:"host_url"`
	CollectionKey *string `json:"collection_key"`
	ContainerKey  *string `json:"container_key"`
	ObjectKey     *string `json:"object_key"`
}

// objectData returns the write payload of r: the stored bytes named by a
// JSON copy request, or the request body stream otherwise.
func (s *Server) objectData(r *http.Request) (any, error) {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "application/json" {
		return s.copySource(r)
	}
	switch {
	case r.ContentLength < 0:
		return nil, &httpError{status: http.StatusLengthRequired, msg: "Content-Length required"}
	case r.ContentLength == 0:
		return nil, badRequest("body is empty")
	case s.limits.MaxObjectBytes > 0 && r.ContentLength > s.limits.MaxObjectBytes:
		return nil, &httpError{
			status: http.StatusRequestEntityTooLarge,
			msg:    fmt.Sprintf("object exceeds %d bytes", s.limits.MaxObjectBytes),
		}
	}
	if s.limits.MaxObjectBytes > 0 {
		return http.MaxBytesReader(nil, r.Body, s.limits.MaxObjectBytes), nil
	}
	return r.Body, nil
}

// hostURL is scheme://host of the request as seen by the client.
func hostURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + r.Host
}

func (s *Server) copySource(r *http.Request) ([]byte, error) {
	var req copyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, badRequest("Request has incorrect json body. \n" + err.Error())
	}
	var missing []string
	for name, v := range map[string]*string{
		"host_url":       req.HostURL,
		"collection_key": req.CollectionKey,
		"container_key":  req.ContainerKey,
		"object_key":     req.ObjectKey,
	} {
		if v == nil {
			missing = append(missing, name+" is Required.")
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, badRequest(strings.Join(missing, "\n"))
	}
	if *req.HostURL != hostURL(r) {
		return nil, apperr.Validationf("Host must be equal to the current host url %s.", r.Host)
	}
	col, err := s.reg.Lookup(*req.CollectionKey)
	if err != nil {
		return nil, badRequest(fmt.Sprintf("Collection %s was not found", *req.CollectionKey))
	}
	data, err := col.Store.GetObject(r.Context(), *req.ContainerKey, *req.ObjectKey)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, badRequest(fmt.Sprintf(
				"Container - object (%s - %s) combination was not found in Collection %s",
				*req.ContainerKey, *req.ObjectKey, *req.CollectionKey))
		}
		return nil, err
	}
	return data, nil
}
