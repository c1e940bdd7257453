package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/depscanner/pkg/buildinfo"
	"github.com/matzehuels/depscanner/pkg/errors"
	"github.com/matzehuels/depscanner/pkg/resolve"
	"github.com/matzehuels/depscanner/pkg/store"
)

const maxBodyBytes = 1 << 20

// DependencyRequest names one version in request bodies.
type DependencyRequest struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	System  string `json:"system"`
}

// ScanRequest is the body of POST /scan.
type ScanRequest struct {
	Dependencies []DependencyRequest `json:"dependencies"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{
		"status":  "ok",
		"version": buildinfo.Version,
		"commit":  buildinfo.Commit,
	}
	if s.breaker != nil {
		body["upstream"] = s.breaker()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, err := s.svc.Package(r.Context(), q.Get("system"), q.Get("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDependency(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	v, err := s.svc.Version(r.Context(), q.Get("system"), q.Get("name"), q.Get("version"))
	if errors.Is(err, errors.ErrCodeNoDependencyVersionInformation) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleDependencies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	g, err := s.svc.Graph(r.Context(), q.Get("system"), q.Get("name"), q.Get("version"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleAdvisory(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.Advisory(r.Context(), chi.URLParam(r, "advisoryKey"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var reqs []DependencyRequest
	if err := decodeBody(w, r, &reqs); err != nil {
		s.writeError(w, r, err)
		return
	}
	keys, err := versionKeys(reqs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.CheckVulnerable(r.Context(), keys)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.Dependencies) == 0 {
		s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "dependencies must not be empty"))
		return
	}
	roots, err := versionKeys(req.Dependencies)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	report, err := s.engine.Scan(r.Context(), roots)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid request body")
	}
	return nil
}

func versionKeys(reqs []DependencyRequest) ([]store.VersionKey, error) {
	keys := make([]store.VersionKey, len(reqs))
	for i, d := range reqs {
		k, err := resolve.VersionKey(d.System, d.Name, d.Version)
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}
	return keys, nil
}
