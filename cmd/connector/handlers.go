package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"dsconnector/pkg/audit"
	"dsconnector/pkg/auth"
	"dsconnector/pkg/httpx"
	"dsconnector/pkg/odrl"
	"dsconnector/pkg/pattern"
	"dsconnector/pkg/resources"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (s *Server) publicSelfDescription(w http.ResponseWriter, r *http.Request) {
	doc, err := s.SelfDesc.Describe(r.Context(), true)
	if err != nil {
		internalServerError(w, "public self-description", err)
		return
	}
	httpx.WriteJSON(w, 200, doc)
}

func (s *Server) selfService(w http.ResponseWriter, r *http.Request) {
	doc, err := s.SelfDesc.Describe(r.Context(), false)
	if err != nil {
		internalServerError(w, "self-description", err)
		return
	}
	httpx.WriteJSON(w, 200, doc)
}

// exampleConfiguration returns a canned deployment configuration, kept for
// parity with consumer tooling that probes this endpoint.
func (s *Server) exampleConfiguration(w http.ResponseWriter, r *http.Request) {
	doc, err := s.SelfDesc.Describe(r.Context(), true)
	if err != nil {
		internalServerError(w, "example configuration", err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"logLevel":        "NO_LOGGING",
		"deployMode":      "TEST_DEPLOYMENT",
		"connectorStatus": "CONNECTOR_ONLINE",
		"description":     doc,
		"proxy": map[string]any{
			"proxyURI": "proxy.dortmund.isst.fraunhofer.de:3128",
			"noProxy":  []string{"https://localhost:8080/", "http://localhost:8080/"},
		},
		"keyStore":   "file:///conf/keystore.p12",
		"trustStore": "file:///conf/truststore.p12",
	})
}

func (s *Server) policyPattern(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Policy string `json:"policy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, 400, "invalid json")
		return
	}
	if strings.TrimSpace(req.Policy) == "" {
		httpx.Error(w, 400, "policy required")
		return
	}
	policy, err := odrl.Parse([]byte(req.Policy))
	if err != nil {
		s.Metrics.IncParseError()
		httpx.Error(w, 400, "could not parse policy")
		return
	}
	p := pattern.Classify(policy)
	s.Metrics.IncClassified(string(p))
	httpx.WriteJSON(w, 200, map[string]string{"pattern": string(p)})
}

func (s *Server) usagePolicy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pattern string `json:"pattern"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, 400, "invalid json")
		return
	}
	p, err := pattern.ParsePattern(req.Pattern)
	if err != nil {
		httpx.WriteJSON(w, 400, map[string]any{
			"error":    "unknown pattern",
			"patterns": patternNames(),
		})
		return
	}
	policy, err := pattern.Synthesize(p)
	if err != nil {
		httpx.Error(w, 400, err.Error())
		return
	}
	raw, err := odrl.Serialize(policy)
	if err != nil {
		internalServerError(w, "serialize example policy", err)
		return
	}
	s.Metrics.IncSynthesized(string(p))
	w.Header().Set("Content-Type", "application/ld+json")
	w.WriteHeader(200)
	_, _ = w.Write(raw)
}

func (s *Server) createResource(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind     string             `json:"kind"`
		Metadata resources.Metadata `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, 400, "invalid json")
		return
	}
	kind, ok := parseKind(req.Kind)
	if !ok {
		httpx.Error(w, 400, "kind must be offered or requested")
		return
	}
	res, err := s.Resources.Create(r.Context(), kind, req.Metadata)
	if err != nil {
		internalServerError(w, "create resource", err)
		return
	}
	httpx.WriteJSON(w, 201, res)
}

func (s *Server) listResources(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKind(r.URL.Query().Get("kind"))
	if !ok {
		httpx.Error(w, 400, "kind must be offered or requested")
		return
	}
	list, err := s.Resources.List(r.Context(), kind)
	if err != nil {
		internalServerError(w, "list resources", err)
		return
	}
	if list == nil {
		list = []resources.Resource{}
	}
	httpx.WriteJSON(w, 200, map[string]any{"items": list})
}

func (s *Server) getResource(w http.ResponseWriter, r *http.Request) {
	id, ok := resourceID(w, r)
	if !ok {
		return
	}
	res, err := s.Resources.Get(r.Context(), id)
	if err != nil {
		resourceError(w, "get resource", err)
		return
	}
	httpx.WriteJSON(w, 200, res)
}

func (s *Server) updateResource(w http.ResponseWriter, r *http.Request) {
	id, ok := resourceID(w, r)
	if !ok {
		return
	}
	var meta resources.Metadata
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		httpx.Error(w, 400, "invalid json")
		return
	}
	if err := s.Resources.Update(r.Context(), id, meta); err != nil {
		resourceError(w, "update resource", err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]string{"uuid": id.String()})
}

func (s *Server) deleteResource(w http.ResponseWriter, r *http.Request) {
	id, ok := resourceID(w, r)
	if !ok {
		return
	}
	if err := s.Resources.Delete(r.Context(), id); err != nil {
		resourceError(w, "delete resource", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setContract(w http.ResponseWriter, r *http.Request) {
	id, ok := resourceID(w, r)
	if !ok {
		return
	}
	var req struct {
		Policy string `json:"policy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, 400, "invalid json")
		return
	}
	// Reject contracts the connector cannot parse; the stored text must be
	// usable by the classification endpoint later.
	if _, err := odrl.Parse([]byte(req.Policy)); err != nil {
		s.Metrics.IncParseError()
		httpx.Error(w, 400, "could not parse policy")
		return
	}
	if err := s.Resources.SetContract(r.Context(), id, req.Policy); err != nil {
		resourceError(w, "set contract", err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]string{"uuid": id.String()})
}

func (s *Server) getContract(w http.ResponseWriter, r *http.Request) {
	id, ok := resourceID(w, r)
	if !ok {
		return
	}
	contract, err := s.Resources.Contract(r.Context(), id)
	if err != nil {
		resourceError(w, "get contract", err)
		return
	}
	w.Header().Set("Content-Type", "application/ld+json")
	w.WriteHeader(200)
	_, _ = w.Write([]byte(contract))
}

func (s *Server) getContractRules(w http.ResponseWriter, r *http.Request) {
	id, ok := resourceID(w, r)
	if !ok {
		return
	}
	rules, err := s.Resources.ContractRules(r.Context(), id)
	if err != nil {
		if errors.Is(err, odrl.ErrParse) {
			httpx.Error(w, 400, "stored contract is not parseable")
			return
		}
		resourceError(w, "get contract rules", err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"rules": rules})
}

func (s *Server) setData(w http.ResponseWriter, r *http.Request) {
	id, ok := resourceID(w, r)
	if !ok {
		return
	}
	var req struct {
		Data string `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, 400, "invalid json")
		return
	}
	if err := s.Resources.SetData(r.Context(), id, req.Data); err != nil {
		resourceError(w, "set data", err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]string{"uuid": id.String()})
}

func (s *Server) getData(w http.ResponseWriter, r *http.Request) {
	id, ok := resourceID(w, r)
	if !ok {
		return
	}
	data, err := s.Resources.Data(r.Context(), id)
	if err != nil {
		resourceError(w, "get data", err)
		return
	}
	if s.Audit != nil {
		subject := "anonymous"
		if p, ok := auth.PrincipalFromContext(r.Context()); ok {
			subject = p.Subject
		}
		if err := s.Audit.Record(r.Context(), id, subject); err != nil {
			log.Printf("connector access log: %v", err)
		}
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(200)
	_, _ = w.Write([]byte(data))
}

func (s *Server) setSource(w http.ResponseWriter, r *http.Request) {
	id, ok := resourceID(w, r)
	if !ok {
		return
	}
	var src resources.Source
	if err := json.NewDecoder(r.Body).Decode(&src); err != nil {
		httpx.Error(w, 400, "invalid json")
		return
	}
	if strings.TrimSpace(src.URL) == "" {
		httpx.Error(w, 400, "url required")
		return
	}
	if err := s.Resources.SetSource(r.Context(), id, src); err != nil {
		resourceError(w, "set source", err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]string{"uuid": id.String()})
}

func (s *Server) getAccessLog(w http.ResponseWriter, r *http.Request) {
	id, ok := resourceID(w, r)
	if !ok {
		return
	}
	count, err := s.Audit.Count(r.Context(), id)
	if err != nil {
		internalServerError(w, "count accesses", err)
		return
	}
	recent, err := s.Audit.Recent(r.Context(), id, 25)
	if err != nil {
		internalServerError(w, "list accesses", err)
		return
	}
	if recent == nil {
		recent = []audit.Access{}
	}
	httpx.WriteJSON(w, 200, map[string]any{"count": count, "recent": recent})
}

func resourceID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, 400, "invalid resource id")
		return uuid.Nil, false
	}
	return id, true
}

func resourceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, resources.ErrNotFound):
		httpx.Error(w, 404, "not found")
	case errors.Is(err, resources.ErrNoContract):
		httpx.Error(w, 404, "no contract")
	default:
		internalServerError(w, op, err)
	}
}

func parseKind(raw string) (resources.Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "offered", "":
		return resources.KindOffered, true
	case "requested":
		return resources.KindRequested, true
	default:
		return "", false
	}
}
