package handler

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"trafficwarden/internal/adapter"
	"trafficwarden/internal/domain"
	"trafficwarden/internal/service"
)

// APIHandler handles the policy management and compliance testing API
type APIHandler struct {
	policies   *service.PolicyService
	classes    *service.TrafficClassService
	engine     *service.PolicyApplicationEngine
	compliance *service.ComplianceTestingEngine
	tc         adapter.TrafficController
	log        *logrus.Logger
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(
	policies *service.PolicyService,
	classes *service.TrafficClassService,
	engine *service.PolicyApplicationEngine,
	compliance *service.ComplianceTestingEngine,
	tc adapter.TrafficController,
	log *logrus.Logger,
) *APIHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &APIHandler{
		policies:   policies,
		classes:    classes,
		engine:     engine,
		compliance: compliance,
		tc:         tc,
		log:        log,
	}
}

// Register installs all API routes on the mux
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/policies", h.ListPolicies)
	mux.HandleFunc("POST /api/policies", h.CreatePolicy)
	mux.HandleFunc("GET /api/policies/{id}", h.GetPolicy)
	mux.HandleFunc("PUT /api/policies/{id}", h.UpdatePolicy)
	mux.HandleFunc("DELETE /api/policies/{id}", h.DeletePolicy)

	mux.HandleFunc("GET /api/policies/{id}/classes", h.ListTrafficClasses)
	mux.HandleFunc("POST /api/policies/{id}/classes", h.CreateTrafficClass)
	mux.HandleFunc("PUT /api/classes/{id}", h.UpdateTrafficClass)
	mux.HandleFunc("DELETE /api/classes/{id}", h.DeleteTrafficClass)

	mux.HandleFunc("GET /api/classes/{id}/classifiers", h.ListClassifiers)
	mux.HandleFunc("POST /api/classes/{id}/classifiers", h.CreateClassifier)
	mux.HandleFunc("DELETE /api/classifiers/{id}", h.DeleteClassifier)

	mux.HandleFunc("POST /api/policies/{id}/apply", h.ApplyPolicy)
	mux.HandleFunc("GET /api/policies/{id}/assignments", h.ListAssignments)
	mux.HandleFunc("DELETE /api/assignments/{id}", h.RemovePolicy)
	mux.HandleFunc("POST /api/assignments/{id}/status", h.ToggleStatus)

	mux.HandleFunc("POST /api/tests/run", h.RunComplianceTest)
	mux.HandleFunc("GET /api/interfaces/{name}/stats", h.InterfaceStats)
}

// Policy endpoints

// CreatePolicyRequest is the body for POST /api/policies
type CreatePolicyRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
}

// CreatePolicy creates a new QoS policy
func (h *APIHandler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req CreatePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	policy, err := h.policies.CreatePolicy(r.Context(), req.Name, req.Description, req.Priority)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, policy, http.StatusCreated)
}

// ListPolicies returns all policies
func (h *APIHandler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.policies.ListPolicies(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, policies, http.StatusOK)
}

// GetPolicy returns a single policy by ID
func (h *APIHandler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := h.policies.GetPolicy(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, policy, http.StatusOK)
}

// UpdatePolicy applies a partial update to a policy
func (h *APIHandler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var update service.PolicyUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	policy, err := h.policies.UpdatePolicy(r.Context(), r.PathValue("id"), update)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, policy, http.StatusOK)
}

// DeletePolicy deletes a policy and everything under it
func (h *APIHandler) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	if err := h.policies.DeletePolicy(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Traffic class endpoints

// CreateTrafficClass creates a traffic class under a policy
func (h *APIHandler) CreateTrafficClass(w http.ResponseWriter, r *http.Request) {
	var class domain.TrafficClass
	if err := json.NewDecoder(r.Body).Decode(&class); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	created, err := h.classes.CreateTrafficClass(r.Context(), r.PathValue("id"), class)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, created, http.StatusCreated)
}

// ListTrafficClasses returns a policy's classes in priority order
func (h *APIHandler) ListTrafficClasses(w http.ResponseWriter, r *http.Request) {
	classes, err := h.classes.TrafficClassesByPolicy(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, classes, http.StatusOK)
}

// UpdateTrafficClass applies a partial update to a traffic class
func (h *APIHandler) UpdateTrafficClass(w http.ResponseWriter, r *http.Request) {
	var update domain.TrafficClassUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	class, err := h.classes.UpdateTrafficClass(r.Context(), r.PathValue("id"), update)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, class, http.StatusOK)
}

// DeleteTrafficClass deletes a traffic class with no classifiers
func (h *APIHandler) DeleteTrafficClass(w http.ResponseWriter, r *http.Request) {
	if err := h.classes.DeleteTrafficClass(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Classifier endpoints

// CreateClassifier creates a classifier under a traffic class
func (h *APIHandler) CreateClassifier(w http.ResponseWriter, r *http.Request) {
	var classifier domain.TrafficClassifier
	if err := json.NewDecoder(r.Body).Decode(&classifier); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	created, err := h.classes.CreateClassifier(r.Context(), r.PathValue("id"), classifier)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, created, http.StatusCreated)
}

// ListClassifiers returns a traffic class's classifiers
func (h *APIHandler) ListClassifiers(w http.ResponseWriter, r *http.Request) {
	classifiers, err := h.classes.ClassifiersByClass(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, classifiers, http.StatusOK)
}

// DeleteClassifier deletes a classifier
func (h *APIHandler) DeleteClassifier(w http.ResponseWriter, r *http.Request) {
	if err := h.classes.DeleteClassifier(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Application endpoints

// ApplyRequest is the body for POST /api/policies/{id}/apply
type ApplyRequest struct {
	InterfaceID string           `json:"interface_id"`
	Direction   domain.Direction `json:"direction"`
}

// ApplyPolicy translates a policy into shaping state on an interface
func (h *APIHandler) ApplyPolicy(w http.ResponseWriter, r *http.Request) {
	var req ApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.InterfaceID == "" {
		writeBadRequest(w, "interface_id is required")
		return
	}

	assignment, err := h.engine.ApplyPolicy(r.Context(), r.PathValue("id"), req.InterfaceID, req.Direction)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, assignment, http.StatusCreated)
}

// ListAssignments returns a policy's interface assignments
func (h *APIHandler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.policies.ListAssignments(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, assignments, http.StatusOK)
}

// RemovePolicy clears an assignment's shaping state and deletes it
func (h *APIHandler) RemovePolicy(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RemovePolicy(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// StatusRequest is the body for POST /api/assignments/{id}/status
type StatusRequest struct {
	IsActive bool `json:"is_active"`
}

// ToggleStatus enables or disables an existing assignment
func (h *APIHandler) ToggleStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	if err := h.engine.ToggleStatus(r.Context(), r.PathValue("id"), req.IsActive); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Compliance endpoints

// RunTestRequest is the body for POST /api/tests/run
type RunTestRequest struct {
	PolicyID      string                 `json:"policy_id"`
	Scenario      domain.QoSTestScenario `json:"scenario"`
	TargetAddress string                 `json:"target_address"`
	InterfaceName string                 `json:"interface_name"`
}

// RunComplianceTest runs one compliance test synchronously and returns the
// result. The request blocks for the scenario's duration; clients should
// set their timeouts accordingly.
func (h *APIHandler) RunComplianceTest(w http.ResponseWriter, r *http.Request) {
	var req RunTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.TargetAddress == "" {
		writeBadRequest(w, "target_address is required")
		return
	}
	if req.InterfaceName == "" {
		writeBadRequest(w, "interface_name is required")
		return
	}

	var policy *domain.QoSPolicy
	if req.PolicyID != "" {
		var err error
		policy, err = h.policies.GetPolicy(r.Context(), req.PolicyID)
		if err != nil {
			writeError(w, err)
			return
		}
	}

	result := h.compliance.RunTest(r.Context(), policy, req.Scenario, req.TargetAddress, req.InterfaceName)
	writeJSON(w, result, http.StatusOK)
}

// InterfaceStats returns the raw shaping statistics for an interface
func (h *APIHandler) InterfaceStats(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	stats, err := h.tc.InterfaceStats(r.Context(), name)
	if err != nil {
		writeError(w, domain.Unavailable(err, "reading stats for %s", name))
		return
	}

	writeJSON(w, map[string]string{"interface": name, "stats": stats}, http.StatusOK)
}
