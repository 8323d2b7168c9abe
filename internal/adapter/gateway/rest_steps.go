package gateway

import (
	"net/http"

	"chrysalis/internal/domain"
)

func registerStepRoutes(s *Server, deps HandlerDeps) {
	// Scoped to a mission.
	s.RegisterHTTPRoute("GET /missions/{id}/steps", missionStepsHandler(deps))
	s.RegisterHTTPRoute("POST /missions/{id}/steps", createMissionStepHandler(deps))
	s.RegisterHTTPRoute("GET /missions/{id}/steps/{stepId}", getMissionStepHandler(deps))
	s.RegisterHTTPRoute("PUT /missions/{id}/steps/{stepId}", updateMissionStepHandler(deps))
	s.RegisterHTTPRoute("DELETE /missions/{id}/steps/{stepId}", deleteMissionStepHandler(deps))

	// Standalone; POST carries missionId in the body.
	s.RegisterHTTPRoute("GET /steps", listStepsHandler(deps))
	s.RegisterHTTPRoute("POST /steps", createStepHandler(deps))
	s.RegisterHTTPRoute("GET /steps/{id}", getStepHandler(deps))
	s.RegisterHTTPRoute("PUT /steps/{id}", updateStepHandler(deps))
	s.RegisterHTTPRoute("DELETE /steps/{id}", deleteStepHandler(deps))
}

func missionStepsHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		steps, err := deps.Steps.FindByMission(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, steps)
	}
}

func createMissionStepHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in domain.StepInput
		if err := decodeBody(w, r, domain.SubSystemStep, &in); err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		st, err := deps.Steps.Create(r.Context(), r.PathValue("id"), in)
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, st)
	}
}

func getMissionStepHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := deps.Steps.FindInMission(r.Context(), r.PathValue("id"), r.PathValue("stepId"))
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func updateMissionStepHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := deps.Steps.FindInMission(r.Context(), r.PathValue("id"), r.PathValue("stepId")); err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		updateStep(deps, w, r, r.PathValue("stepId"))
	}
}

func deleteMissionStepHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := deps.Steps.FindInMission(r.Context(), r.PathValue("id"), r.PathValue("stepId")); err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		deleteStep(deps, w, r, r.PathValue("stepId"))
	}
}

func listStepsHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if missionID := r.URL.Query().Get("missionId"); missionID != "" {
			r.SetPathValue("id", missionID)
			missionStepsHandler(deps)(w, r)
			return
		}
		steps, err := deps.Steps.FindAll(r.Context())
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, steps)
	}
}

func createStepHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in domain.StepInput
		if err := decodeBody(w, r, domain.SubSystemStep, &in); err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		if in.MissionID == "" {
			writeError(w, deps.Logger, domain.NewSubSystemError(domain.SubSystemStep, "gateway.createStep", domain.ErrInvalidInput, "missionId is required"))
			return
		}
		st, err := deps.Steps.Create(r.Context(), in.MissionID, in)
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, st)
	}
}

func getStepHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := deps.Steps.FindOne(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func updateStepHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		updateStep(deps, w, r, r.PathValue("id"))
	}
}

func deleteStepHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deleteStep(deps, w, r, r.PathValue("id"))
	}
}

func updateStep(deps HandlerDeps, w http.ResponseWriter, r *http.Request, id string) {
	var p domain.StepPatch
	if err := decodeBody(w, r, domain.SubSystemStep, &p); err != nil {
		writeError(w, deps.Logger, err)
		return
	}
	st, err := deps.Steps.Update(r.Context(), id, p)
	if err != nil {
		writeError(w, deps.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func deleteStep(deps HandlerDeps, w http.ResponseWriter, r *http.Request, id string) {
	if err := deps.Steps.Delete(r.Context(), id); err != nil {
		writeError(w, deps.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, deletedBody)
}
