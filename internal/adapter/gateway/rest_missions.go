package gateway

import (
	"net/http"

	"chrysalis/internal/domain"
)

func registerMissionRoutes(s *Server, deps HandlerDeps) {
	s.RegisterHTTPRoute("GET /missions", listMissionsHandler(deps))
	s.RegisterHTTPRoute("POST /missions", createMissionHandler(deps))
	s.RegisterHTTPRoute("GET /missions/{id}", getMissionHandler(deps))
	s.RegisterHTTPRoute("PUT /missions/{id}", updateMissionHandler(deps))
	s.RegisterHTTPRoute("DELETE /missions/{id}", deleteMissionHandler(deps))
	s.RegisterHTTPRoute("PATCH /missions/{id}/cancel", cancelMissionHandler(deps))
	s.RegisterHTTPRoute("PATCH /missions/{id}/complete", completeMissionHandler(deps))
}

func listMissionsHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		missions, err := deps.Missions.FindAll(r.Context())
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, missions)
	}
}

func createMissionHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in domain.MissionInput
		if err := decodeBody(w, r, domain.SubSystemMission, &in); err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		m, err := deps.Missions.Create(r.Context(), in)
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, m)
	}
}

func getMissionHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := deps.Missions.FindOne(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

func updateMissionHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p domain.MissionPatch
		if err := decodeBody(w, r, domain.SubSystemMission, &p); err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		m, err := deps.Missions.Update(r.Context(), r.PathValue("id"), p)
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

func deleteMissionHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Missions.Delete(r.Context(), r.PathValue("id")); err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, deletedBody)
	}
}

func cancelMissionHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := deps.Missions.Cancel(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

func completeMissionHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := deps.Missions.Complete(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}
