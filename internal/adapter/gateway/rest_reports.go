package gateway

import (
	"net/http"

	"chrysalis/internal/domain"
)

func registerReportRoutes(s *Server, deps HandlerDeps) {
	// Scoped to a mission.
	s.RegisterHTTPRoute("GET /missions/{id}/reports", missionReportsHandler(deps))
	s.RegisterHTTPRoute("POST /missions/{id}/reports", createMissionReportHandler(deps))
	s.RegisterHTTPRoute("GET /missions/{id}/reports/{reportId}", getMissionReportHandler(deps))
	s.RegisterHTTPRoute("PUT /missions/{id}/reports/{reportId}", updateMissionReportHandler(deps))
	s.RegisterHTTPRoute("DELETE /missions/{id}/reports/{reportId}", deleteMissionReportHandler(deps))

	// Standalone; POST carries missionId in the body.
	s.RegisterHTTPRoute("GET /field-reports", listReportsHandler(deps))
	s.RegisterHTTPRoute("POST /field-reports", createReportHandler(deps))
	s.RegisterHTTPRoute("GET /field-reports/{id}", getReportHandler(deps))
	s.RegisterHTTPRoute("PUT /field-reports/{id}", updateReportHandler(deps))
	s.RegisterHTTPRoute("DELETE /field-reports/{id}", deleteReportHandler(deps))
}

func missionReportsHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reports, err := deps.Reports.FindByMission(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, reports)
	}
}

func createMissionReportHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in domain.FieldReportInput
		if err := decodeBody(w, r, domain.SubSystemReport, &in); err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		rep, err := deps.Reports.Create(r.Context(), r.PathValue("id"), in)
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, rep)
	}
}

func getMissionReportHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := deps.Reports.FindInMission(r.Context(), r.PathValue("id"), r.PathValue("reportId"))
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

func updateMissionReportHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := deps.Reports.FindInMission(r.Context(), r.PathValue("id"), r.PathValue("reportId")); err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		updateReport(deps, w, r, r.PathValue("reportId"))
	}
}

func deleteMissionReportHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := deps.Reports.FindInMission(r.Context(), r.PathValue("id"), r.PathValue("reportId")); err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		deleteReport(deps, w, r, r.PathValue("reportId"))
	}
}

func listReportsHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if missionID := r.URL.Query().Get("missionId"); missionID != "" {
			r.SetPathValue("id", missionID)
			missionReportsHandler(deps)(w, r)
			return
		}
		reports, err := deps.Reports.FindAll(r.Context())
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, reports)
	}
}

func createReportHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in domain.FieldReportInput
		if err := decodeBody(w, r, domain.SubSystemReport, &in); err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		if in.MissionID == "" {
			writeError(w, deps.Logger, domain.NewSubSystemError(domain.SubSystemReport, "gateway.createReport", domain.ErrInvalidInput, "missionId is required"))
			return
		}
		rep, err := deps.Reports.Create(r.Context(), in.MissionID, in)
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, rep)
	}
}

func getReportHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := deps.Reports.FindOne(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

func updateReportHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		updateReport(deps, w, r, r.PathValue("id"))
	}
}

func deleteReportHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deleteReport(deps, w, r, r.PathValue("id"))
	}
}

func updateReport(deps HandlerDeps, w http.ResponseWriter, r *http.Request, id string) {
	var p domain.FieldReportPatch
	if err := decodeBody(w, r, domain.SubSystemReport, &p); err != nil {
		writeError(w, deps.Logger, err)
		return
	}
	rep, err := deps.Reports.Update(r.Context(), id, p)
	if err != nil {
		writeError(w, deps.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func deleteReport(deps HandlerDeps, w http.ResponseWriter, r *http.Request, id string) {
	if err := deps.Reports.Delete(r.Context(), id); err != nil {
		writeError(w, deps.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, deletedBody)
}
