package handlers

import (
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/camden-git/faceattend/config"
	"github.com/camden-git/faceattend/media"
	"github.com/camden-git/faceattend/realtime"
)

// Routes bundles the handlers mounted by the HTTP server.
type Routes struct {
	Upload    *UploadHandler
	Dashboard *DashboardHandler
	Employees *EmployeeHandler
	People    *PeopleHandler
	Hub       *realtime.Hub
	Assets    media.Store
	Cfg       config.Config
}

// Mount registers the ingestion, dashboard and curation endpoints on r.
func (rt Routes) Mount(r chi.Router) {
	admin := AdminAuth(rt.Cfg.AdminUser, rt.Cfg.AdminPasswordHash)

	r.Post("/upload", rt.Upload.Upload)

	r.Route("/api", func(r chi.Router) {
		r.Get("/dashboard-data", rt.Dashboard.DashboardData)
		if rt.Hub != nil {
			r.Get("/ws", rt.Hub.ServeWS)
		}
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Route("/employees", func(r chi.Router) {
			r.Get("/", rt.Employees.ListEmployees)
			r.With(admin).Post("/", rt.Employees.CreateEmployee)
			r.Route("/{employee_id}", func(r chi.Router) {
				r.Get("/", rt.Employees.GetEmployee)
				r.With(admin).Post("/aliases", rt.Employees.AddAlias)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(admin)
			r.Route("/people", func(r chi.Router) {
				r.Get("/", rt.People.ListPeople)
				r.Route("/{name}", func(r chi.Router) {
					r.Get("/", rt.People.GetPerson)
					r.Post("/samples", rt.People.AddSample)
					r.Get("/samples/{seq}", rt.People.GetSample)
				})
			})

			if rt.Assets != nil {
				r.Get("/uploads/*", AssetServer(rt.Assets, filepath.Base(rt.Cfg.UploadsPath), "/api/uploads/"))
				r.Get("/detected/*", AssetServer(rt.Assets, filepath.Base(rt.Cfg.DetectedPath), "/api/detected/"))
			}
		})
	})
}
