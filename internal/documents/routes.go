package documents

import "github.com/gofiber/fiber/v2"

// Mount registers the document routes on an authenticated router.
func (h *Handler) Mount(r fiber.Router) {
	r.Post("/documents", h.Create)
	r.Get("/documents/mine", h.ListMine)
	r.Get("/documents/:id", h.Get)
	r.Delete("/documents/:id", h.Delete)
	r.Post("/documents/:id/finalize", h.Finalize)
	r.Put("/documents/:id/story", h.SaveStory)
	r.Post("/documents/:id/court", h.AssignCourt)

	r.Put("/documents/:id/sections/plaintiff_info", h.SavePlaintiff)
	r.Put("/documents/:id/sections/incident_overview", h.SaveIncident)
	r.Put("/documents/:id/sections/narrative", h.SaveNarrative)
	r.Put("/documents/:id/sections/rights_violated", h.SaveRights)
	r.Put("/documents/:id/sections/damages", h.SaveDamages)
	r.Put("/documents/:id/sections/prior_complaints", h.SavePriorComplaints)
	r.Put("/documents/:id/sections/relief_sought", h.SaveRelief)
	r.Patch("/documents/:id/sections/:type/status", h.SetStatus)

	r.Post("/documents/:id/defendants", h.AddDefendant)
	r.Put("/documents/:id/defendants/:itemId", h.UpdateDefendant)
	r.Delete("/documents/:id/defendants/:itemId", h.DeleteDefendant)
	r.Post("/documents/:id/witnesses", h.AddWitness)
	r.Put("/documents/:id/witnesses/:itemId", h.UpdateWitness)
	r.Delete("/documents/:id/witnesses/:itemId", h.DeleteWitness)
	r.Post("/documents/:id/evidence", h.AddEvidence)
	r.Put("/documents/:id/evidence/:itemId", h.UpdateEvidence)
	r.Delete("/documents/:id/evidence/:itemId", h.DeleteEvidence)
	r.Post("/documents/:id/evidence/:itemId/file", h.UploadEvidenceFile)
	r.Get("/documents/:id/evidence/:itemId/file", h.EvidenceFileURL)
}
