package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mailclean/saas-backend/api/apicommon"
	"github.com/mailclean/saas-backend/db"
	"github.com/mailclean/saas-backend/errors"
)

// plansHandler returns the plan catalog, cheapest first.
func (a *API) plansHandler(w http.ResponseWriter, _ *http.Request) {
	apicommon.HTTPWriteJSON(w, a.subscriptions.Plans())
}

func (a *API) planInfoHandler(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")
	if planID == "" {
		errors.ErrMalformedURLParam.Withf("planID is required").Write(w)
		return
	}
	plan, ok := a.subscriptions.Plan(db.PlanID(planID))
	if !ok {
		errors.ErrPlanNotFound.Withf("unknown plan %q", planID).Write(w)
		return
	}
	apicommon.HTTPWriteJSON(w, plan)
}
