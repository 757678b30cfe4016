package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"fulfillment-orchestrator/internal/app"
	"fulfillment-orchestrator/internal/core"
)

// pathID parses a positive integer URL parameter, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || id <= 0 {
		writeError(w, r, "invalid "+name+": "+chi.URLParam(r, name), "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// apiGeneratePlan handles POST /api/companies/{code}/orders/{id}/fulfillment/plan.
func (h *Handler) apiGeneratePlan(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body struct {
		PolicyOverride string `json:"policy_override"`
	}
	if !decodeJSON(w, r, &body, true) {
		return
	}

	result, err := h.svc.GeneratePlan(r.Context(), app.GeneratePlanRequest{
		CompanyCode:    companyCode(r),
		OrderID:        orderID,
		PolicyOverride: body.PolicyOverride,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Plan)
}

// apiExecutePlan handles POST /api/companies/{code}/orders/{id}/fulfillment/execute.
// The body is the plan exactly as the plan endpoint returned it.
func (h *Handler) apiExecutePlan(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var plan core.OrchestrationPlan
	if !decodeJSON(w, r, &plan, false) {
		return
	}

	result, err := h.svc.ExecutePlan(r.Context(), app.ExecutePlanRequest{
		CompanyCode: companyCode(r),
		OrderID:     orderID,
		Plan:        &plan,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Result)
}

// apiGeneratePlans handles POST /api/companies/{code}/fulfillment/plans.
func (h *Handler) apiGeneratePlans(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OrderIDs       []int  `json:"order_ids"`
		PolicyOverride string `json:"policy_override"`
	}
	if !decodeJSON(w, r, &body, false) {
		return
	}

	result, err := h.svc.GeneratePlans(r.Context(), app.BatchPlanRequest{
		CompanyCode:    companyCode(r),
		OrderIDs:       body.OrderIDs,
		PolicyOverride: body.PolicyOverride,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiStockAvailability handles GET /api/companies/{code}/stock?product_id=1&warehouse=JHB.
// Both parameters repeat; the n-th product_id pairs with the n-th warehouse.
func (h *Handler) apiStockAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	products, warehouses := q["product_id"], q["warehouse"]
	if len(products) != len(warehouses) {
		writeError(w, r, "product_id and warehouse must be given in pairs", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	keys := make([]core.StockKey, 0, len(products))
	for i, p := range products {
		id, err := strconv.Atoi(p)
		if err != nil || id <= 0 {
			writeError(w, r, "invalid product_id: "+p, "BAD_REQUEST", http.StatusBadRequest)
			return
		}
		keys = append(keys, core.StockKey{ProductID: id, WarehouseCode: warehouses[i]})
	}

	result, err := h.svc.GetStockAvailability(r.Context(), app.StockQuery{
		CompanyCode: companyCode(r),
		Keys:        keys,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiAdvanceDocument handles POST /api/companies/{code}/documents/{kind}/{id}/status.
func (h *Handler) apiAdvanceDocument(w http.ResponseWriter, r *http.Request) {
	docID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if !decodeJSON(w, r, &body, false) {
		return
	}

	result, err := h.svc.AdvanceDocument(r.Context(), app.AdvanceDocumentRequest{
		CompanyCode: companyCode(r),
		Kind:        chi.URLParam(r, "kind"),
		DocumentID:  docID,
		Status:      body.Status,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Document)
}

// apiPlanSchema handles GET /api/schema/orchestration-plan.
func (h *Handler) apiPlanSchema(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/schema+json")
	_ = json.NewEncoder(w).Encode(h.svc.PlanSchema())
}
