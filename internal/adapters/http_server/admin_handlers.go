package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"aparthotel/internal/domain"
)

// ---- blocked ranges ----

func (h *Handlers) listBlocks(w http.ResponseWriter, r *http.Request) {
	var within *domain.DateRange
	if q := r.URL.Query(); q.Get("from") != "" || q.Get("to") != "" {
		rg, err := rangeQuery(r, "from", "to")
		if err != nil {
			writeError(w, r, err)
			return
		}
		within = &rg
	}
	list, err := h.Blocks.ListBlocks(r.Context(), chi.URLParam(r, "slug"), within)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]blockDTO, 0, len(list))
	for _, b := range list {
		out = append(out, toBlock(b))
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (h *Handlers) addBlock(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Start  string `json:"start" validate:"required,datetime=2006-01-02"`
		End    string `json:"end" validate:"required,datetime=2006-01-02"`
		Reason string `json:"reason" validate:"max=255"`
	}
	if !decode(w, r, &in) {
		return
	}
	rg, err := parseRange(in.Start, in.End)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.Blocks.AddManualBlock(r.Context(), chi.URLParam(r, "slug"), rg, in.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toBlock(b))
}

func (h *Handlers) deleteBlock(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.Blocks.DeleteManualBlock(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- seasonal rates ----

func (h *Handlers) listRates(w http.ResponseWriter, r *http.Request) {
	year := 0
	if ys := r.URL.Query().Get("year"); ys != "" {
		y, err := strconv.Atoi(ys)
		if err != nil || y < 2000 || y > 9999 {
			writeProblem(w, http.StatusBadRequest, "Invalid year", "year must be a four digit number")
			return
		}
		year = y
	}
	list, err := h.Rates.ListSeasonalRates(r.Context(), chi.URLParam(r, "slug"), year)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]rateDTO, 0, len(list))
	for _, rt := range list {
		out = append(out, toRate(rt))
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (h *Handlers) createRate(w http.ResponseWriter, r *http.Request) {
	var in rateDTO
	if !decode(w, r, &in) {
		return
	}
	rt, err := h.Rates.CreateSeasonalRate(r.Context(), domain.SeasonalRate{
		ApartmentType: chi.URLParam(r, "slug"), Year: in.Year, Month: time.Month(in.Month), Price: in.Price,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toRate(rt))
}

func (h *Handlers) updateRate(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var in struct {
		Price  int64 `json:"price" validate:"gt=0"`
		Active bool  `json:"active"`
	}
	if !decode(w, r, &in) {
		return
	}
	rt, err := h.Rates.UpdateSeasonalRate(r.Context(), id, in.Price, in.Active)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toRate(rt))
}

func (h *Handlers) deleteRate(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.Rates.DeleteSeasonalRate(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) copyRates(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ToYear int `json:"to_year" validate:"gte=2001,lte=9999"`
	}
	if !decode(w, r, &in) {
		return
	}
	list, err := h.Rates.CopyFromPreviousYear(r.Context(), chi.URLParam(r, "slug"), in.ToYear)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]rateDTO, 0, len(list))
	for _, rt := range list {
		out = append(out, toRate(rt))
	}
	writeJSON(w, r, http.StatusOK, out)
}

// ---- channel integrations ----

type integrationInput struct {
	Channel       string `json:"channel" validate:"required,max=32"`
	ApartmentType string `json:"apartment_type" validate:"required,max=64"`
	URL           string `json:"url" validate:"required,url,max=2048"`
	Active        *bool  `json:"active"`
}

func (in integrationInput) toDomain(id int64) domain.ChannelIntegration {
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	return domain.ChannelIntegration{ID: id, Channel: in.Channel, ApartmentType: in.ApartmentType, URL: in.URL, Active: active}
}

func (h *Handlers) listIntegrations(w http.ResponseWriter, r *http.Request) {
	list, err := h.Integrations.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]integrationDTO, 0, len(list))
	for _, c := range list {
		out = append(out, toIntegration(c))
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (h *Handlers) createIntegration(w http.ResponseWriter, r *http.Request) {
	var in integrationInput
	if !decode(w, r, &in) {
		return
	}
	c, err := h.Integrations.Create(r.Context(), in.toDomain(0))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toIntegration(c))
}

func (h *Handlers) getIntegration(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	c, err := h.Integrations.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toIntegration(c))
}

func (h *Handlers) updateIntegration(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var in integrationInput
	if !decode(w, r, &in) {
		return
	}
	c, err := h.Integrations.Update(r.Context(), in.toDomain(id))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toIntegration(c))
}

func (h *Handlers) deleteIntegration(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.Integrations.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) syncIntegration(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	res, err := h.Integrations.TriggerSync(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toSyncResult(res))
}
