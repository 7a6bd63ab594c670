package controller

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"

	"climap-server/internal/modules/climate/scale"
	"climap-server/internal/modules/climate/types"
	"climap-server/internal/modules/climate/views"
	"climap-server/internal/utils"
)

func (c *climateControllerImpl) handleHome(w http.ResponseWriter, r *http.Request) {
	data := views.HomeData{Datasets: c.service.Datasets()}
	c.writeHTML(w, "home", func(buf *bytes.Buffer) error {
		return views.RenderHome(buf, &data)
	})
}

func (c *climateControllerImpl) handleMap(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("dataset")
	summary, err := c.service.Dataset(key)
	if err != nil {
		writeServiceError(w, "map page", err)
		return
	}
	legend, err := c.legendData(key, 0)
	if err != nil {
		writeServiceError(w, "map page", err)
		return
	}
	data := views.MapData{
		Dataset: summary,
		Months:  c.service.Months().Slice(),
		Legend:  legend,
	}
	c.writeHTML(w, "map", func(buf *bytes.Buffer) error {
		return views.RenderMap(buf, &data)
	})
}

func (c *climateControllerImpl) handleLegendPartial(w http.ResponseWriter, r *http.Request) {
	steps, err := parseSteps(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	data, err := c.legendData(r.PathValue("dataset"), steps)
	if err != nil {
		writeServiceError(w, "legend partial", err)
		return
	}
	c.writeHTML(w, "legend partial", func(buf *bytes.Buffer) error {
		return views.RenderLegendPartial(buf, &data)
	})
}

func (c *climateControllerImpl) handleSeriesPartial(w http.ResponseWriter, r *http.Request) {
	layer, err := parseLayer(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing feature id")
		return
	}
	month, err := parseMonth(r, 0)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	sv, err := c.service.Series(r.PathValue("dataset"), layer, id, month)
	if err != nil {
		writeServiceError(w, "series partial", err)
		return
	}
	data := views.NewSeriesData(sv)
	c.writeHTML(w, "series partial", func(buf *bytes.Buffer) error {
		return views.RenderSeriesPartial(buf, &data)
	})
}

func (c *climateControllerImpl) handleMonths(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string][]string{"labels": c.service.Months().Slice()})
}

func (c *climateControllerImpl) handleDatasets(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, c.service.Datasets())
}

func (c *climateControllerImpl) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := c.service.Stats(r.PathValue("dataset"))
	if err != nil {
		writeServiceError(w, "stats", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, st)
}

func (c *climateControllerImpl) handleLegend(w http.ResponseWriter, r *http.Request) {
	steps, err := parseSteps(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	legend, err := c.service.Legend(r.PathValue("dataset"), steps)
	if err != nil {
		writeServiceError(w, "legend", err)
		return
	}
	if legend == nil {
		legend = []scale.LegendEntry{}
	}
	utils.WriteJSON(w, http.StatusOK, legend)
}

func (c *climateControllerImpl) handleStyles(w http.ResponseWriter, r *http.Request) {
	month, err := parseMonth(r, 1)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	restyle, err := c.service.Restyle(r.PathValue("dataset"), month)
	if err != nil {
		writeServiceError(w, "styles", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, restyle)
}

func (c *climateControllerImpl) handleLayer(w http.ResponseWriter, r *http.Request) {
	layer, err := parseLayer(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	raw, err := c.service.RawLayer(r.PathValue("dataset"), layer)
	if err != nil {
		writeServiceError(w, "layer", err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(raw)))
	if _, err := w.Write(raw); err != nil {
		slog.Error("layer: write response failed", "error", err)
	}
}

func (c *climateControllerImpl) handleSeries(w http.ResponseWriter, r *http.Request) {
	layer, err := parseLayer(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	month, err := parseMonth(r, 0)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	sv, err := c.service.Series(r.PathValue("dataset"), layer, r.PathValue("id"), month)
	if err != nil {
		writeServiceError(w, "series", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, sv)
}

func (c *climateControllerImpl) handleChart(w http.ResponseWriter, r *http.Request) {
	layer, err := parseLayer(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var buf bytes.Buffer
	if err := c.service.RenderChart(&buf, r.PathValue("dataset"), layer, r.PathValue("id")); err != nil {
		writeServiceError(w, "chart", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("chart: write response failed", "error", err)
	}
}

func (c *climateControllerImpl) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	up, err := c.service.CreateSession(r.Context(), req.Dataset)
	if err != nil {
		writeServiceError(w, "create session", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, up)
}

func (c *climateControllerImpl) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := c.service.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, "get session", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, sess)
}

func (c *climateControllerImpl) handleSetMonth(w http.ResponseWriter, r *http.Request) {
	var req monthRequest
	if err := decodeBody(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	up, err := c.service.SetMonth(r.Context(), r.PathValue("id"), req.Month)
	if err != nil {
		writeServiceError(w, "set month", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, up)
}

func (c *climateControllerImpl) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := decodeBody(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	layer, _ := types.ParseLayer(req.Layer)
	up, err := c.service.Select(r.Context(), r.PathValue("id"), layer, req.FeatureID)
	if err != nil {
		writeServiceError(w, "select", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, up)
}

func (c *climateControllerImpl) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	up, err := c.service.ClearSelection(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, "clear selection", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, up)
}

func (c *climateControllerImpl) legendData(key string, steps int) (views.LegendData, error) {
	summary, err := c.service.Dataset(key)
	if err != nil {
		return views.LegendData{}, err
	}
	entries, err := c.service.Legend(key, steps)
	if err != nil {
		return views.LegendData{}, err
	}
	return views.LegendData{
		Dataset: key,
		Unit:    summary.Unit,
		Entries: entries,
		Neutral: scale.DefaultNeutral.Hex(),
	}, nil
}

// writeHTML renders into a buffer first so a template error still yields a clean 500.
func (c *climateControllerImpl) writeHTML(w http.ResponseWriter, what string, render func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		slog.Error(what+" template render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	utils.WriteHTML(w, http.StatusOK, buf.Bytes())
}
