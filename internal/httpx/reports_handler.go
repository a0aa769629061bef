package httpx

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-pos-ledger/internal/auth"
	"github.com/ariefcatur/go-pos-ledger/internal/ledger"
	"github.com/ariefcatur/go-pos-ledger/internal/reports"
)

type ReportsHandler struct {
	Reports *reports.Aggregator
	Log     *zap.Logger
	Now     func() time.Time
}

func (h *ReportsHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(RequireRole(auth.RoleAdmin, h.Log))
		r.Get("/reports/daily", h.daily)
		r.Get("/reports/monthly", h.monthly)
		r.Get("/reports/range", h.rangeReport)
		r.Get("/reports/export", h.export)
	})
}

func (h *ReportsHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *ReportsHandler) daily(w http.ResponseWriter, r *http.Request) {
	day, err := h.Reports.ParseDay(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	rep, err := h.Reports.Daily(r.Context(), day)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *ReportsHandler) monthly(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	month, err := intQuery(r, "month", int(now.Month()))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	year, err := intQuery(r, "year", now.Year())
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	rep, err := h.Reports.Monthly(r.Context(), year, time.Month(month))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// rangeReport takes RFC 3339 instants or whole days for start and end; a
// day given as end includes that whole day.
func (h *ReportsHandler) rangeReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("start") == "" || q.Get("end") == "" {
		writeError(w, r, h.Log, ledger.Invalid("start", "start and end are required"))
		return
	}
	start, err := parseBound(h.Reports, "start", q.Get("start"), false)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	end, err := parseBound(h.Reports, "end", q.Get("end"), true)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	sum, err := h.Reports.ReportForRange(r.Context(), start, end)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *ReportsHandler) export(w http.ResponseWriter, r *http.Request) {
	format, err := reports.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	start, end, err := dayRange(h.Reports, r, "startDate", "endDate")
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	var buf bytes.Buffer
	if err := h.Reports.Export(r.Context(), &buf, format, start, end); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	ctype := "text/csv"
	if format == reports.FormatJSON {
		ctype = "application/json"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="sales-export-%s.%s"`, h.now().Format("20060102"), format))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func parseBound(a *reports.Aggregator, field, s string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := a.ParseDay(s)
	if err != nil {
		return time.Time{}, ledger.Invalid(field, "must be RFC 3339 or YYYY-MM-DD")
	}
	start, end := a.DayBounds(d)
	if endOfDay {
		return end, nil
	}
	return start, nil
}

// dayRange reads optional whole-day bounds; a missing side stays open.
func dayRange(a *reports.Aggregator, r *http.Request, startKey, endKey string) (time.Time, time.Time, error) {
	var start, end time.Time
	q := r.URL.Query()
	if s := q.Get(startKey); s != "" {
		d, err := a.ParseDay(s)
		if err != nil {
			return start, end, ledger.Invalid(startKey, "must be formatted YYYY-MM-DD")
		}
		start, _ = a.DayBounds(d)
	}
	if s := q.Get(endKey); s != "" {
		d, err := a.ParseDay(s)
		if err != nil {
			return start, end, ledger.Invalid(endKey, "must be formatted YYYY-MM-DD")
		}
		_, end = a.DayBounds(d)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return start, end, ledger.Invalid(endKey, "must not be before "+startKey)
	}
	return start, end, nil
}
