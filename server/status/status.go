// Package status serves the human-facing status page on /status/ and
// the detailed log download on /status/log.gz.
package status

import (
	"fmt"
	"net/http"

	"github.com/twibus/twid-go/core"
	"github.com/twibus/twid-go/memlog"

	"github.com/gorilla/csrf"
	"github.com/gorilla/mux"
)

type status struct {
	core              *core.Core
	version           string
	shortMemoryWriter *memlog.Writer
	longMemoryWriter  *memlog.Writer
}

const csrfkey = "x41kq0e8h2lw9qiw4fhrfyd84f59j81l"

// ServeStatusRedirect sends plain GET / to the status page.
func ServeStatusRedirect(r *mux.Router) {
	var h http.Handler = http.HandlerFunc(redirect)
	h = OriginCheck(map[string]string{
		"/": "",
	})(h)
	r.Methods("GET").Path("/").Handler(h)
}

func redirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "http://127.0.0.1:21335/status/", http.StatusMovedPermanently)
}

// ServeStatus registers the status page routes on r, which must be
// rooted at /status.
func ServeStatus(r *mux.Router, c *core.Core, v string, mw, dmw *memlog.Writer) {
	status := &status{
		core:              c,
		version:           v,
		shortMemoryWriter: mw,
		longMemoryWriter:  dmw,
	}
	r.Methods("GET").Path("/").HandlerFunc(status.statusPage)
	r.Methods("POST").Path("/log.gz").HandlerFunc(status.statusGzip)

	r.Use(csrf.Protect([]byte(csrfkey), csrf.Secure(false)))
	r.Use(OriginCheck(map[string]string{
		"/status/":       "",
		"/status/log.gz": "http://127.0.0.1:21335",
	}))
}

func (s *status) statusGzip(w http.ResponseWriter, r *http.Request) {
	s.longMemoryWriter.Log("status - building gzip")

	start := s.version + "\n" +
		fmt.Sprintf("bus status %02x\n", s.core.Status()) +
		"\nCurrent log:\n"

	gzip, err := s.longMemoryWriter.Gzip(start)
	if err != nil {
		respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/gzip")

	if _, err := w.Write(gzip); err != nil {
		respondError(w, err)
	}
}

func (s *status) statusPage(w http.ResponseWriter, r *http.Request) {
	s.longMemoryWriter.Log("status - building status page")

	var templateErr error
	devices, err := s.core.Scan()
	if err != nil {
		s.longMemoryWriter.Log("status - scan err " + err.Error())
		templateErr = err
	}

	log, err := s.shortMemoryWriter.String(s.version + "\n")
	if err != nil {
		respondError(w, err)
		return
	}

	tdevs := make([]string, 0, len(devices))
	for _, d := range devices {
		tdevs = append(tdevs, fmt.Sprintf("0x%02x", d))
	}

	trace := s.core.Trace().Recent()
	tentries := make([]statusTemplateEntry, 0, len(trace))
	// latest on top
	for i := len(trace) - 1; i >= 0; i-- {
		e := trace[i]
		tentries = append(tentries, statusTemplateEntry{
			Time: e.Time.Format("15:04:05.000"),
			Op:   e.Op,
			Addr: fmt.Sprintf("0x%02x", e.Addr),
			Data: e.Hex,
			Err:  e.Err,
		})
	}

	isErr := templateErr != nil
	strErr := ""
	if templateErr != nil {
		strErr = templateErr.Error()
	}

	data := &statusTemplateData{
		Version:     s.version,
		BusStatus:   fmt.Sprintf("0x%02x", s.core.Status()),
		Devices:     tdevs,
		DeviceCount: len(tdevs),
		Trace:       tentries,
		Log:         log,
		IsError:     isErr,
		Error:       strErr,
		CSRFField:   csrf.TemplateField(r),
	}

	if err := statusTemplate.Execute(w, data); err != nil {
		respondError(w, err)
	}
}

func respondError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}
