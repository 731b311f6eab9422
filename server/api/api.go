// Package api serves the bridge API: bus transactions as local HTTP
// calls. Payloads travel as hex strings, the transaction logic itself
// lives in the core package; here we only convert between request
// variables and core calls.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"

	"github.com/twibus/twid-go/core"
	"github.com/twibus/twid-go/memlog"

	"github.com/gorilla/mux"
)

type api struct {
	core    *core.Core
	version string
	logger  *memlog.Writer
}

// ServeAPI registers the API routes on r. Bus-changing calls are
// POST-only and CORS-restricted to local development origins; the
// trace stream is a GET websocket with its own origin check.
func ServeAPI(r *mux.Router, c *core.Core, v string, l *memlog.Writer) error {
	api := &api{
		core:    c,
		version: v,
		logger:  l,
	}

	sr := r.Methods("POST").Subrouter()
	sr.HandleFunc("/", api.Info)
	sr.HandleFunc("/configure", api.Info)
	sr.HandleFunc("/scan", api.Scan)
	sr.HandleFunc("/write/{addr}", api.Write)
	sr.HandleFunc("/read/{addr}/{length}", api.Read)
	sr.HandleFunc("/call/{addr}/{length}", api.Call)

	r.Methods("GET").Path("/trace").HandlerFunc(api.Trace)

	corsv, err := corsValidator()
	if err != nil {
		return err
	}
	sr.Use(CORS(corsv))
	return nil
}

func corsValidator() (OriginValidator, error) {
	// Local development only; the bridge binds to loopback and there
	// is no reason for any remote origin to reach the bus.
	lregex, err := regexp.Compile(`^https?://(localhost|127\.0\.0\.1):[[:digit:]]+$`)
	if err != nil {
		return nil, err
	}
	v := func(origin string) bool {
		// Non-browser clients send no origin at all.
		if origin == "" {
			return true
		}
		return lregex.MatchString(origin)
	}
	return v, nil
}

func (a *api) Log(s string) {
	a.logger.Log("api - " + s)
}

func (a *api) Info(w http.ResponseWriter, r *http.Request) {
	a.Log("version " + a.version)

	type info struct {
		Version string `json:"version"`
	}
	err := json.NewEncoder(w).Encode(info{
		Version: a.version,
	})
	a.checkJSONError(w, err)
}

func (a *api) Scan(w http.ResponseWriter, r *http.Request) {
	a.Log("scan")

	found, err := a.core.Scan()
	if err != nil {
		a.respondError(w, err)
		return
	}

	type scan struct {
		Devices []string `json:"devices"`
	}
	res := scan{Devices: make([]string, 0, len(found))}
	for _, addr := range found {
		res.Devices = append(res.Devices, fmt.Sprintf("%02x", addr))
	}
	err = json.NewEncoder(w).Encode(res)
	a.checkJSONError(w, err)
}

func (a *api) Write(w http.ResponseWriter, r *http.Request) {
	addr, ok := a.addrVar(w, r)
	if !ok {
		return
	}
	data, ok := a.hexBody(w, r)
	if !ok {
		return
	}

	a.Log(fmt.Sprintf("write %d bytes to %02x", len(data), addr))
	if err := a.core.Write(addr, data); err != nil {
		a.respondError(w, err)
		return
	}

	type written struct {
		Written int `json:"written"`
	}
	err := json.NewEncoder(w).Encode(written{Written: len(data)})
	a.checkJSONError(w, err)
}

func (a *api) Read(w http.ResponseWriter, r *http.Request) {
	addr, ok := a.addrVar(w, r)
	if !ok {
		return
	}
	n, ok := a.lengthVar(w, r)
	if !ok {
		return
	}

	a.Log(fmt.Sprintf("read %d bytes from %02x", n, addr))
	data, err := a.core.Read(addr, n)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respondHex(w, data)
}

// Call is write-then-read with a repeated start, the register access
// shape: the hex body is written, then {length} bytes are read back.
func (a *api) Call(w http.ResponseWriter, r *http.Request) {
	addr, ok := a.addrVar(w, r)
	if !ok {
		return
	}
	n, ok := a.lengthVar(w, r)
	if !ok {
		return
	}
	payload, ok := a.hexBody(w, r)
	if !ok {
		return
	}

	a.Log(fmt.Sprintf("call %02x: write %d, read %d", addr, len(payload), n))
	data, err := a.core.WriteRead(addr, payload, n)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respondHex(w, data)
}

func (a *api) addrVar(w http.ResponseWriter, r *http.Request) (byte, bool) {
	vars := mux.Vars(r)
	addr, err := strconv.ParseUint(vars["addr"], 16, 8)
	if err != nil || addr > 0x7F {
		a.respondError(w, core.ErrBadAddress)
		return 0, false
	}
	return byte(addr), true
}

func (a *api) lengthVar(w http.ResponseWriter, r *http.Request) (int, bool) {
	vars := mux.Vars(r)
	n, err := strconv.Atoi(vars["length"])
	if err != nil || n < 0 || n > 4096 {
		a.respondError(w, fmt.Errorf("api: bad length %q", vars["length"]))
		return 0, false
	}
	return n, true
}

func (a *api) hexBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	defer func() {
		if errClose := r.Body.Close(); errClose != nil {
			// just log
			a.Log("error on request close: " + errClose.Error())
		}
	}()
	if err != nil {
		a.respondError(w, err)
		return nil, false
	}
	data, err := decodeHex(body)
	if err != nil {
		a.respondError(w, err)
		return nil, false
	}
	return data, true
}

func (a *api) respondHex(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "text/plain")
	if _, err := w.Write(encodeHex(data)); err != nil {
		a.Log("error writing response: " + err.Error())
	}
}

func (a *api) respondError(w http.ResponseWriter, err error) {
	type jsonError struct {
		Error string `json:"error"`
	}
	a.Log("returning error: " + err.Error())
	w.WriteHeader(http.StatusBadRequest)
	// if even the encoder fails there is nothing left to do
	_ = json.NewEncoder(w).Encode(jsonError{Error: err.Error()})
}

func (a *api) checkJSONError(w http.ResponseWriter, err error) {
	if err != nil {
		a.respondError(w, err)
	}
}
