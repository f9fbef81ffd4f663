package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"goji.io"
	"goji.io/pat"

	"servolock/auth"
	"servolock/lock"
)

// webAPI is the HTTP façade over the controller: an authenticated command
// ingress and a plain-text status egress. Unauthenticated requests are
// rejected before the machine sees anything.
type webAPI struct {
	ctrl   *lock.Controller
	secret string
	logger *zap.SugaredLogger
}

func newWebServer(cfg HTTPConfig, ctrl *lock.Controller, secret string, logger *zap.SugaredLogger) *http.Server {
	a := &webAPI{ctrl: ctrl, secret: secret, logger: logger}

	mux := goji.NewMux()
	mux.HandleFunc(pat.Get("/status"), a.handleStatus)
	mux.HandleFunc(pat.Post("/command"), a.handleCommand)
	mux.HandleFunc(pat.Post("/calibrate"), a.handleCalibrate)

	return &http.Server{
		Addr:           cfg.Listen,
		Handler:        mux,
		ReadTimeout:    10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
}

func (a *webAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintln(w, a.ctrl.Status())
}

// verify checks the request's nonce/signature headers and returns the
// nonce. On failure the request has already been answered with 401.
func (a *webAPI) verify(w http.ResponseWriter, r *http.Request) (string, bool) {
	nonce := r.Header.Get("X-Nonce")
	signature := r.Header.Get("X-Signature")

	if !auth.Verify(a.secret, nonce, signature) {
		a.logger.Warnf("unauthorized %s from %s", r.URL.Path, r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}
	return nonce, true
}

// handleCommand queues a lock or unlock command. The nonce carries the
// command word followed by a caller-chosen uniquifier, e.g.
// "lock:1693400000".
func (a *webAPI) handleCommand(w http.ResponseWriter, r *http.Request) {
	nonce, ok := a.verify(w, r)
	if !ok {
		return
	}

	var cmd lock.Command
	switch strings.SplitN(nonce, ":", 2)[0] {
	case "lock":
		cmd = lock.CmdLock
	case "unlock":
		cmd = lock.CmdUnlock
	default:
		http.Error(w, "unknown command", http.StatusBadRequest)
		return
	}

	a.ctrl.Submit(cmd)
	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintln(w, "QUEUED")
}

// handleCalibrate runs the calibration procedure. This blocks for the
// settle delays; callers should expect a few seconds.
func (a *webAPI) handleCalibrate(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.verify(w, r); !ok {
		return
	}

	if err := a.ctrl.Calibrate(); err != nil {
		if err == lock.ErrBusy {
			http.Error(w, "busy", http.StatusConflict)
			return
		}
		a.logger.Errorf("calibrate: %v", err)
		http.Error(w, "calibration failed", http.StatusInternalServerError)
		return
	}
	fmt.Fprintln(w, a.ctrl.Status())
}
