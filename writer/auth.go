package main

import (
	"net/http"

	hr "github.com/julienschmidt/httprouter"
	"golang.org/x/crypto/bcrypt"

	"community.io/pinboard/common/logging"
	mw "community.io/pinboard/common/middleware"
	cst "community.io/pinboard/constants"
	se "community.io/pinboard/errors"
)

const sessionKeyAdmin = "admin"

func (wrt *writer) isAdmin(r *http.Request) bool {
	sess, err := wrt.Sessions.Get(r, cst.SessionName)
	if err != nil {
		return false
	}
	admin, _ := sess.Values[sessionKeyAdmin].(bool)
	return admin
}

// RequireAdmin rejects requests without an admin session
func (wrt *writer) RequireAdmin() mw.Middleware {
	return func(h hr.Handle) hr.Handle {
		return func(w http.ResponseWriter, r *http.Request, p hr.Params) {
			if !wrt.isAdmin(r) {
				resp(w, http.StatusUnauthorized, errView{Err: "please log in first", Code: se.ErrCodeAPIBadRequest})
				return
			}
			h(w, r, p)
		}
	}
}

func (wrt *writer) HandleAuthLogin(w http.ResponseWriter, r *http.Request, _ hr.Params) {
	clog := logging.ForRequest(mw.RequestID(r.Context()))
	if wrt.Cfg.AdminPasswordHash == "" {
		respErr(w, se.NewNotImplemented().WithMsg("admin login is not configured"), nil)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<12)
	if err := r.ParseForm(); err != nil {
		respErr(w, se.NewBadInput("error reading login form").WithCause(err), nil)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(wrt.Cfg.AdminPasswordHash), []byte(r.PostFormValue("password"))); err != nil {
		clog.WithField("remoteAddr", r.RemoteAddr).Warn("failed admin login")
		resp(w, http.StatusUnauthorized, errView{Err: "wrong password", Code: se.ErrCodeAPIBadRequest})
		return
	}
	// a stale or forged cookie still yields a usable fresh session
	sess, _ := wrt.Sessions.Get(r, cst.SessionName)
	sess.Values[sessionKeyAdmin] = true
	if err := sess.Save(r, w); err != nil {
		clog.WithError(err).Error("error saving admin session")
		respErr(w, se.NewServiceFailure("error saving session").WithCause(err), nil)
		return
	}
	resp(w, http.StatusOK, map[string]bool{sessionKeyAdmin: true})
}

func (wrt *writer) HandleAuthLogout(w http.ResponseWriter, r *http.Request, _ hr.Params) {
	sess, _ := wrt.Sessions.Get(r, cst.SessionName)
	sess.Options.MaxAge = -1
	if err := sess.Save(r, w); err != nil {
		logging.WithFuncName().WithError(err).Error("error clearing admin session")
		respErr(w, se.NewServiceFailure("error clearing session").WithCause(err), nil)
		return
	}
	resp(w, http.StatusOK, map[string]bool{sessionKeyAdmin: false})
}
