package httpserver

import (
	"net/http"

	"github.com/gorilla/mux"
)

type JobTrigger interface {
	Trigger(name string) bool
}

// Jobs lets an operator fire a scheduled job outside its interval. The run
// is asynchronous: 202 means the job was handed to the scheduler, whose
// overlap guard still applies, so a busy job reports accepted and skips.
type Jobs struct {
	Scheduler JobTrigger
}

func (a *Jobs) Register(m *mux.Router) {
	m.HandleFunc("/v1/jobs/{name}/run", a.handleRun).Methods(http.MethodPost)
}

func (a *Jobs) handleRun(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if !a.Scheduler.Trigger(name) {
		http.Error(w, ErrNotFound, http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
