package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/quayside/flotilla/internal/utils"
	"github.com/quayside/flotilla/pkg/api"
	"github.com/quayside/flotilla/pkg/api/http/common"
	ie "github.com/quayside/flotilla/pkg/errors"
	"github.com/quayside/flotilla/pkg/structs"
)

const (
	wait = 30 * time.Second
)

type Server struct {
	addr       string
	debug      bool
	log        zerolog.Logger
	svc        api.API
	exit       chan os.Signal
	httpserver *http.Server
}

func NewServer(addr string, debug bool, log zerolog.Logger) *Server {
	return &Server{
		addr:  addr,
		debug: debug,
		log:   log,
		exit:  make(chan os.Signal, 1),
	}
}

func (s *Server) ServeForever(svc api.API) error {
	s.svc = svc

	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.Health).Methods(http.MethodGet)

	router.HandleFunc(common.API_TASKS, s.submitTask).Methods(http.MethodPost)
	router.HandleFunc(common.API_TASKS_SEARCH, s.searchTasks).Methods(http.MethodPost)
	router.HandleFunc(common.API_TASKS_CLAIM, s.claimTasks).Methods(http.MethodPost)
	router.HandleFunc(common.API_TASK, s.getTask).Methods(http.MethodGet)
	router.HandleFunc(common.API_TASK_OUTPUT, s.getTaskOutput).Methods(http.MethodGet)
	router.HandleFunc(common.API_TASK_HEARTBEAT, s.heartbeatTask).Methods(http.MethodPost)
	router.HandleFunc(common.API_TASK_SUCCEED, s.TerminalOp(s.svc.Succeed)).Methods(http.MethodPut)
	router.HandleFunc(common.API_TASK_FAIL, s.TerminalOp(s.svc.Fail)).Methods(http.MethodPut)
	router.HandleFunc(common.API_TASK_CANCEL, s.TerminalOp(s.svc.Cancel)).Methods(http.MethodPut)
	router.HandleFunc(common.API_TASK_RESUBMIT, s.resubmitTask).Methods(http.MethodPost)

	router.HandleFunc(common.API_SCHEDULES, s.createSchedule).Methods(http.MethodPost)
	router.HandleFunc(common.API_SCHEDULE, s.getSchedule).Methods(http.MethodGet)
	router.HandleFunc(common.API_SCHEDULE, s.ScheduleOp(s.svc.DeleteSchedule)).Methods(http.MethodDelete)
	router.HandleFunc(common.API_SCHEDULE_PAUSE, s.ScheduleOp(s.svc.PauseSchedule)).Methods(http.MethodPatch)
	router.HandleFunc(common.API_SCHEDULE_RESUME, s.ScheduleOp(s.svc.ResumeSchedule)).Methods(http.MethodPatch)
	router.HandleFunc(common.API_SCHEDULE_RUN, s.runSchedule).Methods(http.MethodPost)

	router.HandleFunc(common.API_FLEET_ROLLOUT, s.rollout).Methods(http.MethodPost)
	router.HandleFunc(common.API_FLEET_NODE_REGISTER, s.registerNode).Methods(http.MethodPost)
	router.HandleFunc(common.API_FLEET_NODE_IDLE, s.idleNode).Methods(http.MethodPost)
	router.HandleFunc(common.API_FLEET_CONFIG_OVERRIDE, s.setConfigOverride).Methods(http.MethodPut)
	router.HandleFunc(common.API_FLEET_CONFIG_OVERRIDE, s.removeConfigOverride).Methods(http.MethodDelete)

	if s.debug {
		router.Use(s.loggingMiddleware)
	}

	s.httpserver = &http.Server{
		Handler:      router,
		Addr:         s.addr,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	go func() {
		s.log.Info().Str("addr", s.httpserver.Addr).Msg("listening")
		if err := s.httpserver.ListenAndServe(); err != nil {
			s.log.Error().Err(err).Msg("http server stopped")
		}
	}()

	signal.Notify(s.exit, os.Interrupt)
	<-s.exit

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	return s.httpserver.Shutdown(ctx)
}

func (s *Server) Close() error {
	s.exit <- os.Interrupt
	return nil
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

func (s *Server) submitTask(w http.ResponseWriter, r *http.Request) {
	spec := &structs.TaskSpec{}
	err := unmarshalJson(w, r, spec)
	if err != nil {
		return
	}

	task, err := s.svc.Submit(r.Context(), spec)
	if err != nil {
		writeError(w, "submit_failed", err)
		return
	}
	s.respond(w, task)
}

func (s *Server) searchTasks(w http.ResponseWriter, r *http.Request) {
	q := &structs.Query{}
	err := unmarshalJson(w, r, q)
	if err != nil {
		return
	}
	for _, id := range q.IDs {
		if !utils.IsValidID(id) {
			http.Error(w, "bad task id", http.StatusBadRequest)
			return
		}
	}

	items, err := s.svc.Search(r.Context(), q)
	if err != nil {
		writeError(w, "search_failed", err)
		return
	}
	if s.debug {
		s.log.Debug().Str("url", r.URL.String()).Int("items", len(items)).Msg("search")
	}
	s.respond(w, items)
}

type claimRequest struct {
	GroupKey string `json:"group_key"`
	Limit    int    `json:"limit,omitempty"`
}

func (s *Server) claimTasks(w http.ResponseWriter, r *http.Request) {
	req := &claimRequest{}
	err := unmarshalJson(w, r, req)
	if err != nil {
		return
	}

	tasks, err := s.svc.Claim(r.Context(), req.GroupKey, req.Limit)
	if err != nil {
		writeError(w, "claim_failed", err)
		return
	}
	s.respond(w, tasks)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id, ok := s.taskID(w, r)
	if !ok {
		return
	}

	task, err := s.svc.Task(r.Context(), id)
	if err != nil {
		writeError(w, "fetching_failed", err)
		return
	}
	s.respond(w, task)
}

func (s *Server) getTaskOutput(w http.ResponseWriter, r *http.Request) {
	id, ok := s.taskID(w, r)
	if !ok {
		return
	}

	task, err := s.svc.Output(r.Context(), id)
	if errors.Is(err, ie.ErrNoOutputYet) {
		// not an error; the caller polls until the task terminates
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		writeError(w, "fetching_failed", err)
		return
	}
	s.respond(w, map[string]interface{}{"state": task.State, "output": task.Output})
}

func (s *Server) heartbeatTask(w http.ResponseWriter, r *http.Request) {
	id, ok := s.taskID(w, r)
	if !ok {
		return
	}

	task, err := s.svc.Heartbeat(r.Context(), id)
	if err != nil {
		writeError(w, "post_heartbeat_failed", err)
		return
	}
	s.respond(w, task)
}

type terminalRequest struct {
	Output json.RawMessage `json:"output,omitempty"`
}

// TerminalOp adapts the succeed / fail / cancel transitions, which all take
// an optional output body, into handlers.
func (s *Server) TerminalOp(fn func(context.Context, string, json.RawMessage) (*structs.Task, error)) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.taskID(w, r)
		if !ok {
			return
		}
		req := &terminalRequest{}
		err := unmarshalJson(w, r, req)
		if err != nil {
			return
		}

		task, err := fn(r.Context(), id, req.Output)
		if err != nil {
			writeError(w, "transition_failed", err)
			return
		}
		s.respond(w, task)
	}
}

func (s *Server) resubmitTask(w http.ResponseWriter, r *http.Request) {
	id, ok := s.taskID(w, r)
	if !ok {
		return
	}

	task, err := s.svc.Resubmit(r.Context(), id)
	if err != nil {
		writeError(w, "resubmit_failed", err)
		return
	}
	s.respond(w, task)
}

func (s *Server) createSchedule(w http.ResponseWriter, r *http.Request) {
	spec := &structs.ScheduleSpec{}
	err := unmarshalJson(w, r, spec)
	if err != nil {
		return
	}

	sched, err := s.svc.CreateSchedule(r.Context(), spec)
	if err != nil {
		writeError(w, "create_schedule_failed", err)
		return
	}
	s.respond(w, sched)
}

func (s *Server) getSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := s.svc.Schedule(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		writeError(w, "fetching_failed", err)
		return
	}
	s.respond(w, sched)
}

// ScheduleOp adapts the pause / resume / delete transitions into handlers.
func (s *Server) ScheduleOp(fn func(context.Context, string) (*structs.Schedule, error)) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		sched, err := fn(r.Context(), mux.Vars(r)["name"])
		if err != nil {
			writeError(w, "schedule_update_failed", err)
			return
		}
		s.respond(w, sched)
	}
}

func (s *Server) runSchedule(w http.ResponseWriter, r *http.Request) {
	task, err := s.svc.RunScheduleNow(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		writeError(w, "recurring_run_failed", err)
		return
	}
	s.respond(w, task)
}

type rolloutRequest struct {
	Image string `json:"image"`
}

func (s *Server) rollout(w http.ResponseWriter, r *http.Request) {
	req := &rolloutRequest{}
	err := unmarshalJson(w, r, req)
	if err != nil {
		return
	}

	d, err := s.svc.Rollout(r.Context(), req.Image)
	if err != nil {
		writeError(w, "fleet_rollout_failed", err)
		return
	}
	s.respond(w, d)
}

type registerRequest struct {
	URL string `json:"url"`
}

func (s *Server) registerNode(w http.ResponseWriter, r *http.Request) {
	id, ok := s.nodeID(w, r)
	if !ok {
		return
	}
	req := &registerRequest{}
	err := unmarshalJson(w, r, req)
	if err != nil {
		return
	}

	node, err := s.svc.RegisterNode(r.Context(), id, req.URL)
	if err != nil {
		writeError(w, "node_update_failed", err)
		return
	}
	s.respond(w, node)
}

func (s *Server) idleNode(w http.ResponseWriter, r *http.Request) {
	id, ok := s.nodeID(w, r)
	if !ok {
		return
	}

	node, err := s.svc.IdleNode(r.Context(), id)
	if err != nil {
		writeError(w, "node_update_failed", err)
		return
	}
	s.respond(w, node)
}

func (s *Server) setConfigOverride(w http.ResponseWriter, r *http.Request) {
	o := &structs.ConfigOverride{}
	err := unmarshalJson(w, r, o)
	if err != nil {
		return
	}
	o.RoutingID = mux.Vars(r)["routing_id"]

	saved, err := s.svc.SetConfigOverride(r.Context(), o)
	if err != nil {
		writeError(w, "config_override_failed", err)
		return
	}
	s.respond(w, saved)
}

func (s *Server) removeConfigOverride(w http.ResponseWriter, r *http.Request) {
	err := s.svc.RemoveConfigOverride(r.Context(), mux.Vars(r)["routing_id"])
	if err != nil {
		writeError(w, "config_override_failed", err)
		return
	}
	s.respond(w, map[string]bool{"ok": true})
}

func (s *Server) taskID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := mux.Vars(r)["id"]
	if !utils.IsValidID(id) {
		http.Error(w, "bad task id", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

func (s *Server) nodeID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "bad node id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (s *Server) respond(w http.ResponseWriter, obj interface{}) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(obj)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
