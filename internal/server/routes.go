package server

import (
	"math"
	"net/http"
	"strconv"
	"time"
)

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if s.session == nil {
		writeError(w, http.StatusServiceUnavailable, "no session")
		return
	}
	st := s.session.GetStatus()
	errs := make([]string, len(st.Errors))
	for i, err := range st.Errors {
		errs[i] = err.Error()
	}
	resp := map[string]any{
		"running":    st.Running,
		"step":       st.Step,
		"episode":    st.Episode,
		"start_time": st.StartTime,
		"errors":     errs,
	}
	if !st.EndTime.IsZero() {
		resp["end_time"] = st.EndTime
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAlgorithm(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.agent.Controller()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agent":       s.agent.GetID(),
		"name":        ctrl.Name(),
		"net_names":   ctrl.NetNames(),
		"lab_mode":    s.agent.Mode().LabMode(),
		"description": ctrl.Describe(),
	})
}

type bodyView struct {
	ID         string              `json:"id"`
	Coord      string              `json:"coord"`
	Device     string              `json:"device"`
	MemorySize int                 `json:"memory_size"`
	Vars       map[string]*float64 `json:"vars"`
}

func (s *Server) handleBodies(w http.ResponseWriter, r *http.Request) {
	views := make([]bodyView, 0, len(s.agent.Bodies()))
	for _, b := range s.agent.Bodies() {
		v := bodyView{
			ID:     b.ID,
			Coord:  b.Coord().String(),
			Device: b.Device,
			Vars:   make(map[string]*float64),
		}
		if b.Memory != nil {
			v.MemorySize = b.Memory.Size()
		}
		for name, val := range b.Vars() {
			// NaN has no JSON form
			if math.IsNaN(val) {
				v.Vars[name] = nil
				continue
			}
			val := val
			v.Vars[name] = &val
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, views)
}

type eventView struct {
	From      string    `json:"from"`
	Topic     string    `json:"topic"`
	Content   any       `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		writeError(w, http.StatusServiceUnavailable, "events not recorded")
		return
	}
	n := 50
	if q := r.URL.Query().Get("n"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "n must be a non-negative integer")
			return
		}
		n = v
	}

	msgs := s.recorder.Recent(n)
	views := make([]eventView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, eventView{From: m.From, Topic: m.Topic, Content: m.Content, Timestamp: m.Timestamp})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": views})
}

type checkpointView struct {
	Algorithm string `json:"algorithm"`
	Net       string `json:"net"`
	Ckpt      string `json:"ckpt"`
	CreatedAt int64  `json:"created_at"`
}

func (s *Server) handleCheckpoints(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, "no checkpoint database")
		return
	}
	alg := r.URL.Query().Get("algorithm")
	if alg == "" {
		ctrl, err := s.agent.Controller()
		if err != nil {
			writeError(w, http.StatusBadRequest, "algorithm required")
			return
		}
		alg = ctrl.Name()
	}

	cps, err := s.db.ListCheckpoints(r.Context(), alg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]checkpointView, 0, len(cps))
	for _, c := range cps {
		views = append(views, checkpointView{
			Algorithm: c.Algorithm,
			Net:       c.Net,
			Ckpt:      c.Ckpt,
			CreatedAt: c.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"algorithm": alg, "checkpoints": views})
}
