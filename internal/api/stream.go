package api

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/Roelanb/churnboard/internal/actions"
	"github.com/Roelanb/churnboard/internal/render"
	"github.com/Roelanb/churnboard/internal/task"
)

// handleAction runs one action and streams its effects as Datastar patches.
// The stream stays open until posted messages have expired, so it can
// remove them; it ends early when the client leaves or the server stops.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	a, ok := actions.Lookup(name)
	if !ok {
		http.Error(w, "unknown action: "+name, http.StatusNotFound)
		return
	}
	signals := map[string]any{}
	if err := datastar.ReadSignals(r, &signals); err != nil {
		http.Error(w, "read signals: "+err.Error(), http.StatusBadRequest)
		return
	}

	sse := datastar.NewSSE(w, r)
	loading := false
	onState := func(st task.Status) {
		if st == task.StatusLoading {
			loading = true
			_ = sse.PatchElements(string(buttonHTML(a, true)))
		}
	}

	res, err := s.runner.Run(sse.Context(), name, actions.ParamsFrom(signals), onState)
	var ids []string
	switch {
	case errors.Is(err, task.ErrInFlight):
		ids = append(ids, s.postMessage(sse, a.Region, render.Error("%s is already running", a.Title)))
	case err != nil:
		ids = append(ids, s.postMessage(sse, a.Region, render.Error("%s", err.Error())))
	default:
		ids = s.applyOutcome(sse, res.Outcome)
	}
	if loading {
		_ = sse.PatchElements(string(buttonHTML(a, false)))
	}
	s.expireMessages(sse, ids)
}

func (s *Server) applyOutcome(sse *datastar.ServerSentEventGenerator, out *actions.Outcome) []string {
	if out == nil {
		return nil
	}
	for _, u := range out.Updates {
		if err := sse.PatchElements(string(updateHTML(u))); err != nil {
			s.log.Warnw("patch failed", "region", u.Region, "error", err)
		}
	}
	if out.Download != nil {
		id := s.downloads.put(*out.Download)
		_ = sse.ExecuteScript(fmt.Sprintf("window.location.assign(%q)", "/downloads/"+id))
	}
	var ids []string
	for _, n := range out.Notices {
		ids = append(ids, s.postMessage(sse, n.Region, n.Message))
	}
	return ids
}

func (s *Server) postMessage(sse *datastar.ServerSentEventGenerator, region string, m render.Message) string {
	id := "msg-" + uuid.NewString()
	_ = sse.PatchElements(string(render.MessageHTML(id, m)),
		datastar.WithSelector("#"+region+"-messages"),
		datastar.WithMode(datastar.ElementPatchModeAppend),
	)
	return id
}

func (s *Server) expireMessages(sse *datastar.ServerSentEventGenerator, ids []string) {
	if len(ids) == 0 {
		return
	}
	timer := time.NewTimer(s.ttl())
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-sse.Context().Done():
		return
	case <-s.done:
		return
	}
	for _, id := range ids {
		_ = sse.PatchElements("", datastar.WithSelector("#"+id), datastar.WithMode(datastar.ElementPatchModeRemove))
	}
}

// updateHTML renders the replacement element for one region.
func updateHTML(u actions.Update) template.HTML {
	switch u.Kind {
	case actions.KindBadge:
		if u.Badge == nil {
			return regionHTML(u.Region, "")
		}
		return render.BadgeHTML(u.Region, *u.Badge)
	case actions.KindStat:
		return template.HTML(fmt.Sprintf(`<span id="%s" class="stat-value">%s</span>`,
			template.HTMLEscapeString(u.Region), template.HTMLEscapeString(u.Text)))
	case actions.KindTable:
		return regionHTML(u.Region, render.TableHTML(u.Table))
	case actions.KindText:
		return regionHTML(u.Region, render.TextHTML(u.Text))
	default:
		return regionHTML(u.Region, "")
	}
}

func regionHTML(id string, inner template.HTML) template.HTML {
	var b strings.Builder
	b.WriteString(`<div id="`)
	b.WriteString(template.HTMLEscapeString(id))
	b.WriteString(`" class="result">`)
	b.WriteString(string(inner))
	b.WriteString(`</div>`)
	return template.HTML(b.String())
}
