package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dom/pickup-queue/internal/domain"
	"github.com/dom/pickup-queue/internal/simulation"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestLocal_Trace(t *testing.T) {
	out, err := execute(t, "local", "--rounds", "2", "--join", "Night Owls")
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
	g.Assert(t, "local_join", []byte(out))
}

func TestLocal_JSON(t *testing.T) {
	out, err := execute(t, "local", "--rounds", "1", "--format", "json")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 6)

	var last simulation.Event
	require.NoError(t, json.Unmarshal([]byte(lines[4]), &last))
	assert.Equal(t, simulation.EventQueueUpdated, last.Type)
	require.NotNil(t, last.State.Current)
	assert.Equal(t, "Street Ballers", last.State.Current.TeamA.Name)
}

func TestLocal_IdleCourtStartsNext(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roster.yaml")
	roster := "title: Sunday\nplaying: 0\nteams:\n  - name: Hoopers\n  - name: Ballers\n  - name: Shooters\n"
	require.NoError(t, os.WriteFile(path, []byte(roster), 0o600))

	out, err := execute(t, "local", "--roster", path, "--rounds", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "game_started match=Hoopers vs Ballers")
	assert.Contains(t, out, "game_ended match=Hoopers vs Ballers")
	// Only Shooters was waiting, so the court goes idle.
	assert.Contains(t, out, "current=none waiting=[Shooters#3 Hoopers#4 Ballers#5]")
}

func TestRoot_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"bad format", []string{"local", "--format", "yaml"}, "invalid format"},
		{"negative rounds", []string{"local", "--rounds", "-1"}, "--rounds"},
		{"missing roster", []string{"local", "--roster", "/nope/roster.yaml"}, "failed to read roster"},
		{"fill needs event", []string{"fill"}, "required flag"},
		{"rotate needs event", []string{"rotate"}, "required flag"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// fakeServer answers the admin API from an in-memory simulated event.
func fakeServer(t *testing.T) (*httptest.Server, *simulation.Engine) {
	t.Helper()

	sim, err := simulation.New(simulation.DefaultRoster(), simulation.WithConnectDelay(0))
	require.NoError(t, err)

	base := "/api/v1/events/" + simulation.DemoEventID.String()
	writeJSON := func(w http.ResponseWriter, status int, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(v)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/admin/login", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["password"] != "hunter2" {
			http.Error(w, "Invalid password", http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"accessToken": "tok"})
	})
	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			h(w, r)
		}
	}
	mux.HandleFunc(base+"/queue", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sim.State())
	})
	mux.HandleFunc(base+"/teams", authed(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		team, err := sim.JoinTeam(req["name"], domain.TeamKind(req["kind"]))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusCreated, team)
	}))
	mux.HandleFunc(base+"/matches/start", authed(func(w http.ResponseWriter, r *http.Request) {
		match, err := sim.StartNext()
		if err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeJSON(w, http.StatusCreated, match)
	}))
	mux.HandleFunc(base+"/matches/", authed(func(w http.ResponseWriter, r *http.Request) {
		started, err := sim.TriggerGameEnd()
		if err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"started": started, "queue": sim.State()})
	}))

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, sim
}

func TestFill(t *testing.T) {
	server, sim := fakeServer(t)

	out, err := execute(t, "fill", "--api-url", server.URL, "--event", simulation.DemoEventID.String(),
		"--count", "2", "--prefix", "Walk-in", "--random", "--password", "hunter2")
	require.NoError(t, err)

	assert.Equal(t, "[1/2] Walk-in 1 checked in at #7\n[2/2] Walk-in 2 checked in at #8\n", out)

	state := sim.State()
	last := state.Waiting[len(state.Waiting)-1]
	assert.Equal(t, "Walk-in 2", last.Name)
	assert.Equal(t, domain.TeamKindRandom, last.Kind)
}

func TestFill_BadPassword(t *testing.T) {
	server, _ := fakeServer(t)

	_, err := execute(t, "fill", "--api-url", server.URL, "--event", simulation.DemoEventID.String(), "--password", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestRotate(t *testing.T) {
	server, _ := fakeServer(t)

	out, err := execute(t, "rotate", "--api-url", server.URL, "--event", simulation.DemoEventID.String(),
		"--rounds", "2", "--interval", "0", "--password", "hunter2")
	require.NoError(t, err)

	assert.Equal(t,
		"round 1: Street Ballers vs Warriors, 4 waiting\nround 2: Rucker Park vs Legacy, 4 waiting\n",
		out)
}
