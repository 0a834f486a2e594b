// Package cli implements the panenap command line client over the daemon socket.
package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/m0rik/panenap/internal/api"
	"github.com/m0rik/panenap/internal/config"
)

type Runner struct {
	baseURL string
	client  *http.Client
	out     io.Writer
	errOut  io.Writer
}

func NewRunner(socketPath string, out, errOut io.Writer) *Runner {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	return NewRunnerWithClient("http://unix", &http.Client{Transport: transport}, out, errOut)
}

func NewRunnerWithClient(baseURL string, client *http.Client, out, errOut io.Writer) *Runner {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Runner{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		out:     out,
		errOut:  errOut,
	}
}

func (r *Runner) Run(ctx context.Context, args []string) int {
	socketPath, rest, err := parseGlobalArgs(args)
	if err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	if socketPath != "" && r.baseURL == "http://unix" {
		*r = *NewRunner(socketPath, r.out, r.errOut)
	}
	if len(rest) == 0 {
		r.printUsage()
		return 2
	}
	switch rest[0] {
	case "status":
		return r.runStatus(ctx, rest[1:])
	case "entities":
		return r.runEntities(ctx, rest[1:])
	case "history":
		return r.runHistory(ctx, rest[1:])
	case "dispatches":
		return r.runDispatches(ctx, rest[1:])
	case "run":
		return r.runCycle(ctx, rest[1:])
	case "drain":
		return r.runDrain(ctx, rest[1:])
	default:
		_, _ = fmt.Fprintf(r.errOut, "unknown command: %s\n", rest[0])
		r.printUsage()
		return 2
	}
}

func parseGlobalArgs(args []string) (string, []string, error) {
	socket := config.DefaultConfig().SocketPath
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		if args[i] == "--socket" {
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("--socket requires value")
			}
			socket = args[i+1]
			i++
			continue
		}
		rest = append(rest, args[i])
	}
	return socket, rest, nil
}

func (r *Runner) runStatus(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	jsonOut := fs.Bool("json", false, "output JSON")
	if err := fs.Parse(args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	body, err := r.request(ctx, http.MethodGet, "/v1/health", nil)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		_, _ = r.out.Write(body)
		_, _ = fmt.Fprintln(r.out)
		return 0
	}
	var health api.HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		return r.handleErr(err)
	}
	_, _ = fmt.Fprintf(r.out, "%s\ttracked=%d\n", health.Status, health.Tracked)
	return 0
}

func (r *Runner) runEntities(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("entities", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	jsonOut := fs.Bool("json", false, "output JSON")
	if err := fs.Parse(args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	body, err := r.request(ctx, http.MethodGet, "/v1/entities", nil)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		_, _ = r.out.Write(body)
		_, _ = fmt.Fprintln(r.out)
		return 0
	}
	var env api.EntitiesEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return r.handleErr(err)
	}
	for _, e := range env.Entities {
		pid := "-"
		if e.PID != nil {
			pid = strconv.Itoa(*e.PID)
		}
		visible := "hidden"
		if e.Visible {
			visible = "visible"
		}
		_, _ = fmt.Fprintf(r.out, "%s\t%s\t%s\n", e.EntityID, pid, visible)
	}
	return 0
}

func (r *Runner) runHistory(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.Int("limit", 20, "max cycles to list")
	jsonOut := fs.Bool("json", false, "output JSON")
	if err := fs.Parse(args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	if *limit <= 0 {
		_, _ = fmt.Fprintln(r.errOut, "error: -limit must be positive")
		return 2
	}
	query := url.Values{"limit": []string{strconv.Itoa(*limit)}}
	body, err := r.request(ctx, http.MethodGet, "/v1/cycles", query)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		_, _ = r.out.Write(body)
		_, _ = fmt.Fprintln(r.out)
		return 0
	}
	var env api.CyclesEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return r.handleErr(err)
	}
	for _, c := range env.Cycles {
		status := "ok"
		if c.Error != nil {
			status = "failed"
		}
		_, _ = fmt.Fprintf(r.out, "%s\t%s\t%s\tentities=%d\tplan=%d\t%s\n",
			c.CycleID, c.StartedAt, c.TriggeredBy, c.EntityCount, c.PlanSize, status)
	}
	return 0
}

func (r *Runner) runDispatches(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("dispatches", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	jsonOut := fs.Bool("json", false, "output JSON")
	rest := args
	cycleID := ""
	if len(rest) > 0 && !strings.HasPrefix(rest[0], "-") {
		cycleID = rest[0]
		rest = rest[1:]
	}
	if err := fs.Parse(rest); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	if cycleID == "" && fs.NArg() > 0 {
		cycleID = fs.Arg(0)
	}
	cycleID = strings.TrimSpace(cycleID)
	if cycleID == "" {
		_, _ = fmt.Fprintln(r.errOut, "usage: panenap dispatches <cycle-id>")
		return 2
	}
	path := "/v1/cycles/" + url.PathEscape(cycleID) + "/dispatches"
	body, err := r.request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		_, _ = r.out.Write(body)
		_, _ = fmt.Fprintln(r.out)
		return 0
	}
	var env api.DispatchesEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return r.handleErr(err)
	}
	for _, d := range env.Dispatches {
		detail := ""
		if d.Error != nil {
			detail = "\t" + *d.Error
		}
		_, _ = fmt.Fprintf(r.out, "%d\t%s\t%s%s\n", d.PID, d.Action, d.ResultCode, detail)
	}
	return 0
}

func (r *Runner) runCycle(ctx context.Context, args []string) int {
	return r.postRun(ctx, args, "/v1/run")
}

func (r *Runner) runDrain(ctx context.Context, args []string) int {
	return r.postRun(ctx, args, "/v1/drain")
}

func (r *Runner) postRun(ctx context.Context, args []string, path string) int {
	fs := flag.NewFlagSet(strings.TrimPrefix(path, "/v1/"), flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	jsonOut := fs.Bool("json", false, "output JSON")
	if err := fs.Parse(args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	body, err := r.request(ctx, http.MethodPost, path, nil)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		_, _ = r.out.Write(body)
		_, _ = fmt.Fprintln(r.out)
		return 0
	}
	var run api.RunResponse
	if err := json.Unmarshal(body, &run); err != nil {
		return r.handleErr(err)
	}
	_, _ = fmt.Fprintf(r.out, "%s\tplan=%d\tresumed=%d\tsuspended=%d\tfailed=%d\n",
		run.CycleID, run.PlanSize, run.Resumed, run.Suspended, run.Failed)
	return 0
}

func (r *Runner) request(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	u := r.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var er api.ErrorResponse
		if unmarshalErr := json.Unmarshal(payload, &er); unmarshalErr == nil && er.Error.Code != "" {
			return nil, fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
		}
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	return payload, nil
}

func (r *Runner) handleErr(err error) int {
	_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
	return 1
}

func (r *Runner) printUsage() {
	_, _ = fmt.Fprintln(r.errOut, "usage: panenap [--socket <path>] <status|entities|history|dispatches|run|drain> ...")
}
