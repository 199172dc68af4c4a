package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/0xADE/ade-launchd/internal/catalog"
	"github.com/0xADE/ade-launchd/internal/completion"
	"github.com/0xADE/ade-launchd/internal/indexer"
	"github.com/0xADE/ade-launchd/internal/intent"
	"github.com/0xADE/ade-launchd/internal/pathindex"
	"github.com/0xADE/ade-launchd/parser"
)

// Services are the collaborators the server dispatches to.
type Services struct {
	Catalog    *catalog.Cache
	Classifier *intent.Classifier
	Paths      *pathindex.PathIndex // Optional; visit and recent fail without it
	Policy     completion.Policy
	Home       string
	Base       string // Directory relative completions resolve against

	ResultLimit func() int
	RecentLimit func() int
}

// Server handles Unix socket connections and command execution
type Server struct {
	listener net.Listener
	svc      Services
	running  bool
	mu       sync.RWMutex
	ctx      context.Context
}

var fieldCleaner = strings.NewReplacer("\t", " ", "\r", " ", "\n", " ")

// NewServer creates a new server listening on socketPath
func NewServer(socketPath string, svc Services) (*Server, error) {
	// Create directory if needed
	socketDir := filepath.Dir(socketPath)
	if err := os.MkdirAll(socketDir, 0755); err != nil {
		return nil, err
	}

	// Remove existing socket if it exists
	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}

	return &Server{listener: listener, svc: svc}, nil
}

// Start accepts connections until ctx is done or Stop is called
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.ctx = ctx
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.RLock()
			running := s.running
			s.mu.RUnlock()
			if !running {
				return ctx.Err()
			}
			log.Printf("[WARN] Accept failed: %v", err)
			continue
		}

		go s.handleConnection(conn)
	}
}

// Stop stops the server
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	return s.listener.Close()
}

func (s *Server) baseContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	log.Printf("[DEBUG] New connection accepted")

	p, err := parser.NewParser(conn)
	if err != nil {
		log.Printf("[ERROR] Failed to create parser: %v", err)
		s.writeError(conn, "parser", "invalid header", err.Error())
		return
	}

	// Completion cycling state belongs to the connection
	comp := completion.New(s.svc.Policy, s.svc.Home, s.svc.Base)

	for {
		cmd, err := p.ParseCommand()
		if err == io.EOF {
			log.Printf("[DEBUG] Connection closed by client")
			break
		}
		if err != nil {
			log.Printf("[ERROR] Parse error: %v", err)
			s.writeError(conn, "parser", "parse error", err.Error())
			continue
		}

		log.Printf("[DEBUG] Executing command: %s with %d args", cmd.Name, len(cmd.Args))
		s.executeCommand(conn, comp, cmd)
	}
}

func (s *Server) executeCommand(conn net.Conn, comp *completion.Completer, cmd *parser.Command) {
	switch cmd.Name {
	case parser.CmdClassify:
		s.handleClassify(conn, cmd)
	case parser.CmdSearch:
		s.handleSearch(conn, cmd)
	case parser.CmdQuery:
		s.handleQuery(conn, comp, cmd)
	case parser.CmdLaunched:
		s.handleLaunched(conn, cmd)
	case parser.CmdComplete:
		s.handleComplete(conn, comp, cmd)
	case parser.CmdCompleteNext:
		s.handleCycle(conn, comp, cmd, completion.Forward)
	case parser.CmdCompletePrev:
		s.handleCycle(conn, comp, cmd, completion.Backward)
	case parser.CmdReindex:
		s.handleReindex(conn, cmd)
	case parser.CmdVisit:
		s.handleVisit(conn, cmd)
	case parser.CmdRecent:
		s.handleRecent(conn, cmd)
	case parser.CmdStatus:
		s.handleStatus(conn)
	default:
		s.writeError(conn, cmd.Name, "unknown command", "Command not recognized")
	}
}

func (s *Server) handleClassify(conn net.Conn, cmd *parser.Command) {
	text, ok := optionalString(cmd, 0)
	if !ok || len(cmd.Args) > 1 {
		s.writeError(conn, cmd.Name, "invalid argument", "classify takes one string")
		return
	}
	in := s.svc.Classifier.Classify(text)
	s.writeResponse(conn, cmd.Name, []string{"intent: " + in.String()}, nil)
}

func (s *Server) handleSearch(conn net.Conn, cmd *parser.Command) {
	query, limit, ok := s.textAndLimit(cmd)
	if !ok {
		s.writeError(conn, cmd.Name, "invalid argument", "search takes a string and an optional int limit")
		return
	}

	apps := s.svc.Catalog.Search(query, limit)
	log.Printf("[DEBUG] Search %q matched %d applications", query, len(apps))
	s.writeResponse(conn, cmd.Name, []string{fmt.Sprintf("count: %d", len(apps))}, appLines(apps))
}

func (s *Server) handleQuery(conn net.Conn, comp *completion.Completer, cmd *parser.Command) {
	text, limit, ok := s.textAndLimit(cmd)
	if !ok {
		s.writeError(conn, cmd.Name, "invalid argument", "query takes a string and an optional int limit")
		return
	}

	in := s.svc.Classifier.Classify(text)
	var body []string
	switch in {
	case intent.AppSearch:
		body = appLines(s.svc.Catalog.Search(strings.TrimSpace(text), limit))
	case intent.PathLike:
		body = cleanLines(comp.Complete(strings.TrimSpace(text)))
	case intent.CommandLike:
		// Executed by the caller
		body = []string{fieldCleaner.Replace(strings.TrimSpace(text))}
	}

	attrs := []string{"intent: " + in.String(), fmt.Sprintf("count: %d", len(body))}
	s.writeResponse(conn, cmd.Name, attrs, body)
}

func (s *Server) handleLaunched(conn net.Conn, cmd *parser.Command) {
	id, ok := stringArg(cmd, 0)
	if !ok || id == "" || len(cmd.Args) > 1 {
		s.writeError(conn, cmd.Name, "missing id", "launched requires an application id")
		return
	}

	app, err := s.svc.Catalog.RecordLaunch(id)
	if errors.Is(err, catalog.ErrNotFound) {
		s.writeError(conn, cmd.Name, "not found", "Application id not in catalog")
		return
	}
	if err != nil {
		s.writeError(conn, cmd.Name, "launch failed", err.Error())
		return
	}

	attrs := []string{"id: " + app.ID, fmt.Sprintf("use-count: %d", app.UseCount)}
	s.writeResponse(conn, cmd.Name, attrs, nil)
}

func (s *Server) handleComplete(conn net.Conn, comp *completion.Completer, cmd *parser.Command) {
	input, ok := stringArg(cmd, 0)
	if !ok || len(cmd.Args) > 1 {
		s.writeError(conn, cmd.Name, "invalid argument", "complete takes one string")
		return
	}

	candidates := comp.Complete(input)
	s.writeResponse(conn, cmd.Name, []string{fmt.Sprintf("count: %d", len(candidates))}, cleanLines(candidates))
}

func (s *Server) handleCycle(conn net.Conn, comp *completion.Completer, cmd *parser.Command, dir completion.Direction) {
	var (
		got string
		ok  bool
	)
	switch {
	case len(cmd.Args) == 0:
		got, ok = comp.Advance(dir)
	case len(cmd.Args) == 1 && cmd.Args[0].Type == parser.TypeString:
		got, ok = comp.Cycle(cmd.Args[0].Str, dir)
	default:
		s.writeError(conn, cmd.Name, "invalid argument", "takes an optional string")
		return
	}

	if !ok {
		s.writeResponse(conn, cmd.Name, []string{"count: 0"}, nil)
		return
	}
	s.writeResponse(conn, cmd.Name, []string{"count: 1", "completion: " + fieldCleaner.Replace(got)}, nil)
}

func (s *Server) handleReindex(conn net.Conn, cmd *parser.Command) {
	if len(cmd.Args) > 0 {
		s.writeError(conn, cmd.Name, "invalid argument", "reindex takes no arguments")
		return
	}

	n, err := s.svc.Catalog.Rebuild(s.baseContext())
	if err != nil {
		s.writeError(conn, cmd.Name, "reindex failed", err.Error())
		return
	}
	s.writeResponse(conn, cmd.Name, []string{fmt.Sprintf("indexed: %d", n)}, nil)
}

func (s *Server) handleVisit(conn net.Conn, cmd *parser.Command) {
	path, ok := stringArg(cmd, 0)
	if !ok || path == "" || len(cmd.Args) > 1 {
		s.writeError(conn, cmd.Name, "missing path", "visit requires a path")
		return
	}
	if s.svc.Paths == nil {
		s.writeError(conn, cmd.Name, "unavailable", "path index is not open")
		return
	}

	e, err := s.svc.Paths.Touch(s.normalizePath(path))
	if err != nil {
		s.writeError(conn, cmd.Name, "visit failed", err.Error())
		return
	}
	attrs := []string{"path: " + fieldCleaner.Replace(e.Path), fmt.Sprintf("frequency: %d", e.Frequency)}
	s.writeResponse(conn, cmd.Name, attrs, nil)
}

func (s *Server) handleRecent(conn net.Conn, cmd *parser.Command) {
	limit := 0
	if s.svc.RecentLimit != nil {
		limit = s.svc.RecentLimit()
	}
	switch {
	case len(cmd.Args) == 0:
	case len(cmd.Args) == 1 && cmd.Args[0].Type == parser.TypeInt && cmd.Args[0].Int > 0:
		limit = int(cmd.Args[0].Int)
	default:
		s.writeError(conn, cmd.Name, "invalid argument", "recent takes an optional positive int")
		return
	}
	if s.svc.Paths == nil {
		s.writeError(conn, cmd.Name, "unavailable", "path index is not open")
		return
	}

	now := time.Now()
	entries := s.svc.Paths.Top(limit)
	body := make([]string, 0, len(entries))
	for _, e := range entries {
		body = append(body, fmt.Sprintf("%.4f\t%s", e.Score(now), fieldCleaner.Replace(e.Path)))
	}
	s.writeResponse(conn, cmd.Name, []string{fmt.Sprintf("count: %d", len(body))}, body)
}

func (s *Server) handleStatus(conn net.Conn) {
	snap := s.svc.Catalog.Snapshot()
	attrs := []string{
		fmt.Sprintf("entries: %d", snap.Count()),
		"built-at: " + snap.BuiltAt.Format(time.RFC3339),
		"schema: " + snap.SchemaVersion,
		fmt.Sprintf("rebuilding: %t", s.svc.Catalog.IsRebuilding()),
	}
	s.writeResponse(conn, parser.CmdStatus, attrs, nil)
}

// textAndLimit reads a string argument and an optional positive int limit.
func (s *Server) textAndLimit(cmd *parser.Command) (string, int, bool) {
	text, ok := stringArg(cmd, 0)
	if !ok {
		return "", 0, false
	}
	limit := 0
	if s.svc.ResultLimit != nil {
		limit = s.svc.ResultLimit()
	}
	switch len(cmd.Args) {
	case 1:
	case 2:
		if cmd.Args[1].Type != parser.TypeInt || cmd.Args[1].Int <= 0 {
			return "", 0, false
		}
		limit = int(cmd.Args[1].Int)
	default:
		return "", 0, false
	}
	return text, limit, true
}

func (s *Server) normalizePath(path string) string {
	if s.svc.Home != "" {
		if path == "~" {
			path = s.svc.Home
		} else if rest, ok := strings.CutPrefix(path, "~/"); ok {
			path = filepath.Join(s.svc.Home, rest)
		}
	}
	if !filepath.IsAbs(path) && s.svc.Base != "" {
		path = filepath.Join(s.svc.Base, path)
	}
	return filepath.Clean(path)
}

func stringArg(cmd *parser.Command, i int) (string, bool) {
	if i >= len(cmd.Args) || cmd.Args[i].Type != parser.TypeString {
		return "", false
	}
	return cmd.Args[i].Str, true
}

// optionalString treats a missing argument as the empty string.
func optionalString(cmd *parser.Command, i int) (string, bool) {
	if i >= len(cmd.Args) {
		return "", true
	}
	return stringArg(cmd, i)
}

func appLines(apps []indexer.Application) []string {
	lines := make([]string, 0, len(apps))
	for _, app := range apps {
		lines = append(lines, strings.Join([]string{
			app.ID,
			app.Kind.String(),
			fieldCleaner.Replace(app.Name),
			fieldCleaner.Replace(app.Path),
		}, "\t"))
	}
	return lines
}

func cleanLines(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, fieldCleaner.Replace(s))
	}
	return out
}

// writeResponse writes a response with TXT01 header. body-lines tells the
// reader how many lines follow the blank separator.
func (s *Server) writeResponse(conn net.Conn, cmd string, attrs, body []string) {
	var b strings.Builder
	b.WriteString("TXT01")
	fmt.Fprintf(&b, "cmd: %s\nstatus: 0\n", cmd)
	for _, a := range attrs {
		b.WriteString(a)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "body-lines: %d\n\n", len(body))
	for _, line := range body {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	s.write(conn, b.String())
}

func (s *Server) writeError(conn net.Conn, cmd, errType, desc string) {
	log.Printf("[ERROR] Writing error response: cmd=%s, type=%s, desc=%s", cmd, errType, desc)
	s.write(conn, fmt.Sprintf("TXT01error-cmd: %s\nerror: %s\ndesc: %s\n\n",
		cmd, errType, fieldCleaner.Replace(desc)))
}

func (s *Server) write(conn net.Conn, response string) {
	n, err := io.WriteString(conn, response)
	if err != nil {
		log.Printf("[ERROR] Failed to write response: %v", err)
		return
	}
	log.Printf("[DEBUG] Response written successfully: %d bytes", n)
}
